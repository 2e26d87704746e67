package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scaliseraoul/ambrogio/internal/tools"
)

func newGitTool(root string) *tools.GitTool {
	return &tools.GitTool{Runner: &tools.Terminal{WorkingDir: root, Allowed: []string{"git"}, Timeout: 10 * time.Second}}
}

// gitState summarizes the work tree for the doctor table.
func gitState(ctx context.Context, root string) string {
	changed, err := newGitTool(root).Changed(ctx)
	switch {
	case errors.Is(err, tools.ErrNotGitRepository):
		return "not a repository"
	case err != nil:
		return "unavailable: " + firstLine(err.Error())
	case len(changed) == 0:
		return "clean"
	default:
		return fmt.Sprintf("%d changed files", len(changed))
	}
}

// warnUncommitted logs the Python files with uncommitted changes, which a docstring run may rewrite.
// Missing git or a non-repository is not an error.
func warnUncommitted(ctx context.Context, root string, logger *zap.Logger) {
	changed, err := newGitTool(root).Changed(ctx)
	if err != nil {
		logger.Debug("git status unavailable", zap.Error(err))
		return
	}
	var py []string
	for _, p := range changed {
		if strings.HasSuffix(p, ".py") {
			py = append(py, p)
		}
	}
	if len(py) > 0 {
		logger.Warn("python files have uncommitted changes", zap.Strings("paths", py))
	}
}
