package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotGitRepository is returned when the working directory is not inside a git work tree.
var ErrNotGitRepository = errors.New("not a git work tree")

// GitTool runs read-only git queries through a Runner.
type GitTool struct {
	Runner Runner
}

// Changed returns the sorted paths, relative to the work tree root, that git status reports as
// modified, added or untracked.
func (g *GitTool) Changed(ctx context.Context) ([]string, error) {
	res, err := g.Runner.Exec(ctx, "git", "status", "--porcelain", "--untracked-files=all")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		if strings.Contains(res.Stderr, "not a git repository") {
			return nil, ErrNotGitRepository
		}
		return nil, fmt.Errorf("git status exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return parsePorcelain(res.Stdout), nil
}

// parsePorcelain extracts paths from `git status --porcelain` v1 output. Renames report the new path.
func parsePorcelain(out string) []string {
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		path := line[3:]
		if i := strings.Index(path, " -> "); i >= 0 {
			path = path[i+4:]
		}
		paths = append(paths, strings.Trim(path, `"`))
	}
	sort.Strings(paths)
	return paths
}
