package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathGuard ensures operations stay within a base directory.
type PathGuard struct {
	BaseDir string
}

// NewPathGuard constructs a guard rooted at baseDir (defaults to current working directory).
func NewPathGuard(baseDir string) (*PathGuard, error) {
	if baseDir == "" {
		var err error
		baseDir, err = os.Getwd()
		if err != nil {
			return nil, err
		}
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, err
	}
	return &PathGuard{BaseDir: absBase}, nil
}

// Resolve validates and returns an absolute path inside BaseDir.
// Relative paths are joined to BaseDir; absolute paths must already point inside it.
func (g *PathGuard) Resolve(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("path is required")
	}
	clean := filepath.Clean(p)
	abs := clean
	if !filepath.IsAbs(clean) {
		abs = filepath.Clean(filepath.Join(g.BaseDir, clean))
	}

	if !g.Contains(abs) {
		return "", fmt.Errorf("path %s escapes base directory %s", p, g.BaseDir)
	}
	return abs, nil
}

// Contains reports whether the absolute path abs is BaseDir or below it.
func (g *PathGuard) Contains(abs string) bool {
	abs = filepath.Clean(abs)
	return abs == g.BaseDir || strings.HasPrefix(abs, g.BaseDir+string(os.PathSeparator))
}
