// Package repo resolves the root of the target Python project and maps paths relative to it.
package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/scaliseraoul/ambrogio/internal/pysrc"
	"github.com/scaliseraoul/ambrogio/internal/tools"
)

// ErrNotARepository is returned when no project root can be established.
var ErrNotARepository = errors.New("not a repository")

var skipDirs = map[string]struct{}{
	"venv":         {},
	"env":          {},
	"__pycache__":  {},
	"node_modules": {},
}

// Locator owns the resolved project root. Construct it once and pass it to the components that need it.
type Locator struct {
	guard *tools.PathGuard
}

// Locate resolves the project root. An explicit path must exist, be a directory and carry a project
// marker (.git, pyproject.toml or any Python file). An empty path walks up from the working directory
// looking for .git or pyproject.toml, falling back to the working directory when it holds Python files.
func Locate(path string) (*Locator, error) {
	if path != "" {
		return locateExplicit(path)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	cwd, err = filepath.EvalSymlinks(cwd)
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	for dir := cwd; ; dir = filepath.Dir(dir) {
		if exists(filepath.Join(dir, ".git")) || exists(filepath.Join(dir, "pyproject.toml")) {
			return newLocator(dir)
		}
		if filepath.Dir(dir) == dir {
			break
		}
	}

	if hasPythonFiles(cwd) {
		return newLocator(cwd)
	}
	return nil, fmt.Errorf("%w: %s has no .git, pyproject.toml or python files", ErrNotARepository, cwd)
}

func locateExplicit(path string) (*Locator, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotARepository, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: path does not exist: %s", ErrNotARepository, abs)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: path is not a directory: %s", ErrNotARepository, abs)
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotARepository, err)
	}

	if exists(filepath.Join(abs, ".git")) || exists(filepath.Join(abs, "pyproject.toml")) || hasPythonFiles(abs) {
		return newLocator(abs)
	}
	return nil, fmt.Errorf("%w: %s is not a git repository, poetry project or python project", ErrNotARepository, abs)
}

func newLocator(root string) (*Locator, error) {
	guard, err := tools.NewPathGuard(root)
	if err != nil {
		return nil, err
	}
	return &Locator{guard: guard}, nil
}

// Root returns the absolute project root.
func (l *Locator) Root() string {
	return l.guard.BaseDir
}

// Rel converts a path to one relative to the root. It fails when the path lies outside the root.
func (l *Locator) Rel(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if !l.guard.Contains(abs) {
		return "", fmt.Errorf("path %s is outside repository", path)
	}
	return filepath.Rel(l.guard.BaseDir, abs)
}

// Abs joins a repo-relative path onto the root. Absolute inputs are returned cleaned.
func (l *Locator) Abs(rel string) string {
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel)
	}
	return filepath.Join(l.guard.BaseDir, rel)
}

// Resolve is Abs with a check that the result stays inside the root.
func (l *Locator) Resolve(p string) (string, error) {
	return l.guard.Resolve(p)
}

type pyproject struct {
	Project struct {
		Name string `toml:"name"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Name string `toml:"name"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

// ProjectName reads the name from pyproject.toml ([project] then [tool.poetry]), falling back to the
// root directory's base name.
func (l *Locator) ProjectName() string {
	data, err := os.ReadFile(filepath.Join(l.Root(), "pyproject.toml"))
	if err == nil {
		var pp pyproject
		if err := toml.Unmarshal(data, &pp); err == nil {
			if pp.Project.Name != "" {
				return pp.Project.Name
			}
			if pp.Tool.Poetry.Name != "" {
				return pp.Tool.Poetry.Name
			}
		}
	}
	return filepath.Base(l.Root())
}

// PythonFiles returns the sorted repo-relative paths of every .py file, skipping hidden directories,
// virtual environments and caches.
func (l *Locator) PythonFiles() ([]string, error) {
	var files []string
	err := walkPython(l.Root(), func(abs string) error {
		rel, err := filepath.Rel(l.Root(), abs)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Structure renders each Python file with its defined classes/functions and imports.
func (l *Locator) Structure(ctx context.Context) (string, error) {
	files, err := l.PythonFiles()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Repository Root: %s\n", l.Root())
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		exports, imports, err := fileSymbols(ctx, l.Abs(rel))
		if err != nil {
			fmt.Fprintf(&b, "\nFile: %s (Error: %v)\n", rel, err)
			continue
		}
		fmt.Fprintf(&b, "\nFile: %s\n", rel)
		if len(exports) > 0 {
			b.WriteString("  Exports:\n")
			for _, e := range exports {
				fmt.Fprintf(&b, "    - %s\n", e)
			}
		}
		if len(imports) > 0 {
			b.WriteString("  Imports:\n")
			for _, i := range imports {
				fmt.Fprintf(&b, "    - %s\n", i)
			}
		}
	}
	return b.String(), nil
}

func fileSymbols(ctx context.Context, path string) ([]string, []string, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	f, err := pysrc.Parse(ctx, src)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	if f.HasErrors() {
		return nil, nil, errors.New("syntax error")
	}
	exports, imports := f.Symbols()
	return exports, imports, nil
}

func walkPython(root string, fn func(abs string) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			name := d.Name()
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".py") && d.Type().IsRegular() {
			return fn(path)
		}
		return nil
	})
}

var errFound = errors.New("found")

func hasPythonFiles(root string) bool {
	err := walkPython(root, func(string) error { return errFound })
	return errors.Is(err, errFound)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
