// Package docstring measures and repairs docstring coverage of a Python repository.
package docstring

import (
	"context"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scaliseraoul/ambrogio/internal/logging"
	"github.com/scaliseraoul/ambrogio/internal/pysrc"
)

// Files lists and resolves the Python files of a repository.
type Files interface {
	Root() string
	PythonFiles() ([]string, error)
	Abs(rel string) string
}

// FileCoverage is the docstring coverage of one file.
type FileCoverage struct {
	Path    string // relative to the repository root
	Total   int
	Missing int
	Percent float64
}

// Report aggregates coverage over every scanned file.
type Report struct {
	Files      []FileCoverage
	Skipped    []string // files that could not be parsed
	Total      int
	Documented int
	Missing    int
	Percent    float64
}

// BelowThreshold returns the files whose coverage is under min, sorted by path.
func (r Report) BelowThreshold(min float64) []FileCoverage {
	var out []FileCoverage
	for _, f := range r.Files {
		if f.Percent < min {
			out = append(out, f)
		}
	}
	return out
}

// Scanner counts public definitions with and without docstrings.
type Scanner struct {
	files       Files
	concurrency int
	logger      *zap.Logger
}

// NewScanner constructs a Scanner. concurrency below 1 means one file at a time.
func NewScanner(files Files, concurrency int, logger *zap.Logger) *Scanner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scanner{files: files, concurrency: concurrency, logger: logging.OrNop(logger)}
}

type fileResult struct {
	cov     FileCoverage
	skipped bool
}

// Scan parses every Python file of the repository and reports its docstring coverage.
// Files with syntax errors are listed in Report.Skipped and do not count.
func (s *Scanner) Scan(ctx context.Context) (Report, error) {
	paths, err := s.files.PythonFiles()
	if err != nil {
		return Report{}, fmt.Errorf("list python files: %w", err)
	}

	results := make([]fileResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, rel := range paths {
		g.Go(func() error {
			cov, ok, err := s.scanFile(gctx, rel)
			if err != nil {
				return err
			}
			results[i] = fileResult{cov: cov, skipped: !ok}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	var report Report
	for _, r := range results {
		if r.skipped {
			report.Skipped = append(report.Skipped, r.cov.Path)
			continue
		}
		report.Files = append(report.Files, r.cov)
		report.Total += r.cov.Total
		report.Missing += r.cov.Missing
	}
	sort.Slice(report.Files, func(i, j int) bool { return report.Files[i].Path < report.Files[j].Path })
	report.Documented = report.Total - report.Missing
	report.Percent = percent(report.Total, report.Missing)
	return report, nil
}

func (s *Scanner) scanFile(ctx context.Context, rel string) (FileCoverage, bool, error) {
	src, err := os.ReadFile(s.files.Abs(rel))
	if err != nil {
		return FileCoverage{}, false, fmt.Errorf("read %s: %w", rel, err)
	}
	f, err := pysrc.Parse(ctx, src)
	if err != nil {
		return FileCoverage{}, false, fmt.Errorf("parse %s: %w", rel, err)
	}
	defer f.Close()

	if f.HasErrors() {
		s.logger.Warn("skipping file with syntax errors", zap.String("path", rel))
		return FileCoverage{Path: rel}, false, nil
	}

	cov := FileCoverage{Path: rel}
	for _, d := range f.Definitions() {
		if !d.Public() {
			continue
		}
		cov.Total++
		if !d.HasDocstring {
			cov.Missing++
		}
	}
	cov.Percent = percent(cov.Total, cov.Missing)
	return cov, true, nil
}

func percent(total, missing int) float64 {
	if total == 0 {
		return 100
	}
	return float64(total-missing) / float64(total) * 100
}

// undocumented returns the public definitions of f lacking a docstring, in source order.
func undocumented(f *pysrc.File) []pysrc.Definition {
	var out []pysrc.Definition
	for _, d := range f.Definitions() {
		if d.Public() && !d.HasDocstring {
			out = append(out, d)
		}
	}
	return out
}
