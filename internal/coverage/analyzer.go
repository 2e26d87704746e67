// Package coverage measures line coverage of a Python project with coverage.py and pytest.
package coverage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/scaliseraoul/ambrogio/internal/logging"
	"github.com/scaliseraoul/ambrogio/internal/tools"
)

// ErrNoReport is returned when a measurement has not been taken or produced no data.
var ErrNoReport = errors.New("no coverage data")

// pytest exit codes that still leave usable coverage data: ok, tests failed, no tests collected.
var usablePytestExits = map[int]bool{0: true, 1: true, 5: true}

// Analyzer runs the project's test suite under coverage.py. Every Measure call is a fresh run.
type Analyzer struct {
	Root   string
	Python string
	Runner tools.Runner
	Logger *zap.Logger

	last *Report
}

// NewAnalyzer constructs an Analyzer rooted at root. python defaults to python3.
func NewAnalyzer(root, python string, runner tools.Runner, logger *zap.Logger) *Analyzer {
	if python == "" {
		python = "python3"
	}
	return &Analyzer{Root: root, Python: python, Runner: runner, Logger: logging.OrNop(logger)}
}

type jsonReport struct {
	Files map[string]struct {
		ExecutedLines []int `json:"executed_lines"`
		MissingLines  []int `json:"missing_lines"`
		Summary       struct {
			NumStatements int `json:"num_statements"`
			CoveredLines  int `json:"covered_lines"`
		} `json:"summary"`
	} `json:"files"`
}

// Measure erases previous data, runs pytest under coverage and parses the JSON report.
// Failing project tests do not fail the measurement; a missing or unreadable report does.
func (a *Analyzer) Measure(ctx context.Context) (Report, error) {
	dataFile := filepath.Join(a.Root, ".coverage")
	dataArg := "--data-file=" + dataFile

	if res, err := a.Runner.Exec(ctx, a.Python, "-m", "coverage", "erase", dataArg); err != nil {
		return Report{}, fmt.Errorf("coverage erase: %w", err)
	} else if res.ExitCode != 0 {
		return Report{}, fmt.Errorf("coverage erase exited %d: %s", res.ExitCode, res.Combined())
	}

	res, err := a.Runner.Exec(ctx, a.Python, "-m", "coverage", "run", dataArg, "--source="+a.Root,
		"-m", "pytest", a.Root, "-q", "-p", "no:cacheprovider")
	if err != nil {
		return Report{}, fmt.Errorf("coverage run: %w", err)
	}
	if !usablePytestExits[res.ExitCode] {
		a.Logger.Warn("test suite did not complete cleanly", zap.Int("exit_code", res.ExitCode))
	}
	a.Logger.Debug("test suite finished", zap.Int("exit_code", res.ExitCode))

	tmp, err := os.CreateTemp("", "ambrogio-coverage-*.json")
	if err != nil {
		return Report{}, fmt.Errorf("create report file: %w", err)
	}
	out := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(out)

	res, err = a.Runner.Exec(ctx, a.Python, "-m", "coverage", "json", dataArg, "-o", out, "--ignore-errors")
	if err != nil {
		return Report{}, fmt.Errorf("coverage json: %w", err)
	}
	if res.ExitCode != 0 {
		return Report{}, fmt.Errorf("%w: coverage json exited %d: %s", ErrNoReport, res.ExitCode, res.Combined())
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return Report{}, fmt.Errorf("read coverage report: %w", err)
	}
	report, err := a.parse(data)
	if err != nil {
		return Report{}, err
	}

	a.last = &report
	a.Logger.Info("coverage measured", zap.Int("files", report.Len()), zap.Float64("percent", report.Percent()))
	return report, nil
}

func (a *Analyzer) parse(data []byte) (Report, error) {
	var raw jsonReport
	if err := json.Unmarshal(data, &raw); err != nil {
		return Report{}, fmt.Errorf("parse coverage report: %w", err)
	}

	entries := make([]FileReport, 0, len(raw.Files))
	for name, f := range raw.Files {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(a.Root, path)
		}
		stmts := f.Summary.NumStatements
		if stmts == 0 {
			stmts = len(f.ExecutedLines) + len(f.MissingLines)
		}
		var pct float64
		if stmts > 0 {
			pct = float64(stmts-len(f.MissingLines)) / float64(stmts) * 100
		}
		entries = append(entries, FileReport{
			Path:       filepath.Clean(path),
			Percent:    pct,
			Statements: stmts,
			Uncovered:  f.MissingLines,
		})
	}
	return NewReport(entries), nil
}

// UncoveredLines returns the ascending uncovered lines of file from the last measurement.
func (a *Analyzer) UncoveredLines(file string) ([]int, error) {
	if a.last == nil {
		return nil, ErrNoReport
	}
	fr, ok := a.last.Lookup(file)
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoReport, file)
	}
	return fr.Uncovered, nil
}
