package coverage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scaliseraoul/ambrogio/internal/tools"
)

type fakeRunner struct {
	calls   [][]string
	report  string
	runExit int
	jsonErr bool
}

func (f *fakeRunner) Exec(_ context.Context, command string, args ...string) (tools.ExecResult, error) {
	f.calls = append(f.calls, append([]string{command}, args...))
	if len(args) >= 3 && args[2] == "json" {
		if f.jsonErr {
			return tools.ExecResult{ExitCode: 1, Stderr: "No data to report."}, nil
		}
		for i, a := range args {
			if a == "-o" {
				if err := os.WriteFile(args[i+1], []byte(f.report), 0o644); err != nil {
					return tools.ExecResult{}, err
				}
			}
		}
	}
	if len(args) >= 3 && args[2] == "run" {
		return tools.ExecResult{ExitCode: f.runExit}, nil
	}
	return tools.ExecResult{}, nil
}

const coverageJSON = `{
  "meta": {"version": "7.4.0"},
  "files": {
    "pkg/calc.py": {
      "executed_lines": [1, 2, 5],
      "missing_lines": [6, 3, 4],
      "summary": {"covered_lines": 3, "num_statements": 6}
    },
    "pkg/__init__.py": {
      "executed_lines": [],
      "missing_lines": [],
      "summary": {"covered_lines": 0, "num_statements": 0}
    },
    "ABS": {
      "executed_lines": [1, 2, 3, 4],
      "missing_lines": [],
      "summary": {"covered_lines": 4, "num_statements": 4}
    }
  }
}`

func TestAnalyzerMeasure(t *testing.T) {
	root := t.TempDir()
	abs := filepath.Join(root, "util.py")
	runner := &fakeRunner{report: strings.Replace(coverageJSON, "ABS", abs, 1), runExit: 1}
	a := NewAnalyzer(root, "", runner, nil)

	report, err := a.Measure(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.Len())

	calc, ok := report.Lookup(filepath.Join(root, "pkg", "calc.py"))
	require.True(t, ok)
	require.InDelta(t, 50.0, calc.Percent, 1e-9)
	require.Equal(t, []int{3, 4, 6}, calc.Uncovered)

	util, ok := report.Lookup(abs)
	require.True(t, ok)
	require.InDelta(t, 100.0, util.Percent, 1e-9)

	lines, err := a.UncoveredLines(filepath.Join(root, "pkg", "calc.py"))
	require.NoError(t, err)
	require.Equal(t, []int{3, 4, 6}, lines)

	_, err = a.UncoveredLines(filepath.Join(root, "missing.py"))
	require.True(t, errors.Is(err, ErrNoReport))

	require.Len(t, runner.calls, 3)
	require.Equal(t, []string{"python3", "-m", "coverage", "erase", "--data-file=" + filepath.Join(root, ".coverage")}, runner.calls[0])
	require.Contains(t, runner.calls[1], "--source="+root)
	require.Contains(t, runner.calls[1], "pytest")
}

func TestAnalyzerMeasureIsRepeatable(t *testing.T) {
	root := t.TempDir()
	runner := &fakeRunner{report: strings.Replace(coverageJSON, "ABS", filepath.Join(root, "u.py"), 1)}
	a := NewAnalyzer(root, "python", runner, nil)

	first, err := a.Measure(context.Background())
	require.NoError(t, err)
	second, err := a.Measure(context.Background())
	require.NoError(t, err)
	require.Equal(t, first.Files(), second.Files())
	require.Len(t, runner.calls, 6)
}

func TestAnalyzerNoData(t *testing.T) {
	a := NewAnalyzer(t.TempDir(), "", &fakeRunner{jsonErr: true}, nil)
	_, err := a.Measure(context.Background())
	require.True(t, errors.Is(err, ErrNoReport))

	_, err = a.UncoveredLines("x.py")
	require.True(t, errors.Is(err, ErrNoReport))
}

func TestAnalyzerBadJSON(t *testing.T) {
	a := NewAnalyzer(t.TempDir(), "", &fakeRunner{report: "{not json"}, nil)
	_, err := a.Measure(context.Background())
	require.Error(t, err)
}
