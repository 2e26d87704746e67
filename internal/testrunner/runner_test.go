package testrunner

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scaliseraoul/ambrogio/internal/tools"
)

const junitSuites = `<?xml version="1.0" encoding="utf-8"?>
<testsuites><testsuite name="pytest" errors="1" failures="1" tests="3">
<testcase classname="tests.test_calc" name="test_add" time="0.001"/>
<testcase classname="tests.test_calc" name="test_div" time="0.001"><failure message="ZeroDivisionError: division by zero">def test_div():
&gt;       assert div(1, 0) == 0
E       ZeroDivisionError: division by zero</failure></testcase>
<testcase classname="" name="tests.test_calc" time="0.0"><error message="collection failure">ImportError: cannot import name 'mul'</error></testcase>
</testsuite></testsuites>`

const junitSuite = `<testsuite name="pytest"><testcase classname="t" name="test_x"><failure message="assert 1 == 2">tb</failure></testcase></testsuite>`

func TestParseJUnit(t *testing.T) {
	failures, err := parseJUnit([]byte(junitSuites))
	require.NoError(t, err)
	require.Len(t, failures, 2)
	require.Equal(t, "tests.test_calc.test_div", failures[0].Test)
	require.Equal(t, "ZeroDivisionError: division by zero", failures[0].Message)
	require.Contains(t, failures[0].Traceback, "> ")
	require.Equal(t, "tests.test_calc", failures[1].Test)
	require.Equal(t, "collection failure", failures[1].Message)

	failures, err = parseJUnit([]byte(junitSuite))
	require.NoError(t, err)
	require.Equal(t, []Failure{{Test: "t.test_x", Message: "assert 1 == 2", Traceback: "tb"}}, failures)

	_, err = parseJUnit([]byte("<nope"))
	require.Error(t, err)
}

func TestScrapeFailures(t *testing.T) {
	out := `F.
=========================== short test summary info ============================
FAILED tests/test_calc.py::test_div - ZeroDivisionError: division by zero
FAILED tests/test_calc.py::test_div - ZeroDivisionError: division by zero
ERROR tests/test_other.py
1 failed, 1 passed in 0.01s`
	require.Equal(t, []Failure{
		{Test: "tests/test_calc.py::test_div", Message: "ZeroDivisionError: division by zero"},
		{Test: "tests/test_other.py"},
	}, scrapeFailures(out))
}

func TestErrorText(t *testing.T) {
	r := Result{ExitCode: 1, Failures: []Failure{
		{Test: "t.test_a", Message: "assert 1 == 2", Traceback: "  line 3\n"},
		{Message: "boom"},
	}}
	require.Equal(t, "Error: t.test_a: assert 1 == 2\nTraceback:\nline 3\n\nError: boom", r.ErrorText())

	require.Equal(t, "some output", Result{ExitCode: 2, Output: "some output\n"}.ErrorText())
	require.Equal(t, "Error: pytest exited with status 4", Result{ExitCode: 4}.ErrorText())

	long := Result{ExitCode: 1, Output: strings.Repeat("x", maxOutputTail+10)}
	require.True(t, strings.HasPrefix(long.ErrorText(), "..."))
	require.Len(t, long.ErrorText(), maxOutputTail+3)

	err := &ExecutionError{Result: r}
	require.Equal(t, "generated test failed (exit 1): Error: t.test_a: assert 1 == 2", err.Error())
}

type fakeExec struct {
	args   []string
	exit   int
	junit  string
	output string
	err    error
}

func (f *fakeExec) Exec(_ context.Context, command string, args ...string) (tools.ExecResult, error) {
	f.args = append([]string{command}, args...)
	if f.err != nil {
		return tools.ExecResult{}, f.err
	}
	for _, a := range args {
		if strings.HasPrefix(a, "--junitxml=") && f.junit != "" {
			if err := os.WriteFile(strings.TrimPrefix(a, "--junitxml="), []byte(f.junit), 0o644); err != nil {
				return tools.ExecResult{}, err
			}
		}
	}
	return tools.ExecResult{ExitCode: f.exit, Stdout: f.output}, nil
}

func TestRunPassing(t *testing.T) {
	fx := &fakeExec{output: "1 passed"}
	res, err := New("", fx, nil).Run(context.Background(), "/repo/pkg/tests/test_calc.py")
	require.NoError(t, err)
	require.True(t, res.Passed())
	require.Empty(t, res.Failures)
	require.Equal(t, "python3", fx.args[0])
	require.Contains(t, fx.args, "/repo/pkg/tests/test_calc.py")
	require.Contains(t, fx.args, "pythonpath=/repo/pkg")
}

func TestRunFailingUsesJUnit(t *testing.T) {
	fx := &fakeExec{exit: 1, junit: junitSuite, output: "FAILED t::test_x - ignored"}
	res, err := New("python", fx, nil).Run(context.Background(), "/r/tests/test_x.py")
	require.NoError(t, err)
	require.False(t, res.Passed())
	require.Equal(t, "t.test_x", res.Failures[0].Test)
}

func TestRunFailingFallsBackToOutput(t *testing.T) {
	fx := &fakeExec{exit: 1, output: "FAILED tests/test_x.py::test_y - assert False"}
	res, err := New("python", fx, nil).Run(context.Background(), "/r/tests/test_x.py")
	require.NoError(t, err)
	require.Equal(t, []Failure{{Test: "tests/test_x.py::test_y", Message: "assert False"}}, res.Failures)
}

func TestRunCannotStart(t *testing.T) {
	fx := &fakeExec{err: errors.New("exec: python: not found")}
	_, err := New("python", fx, nil).Run(context.Background(), "/r/tests/test_x.py")
	require.Error(t, err)
}

func requirePytest(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	if err := exec.Command("python3", "-m", "pytest", "--version").Run(); err != nil {
		t.Skip("pytest not available")
	}
}

func TestRunRealPytest(t *testing.T) {
	requirePytest(t)

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "calc.py"), []byte("def add(a, b):\n    return a + b\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "tests"), 0o755))
	artifact := filepath.Join(root, "tests", "test_calc.py")

	runner := New("python3", &tools.Terminal{WorkingDir: root, Timeout: time.Minute}, nil)

	require.NoError(t, os.WriteFile(artifact, []byte("from calc import *\n\ndef test_add():\n    assert add(1, 2) == 3\n"), 0o644))
	res, err := runner.Run(context.Background(), artifact)
	require.NoError(t, err)
	require.True(t, res.Passed(), res.Output)

	require.NoError(t, os.WriteFile(artifact, []byte("from calc import *\n\ndef test_add():\n    assert add(1, 2) == 4\n"), 0o644))
	res, err = runner.Run(context.Background(), artifact)
	require.NoError(t, err)
	require.False(t, res.Passed())
	require.NotEmpty(t, res.Failures)
	require.Contains(t, res.ErrorText(), "assert")
}
