// Package testrunner executes a single generated pytest file and reports its failures.
package testrunner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/scaliseraoul/ambrogio/internal/logging"
	"github.com/scaliseraoul/ambrogio/internal/tools"
)

// maxOutputTail bounds how much raw output ErrorText falls back to.
const maxOutputTail = 4000

// Failure is one failing or erroring test.
type Failure struct {
	Test      string
	Message   string
	Traceback string
}

// Result is the outcome of running one artifact. Output holds the captured stdout and stderr.
type Result struct {
	ExitCode int
	Failures []Failure
	Output   string
}

// Passed reports whether pytest exited with status zero.
func (r Result) Passed() bool {
	return r.ExitCode == 0
}

// ErrorText renders the failures as "Error: <msg>\nTraceback:\n<tb>" blocks, or the tail of the
// output when nothing structured was reported.
func (r Result) ErrorText() string {
	if len(r.Failures) == 0 {
		out := strings.TrimSpace(r.Output)
		if len(out) > maxOutputTail {
			out = "..." + out[len(out)-maxOutputTail:]
		}
		if out == "" {
			return fmt.Sprintf("Error: pytest exited with status %d", r.ExitCode)
		}
		return out
	}

	blocks := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		msg := f.Message
		if f.Test != "" {
			msg = f.Test + ": " + msg
		}
		block := "Error: " + msg
		if tb := strings.TrimSpace(f.Traceback); tb != "" {
			block += "\nTraceback:\n" + tb
		}
		blocks = append(blocks, block)
	}
	return strings.Join(blocks, "\n\n")
}

// ExecutionError reports a generated artifact that ran but failed.
type ExecutionError struct {
	Result Result
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("generated test failed (exit %d): %s", e.Result.ExitCode, firstLine(e.Result.ErrorText()))
}

// Runner runs pytest on a single artifact.
type Runner struct {
	Python string
	Exec   tools.Runner
	Logger *zap.Logger
}

// New constructs a Runner. python defaults to python3.
func New(python string, exec tools.Runner, logger *zap.Logger) *Runner {
	if python == "" {
		python = "python3"
	}
	return &Runner{Python: python, Exec: exec, Logger: logging.OrNop(logger)}
}

// Run executes the artifact and parses failures from a JUnit XML report, falling back to scraping the
// console output. The returned error is non-nil only when pytest could not be run at all; a failing
// test is reported through Result.
func (r *Runner) Run(ctx context.Context, artifact string) (Result, error) {
	tmp, err := os.CreateTemp("", "ambrogio-junit-*.xml")
	if err != nil {
		return Result{}, fmt.Errorf("create junit file: %w", err)
	}
	junit := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(junit)

	// the module under test lives in the directory above tests/
	srcDir := filepath.Dir(filepath.Dir(artifact))
	res, err := r.Exec.Exec(ctx, r.Python, "-m", "pytest", artifact, "-q", "-p", "no:cacheprovider",
		"-o", "pythonpath="+srcDir, "--junitxml="+junit)
	if err != nil {
		return Result{}, fmt.Errorf("run pytest on %s: %w", artifact, err)
	}

	result := Result{ExitCode: res.ExitCode, Output: res.Combined()}
	if result.Passed() {
		return result, nil
	}

	if data, err := os.ReadFile(junit); err == nil && len(data) > 0 {
		failures, perr := parseJUnit(data)
		if perr != nil {
			r.Logger.Debug("junit report unreadable", zap.Error(perr))
		}
		result.Failures = failures
	}
	if len(result.Failures) == 0 {
		result.Failures = scrapeFailures(result.Output)
	}
	r.Logger.Debug("artifact failed", zap.String("artifact", artifact), zap.Int("exit_code", res.ExitCode),
		zap.Int("failures", len(result.Failures)))
	return result, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
