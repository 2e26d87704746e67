// Package pipeline runs the coverage feedback loop: measure, generate a test, execute it and repair
// it from the failure output until it passes or the attempt budget is spent.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/scaliseraoul/ambrogio/internal/coverage"
	"github.com/scaliseraoul/ambrogio/internal/generator"
	"github.com/scaliseraoul/ambrogio/internal/logging"
	"github.com/scaliseraoul/ambrogio/internal/observability"
	"github.com/scaliseraoul/ambrogio/internal/pysrc"
	"github.com/scaliseraoul/ambrogio/internal/testrunner"
)

// ErrArtifactIO wraps failures to read the target or write the generated test file.
var ErrArtifactIO = errors.New("artifact i/o")

// CoverageSource measures the project afresh on every call.
type CoverageSource interface {
	Measure(ctx context.Context) (coverage.Report, error)
}

// TestGenerator writes or repairs a pytest file.
type TestGenerator interface {
	GenerateTest(ctx context.Context, req generator.TestRequest) (string, error)
}

// Executor runs one generated test file.
type Executor interface {
	Run(ctx context.Context, artifact string) (testrunner.Result, error)
}

// Recorder receives loop metrics.
type Recorder interface {
	RecordGenerationAttempt()
	RecordTestRun(passed bool)
	RecordLoopOutcome(outcome string)
}

// Options configure a Loop.
type Options struct {
	MaxIterations int    // values below 1 allow a single attempt
	Root          string // repository root; test directories are only recognised below it
	Selector      coverage.Selector
	Metrics       Recorder
	Logger        *zap.Logger
	Tracer        trace.Tracer
	OnTransition  func(from, to State, s *Session)
}

// Loop drives one session at a time. It is not safe for concurrent use.
type Loop struct {
	coverage CoverageSource
	gen      TestGenerator
	exec     Executor
	opts     Options
	logger   *zap.Logger
	tracer   trace.Tracer
}

// New constructs a Loop.
func New(cov CoverageSource, gen TestGenerator, exec Executor, opts Options) *Loop {
	if opts.MaxIterations < 1 {
		opts.MaxIterations = 1
	}
	if opts.Selector == nil {
		opts.Selector = coverage.LowestSelector{}
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = observability.Tracer()
	}
	return &Loop{
		coverage: cov,
		gen:      gen,
		exec:     exec,
		opts:     opts,
		logger:   logging.OrNop(opts.Logger),
		tracer:   tracer,
	}
}

// Run executes one session from coverage analysis to a terminal state. Failures never escape as
// errors; they end the session in CleanupAndFail and are described by Result.Reason.
func (l *Loop) Run(ctx context.Context) Result {
	s := newSession()
	ctx, span := l.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("session.id", s.ID.String()),
		attribute.Int("max_iterations", l.opts.MaxIterations),
	))
	defer span.End()

	logger := l.logger.With(zap.String("session", s.ID.String()))
	state := StateAnalyzeCoverage
	for {
		next := l.step(ctx, logger, s, state)
		if state.Terminal() {
			break
		}
		if !canTransition(state, next) {
			logger.Error("invalid transition", zap.Stringer("from", state), zap.Stringer("to", next))
			s.Reason = fmt.Sprintf("invalid transition %s -> %s", state, next)
			next = StateCleanupAndFail
		}
		logger.Debug("transition", zap.Stringer("from", state), zap.Stringer("to", next), zap.Int("attempt", s.Attempts))
		if l.opts.OnTransition != nil {
			l.opts.OnTransition(state, next, s)
		}
		state = next
	}

	if l.opts.Metrics != nil {
		l.opts.Metrics.RecordLoopOutcome(s.Outcome.String())
	}
	span.SetAttributes(
		attribute.String("outcome", s.Outcome.String()),
		attribute.Int("attempts", s.Attempts),
		attribute.String("target", s.Target),
	)
	if s.Outcome != OutcomeSucceeded {
		span.SetStatus(codes.Error, s.Reason)
	}

	res := Result{
		SessionID: s.ID.String(),
		Success:   s.Outcome == OutcomeSucceeded,
		Attempts:  s.Attempts,
		Target:    s.Target,
		Range:     s.Range,
		Reason:    s.Reason,
	}
	if res.Success {
		res.ArtifactPath = s.ArtifactPath
	}
	return res
}

// step performs the work of state and returns the state to move to. Terminal states return themselves.
func (l *Loop) step(ctx context.Context, logger *zap.Logger, s *Session, state State) State {
	ctx, span := l.tracer.Start(ctx, "pipeline."+state.String(),
		trace.WithAttributes(attribute.Int("attempt", s.Attempts)))
	defer span.End()

	var next State
	switch state {
	case StateAnalyzeCoverage:
		next = l.analyze(ctx, logger, s)
	case StateGenerateArtifact:
		next = l.generate(ctx, logger, s)
	case StateExecuteArtifact:
		next = l.execute(ctx, logger, s)
	case StateCleanupAndFail:
		l.cleanup(logger, s)
		next = state
	case StateDone:
		if err := s.settle(OutcomeSucceeded); err != nil {
			logger.Error("settle session", zap.Error(err))
		}
		logger.Info("test generated", zap.String("artifact", s.ArtifactPath), zap.Int("attempts", s.Attempts))
		next = state
	default:
		s.Reason = fmt.Sprintf("unknown state %s", state)
		next = StateCleanupAndFail
	}

	if next == StateCleanupAndFail && state != StateCleanupAndFail {
		span.SetStatus(codes.Error, s.Reason)
	}
	return next
}

func (l *Loop) analyze(ctx context.Context, logger *zap.Logger, s *Session) State {
	report, err := l.coverage.Measure(ctx)
	if err != nil {
		s.Reason = fmt.Sprintf("measure coverage: %v", err)
		return StateCleanupAndFail
	}

	target, ok := l.opts.Selector.Select(report.Filter(func(fr coverage.FileReport) bool {
		return isSourceFile(l.opts.Root, fr.Path)
	}))
	if !ok {
		s.Reason = "coverage report has no source files"
		return StateCleanupAndFail
	}
	s.Target = target.Path
	s.Uncovered = target.Uncovered
	logger.Info("target selected", zap.String("file", target.Path), zap.Float64("percent", target.Percent))

	if len(s.Uncovered) == 0 {
		s.Reason = fmt.Sprintf("%s has no uncovered lines", target.Path)
		return StateCleanupAndFail
	}

	src, err := os.ReadFile(target.Path)
	if err != nil {
		s.Reason = fmt.Errorf("%w: read %s: %w", ErrArtifactIO, target.Path, err).Error()
		return StateCleanupAndFail
	}
	s.Source = string(src)
	s.ArtifactPath = artifactPath(target.Path)
	return StateGenerateArtifact
}

func (l *Loop) generate(ctx context.Context, logger *zap.Logger, s *Session) State {
	s.Attempts++
	if l.opts.Metrics != nil {
		l.opts.Metrics.RecordGenerationAttempt()
	}

	s.Range, _ = coverage.LongestRun(s.Uncovered)
	req := generator.TestRequest{
		SourcePath: s.Target,
		Source:     s.Source,
		Target:     s.Range,
		Context:    l.promptContext(ctx, s),
	}
	if s.LastError != "" {
		req.PriorArtifact = s.ArtifactContent
		req.PriorError = s.LastError
	}
	logger.Info("generating test",
		zap.Int("attempt", s.Attempts),
		zap.Stringer("lines", s.Range),
		zap.Bool("repair", req.Repair()),
	)

	content, err := l.gen.GenerateTest(ctx, req)
	if err != nil {
		s.Reason = err.Error()
		return StateCleanupAndFail
	}
	if err := writeArtifact(s.ArtifactPath, content); err != nil {
		s.Reason = err.Error()
		return StateCleanupAndFail
	}
	s.ArtifactContent = content
	s.LastError = ""
	return StateExecuteArtifact
}

// promptContext collects the definitions around the targeted lines. A file that does not parse is sent whole.
func (l *Loop) promptContext(ctx context.Context, s *Session) []pysrc.Context {
	f, err := pysrc.Parse(ctx, []byte(s.Source))
	if err != nil {
		return nil
	}
	defer f.Close()
	return f.ContextFor(s.Range.Lines())
}

func (l *Loop) execute(ctx context.Context, logger *zap.Logger, s *Session) State {
	res, err := l.exec.Run(ctx, s.ArtifactPath)
	if err != nil {
		s.Reason = fmt.Sprintf("run generated test: %v", err)
		return StateCleanupAndFail
	}
	if l.opts.Metrics != nil {
		l.opts.Metrics.RecordTestRun(res.Passed())
	}
	if res.Passed() {
		return StateDone
	}

	failure := &testrunner.ExecutionError{Result: res}
	s.LastError = res.ErrorText()
	logger.Warn("generated test failed", zap.Int("attempt", s.Attempts), zap.Error(failure))

	if s.Attempts >= l.opts.MaxIterations {
		s.Reason = fmt.Sprintf("%v after %d attempts", failure, s.Attempts)
		return StateCleanupAndFail
	}
	return StateGenerateArtifact
}

func (l *Loop) cleanup(logger *zap.Logger, s *Session) {
	if s.ArtifactPath != "" {
		if err := os.Remove(s.ArtifactPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("remove artifact", zap.String("artifact", s.ArtifactPath), zap.Error(err))
		}
	}
	if err := s.settle(OutcomeFailed); err != nil {
		logger.Error("settle session", zap.Error(err))
	}
	logger.Error("coverage loop failed", zap.String("target", s.Target), zap.String("reason", s.Reason))
}

// artifactPath places the test next to the source under tests/. Existing files are never reused:
// when test_<file> is taken the first free test_<stem>_generated[_N].py is chosen.
func artifactPath(source string) string {
	dir := filepath.Join(filepath.Dir(source), "tests")
	base := filepath.Base(source)
	path := filepath.Join(dir, "test_"+base)
	if !exists(path) {
		return path
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	path = filepath.Join(dir, "test_"+stem+"_generated.py")
	for n := 2; exists(path); n++ {
		path = filepath.Join(dir, fmt.Sprintf("test_%s_generated_%d.py", stem, n))
	}
	return path
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// writeArtifact fully writes and syncs content before returning; the file is closed on every path.
func writeArtifact(path, content string) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrArtifactIO, filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrArtifactIO, path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close %s: %w", ErrArtifactIO, path, cerr)
		}
	}()
	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrArtifactIO, path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %w", ErrArtifactIO, path, err)
	}
	return nil
}

// isSourceFile excludes test modules and conftest.py from target selection. Directory names are
// checked relative to root, so a checkout that itself lives under a tests directory still qualifies.
func isSourceFile(root, path string) bool {
	base := filepath.Base(path)
	if base == "conftest.py" || strings.HasPrefix(base, "test_") || strings.HasSuffix(base, "_test.py") {
		return false
	}
	dir := filepath.Dir(path)
	if root != "" {
		if rel, err := filepath.Rel(root, dir); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			dir = rel
		}
	}
	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == "tests" {
			return false
		}
	}
	return true
}
