package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for a single CLI invocation.
type Metrics struct {
	registry           *prometheus.Registry
	LLMCalls           *prometheus.CounterVec
	LLMDuration        *prometheus.HistogramVec
	GenerationAttempts prometheus.Counter
	TestRuns           *prometheus.CounterVec
	LoopRuns           *prometheus.CounterVec
	DocstringsInserted prometheus.Counter
}

// NewMetrics constructs a private registry with the ambrogio collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ambrogio_llm_calls_total",
		Help: "LLM completions by route and result",
	}, []string{"role", "result"})

	durs := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ambrogio_llm_call_duration_seconds",
		Help:    "LLM completion latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"role"})

	attempts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ambrogio_generation_attempts_total",
		Help: "Test artifacts generated by the coverage loop",
	})

	testRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ambrogio_test_runs_total",
		Help: "Generated test executions by result",
	}, []string{"result"})

	loops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ambrogio_loop_runs_total",
		Help: "Coverage loop sessions by outcome",
	}, []string{"outcome"})

	inserted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ambrogio_docstrings_inserted_total",
		Help: "Docstrings written into source files",
	})

	reg.MustRegister(calls, durs, attempts, testRuns, loops, inserted)

	return &Metrics{
		registry:           reg,
		LLMCalls:           calls,
		LLMDuration:        durs,
		GenerationAttempts: attempts,
		TestRuns:           testRuns,
		LoopRuns:           loops,
		DocstringsInserted: inserted,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile dumps the registry in text exposition format, for node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// RecordLLMCall records one completion and its latency.
func (m *Metrics) RecordLLMCall(role string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	if role == "" {
		role = "unknown"
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.LLMCalls.WithLabelValues(role, result).Inc()
	m.LLMDuration.WithLabelValues(role).Observe(duration.Seconds())
}

// RecordGenerationAttempt counts one generated test artifact.
func (m *Metrics) RecordGenerationAttempt() {
	if m == nil {
		return
	}
	m.GenerationAttempts.Inc()
}

// RecordTestRun records a pytest execution of a generated artifact.
func (m *Metrics) RecordTestRun(passed bool) {
	if m == nil {
		return
	}
	result := "failed"
	if passed {
		result = "passed"
	}
	m.TestRuns.WithLabelValues(result).Inc()
}

// RecordLoopOutcome records the terminal outcome of a coverage session.
func (m *Metrics) RecordLoopOutcome(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.LoopRuns.WithLabelValues(outcome).Inc()
}

// RecordDocstringsInserted adds n inserted docstrings.
func (m *Metrics) RecordDocstringsInserted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DocstringsInserted.Add(float64(n))
}
