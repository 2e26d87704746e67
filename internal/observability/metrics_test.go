package observability

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordersUpdateCollectors(t *testing.T) {
	m := NewMetrics()

	m.RecordLLMCall("test", 50*time.Millisecond, nil)
	m.RecordLLMCall("test", time.Second, errors.New("boom"))
	m.RecordLLMCall("", time.Millisecond, nil)
	m.RecordGenerationAttempt()
	m.RecordGenerationAttempt()
	m.RecordTestRun(true)
	m.RecordTestRun(false)
	m.RecordLoopOutcome("succeeded")
	m.RecordDocstringsInserted(3)
	m.RecordDocstringsInserted(0)

	require.Equal(t, 1.0, testutil.ToFloat64(m.LLMCalls.WithLabelValues("test", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.LLMCalls.WithLabelValues("test", "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.LLMCalls.WithLabelValues("unknown", "ok")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.GenerationAttempts))
	require.Equal(t, 1.0, testutil.ToFloat64(m.TestRuns.WithLabelValues("passed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.TestRuns.WithLabelValues("failed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.LoopRuns.WithLabelValues("succeeded")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.DocstringsInserted))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.RecordLLMCall("docstring", time.Second, nil)
		m.RecordGenerationAttempt()
		m.RecordTestRun(true)
		m.RecordLoopOutcome("failed")
		m.RecordDocstringsInserted(1)
	})
	require.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "m.prom")))
}

func TestWriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.RecordLoopOutcome("failed")

	path := filepath.Join(t.TempDir(), "ambrogio.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `ambrogio_loop_runs_total{outcome="failed"} 1`)
}
