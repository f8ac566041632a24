package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialogMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	active := 3
	m := NewDialogMetrics(reg, func() int { return active })

	m.RecordTurn("needs_input")
	m.RecordTurn("needs_input")
	m.RecordFailure("upstream_timeout")
	m.RecordGeneration("turn", "ok", 1500*time.Millisecond)
	m.RecordEvictions("idle", 2)
	m.RecordEvictions("idle", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.turns.WithLabelValues("needs_input")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("upstream_timeout")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.evictions.WithLabelValues("idle")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.generation))

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "invoicebot_dialog_active_sessions" {
			found = true
			assert.Equal(t, 3.0, f.GetMetric()[0].GetGauge().GetValue())
		}
	}
	assert.True(t, found, "active sessions gauge not registered")
}

func TestNilDialogMetricsIsNoop(t *testing.T) {
	var m *DialogMetrics
	assert.NotPanics(t, func() {
		m.RecordTurn("failed")
		m.RecordFailure("session_busy")
		m.RecordGeneration("finalize", "timeout", time.Second)
		m.RecordEvictions("completed", 1)
	})
}
