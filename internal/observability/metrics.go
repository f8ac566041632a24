package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "invoicebot"

// DialogMetrics groups the collectors for the dialog controller. A nil
// *DialogMetrics is valid and records nothing.
type DialogMetrics struct {
	turns      *prometheus.CounterVec
	failures   *prometheus.CounterVec
	generation *prometheus.HistogramVec
	evictions  *prometheus.CounterVec
}

// NewDialogMetrics registers the dialog collectors on reg. activeSessions,
// when non-nil, backs the active session gauge.
func NewDialogMetrics(reg prometheus.Registerer, activeSessions func() int) *DialogMetrics {
	factory := promauto.With(reg)

	m := &DialogMetrics{
		// Labels: outcome (needs_input, invoice_ready, failed)
		turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dialog",
			Name:      "turns_total",
			Help:      "Dialog turns processed by outcome",
		}, []string{"outcome"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dialog",
			Name:      "failures_total",
			Help:      "Failed dialog turns by failure kind",
		}, []string{"kind"}),
		// Labels: stage (turn, finalize), status (ok, contract_violation, timeout, unavailable)
		generation: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Model generation latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"stage", "status"}),
		evictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dialog",
			Name:      "evictions_total",
			Help:      "Sessions removed from the store by reason",
		}, []string{"reason"}),
	}

	if activeSessions != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dialog",
			Name:      "active_sessions",
			Help:      "Sessions currently held in the store",
		}, func() float64 { return float64(activeSessions()) })
	}
	return m
}

func (m *DialogMetrics) RecordTurn(outcome string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
}

func (m *DialogMetrics) RecordFailure(kind string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(kind).Inc()
}

// RecordGeneration observes one model call.
func (m *DialogMetrics) RecordGeneration(stage, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.generation.WithLabelValues(stage, status).Observe(elapsed.Seconds())
}

func (m *DialogMetrics) RecordEvictions(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evictions.WithLabelValues(reason).Add(float64(n))
}
