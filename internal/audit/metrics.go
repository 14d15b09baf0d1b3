package audit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricEntriesWritten = "audit_entries_written_total"
	MetricEntriesFailed  = "audit_entries_failed_total"
	MetricEntriesDropped = "audit_entries_dropped_total"
)

// Metrics contains Prometheus metrics for the audit recorder.
// All operations are thread-safe.
type Metrics struct {
	entriesWritten prometheus.Counter
	entriesFailed  prometheus.Counter
	entriesDropped prometheus.Counter
}

// NewMetrics creates a Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a
// registry.
func NewMetrics() *Metrics {
	return &Metrics{
		entriesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricEntriesWritten,
			Help: "Total number of audit entries persisted",
		}),
		entriesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricEntriesFailed,
			Help: "Total number of audit entries whose persistence failed",
		}),
		entriesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricEntriesDropped,
			Help: "Total number of audit entries dropped because the queue was full",
		}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.entriesWritten,
		m.entriesFailed,
		m.entriesDropped,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) recordWritten() {
	if m != nil {
		m.entriesWritten.Inc()
	}
}

func (m *Metrics) recordFailed() {
	if m != nil {
		m.entriesFailed.Inc()
	}
}

func (m *Metrics) recordDropped() {
	if m != nil {
		m.entriesDropped.Inc()
	}
}
