package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for audit queries and retention.
type Metrics struct {
	// Query latency by operation: list, list_mine, stats
	QueryLatency *prometheus.HistogramVec

	// Records removed by retention purges
	PurgedRecords prometheus.Counter

	// Scheduled purge runs by outcome
	ScheduledPurges *prometheus.CounterVec
}

// New registers the audit module metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		QueryLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "schooladmin_audit_query_duration_seconds",
			Help:    "Duration of audit trail queries by operation",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),

		PurgedRecords: f.NewCounter(prometheus.CounterOpts{
			Name: "schooladmin_audit_purged_records_total",
			Help: "Total audit records deleted by retention purges",
		}),

		ScheduledPurges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "schooladmin_audit_scheduled_purges_total",
			Help: "Scheduled retention purge runs by outcome",
		}, []string{"outcome"}),
	}
}

// ObserveQueryLatency records the duration of a query operation.
func (m *Metrics) ObserveQueryLatency(op string, d time.Duration) {
	if m != nil {
		m.QueryLatency.WithLabelValues(op).Observe(d.Seconds())
	}
}

func (m *Metrics) AddPurged(n int64) {
	if m != nil && n > 0 {
		m.PurgedRecords.Add(float64(n))
	}
}

// IncScheduledPurge records a scheduled purge outcome: "ok" or "error".
func (m *Metrics) IncScheduledPurge(outcome string) {
	if m != nil {
		m.ScheduledPurges.WithLabelValues(outcome).Inc()
	}
}
