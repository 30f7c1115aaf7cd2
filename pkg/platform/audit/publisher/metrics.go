package publisher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for audit persistence.
type Metrics struct {
	Emitted               prometheus.Counter
	PersistFailures       prometheus.Counter
	CircuitBreakerDropped prometheus.Counter
	PersistDuration       prometheus.Histogram
	InFlight              prometheus.Gauge
	CircuitBreakerState   prometheus.Gauge
}

// NewMetrics registers publisher metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Emitted: f.NewCounter(prometheus.CounterOpts{
			Name: "schooladmin_audit_records_emitted_total",
			Help: "Total number of audit records successfully persisted",
		}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "schooladmin_audit_persist_failures_total",
			Help: "Total number of audit record persistence failures",
		}),
		CircuitBreakerDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "schooladmin_audit_circuit_breaker_dropped_total",
			Help: "Total number of audit records skipped while the circuit breaker was open",
		}),
		PersistDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "schooladmin_audit_persist_duration_seconds",
			Help:    "Latency of audit record writes",
			Buckets: prometheus.DefBuckets,
		}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "schooladmin_audit_async_in_flight",
			Help: "Number of detached audit writes not yet completed",
		}),
		CircuitBreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "schooladmin_audit_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
	}
}

func (m *Metrics) IncEmitted() {
	if m != nil {
		m.Emitted.Inc()
	}
}

func (m *Metrics) IncPersistFailures() {
	if m != nil {
		m.PersistFailures.Inc()
	}
}

func (m *Metrics) IncCircuitBreakerDropped() {
	if m != nil {
		m.CircuitBreakerDropped.Inc()
	}
}

func (m *Metrics) ObservePersistDuration(seconds float64) {
	if m != nil {
		m.PersistDuration.Observe(seconds)
	}
}

func (m *Metrics) AddInFlight(delta float64) {
	if m != nil {
		m.InFlight.Add(delta)
	}
}

// SetCircuitBreakerState sets the circuit breaker state gauge.
func (m *Metrics) SetCircuitBreakerState(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitBreakerState.Set(1)
	} else {
		m.CircuitBreakerState.Set(0)
	}
}
