package interceptor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeAudited = "audited"
	outcomeSkipped = "skipped"
	outcomeFailed  = "failed"
)

// Metrics counts requests seen by the interceptor.
type Metrics struct {
	Requests *prometheus.CounterVec
}

// NewMetrics registers interceptor metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "schooladmin_audit_intercepted_requests_total",
			Help: "Requests observed by the audit interceptor, by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) inc(outcome string) {
	if m != nil {
		m.Requests.WithLabelValues(outcome).Inc()
	}
}
