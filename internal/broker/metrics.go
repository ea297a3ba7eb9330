package broker

import (
	"time"

	"github.com/atinyakov/keeperbridge/internal/message"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the broker's prometheus collectors.
type Metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keeperbridge",
			Subsystem: "broker",
			Name:      "requests_total",
			Help:      "Dispatched envelopes by action and outcome.",
		}, []string{"action", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "keeperbridge",
			Subsystem: "broker",
			Name:      "handler_duration_seconds",
			Help:      "Handler latency by action.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
	}
	reg.MustRegister(m.requests, m.latency)
	return m
}

func (m *Metrics) observe(action message.Action, code message.Code, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if code != "" {
		outcome = string(code)
	}
	m.requests.WithLabelValues(string(action), outcome).Inc()
	if code != message.CodeUnknownAction {
		m.latency.WithLabelValues(string(action)).Observe(d.Seconds())
	}
}
