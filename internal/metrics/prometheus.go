package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors are the Prometheus series exported at /metrics.
type Collectors struct {
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	CostUSD         prometheus.Counter
	InFlight        prometheus.Gauge
	ActiveSessions  prometheus.Gauge
}

// NewCollectors registers the collectors with reg. Passing
// prometheus.DefaultRegisterer exposes them through promhttp.Handler.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	f := promauto.With(reg)
	return &Collectors{
		Requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mamabear_requests_total",
				Help: "Total number of chat requests by provider, routing kind and fallback use",
			},
			[]string{"provider", "kind", "fallback"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mamabear_request_duration_seconds",
				Help:    "End-to-end provider execution time in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"provider"},
		),
		CostUSD: f.NewCounter(
			prometheus.CounterOpts{
				Name: "mamabear_cost_usd_total",
				Help: "Estimated spend in USD across all providers",
			},
		),
		InFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "mamabear_requests_in_flight",
				Help: "Chat requests currently holding an admission slot",
			},
		),
		ActiveSessions: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "mamabear_active_sessions",
				Help: "Number of collaborative sessions",
			},
		),
	}
}
