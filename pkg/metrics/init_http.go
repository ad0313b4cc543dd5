package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Routes are registered mux patterns, never raw paths, so the label set
// stays bounded.
func (r *Registry) initHTTPMetrics() {
	labels := []string{"method", "route", "status"}

	r.HTTPRequestsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "hazard_http_requests_total",
			Help: "Requests served by the query endpoint",
		},
		labels,
	)

	r.HTTPRequestDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hazard_http_request_duration_seconds",
			Help:    "Time to serve a request in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		labels,
	)

	r.HTTPRequestsInFlight = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "hazard_http_requests_in_flight",
			Help: "Requests currently being served",
		},
	)
}
