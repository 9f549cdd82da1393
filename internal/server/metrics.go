package server

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics, grounded on orchestrator/run.go's package-level
// CounterVec/HistogramVec declarations plus init()-time registration.
var (
	promRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consensusd_requests_total",
			Help: "Total number of requests processed by the router, by route and outcome",
		},
		[]string{"route", "status"},
	)
	promRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "consensusd_request_duration_milliseconds",
			Help:    "Request duration in milliseconds, by route",
			Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 30000},
		},
		[]string{"route"},
	)
	promInflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "consensusd_inflight_requests",
			Help: "Requests currently being processed",
		},
	)
	promOverloadedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "consensusd_overloaded_total",
			Help: "Requests rejected because max_inflight_requests was reached",
		},
	)
)

func init() {
	prometheus.MustRegister(promRequestsTotal)
	prometheus.MustRegister(promRequestDuration)
	prometheus.MustRegister(promInflightRequests)
	prometheus.MustRegister(promOverloadedTotal)
}
