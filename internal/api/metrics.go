package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics
var (
	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "packet_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method", "endpoint"})

	claimResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "packet_claim_results_total",
		Help: "Claim attempts by terminal outcome",
	}, []string{"outcome"})
)
