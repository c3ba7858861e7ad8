// Package metrics provides Prometheus instrumentation for the session
// service: store operation counters and latencies, session lifecycle
// counters and HTTP request counts.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// StoreOperations counts store calls by backend, operation and result
	// ("ok", "miss", "conflict", "exists", "error").
	StoreOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_store_operations_total",
		Help: "Total number of session store operations",
	}, []string{"backend", "op", "result"})

	// StoreLatency records store call latency in seconds.
	StoreLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "session_store_operation_duration_seconds",
		Help:    "Session store operation latency in seconds",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"backend", "op"})

	// SessionsCreated counts created sessions.
	SessionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessions_created_total",
		Help: "Total number of sessions created",
	})

	// SessionsRevoked counts ended sessions by reason
	// ("revoked", "revoked_user", "expired", "evicted", "unreadable").
	SessionsRevoked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sessions_revoked_total",
		Help: "Total number of sessions ended before their TTL",
	}, []string{"reason"})

	// HTTPRequests counts HTTP requests by method, route template and status.
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})
)

func init() {
	prometheus.MustRegister(
		StoreOperations,
		StoreLatency,
		SessionsCreated,
		SessionsRevoked,
		HTTPRequests,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
