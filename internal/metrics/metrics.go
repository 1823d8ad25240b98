// Package metrics provides Prometheus metrics for the any-bin gateway.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anybin_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "anybin_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Remote WebDAV metrics
	remoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anybin_remote_requests_total",
			Help: "Total requests issued to the remote WebDAV endpoint",
		},
		[]string{"operation", "status"},
	)

	remoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "anybin_remote_request_duration_seconds",
			Help:    "Remote WebDAV request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Cache gateway metrics
	cacheEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anybin_cache_events_total",
			Help: "Cache gateway events (hit, miss, refresh, store, store_failed)",
		},
		[]string{"event"},
	)

	// Derivative metrics
	derivativeEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anybin_derivative_events_total",
			Help: "Image derivative events by operation",
		},
		[]string{"operation", "event"},
	)

	// Access metrics
	accessChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anybin_access_checks_total",
			Help: "Total access checks by result",
		},
		[]string{"result"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordRemoteRequest records one remote call; status 0 means a transport failure.
func RecordRemoteRequest(operation string, status int, duration time.Duration) {
	remoteRequestsTotal.WithLabelValues(operation, strconv.Itoa(status)).Inc()
	remoteRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCacheEvent records a cache gateway state transition.
func RecordCacheEvent(event string) {
	cacheEventsTotal.WithLabelValues(event).Inc()
}

// RecordDerivative records a derivative hit, generation, or passthrough.
func RecordDerivative(operation, event string) {
	derivativeEventsTotal.WithLabelValues(operation, event).Inc()
}

// RecordAccessCheck records an access check result.
func RecordAccessCheck(allowed bool) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	accessChecksTotal.WithLabelValues(result).Inc()
}
