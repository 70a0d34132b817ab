// Package metrics exposes Prometheus collectors for the icon resolver.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Probe outcomes.
const (
	ProbeValid       = "valid"
	ProbeNotImage    = "not_image"
	ProbeUnreachable = "unreachable"
)

// Cache lookup results.
const (
	CacheHit     = "hit"
	CacheHotHit  = "hot_hit"
	CacheMiss    = "miss"
	CacheCorrupt = "corrupt"
	CacheError   = "error"
)

var (
	iconResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icon_resolutions_total",
			Help: "Total number of icon resolutions, labeled by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	iconProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icon_probes_total",
			Help: "Total number of candidate probes, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	iconCacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icon_cache_lookups_total",
			Help: "Total number of icon cache lookups, labeled by result.",
		},
		[]string{"result"},
	)

	iconCacheWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "icon_cache_write_failures_total",
			Help: "Total number of icon cache writes that failed.",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "route"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveResolution counts one resolution for endpoint with the given outcome.
func ObserveResolution(endpoint, outcome string) {
	iconResolutionsTotal.WithLabelValues(endpoint, outcome).Inc()
}

// ObserveProbe counts one candidate probe.
func ObserveProbe(outcome string) {
	iconProbesTotal.WithLabelValues(outcome).Inc()
}

// ObserveCacheLookup counts one cache lookup.
func ObserveCacheLookup(result string) {
	iconCacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveCacheWriteFailure counts one failed cache write.
func ObserveCacheWriteFailure() {
	iconCacheWriteFailuresTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
