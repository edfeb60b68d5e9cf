package svcpipe

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the pipeline. All
// methods are no-ops on a nil collector. It is safe for concurrent use.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec

	cacheHits    *prometheus.CounterVec
	cacheMisses  *prometheus.CounterVec
	cacheEntries *prometheus.GaugeVec

	authRefreshes *prometheus.CounterVec
	logouts       *prometheus.CounterVec

	circuitBreakerState *prometheus.GaugeVec
	rateLimiterTokens   *prometheus.GaugeVec

	errorsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(registry)
	mc := &MetricsCollector{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "svcpipe_requests_total",
				Help: "Total number of pipeline requests by outcome",
			},
			[]string{"service", "method", "status_code"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "svcpipe_request_duration_seconds",
				Help:    "End-to-end duration of pipeline requests, retries included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service", "method", "status_code"},
		),
		requestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "svcpipe_requests_in_flight",
				Help: "Number of pipeline requests currently in flight",
			},
			[]string{"service", "method"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "svcpipe_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"service", "method", "attempt"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "svcpipe_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"service"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "svcpipe_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"service"},
		),
		cacheEntries: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "svcpipe_cache_entries",
				Help: "Current number of entries in the response cache",
			},
			[]string{"service"},
		),
		authRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "svcpipe_auth_refreshes_total",
				Help: "Total number of token refresh attempts by outcome",
			},
			[]string{"service", "outcome"},
		),
		logouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "svcpipe_logouts_total",
				Help: "Total number of forced logouts after failed re-authentication",
			},
			[]string{"service"},
		),
		circuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "svcpipe_circuit_breaker_state",
				Help: "Current state of circuit breaker (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		rateLimiterTokens: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "svcpipe_rate_limiter_tokens",
				Help: "Current number of available rate limiter tokens",
			},
			[]string{"name"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "svcpipe_errors_total",
				Help: "Total number of failed calls by error code",
			},
			[]string{"service", "code"},
		),
	}
	if reg, ok := registry.(*prometheus.Registry); ok {
		mc.registry = reg
	}
	return mc
}

// RecordRequest records request count and duration. statusCode 0 means no HTTP response.
func (mc *MetricsCollector) RecordRequest(service, method string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}

	status := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(service, method, status).Inc()
	mc.requestDuration.WithLabelValues(service, method, status).Observe(duration.Seconds())
}

// RecordRequestStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(service, method string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(service, method).Inc()
}

// RecordRequestEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(service, method string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(service, method).Dec()
}

// RecordRetry increments the retry counter for an attempt.
func (mc *MetricsCollector) RecordRetry(service, method string, attempt int) {
	if mc == nil {
		return
	}

	mc.retriesTotal.WithLabelValues(service, method, strconv.Itoa(attempt)).Inc()
}

// RecordCacheHit increments the cache hit counter.
func (mc *MetricsCollector) RecordCacheHit(service string) {
	if mc == nil {
		return
	}

	mc.cacheHits.WithLabelValues(service).Inc()
}

// RecordCacheMiss increments the cache miss counter.
func (mc *MetricsCollector) RecordCacheMiss(service string) {
	if mc == nil {
		return
	}

	mc.cacheMisses.WithLabelValues(service).Inc()
}

// RecordCacheSize sets the cache size gauge.
func (mc *MetricsCollector) RecordCacheSize(service string, size int) {
	if mc == nil {
		return
	}

	mc.cacheEntries.WithLabelValues(service).Set(float64(size))
}

// RecordAuthRefresh counts a refresh attempt; outcome is "success" or "failure".
func (mc *MetricsCollector) RecordAuthRefresh(service, outcome string) {
	if mc == nil {
		return
	}

	mc.authRefreshes.WithLabelValues(service, outcome).Inc()
}

// RecordLogout counts a forced logout.
func (mc *MetricsCollector) RecordLogout(service string) {
	if mc == nil {
		return
	}

	mc.logouts.WithLabelValues(service).Inc()
}

// RecordCircuitBreakerState sets the gauge to the breaker state.
func (mc *MetricsCollector) RecordCircuitBreakerState(name string, state CircuitState) {
	if mc == nil {
		return
	}

	mc.circuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordRateLimiterTokens sets the available token gauge.
func (mc *MetricsCollector) RecordRateLimiterTokens(name string, tokens int64) {
	if mc == nil {
		return
	}

	mc.rateLimiterTokens.WithLabelValues(name).Set(float64(tokens))
}

// RecordError increments the error counter by code.
func (mc *MetricsCollector) RecordError(service, code string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(service, code).Inc()
}

// GetRegistry exposes the underlying prometheus registry, if the collector owns one.
func (mc *MetricsCollector) GetRegistry() *prometheus.Registry {
	return mc.registry
}
