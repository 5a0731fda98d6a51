package apiexec

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector exposes Prometheus metrics for executor calls, the
// response cache and token renewal. A nil collector records nothing.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec

	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	cacheInvalidations *prometheus.CounterVec
	cacheSize          prometheus.Gauge

	tokenRefreshes       *prometheus.CounterVec
	tokenRefreshDuration prometheus.Histogram

	errorsTotal *prometheus.CounterVec

	registry prometheus.Registerer
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(registry)
	return &MetricsCollector{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiexec_requests_total",
				Help: "Total number of API calls made through the executor",
			},
			[]string{"method", "status_code", "family"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "apiexec_request_duration_seconds",
				Help:    "Duration of API calls in seconds, retries included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "family"},
		),
		requestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "apiexec_requests_in_flight",
				Help: "Number of API calls currently in flight",
			},
			[]string{"method", "family"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiexec_retries_total",
				Help: "Total number of re-attempts after a transient failure",
			},
			[]string{"method", "family", "attempt"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiexec_cache_hits_total",
				Help: "Total number of reads served from the response cache",
			},
			[]string{"family"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiexec_cache_misses_total",
				Help: "Total number of reads that went to the network",
			},
			[]string{"family"},
		),
		cacheInvalidations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiexec_cache_invalidations_total",
				Help: "Total number of family invalidations",
			},
			[]string{"family"},
		),
		cacheSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "apiexec_cache_entries",
				Help: "Current number of entries in the response cache",
			},
		),
		tokenRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiexec_token_refreshes_total",
				Help: "Total number of token refresh round-trips by outcome",
			},
			[]string{"outcome"},
		),
		tokenRefreshDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "apiexec_token_refresh_duration_seconds",
				Help:    "Duration of token refresh round-trips in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiexec_errors_total",
				Help: "Total number of failed calls by error kind",
			},
			[]string{"kind", "method", "family"},
		),
		registry: registry,
	}
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(method, family string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}

	statusCodeStr := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(method, statusCodeStr, family).Inc()
	mc.requestDuration.WithLabelValues(method, statusCodeStr, family).Observe(duration.Seconds())
}

// RecordRequestStart increments in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, family string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, family).Inc()
}

// RecordRequestEnd decrements in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, family string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, family).Dec()
}

// RecordRetry increments retry counter for an attempt.
func (mc *MetricsCollector) RecordRetry(method, family string, attempt int) {
	if mc == nil {
		return
	}

	mc.retriesTotal.WithLabelValues(method, family, strconv.Itoa(attempt)).Inc()
}

func (mc *MetricsCollector) RecordCacheHit(family string) {
	if mc == nil {
		return
	}

	mc.cacheHits.WithLabelValues(family).Inc()
}

func (mc *MetricsCollector) RecordCacheMiss(family string) {
	if mc == nil {
		return
	}

	mc.cacheMisses.WithLabelValues(family).Inc()
}

func (mc *MetricsCollector) RecordCacheInvalidation(family string) {
	if mc == nil {
		return
	}

	mc.cacheInvalidations.WithLabelValues(family).Inc()
}

// RecordCacheSize sets cache size gauge.
func (mc *MetricsCollector) RecordCacheSize(size int) {
	if mc == nil {
		return
	}

	mc.cacheSize.Set(float64(size))
}

// RecordTokenRefresh counts one refresh round-trip; outcome is success or failure.
func (mc *MetricsCollector) RecordTokenRefresh(outcome string, duration time.Duration) {
	if mc == nil {
		return
	}

	mc.tokenRefreshes.WithLabelValues(outcome).Inc()
	mc.tokenRefreshDuration.Observe(duration.Seconds())
}

// RecordError increments error counter by kind.
func (mc *MetricsCollector) RecordError(kind Kind, method, family string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(kind.String(), method, family).Inc()
}

// Registerer exposes the registerer the collectors were created on.
func (mc *MetricsCollector) Registerer() prometheus.Registerer {
	return mc.registry
}
