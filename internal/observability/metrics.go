package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the process-wide registry and every series the service records.
// Construct once in main and pass it to the components that record into it.
// All recording methods are safe on a nil *Metrics, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation.
	HTTPRequestsInFlight prometheus.Gauge

	// Provider call outcomes (ip-api, openweather). Watch for: error vs success ratio.
	ExternalAPICallsTotal *prometheus.CounterVec

	// Provider latency. Watch for: p95 > 2s (upstream degradation).
	ExternalAPIDuration *prometheus.HistogramVec

	// Provider failures by category (timeout, network, upstream_5xx, ...).
	ExternalAPIErrorsTotal *prometheus.CounterVec

	// Hit rate = hits/(hits+misses).
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Cache store failures swallowed by the adapter.
	CacheErrorsTotal *prometheus.CounterVec

	// Concurrent misses for the same key. Watch for: stampedes on popular coordinates.
	CacheStampedeDetectedTotal *prometheus.CounterVec

	CacheWarmingTotal       prometheus.Counter
	CacheWarmingErrorsTotal prometheus.Counter

	// Rate limit denials (429).
	RateLimitDeniedTotal prometheus.Counter

	// 0 closed, 1 half-open, 2 open.
	CircuitBreakerState *prometheus.GaugeVec

	rateLimitGaugesOnce sync.Once
}

// NewMetrics builds a fresh registry with Go runtime and process collectors
// and registers all application series on it.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weather_api_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)
	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weather_api_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	m.HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "weather_api_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	m.ExternalAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weather_external_api_calls_total",
			Help: "Total calls to external APIs",
		},
		[]string{"provider", "status"},
	)
	m.ExternalAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weather_external_api_duration_seconds",
			Help:    "External API latency in seconds (per call)",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "status"},
	)
	m.ExternalAPIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weather_external_api_errors_total",
			Help: "External API failures by category",
		},
		[]string{"provider", "category"},
	)
	m.CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weather_cache_hits_total",
			Help: "Total cache hits",
		},
	)
	m.CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weather_cache_misses_total",
			Help: "Total cache misses",
		},
	)
	m.CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weather_cache_errors_total",
			Help: "Cache store errors degraded to a miss or an ignored write",
		},
		[]string{"operation"},
	)
	m.CacheStampedeDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weather_cache_stampede_detected_total",
			Help: "Cache misses that overlapped another in-progress miss for the same key",
		},
		[]string{"route"},
	)
	m.CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weather_cache_warming_total",
			Help: "Cache warming runs",
		},
	)
	m.CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weather_cache_warming_errors_total",
			Help: "Cache warming runs with at least one failed coordinate",
		},
	)
	m.RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weather_rate_limit_denied_total",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	m.CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "weather_circuit_breaker_state",
			Help: "Provider circuit breaker state: 0 closed, 1 half-open, 2 open",
		},
		[]string{"provider"},
	)

	m.registry.MustRegister(
		m.HTTPRequestsTotal, m.HTTPRequestDuration, m.HTTPRequestsInFlight,
		m.ExternalAPICallsTotal, m.ExternalAPIDuration, m.ExternalAPIErrorsTotal,
		m.CacheHitsTotal, m.CacheMissesTotal, m.CacheErrorsTotal, m.CacheStampedeDetectedTotal,
		m.CacheWarmingTotal, m.CacheWarmingErrorsTotal,
		m.RateLimitDeniedTotal, m.CircuitBreakerState,
	)
	return m
}

// RegisterRateLimitGauges exposes the sliding-window request and reject counts
// and the 5xx ratio of the rate-limited path. Only the first call registers.
func (m *Metrics) RegisterRateLimitGauges(requests, rejects, errorRatio func() float64) {
	if m == nil {
		return
	}
	m.rateLimitGaugesOnce.Do(func() {
		m.registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "weather_rate_limit_requests_in_window",
					Help: "Requests hitting the rate-limited path in the tracking window",
				},
				requests,
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "weather_rate_limit_rejects_in_window",
					Help: "429 responses in the tracking window",
				},
				rejects,
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "weather_rate_limit_error_ratio",
					Help: "Share of answered rate-limited requests in the tracking window that returned 5xx",
				},
				errorRatio,
			),
		)
	})
}

// RecordHTTPRequest records one finished request. route must be a path template.
func (m *Metrics) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RequestStarted and RequestFinished bracket a request for the in-flight gauge.
func (m *Metrics) RequestStarted() {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.Inc()
}

func (m *Metrics) RequestFinished() {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.Dec()
}

// RecordProviderCall records the outcome ("success" or "error") of one provider call.
func (m *Metrics) RecordProviderCall(provider, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ExternalAPICallsTotal.WithLabelValues(provider, status).Inc()
	m.ExternalAPIDuration.WithLabelValues(provider, status).Observe(duration.Seconds())
}

func (m *Metrics) RecordProviderError(provider, category string) {
	if m == nil {
		return
	}
	m.ExternalAPIErrorsTotal.WithLabelValues(provider, category).Inc()
}

func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}

// RecordCacheError records a swallowed store failure for operation "get" or "set".
func (m *Metrics) RecordCacheError(operation string) {
	if m == nil {
		return
	}
	m.CacheErrorsTotal.WithLabelValues(operation).Inc()
}

func (m *Metrics) RecordStampede(route string) {
	if m == nil {
		return
	}
	m.CacheStampedeDetectedTotal.WithLabelValues(route).Inc()
}

// RecordCacheWarming records one warming run; failed reports whether any coordinate failed.
func (m *Metrics) RecordCacheWarming(failed bool) {
	if m == nil {
		return
	}
	m.CacheWarmingTotal.Inc()
	if failed {
		m.CacheWarmingErrorsTotal.Inc()
	}
}

func (m *Metrics) RecordRateLimitDenied() {
	if m == nil {
		return
	}
	m.RateLimitDeniedTotal.Inc()
}

func (m *Metrics) SetCircuitBreakerState(provider string, state float64) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(provider).Set(state)
}

// Handler serves application and runtime metrics in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
