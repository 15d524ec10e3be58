package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMetrics_Usable verifies that every recording method works with the label
// dimensions used by the client, http, service and cache packages.
func TestMetrics_Usable(t *testing.T) {
	m := NewMetrics()
	m.RecordHTTPRequest("GET", "/api/weather", 200, 10*time.Millisecond)
	m.RequestStarted()
	m.RequestFinished()
	m.RecordProviderCall("openweather", "success", 100*time.Millisecond)
	m.RecordProviderCall("ip-api", "error", 100*time.Millisecond)
	m.RecordProviderError("ip-api", "network")
	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordCacheError("get")
	m.RecordStampede("weather")
	m.RecordCacheWarming(true)
	m.RecordRateLimitDenied()
	m.SetCircuitBreakerState("openweather", 2)

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/weather", "200")); got != 1 {
		t.Errorf("weather_api_requests_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ExternalAPICallsTotal.WithLabelValues("ip-api", "error")); got != 1 {
		t.Errorf("weather_external_api_calls_total{ip-api,error} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CacheWarmingErrorsTotal); got != 1 {
		t.Errorf("weather_cache_warming_errors_total = %v, want 1", got)
	}
}

// TestMetrics_NilSafe verifies that a nil recorder can be handed to components in tests.
func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordHTTPRequest("GET", "/health", 200, time.Millisecond)
	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordProviderCall("ip-api", "success", time.Millisecond)
	m.RegisterRateLimitGauges(func() float64 { return 0 }, func() float64 { return 0 }, func() float64 { return 0 })
}

// TestMetrics_SeparateRegistries verifies that two recorders do not share state.
func TestMetrics_SeparateRegistries(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.RecordCacheHit()
	if got := testutil.ToFloat64(b.CacheHitsTotal); got != 0 {
		t.Errorf("second registry cache hits = %v, want 0", got)
	}
}

// TestMetricsHandler_ServesPrometheusFormat verifies that Handler serves the
// text exposition format including application and rate-limit gauge series.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	m := NewMetrics()
	m.RecordCacheMiss()
	m.RegisterRateLimitGauges(func() float64 { return 7 }, func() float64 { return 2 }, func() float64 { return 0.25 })
	m.RegisterRateLimitGauges(func() float64 { return 0 }, func() float64 { return 0 }, func() float64 { return 0 })

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Handler status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		"weather_cache_misses_total 1",
		"weather_rate_limit_requests_in_window 7",
		"weather_rate_limit_rejects_in_window 2",
		"weather_rate_limit_error_ratio 0.25",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
