//go:build integration
// +build integration

package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard-api/internal/clock"
	"github.com/kjstillabower/weather-dashboard-api/internal/models"
	testhelpers "github.com/kjstillabower/weather-dashboard-api/internal/testhelpers"
)

// setupIntegrationRouter wires the full pipeline against the real providers.
func setupIntegrationRouter(t *testing.T) (http.Handler, func()) {
	cfg := testhelpers.GetIntegrationConfig(t)
	svc, adapter, metrics, cleanup := testhelpers.SetupIntegrationService(t, cfg)
	logger := zap.NewNop()
	h := NewHandler(svc, clock.New(clock.DefaultLocale(), time.UTC), adapter, logger, time.Now(), "")
	return NewRouter(h, RouterConfig{}, metrics, &InFlightTracker{}, logger), cleanup
}

func integrationGet(handler http.Handler, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

// TestIntegration_Weather_MissThenHit verifies the second identical request
// is served byte-for-byte from the cache.
func TestIntegration_Weather_MissThenHit(t *testing.T) {
	handler, cleanup := setupIntegrationRouter(t)
	defer cleanup()

	path := "/api/weather?lat=51.5074&lon=-0.1278"
	first := integrationGet(handler, path, nil)
	if first.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", first.Code, first.Body.String())
	}
	var rec models.WeatherRecord
	if err := json.Unmarshal(first.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.City == "" {
		t.Error("response missing city")
	}

	second := integrationGet(handler, path, nil)
	if second.Body.String() != first.Body.String() {
		t.Errorf("second response not served from cache:\n%s\n%s", first.Body.String(), second.Body.String())
	}
}

func TestIntegration_Forecast(t *testing.T) {
	handler, cleanup := setupIntegrationRouter(t)
	defer cleanup()

	w := integrationGet(handler, "/api/forecast?lat=40.7128&lon=-74.0060", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	var entries []models.ForecastEntry
	if err := json.Unmarshal(w.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) == 0 || len(entries) > 5 {
		t.Errorf("forecast entries = %d, want 1..5", len(entries))
	}
}

func TestIntegration_Location(t *testing.T) {
	handler, cleanup := setupIntegrationRouter(t)
	defer cleanup()

	w := integrationGet(handler, "/api/location", http.Header{"X-Forwarded-For": {"8.8.8.8"}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	var loc models.LocationRecord
	if err := json.Unmarshal(w.Body.Bytes(), &loc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if loc.Country == "" || loc.Timezone == "" {
		t.Errorf("incomplete location %+v", loc)
	}
}
