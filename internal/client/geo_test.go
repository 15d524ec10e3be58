package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kjstillabower/weather-dashboard-api/internal/models"
	"github.com/kjstillabower/weather-dashboard-api/internal/observability"
)

func TestIPAPIClient_Lookup_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/8.8.8.8" {
			t.Errorf("path = %s, want /json/8.8.8.8", r.URL.Path)
		}
		if r.URL.Query().Get("fields") == "" {
			t.Error("fields parameter missing")
		}
		fmt.Fprint(w, `{"status":"success","country":"United States","city":"Ashburn","lat":39.03,"lon":-77.5,"timezone":"America/New_York"}`)
	}))
	defer server.Close()

	metrics := observability.NewMetrics()
	c := NewIPAPIClient(server.URL+"/json/", Options{Metrics: metrics})

	got, err := c.Lookup(context.Background(), "8.8.8.8")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	want := models.LocationRecord{City: "Ashburn", Country: "United States", Lat: 39.03, Lon: -77.5, Timezone: "America/New_York"}
	if got != want {
		t.Errorf("Lookup() = %+v, want %+v", got, want)
	}
	if n := testutil.ToFloat64(metrics.ExternalAPICallsTotal.WithLabelValues(ProviderIPAPI, "success")); n != 1 {
		t.Errorf("ip-api success calls = %v, want 1", n)
	}
}

// TestIPAPIClient_Lookup_StatusFail covers ip-api's in-band failure for
// private addresses, which arrives with HTTP 200.
func TestIPAPIClient_Lookup_StatusFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"fail","message":"private range"}`)
	}))
	defer server.Close()

	metrics := observability.NewMetrics()
	_, err := NewIPAPIClient(server.URL, Options{Metrics: metrics}).Lookup(context.Background(), "10.0.0.1")
	if !errors.Is(err, ErrProviderFail) {
		t.Fatalf("Lookup() error = %v, want ErrProviderFail", err)
	}
	if n := testutil.ToFloat64(metrics.ExternalAPICallsTotal.WithLabelValues(ProviderIPAPI, "error")); n != 1 {
		t.Errorf("ip-api error calls = %v, want 1", n)
	}
	if n := testutil.ToFloat64(metrics.ExternalAPIErrorsTotal.WithLabelValues(ProviderIPAPI, "provider_fail")); n != 1 {
		t.Errorf("provider_fail errors = %v, want 1", n)
	}
}

// TestIPAPIClient_Lookup_MissingStatus verifies a body without a status is
// a parse failure rather than an empty location.
func TestIPAPIClient_Lookup_MissingStatus(t *testing.T) {
	for _, body := range []string{`{}`, `{"city":"Ashburn","lat":39.03,"lon":-77.5}`} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, body)
		}))

		metrics := observability.NewMetrics()
		_, err := NewIPAPIClient(server.URL, Options{Metrics: metrics}).Lookup(context.Background(), "8.8.8.8")
		server.Close()
		if err == nil || !strings.Contains(err.Error(), "parse response") {
			t.Errorf("Lookup(%s) error = %v, want parse error", body, err)
		}
		if n := testutil.ToFloat64(metrics.ExternalAPIErrorsTotal.WithLabelValues(ProviderIPAPI, "parsing")); n != 1 {
			t.Errorf("Lookup(%s) parsing errors = %v, want 1", body, n)
		}
	}
}

func TestIPAPIClient_Lookup_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	metrics := observability.NewMetrics()
	_, err := NewIPAPIClient(url, Options{Metrics: metrics}).Lookup(context.Background(), "8.8.8.8")
	if err == nil {
		t.Fatal("Lookup() error = nil, want network error")
	}
	if n := testutil.ToFloat64(metrics.ExternalAPIErrorsTotal.WithLabelValues(ProviderIPAPI, "network")); n != 1 {
		t.Errorf("network errors = %v, want 1", n)
	}
}

func TestIPAPIClient_Lookup_EscapesIP(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"status":"success"}`)
	}))
	defer server.Close()

	_, _ = NewIPAPIClient(server.URL, Options{}).Lookup(context.Background(), "2001:db8::1")
	if gotPath != "/2001:db8::1" {
		t.Errorf("path = %q, want /2001:db8::1", gotPath)
	}
}
