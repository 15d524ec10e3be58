// Package client holds the outbound provider clients: ip-api geolocation and
// OpenWeather current conditions and forecast.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kjstillabower/weather-dashboard-api/internal/models"
	"github.com/kjstillabower/weather-dashboard-api/internal/observability"
)

// Provider names used as metric labels.
const (
	ProviderIPAPI       = "ip-api"
	ProviderOpenWeather = "openweather"
)

// GeoLocator resolves a client IP to a location.
type GeoLocator interface {
	Lookup(ctx context.Context, ip string) (models.LocationRecord, error)
}

// WeatherProvider fetches current conditions and the daily forecast for a coordinate pair.
type WeatherProvider interface {
	Current(ctx context.Context, coords models.Coordinates) (models.WeatherRecord, error)
	Forecast(ctx context.Context, coords models.Coordinates) ([]models.ForecastEntry, error)
}

var (
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrNotFound        = errors.New("not found")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRateLimited     = errors.New("rate limited")
	ErrClientError     = errors.New("rejected by provider")
	ErrProviderFail    = errors.New("provider reported failure")
	ErrCircuitOpen     = errors.New("circuit breaker open")
)

// maxResponseBytes caps provider bodies; a 5-day forecast is ~16 KiB.
const maxResponseBytes = 1 << 20

// BreakerConfig enables a circuit breaker in front of a provider. Zero value is disabled.
type BreakerConfig struct {
	Enabled          bool
	FailureThreshold uint32        // consecutive failures that open the circuit
	OpenTimeout      time.Duration // time spent open before a half-open probe
}

// Options configures the shared HTTP plumbing of a provider client.
type Options struct {
	// HTTPClient overrides the default client. When nil a client with Timeout is built.
	HTTPClient *http.Client
	// Timeout of the default client. Zero leaves the transport defaults in place.
	Timeout time.Duration
	Metrics *observability.Metrics
	Breaker BreakerConfig
}

// caller performs GET requests for one provider and records outcome metrics.
type caller struct {
	provider string
	client   *http.Client
	metrics  *observability.Metrics
	breaker  *gobreaker.CircuitBreaker[[]byte]
}

func newCaller(provider string, opts Options) *caller {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	c := &caller{provider: provider, client: hc, metrics: opts.Metrics}
	if opts.Breaker.Enabled {
		c.breaker = newBreaker(provider, opts.Breaker, opts.Metrics)
	}
	return c
}

func newBreaker(provider string, cfg BreakerConfig, metrics *observability.Metrics) *gobreaker.CircuitBreaker[[]byte] {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	timeout := cfg.OpenTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	metrics.SetCircuitBreakerState(provider, float64(gobreaker.StateClosed))
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        provider,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A caller hanging up says nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetCircuitBreakerState(name, float64(to))
		},
	})
}

// get fetches rawURL and hands the body to decode. The whole call, decoding
// included, counts as one success or error in the provider metrics.
func (c *caller) get(ctx context.Context, rawURL string, decode func([]byte) error) error {
	start := time.Now()
	err := c.do(ctx, rawURL, decode)

	status := "success"
	if err != nil {
		status = "error"
		c.metrics.RecordProviderError(c.provider, string(CategorizeError(err)))
	}
	c.metrics.RecordProviderCall(c.provider, status, time.Since(start))
	return err
}

func (c *caller) do(ctx context.Context, rawURL string, decode func([]byte) error) error {
	var (
		body []byte
		err  error
	)
	if c.breaker != nil {
		body, err = c.breaker.Execute(func() ([]byte, error) {
			return c.fetch(ctx, rawURL)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %s", ErrCircuitOpen, c.provider)
		}
	} else {
		body, err = c.fetch(ctx, rawURL)
	}
	if err != nil {
		return err
	}
	if err := decode(body); err != nil {
		return err
	}
	return nil
}

func (c *caller) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := observability.CorrelationIDFromContext(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

// statusError maps non-2xx provider statuses to sentinel errors.
func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized:
		return fmt.Errorf("%w: HTTP %d", ErrInvalidAPIKey, code)
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: HTTP %d", ErrNotFound, code)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP %d", ErrRateLimited, code)
	case code >= 500:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, code)
	default:
		return fmt.Errorf("%w: HTTP %d", ErrClientError, code)
	}
}
