//go:build integration
// +build integration

// Package testhelpers wires real providers and cache stores for integration tests.
package testhelpers

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/weather-dashboard-api/internal/cache"
	"github.com/kjstillabower/weather-dashboard-api/internal/client"
	"github.com/kjstillabower/weather-dashboard-api/internal/clock"
	"github.com/kjstillabower/weather-dashboard-api/internal/observability"
	"github.com/kjstillabower/weather-dashboard-api/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey         string
	WeatherURL     string
	GeoURL         string
	CacheBackend   string // "redis", "memcached" or "in_memory"
	RedisURL       string
	MemcachedAddrs string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if OPENWEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("OPENWEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("OPENWEATHER_API_KEY not set, skipping integration test")
	}
	return IntegrationTestConfig{
		APIKey:         apiKey,
		WeatherURL:     getenv("OPENWEATHER_URL", client.DefaultOpenWeatherURL),
		GeoURL:         getenv("GEO_URL", client.DefaultIPAPIURL),
		CacheBackend:   getenv("INTEGRATION_CACHE_BACKEND", "in_memory"),
		RedisURL:       getenv("REDIS_URL", "redis://localhost:6379"),
		MemcachedAddrs: getenv("MEMCACHED_ADDRS", "localhost:11211"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Store builds the configured cache store, falling back to in-memory when the
// Redis URL does not parse.
func Store(t *testing.T, cfg IntegrationTestConfig) cache.Store {
	t.Helper()
	switch cfg.CacheBackend {
	case "redis":
		store, err := cache.NewRedisStore(cfg.RedisURL, cache.DefaultQueryTimeout)
		if err != nil {
			t.Logf("Redis not usable (%v), using in-memory cache", err)
			return cache.NewInMemoryStore()
		}
		return store
	case "memcached":
		return cache.NewMemcachedStore(cfg.MemcachedAddrs, 500*time.Millisecond, 2)
	default:
		return cache.NewInMemoryStore()
	}
}

// SetupIntegrationService creates a fully configured service against the real providers.
// Returns the service, its cache adapter, metrics and a cleanup function.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.Service, *cache.Adapter, *observability.Metrics, func()) {
	t.Helper()
	logger, err := observability.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	metrics := observability.NewMetrics()
	opts := client.Options{Timeout: 10 * time.Second, Metrics: metrics}

	weather, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.WeatherURL, clock.DefaultLocale(), time.UTC, opts)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	geo := client.NewIPAPIClient(cfg.GeoURL, opts)

	adapter := cache.NewAdapter(context.Background(), Store(t, cfg), logger, metrics)
	svc := service.New(geo, weather, adapter, service.Config{}, logger, metrics)
	return svc, adapter, metrics, func() { _ = adapter.Close() }
}
