package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard-api/internal/cache"
	"github.com/kjstillabower/weather-dashboard-api/internal/config"
)

func loadTestConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	t.Setenv("OPENWEATHER_API_KEY", "test-api-key-12345")
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.LoadFromDir(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFromDir() error = %v", err)
	}
	return cfg
}

func TestNewStore(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name    string
		env     map[string]string
		wantNil bool
		check   func(cache.Store) bool
	}{
		{
			name:  "in memory",
			env:   map[string]string{"CACHE_BACKEND": "in_memory"},
			check: func(s cache.Store) bool { _, ok := s.(*cache.InMemoryStore); return ok },
		},
		{
			name:  "memcached",
			env:   map[string]string{"CACHE_BACKEND": "memcached", "MEMCACHED_ADDRS": "127.0.0.1:1"},
			check: func(s cache.Store) bool { _, ok := s.(*cache.MemcachedStore); return ok },
		},
		{
			name:  "redis",
			env:   map[string]string{"CACHE_BACKEND": "redis", "REDIS_URL": "redis://127.0.0.1:1"},
			check: func(s cache.Store) bool { _, ok := s.(*cache.RedisStore); return ok },
		},
		{
			name:    "invalid redis url disables cache",
			env:     map[string]string{"CACHE_BACKEND": "redis", "REDIS_URL": "not-a-url"},
			wantNil: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(loadTestConfig(t, tt.env), logger)
			if tt.wantNil {
				if store != nil {
					t.Errorf("newStore() = %T, want nil", store)
				}
				return
			}
			if store == nil || !tt.check(store) {
				t.Fatalf("newStore() = %T, wrong backend", store)
			}
			_ = store.Close()
		})
	}
}

func TestNewApp_ServesRoutes(t *testing.T) {
	var upstreamCalls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"main":{"temp":12.4,"humidity":70},"weather":[{"description":"light rain","icon":"10d"}],"wind":{"speed":3.1},"name":"Seattle","sys":{"country":"US"}}`))
	}))
	defer upstream.Close()

	cfg := loadTestConfig(t, map[string]string{
		"CACHE_BACKEND":   "in_memory",
		"OPENWEATHER_URL": upstream.URL,
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	a, err := newApp(ctx, cfg, zap.NewNop(), time.Now())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.cache.Close()

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/health status = %d, want 200", rec.Code)
	}
	var health map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health["redis"] != "connected" {
		t.Errorf("redis = %v, want connected", health["redis"])
	}

	for i := 0; i < 2; i++ {
		rec = httptest.NewRecorder()
		a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/weather?lat=47.6&lon=-122.3", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("/api/weather status = %d, body = %s", rec.Code, rec.Body.String())
		}
	}
	if got := upstreamCalls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1 (second request served from cache)", got)
	}

	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/metrics status = %d, want 200", rec.Code)
	}
}

func TestNewApp_InvalidRedisURLStartsWithCacheDisabled(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{"CACHE_BACKEND": "redis", "REDIS_URL": "::bad"})
	a, err := newApp(context.Background(), cfg, zap.NewNop(), time.Now())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	if a.cache.Connected() {
		t.Error("cache should be disconnected without a usable store")
	}

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200", rec.Code)
	}
}
