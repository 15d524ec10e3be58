package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard-api/internal/cache"
	"github.com/kjstillabower/weather-dashboard-api/internal/client"
	"github.com/kjstillabower/weather-dashboard-api/internal/clock"
	"github.com/kjstillabower/weather-dashboard-api/internal/config"
	httphandler "github.com/kjstillabower/weather-dashboard-api/internal/http"
	"github.com/kjstillabower/weather-dashboard-api/internal/observability"
	"github.com/kjstillabower/weather-dashboard-api/internal/service"
)

func main() {
	// Config first so LOG_LEVEL from .env reaches the logger.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.OpenWeatherAPIKey == config.PlaceholderAPIKey {
		logger.Warn("OPENWEATHER_API_KEY not set; weather requests will fail upstream")
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 5*time.Second)
	a, err := newApp(startCtx, cfg, logger, time.Now())
	startCancel()
	if err != nil {
		logger.Fatal("startup", zap.Error(err))
	}

	ln, err := net.Listen("tcp", ":"+cfg.ServerPort)
	if err != nil {
		logger.Fatal("listen", zap.String("addr", ":"+cfg.ServerPort), zap.Error(err))
	}
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	warmCtx, warmCancel := context.WithCancel(ctx)
	defer warmCancel()
	a.startWarming(warmCtx, cfg)

	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	warmCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", a.inflight.Count()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := a.inflight.WaitForZero(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", a.inflight.Count()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		// Sync on stdout/stderr fails on some platforms; nothing to do about it.
		logger.Debug("telemetry flush", zap.Error(err))
	}

	if err := a.cache.Close(); err != nil {
		logger.Error("cache close", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// app is the wired service, ready to serve.
type app struct {
	handler  http.Handler
	cache    *cache.Adapter
	service  *service.Service
	inflight *httphandler.InFlightTracker
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// newApp builds every component from cfg. ctx bounds the initial cache ping.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, startTime time.Time) (*app, error) {
	metrics := observability.NewMetrics()

	locale, err := clock.ParseLocale(cfg.Locale)
	if err != nil {
		return nil, fmt.Errorf("locale: %w", err)
	}
	zone := cfg.Location()

	opts := client.Options{
		Timeout: cfg.ProviderTimeout,
		Metrics: metrics,
		Breaker: client.BreakerConfig{
			Enabled:          cfg.BreakerEnabled,
			FailureThreshold: cfg.BreakerFailureThreshold,
			OpenTimeout:      cfg.BreakerOpenTimeout,
		},
	}
	weather, err := client.NewOpenWeatherClient(cfg.OpenWeatherAPIKey, cfg.OpenWeatherURL, locale, zone, opts)
	if err != nil {
		return nil, fmt.Errorf("weather client: %w", err)
	}
	geo := client.NewIPAPIClient(cfg.GeoURL, opts)
	if cfg.BreakerEnabled {
		logger.Info("circuit breaker enabled",
			zap.Uint32("failure_threshold", cfg.BreakerFailureThreshold),
			zap.Duration("open_timeout", cfg.BreakerOpenTimeout))
	}

	adapter := cache.NewAdapter(ctx, newStore(cfg, logger), logger, metrics)

	svc := service.New(geo, weather, adapter, service.Config{
		TTL: service.TTLs{
			Location: cfg.LocationTTL,
			Weather:  cfg.WeatherTTL,
			Forecast: cfg.ForecastTTL,
		},
		CoalesceEnabled: cfg.CoalesceEnabled,
		CoalesceTimeout: cfg.CoalesceTimeout,
	}, logger, metrics)

	inflight := &httphandler.InFlightTracker{}
	h := httphandler.NewHandler(svc, clock.New(locale, zone), adapter, logger, startTime, cfg.FallbackIP)
	router := httphandler.NewRouter(h, httphandler.RouterConfig{
		RateLimit: httphandler.RateLimitConfig{
			Disabled: cfg.RateLimitDisabled,
			Requests: cfg.RateLimitRequests,
			Window:   cfg.RateLimitWindow,
		},
		MaxBodyBytes:   cfg.MaxBodyBytes,
		CORSOrigins:    cfg.CORSOrigins,
		RequestTimeout: cfg.RequestTimeout,
	}, metrics, inflight, logger)

	return &app{
		handler:  router,
		cache:    adapter,
		service:  svc,
		inflight: inflight,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// newStore returns the configured cache backend, or nil when it cannot be
// built; the adapter then runs disabled.
func newStore(cfg *config.Config, logger *zap.Logger) cache.Store {
	switch cfg.CacheBackend {
	case config.BackendMemcached:
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		return cache.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
	case config.BackendInMemory:
		logger.Info("cache backend: in_memory")
		return cache.NewInMemoryStore()
	default:
		store, err := cache.NewRedisStore(cfg.RedisURL, cfg.RedisQueryTimeout)
		if err != nil {
			logger.Warn("invalid REDIS_URL, caching disabled", zap.Error(err))
			return nil
		}
		logger.Info("cache backend: redis")
		return store
	}
}

// startWarming prefetches the configured coordinates in the background, once
// or on an interval.
func (a *app) startWarming(ctx context.Context, cfg *config.Config) {
	if len(cfg.WarmCoordinates) == 0 {
		return
	}
	warmer := cache.NewWarmer(a.service, a.logger, a.metrics)
	go func() {
		if cfg.WarmInterval > 0 {
			if err := warmer.WarmPeriodic(ctx, cfg.WarmCoordinates, cfg.WarmInterval); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("periodic cache warming stopped", zap.Error(err))
			}
			return
		}
		if err := warmer.Warm(ctx, cfg.WarmCoordinates); err != nil {
			a.logger.Warn("cache warming failed", zap.Error(err))
		}
	}()
}
