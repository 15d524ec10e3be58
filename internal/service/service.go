// Package service implements cache-aside lookups for location, current weather
// and forecast on top of the provider clients and the fail-open cache adapter.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard-api/internal/cache"
	"github.com/kjstillabower/weather-dashboard-api/internal/client"
	"github.com/kjstillabower/weather-dashboard-api/internal/models"
	"github.com/kjstillabower/weather-dashboard-api/internal/observability"
)

// Route names, used in cache keys and as the stampede metric label.
const (
	RouteLocation = "location"
	RouteWeather  = "weather"
	RouteForecast = "forecast"
)

// Default time-to-live per route.
const (
	DefaultLocationTTL = time.Hour
	DefaultWeatherTTL  = 5 * time.Minute
	DefaultForecastTTL = 30 * time.Minute
)

// TTLs holds the cache lifetime per route. Zero fields take the defaults.
type TTLs struct {
	Location time.Duration
	Weather  time.Duration
	Forecast time.Duration
}

func (t TTLs) withDefaults() TTLs {
	if t.Location <= 0 {
		t.Location = DefaultLocationTTL
	}
	if t.Weather <= 0 {
		t.Weather = DefaultWeatherTTL
	}
	if t.Forecast <= 0 {
		t.Forecast = DefaultForecastTTL
	}
	return t
}

// Config tunes a Service.
type Config struct {
	TTL TTLs
	// CoalesceEnabled makes concurrent misses for one key share a provider call.
	CoalesceEnabled bool
	// CoalesceTimeout bounds how long a caller waits on a shared call. Zero
	// waits as long as the caller's context allows.
	CoalesceTimeout time.Duration
}

// Result is a JSON payload ready to write. Cached reports a cache hit; the
// payload is then the stored bytes, unchanged.
type Result struct {
	Payload []byte
	Cached  bool
}

// Service orchestrates the cache-aside lookups.
type Service struct {
	geo      client.GeoLocator
	weather  client.WeatherProvider
	cache    *cache.Adapter
	ttl      TTLs
	logger   *zap.Logger
	metrics  *observability.Metrics
	stampede *stampedeTracker
	// nil when coalescing is disabled
	coalescer *requestCoalescer
}

var _ cache.CoordinateWarmer = (*Service)(nil)

// New builds a Service. adapter may be disabled (or nil) in which case every
// lookup goes to the provider.
func New(geo client.GeoLocator, weather client.WeatherProvider, adapter *cache.Adapter, cfg Config, logger *zap.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		geo:      geo,
		weather:  weather,
		cache:    adapter,
		ttl:      cfg.TTL.withDefaults(),
		logger:   logger,
		metrics:  metrics,
		stampede: newStampedeTracker(),
	}
	if cfg.CoalesceEnabled {
		s.coalescer = newRequestCoalescer(cfg.CoalesceTimeout)
	}
	return s
}

func locationKey(ip string) string {
	return RouteLocation + ":" + ip
}

func coordinatesKey(route string, c models.Coordinates) string {
	return route + ":" + c.Lat + ":" + c.Lon
}

// Location returns the geolocation of ip.
func (s *Service) Location(ctx context.Context, ip string) (Result, error) {
	return cacheAside(ctx, s, RouteLocation, locationKey(ip), s.ttl.Location,
		func(ctx context.Context) (models.LocationRecord, error) {
			return s.geo.Lookup(ctx, ip)
		})
}

// Weather returns current conditions at coords.
func (s *Service) Weather(ctx context.Context, coords models.Coordinates) (Result, error) {
	return cacheAside(ctx, s, RouteWeather, coordinatesKey(RouteWeather, coords), s.ttl.Weather,
		func(ctx context.Context) (models.WeatherRecord, error) {
			return s.weather.Current(ctx, coords)
		})
}

// Forecast returns the daily forecast at coords.
func (s *Service) Forecast(ctx context.Context, coords models.Coordinates) (Result, error) {
	return cacheAside(ctx, s, RouteForecast, coordinatesKey(RouteForecast, coords), s.ttl.Forecast,
		func(ctx context.Context) ([]models.ForecastEntry, error) {
			return s.weather.Forecast(ctx, coords)
		})
}

// WarmCoordinates loads weather and forecast for coords into the cache.
func (s *Service) WarmCoordinates(ctx context.Context, coords models.Coordinates) error {
	_, werr := s.Weather(ctx, coords)
	_, ferr := s.Forecast(ctx, coords)
	return errors.Join(werr, ferr)
}

// cacheAside serves key from the cache, or fetches, encodes and stores it.
// A failed store write does not fail the lookup.
func cacheAside[T any](ctx context.Context, s *Service, route, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (Result, error) {
	logger := observability.LoggerFromContext(ctx, s.logger)

	if data, ok := s.cache.Get(ctx, key); ok {
		s.metrics.RecordCacheHit()
		logger.Debug("cache hit", zap.String("key", key))
		return Result{Payload: data, Cached: true}, nil
	}
	s.metrics.RecordCacheMiss()

	if n := s.stampede.RecordMiss(key); n > 1 {
		s.metrics.RecordStampede(route)
		logger.Debug("concurrent cache miss", zap.String("key", key), zap.Int("active", n))
	}
	defer s.stampede.Resolve(key)

	load := func() ([]byte, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", route, err)
		}
		if !s.cache.Set(ctx, key, data, ttl) {
			logger.Debug("response not cached", zap.String("key", key))
		}
		return data, nil
	}

	start := time.Now()
	var (
		data []byte
		err  error
	)
	if s.coalescer != nil {
		var shared bool
		data, shared, err = s.coalescer.GetOrDo(ctx, key, load)
		if shared {
			logger.Debug("coalesced provider call", zap.String("key", key))
		}
	} else {
		data, err = load()
	}
	if err != nil {
		return Result{}, fmt.Errorf("get %s %s: %w", route, key, err)
	}
	logger.Debug("cache miss served", zap.String("key", key), zap.Duration("duration", time.Since(start)))
	return Result{Payload: data}, nil
}
