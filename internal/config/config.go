// Package config loads service configuration from an optional
// config/{ENV_NAME}.yaml, a .env file and environment variables, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/weather-dashboard-api/internal/clock"
	"github.com/kjstillabower/weather-dashboard-api/internal/models"
	"github.com/kjstillabower/weather-dashboard-api/internal/validation"
)

// Cache backend names.
const (
	BackendRedis     = "redis"
	BackendMemcached = "memcached"
	BackendInMemory  = "in_memory"
)

// PlaceholderAPIKey is used when no OpenWeather key is configured. The
// service starts, but weather requests fail upstream.
const PlaceholderAPIKey = "demo_key"

// Config holds service configuration loaded from YAML, .env and env.
type Config struct {
	ServerPort string

	OpenWeatherAPIKey string
	OpenWeatherURL    string
	GeoURL            string
	// ProviderTimeout bounds each provider call; 0 keeps transport defaults.
	ProviderTimeout time.Duration

	BreakerEnabled          bool
	BreakerFailureThreshold uint32
	BreakerOpenTimeout      time.Duration

	CacheBackend          string
	RedisURL              string
	RedisQueryTimeout     time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	LocationTTL time.Duration
	WeatherTTL  time.Duration
	ForecastTTL time.Duration

	CoalesceEnabled bool
	CoalesceTimeout time.Duration

	WarmCoordinates []models.Coordinates
	WarmInterval    time.Duration

	RateLimitDisabled bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	MaxBodyBytes      int64
	CORSOrigins       []string
	// RequestTimeout sets a deadline on /api/ requests; 0 disables it.
	RequestTimeout time.Duration

	Locale     string
	Timezone   string // IANA name for dates and the default time zone; empty means local
	FallbackIP string

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration
}

type fileConfig struct {
	Server struct {
		Port           string   `yaml:"port"`
		RequestTimeout string   `yaml:"request_timeout"`
		MaxBodyBytes   int64    `yaml:"max_body_bytes"`
		CORSOrigins    []string `yaml:"cors_origins"`
		FallbackIP     string   `yaml:"fallback_ip"`
	} `yaml:"server"`

	Providers struct {
		Timeout        string `yaml:"timeout"`
		OpenWeatherURL string `yaml:"openweather_url"`
		GeoURL         string `yaml:"geo_url"`
		CircuitBreaker struct {
			Enabled          bool   `yaml:"enabled"`
			FailureThreshold uint32 `yaml:"failure_threshold"`
			OpenTimeout      string `yaml:"open_timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"providers"`

	Cache struct {
		Backend string `yaml:"backend"`
		TTL     struct {
			Location string `yaml:"location"`
			Weather  string `yaml:"weather"`
			Forecast string `yaml:"forecast"`
		} `yaml:"ttl"`
		Redis struct {
			URL          string `yaml:"url"`
			QueryTimeout string `yaml:"query_timeout"`
		} `yaml:"redis"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Warm struct {
			Coordinates []models.Coordinates `yaml:"coordinates"`
			Interval    string               `yaml:"interval"`
		} `yaml:"warm"`
	} `yaml:"cache"`

	Service struct {
		CoalesceEnabled bool   `yaml:"coalesce_enabled"`
		CoalesceTimeout string `yaml:"coalesce_timeout"`
	} `yaml:"service"`

	RateLimit struct {
		Enabled  *bool  `yaml:"enabled"`
		Requests int    `yaml:"requests"`
		Window   string `yaml:"window"`
	} `yaml:"rate_limit"`

	App struct {
		Locale   string `yaml:"locale"`
		Timezone string `yaml:"timezone"`
	} `yaml:"app"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`
}

type secretsFile struct {
	OpenWeatherAPIKey string `yaml:"openweather_api_key"`
}

// Load reads configuration relative to the working directory. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFromDir(cwd)
}

// LoadFromDir reads dir/.env (optional), dir/config/{ENV_NAME}.yaml (optional,
// ENV_NAME defaults to dev) and dir/config/secrets.yaml (optional), then
// applies environment overrides. Variables already set in the environment
// win over .env entries.
func LoadFromDir(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	var fc fileConfig
	configPath := filepath.Join(dir, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
	case os.IsNotExist(err):
		// The file is optional; defaults and env cover everything.
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "3001")
	cfg.RequestTimeout = parseDurationOrZero(fc.Server.RequestTimeout, 0)
	cfg.MaxBodyBytes = fc.Server.MaxBodyBytes
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 100 << 10
	}
	cfg.CORSOrigins = fc.Server.CORSOrigins
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	cfg.FallbackIP = firstNonEmpty(fc.Server.FallbackIP, "8.8.8.8")

	apiKey, err := loadAPIKey(dir)
	if err != nil {
		return nil, err
	}
	cfg.OpenWeatherAPIKey = apiKey
	cfg.OpenWeatherURL = firstNonEmpty(os.Getenv("OPENWEATHER_URL"), fc.Providers.OpenWeatherURL, "https://api.openweathermap.org/data/2.5")
	cfg.GeoURL = firstNonEmpty(os.Getenv("GEO_URL"), fc.Providers.GeoURL, "http://ip-api.com/json")
	cfg.ProviderTimeout = parseDurationOrZero(fc.Providers.Timeout, 0)

	cfg.BreakerEnabled = fc.Providers.CircuitBreaker.Enabled
	cfg.BreakerFailureThreshold = fc.Providers.CircuitBreaker.FailureThreshold
	if cfg.BreakerFailureThreshold == 0 {
		cfg.BreakerFailureThreshold = 5
	}
	cfg.BreakerOpenTimeout = parseDuration(fc.Providers.CircuitBreaker.OpenTimeout, 30*time.Second)

	cfg.CacheBackend = strings.ToLower(firstNonEmpty(os.Getenv("CACHE_BACKEND"), fc.Cache.Backend, BackendRedis))
	cfg.RedisURL = firstNonEmpty(os.Getenv("REDIS_URL"), fc.Cache.Redis.URL, "redis://redis-service:6379")
	cfg.RedisQueryTimeout = parseDuration(fc.Cache.Redis.QueryTimeout, 2*time.Second)
	cfg.MemcachedAddrs = firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Cache.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.LocationTTL = parseDuration(fc.Cache.TTL.Location, time.Hour)
	cfg.WeatherTTL = parseDuration(fc.Cache.TTL.Weather, 5*time.Minute)
	cfg.ForecastTTL = parseDuration(fc.Cache.TTL.Forecast, 30*time.Minute)

	cfg.CoalesceEnabled = fc.Service.CoalesceEnabled
	cfg.CoalesceTimeout = parseDuration(fc.Service.CoalesceTimeout, 5*time.Second)

	cfg.WarmCoordinates = fc.Cache.Warm.Coordinates
	cfg.WarmInterval = parseDurationOrZero(fc.Cache.Warm.Interval, 0)

	cfg.RateLimitDisabled = fc.RateLimit.Enabled != nil && !*fc.RateLimit.Enabled
	cfg.RateLimitRequests = fc.RateLimit.Requests
	if cfg.RateLimitRequests <= 0 {
		cfg.RateLimitRequests = 100
	}
	cfg.RateLimitWindow = parseDuration(fc.RateLimit.Window, 15*time.Minute)

	cfg.Locale = firstNonEmpty(os.Getenv("LOCALE"), fc.App.Locale, "en-US")
	cfg.Timezone = firstNonEmpty(os.Getenv("APP_TIMEZONE"), fc.App.Timezone)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadAPIKey prefers OPENWEATHER_API_KEY, then config/secrets.yaml, then the placeholder.
func loadAPIKey(dir string) (string, error) {
	if key := strings.TrimSpace(os.Getenv("OPENWEATHER_API_KEY")); key != "" {
		return key, nil
	}
	secretsPath := filepath.Join(dir, "config", "secrets.yaml")
	data, err := os.ReadFile(secretsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return PlaceholderAPIKey, nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return firstNonEmpty(strings.TrimSpace(sec.OpenWeatherAPIKey), PlaceholderAPIKey), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
// Used for parsing duration fields from YAML config with safe fallback to defaults.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	port, err := strconv.Atoi(cfg.ServerPort)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a port number, got %q", cfg.ServerPort)
	}
	switch cfg.CacheBackend {
	case BackendRedis, BackendMemcached, BackendInMemory:
	default:
		return fmt.Errorf("cache.backend must be redis, memcached or in_memory, got %q", cfg.CacheBackend)
	}
	if _, err := clock.ParseLocale(cfg.Locale); err != nil {
		return fmt.Errorf("app.locale: %w", err)
	}
	if cfg.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			return fmt.Errorf("app.timezone: %w", err)
		}
	}
	if _, ok := validation.NormalizeIP(cfg.FallbackIP); !ok {
		return fmt.Errorf("server.fallback_ip must be an IP address, got %q", cfg.FallbackIP)
	}
	for i, c := range cfg.WarmCoordinates {
		coords, err := validation.ValidateCoordinates(c.Lat, c.Lon)
		if err != nil {
			return fmt.Errorf("cache.warm.coordinates[%d]: %w", i, err)
		}
		cfg.WarmCoordinates[i] = coords
	}
	return nil
}

// Location returns the configured time zone, or time.Local when unset.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
