package cache

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard-api/internal/observability"
)

// Adapter is the fail-open front of a Store. Caching is an optimization only:
// Get never fails (errors degrade to a miss) and Set never fails (errors are
// logged and reported as not stored).
//
// The enabled state is decided once in NewAdapter and never changes, so an
// Adapter is safe to share across requests without locking.
type Adapter struct {
	store   Store
	enabled bool
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewAdapter pings store once. If store is nil or the ping fails the adapter
// is permanently disabled for the life of the process and the store is closed.
func NewAdapter(ctx context.Context, store Store, logger *zap.Logger, metrics *observability.Metrics) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Adapter{logger: logger, metrics: metrics}
	if store == nil {
		logger.Info("cache disabled: no store configured")
		return a
	}
	if err := store.Ping(ctx); err != nil {
		logger.Warn("cache store unreachable, caching disabled", zap.Error(err))
		if cerr := store.Close(); cerr != nil {
			logger.Debug("cache store close", zap.Error(cerr))
		}
		return a
	}
	a.store = store
	a.enabled = true
	logger.Info("cache store connected")
	return a
}

// Connected reports whether the store was reachable at startup.
func (a *Adapter) Connected() bool {
	return a != nil && a.enabled
}

// Get returns the stored payload on hit. Disabled adapters, store errors and
// payloads that are not valid JSON all return a miss.
func (a *Adapter) Get(ctx context.Context, key string) ([]byte, bool) {
	if !a.Connected() {
		return nil, false
	}
	data, ok, err := a.store.Get(ctx, key)
	if err != nil {
		a.metrics.RecordCacheError("get")
		observability.LoggerFromContext(ctx, a.logger).Warn("cache read error", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if !json.Valid(data) {
		a.metrics.RecordCacheError("decode")
		observability.LoggerFromContext(ctx, a.logger).Warn("cache read error: corrupt payload", zap.String("key", key))
		return nil, false
	}
	return data, true
}

// Set stores value under key for ttl and reports whether it was stored.
func (a *Adapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if !a.Connected() {
		return false
	}
	if err := a.store.Set(ctx, key, value, ttl); err != nil {
		a.metrics.RecordCacheError("set")
		observability.LoggerFromContext(ctx, a.logger).Warn("cache write error", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Close releases the underlying store, if any.
func (a *Adapter) Close() error {
	if !a.Connected() {
		return nil
	}
	return a.store.Close()
}
