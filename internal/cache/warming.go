package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard-api/internal/models"
	"github.com/kjstillabower/weather-dashboard-api/internal/observability"
)

// CoordinateWarmer is implemented by the service layer: it runs the
// cache-aside path for every cached route keyed by coordinates.
// Declared here to avoid a circular dependency on the service package.
type CoordinateWarmer interface {
	WarmCoordinates(ctx context.Context, coords models.Coordinates) error
}

// Warmer prefetches weather and forecast for a fixed list of coordinates.
type Warmer struct {
	target  CoordinateWarmer
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewWarmer(target CoordinateWarmer, logger *zap.Logger, metrics *observability.Metrics) *Warmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Warmer{target: target, logger: logger, metrics: metrics}
}

// Warm fetches every coordinate pair concurrently. Returns the joined errors
// of the pairs that failed.
func (w *Warmer) Warm(ctx context.Context, coords []models.Coordinates) error {
	if len(coords) == 0 {
		return nil
	}
	start := time.Now()
	w.logger.Info("warming cache", zap.Int("coordinates", len(coords)))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, c := range coords {
		wg.Add(1)
		go func(c models.Coordinates) {
			defer wg.Done()
			if err := w.target.WarmCoordinates(ctx, c); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("warm %s: %w", c, err))
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	w.metrics.RecordCacheWarming(len(errs) > 0)
	w.logger.Info("cache warming complete",
		zap.Int("coordinates", len(coords)),
		zap.Int("errors", len(errs)),
		zap.Duration("duration", time.Since(start)))
	if len(errs) > 0 {
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// WarmPeriodic runs Warm immediately and then every interval until ctx is done.
func (w *Warmer) WarmPeriodic(ctx context.Context, coords []models.Coordinates, interval time.Duration) error {
	if err := w.Warm(ctx, coords); err != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, coords); err != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
