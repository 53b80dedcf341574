package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/climate-observations-api/internal/observability"
)

// RouteLoader is implemented by the service layer. Loading a route through it
// populates the cache as a side effect.
type RouteLoader interface {
	Load(ctx context.Context, route string) ([]byte, error)
}

// CacheWarmer prefetches the parameterless routes so first requests hit cache.
type CacheWarmer struct {
	loader RouteLoader
	logger *zap.Logger

	mu        sync.Mutex
	scheduler *gocron.Scheduler
}

// NewCacheWarmer creates a CacheWarmer. logger may be nil.
func NewCacheWarmer(loader RouteLoader, logger *zap.Logger) *CacheWarmer {
	return &CacheWarmer{loader: loader, logger: logger}
}

// Warm loads each route concurrently. Returns the joined per-route errors.
func (w *CacheWarmer) Warm(ctx context.Context, routes []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming cache", zap.Strings("routes", routes))
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(routes))
	for _, route := range routes {
		route := route
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := w.loader.Load(ctx, route); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", route, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Int("routes", len(routes)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// Schedule re-runs Warm every interval until Stop is called. The first run
// happens one interval from now; call Warm directly for an immediate pass.
// Warm loads through the cache, so a run only refreshes routes whose entry
// has expired; use an interval no shorter than the cache TTL.
func (w *CacheWarmer) Schedule(routes []string, interval time.Duration, timeout time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("cache warming interval must be positive, got %s", interval)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.scheduler != nil {
		return errors.New("cache warming already scheduled")
	}

	s := gocron.NewScheduler(time.UTC)
	_, err := s.Every(interval).WaitForSchedule().SingletonMode().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := w.Warm(ctx, routes); err != nil && w.logger != nil {
			w.logger.Warn("periodic cache warm failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule cache warming: %w", err)
	}
	s.StartAsync()
	w.scheduler = s
	return nil
}

// Stop cancels scheduled warming. Safe to call when nothing is scheduled.
func (w *CacheWarmer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.scheduler != nil {
		w.scheduler.Stop()
		w.scheduler = nil
	}
}
