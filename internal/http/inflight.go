package http

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// InFlightTracker counts requests currently being served so shutdown can
// wait for store queries to finish before the database is closed.
type InFlightTracker struct {
	count atomic.Int64
}

// Increment adds one to the in-flight count. Call when a request starts.
func (t *InFlightTracker) Increment() { t.count.Add(1) }

// Decrement subtracts one from the in-flight count. Call when a request completes.
func (t *InFlightTracker) Decrement() { t.count.Add(-1) }

// Count returns the current in-flight count.
func (t *InFlightTracker) Count() int64 { return t.count.Load() }

// WaitForZero blocks until the in-flight count reaches zero or ctx is done,
// re-checking every checkInterval.
func (t *InFlightTracker) WaitForZero(ctx context.Context, checkInterval time.Duration) error {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		if t.Count() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// globalInFlightTracker is the process-wide counter maintained by MetricsMiddleware.
var globalInFlightTracker = &InFlightTracker{}

// InFlightCount returns the current number of in-flight requests.
func InFlightCount() int64 {
	return globalInFlightTracker.Count()
}

// DrainInFlight waits up to timeout for in-flight requests to finish.
// Returns false if requests were still running when it gave up.
func DrainInFlight(timeout, checkInterval time.Duration, logger *zap.Logger) bool {
	n := InFlightCount()
	if n == 0 {
		return true
	}
	logger.Info("waiting for in-flight requests", zap.Int64("count", n))
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := globalInFlightTracker.WaitForZero(ctx, checkInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", InFlightCount()))
		return false
	}
	return true
}
