package service

import (
	"context"
	"sync"
	"time"
)

// call is one store load that concurrent callers for the same key share.
type call struct {
	done   chan struct{}
	result []byte
	err    error
}

// requestCoalescer collapses concurrent cache misses for one key into a single load.
type requestCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*call
	timeout  time.Duration
}

func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{
		inFlight: make(map[string]*call),
		timeout:  timeout,
	}
}

// GetOrDo returns the result of the in-flight load for key, starting fn if none
// is running. shared is true when the caller joined another caller's load.
// The load runs detached from ctx so one caller's cancellation does not fail
// the others; each caller still stops waiting at its own deadline or the
// coalescer timeout.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func(ctx context.Context) ([]byte, error)) (result []byte, shared bool, err error) {
	rc.mu.Lock()
	c, shared := rc.inFlight[key]
	if !shared {
		c = &call{done: make(chan struct{})}
		rc.inFlight[key] = c
		go rc.run(ctx, key, c, fn)
	}
	rc.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	select {
	case <-c.done:
		return c.result, shared, c.err
	case <-waitCtx.Done():
		return nil, shared, waitCtx.Err()
	}
}

func (rc *requestCoalescer) run(ctx context.Context, key string, c *call, fn func(ctx context.Context) ([]byte, error)) {
	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rc.timeout)
	defer cancel()
	c.result, c.err = fn(loadCtx)
	close(c.done)

	rc.mu.Lock()
	delete(rc.inFlight, key)
	rc.mu.Unlock()
}
