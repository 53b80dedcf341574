package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestInFlightTracker_Count(t *testing.T) {
	tracker := &InFlightTracker{}

	tracker.Increment()
	tracker.Increment()
	if got := tracker.Count(); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}
	tracker.Decrement()
	tracker.Decrement()
	if got := tracker.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}
}

func TestInFlightTracker_WaitForZero(t *testing.T) {
	tracker := &InFlightTracker{}
	tracker.Increment()

	done := make(chan error, 1)
	go func() {
		done <- tracker.WaitForZero(context.Background(), 5*time.Millisecond)
	}()

	time.Sleep(10 * time.Millisecond)
	tracker.Decrement()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WaitForZero() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitForZero did not return after count reached zero")
	}
}

func TestInFlightTracker_WaitForZero_ContextCanceled(t *testing.T) {
	tracker := &InFlightTracker{}
	tracker.Increment()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := tracker.WaitForZero(ctx, 5*time.Millisecond); err == nil {
		t.Error("WaitForZero expected context error, got nil")
	}
}

// TestMetricsMiddleware_TracksInFlight holds a request open inside the
// middleware and checks it is visible to DrainInFlight.
func TestMetricsMiddleware_TracksInFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	h := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
	}))

	done := make(chan struct{})
	go func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1.0/stations", nil))
		close(done)
	}()
	<-entered

	if got := InFlightCount(); got < 1 {
		t.Fatalf("InFlightCount() = %d during request, want >= 1", got)
	}
	if DrainInFlight(20*time.Millisecond, 5*time.Millisecond, zap.NewNop()) {
		t.Error("DrainInFlight() = true with a request still running")
	}

	close(release)
	<-done
	if !DrainInFlight(time.Second, 5*time.Millisecond, zap.NewNop()) {
		t.Errorf("DrainInFlight() = false after request finished, in flight = %d", InFlightCount())
	}
}
