package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type mockRouteLoader struct {
	mu     sync.Mutex
	loaded map[string]int
	err    error
}

func (m *mockRouteLoader) Load(ctx context.Context, route string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded == nil {
		m.loaded = make(map[string]int)
	}
	m.loaded[route]++
	if m.err != nil {
		return nil, m.err
	}
	return []byte("[]"), nil
}

func (m *mockRouteLoader) count(route string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded[route]
}

func TestCacheWarmer_Warm_Success(t *testing.T) {
	loader := &mockRouteLoader{}
	warmer := NewCacheWarmer(loader, nil)

	if err := warmer.Warm(context.Background(), []string{"precipitation", "stations", "tobs"}); err != nil {
		t.Fatalf("Warm() error = %v, want nil", err)
	}
	for _, r := range []string{"precipitation", "stations", "tobs"} {
		if n := loader.count(r); n != 1 {
			t.Errorf("route %s loaded %d times, want 1", r, n)
		}
	}
}

func TestCacheWarmer_Warm_EmptyRoutes(t *testing.T) {
	warmer := NewCacheWarmer(&mockRouteLoader{}, nil)

	if err := warmer.Warm(context.Background(), nil); err != nil {
		t.Fatalf("Warm() with nil routes error = %v, want nil", err)
	}
}

func TestCacheWarmer_Warm_LoaderError(t *testing.T) {
	warmer := NewCacheWarmer(&mockRouteLoader{err: errors.New("database is locked")}, nil)

	err := warmer.Warm(context.Background(), []string{"stations"})
	if err == nil {
		t.Fatal("Warm() error = nil, want non-nil")
	}
	if !strings.Contains(err.Error(), "warm stations") {
		t.Errorf("Warm() error = %q, want route named in message", err)
	}
}

func TestCacheWarmer_Schedule(t *testing.T) {
	loader := &mockRouteLoader{}
	warmer := NewCacheWarmer(loader, nil)
	defer warmer.Stop()

	if err := warmer.Schedule([]string{"stations"}, 20*time.Millisecond, time.Second); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if err := warmer.Schedule([]string{"stations"}, 20*time.Millisecond, time.Second); err == nil {
		t.Error("second Schedule() error = nil, want already scheduled")
	}

	deadline := time.Now().Add(2 * time.Second)
	for loader.count("stations") == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if loader.count("stations") == 0 {
		t.Fatal("scheduled warm never ran")
	}
}

func TestCacheWarmer_Schedule_InvalidInterval(t *testing.T) {
	warmer := NewCacheWarmer(&mockRouteLoader{}, nil)
	if err := warmer.Schedule([]string{"stations"}, 0, time.Second); err == nil {
		t.Error("Schedule() error = nil, want error for zero interval")
	}
	warmer.Stop()
}
