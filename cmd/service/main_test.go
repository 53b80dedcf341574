package main

import (
	"testing"

	"go.uber.org/zap"

	"github.com/kjstillabower/climate-observations-api/internal/cache"
	"github.com/kjstillabower/climate-observations-api/internal/config"
)

func TestBuildCache(t *testing.T) {
	tests := []struct {
		backend       string
		wantCache     bool
		wantMemcached bool
	}{
		{"in_memory", true, false},
		{"memcached", true, true},
		{"none", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg := &config.Config{CacheBackend: tt.backend, CacheMaxEntries: 16, MemcachedAddrs: "localhost:11211"}

			c, mc, err := buildCache(cfg, zap.NewNop())
			if err != nil {
				t.Fatalf("buildCache() error = %v", err)
			}
			if (c != nil) != tt.wantCache {
				t.Errorf("cache = %v, want present=%v", c, tt.wantCache)
			}
			if (mc != nil) != tt.wantMemcached {
				t.Errorf("memcached closer = %v, want present=%v", mc, tt.wantMemcached)
			}
			if mc != nil {
				_ = mc.Close()
			}
			if tt.backend == "in_memory" {
				if _, ok := c.(*cache.InMemoryCache); !ok {
					t.Errorf("cache type = %T, want *cache.InMemoryCache", c)
				}
			}
		})
	}
}

// TestCoverageGaps_IntentionallyUntested documents why main itself has no unit test.
// Run with -v to see skip reason.
func TestCoverageGaps_IntentionallyUntested(t *testing.T) {
	t.Skip("main() is wiring plus signal handling; route behaviour is covered through internal/http.NewRouter against a fixture dataset")
}
