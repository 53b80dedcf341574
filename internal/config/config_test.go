package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalEnvYAML = `
server:
  port: "8080"
database:
  path: "Resources/hawaii.sqlite"
request:
  timeout: "5s"
cache:
  backend: "in_memory"
  ttl: "5m"
shutdown:
  timeout: "10s"
`

// clearOverrides blanks env overrides so the host environment cannot leak into a test.
func clearOverrides(t *testing.T) {
	t.Helper()
	for _, key := range []string{"ENV_NAME", "DATABASE_PATH", "CACHE_BACKEND", "MEMCACHED_ADDRS", "SERVER_PORT"} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearOverrides(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	t.Chdir(dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TobsStation != "USC00519281" {
		t.Errorf("TobsStation = %q, want USC00519281", cfg.TobsStation)
	}
	if cfg.TobsReferenceDate != "2017-08-23" {
		t.Errorf("TobsReferenceDate = %q, want 2017-08-23", cfg.TobsReferenceDate)
	}
	if cfg.TobsWindowDays != 365 {
		t.Errorf("TobsWindowDays = %d, want 365", cfg.TobsWindowDays)
	}
	if cfg.TobsDeriveFromStore {
		t.Error("TobsDeriveFromStore = true, want false by default")
	}
	if cfg.StatsFilterMode != "literal" {
		t.Errorf("StatsFilterMode = %q, want literal", cfg.StatsFilterMode)
	}
	if cfg.StatsValidateDates {
		t.Error("StatsValidateDates = true, want false by default")
	}
	if !cfg.WarmCache {
		t.Error("WarmCache = false, want true by default")
	}
	if cfg.WarmInterval != 0 {
		t.Errorf("WarmInterval = %v, want 0 (no periodic warm)", cfg.WarmInterval)
	}
	if cfg.DatabaseMaxOpenConns != 8 || cfg.DatabaseMaxIdleConns != 4 {
		t.Errorf("pool = %d/%d, want 8/4", cfg.DatabaseMaxOpenConns, cfg.DatabaseMaxIdleConns)
	}
	if cfg.CacheMaxEntries != 1024 {
		t.Errorf("CacheMaxEntries = %d, want 1024", cfg.CacheMaxEntries)
	}
}

func TestLoad_EnvFileNotFound(t *testing.T) {
	clearOverrides(t)
	t.Setenv("ENV_NAME", "nonexistent")
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing env file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Load() error = %v, want message about config file not found", err)
	}
}

func TestLoad_InvalidConfigYAML(t *testing.T) {
	clearOverrides(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, "not: valid: yaml: [[[")
	t.Chdir(dir)

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for invalid config YAML, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "parse") {
		t.Errorf("Load() error = %v, want message about parse", err)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearOverrides(t)
	os.Unsetenv("DATABASE_PATH")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("DATABASE_PATH=/data/from-dotenv.sqlite\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Chdir(dir)
	t.Cleanup(func() { os.Unsetenv("DATABASE_PATH") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DatabasePath != "/data/from-dotenv.sqlite" {
		t.Errorf("DatabasePath = %q, want value from .env", cfg.DatabasePath)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearOverrides(t)
	t.Setenv("DATABASE_PATH", "/tmp/override.sqlite")
	t.Setenv("CACHE_BACKEND", "MEMCACHED")
	t.Setenv("MEMCACHED_ADDRS", "cache-1:11211,cache-2:11211")
	t.Setenv("SERVER_PORT", "9090")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	t.Chdir(dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DatabasePath != "/tmp/override.sqlite" {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.CacheBackend != "memcached" {
		t.Errorf("CacheBackend = %q, want memcached", cfg.CacheBackend)
	}
	if cfg.MemcachedAddrs != "cache-1:11211,cache-2:11211" {
		t.Errorf("MemcachedAddrs = %q", cfg.MemcachedAddrs)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090", cfg.ServerPort)
	}
}

func TestLoad_EmptyDurationFallsBackToDefault(t *testing.T) {
	clearOverrides(t)
	yaml := `
request:
  timeout: ""
cache:
  ttl: ""
`
	cfg, err := LoadFile(writeFile(t, yaml))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v, want 5s default", cfg.RequestTimeout)
	}
	if cfg.CacheTTL != time.Hour {
		t.Errorf("CacheTTL = %v, want 1h default", cfg.CacheTTL)
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	clearOverrides(t)
	cfg, err := LoadFile(writeFile(t, "cache:\n  ttl: \"invalid\"\n"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.CacheTTL != time.Hour {
		t.Errorf("CacheTTL = %v, want default", cfg.CacheTTL)
	}
}

func TestLoad_ZeroDisablesCoalescing(t *testing.T) {
	clearOverrides(t)
	cfg, err := LoadFile(writeFile(t, "cache:\n  coalesce_timeout: \"0s\"\n  warm: false\n"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.CoalesceTimeout != 0 {
		t.Errorf("CoalesceTimeout = %v, want 0", cfg.CoalesceTimeout)
	}
	if cfg.WarmCache {
		t.Error("WarmCache = true, want false")
	}
}

func TestLoad_CoalesceTimeoutCappedByRequestTimeout(t *testing.T) {
	clearOverrides(t)
	cfg, err := LoadFile(writeFile(t, "request:\n  timeout: \"2s\"\ncache:\n  coalesce_timeout: \"10s\"\n"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.CoalesceTimeout != 2*time.Second {
		t.Errorf("CoalesceTimeout = %v, want capped at 2s", cfg.CoalesceTimeout)
	}
}

func TestLoad_ExplicitZeroIdleConns(t *testing.T) {
	clearOverrides(t)
	cfg, err := LoadFile(writeFile(t, "database:\n  max_idle_conns: 0\n"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.DatabaseMaxIdleConns != 0 {
		t.Errorf("DatabaseMaxIdleConns = %d, want explicit 0 kept", cfg.DatabaseMaxIdleConns)
	}
}

func TestLoad_TobsAndStatsSections(t *testing.T) {
	clearOverrides(t)
	yaml := `
tobs:
  station: "USC00513117"
  reference_date: "2016-12-31"
  window_days: 30
  derive_from_store: true
stats:
  filter_mode: "RANGE"
  validate_dates: true
`
	cfg, err := LoadFile(writeFile(t, yaml))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.TobsStation != "USC00513117" || cfg.TobsReferenceDate != "2016-12-31" || cfg.TobsWindowDays != 30 {
		t.Errorf("tobs = %q/%q/%d", cfg.TobsStation, cfg.TobsReferenceDate, cfg.TobsWindowDays)
	}
	if !cfg.TobsDeriveFromStore {
		t.Error("TobsDeriveFromStore = false, want true")
	}
	if cfg.StatsFilterMode != "range" {
		t.Errorf("StatsFilterMode = %q, want range", cfg.StatsFilterMode)
	}
	if !cfg.StatsValidateDates {
		t.Error("StatsValidateDates = false, want true")
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"unknown cache backend", "cache:\n  backend: \"redis\"\n", "CacheBackend"},
		{"unknown filter mode", "stats:\n  filter_mode: \"between\"\n", "StatsFilterMode"},
		{"malformed reference date", "tobs:\n  reference_date: \"2017-8-23\"\n", "TobsReferenceDate"},
		{"negative window", "tobs:\n  window_days: -1\n", "TobsWindowDays"},
		{"overload pct above 100", "lifecycle:\n  overload_threshold_pct: 150\n", "OverloadThresholdPct"},
		{"warm interval too short", "cache:\n  warm_interval: \"10s\"\n", "warm_interval"},
		{"warm interval below ttl", "cache:\n  ttl: \"1h\"\n  warm_interval: \"30m\"\n", "cache.ttl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearOverrides(t)
			cfg, err := LoadFile(writeFile(t, tt.yaml))
			if err == nil {
				t.Fatalf("LoadFile() error = nil, want error mentioning %s", tt.wantErr)
			}
			if cfg != nil {
				t.Fatalf("LoadFile() expected nil config on error, got %+v", cfg)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadFile() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_LifecycleConfig(t *testing.T) {
	clearOverrides(t)
	yaml := minimalEnvYAML + `
lifecycle:
  overload_window: "30s"
  overload_threshold_pct: 90
  idle_threshold_req_per_min: 3
  idle_window: "2m"
  minimum_lifespan: "1m"
  degraded_window: "60s"
  degraded_error_pct: 10
`
	cfg, err := LoadFile(writeFile(t, yaml))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.OverloadWindow != 30*time.Second {
		t.Errorf("OverloadWindow = %v, want 30s", cfg.OverloadWindow)
	}
	if cfg.OverloadThresholdPct != 90 {
		t.Errorf("OverloadThresholdPct = %d, want 90", cfg.OverloadThresholdPct)
	}
	if cfg.IdleThresholdReqPerMin != 3 {
		t.Errorf("IdleThresholdReqPerMin = %d, want 3", cfg.IdleThresholdReqPerMin)
	}
	if cfg.IdleWindow != 2*time.Minute {
		t.Errorf("IdleWindow = %v, want 2m", cfg.IdleWindow)
	}
	if cfg.MinimumLifespan != time.Minute {
		t.Errorf("MinimumLifespan = %v, want 1m", cfg.MinimumLifespan)
	}
	if cfg.DegradedWindow != 60*time.Second {
		t.Errorf("DegradedWindow = %v, want 60s", cfg.DegradedWindow)
	}
	if cfg.DegradedErrorPct != 10 {
		t.Errorf("DegradedErrorPct = %d, want 10", cfg.DegradedErrorPct)
	}
}

func TestLoad_ProjectDevConfig(t *testing.T) {
	clearOverrides(t)
	t.Chdir(findProjectRoot(t))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort == "" || cfg.DatabasePath == "" {
		t.Errorf("Load() did not populate config from config/dev.yaml")
	}
}

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "config", "dev.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("config/dev.yaml not found (run tests from project root)")
		}
		dir = parent
	}
}
