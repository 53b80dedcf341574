package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/climate-observations-api/internal/validation"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	DatabasePath            string
	DatabaseDSN             string
	DatabaseMaxOpenConns    int
	DatabaseMaxIdleConns    int
	DatabaseConnMaxLifetime time.Duration

	RequestTimeout time.Duration

	CacheBackend          string `validate:"oneof=in_memory memcached none"`
	CacheTTL              time.Duration
	CacheMaxEntries       int
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	CoalesceTimeout       time.Duration
	WarmCache             bool
	WarmInterval          time.Duration

	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	OverloadWindow         time.Duration
	OverloadThresholdPct   int `validate:"min=1,max=100"`
	IdleThresholdReqPerMin int
	IdleWindow             time.Duration
	MinimumLifespan        time.Duration
	DegradedWindow         time.Duration
	DegradedErrorPct       int `validate:"min=1,max=100"`

	TobsStation         string `validate:"required"`
	TobsReferenceDate   string `validate:"datetime=2006-01-02"`
	TobsWindowDays      int    `validate:"min=1"`
	TobsDeriveFromStore bool

	StatsFilterMode    string `validate:"oneof=literal range"`
	StatsValidateDates bool
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Path            string `yaml:"path"`
		DSN             string `yaml:"dsn"`
		MaxOpenConns    int    `yaml:"max_open_conns"`
		MaxIdleConns    *int   `yaml:"max_idle_conns"`
		ConnMaxLifetime string `yaml:"conn_max_lifetime"`
	} `yaml:"database"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend         string `yaml:"backend"`
		TTL             string `yaml:"ttl"`
		MaxEntries      int    `yaml:"max_entries"`
		CoalesceTimeout string `yaml:"coalesce_timeout"`
		Warm            *bool  `yaml:"warm"`
		WarmInterval    string `yaml:"warm_interval"`
		Memcached       struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		OverloadWindow         string `yaml:"overload_window"`
		OverloadThresholdPct   int    `yaml:"overload_threshold_pct"`
		IdleThresholdReqPerMin int    `yaml:"idle_threshold_req_per_min"`
		IdleWindow             string `yaml:"idle_window"`
		MinimumLifespan        string `yaml:"minimum_lifespan"`
		DegradedWindow         string `yaml:"degraded_window"`
		DegradedErrorPct       int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`

	Tobs struct {
		Station         string `yaml:"station"`
		ReferenceDate   string `yaml:"reference_date"`
		WindowDays      int    `yaml:"window_days"`
		DeriveFromStore bool   `yaml:"derive_from_store"`
	} `yaml:"tobs"`

	Stats struct {
		FilterMode    string `yaml:"filter_mode"`
		ValidateDates bool   `yaml:"validate_dates"`
	} `yaml:"stats"`
}

// Load reads .env (if present), then config/{ENV_NAME}.yaml (default dev)
// relative to the working directory. Call from project root.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFile(filepath.Join(cwd, "config", env+".yaml"))
}

// LoadFile reads configuration from the YAML file at path, applies env
// overrides and defaults, and validates the result.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = envOr("SERVER_PORT", fc.Server.Port)
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.DatabasePath = envOr("DATABASE_PATH", fc.Database.Path)
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "Resources/hawaii.sqlite"
	}
	cfg.DatabaseDSN = strings.TrimSpace(fc.Database.DSN)
	cfg.DatabaseMaxOpenConns = fc.Database.MaxOpenConns
	if cfg.DatabaseMaxOpenConns <= 0 {
		cfg.DatabaseMaxOpenConns = 8
	}
	cfg.DatabaseMaxIdleConns = 4
	if fc.Database.MaxIdleConns != nil {
		cfg.DatabaseMaxIdleConns = *fc.Database.MaxIdleConns
	}
	cfg.DatabaseConnMaxLifetime = parseDuration(fc.Database.ConnMaxLifetime, 30*time.Minute)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)

	cfg.CacheBackend = strings.ToLower(envOr("CACHE_BACKEND", fc.Cache.Backend))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, time.Hour)
	cfg.CacheMaxEntries = fc.Cache.MaxEntries
	if cfg.CacheMaxEntries <= 0 {
		cfg.CacheMaxEntries = 1024
	}
	cfg.MemcachedAddrs = envOr("MEMCACHED_ADDRS", fc.Cache.Memcached.Addrs)
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.CoalesceTimeout = parseDurationOrZero(fc.Cache.CoalesceTimeout, 5*time.Second)
	cfg.WarmCache = true
	if fc.Cache.Warm != nil {
		cfg.WarmCache = *fc.Cache.Warm
	}
	cfg.WarmInterval = parseDurationOrZero(fc.Cache.WarmInterval, 0)

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Lifecycle.OverloadThresholdPct
	if cfg.OverloadThresholdPct == 0 {
		cfg.OverloadThresholdPct = 80
	}
	cfg.IdleThresholdReqPerMin = fc.Lifecycle.IdleThresholdReqPerMin
	if cfg.IdleThresholdReqPerMin <= 0 {
		cfg.IdleThresholdReqPerMin = 5
	}
	cfg.IdleWindow = parseDurationOrZero(fc.Lifecycle.IdleWindow, 5*time.Minute)
	cfg.MinimumLifespan = parseDurationOrZero(fc.Lifecycle.MinimumLifespan, 5*time.Minute)
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct == 0 {
		cfg.DegradedErrorPct = 5
	}

	cfg.TobsStation = strings.TrimSpace(fc.Tobs.Station)
	if cfg.TobsStation == "" {
		cfg.TobsStation = "USC00519281"
	}
	cfg.TobsReferenceDate = strings.TrimSpace(fc.Tobs.ReferenceDate)
	if cfg.TobsReferenceDate == "" {
		cfg.TobsReferenceDate = "2017-08-23"
	}
	cfg.TobsWindowDays = fc.Tobs.WindowDays
	if cfg.TobsWindowDays == 0 {
		cfg.TobsWindowDays = 365
	}
	cfg.TobsDeriveFromStore = fc.Tobs.DeriveFromStore

	cfg.StatsFilterMode = strings.ToLower(strings.TrimSpace(fc.Stats.FilterMode))
	if cfg.StatsFilterMode == "" {
		cfg.StatsFilterMode = "literal"
	}
	cfg.StatsValidateDates = fc.Stats.ValidateDates

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envOr returns the trimmed env var key if set, otherwise the trimmed fallback.
func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return strings.TrimSpace(fallback)
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero is kept so a setting can be turned off explicitly with "0s".
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return defaultVal
	}
	return d
}

// validate checks enum and range fields via struct tags, then cross-field rules.
func validate(cfg *Config) error {
	if err := validation.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.WarmInterval > 0 && cfg.WarmInterval < time.Minute {
		return fmt.Errorf("cache.warm_interval must be at least 1m, got %s", cfg.WarmInterval)
	}
	if cfg.WarmInterval > 0 && cfg.WarmInterval < cfg.CacheTTL {
		return fmt.Errorf("cache.warm_interval (%s) must be at least cache.ttl (%s); warming reads through the cache", cfg.WarmInterval, cfg.CacheTTL)
	}
	if cfg.CoalesceTimeout > cfg.RequestTimeout {
		cfg.CoalesceTimeout = cfg.RequestTimeout
	}
	return nil
}
