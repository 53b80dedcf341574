package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/climate-observations-api/internal/cache"
	"github.com/kjstillabower/climate-observations-api/internal/config"
	httphandler "github.com/kjstillabower/climate-observations-api/internal/http"
	"github.com/kjstillabower/climate-observations-api/internal/lifecycle"
	"github.com/kjstillabower/climate-observations-api/internal/observability"
	"github.com/kjstillabower/climate-observations-api/internal/service"
	"github.com/kjstillabower/climate-observations-api/internal/store"
)

const warmTimeout = 30 * time.Second

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	db, err := store.Open(store.Options{
		Path:            cfg.DatabasePath,
		DSN:             cfg.DatabaseDSN,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	})
	if err != nil {
		logger.Fatal("open dataset", zap.String("path", cfg.DatabasePath), zap.Error(err))
	}
	climateStore := store.New(db, logger)
	logger.Info("dataset opened", zap.String("path", cfg.DatabasePath))

	cacheSvc, memcacheCloser, err := buildCache(cfg, logger)
	if err != nil {
		logger.Fatal("cache", zap.Error(err))
	}

	climateService := service.NewClimateService(climateStore, cacheSvc, cfg.CacheTTL, service.TobsSettings{
		StationID:       cfg.TobsStation,
		ReferenceDate:   cfg.TobsReferenceDate,
		WindowDays:      cfg.TobsWindowDays,
		DeriveFromStore: cfg.TobsDeriveFromStore,
	}, cfg.CoalesceTimeout)

	var warmer *cache.CacheWarmer
	if cfg.WarmCache && cacheSvc != nil {
		warmer = cache.NewCacheWarmer(climateService, logger)
		warmCtx, warmCancel := context.WithTimeout(context.Background(), warmTimeout)
		if err := warmer.Warm(warmCtx, service.StaticRoutes); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
		if cfg.WarmInterval > 0 {
			if err := warmer.Schedule(service.StaticRoutes, cfg.WarmInterval, warmTimeout); err != nil {
				logger.Error("schedule cache warming", zap.Error(err))
			}
		}
	}

	healthConfig := &httphandler.HealthConfig{
		OverloadWindow:         cfg.OverloadWindow,
		OverloadThresholdPct:   cfg.OverloadThresholdPct,
		RateLimitRPS:           cfg.RateLimitRPS,
		DegradedWindow:         cfg.DegradedWindow,
		DegradedErrorPct:       cfg.DegradedErrorPct,
		IdleWindow:             cfg.IdleWindow,
		IdleThresholdReqPerMin: cfg.IdleThresholdReqPerMin,
		MinimumLifespan:        cfg.MinimumLifespan,
		StorePing:              climateStore.Ping,
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(climateService, healthConfig, logger, httphandler.StatsOptions{
		FilterMode:    service.FilterMode(cfg.StatsFilterMode),
		ValidateDates: cfg.StatsValidateDates,
	})
	observability.RegisterTrafficGauges(cfg.OverloadWindow)

	router := httphandler.NewRouter(handler, httphandler.RouterOptions{
		Logger:         logger,
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
		Metrics:        observability.MetricsHandler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", ":"+cfg.ServerPort),
			zap.String("stats_filter_mode", cfg.StatsFilterMode))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()
	lifecycle.MarkStarted(time.Now())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	if warmer != nil {
		warmer.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	httphandler.DrainInFlight(cfg.ShutdownInFlightTimeout, cfg.ShutdownInFlightCheckInterval, logger)

	if err := climateStore.Close(); err != nil {
		logger.Error("dataset close", zap.Error(err))
	}
	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// buildCache returns the configured cache backend. The second result is set
// only for memcached and must be closed on shutdown. A nil Cache disables caching.
func buildCache(cfg *config.Config, logger *zap.Logger) (cache.Cache, *cache.MemcachedCache, error) {
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, nil, fmt.Errorf("memcached cache: %w", err)
		}
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		return mc, mc, nil
	case "none":
		logger.Info("cache disabled")
		return nil, nil, nil
	default:
		logger.Info("cache backend: in_memory", zap.Int("max_entries", cfg.CacheMaxEntries))
		return cache.NewInMemoryCache(cfg.CacheMaxEntries), nil, nil
	}
}
