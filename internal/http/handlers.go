package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/climate-observations-api/internal/lifecycle"
	"github.com/kjstillabower/climate-observations-api/internal/models"
	"github.com/kjstillabower/climate-observations-api/internal/observability"
	"github.com/kjstillabower/climate-observations-api/internal/service"
	"github.com/kjstillabower/climate-observations-api/internal/traffic"
	"github.com/kjstillabower/climate-observations-api/internal/validation"
)

// indexPage lists the available routes. Served as text/html.
const indexPage = "Available Routes:<br/>" +
	"Precipitation: /api/v1.0/precipitation<br/>" +
	"List of Stations: /api/v1.0/stations<br/>" +
	"Temperature Data @ Most Active Station for Last Year: /api/v1.0/tobs<br/>" +
	"Temperature stats from start date (yyyy-mm-dd): /api/v1.0/yyyy-mm-dd<br/>" +
	"Temperature stats from start to end date (yyyy-mm-dd):/api/v1.0/yyyy-mm-dd/yyyy-mm-dd"

// ClimateQueries returns serialized JSON payloads for each data route.
// Implemented by *service.ClimateService.
type ClimateQueries interface {
	Precipitation(ctx context.Context) ([]byte, error)
	Stations(ctx context.Context) ([]byte, error)
	RecentTemperatures(ctx context.Context) ([]byte, error)
	TemperatureStats(ctx context.Context, r models.DateRange) ([]byte, error)
}

// StatsOptions controls how the stats routes interpret their path segments.
type StatsOptions struct {
	FilterMode    service.FilterMode
	ValidateDates bool
}

// HealthConfig holds lifecycle thresholds for the health handler.
type HealthConfig struct {
	OverloadWindow         time.Duration
	OverloadThresholdPct   int
	RateLimitRPS           int
	DegradedWindow         time.Duration
	DegradedErrorPct       int
	IdleWindow             time.Duration
	IdleThresholdReqPerMin int
	MinimumLifespan        time.Duration
	// StorePing checks that the dataset can still be opened and queried.
	StorePing func(ctx context.Context) error
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	queries          ClimateQueries
	healthConfig     *HealthConfig
	logger           *zap.Logger
	stats            StatsOptions
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. healthConfig may be nil.
func NewHandler(queries ClimateQueries, healthConfig *HealthConfig, logger *zap.Logger, stats StatsOptions) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		queries:      queries,
		healthConfig: healthConfig,
		logger:       logger,
		stats:        stats,
	}
}

// Index handles GET /.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(indexPage))
}

// GetPrecipitation handles GET /api/v1.0/precipitation.
func (h *Handler) GetPrecipitation(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.queries.Precipitation)
}

// GetStations handles GET /api/v1.0/stations.
func (h *Handler) GetStations(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.queries.Stations)
}

// GetTobs handles GET /api/v1.0/tobs.
func (h *Handler) GetTobs(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.queries.RecentTemperatures)
}

// GetTemperatureStats handles GET /api/v1.0/{start} and GET /api/v1.0/{start}/{end}.
func (h *Handler) GetTemperatureStats(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	start, end := vars["start"], vars["end"]

	if h.stats.ValidateDates {
		var err error
		if start, err = validation.ValidateDate(start); err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_DATE", "start: "+err.Error())
			return
		}
		if _, ok := vars["end"]; ok {
			if end, err = validation.ValidateDate(end); err != nil {
				writeError(w, r, http.StatusBadRequest, "INVALID_DATE", "end: "+err.Error())
				return
			}
		}
	}

	dates := service.StatsRange(h.stats.FilterMode, start, end)
	h.serve(w, r, func(ctx context.Context) ([]byte, error) {
		return h.queries.TemperatureStats(ctx, dates)
	})
}

// serve runs load and writes its payload, or the store error envelope on failure.
func (h *Handler) serve(w http.ResponseWriter, r *http.Request, load func(ctx context.Context) ([]byte, error)) {
	body, err := load(r.Context())
	if err != nil {
		traffic.Record(traffic.Failed)
		writeStoreError(w, r, err)
		return
	}
	traffic.Record(traffic.Served)
	writeRaw(w, http.StatusOK, body)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if result.reason == "store_unreachable" {
		checks["store"] = "unhealthy"
	} else {
		checks["store"] = "healthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   "dev",
		"checks":    checks,
		"uptime":    lifecycle.Uptime().Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > store unreachable > overloaded > idle > degraded > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	cfg := h.healthConfig
	if cfg.StorePing != nil {
		if err := cfg.StorePing(ctx); err != nil {
			h.logger.Warn("store ping failed", zap.Error(err))
			return healthResult{"degraded", http.StatusServiceUnavailable, "store_unreachable"}
		}
	}
	// Overloaded when rate-limit denials exceed the configured share of window capacity.
	if cfg.RateLimitRPS > 0 && cfg.OverloadWindow > 0 {
		threshold := float64(cfg.RateLimitRPS) * cfg.OverloadWindow.Seconds() * float64(cfg.OverloadThresholdPct) / 100
		if float64(traffic.Count(traffic.Denied, cfg.OverloadWindow)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	// Idle is only reported once the process has outlived its minimum lifespan.
	if cfg.IdleWindow > 0 && cfg.MinimumLifespan > 0 && lifecycle.Uptime() >= cfg.MinimumLifespan {
		perMin := float64(traffic.RequestCount(cfg.IdleWindow)) / cfg.IdleWindow.Minutes()
		if perMin < float64(cfg.IdleThresholdReqPerMin) {
			return healthResult{"idle", http.StatusOK, "low_traffic"}
		}
	}
	if cfg.DegradedWindow > 0 && cfg.DegradedErrorPct > 0 {
		failed, total := traffic.ErrorRate(cfg.DegradedWindow)
		if total > 0 && float64(failed)*100/float64(total) >= float64(cfg.DegradedErrorPct) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeRaw writes an already-encoded JSON body.
func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeError writes the standard error envelope with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationIDFromContext(r.Context()),
		},
	})
}

// writeStoreError writes a 500 for a failed dataset query and logs the cause.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.LoggerFromContext(r.Context())
	if errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("request timed out", zap.Error(err))
	} else {
		logger.Error("store query failed", zap.Error(err))
	}
	writeError(w, r, http.StatusInternalServerError, "STORE_UNAVAILABLE", "Unable to read climate data")
}
