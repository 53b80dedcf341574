package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Logger         *zap.Logger
	Limiter        *rate.Limiter // nil disables rate limiting
	RequestTimeout time.Duration // <= 0 disables the per-request deadline
	Metrics        http.Handler  // served at /metrics when set
}

// NewRouter registers every route on a new router. The fixed /api/v1.0 routes
// are registered before the {start} patterns, so "precipitation" and friends
// never reach the stats handler.
func NewRouter(h *Handler, opts RouterOptions) *mux.Router {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/", h.Index).Methods(http.MethodGet)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics)
	}

	api := router.PathPrefix("/api/v1.0").Subrouter()
	api.Use(RateLimitMiddleware(opts.Limiter))
	if opts.RequestTimeout > 0 {
		api.Use(TimeoutMiddleware(opts.RequestTimeout))
	}
	api.HandleFunc("/precipitation", h.GetPrecipitation).Methods(http.MethodGet)
	api.HandleFunc("/stations", h.GetStations).Methods(http.MethodGet)
	api.HandleFunc("/tobs", h.GetTobs).Methods(http.MethodGet)
	api.HandleFunc("/{start}", h.GetTemperatureStats).Methods(http.MethodGet)
	api.HandleFunc("/{start}/{end}", h.GetTemperatureStats).Methods(http.MethodGet)
	return router
}
