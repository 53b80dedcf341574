package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/climate-observations-api/internal/cache"
	"github.com/kjstillabower/climate-observations-api/internal/mapper"
	"github.com/kjstillabower/climate-observations-api/internal/models"
	"github.com/kjstillabower/climate-observations-api/internal/observability"
	"github.com/kjstillabower/climate-observations-api/internal/store"
)

// Route names double as cache keys for the parameterless endpoints.
const (
	RoutePrecipitation = "precipitation"
	RouteStations      = "stations"
	RouteTobs          = "tobs"
	routeStats         = "stats"
)

// StaticRoutes are the routes whose payload depends on no request input.
var StaticRoutes = []string{RoutePrecipitation, RouteStations, RouteTobs}

// FilterMode selects how the stats path segments map onto a date range.
type FilterMode string

const (
	// FilterLiteral compares date <= start, and date >= end when given, as the v1.0 API always has.
	FilterLiteral FilterMode = "literal"
	// FilterRange treats start/end as inclusive lower/upper bounds.
	FilterRange FilterMode = "range"
)

// StatsRange maps the {start} and optional {end} path segments to a DateRange.
// end is empty for the single-date route.
func StatsRange(mode FilterMode, start, end string) models.DateRange {
	if mode == FilterRange {
		return models.DateRange{Start: start, End: end}
	}
	return models.DateRange{Start: end, End: start}
}

// TobsSettings parameterizes the recent-temperatures route.
type TobsSettings struct {
	StationID     string
	ReferenceDate string
	WindowDays    int
	// DeriveFromStore replaces StationID and ReferenceDate with the most active
	// station and the latest measurement date.
	DeriveFromStore bool
}

// ClimateService runs the dataset queries and returns serialized payloads,
// using cache-aside on the encoded bytes. The dataset is static, so a cached
// payload is identical to a fresh one.
type ClimateService struct {
	store     store.Store
	cache     cache.Cache
	ttl       time.Duration
	tobs      TobsSettings
	coalescer *requestCoalescer
}

// NewClimateService creates a ClimateService. c may be nil to disable caching.
// coalesceTimeout <= 0 disables request coalescing.
func NewClimateService(st store.Store, c cache.Cache, ttl time.Duration, tobs TobsSettings, coalesceTimeout time.Duration) *ClimateService {
	var coalescer *requestCoalescer
	if coalesceTimeout > 0 {
		coalescer = newRequestCoalescer(coalesceTimeout)
	}
	return &ClimateService{
		store:     st,
		cache:     c,
		ttl:       ttl,
		tobs:      tobs,
		coalescer: coalescer,
	}
}

// Precipitation returns every (date, prcp) pair as JSON.
func (s *ClimateService) Precipitation(ctx context.Context) ([]byte, error) {
	return s.serve(ctx, RoutePrecipitation, func(ctx context.Context) (any, error) {
		rows, err := s.store.AllPrecipitation(ctx)
		if err != nil {
			return nil, err
		}
		return mapper.Precipitation(rows), nil
	})
}

// Stations returns the flat list of station ids as JSON.
func (s *ClimateService) Stations(ctx context.Context) ([]byte, error) {
	return s.serve(ctx, RouteStations, func(ctx context.Context) (any, error) {
		ids, err := s.store.AllStations(ctx)
		if err != nil {
			return nil, err
		}
		return mapper.Stations(ids), nil
	})
}

// RecentTemperatures returns the trailing-window tobs for the configured station as JSON.
func (s *ClimateService) RecentTemperatures(ctx context.Context) ([]byte, error) {
	return s.serve(ctx, RouteTobs, func(ctx context.Context) (any, error) {
		stationID, refDate, err := s.tobsTarget(ctx)
		if err != nil {
			return nil, err
		}
		rows, err := s.store.RecentTemperatures(ctx, stationID, refDate, s.tobs.WindowDays)
		if err != nil {
			return nil, err
		}
		return mapper.Tobs(rows), nil
	})
}

// TemperatureStats returns the min/max/avg aggregate over r as JSON.
func (s *ClimateService) TemperatureStats(ctx context.Context, r models.DateRange) ([]byte, error) {
	key := statsKey(r)
	return s.serve(ctx, key, func(ctx context.Context) (any, error) {
		agg, err := s.store.TemperatureStats(ctx, r)
		if err != nil {
			return nil, err
		}
		return mapper.Stats(agg), nil
	})
}

// Load serves one of StaticRoutes. Used by the cache warmer.
func (s *ClimateService) Load(ctx context.Context, route string) ([]byte, error) {
	switch route {
	case RoutePrecipitation:
		return s.Precipitation(ctx)
	case RouteStations:
		return s.Stations(ctx)
	case RouteTobs:
		return s.RecentTemperatures(ctx)
	default:
		return nil, fmt.Errorf("unknown route %q", route)
	}
}

func (s *ClimateService) tobsTarget(ctx context.Context) (stationID, refDate string, err error) {
	if !s.tobs.DeriveFromStore {
		return s.tobs.StationID, s.tobs.ReferenceDate, nil
	}
	stationID, err = s.store.MostActiveStation(ctx)
	if err != nil {
		return "", "", fmt.Errorf("derive tobs station: %w", err)
	}
	refDate, err = s.store.LatestDate(ctx)
	if err != nil {
		return "", "", fmt.Errorf("derive tobs reference date: %w", err)
	}
	observability.LoggerFromContext(ctx).Debug("derived tobs target",
		zap.String("station", stationID), zap.String("reference_date", refDate))
	return stationID, refDate, nil
}

// serve returns the payload for key from cache, or loads, encodes and caches it.
func (s *ClimateService) serve(ctx context.Context, key string, load func(ctx context.Context) (any, error)) ([]byte, error) {
	logger := observability.LoggerFromContext(ctx)
	label := routeLabel(key)

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			observability.CacheErrorsTotal.WithLabelValues("get").Inc()
			logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		case ok:
			observability.CacheHitsTotal.WithLabelValues(label).Inc()
			logger.Debug("cache hit", zap.String("key", key))
			return cached, nil
		default:
			observability.CacheMissesTotal.WithLabelValues(label).Inc()
		}
	}

	fetch := func(ctx context.Context) ([]byte, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", label, err)
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
				observability.CacheErrorsTotal.WithLabelValues("set").Inc()
				logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
			}
		}
		return raw, nil
	}

	if s.coalescer == nil {
		raw, err := fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", label, err)
		}
		return raw, nil
	}

	raw, shared, err := s.coalescer.GetOrDo(ctx, key, fetch)
	if shared {
		observability.RequestCoalescingHitsTotal.WithLabelValues(label).Inc()
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", label, err)
	}
	return raw, nil
}

// statsKey quotes each bound so raw path segments containing ':' cannot
// produce the same key for different ranges.
func statsKey(r models.DateRange) string {
	return routeStats + ":" + strconv.Quote(r.Start) + ":" + strconv.Quote(r.End)
}

// routeLabel trims parameters from a cache key so metric labels stay bounded.
func routeLabel(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}
