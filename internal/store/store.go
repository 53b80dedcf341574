package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/climate-observations-api/internal/models"
	"github.com/kjstillabower/climate-observations-api/internal/observability"
)

//go:embed sql/all-precipitation.sql
var allPrecipitationSQL string

//go:embed sql/all-stations.sql
var allStationsSQL string

//go:embed sql/recent-temperatures.sql
var recentTemperaturesSQL string

//go:embed sql/temperature-stats.sql
var temperatureStatsSQL string

//go:embed sql/latest-date.sql
var latestDateSQL string

//go:embed sql/most-active-station.sql
var mostActiveStationSQL string

// DateLayout is the on-disk format of measurement.date.
const DateLayout = "2006-01-02"

// ErrNoRows is returned by the derivation queries when the measurement table is empty.
var ErrNoRows = errors.New("store: no measurement rows")

// Store is the read-only query surface over the climate dataset.
type Store interface {
	AllPrecipitation(ctx context.Context) ([]models.PrecipitationReading, error)
	AllStations(ctx context.Context) ([]string, error)
	RecentTemperatures(ctx context.Context, stationID, referenceDate string, windowDays int) ([]models.TemperatureObservation, error)
	TemperatureStats(ctx context.Context, r models.DateRange) (models.TemperatureAggregate, error)
	LatestDate(ctx context.Context) (string, error)
	MostActiveStation(ctx context.Context) (string, error)
	Ping(ctx context.Context) error
}

// SQLiteStore implements Store on a *sql.DB. Every call checks out its own
// connection and returns it before the call completes.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// New returns a SQLiteStore. logger may be nil.
func New(db *sql.DB, logger *zap.Logger) *SQLiteStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteStore{db: db, logger: logger}
}

// Close closes the underlying pool.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// withConn runs fn on a connection scoped to this call and records query metrics.
func (s *SQLiteStore) withConn(ctx context.Context, op string, fn func(conn *sql.Conn) error) (err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		observability.RecordStoreQuery(op, status, time.Since(start))
	}()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("%s: acquire connection: %w", op, err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			s.logger.Warn("release connection", zap.String("operation", op), zap.Error(cerr))
		}
	}()

	if err := fn(conn); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *SQLiteStore) closeRows(op string, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		s.logger.Error("close rows", zap.String("operation", op), zap.Error(err))
	}
}

// AllPrecipitation returns every (date, prcp) pair in store order.
func (s *SQLiteStore) AllPrecipitation(ctx context.Context) ([]models.PrecipitationReading, error) {
	var out []models.PrecipitationReading
	err := s.withConn(ctx, "all_precipitation", func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, allPrecipitationSQL)
		if err != nil {
			return err
		}
		defer s.closeRows("all_precipitation", rows)
		for rows.Next() {
			var (
				rec  models.PrecipitationReading
				prcp sql.NullFloat64
			)
			if err := rows.Scan(&rec.Date, &prcp); err != nil {
				return err
			}
			if prcp.Valid {
				v := prcp.Float64
				rec.Prcp = &v
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AllStations returns every station id from the station table.
func (s *SQLiteStore) AllStations(ctx context.Context) ([]string, error) {
	var out []string
	err := s.withConn(ctx, "all_stations", func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, allStationsSQL)
		if err != nil {
			return err
		}
		defer s.closeRows("all_stations", rows)
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			out = append(out, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RecentTemperatures returns the (date, tobs) pairs for stationID within
// [referenceDate - windowDays, referenceDate], most recent first.
func (s *SQLiteStore) RecentTemperatures(ctx context.Context, stationID, referenceDate string, windowDays int) ([]models.TemperatureObservation, error) {
	ref, err := time.Parse(DateLayout, referenceDate)
	if err != nil {
		return nil, fmt.Errorf("recent_temperatures: reference date %q: %w", referenceDate, err)
	}
	from := ref.AddDate(0, 0, -windowDays).Format(DateLayout)

	var out []models.TemperatureObservation
	err = s.withConn(ctx, "recent_temperatures", func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, recentTemperaturesSQL, stationID, referenceDate, from)
		if err != nil {
			return err
		}
		defer s.closeRows("recent_temperatures", rows)
		for rows.Next() {
			var rec models.TemperatureObservation
			if err := rows.Scan(&rec.Date, &rec.Tobs); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TemperatureStats returns min/max/avg tobs over r. An empty match set yields
// an aggregate with nil fields, not an error.
func (s *SQLiteStore) TemperatureStats(ctx context.Context, r models.DateRange) (models.TemperatureAggregate, error) {
	var agg models.TemperatureAggregate
	err := s.withConn(ctx, "temperature_stats", func(conn *sql.Conn) error {
		var lo, hi, avg sql.NullFloat64
		row := conn.QueryRowContext(ctx, temperatureStatsSQL, r.Start, r.Start, r.End, r.End)
		if err := row.Scan(&lo, &hi, &avg); err != nil {
			return err
		}
		agg.Min = nullable(lo)
		agg.Max = nullable(hi)
		agg.Avg = nullable(avg)
		return nil
	})
	if err != nil {
		return models.TemperatureAggregate{}, err
	}
	return agg, nil
}

// LatestDate returns MAX(date) over measurement.
func (s *SQLiteStore) LatestDate(ctx context.Context) (string, error) {
	var latest sql.NullString
	err := s.withConn(ctx, "latest_date", func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, latestDateSQL).Scan(&latest)
	})
	if err != nil {
		return "", err
	}
	if !latest.Valid {
		return "", ErrNoRows
	}
	return latest.String, nil
}

// MostActiveStation returns the station with the most measurement rows.
// Ties break on station id so the answer is stable.
func (s *SQLiteStore) MostActiveStation(ctx context.Context) (string, error) {
	var station string
	err := s.withConn(ctx, "most_active_station", func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, mostActiveStationSQL).Scan(&station)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoRows
	}
	if err != nil {
		return "", err
	}
	return station, nil
}

// Ping checks that the store is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.withConn(ctx, "ping", func(conn *sql.Conn) error {
		return conn.PingContext(ctx)
	})
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
