// Package storetest builds throwaway SQLite datasets shaped like hawaii.sqlite for tests.
package storetest

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kjstillabower/climate-observations-api/internal/models"
)

// Schema mirrors the measurement and station tables of the climate dataset.
const Schema = `
CREATE TABLE measurement (
  id      INTEGER PRIMARY KEY AUTOINCREMENT,
  station TEXT,
  date    TEXT,
  prcp    FLOAT,
  tobs    FLOAT
);
CREATE TABLE station (
  id        INTEGER PRIMARY KEY AUTOINCREMENT,
  station   TEXT,
  name      TEXT,
  latitude  FLOAT,
  longitude FLOAT,
  elevation FLOAT
);
`

// Dataset is the content written into a fixture database.
type Dataset struct {
	Measurements []models.Measurement
	Stations     []models.Station
}

// NewDatabase writes ds into a fresh SQLite file under t.TempDir and returns its path.
// The file is closed before returning so callers can reopen it read-only.
func NewDatabase(t *testing.T, ds Dataset) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "climate.sqlite")
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		t.Fatalf("open fixture db: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close fixture db: %v", err)
		}
	}()

	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("exec schema: %v", err)
	}
	for _, m := range ds.Measurements {
		var prcp any
		if m.Precipitation != nil {
			prcp = *m.Precipitation
		}
		if _, err := db.Exec(`INSERT INTO measurement (station, date, prcp, tobs) VALUES (?, ?, ?, ?)`,
			m.StationID, m.Date, prcp, m.Tobs); err != nil {
			t.Fatalf("insert measurement: %v", err)
		}
	}
	for _, s := range ds.Stations {
		if _, err := db.Exec(`INSERT INTO station (station, name, latitude, longitude, elevation) VALUES (?, ?, ?, ?, ?)`,
			s.StationID, s.Name, s.Latitude, s.Longitude, s.Elevation); err != nil {
			t.Fatalf("insert station: %v", err)
		}
	}
	return path
}

// Float returns a pointer to v, for optional precipitation values.
func Float(v float64) *float64 {
	return &v
}

// Hawaii is a small sample in the shape of hawaii.sqlite.
func Hawaii() Dataset {
	return Dataset{
		Measurements: []models.Measurement{
			{StationID: "USC00519397", Date: "2010-01-01", Precipitation: Float(0.08), Tobs: 65},
			{StationID: "USC00519397", Date: "2017-08-23", Precipitation: Float(0.0), Tobs: 81},
			{StationID: "USC00519281", Date: "2016-08-22", Precipitation: Float(0.4), Tobs: 78},
			{StationID: "USC00519281", Date: "2016-08-23", Precipitation: Float(1.79), Tobs: 77},
			{StationID: "USC00519281", Date: "2017-01-15", Precipitation: nil, Tobs: 68},
			{StationID: "USC00519281", Date: "2017-08-18", Precipitation: Float(0.06), Tobs: 79},
			{StationID: "USC00519281", Date: "2017-08-23", Precipitation: Float(0.0), Tobs: 79},
		},
		Stations: []models.Station{
			{StationID: "USC00519397", Name: "WAIKIKI 717.2, HI US", Latitude: 21.2716, Longitude: -157.8168, Elevation: 3},
			{StationID: "USC00519281", Name: "WAIHEE 837.5, HI US", Latitude: 21.45167, Longitude: -157.84889, Elevation: 32.9},
			{StationID: "USC00513117", Name: "KANEOHE 838.1, HI US", Latitude: 21.4234, Longitude: -157.8015, Elevation: 14.6},
		},
	}
}
