// Package mapper turns query results into the record shapes served by the API.
// Struct fields are declared in alphabetical key order so encoded objects list
// their keys in sorted order, which v1.0 clients see today.
package mapper

import "github.com/kjstillabower/climate-observations-api/internal/models"

// PrecipitationRecord is one (date, prcp) pair; prcp encodes as null when absent.
type PrecipitationRecord struct {
	Date string   `json:"date"`
	Prcp *float64 `json:"prcp"`
}

// TobsRecord is one temperature observation.
type TobsRecord struct {
	Date string  `json:"date"`
	Tobs float64 `json:"tobs"`
}

// StatsRecord carries an always-null date alongside the aggregate.
type StatsRecord struct {
	Date *string  `json:"date"`
	TAvg *float64 `json:"tavg"`
	TMax *float64 `json:"tmax"`
	TMin *float64 `json:"tmin"`
}

// Precipitation maps readings to records in store order. Never returns nil.
func Precipitation(in []models.PrecipitationReading) []PrecipitationRecord {
	out := make([]PrecipitationRecord, 0, len(in))
	for _, r := range in {
		out = append(out, PrecipitationRecord{Date: r.Date, Prcp: r.Prcp})
	}
	return out
}

// Stations flattens station ids into a plain list. Never returns nil.
func Stations(ids []string) []string {
	out := make([]string, 0, len(ids))
	return append(out, ids...)
}

// Tobs maps observations to records in query order. Never returns nil.
func Tobs(in []models.TemperatureObservation) []TobsRecord {
	out := make([]TobsRecord, 0, len(in))
	for _, r := range in {
		out = append(out, TobsRecord{Date: r.Date, Tobs: r.Tobs})
	}
	return out
}

// Stats wraps the aggregate in a one-element list.
func Stats(agg models.TemperatureAggregate) []StatsRecord {
	return []StatsRecord{{
		TAvg: agg.Avg,
		TMax: agg.Max,
		TMin: agg.Min,
	}}
}
