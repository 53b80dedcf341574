package models

// Measurement is one station-day reading from the measurement table.
// Precipitation is nil when the station reported no value for the day.
type Measurement struct {
	StationID     string
	Date          string // YYYY-MM-DD
	Precipitation *float64
	Tobs          float64
}

// Station is the metadata row for an observation site.
type Station struct {
	StationID string
	Name      string
	Latitude  float64
	Longitude float64
	Elevation float64
}

type PrecipitationReading struct {
	Date string
	Prcp *float64
}

type TemperatureObservation struct {
	Date string
	Tobs float64
}

// DateRange bounds a date filter. Both bounds are inclusive; an empty bound is unbounded.
type DateRange struct {
	Start string
	End   string
}

// TemperatureAggregate is the min/max/avg of tobs over a date range.
// All fields are nil when no rows matched.
type TemperatureAggregate struct {
	Min *float64
	Max *float64
	Avg *float64
}

// Empty reports whether the aggregate was computed over zero rows.
func (a TemperatureAggregate) Empty() bool {
	return a.Min == nil && a.Max == nil && a.Avg == nil
}
