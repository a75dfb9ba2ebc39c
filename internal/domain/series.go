package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidResponse is wrapped by every validation failure of a RawSeriesResponse.
var ErrInvalidResponse = errors.New("invalid series response")

// ValidationError describes which series made a response unusable.
type ValidationError struct {
	Series string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidResponse, e.Series, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidResponse }

// Series is one per-field hourly column. A null sample is stored as NaN.
type Series []float64

// Null is the in-memory representation of an absent sample.
func Null() float64 { return math.NaN() }

// DailySeries holds one entry per calendar day.
type DailySeries struct {
	Time    []time.Time
	Sunrise []time.Time
	Sunset  []time.Time
}

// HourlySeries holds the hourly samples as parallel columns indexed by Time.
type HourlySeries struct {
	Time []time.Time

	Temperature2m       Series
	Temperature80m      Series
	Temperature120m     Series
	ApparentTemperature Series
	DewPoint2m          Series
	RelativeHumidity2m  Series
	WindSpeed10m        Series
	WindSpeed80m        Series
	WindDirection10m    Series
	WindDirection80m    Series
	Visibility          Series
	Evapotranspiration  Series
	SoilTemperature0cm  Series
	SoilTemperature6cm  Series
	Rain                Series
	Showers             Series
	Snowfall            Series
}

// RawSeriesResponse is a parsed observation document for a single location.
type RawSeriesResponse struct {
	Latitude  float64
	Longitude float64
	Units     SourceUnits
	Daily     DailySeries
	Hourly    HourlySeries
}

type namedSeries struct {
	name     string
	values   Series
	required bool
}

func (h HourlySeries) columns() []namedSeries {
	return []namedSeries{
		{"temperature_2m", h.Temperature2m, true},
		{"temperature_80m", h.Temperature80m, true},
		{"temperature_120m", h.Temperature120m, true},
		{"apparent_temperature", h.ApparentTemperature, true},
		{"dew_point_2m", h.DewPoint2m, true},
		{"relative_humidity_2m", h.RelativeHumidity2m, true},
		{"wind_speed_10m", h.WindSpeed10m, true},
		{"wind_speed_80m", h.WindSpeed80m, true},
		{"wind_direction_10m", h.WindDirection10m, false},
		{"wind_direction_80m", h.WindDirection80m, false},
		{"visibility", h.Visibility, true},
		{"evapotranspiration", h.Evapotranspiration, false},
		{"soil_temperature_0cm", h.SoilTemperature0cm, true},
		{"soil_temperature_6cm", h.SoilTemperature6cm, true},
		{"rain", h.Rain, true},
		{"showers", h.Showers, true},
		{"snowfall", h.Snowfall, true},
	}
}

// Validate checks that the response can be aggregated as a whole. Mismatched
// column lengths are rejected rather than truncated.
func (r RawSeriesResponse) Validate() error {
	if math.IsNaN(r.Latitude) || r.Latitude < -90 || r.Latitude > 90 {
		return &ValidationError{Series: "latitude", Reason: fmt.Sprintf("out of range: %v", r.Latitude)}
	}
	if math.IsNaN(r.Longitude) || r.Longitude < -180 || r.Longitude > 180 {
		return &ValidationError{Series: "longitude", Reason: fmt.Sprintf("out of range: %v", r.Longitude)}
	}
	if err := r.Units.validate(); err != nil {
		return err
	}

	n := len(r.Daily.Time)
	if r.Daily.Time == nil {
		return &ValidationError{Series: "daily.time", Reason: "missing"}
	}
	if len(r.Daily.Sunrise) != n {
		return &ValidationError{Series: "daily.sunrise", Reason: lengthMismatch(len(r.Daily.Sunrise), n)}
	}
	if len(r.Daily.Sunset) != n {
		return &ValidationError{Series: "daily.sunset", Reason: lengthMismatch(len(r.Daily.Sunset), n)}
	}

	if r.Hourly.Time == nil {
		return &ValidationError{Series: "hourly.time", Reason: "missing"}
	}
	m := len(r.Hourly.Time)
	for _, c := range r.Hourly.columns() {
		if c.values == nil {
			if c.required {
				return &ValidationError{Series: "hourly." + c.name, Reason: "missing"}
			}
			continue
		}
		if len(c.values) != m {
			return &ValidationError{Series: "hourly." + c.name, Reason: lengthMismatch(len(c.values), m)}
		}
	}
	return nil
}

func lengthMismatch(got, want int) string {
	return fmt.Sprintf("length mismatch: %d != %d", got, want)
}
