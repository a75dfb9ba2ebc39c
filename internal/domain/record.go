package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// DateLayout is the ISO calendar date format used for keys and sink columns.
const DateLayout = "2006-01-02"

// AggregateBlock holds the per-window aggregates of a day, in canonical units.
type AggregateBlock struct {
	Temperature2m       float64 `json:"avg_temperature_2m"`
	RelativeHumidity2m  float64 `json:"avg_relative_humidity_2m"`
	DewPoint2m          float64 `json:"avg_dew_point_2m"`
	ApparentTemperature float64 `json:"avg_apparent_temperature"`
	Temperature80m      float64 `json:"avg_temperature_80m"`
	Temperature120m     float64 `json:"avg_temperature_120m"`
	WindSpeed10m        float64 `json:"avg_wind_speed_10m"`
	WindSpeed80m        float64 `json:"avg_wind_speed_80m"`
	Visibility          float64 `json:"avg_visibility"`

	TotalRain     float64 `json:"total_rain"`
	TotalShowers  float64 `json:"total_showers"`
	TotalSnowfall float64 `json:"total_snowfall"`

	// Samples is the number of hourly samples that fell into the window.
	Samples int `json:"samples"`
}

// PointValues are taken from the first hourly sample of the day. NaN marks a
// sample the source reported as null.
type PointValues struct {
	WindSpeed10m        float64 `json:"wind_speed_10m"`
	WindSpeed80m        float64 `json:"wind_speed_80m"`
	Temperature2m       float64 `json:"temperature_2m"`
	ApparentTemperature float64 `json:"apparent_temperature"`
	Temperature80m      float64 `json:"temperature_80m"`
	Temperature120m     float64 `json:"temperature_120m"`
	SoilTemperature0cm  float64 `json:"soil_temperature_0cm"`
	SoilTemperature6cm  float64 `json:"soil_temperature_6cm"`
	Rain                float64 `json:"rain"`
	Showers             float64 `json:"showers"`
	Snowfall            float64 `json:"snowfall"`
}

// SummaryRecord is the daily rollup written to every sink. It is not
// modified after Aggregate returns it.
type SummaryRecord struct {
	Latitude      float64        `json:"latitude"`
	Longitude     float64        `json:"longitude"`
	Date          time.Time      `json:"date"`
	Sunrise       time.Time      `json:"sunrise"`
	Sunset        time.Time      `json:"sunset"`
	DaylightHours int64          `json:"daylight_hours"`
	FullDay       AggregateBlock `json:"full_day"`
	Daylight      AggregateBlock `json:"daylight"`
	Point         PointValues    `json:"point"`
	CreatedAt     time.Time      `json:"created_at"`
}

// NaturalKey identifies a logically unique SummaryRecord.
type NaturalKey string

// Key renders the (date, latitude, longitude) tuple as "2006-01-02:lat:lon".
func (r SummaryRecord) Key() NaturalKey {
	return NaturalKey(r.Date.UTC().Format(DateLayout) + ":" +
		FormatFloat(r.Latitude) + ":" + FormatFloat(r.Longitude))
}

// FormatFloat renders a float in its shortest round-trippable form.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// MarshalJSON encodes NaN samples as null, which encoding/json cannot do for
// a plain float64.
func (p PointValues) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		WindSpeed10m        *float64 `json:"wind_speed_10m"`
		WindSpeed80m        *float64 `json:"wind_speed_80m"`
		Temperature2m       *float64 `json:"temperature_2m"`
		ApparentTemperature *float64 `json:"apparent_temperature"`
		Temperature80m      *float64 `json:"temperature_80m"`
		Temperature120m     *float64 `json:"temperature_120m"`
		SoilTemperature0cm  *float64 `json:"soil_temperature_0cm"`
		SoilTemperature6cm  *float64 `json:"soil_temperature_6cm"`
		Rain                *float64 `json:"rain"`
		Showers             *float64 `json:"showers"`
		Snowfall            *float64 `json:"snowfall"`
	}{
		WindSpeed10m:        nullable(p.WindSpeed10m),
		WindSpeed80m:        nullable(p.WindSpeed80m),
		Temperature2m:       nullable(p.Temperature2m),
		ApparentTemperature: nullable(p.ApparentTemperature),
		Temperature80m:      nullable(p.Temperature80m),
		Temperature120m:     nullable(p.Temperature120m),
		SoilTemperature0cm:  nullable(p.SoilTemperature0cm),
		SoilTemperature6cm:  nullable(p.SoilTemperature6cm),
		Rain:                nullable(p.Rain),
		Showers:             nullable(p.Showers),
		Snowfall:            nullable(p.Snowfall),
	})
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}
