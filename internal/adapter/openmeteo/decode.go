package openmeteo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sixdouglas/suncalc"

	"github.com/couchcryptid/weather-rollup-etl/internal/domain"
)

// ErrDecode is wrapped by every failure to read an observation document.
var ErrDecode = errors.New("decode observation document")

type document struct {
	Latitude         float64                    `json:"latitude"`
	Longitude        float64                    `json:"longitude"`
	UTCOffsetSeconds int                        `json:"utc_offset_seconds"`
	Timezone         string                     `json:"timezone"`
	HourlyUnits      map[string]string          `json:"hourly_units"`
	Hourly           map[string]json.RawMessage `json:"hourly"`
	Daily            map[string]json.RawMessage `json:"daily"`
}

// hourlyAliases lists the accepted names of each hourly variable; both the
// current API names and the older unseparated ones are recognised.
var hourlyAliases = struct {
	temperature2m, temperature80m, temperature120m, apparentTemperature []string
	dewPoint2m, relativeHumidity2m                                      []string
	windSpeed10m, windSpeed80m, windDirection10m, windDirection80m      []string
	visibility, evapotranspiration                                      []string
	soilTemperature0cm, soilTemperature6cm                              []string
	rain, showers, snowfall                                             []string
}{
	temperature2m:       []string{"temperature_2m"},
	temperature80m:      []string{"temperature_80m"},
	temperature120m:     []string{"temperature_120m"},
	apparentTemperature: []string{"apparent_temperature"},
	dewPoint2m:          []string{"dew_point_2m", "dewpoint_2m"},
	relativeHumidity2m:  []string{"relative_humidity_2m", "relativehumidity_2m"},
	windSpeed10m:        []string{"wind_speed_10m", "windspeed_10m"},
	windSpeed80m:        []string{"wind_speed_80m", "windspeed_80m"},
	windDirection10m:    []string{"wind_direction_10m", "winddirection_10m"},
	windDirection80m:    []string{"wind_direction_80m", "winddirection_80m"},
	visibility:          []string{"visibility"},
	evapotranspiration:  []string{"evapotranspiration"},
	soilTemperature0cm:  []string{"soil_temperature_0cm"},
	soilTemperature6cm:  []string{"soil_temperature_6cm"},
	rain:                []string{"rain"},
	showers:             []string{"showers"},
	snowfall:            []string{"snowfall"},
}

// Decode parses an observation document. Times may be epoch seconds or ISO
// 8601 strings; ISO times without a zone are local to utc_offset_seconds.
// Null samples decode as NaN. When the daily block has dates but no sunrise
// or sunset, they are computed for the document's coordinates.
//
// Decode does not validate series lengths; domain.Aggregate does.
func Decode(data []byte) (domain.RawSeriesResponse, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.RawSeriesResponse{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if doc.Hourly == nil {
		return domain.RawSeriesResponse{}, fmt.Errorf("%w: missing hourly block", ErrDecode)
	}
	if doc.Daily == nil {
		return domain.RawSeriesResponse{}, fmt.Errorf("%w: missing daily block", ErrDecode)
	}

	offset := time.Duration(doc.UTCOffsetSeconds) * time.Second
	d := decoder{offset: offset}

	resp := domain.RawSeriesResponse{
		Latitude:  doc.Latitude,
		Longitude: doc.Longitude,
		Units:     unitsFrom(doc.HourlyUnits),
	}

	resp.Daily = domain.DailySeries{
		Time:    d.dates(doc.Daily, "time"),
		Sunrise: d.times(doc.Daily, "sunrise"),
		Sunset:  d.times(doc.Daily, "sunset"),
	}

	a := hourlyAliases
	resp.Hourly = domain.HourlySeries{
		Time:                d.times(doc.Hourly, "time"),
		Temperature2m:       d.series(doc.Hourly, a.temperature2m),
		Temperature80m:      d.series(doc.Hourly, a.temperature80m),
		Temperature120m:     d.series(doc.Hourly, a.temperature120m),
		ApparentTemperature: d.series(doc.Hourly, a.apparentTemperature),
		DewPoint2m:          d.series(doc.Hourly, a.dewPoint2m),
		RelativeHumidity2m:  d.series(doc.Hourly, a.relativeHumidity2m),
		WindSpeed10m:        d.series(doc.Hourly, a.windSpeed10m),
		WindSpeed80m:        d.series(doc.Hourly, a.windSpeed80m),
		WindDirection10m:    d.series(doc.Hourly, a.windDirection10m),
		WindDirection80m:    d.series(doc.Hourly, a.windDirection80m),
		Visibility:          d.series(doc.Hourly, a.visibility),
		Evapotranspiration:  d.series(doc.Hourly, a.evapotranspiration),
		SoilTemperature0cm:  d.series(doc.Hourly, a.soilTemperature0cm),
		SoilTemperature6cm:  d.series(doc.Hourly, a.soilTemperature6cm),
		Rain:                d.series(doc.Hourly, a.rain),
		Showers:             d.series(doc.Hourly, a.showers),
		Snowfall:            d.series(doc.Hourly, a.snowfall),
	}
	if d.err != nil {
		return domain.RawSeriesResponse{}, d.err
	}

	if resp.Daily.Time != nil && resp.Daily.Sunrise == nil && resp.Daily.Sunset == nil {
		resp.Daily.Sunrise, resp.Daily.Sunset = sunTimes(resp.Daily.Time, resp.Latitude, resp.Longitude)
	}
	return resp, nil
}

// decoder keeps the first error so Decode can read every block in one pass.
type decoder struct {
	offset time.Duration
	err    error
}

func (d *decoder) fail(field string, err error) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s: %v", ErrDecode, field, err)
	}
}

func (d *decoder) series(block map[string]json.RawMessage, names []string) domain.Series {
	raw, name, ok := lookup(block, names)
	if !ok {
		return nil
	}
	var values []*float64
	if err := json.Unmarshal(raw, &values); err != nil {
		d.fail(name, err)
		return nil
	}
	out := make(domain.Series, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = domain.Null()
		} else {
			out[i] = *v
		}
	}
	return out
}

func (d *decoder) times(block map[string]json.RawMessage, name string) []time.Time {
	return d.parseTimes(block, name, false)
}

// dates parses a daily time column; date-only strings are calendar dates and
// are not shifted.
func (d *decoder) dates(block map[string]json.RawMessage, name string) []time.Time {
	return d.parseTimes(block, name, true)
}

func (d *decoder) parseTimes(block map[string]json.RawMessage, name string, dateOnly bool) []time.Time {
	raw, ok := block[name]
	if !ok || isNull(raw) {
		return nil
	}
	var values []json.RawMessage
	if err := json.Unmarshal(raw, &values); err != nil {
		d.fail(name, err)
		return nil
	}
	out := make([]time.Time, len(values))
	for i, v := range values {
		t, err := parseTime(v, d.offset, dateOnly)
		if err != nil {
			d.fail(fmt.Sprintf("%s[%d]", name, i), err)
			return nil
		}
		out[i] = t
	}
	return out
}

var localLayouts = []string{"2006-01-02T15:04", "2006-01-02T15:04:05"}

func parseTime(raw json.RawMessage, offset time.Duration, dateOnly bool) (time.Time, error) {
	var epoch int64
	if err := json.Unmarshal(raw, &epoch); err == nil {
		return time.Unix(epoch, 0).UTC(), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, fmt.Errorf("expected epoch seconds or ISO string, got %s", raw)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(domain.DateLayout, s); err == nil {
		if dateOnly {
			return t, nil
		}
		return t.Add(-offset), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Add(-offset), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

func lookup(block map[string]json.RawMessage, names []string) (json.RawMessage, string, bool) {
	for _, n := range names {
		if raw, ok := block[n]; ok && !isNull(raw) {
			return raw, n, true
		}
	}
	return nil, "", false
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// unitsFrom maps hourly_units strings onto domain units. Unknown strings are
// passed through so validation rejects them; absent ones fall back to the
// imperial defaults.
func unitsFrom(units map[string]string) domain.SourceUnits {
	first := func(names ...string) string {
		for _, n := range names {
			if u, ok := units[n]; ok {
				return strings.TrimSpace(u)
			}
		}
		return ""
	}

	var out domain.SourceUnits
	switch u := first("temperature_2m"); u {
	case "":
	case "°F", "fahrenheit":
		out.Temperature = domain.Fahrenheit
	case "°C", "celsius":
		out.Temperature = domain.Celsius
	default:
		out.Temperature = domain.TemperatureUnit(u)
	}
	switch u := first("wind_speed_10m", "windspeed_10m"); u {
	case "":
	case "kn", "kt", "knots":
		out.WindSpeed = domain.Knots
	case "km/h", "kmh":
		out.WindSpeed = domain.KilometersPerHr
	case "m/s", "ms":
		out.WindSpeed = domain.MetersPerSecond
	case "mp/h", "mph":
		out.WindSpeed = domain.MilesPerHour
	default:
		out.WindSpeed = domain.SpeedUnit(u)
	}
	switch u := first("rain", "precipitation"); u {
	case "":
	case "inch", "in":
		out.Precipitation = domain.Inches
	case "mm":
		out.Precipitation = domain.Millimeters
	default:
		out.Precipitation = domain.LengthUnit(u)
	}
	switch u := first("visibility"); u {
	case "":
	case "ft", "feet":
		out.Visibility = domain.Feet
	case "m", "meters":
		out.Visibility = domain.Meters
	default:
		out.Visibility = domain.DistanceUnit(u)
	}
	return out
}

// sunTimes computes sunrise and sunset for each date. During polar day the
// whole date counts as daylight; during polar night sunrise and sunset
// coincide at noon.
func sunTimes(dates []time.Time, lat, lon float64) (sunrise, sunset []time.Time) {
	sunrise = make([]time.Time, len(dates))
	sunset = make([]time.Time, len(dates))
	for i, date := range dates {
		day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
		noon := day.Add(12 * time.Hour)

		times := suncalc.GetTimes(noon, lat, lon)
		rise, set := times["sunrise"].Value, times["sunset"].Value
		if validSunTime(rise, day) && validSunTime(set, day) && set.After(rise) {
			sunrise[i], sunset[i] = rise.UTC(), set.UTC()
			continue
		}

		if suncalc.GetPosition(noon, lat, lon).Altitude > 0 {
			sunrise[i], sunset[i] = day, day.Add(24*time.Hour-time.Second)
		} else {
			sunrise[i], sunset[i] = noon, noon
		}
	}
	return sunrise, sunset
}

// validSunTime rejects the placeholder values returned when the sun does not
// cross the horizon.
func validSunTime(t, day time.Time) bool {
	if t.IsZero() {
		return false
	}
	diff := t.Sub(day).Hours()
	return !math.IsNaN(diff) && diff > -24 && diff < 48
}
