package sink

import (
	"math"
	"strconv"
	"time"

	"github.com/couchcryptid/weather-rollup-etl/internal/domain"
)

// calendarDate marks a value that is written as a date without time of day.
type calendarDate time.Time

type column struct {
	header string // tabular file header
	sql    string // relational column name
	value  func(r *domain.SummaryRecord) any
}

// columns is the fixed layout shared by the tabular and relational sinks.
var columns = buildColumns()

func buildColumns() []column {
	cols := []column{
		{"latitude", "latitude", func(r *domain.SummaryRecord) any { return r.Latitude }},
		{"longitude", "longitude", func(r *domain.SummaryRecord) any { return r.Longitude }},
		{"date", "date", func(r *domain.SummaryRecord) any { return calendarDate(r.Date) }},
		{"sunriseIso", "sunrise_iso", func(r *domain.SummaryRecord) any { return r.Sunrise }},
		{"sunsetIso", "sunset_iso", func(r *domain.SummaryRecord) any { return r.Sunset }},
		{"daylightHours", "daylight_hours", func(r *domain.SummaryRecord) any { return r.DaylightHours }},
	}
	cols = append(cols, blockColumns("24h", "24h", func(r *domain.SummaryRecord) *domain.AggregateBlock { return &r.FullDay })...)
	cols = append(cols, blockColumns("Daylight", "daylight", func(r *domain.SummaryRecord) *domain.AggregateBlock { return &r.Daylight })...)

	point := func(header, sql string, pick func(p *domain.PointValues) float64) column {
		return column{header, sql, func(r *domain.SummaryRecord) any { return pick(&r.Point) }}
	}
	cols = append(cols,
		point("windSpeed10mMPerS", "wind_speed_10m_mpers", func(p *domain.PointValues) float64 { return p.WindSpeed10m }),
		point("windSpeed80mMPerS", "wind_speed_80m_mpers", func(p *domain.PointValues) float64 { return p.WindSpeed80m }),
		point("temperature2mCelsius", "temperature_2m_celsius", func(p *domain.PointValues) float64 { return p.Temperature2m }),
		point("apparentTemperatureCelsius", "apparent_temperature_celsius", func(p *domain.PointValues) float64 { return p.ApparentTemperature }),
		point("temperature80mCelsius", "temperature_80m_celsius", func(p *domain.PointValues) float64 { return p.Temperature80m }),
		point("temperature120mCelsius", "temperature_120m_celsius", func(p *domain.PointValues) float64 { return p.Temperature120m }),
		point("soilTemperature0cmCelsius", "soil_temperature_0cm_celsius", func(p *domain.PointValues) float64 { return p.SoilTemperature0cm }),
		point("soilTemperature6cmCelsius", "soil_temperature_6cm_celsius", func(p *domain.PointValues) float64 { return p.SoilTemperature6cm }),
		point("rainMm", "rain_mm", func(p *domain.PointValues) float64 { return p.Rain }),
		point("showersMm", "showers_mm", func(p *domain.PointValues) float64 { return p.Showers }),
		point("snowfallMm", "snowfall_mm", func(p *domain.PointValues) float64 { return p.Snowfall }),
		column{"fetchedAt", "fetched_at", func(r *domain.SummaryRecord) any { return r.CreatedAt }},
	)
	return cols
}

func blockColumns(headerSuffix, sqlSuffix string, pick func(r *domain.SummaryRecord) *domain.AggregateBlock) []column {
	field := func(header, sql string, get func(b *domain.AggregateBlock) float64) column {
		return column{
			header: header + headerSuffix,
			sql:    sql + "_" + sqlSuffix,
			value:  func(r *domain.SummaryRecord) any { return get(pick(r)) },
		}
	}
	return []column{
		field("avgTemperature2m", "avg_temperature_2m", func(b *domain.AggregateBlock) float64 { return b.Temperature2m }),
		field("avgRelativeHumidity2m", "avg_relative_humidity_2m", func(b *domain.AggregateBlock) float64 { return b.RelativeHumidity2m }),
		field("avgDewPoint2m", "avg_dew_point_2m", func(b *domain.AggregateBlock) float64 { return b.DewPoint2m }),
		field("avgApparentTemperature", "avg_apparent_temperature", func(b *domain.AggregateBlock) float64 { return b.ApparentTemperature }),
		field("avgTemperature80m", "avg_temperature_80m", func(b *domain.AggregateBlock) float64 { return b.Temperature80m }),
		field("avgTemperature120m", "avg_temperature_120m", func(b *domain.AggregateBlock) float64 { return b.Temperature120m }),
		field("avgWindSpeed10m", "avg_wind_speed_10m", func(b *domain.AggregateBlock) float64 { return b.WindSpeed10m }),
		field("avgWindSpeed80m", "avg_wind_speed_80m", func(b *domain.AggregateBlock) float64 { return b.WindSpeed80m }),
		field("avgVisibility", "avg_visibility", func(b *domain.AggregateBlock) float64 { return b.Visibility }),
		field("totalRain", "total_rain", func(b *domain.AggregateBlock) float64 { return b.TotalRain }),
		field("totalShowers", "total_showers", func(b *domain.AggregateBlock) float64 { return b.TotalShowers }),
		field("totalSnowfall", "total_snowfall", func(b *domain.AggregateBlock) float64 { return b.TotalSnowfall }),
	}
}

// Header returns the tabular file header row.
func Header() []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.header
	}
	return out
}

// csvRow renders r in column order. Null samples become empty cells.
func csvRow(r *domain.SummaryRecord) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = csvField(c.value(r))
	}
	return out
}

func csvField(v any) string {
	switch v := v.(type) {
	case float64:
		if math.IsNaN(v) {
			return ""
		}
		return domain.FormatFloat(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case calendarDate:
		return time.Time(v).UTC().Format(domain.DateLayout)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	default:
		return ""
	}
}

// sqlArgs renders r as statement arguments in column order. Null samples
// become SQL NULL.
func sqlArgs(r *domain.SummaryRecord) []any {
	out := make([]any, len(columns))
	for i, c := range columns {
		switch v := c.value(r).(type) {
		case float64:
			if math.IsNaN(v) {
				out[i] = nil
			} else {
				out[i] = v
			}
		case calendarDate:
			out[i] = time.Time(v).UTC().Format(domain.DateLayout)
		case time.Time:
			out[i] = v.UTC()
		default:
			out[i] = v
		}
	}
	return out
}
