// Package domain models hourly/daily weather series and their daily rollups.
//
// # Data Source
//
// Observations come from the Open-Meteo forecast/archive API as one document
// per location: a daily series (date, sunrise, sunset) and an hourly series of
// parallel columns (temperatures at 2m/80m/120m, apparent temperature, dew
// point, humidity, wind, visibility, soil temperatures, precipitation). The
// adapter in internal/adapter/openmeteo maps the document onto
// [RawSeriesResponse]; this package never sees JSON.
//
// # Grouping
//
// Hourly samples are grouped by their UTC calendar date, never by the
// location's local time zone, so the same document always yields the same
// days. A daily entry with no hourly samples on its date produces no record.
//
// # Units
//
// Every sink stores canonical units:
//
//	temperature    °C    (source °F or °C)
//	wind speed     m/s   (source kn, km/h, m/s or mph)
//	precipitation  mm    (source inch or mm)
//	visibility     m     (source ft or m)
//	humidity       %     (never converted)
//
// Temperatures, wind, visibility and humidity are averaged per window, then
// converted. Precipitation is summed per window, then converted. Null samples
// (NaN) are left out of both the count and the total; a window with no
// samples is 0.
//
// # Windows
//
//	full day   every sample on the date
//	daylight   samples with sunrise <= t <= sunset
//	point      the earliest sample on the date
//
// # Natural Key
//
// A record is identified by date, latitude and longitude, rendered by
// [SummaryRecord.Key] as "2006-01-02:lat:lon". The dedup filters of every
// sink are keyed on this string.
package domain
