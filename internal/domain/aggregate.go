package domain

import (
	"math"
	"sort"
	"time"
)

// Aggregate rolls a validated response up into one SummaryRecord per daily
// entry that has at least one hourly sample on the same UTC date. Records are
// returned in ascending date order; a date listed twice in the daily series
// is emitted once, using its first entry.
func Aggregate(resp RawSeriesResponse) ([]SummaryRecord, error) {
	if err := resp.Validate(); err != nil {
		return nil, err
	}

	byDate := partitionByDate(resp.Hourly.Time)
	now := clock.Now().UTC()

	days := dailyOrder(resp.Daily.Time)
	records := make([]SummaryRecord, 0, len(days))
	for _, di := range days {
		date := utcDate(resp.Daily.Time[di])
		idx := byDate[date]
		if len(idx) == 0 {
			continue
		}

		sunrise := resp.Daily.Sunrise[di].UTC()
		sunset := resp.Daily.Sunset[di].UTC()

		daylight := make([]int, 0, len(idx))
		for _, i := range idx {
			t := resp.Hourly.Time[i]
			if !t.Before(sunrise) && !t.After(sunset) {
				daylight = append(daylight, i)
			}
		}

		records = append(records, SummaryRecord{
			Latitude:      resp.Latitude,
			Longitude:     resp.Longitude,
			Date:          date,
			Sunrise:       sunrise,
			Sunset:        sunset,
			DaylightHours: DaylightHours(sunrise, sunset),
			FullDay:       aggregateBlock(resp.Hourly, resp.Units, idx),
			Daylight:      aggregateBlock(resp.Hourly, resp.Units, daylight),
			Point:         pointValues(resp.Hourly, resp.Units, idx[0]),
			CreatedAt:     now,
		})
	}
	return records, nil
}

// DaylightHours is the whole number of hours between sunrise and sunset,
// rounded down.
func DaylightHours(sunrise, sunset time.Time) int64 {
	return int64(math.Floor(sunset.Sub(sunrise).Hours()))
}

func utcDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// partitionByDate groups hourly indices by UTC calendar date; each group is
// sorted chronologically so the first index is the earliest sample.
func partitionByDate(times []time.Time) map[time.Time][]int {
	groups := make(map[time.Time][]int)
	for i, t := range times {
		d := utcDate(t)
		groups[d] = append(groups[d], i)
	}
	for _, idx := range groups {
		sort.SliceStable(idx, func(a, b int) bool {
			return times[idx[a]].Before(times[idx[b]])
		})
	}
	return groups
}

// dailyOrder returns daily indices sorted by date with repeated dates removed.
func dailyOrder(times []time.Time) []int {
	order := make([]int, len(times))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return utcDate(times[order[a]]).Before(utcDate(times[order[b]]))
	})

	out := order[:0]
	var last time.Time
	for n, i := range order {
		d := utcDate(times[i])
		if n > 0 && d.Equal(last) {
			continue
		}
		out = append(out, i)
		last = d
	}
	return out
}

func aggregateBlock(h HourlySeries, u SourceUnits, idx []int) AggregateBlock {
	temp, speed, length, dist := u.temperature(), u.windSpeed(), u.precipitation(), u.visibility()
	return AggregateBlock{
		Temperature2m:       mean(h.Temperature2m, idx, temp),
		RelativeHumidity2m:  mean(h.RelativeHumidity2m, idx, identity),
		DewPoint2m:          mean(h.DewPoint2m, idx, temp),
		ApparentTemperature: mean(h.ApparentTemperature, idx, temp),
		Temperature80m:      mean(h.Temperature80m, idx, temp),
		Temperature120m:     mean(h.Temperature120m, idx, temp),
		WindSpeed10m:        mean(h.WindSpeed10m, idx, speed),
		WindSpeed80m:        mean(h.WindSpeed80m, idx, speed),
		Visibility:          mean(h.Visibility, idx, dist),
		TotalRain:           sum(h.Rain, idx, length),
		TotalShowers:        sum(h.Showers, idx, length),
		TotalSnowfall:       sum(h.Snowfall, idx, length),
		Samples:             len(idx),
	}
}

func pointValues(h HourlySeries, u SourceUnits, i int) PointValues {
	temp, speed, length := u.temperature(), u.windSpeed(), u.precipitation()
	return PointValues{
		WindSpeed10m:        speed(h.WindSpeed10m[i]),
		WindSpeed80m:        speed(h.WindSpeed80m[i]),
		Temperature2m:       temp(h.Temperature2m[i]),
		ApparentTemperature: temp(h.ApparentTemperature[i]),
		Temperature80m:      temp(h.Temperature80m[i]),
		Temperature120m:     temp(h.Temperature120m[i]),
		SoilTemperature0cm:  temp(h.SoilTemperature0cm[i]),
		SoilTemperature6cm:  temp(h.SoilTemperature6cm[i]),
		Rain:                length(h.Rain[i]),
		Showers:             length(h.Showers[i]),
		Snowfall:            length(h.Snowfall[i]),
	}
}

// mean averages the non-null samples at idx and converts the result. A window
// without samples yields 0 without conversion, so an empty daylight window
// reads as zero in every unit.
func mean(s Series, idx []int, conv converter) float64 {
	var total float64
	var n int
	for _, i := range idx {
		if v := s[i]; !math.IsNaN(v) {
			total += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return conv(total / float64(n))
}

func sum(s Series, idx []int, conv converter) float64 {
	var total float64
	var n int
	for _, i := range idx {
		if v := s[i]; !math.IsNaN(v) {
			total += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return conv(total)
}
