// Command genmock writes a synthetic upstream forecast document for load and
// demo runs. Values follow a deterministic diurnal cycle in imperial units;
// sunrise and sunset are computed for the requested coordinates.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -lat 52.52 -lon 13.41 \
//	  -start 2025-07-01 -days 30 \
//	  -null-ratio 0.01 \
//	  -out data/mock/berlin_2025-07.json
//
// The output can be fed to `weather-etl import --file`.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/sixdouglas/suncalc"

	"github.com/couchcryptid/weather-rollup-etl/internal/domain"
)

type options struct {
	lat, lon  float64
	start     time.Time
	days      int
	nullRatio float64
	seed      uint64
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	lat := flag.Float64("lat", 52.52, "latitude in degrees")
	lon := flag.Float64("lon", 13.41, "longitude in degrees")
	start := flag.String("start", "", "first day (YYYY-MM-DD)")
	days := flag.Int("days", 7, "number of days")
	nullRatio := flag.Float64("null-ratio", 0, "fraction of hourly samples reported as null")
	seed := flag.Uint64("seed", 1, "random seed for null placement")
	out := flag.String("out", "", "output path")
	flag.Parse()

	if *start == "" || *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -start, -out")
	}
	day, err := time.Parse(domain.DateLayout, *start)
	if err != nil {
		return fmt.Errorf("-start: %w", err)
	}
	if *days <= 0 {
		return fmt.Errorf("-days must be positive")
	}

	doc := generate(options{
		lat: *lat, lon: *lon,
		start:     day,
		days:      *days,
		nullRatio: *nullRatio,
		seed:      *seed,
	})

	if err := writeJSON(*out, doc); err != nil {
		return fmt.Errorf("writing document: %w", err)
	}
	log.Printf("wrote %d days, %d hourly samples: %s", *days, *days*24, *out)
	return nil
}

// document mirrors the upstream response with unixtime timestamps.
type document struct {
	Latitude         float64           `json:"latitude"`
	Longitude        float64           `json:"longitude"`
	UTCOffsetSeconds int               `json:"utc_offset_seconds"`
	Timezone         string            `json:"timezone"`
	HourlyUnits      map[string]string `json:"hourly_units"`
	Hourly           map[string]any    `json:"hourly"`
	DailyUnits       map[string]string `json:"daily_units"`
	Daily            map[string]any    `json:"daily"`
}

// variable produces the value of one hourly series at hour h of the day and
// day index d.
type variable struct {
	name  string
	value func(d, h int) float64
}

func diurnal(mean, amplitude float64) func(d, h int) float64 {
	return func(d, h int) float64 {
		// Coldest around 04:00, warmest around 16:00.
		phase := 2 * math.Pi * float64(h-10) / 24
		return round(mean+amplitude*math.Sin(phase)+0.3*float64(d%5), 1)
	}
}

func constant(v float64) func(int, int) float64 {
	return func(int, int) float64 { return v }
}

var variables = []variable{
	{"temperature_2m", diurnal(62, 9)},
	{"temperature_80m", diurnal(60, 7)},
	{"temperature_120m", diurnal(59, 6)},
	{"apparent_temperature", diurnal(61, 10)},
	{"dew_point_2m", diurnal(50, 3)},
	{"relative_humidity_2m", func(_, h int) float64 { return float64(55 + (h*7)%30) }},
	{"wind_speed_10m", func(d, h int) float64 { return round(6+3*math.Cos(float64(h+d)/4), 1) }},
	{"wind_speed_80m", func(d, h int) float64 { return round(11+4*math.Cos(float64(h+d)/4), 1) }},
	{"wind_direction_10m", func(_, h int) float64 { return float64((240 + h*5) % 360) }},
	{"wind_direction_80m", func(_, h int) float64 { return float64((250 + h*5) % 360) }},
	{"visibility", constant(80000)},
	{"evapotranspiration", func(_, h int) float64 { return round(0.004*math.Max(0, math.Sin(2*math.Pi*float64(h-6)/24)), 3) }},
	{"soil_temperature_0cm", diurnal(64, 6)},
	{"soil_temperature_6cm", diurnal(61, 2)},
	{"rain", func(d, h int) float64 {
		if d%3 == 2 && h >= 14 && h < 17 {
			return 0.02
		}
		return 0
	}},
	{"showers", constant(0)},
	{"snowfall", constant(0)},
}

func generate(o options) document {
	rng := rand.New(rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15))
	n := o.days * 24

	times := make([]int64, 0, n)
	for i := range n {
		times = append(times, o.start.Add(time.Duration(i)*time.Hour).Unix())
	}

	hourly := map[string]any{"time": times}
	for _, v := range variables {
		values := make([]*float64, n)
		for i := range n {
			if o.nullRatio > 0 && rng.Float64() < o.nullRatio {
				continue
			}
			x := v.value(i/24, i%24)
			values[i] = &x
		}
		hourly[v.name] = values
	}

	dates := make([]int64, o.days)
	sunrises := make([]int64, o.days)
	sunsets := make([]int64, o.days)
	polar := false
	for d := range o.days {
		day := o.start.AddDate(0, 0, d)
		dates[d] = day.Unix()
		rise, set, ok := sunTimes(day, o.lat, o.lon)
		if !ok {
			polar = true
		}
		sunrises[d], sunsets[d] = rise.Unix(), set.Unix()
	}

	daily := map[string]any{"time": dates}
	dailyUnits := map[string]string{"time": "unixtime"}
	if polar {
		// Leave sun times out; the decoder computes them with polar handling.
		log.Printf("no sunrise or sunset on some days at latitude %v; omitting sun times", o.lat)
	} else {
		daily["sunrise"], daily["sunset"] = sunrises, sunsets
		dailyUnits["sunrise"], dailyUnits["sunset"] = "unixtime", "unixtime"
	}

	return document{
		Latitude:         o.lat,
		Longitude:        o.lon,
		UTCOffsetSeconds: 0,
		Timezone:         "GMT",
		HourlyUnits: map[string]string{
			"time":           "unixtime",
			"temperature_2m": "°F",
			"wind_speed_10m": "kn",
			"rain":           "inch",
			"visibility":     "ft",
		},
		Hourly:     hourly,
		DailyUnits: dailyUnits,
		Daily:      daily,
	}
}

// sunTimes reports false when the sun does not rise or set on day.
func sunTimes(day time.Time, lat, lon float64) (time.Time, time.Time, bool) {
	times := suncalc.GetTimes(day.Add(12*time.Hour), lat, lon)
	rise := times["sunrise"].Value
	set := times["sunset"].Value
	plausible := func(t time.Time) bool {
		return !t.IsZero() && t.Sub(day).Abs() < 48*time.Hour
	}
	if !plausible(rise) || !plausible(set) || !set.After(rise) {
		return time.Time{}, time.Time{}, false
	}
	return rise.UTC(), set.UTC(), true
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
