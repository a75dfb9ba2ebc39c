package sink

import (
	"io"
	"log/slog"
	"time"

	"github.com/couchcryptid/weather-rollup-etl/internal/dedup"
	"github.com/couchcryptid/weather-rollup-etl/internal/domain"
	"github.com/couchcryptid/weather-rollup-etl/internal/observability"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFilter() *dedup.Filter {
	return dedup.New(dedup.Params{ExpectedEntries: 1000, FalsePositiveRate: 0.001})
}

func newMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

// testRecord returns the summary of 2025-07-15 at Berlin, shifted by
// offset days.
func testRecord(offset int) domain.SummaryRecord {
	date := time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
	block := domain.AggregateBlock{
		Temperature2m:       10,
		RelativeHumidity2m:  60,
		DewPoint2m:          10,
		ApparentTemperature: 10,
		Temperature80m:      10,
		Temperature120m:     10,
		WindSpeed10m:        5.14444,
		WindSpeed80m:        5.14444,
		Visibility:          304.8,
		TotalRain:           60.96,
		TotalShowers:        60.96,
		Samples:             24,
	}
	return domain.SummaryRecord{
		Latitude:      52.52,
		Longitude:     13.41,
		Date:          date,
		Sunrise:       date.Add(3*time.Hour + 45*time.Minute),
		Sunset:        date.Add(19*time.Hour + 20*time.Minute),
		DaylightHours: 15,
		FullDay:       block,
		Daylight:      block,
		Point: domain.PointValues{
			WindSpeed10m:        5.14444,
			WindSpeed80m:        5.14444,
			Temperature2m:       10,
			ApparentTemperature: 10,
			Temperature80m:      10,
			Temperature120m:     10,
			SoilTemperature0cm:  10,
			SoilTemperature6cm:  10,
			Rain:                2.54,
			Showers:             2.54,
			Snowfall:            0,
		},
		CreatedAt: time.Date(2025, 8, 1, 9, 30, 0, 0, time.UTC),
	}
}

func repeat(r domain.SummaryRecord, n int) []domain.SummaryRecord {
	out := make([]domain.SummaryRecord, n)
	for i := range out {
		out[i] = r
	}
	return out
}
