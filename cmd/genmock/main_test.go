package main

import (
	"encoding/json"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-rollup-etl/internal/adapter/openmeteo"
	"github.com/couchcryptid/weather-rollup-etl/internal/domain"
)

func decodeGenerated(t *testing.T, o options) domain.RawSeriesResponse {
	t.Helper()
	data, err := json.Marshal(generate(o))
	require.NoError(t, err)
	resp, err := openmeteo.Decode(data)
	require.NoError(t, err)
	return resp
}

func TestGenerate_AggregatesOneRecordPerDay(t *testing.T) {
	start := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	resp := decodeGenerated(t, options{lat: 52.52, lon: 13.41, start: start, days: 5, seed: 1})

	records, err := domain.Aggregate(resp)
	require.NoError(t, err)
	require.Len(t, records, 5)

	for i, r := range records {
		assert.Equal(t, start.AddDate(0, 0, i), r.Date)
		assert.Equal(t, 24, r.FullDay.Samples)
		assert.True(t, r.Sunrise.Before(r.Sunset))
		assert.InDelta(t, 16, r.DaylightHours, 1, "Berlin in July")
		assert.InDelta(t, 24384, r.FullDay.Visibility, 0.01, "80000 ft in meters")
	}
}

func TestGenerate_NullRatio(t *testing.T) {
	start := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	resp := decodeGenerated(t, options{lat: 52.52, lon: 13.41, start: start, days: 10, nullRatio: 0.5, seed: 7})

	nulls := 0
	for _, v := range resp.Hourly.Temperature2m {
		if math.IsNaN(v) {
			nulls++
		}
	}
	assert.Greater(t, nulls, 60)
	assert.Less(t, nulls, 180)
}

func TestGenerate_Deterministic(t *testing.T) {
	o := options{lat: 52.52, lon: 13.41, start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), days: 3, nullRatio: 0.1, seed: 3}
	a, err := json.Marshal(generate(o))
	require.NoError(t, err)
	b, err := json.Marshal(generate(o))
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestGenerate_PolarOmitsSunTimes(t *testing.T) {
	start := time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)
	doc := generate(options{lat: 78.22, lon: 15.65, start: start, days: 2, seed: 1})
	assert.NotContains(t, doc.Daily, "sunrise")

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	resp, err := openmeteo.Decode(data)
	require.NoError(t, err)

	records, err := domain.Aggregate(resp)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(23), records[0].DaylightHours, "midnight sun")
}

func TestWriteJSON_FileSourceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mock", "doc.json")
	doc := generate(options{lat: 40.71, lon: -74.01, start: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), days: 2, seed: 1})
	require.NoError(t, writeJSON(path, doc))

	resp, err := openmeteo.FileSource{Path: path}.Extract(t.Context(), domain.Query{})
	require.NoError(t, err)
	assert.Equal(t, 40.71, resp.Latitude)
	assert.Len(t, resp.Hourly.Time, 48)
}
