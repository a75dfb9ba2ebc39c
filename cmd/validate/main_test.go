package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-rollup-etl/internal/dedup"
	"github.com/couchcryptid/weather-rollup-etl/internal/domain"
	"github.com/couchcryptid/weather-rollup-etl/internal/observability"
	"github.com/couchcryptid/weather-rollup-etl/internal/sink"
)

func record(day int) domain.SummaryRecord {
	date := time.Date(2025, 7, 15+day, 0, 0, 0, 0, time.UTC)
	sunrise, sunset := date.Add(3*time.Hour+45*time.Minute), date.Add(19*time.Hour+20*time.Minute)
	return domain.SummaryRecord{
		Latitude:      52.52,
		Longitude:     13.41,
		Date:          date,
		Sunrise:       sunrise,
		Sunset:        sunset,
		DaylightHours: domain.DaylightHours(sunrise, sunset),
		FullDay:       domain.AggregateBlock{Temperature2m: 18, Samples: 24},
		Daylight:      domain.AggregateBlock{Temperature2m: 21, Samples: 15},
		CreatedAt:     time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
	}
}

// writeOutput produces a sink file and its filter state for three days.
func writeOutput(t *testing.T) (csvPath, filterPath string) {
	t.Helper()
	dir := t.TempDir()
	csvPath = filepath.Join(dir, "weather.csv")
	filterPath = filepath.Join(dir, "csv.bloom")

	store := dedup.NewFileStore(filterPath)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w, err := sink.NewCSVWriter(csvPath, dedup.Open(store, dedup.DefaultParams(), logger), store, logger, observability.NewMetricsForTesting())
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), []domain.SummaryRecord{record(0), record(1), record(2)}))
	return csvPath, filterPath
}

func TestRun_ValidOutputPasses(t *testing.T) {
	csvPath, filterPath := writeOutput(t)

	var out bytes.Buffer
	code := run(csvPath, filterPath, &out)

	assert.Equal(t, 0, code, out.String())
	assert.Contains(t, out.String(), "Records: 3")
	assert.Contains(t, out.String(), "All validations passed.")
}

func TestRun_DuplicateRowFails(t *testing.T) {
	csvPath, _ := writeOutput(t)
	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)

	lines := bytes.SplitAfter(data, []byte("\n"))
	data = append(data, lines[1]...)
	require.NoError(t, os.WriteFile(csvPath, data, 0o644))

	var out bytes.Buffer
	code := run(csvPath, "", &out)

	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "line 5 repeats 2025-07-15:52.52:13.41 from line 2")
}

func TestRun_ForeignFilterFails(t *testing.T) {
	csvPath, _ := writeOutput(t)
	_, otherFilter := writeOutput(t)
	require.NoError(t, os.WriteFile(otherFilter, mustMarshal(t, dedup.New(dedup.DefaultParams())), 0o644))

	var out bytes.Buffer
	code := run(csvPath, otherFilter, &out)

	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "missing from filter")
}

func TestRun_BadDaylightHours(t *testing.T) {
	csvPath, _ := writeOutput(t)
	header, rows, err := loadCSV(csvPath)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	rows[0].fields["daylightHours"] = "3"
	p := validateRows(rows)

	assert.Len(t, header, 42)
	require.Len(t, p.errors, 1)
	assert.Contains(t, p.errors[0], "daylightHours 3, want 15")
}

func TestRun_MissingFile(t *testing.T) {
	var out bytes.Buffer
	code := run(filepath.Join(t.TempDir(), "nope.csv"), "", &out)

	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "FATAL")
}

func TestValidateHeader(t *testing.T) {
	h := sink.Header()
	h[3] = "sunrise"

	p := validateHeader(h)

	require.False(t, p.passed())
	assert.Contains(t, p.errors[1], `column 4: got "sunrise", want "sunriseIso"`)
}

func mustMarshal(t *testing.T, f *dedup.Filter) []byte {
	t.Helper()
	data, err := f.MarshalBinary()
	require.NoError(t, err)
	return data
}
