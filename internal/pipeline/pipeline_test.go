package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-rollup-etl/internal/domain"
	"github.com/couchcryptid/weather-rollup-etl/internal/observability"
	"github.com/couchcryptid/weather-rollup-etl/internal/pipeline"
)

// --- mocks ---

type mockExtractor struct {
	resp    domain.RawSeriesResponse
	err     error
	queries []domain.Query
}

func (m *mockExtractor) Extract(_ context.Context, q domain.Query) (domain.RawSeriesResponse, error) {
	m.queries = append(m.queries, q)
	return m.resp, m.err
}

type mockLoader struct {
	name    string
	err     error
	batches [][]domain.SummaryRecord
}

func (m *mockLoader) Write(_ context.Context, records []domain.SummaryRecord) error {
	m.batches = append(m.batches, records)
	return m.err
}

func (m *mockLoader) Name() string { return m.name }

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func constant(n int, v float64) domain.Series {
	s := make(domain.Series, n)
	for i := range s {
		s[i] = v
	}
	return s
}

// twoDays is a Celsius document covering 2025-07-15 and 2025-07-16.
func twoDays() domain.RawSeriesResponse {
	start := time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC)
	n := 48
	times := make([]time.Time, n)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * time.Hour)
	}
	days := []time.Time{start, start.AddDate(0, 0, 1)}
	return domain.RawSeriesResponse{
		Latitude:  52.52,
		Longitude: 13.41,
		Units: domain.SourceUnits{
			Temperature:   domain.Celsius,
			WindSpeed:     domain.MetersPerSecond,
			Precipitation: domain.Millimeters,
			Visibility:    domain.Meters,
		},
		Daily: domain.DailySeries{
			Time:    days,
			Sunrise: []time.Time{days[0].Add(4 * time.Hour), days[1].Add(4 * time.Hour)},
			Sunset:  []time.Time{days[0].Add(20 * time.Hour), days[1].Add(20 * time.Hour)},
		},
		Hourly: domain.HourlySeries{
			Time:                times,
			Temperature2m:       constant(n, 18),
			Temperature80m:      constant(n, 17),
			Temperature120m:     constant(n, 16),
			ApparentTemperature: constant(n, 18),
			DewPoint2m:          constant(n, 9),
			RelativeHumidity2m:  constant(n, 55),
			WindSpeed10m:        constant(n, 3),
			WindSpeed80m:        constant(n, 6),
			Visibility:          constant(n, 20000),
			SoilTemperature0cm:  constant(n, 15),
			SoilTemperature6cm:  constant(n, 14),
			Rain:                constant(n, 0),
			Showers:             constant(n, 0),
			Snowfall:            constant(n, 0),
		},
	}
}

func testJob() pipeline.Job {
	return pipeline.Job{
		RunID:    "run-1",
		Location: "berlin",
		Query: domain.Query{
			Latitude:  52.52,
			Longitude: 13.41,
			StartDate: time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC),
		},
	}
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	processedAt := time.Date(2025, 8, 1, 6, 0, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(processedAt))
	t.Cleanup(func() { domain.SetClock(nil) })

	ext := &mockExtractor{resp: twoDays()}
	csv := &mockLoader{name: "csv"}
	pg := &mockLoader{name: "postgres"}
	metrics := newTestMetrics()

	p := pipeline.New(ext, []pipeline.Loader{csv, pg}, discardLogger(), metrics)
	require.Error(t, p.CheckReadiness(context.Background()))

	res, err := p.Run(context.Background(), testJob())
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, 2, res.Records)
	assert.Empty(t, res.Failed)
	assert.Equal(t, []domain.Query{testJob().Query}, ext.queries)

	require.Len(t, csv.batches, 1)
	require.Len(t, pg.batches, 1)
	if diff := cmp.Diff(csv.batches[0], pg.batches[0]); diff != "" {
		t.Errorf("sinks received different records (-csv +postgres):\n%s", diff)
	}
	assert.Equal(t, processedAt, csv.batches[0][0].CreatedAt)

	require.NoError(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 2.0, testutil.ToFloat64(metrics.RecordsAggregated), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.Runs.WithLabelValues("success")), 0)
	assert.InDelta(t, 0.0, testutil.ToFloat64(metrics.PipelineRunning), 0)
}

func TestPipeline_Run_GeneratesRunID(t *testing.T) {
	p := pipeline.New(&mockExtractor{resp: twoDays()}, nil, discardLogger(), newTestMetrics())

	job := testJob()
	job.RunID = ""
	res, err := p.Run(context.Background(), job)
	require.NoError(t, err)
	assert.Len(t, res.RunID, 36)
}

func TestPipeline_Run_SinkFailureDoesNotStopOthers(t *testing.T) {
	boom := errors.New("disk full")
	csv := &mockLoader{name: "csv", err: boom}
	pg := &mockLoader{name: "postgres"}
	metrics := newTestMetrics()

	p := pipeline.New(&mockExtractor{resp: twoDays()}, []pipeline.Loader{csv, pg}, discardLogger(), metrics)

	res, err := p.Run(context.Background(), testJob())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "sink csv")
	assert.Equal(t, []string{"csv"}, res.Failed)
	assert.Len(t, pg.batches, 1, "postgres still written")

	assert.Error(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.Runs.WithLabelValues("partial")), 0)
}

func TestPipeline_Run_AllSinksFail(t *testing.T) {
	errA, errB := errors.New("a"), errors.New("b")
	metrics := newTestMetrics()
	p := pipeline.New(&mockExtractor{resp: twoDays()},
		[]pipeline.Loader{&mockLoader{name: "csv", err: errA}, &mockLoader{name: "kafka", err: errB}},
		discardLogger(), metrics)

	res, err := p.Run(context.Background(), testJob())
	require.ErrorIs(t, err, errA)
	require.ErrorIs(t, err, errB)
	assert.Equal(t, []string{"csv", "kafka"}, res.Failed)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.Runs.WithLabelValues("error")), 0)
}

func TestPipeline_Run_ExtractError(t *testing.T) {
	boom := errors.New("upstream down")
	ldr := &mockLoader{name: "csv"}
	p := pipeline.New(&mockExtractor{err: boom}, []pipeline.Loader{ldr}, discardLogger(), newTestMetrics())

	_, err := p.Run(context.Background(), testJob())
	require.ErrorIs(t, err, boom)
	assert.Empty(t, ldr.batches)
}

func TestPipeline_Run_InvalidResponseWritesNothing(t *testing.T) {
	resp := twoDays()
	resp.Hourly.Rain = resp.Hourly.Rain[:10]
	ldr := &mockLoader{name: "csv"}
	p := pipeline.New(&mockExtractor{resp: resp}, []pipeline.Loader{ldr}, discardLogger(), newTestMetrics())

	_, err := p.Run(context.Background(), testJob())
	require.ErrorIs(t, err, domain.ErrInvalidResponse)
	assert.Empty(t, ldr.batches)
}
