//go:build integration

package integration_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-rollup-etl/internal/adapter/openmeteo"
	"github.com/couchcryptid/weather-rollup-etl/internal/config"
	"github.com/couchcryptid/weather-rollup-etl/internal/dedup"
	"github.com/couchcryptid/weather-rollup-etl/internal/observability"
	"github.com/couchcryptid/weather-rollup-etl/internal/pipeline"
	"github.com/couchcryptid/weather-rollup-etl/internal/sink"
)

// TestPipelineAllSinks runs a recorded document through every sink twice and
// checks each destination holds one entry per day.
func TestPipelineAllSinks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	db := startPostgres(ctx, t)
	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	dir := t.TempDir()
	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaTopic: testTopic}
	csvStore := dedup.NewFileStore(filepath.Join(dir, "csv.bloom"))
	pgStore := dedup.NewFileStore(filepath.Join(dir, "postgres.bloom"))
	kafkaStore := dedup.NewFileStore(filepath.Join(dir, "kafka.bloom"))

	for run := 0; run < 2; run++ {
		metrics := observability.NewMetricsForTesting()
		logger := discardLogger()

		csvW, err := sink.NewCSVWriter(filepath.Join(dir, "weather.csv"), dedup.Open(csvStore, dedup.DefaultParams(), logger), csvStore, logger, metrics)
		require.NoError(t, err)
		pgW, err := sink.NewPostgresWriter(db, "final_records", dedup.Open(pgStore, dedup.DefaultParams(), logger), pgStore, logger, metrics)
		require.NoError(t, err)
		kafkaW := sink.NewKafkaWriter(cfg, dedup.Open(kafkaStore, dedup.DefaultParams(), logger), kafkaStore, logger, metrics)

		p := pipeline.New(openmeteo.FileSource{Path: fixturePath()},
			[]pipeline.Loader{csvW, pgW, kafkaW}, logger, metrics)
		res, err := p.Run(ctx, pipeline.Job{Location: "berlin"})
		require.NoError(t, err, "run %d", run)
		assert.Equal(t, 2, res.Records)
		assert.Empty(t, res.Failed)
		require.NoError(t, kafkaW.Close())
	}

	assert.Equal(t, 2, countRows(ctx, t, db))
}
