// Package sink persists daily summary records. Every writer consults its own
// dedup filter before writing a record, inserts the record's key once the
// record is accepted, and saves the filter exactly once per Write call,
// whether or not the write succeeded.
package sink

import (
	"context"
	"errors"
	"log/slog"

	"github.com/couchcryptid/weather-rollup-etl/internal/dedup"
	"github.com/couchcryptid/weather-rollup-etl/internal/domain"
	"github.com/couchcryptid/weather-rollup-etl/internal/observability"
)

// Writer is implemented by every sink.
type Writer interface {
	Write(ctx context.Context, records []domain.SummaryRecord) error
	Name() string
}

var (
	_ Writer = (*CSVWriter)(nil)
	_ Writer = (*PostgresWriter)(nil)
	_ Writer = (*KafkaWriter)(nil)
)

// guard is the filter bookkeeping shared by the writers.
type guard struct {
	name    string
	filter  *dedup.Filter
	store   dedup.Store
	logger  *slog.Logger
	metrics *observability.Metrics
}

func newGuard(name string, filter *dedup.Filter, store dedup.Store, logger *slog.Logger, metrics *observability.Metrics) guard {
	return guard{
		name:    name,
		filter:  filter,
		store:   store,
		logger:  logger.With("sink", name),
		metrics: metrics,
	}
}

// seen reports whether key should be skipped.
func (g *guard) seen(key domain.NaturalKey) bool {
	return g.filter.MightContain(string(key))
}

func (g *guard) accept(key domain.NaturalKey) {
	g.filter.Insert(string(key))
}

// finish saves the filter and records the batch outcome. The returned error
// joins err with any save failure.
func (g *guard) finish(err error, written, skipped int) error {
	if saveErr := dedup.Save(g.store, g.filter); saveErr != nil {
		g.logger.Error("save dedup filter failed", "error", saveErr)
		err = errors.Join(err, saveErr)
	}

	g.metrics.RecordsWritten.WithLabelValues(g.name).Add(float64(written))
	g.metrics.RecordsSkipped.WithLabelValues(g.name).Add(float64(skipped))
	if err != nil {
		g.metrics.SinkErrors.WithLabelValues(g.name).Inc()
		g.logger.Error("sink write failed", "error", err, "written", written, "skipped", skipped)
		return err
	}
	g.logger.Info("sink write complete", "written", written, "skipped", skipped)
	return nil
}
