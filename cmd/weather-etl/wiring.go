package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	_ "github.com/lib/pq"

	"github.com/couchcryptid/weather-rollup-etl/internal/config"
	"github.com/couchcryptid/weather-rollup-etl/internal/dedup"
	"github.com/couchcryptid/weather-rollup-etl/internal/observability"
	"github.com/couchcryptid/weather-rollup-etl/internal/pipeline"
	"github.com/couchcryptid/weather-rollup-etl/internal/sink"
)

// app holds the process-wide dependencies built from Config.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	loaders []pipeline.Loader
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat),
		metrics: observability.NewMetrics(),
	}
	if err := a.buildSinks(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// buildSinks constructs the enabled sinks in configured order. Each sink owns
// a filter persisted at <FILTER_STATE_DIR>/<sink>.bloom.
func (a *app) buildSinks(ctx context.Context) error {
	for _, name := range a.cfg.Sinks {
		filter, store := a.openFilter(name)

		switch name {
		case config.SinkCSV:
			w, err := sink.NewCSVWriter(a.cfg.CSVPath, filter, store, a.logger, a.metrics)
			if err != nil {
				return fmt.Errorf("csv sink: %w", err)
			}
			a.loaders = append(a.loaders, w)

		case config.SinkPostgres:
			db, err := a.openDB(ctx)
			if err != nil {
				return fmt.Errorf("postgres sink: %w", err)
			}
			a.closers = append(a.closers, db.Close)
			w, err := sink.NewPostgresWriter(db, a.cfg.DBTable, filter, store, a.logger, a.metrics)
			if err != nil {
				return fmt.Errorf("postgres sink: %w", err)
			}
			a.loaders = append(a.loaders, w)

		case config.SinkKafka:
			w := sink.NewKafkaWriter(a.cfg, filter, store, a.logger, a.metrics)
			a.closers = append(a.closers, w.Close)
			a.loaders = append(a.loaders, w)

		default:
			return fmt.Errorf("unknown sink %q", name)
		}
		a.logger.Info("sink enabled", "sink", name, "filter", filter.Origin(), "filter_entries", filter.Len())
	}
	return nil
}

func (a *app) openFilter(name string) (*dedup.Filter, dedup.Store) {
	store := dedup.NewFileStore(filepath.Join(a.cfg.FilterStateDir, name+".bloom"))
	sizing := a.cfg.FilterFor(name)
	filter := dedup.Open(store, dedup.Params{
		ExpectedEntries:   sizing.ExpectedEntries,
		FalsePositiveRate: sizing.FalsePositiveRate,
	}, a.logger.With("sink", name))
	a.metrics.FilterLoads.WithLabelValues(name, string(filter.Origin())).Inc()
	return filter, store
}

func (a *app) openDB(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("postgres", a.cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(a.cfg.DBMaxOpenConns)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}
	return db, nil
}

func (a *app) pipeline(e pipeline.Extractor) *pipeline.Pipeline {
	return pipeline.New(e, a.loaders, a.logger, a.metrics)
}

func (a *app) close() {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Error("close sinks", "error", err)
	}
}
