package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/weather-rollup-etl/internal/domain"
	"github.com/couchcryptid/weather-rollup-etl/internal/observability"
)

// Extractor returns the raw observation document for a query.
type Extractor interface {
	Extract(ctx context.Context, q domain.Query) (domain.RawSeriesResponse, error)
}

// Loader persists summary records. Implementations deduplicate on their own.
type Loader interface {
	Write(ctx context.Context, records []domain.SummaryRecord) error
	Name() string
}

// Job is one ingestion of one location.
type Job struct {
	// RunID correlates log lines; generated when empty.
	RunID    string
	Location string
	Query    domain.Query
}

// Result summarises a run.
type Result struct {
	RunID   string
	Records int
	// Failed lists the sinks whose write returned an error.
	Failed []string
}

// Pipeline orchestrates extract, aggregate and load for a single job.
// Sinks are written sequentially in the order given to New.
type Pipeline struct {
	extractor Extractor
	loaders   []Loader
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
}

// New creates a Pipeline with the given stages and observability.
func New(e Extractor, loaders []Loader, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		extractor: e,
		loaders:   loaders,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once a run has completed without errors.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	return nil
}

// Run executes one job. A failing sink does not stop the others; every sink
// error is joined into the returned error and the sink is listed in
// Result.Failed.
func (p *Pipeline) Run(ctx context.Context, job Job) (Result, error) {
	if job.RunID == "" {
		job.RunID = uuid.NewString()
	}
	res := Result{RunID: job.RunID}
	logger := p.logger.With("run_id", job.RunID)
	if job.Location != "" {
		logger = logger.With("location", job.Location)
	}

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)
	start := time.Now()
	defer func() { p.metrics.RunDuration.Observe(time.Since(start).Seconds()) }()

	logger.Info("run started",
		"start_date", job.Query.StartDate.Format(domain.DateLayout),
		"end_date", job.Query.EndDate.Format(domain.DateLayout),
		"sinks", len(p.loaders),
	)

	raw, err := p.extractor.Extract(ctx, job.Query)
	if err != nil {
		p.metrics.Runs.WithLabelValues("error").Inc()
		logger.Error("extract failed", "error", err)
		return res, fmt.Errorf("extract: %w", err)
	}

	records, err := domain.Aggregate(raw)
	if err != nil {
		p.metrics.Runs.WithLabelValues("error").Inc()
		logger.Error("aggregate failed", "error", err)
		return res, fmt.Errorf("aggregate: %w", err)
	}
	res.Records = len(records)
	p.metrics.RecordsAggregated.Add(float64(len(records)))

	var errs []error
	for _, l := range p.loaders {
		if err := l.Write(ctx, records); err != nil {
			res.Failed = append(res.Failed, l.Name())
			errs = append(errs, fmt.Errorf("sink %s: %w", l.Name(), err))
		}
	}

	switch {
	case len(errs) == 0:
		p.metrics.Runs.WithLabelValues("success").Inc()
		p.ready.Store(true)
		logger.Info("run complete", "records", res.Records, "duration", time.Since(start))
		return res, nil
	case len(errs) < len(p.loaders):
		p.metrics.Runs.WithLabelValues("partial").Inc()
	default:
		p.metrics.Runs.WithLabelValues("error").Inc()
	}
	logger.Error("run finished with sink errors", "records", res.Records, "failed", res.Failed)
	return res, errors.Join(errs...)
}
