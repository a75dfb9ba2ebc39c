// Package scheduler runs the pipeline for a fixed set of locations on an
// interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/weather-rollup-etl/internal/pipeline"
)

// ErrBusy is returned by TryRunOnce while another ingestion is in progress.
var ErrBusy = errors.New("ingestion already in progress")

// Runner executes a single ingestion job.
type Runner interface {
	Run(ctx context.Context, job pipeline.Job) (pipeline.Result, error)
}

// Scheduler periodically ingests the trailing window of days for every
// configured location. Locations are processed one after another: the sinks
// share their dedup filters and are not safe for concurrent writes.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	locations []Location
	interval  time.Duration
	lookback  int
	timeout   time.Duration
	clock     clockwork.Clock
	logger    *slog.Logger

	mu sync.Mutex
}

// New creates a Scheduler. lookbackDays is the number of days before today
// included in every query; today is always included.
func New(runner Runner, locations []Location, interval time.Duration, lookbackDays int, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		runner:    runner,
		locations: locations,
		interval:  interval,
		lookback:  lookbackDays,
		timeout:   5 * time.Minute,
		clock:     clockwork.NewRealClock(),
		logger:    logger,
	}
}

// Start schedules the periodic job and starts the underlying scheduler. The
// first tick fires immediately. A tick that is still running when the next
// one is due causes the next one to be skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	if len(s.locations) == 0 {
		s.logger.Warn("no locations configured; nothing to schedule")
		return nil
	}

	if s.interval <= 0 {
		return fmt.Errorf("schedule ingestion: interval must be positive, got %s", s.interval)
	}

	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(func() {
		if err := s.RunOnce(ctx); err != nil {
			s.logger.Error("scheduled run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule ingestion: %w", err)
	}

	s.logger.Info("scheduler started", "interval", s.interval, "locations", len(s.locations))
	s.scheduler.StartAsync()
	return nil
}

// RunOnce ingests every location once and joins the per-location errors.
// It waits for any ingestion already in progress.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ingest(ctx)
}

// TryRunOnce is RunOnce but returns ErrBusy instead of waiting.
func (s *Scheduler) TryRunOnce(ctx context.Context) error {
	if !s.mu.TryLock() {
		return ErrBusy
	}
	defer s.mu.Unlock()
	return s.ingest(ctx)
}

func (s *Scheduler) ingest(ctx context.Context) error {
	start, end := s.window()
	s.logger.Info("ingesting locations",
		"locations", len(s.locations),
		"start_date", start.Format(time.DateOnly),
		"end_date", end.Format(time.DateOnly),
	)

	var errs []error
	for _, loc := range s.locations {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.runLocation(ctx, loc, start, end); err != nil {
			errs = append(errs, fmt.Errorf("location %s: %w", loc.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) runLocation(ctx context.Context, loc Location, start, end time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.runner.Run(ctx, pipeline.Job{
		Location: loc.Name,
		Query:    loc.Query(start, end),
	})
	return err
}

// window returns [today-lookback, today] as UTC midnights.
func (s *Scheduler) window() (time.Time, time.Time) {
	y, m, d := s.clock.Now().UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, -s.lookback), today
}

// Stop cancels future ticks and waits for an ingestion in progress. Cancel the
// context passed to Start first to cut a running ingestion short.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
}
