package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/weather-rollup-etl/internal/adapter/httpadapter"
	"github.com/couchcryptid/weather-rollup-etl/internal/adapter/openmeteo"
	"github.com/couchcryptid/weather-rollup-etl/internal/scheduler"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Ingest the configured locations on an interval and serve health and metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := opts.cfg

			locations, err := scheduler.LoadLocations(cfg.LocationsFile)
			if err != nil {
				return err
			}

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()
			logger := a.logger

			client := openmeteo.NewClient(cfg.OpenMeteoURL, cfg.OpenMeteoTimeout, cfg.OpenMeteoRetries, logger, a.metrics)
			p := a.pipeline(client)
			sched := scheduler.New(p, locations, cfg.FetchInterval, cfg.LookbackDays, logger)
			srv := httpadapter.NewServer(cfg.HTTPAddr, p, sched, logger)

			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server error", "error", err)
				}
			}()

			if err := sched.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			logger.Info("shutting down")

			// The server goes first: Shutdown cancels a running /ingest, which
			// releases the scheduler lock that Stop waits on.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
			sched.Stop()

			logger.Info("shutdown complete")
			return nil
		},
	}
}
