package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/weather-rollup-etl/internal/adapter/openmeteo"
	"github.com/couchcryptid/weather-rollup-etl/internal/domain"
	"github.com/couchcryptid/weather-rollup-etl/internal/pipeline"
	"github.com/couchcryptid/weather-rollup-etl/internal/scheduler"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		lat, lon           float64
		startDate, endDate string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch one location from the API and write its daily summaries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			loc := scheduler.Location{Name: "cli", Latitude: lat, Longitude: lon}
			if err := loc.Validate(); err != nil {
				return err
			}

			today := time.Now().UTC().Truncate(24 * time.Hour)
			start, err := parseDate(startDate, today.AddDate(0, 0, -cfg.LookbackDays))
			if err != nil {
				return fmt.Errorf("--start-date: %w", err)
			}
			end, err := parseDate(endDate, today)
			if err != nil {
				return fmt.Errorf("--end-date: %w", err)
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			client := openmeteo.NewClient(cfg.OpenMeteoURL, cfg.OpenMeteoTimeout, cfg.OpenMeteoRetries, a.logger, a.metrics)
			res, err := a.pipeline(client).Run(cmd.Context(), pipeline.Job{
				Location: loc.Name,
				Query:    loc.Query(start, end),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d daily summaries\n", res.RunID, res.Records)
			return nil
		},
	}

	f := cmd.Flags()
	f.Float64Var(&lat, "lat", 0, "latitude in degrees")
	f.Float64Var(&lon, "lon", 0, "longitude in degrees")
	f.StringVar(&startDate, "start-date", "", "first day (YYYY-MM-DD); defaults to LOOKBACK_DAYS before today")
	f.StringVar(&endDate, "end-date", "", "last day (YYYY-MM-DD); defaults to today")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
	return cmd
}

func parseDate(s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return fallback, nil
	}
	return time.Parse(domain.DateLayout, s)
}
