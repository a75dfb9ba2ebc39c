package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/weather-rollup-etl/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// rootOptions are shared by every subcommand.
type rootOptions struct {
	sinks []string
	cfg   *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "weather-etl",
		Short:         "Roll hourly weather observations up into daily summaries",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			// --sink replaces SINKS entirely.
			if len(opts.sinks) > 0 {
				cfg.Sinks = config.ParseSinks(strings.Join(opts.sinks, ","))
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			opts.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringSliceVar(&opts.sinks, "sink", nil,
		"sink to write to (csv, postgres, kafka); repeatable, overrides SINKS")

	root.AddCommand(newRunCmd(opts), newImportCmd(opts), newServeCmd(opts))
	return root
}
