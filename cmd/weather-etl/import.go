package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/weather-rollup-etl/internal/adapter/openmeteo"
	"github.com/couchcryptid/weather-rollup-etl/internal/pipeline"
)

func newImportCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Write the daily summaries of a downloaded API response",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.pipeline(openmeteo.FileSource{Path: file}).Run(cmd.Context(), pipeline.Job{Location: file})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d daily summaries\n", res.RunID, res.Records)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to a JSON response document")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
