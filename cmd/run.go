package main

import (
	"github.com/spf13/cobra"

	"github.com/aaryabookseller16/Recall-Watch/internal/ingest"
	"github.com/aaryabookseller16/Recall-Watch/internal/pipeline"
)

var runRecallsOnly bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Ingest and transform in one pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		window := sourceWindow()
		report, err := ingest.New(initSource(), st).Run(ctx, ingest.Options{
			Window:      window,
			RecallsOnly: runRecallsOnly,
		})
		if err != nil {
			return err
		}
		printIngestReport(report, window)

		result, err := pipeline.New(st).Run(ctx, pipeline.Options{
			Trigger:       "cli",
			AnomalyFactor: cfg.Pipeline.AnomalyFactor,
		})
		if err != nil {
			return err
		}
		printTransformResult(result)
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runRecallsOnly, "recalls-only", false, "skip complaint extraction")
	rootCmd.AddCommand(runCmd)
}
