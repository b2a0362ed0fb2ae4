package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aaryabookseller16/Recall-Watch/internal/pipeline"
)

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Rebuild the mart from the raw layer",
	Long:  "Stages and deduplicates the raw layer, derives dimensions and facts, computes the daily rollup with trailing windows, and publishes the mart atomically.",
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

func printTransformResult(result *pipeline.Result) {
	fmt.Println("\n=== RecallWatch Transform ===")
	fmt.Printf("run: %s\n", result.RunID)
	fmt.Printf("raw: recalls=%d complaints=%d\n", result.RawRecalls, result.RawComplaints)
	fmt.Printf("staged: recalls=%d complaints=%d\n", result.StagedRecalls, result.StagedComplaints)
	fmt.Printf("dims: vehicles=%d components=%d\n", result.Vehicles, result.Components)
	fmt.Printf("facts: recalls=%d complaints=%d\n", result.RecallFacts, result.ComplaintFacts)
	fmt.Printf("rollup rows: %d\n", result.RollupRows)
	fmt.Printf("elapsed: %s\n", result.Elapsed.Round(time.Millisecond))

	if len(result.Anomalies) > 0 {
		fmt.Printf("\nWARNING: %d complaint spike(s) detected:\n", len(result.Anomalies))
		for _, a := range result.Anomalies {
			fmt.Printf("  %s vehicle=%s component=%s count=%d prev=%d\n",
				a.Date.Format("2006-01-02"), truncateKey(a.VehicleKey), truncateKey(a.ComponentKey), a.Count, a.PrevCount)
		}
	}
}

// truncateKey returns a compact prefix of a content-hash key for display.
func truncateKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}

func init() {
	rootCmd.AddCommand(transformCmd)
}
