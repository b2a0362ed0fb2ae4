package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aaryabookseller16/Recall-Watch/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "recallwatch",
	Short: "Vehicle safety recall and complaint pipeline",
	Long:  "Ingests NHTSA recall and complaint data from the DOT Socrata datasets, builds a star-schema mart with daily rolling-window rollups, and flags complaint spikes.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
