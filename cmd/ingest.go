package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aaryabookseller16/Recall-Watch/internal/extract"
	"github.com/aaryabookseller16/Recall-Watch/internal/ingest"
)

var (
	ingestMake        string
	ingestStart       string
	ingestEnd         string
	ingestRecallsOnly bool
	ingestOutput      string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Extract recalls and complaints and load the raw layer",
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
		if ingestMake != "" {
			window.Make = ingestMake
		}
		if ingestStart != "" {
			window.Start = ingestStart
		}
		if ingestEnd != "" {
			window.End = ingestEnd
		}

		report, err := ingest.New(initSource(), st).Run(ctx, ingest.Options{
			Window:      window,
			RecallsOnly: ingestRecallsOnly,
		})
		if err != nil {
			return err
		}

		switch ingestOutput {
		case "yaml":
			return yaml.NewEncoder(os.Stdout).Encode(report)
		case "text", "":
			printIngestReport(report, window)
			return nil
		default:
			return eris.Errorf("unsupported output format: %s", ingestOutput)
		}
	},
}

func printIngestReport(report *ingest.Report, window extract.Window) {
	fmt.Println("\n=== RecallWatch Ingest Report ===")
	fmt.Printf("make: %s\n", window.Make)
	fmt.Printf("window: %s .. %s\n", window.Start, window.End)
	fmt.Printf("started_at: %s\n", report.StartedAt.Format("2006-01-02T15:04:05Z"))
	fmt.Printf("finished_at: %s\n", report.FinishedAt.Format("2006-01-02T15:04:05Z"))
	fmt.Println("-")
	fmt.Printf("recalls: extracted=%d loaded=%d\n", report.RecallsExtracted, report.RecallsLoaded)
	if report.ComplaintsSkipped {
		fmt.Println("complaints: skipped (--recalls-only)")
	} else {
		fmt.Printf("complaints: extracted=%d loaded=%d\n", report.ComplaintsExtracted, report.ComplaintsLoaded)
	}
}

func init() {
	ingestCmd.Flags().StringVar(&ingestMake, "make", "", "vehicle make to ingest (default from config)")
	ingestCmd.Flags().StringVar(&ingestStart, "start", "", "window start date, ISO (default from config)")
	ingestCmd.Flags().StringVar(&ingestEnd, "end", "", "window end date, ISO (default from config)")
	ingestCmd.Flags().BoolVar(&ingestRecallsOnly, "recalls-only", false, "skip complaint extraction")
	ingestCmd.Flags().StringVarP(&ingestOutput, "output", "o", "text", "report format: text or yaml")
	rootCmd.AddCommand(ingestCmd)
}
