package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/aaryabookseller16/Recall-Watch/internal/export"
	"github.com/aaryabookseller16/Recall-Watch/internal/store"
)

var (
	exportFormat    string
	exportPath      string
	exportMake      string
	exportComponent string
	exportFrom      string
	exportTo        string
	exportLimit     int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the daily rollup as CSV or XLSX",
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

		rows, err := st.QueryRollup(ctx, store.RollupFilter{
			Make:      exportMake,
			Component: exportComponent,
			From:      exportFrom,
			To:        exportTo,
			Limit:     exportLimit,
		})
		if err != nil {
			return eris.Wrap(err, "export: query rollup")
		}

		switch exportFormat {
		case "csv":
			if exportPath == "" || exportPath == "-" {
				return export.WriteCSV(os.Stdout, rows)
			}
			f, err := os.Create(exportPath)
			if err != nil {
				return eris.Wrapf(err, "export: create %s", exportPath)
			}
			defer f.Close() //nolint:errcheck
			if err := export.WriteCSV(f, rows); err != nil {
				return err
			}
		case "xlsx":
			if exportPath == "" {
				return eris.New("xlsx export requires --out")
			}
			if err := export.WriteXLSX(exportPath, rows); err != nil {
				return err
			}
		default:
			return eris.Errorf("unsupported export format: %s", exportFormat)
		}

		if exportPath != "" && exportPath != "-" {
			fmt.Printf("wrote %d rows to %s\n", len(rows), exportPath)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format: csv or xlsx")
	exportCmd.Flags().StringVarP(&exportPath, "out", "o", "", "output path (csv defaults to stdout)")
	exportCmd.Flags().StringVar(&exportMake, "make", "", "filter by make")
	exportCmd.Flags().StringVar(&exportComponent, "component", "", "filter by normalized component name")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "inclusive start date, ISO")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "inclusive end date, ISO")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "max rows (default 1000)")
	rootCmd.AddCommand(exportCmd)
}
