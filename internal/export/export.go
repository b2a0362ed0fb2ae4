// Package export writes rollup rows out as CSV or XLSX for analysts who
// consume the mart outside the database.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/aaryabookseller16/Recall-Watch/internal/model"
)

var rollupHeader = []string{
	"date", "vehicle_key", "component_key",
	"recall_count", "complaint_count",
	"complaints_7d", "complaints_30d", "complaints_7d_growth",
	"make", "model", "model_year", "component_name",
}

func rollupRecord(r model.RollupRow) []string {
	growth := ""
	if r.Complaints7dGrowth != nil {
		growth = strconv.FormatInt(*r.Complaints7dGrowth, 10)
	}
	year := ""
	if r.ModelYear != nil {
		year = strconv.Itoa(*r.ModelYear)
	}
	return []string{
		r.Date.Format("2006-01-02"),
		r.VehicleKey,
		r.ComponentKey,
		strconv.FormatInt(r.RecallCount, 10),
		strconv.FormatInt(r.ComplaintCount, 10),
		strconv.FormatInt(r.Complaints7d, 10),
		strconv.FormatInt(r.Complaints30d, 10),
		growth,
		deref(r.Make),
		deref(r.Model),
		year,
		deref(r.ComponentName),
	}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// WriteCSV writes rollup rows to w with a header row. Absent fields become
// empty cells.
func WriteCSV(w io.Writer, rows []model.RollupRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(rollupHeader); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, r := range rows {
		if err := cw.Write(rollupRecord(r)); err != nil {
			return eris.Wrap(err, "export: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteXLSX writes rollup rows to an xlsx workbook at path with a single
// "Rollup" sheet.
func WriteXLSX(path string, rows []model.RollupRow) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Rollup")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range rollupHeader {
		header.AddCell().SetString(h)
	}
	for _, r := range rows {
		row := sheet.AddRow()
		for _, cell := range rollupRecord(r) {
			row.AddCell().SetString(cell)
		}
	}

	return eris.Wrapf(f.Save(path), "export: save %s", path)
}
