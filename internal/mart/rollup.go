package mart

import (
	"sort"
	"time"

	"github.com/aaryabookseller16/Recall-Watch/internal/model"
)

// Trailing window sizes, in partition rows.
const (
	window7d  = 7
	window30d = 30
)

type grainKey struct {
	date         time.Time
	vehicleKey   string
	componentKey string
}

type partitionKey struct {
	vehicleKey   string
	componentKey string
}

// BuildRollup aggregates facts into one row per (date, vehicle, component)
// observed in either fact table and derives the trailing-window metrics.
//
// Windows are row-based, not calendar-based: complaints_7d sums the current
// row and the 6 immediately preceding rows of the same (vehicle, component)
// partition in date order. Days without activity are not zero-filled, so a
// sparse partition's window can span more than 7 calendar days.
func BuildRollup(recallFacts []model.RecallFact, complaintFacts []model.ComplaintFact,
	vehicles []model.VehicleDim, components []model.ComponentDim) []model.RollupRow {

	// Grouped counts per side. This is a plain count, not a join.
	recallCounts := make(map[grainKey]int64)
	for _, f := range recallFacts {
		recallCounts[grainKey{dateOnly(f.Date), f.VehicleKey, f.ComponentKey}]++
	}
	complaintCounts := make(map[grainKey]int64)
	for _, f := range complaintFacts {
		complaintCounts[grainKey{dateOnly(f.Date), f.VehicleKey, f.ComponentKey}]++
	}

	// Full outer combine: the union of grain keys, missing side counted 0.
	// Building the union first keeps the result independent of which side
	// is treated as "left".
	grains := make(map[grainKey]bool, len(recallCounts)+len(complaintCounts))
	for k := range recallCounts {
		grains[k] = true
	}
	for k := range complaintCounts {
		grains[k] = true
	}

	rows := make([]model.RollupRow, 0, len(grains))
	for k := range grains {
		rows = append(rows, model.RollupRow{
			Date:           k.date,
			VehicleKey:     k.vehicleKey,
			ComponentKey:   k.componentKey,
			RecallCount:    recallCounts[k],
			ComplaintCount: complaintCounts[k],
		})
	}

	// Per-partition date order, partitions ordered by key so the output is
	// deterministic.
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].VehicleKey != rows[j].VehicleKey {
			return rows[i].VehicleKey < rows[j].VehicleKey
		}
		if rows[i].ComponentKey != rows[j].ComponentKey {
			return rows[i].ComponentKey < rows[j].ComponentKey
		}
		return rows[i].Date.Before(rows[j].Date)
	})

	applyWindows(rows)
	attachDisplayFields(rows, vehicles, components)
	return rows
}

// applyWindows computes complaints_7d, complaints_30d and the 7-row growth
// delta over each contiguous partition of the sorted row slice. The trailing
// sums are maintained index-addressed: the value leaving the window is
// subtracted as each row enters it.
func applyWindows(rows []model.RollupRow) {
	for start := 0; start < len(rows); {
		end := start + 1
		p := partitionKey{rows[start].VehicleKey, rows[start].ComponentKey}
		for end < len(rows) && (partitionKey{rows[end].VehicleKey, rows[end].ComponentKey}) == p {
			end++
		}

		var sum7, sum30 int64
		sevens := make([]int64, 0, end-start)
		for i := start; i < end; i++ {
			off := i - start
			sum7 += rows[i].ComplaintCount
			if off >= window7d {
				sum7 -= rows[i-window7d].ComplaintCount
			}
			sum30 += rows[i].ComplaintCount
			if off >= window30d {
				sum30 -= rows[i-window30d].ComplaintCount
			}
			rows[i].Complaints7d = sum7
			rows[i].Complaints30d = sum30

			if off >= window7d {
				growth := sum7 - sevens[off-window7d]
				rows[i].Complaints7dGrowth = &growth
			}
			sevens = append(sevens, sum7)
		}

		start = end
	}
}

// attachDisplayFields denormalizes make/model/model_year and the component
// name onto each row. A missing dimension match leaves the display fields
// absent without failing the row.
func attachDisplayFields(rows []model.RollupRow, vehicles []model.VehicleDim, components []model.ComponentDim) {
	vbyKey := make(map[string]model.VehicleDim, len(vehicles))
	for _, v := range vehicles {
		vbyKey[v.Key] = v
	}
	cbyKey := make(map[string]model.ComponentDim, len(components))
	for _, c := range components {
		cbyKey[c.Key] = c
	}

	for i := range rows {
		if v, ok := vbyKey[rows[i].VehicleKey]; ok {
			mk := v.Make
			rows[i].Make = &mk
			rows[i].Model = v.Model
			rows[i].ModelYear = v.ModelYear
		}
		if c, ok := cbyKey[rows[i].ComponentKey]; ok {
			name := c.Name
			rows[i].ComponentName = &name
		}
	}
}

// dateOnly truncates a timestamp to its UTC date.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
