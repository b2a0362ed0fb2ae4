package mart

import (
	"time"

	"github.com/aaryabookseller16/Recall-Watch/internal/model"
)

// DefaultAnomalyFactor is the volume-spike multiplier: a day is flagged when
// its complaint count exceeds factor × the previous day's count in the same
// partition.
const DefaultAnomalyFactor = 10

// Anomaly identifies a flagged (partition, date) complaint-volume spike.
type Anomaly struct {
	VehicleKey   string    `json:"vehicle_key"`
	ComponentKey string    `json:"component_key"`
	Date         time.Time `json:"date"`
	Count        int64     `json:"count"`
	PrevCount    int64     `json:"prev_count"`
}

// Anomalies scans rollup rows (already in partition/date order as produced
// by BuildRollup) and returns every row whose complaint count reaches
// factor times the immediately preceding row's count in the same partition.
// The boundary counts: 50 after 5 is flagged at factor 10. Zero-count rows
// are never flagged, and neither is the first row of a partition, which has
// no prior day to compare against.
func Anomalies(rows []model.RollupRow, factor int64) []Anomaly {
	if factor <= 0 {
		factor = DefaultAnomalyFactor
	}

	var out []Anomaly
	for i := 1; i < len(rows); i++ {
		prev, cur := rows[i-1], rows[i]
		if prev.VehicleKey != cur.VehicleKey || prev.ComponentKey != cur.ComponentKey {
			continue
		}
		if cur.ComplaintCount > 0 && cur.ComplaintCount >= factor*prev.ComplaintCount {
			out = append(out, Anomaly{
				VehicleKey:   cur.VehicleKey,
				ComponentKey: cur.ComponentKey,
				Date:         cur.Date,
				Count:        cur.ComplaintCount,
				PrevCount:    prev.ComplaintCount,
			})
		}
	}
	return out
}
