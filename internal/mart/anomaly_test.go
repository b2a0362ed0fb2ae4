package mart

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaryabookseller16/Recall-Watch/internal/model"
)

func TestAnomalies_SpikeOnThirdDay(t *testing.T) {
	rows := BuildRollup(nil, complaintSeries("2024-01-01", []int{5, 6, 70}), nil, nil)

	flagged := Anomalies(rows, DefaultAnomalyFactor)
	require.Len(t, flagged, 1)
	assert.Equal(t, *day("2024-01-03"), flagged[0].Date)
	assert.Equal(t, int64(70), flagged[0].Count)
	assert.Equal(t, int64(6), flagged[0].PrevCount)
}

func TestAnomalies_BoundaryFlagsSecondDayOnly(t *testing.T) {
	rows := BuildRollup(nil, complaintSeries("2024-01-01", []int{5, 50, 55}), nil, nil)

	flagged := Anomalies(rows, DefaultAnomalyFactor)
	require.Len(t, flagged, 1)
	assert.Equal(t, *day("2024-01-02"), flagged[0].Date, "50 reaches 10x5; 55 does not reach 10x50")
}

func TestAnomalies_FirstRowNeverFlagged(t *testing.T) {
	rows := BuildRollup(nil, complaintSeries("2024-01-01", []int{1000}), nil, nil)
	assert.Empty(t, Anomalies(rows, DefaultAnomalyFactor))
}

func TestAnomalies_PartitionBoundaryNotCompared(t *testing.T) {
	// Last row of one partition (count 1) followed by the first row of the
	// next (count 100): never compared across the boundary.
	partA := complaintSeries("2024-01-01", []int{1})
	partB := make([]model.ComplaintFact, 100)
	for i := range partB {
		partB[i] = model.ComplaintFact{
			ComplaintPK:  fmt.Sprintf("odi:b%d", i),
			VehicleKey:   "v:bbbb",
			ComponentKey: ckeyA,
			Date:         *day("2024-01-02"),
		}
	}

	rows := BuildRollup(nil, append(partA, partB...), nil, nil)
	assert.Empty(t, Anomalies(rows, DefaultAnomalyFactor))
}

func TestAnomalies_FirstComplaintAfterQuietDayFlags(t *testing.T) {
	// A recall-only day carries complaint_count 0; a single complaint the
	// next day reaches factor x 0 and is flagged with prev_count 0.
	rows := BuildRollup(
		[]model.RecallFact{recallFactOn("2024-01-01")},
		complaintSeries("2024-01-02", []int{1}),
		nil, nil,
	)

	flagged := Anomalies(rows, DefaultAnomalyFactor)
	require.Len(t, flagged, 1)
	assert.Equal(t, *day("2024-01-02"), flagged[0].Date)
	assert.Equal(t, int64(1), flagged[0].Count)
	assert.Equal(t, int64(0), flagged[0].PrevCount)
}

func TestAnomalies_ZeroDaysNeverFlag(t *testing.T) {
	// A recall-only day yields complaint_count 0; the following zero must
	// not be flagged even though 0 >= factor*0.
	rows := BuildRollup(
		[]model.RecallFact{recallFactOn("2024-01-01"), recallFactOn("2024-01-02")},
		nil, nil, nil,
	)
	assert.Empty(t, Anomalies(rows, DefaultAnomalyFactor))
}
