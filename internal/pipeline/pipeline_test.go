package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaryabookseller16/Recall-Watch/internal/model"
	"github.com/aaryabookseller16/Recall-Watch/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedRaw(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()

	report := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	ingested := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	_, err := st.UpsertRawRecalls(ctx, []model.RawRecall{
		{
			PK:         "nhtsa:24V001",
			Source:     "socrata",
			Make:       model.String("TESLA, INC."),
			Component:  model.String("  STEERING  "),
			ReportDate: &report,
			IngestedAt: ingested,
			Payload:    []byte(`{}`),
		},
		{
			// No report date: staged but excluded from facts.
			PK:         "nhtsa:24V002",
			Source:     "socrata",
			Make:       model.String("TESLA, INC."),
			Component:  model.String("STEERING"),
			IngestedAt: ingested,
			Payload:    []byte(`{}`),
		},
	})
	require.NoError(t, err)

	received := time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)
	_, err = st.UpsertRawComplaints(ctx, []model.RawComplaint{
		{
			PK:           "odi:11111111",
			Source:       "socrata",
			Make:         model.String("TESLA"),
			Model:        model.String("MODEL 3"),
			ModelYear:    model.String("2023"),
			Component:    model.String("Steering"),
			ReceivedDate: &received,
			State:        model.String("CA"),
			IngestedAt:   ingested,
			Payload:      []byte(`{}`),
		},
	})
	require.NoError(t, err)
}

func TestRun_EndToEnd(t *testing.T) {
	st := newTestStore(t)
	seedRaw(t, st)

	result, err := New(st).Run(context.Background(), Options{Trigger: "test"})
	require.NoError(t, err)

	assert.Equal(t, 2, result.RawRecalls)
	assert.Equal(t, 1, result.RawComplaints)
	assert.Equal(t, 2, result.StagedRecalls)
	assert.Equal(t, 1, result.StagedComplaints)
	// Recall vehicle (make only) and complaint vehicle (make+model+year)
	// are distinct tuples.
	assert.Equal(t, 2, result.Vehicles)
	assert.Equal(t, 1, result.Components)
	assert.Equal(t, 1, result.RecallFacts)
	assert.Equal(t, 1, result.ComplaintFacts)
	assert.Equal(t, 2, result.RollupRows)

	rows, err := st.QueryRollup(context.Background(), store.RollupFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		require.NotNil(t, r.ComponentName)
		assert.Equal(t, "steering", *r.ComponentName)
	}

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)
	assert.EqualValues(t, 2, runs[0].RollupRows)
}

func TestRun_Rerun_IsIdempotent(t *testing.T) {
	st := newTestStore(t)
	seedRaw(t, st)

	p := New(st)
	first, err := p.Run(context.Background(), Options{})
	require.NoError(t, err)
	second, err := p.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, first.RollupRows, second.RollupRows)

	rows, err := st.QueryRollup(context.Background(), store.RollupFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, first.RollupRows)
}

func TestRun_BadYearFailsRun(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	received := time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)
	_, err := st.UpsertRawComplaints(ctx, []model.RawComplaint{
		{
			PK:           "odi:99999999",
			Source:       "socrata",
			Make:         model.String("TESLA"),
			ModelYear:    model.String("twenty-three"),
			ReceivedDate: &received,
			IngestedAt:   time.Now().UTC(),
			Payload:      []byte(`{}`),
		},
	})
	require.NoError(t, err)

	_, err = New(st).Run(ctx, Options{})
	require.Error(t, err)
	assert.Equal(t, StageStaging, stageOf(err))

	runs, err := st.ListRuns(ctx, store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.Equal(t, StageStaging, runs[0].Stage)
	assert.Contains(t, runs[0].Error, "odi:99999999")
}

func TestRun_EmptyRawProducesEmptyMart(t *testing.T) {
	st := newTestStore(t)

	result, err := New(st).Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Zero(t, result.RollupRows)
	assert.Empty(t, result.Anomalies)
}

func TestRun_AnomalyDetected(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Day one: 1 complaint. Day two: 20 complaints for the same vehicle
	// and component. Factor 10 flags day two.
	ingested := time.Now().UTC()
	var rows []model.RawComplaint
	day1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	addComplaint := func(pk string, received time.Time) {
		rows = append(rows, model.RawComplaint{
			PK:           pk,
			Source:       "socrata",
			Make:         model.String("TESLA"),
			Model:        model.String("MODEL Y"),
			ModelYear:    model.String("2024"),
			Component:    model.String("BRAKES"),
			ReceivedDate: &received,
			IngestedAt:   ingested,
			Payload:      []byte(`{}`),
		})
	}
	addComplaint("odi:1", day1)
	for i := range 20 {
		addComplaint(fmt.Sprintf("odi:2%02d", i), day2)
	}
	_, err := st.UpsertRawComplaints(ctx, rows)
	require.NoError(t, err)

	result, err := New(st).Run(ctx, Options{AnomalyFactor: 10})
	require.NoError(t, err)
	require.Len(t, result.Anomalies, 1)
	assert.EqualValues(t, 20, result.Anomalies[0].Count)
	assert.EqualValues(t, 1, result.Anomalies[0].PrevCount)
}

func TestStageOf_UntaggedError(t *testing.T) {
	assert.Equal(t, StageTransform, stageOf(assert.AnError))
}
