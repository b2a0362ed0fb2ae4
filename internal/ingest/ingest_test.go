package ingest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaryabookseller16/Recall-Watch/internal/extract"
	"github.com/aaryabookseller16/Recall-Watch/internal/model"
)

type fakeSource struct {
	recalls      []map[string]any
	complaints   []map[string]any
	recallErr    error
	complaintErr error
}

func (f *fakeSource) Recalls(context.Context, extract.Window) ([]map[string]any, error) {
	return f.recalls, f.recallErr
}

func (f *fakeSource) Complaints(context.Context, extract.Window) ([]map[string]any, error) {
	return f.complaints, f.complaintErr
}

type fakeStore struct {
	recalls    []model.RawRecall
	complaints []model.RawComplaint
}

func (f *fakeStore) UpsertRawRecalls(_ context.Context, rows []model.RawRecall) (int64, error) {
	f.recalls = append(f.recalls, rows...)
	return int64(len(rows)), nil
}

func (f *fakeStore) UpsertRawComplaints(_ context.Context, rows []model.RawComplaint) (int64, error) {
	f.complaints = append(f.complaints, rows...)
	return int64(len(rows)), nil
}

func TestRun_LoadsBothKinds(t *testing.T) {
	src := &fakeSource{
		recalls: []map[string]any{
			{"nhtsa_id": "24V001", "manufacturer": "Tesla, Inc.", "component": "STEERING", "report_received_date": "2024-03-01T00:00:00.000"},
		},
		complaints: []map[string]any{
			{"odi_number": "11111111", "make": "TESLA", "model": "MODEL 3", "model_year": "2023", "date_received": "2024-03-05"},
		},
	}
	store := &fakeStore{}

	report, err := New(src, store).Run(context.Background(), Options{
		Window: extract.Window{Make: "TESLA", Start: "2024-01-01", End: "2024-12-31"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.RecallsExtracted)
	assert.EqualValues(t, 1, report.RecallsLoaded)
	assert.Equal(t, 1, report.ComplaintsExtracted)
	assert.EqualValues(t, 1, report.ComplaintsLoaded)
	assert.False(t, report.ComplaintsSkipped)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))

	require.Len(t, store.recalls, 1)
	got := store.recalls[0]
	assert.Equal(t, "nhtsa:24V001", got.PK)
	assert.Equal(t, SourceSocrata, got.Source)
	require.NotNil(t, got.ReportDate)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *got.ReportDate)

	require.Len(t, store.complaints, 1)
	assert.Equal(t, "odi:11111111", store.complaints[0].PK)
	require.NotNil(t, store.complaints[0].ModelYear)
	assert.Equal(t, "2023", *store.complaints[0].ModelYear)
}

func TestRun_RecallsOnly(t *testing.T) {
	src := &fakeSource{
		recalls:      []map[string]any{{"nhtsa_id": "24V002"}},
		complaintErr: eris.New("should not be called"),
	}
	store := &fakeStore{}

	report, err := New(src, store).Run(context.Background(), Options{
		Window:      extract.Window{Make: "TESLA"},
		RecallsOnly: true,
	})
	require.NoError(t, err)
	assert.True(t, report.ComplaintsSkipped)
	assert.Zero(t, report.ComplaintsExtracted)
	assert.Empty(t, store.complaints)
}

func TestRun_ExtractFailureAbortsBeforeLoad(t *testing.T) {
	src := &fakeSource{recallErr: eris.New("socrata down")}
	store := &fakeStore{}

	_, err := New(src, store).Run(context.Background(), Options{Window: extract.Window{Make: "TESLA"}})
	require.Error(t, err)
	assert.Empty(t, store.recalls)
	assert.Empty(t, store.complaints)
}

func TestMapRecall_PayloadRoundTrip(t *testing.T) {
	r := map[string]any{"nhtsa_id": "24V003", "subject": "Seat belt pretensioner"}
	row, err := MapRecall(r, time.Now().UTC())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(row.Payload, &decoded))
	assert.Equal(t, "Seat belt pretensioner", decoded["subject"])
}

func TestMapComplaint_AbsentFields(t *testing.T) {
	row, err := MapComplaint(map[string]any{"odi_number": "44444444"}, time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, row.Make)
	assert.Nil(t, row.ModelYear)
	assert.Nil(t, row.IncidentDate)
	assert.Nil(t, row.ReceivedDate)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want *time.Time
	}{
		{"2024-01-02T00:00:00.000", timePtr(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))},
		{"2024-01-02", timePtr(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))},
		{"", nil},
		{"not a date", nil},
		{"2024-13-99", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseDate(tt.in), tt.in)
	}
}

func timePtr(t time.Time) *time.Time { return &t }
