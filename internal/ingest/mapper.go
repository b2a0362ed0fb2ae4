package ingest

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/aaryabookseller16/Recall-Watch/internal/model"
)

// SourceSocrata labels raw rows extracted from the DOT Socrata datasets.
const SourceSocrata = "socrata"

// parseDate handles the date shapes the upstream APIs emit. Socrata
// floating timestamps look like "2024-01-02T00:00:00.000"; plain ISO dates
// also appear. Unparseable values map to absent rather than failing the
// whole batch, since the raw layer stores the full payload anyway.
func parseDate(s string) *time.Time {
	if len(s) < 10 {
		return nil
	}
	t, err := time.Parse("2006-01-02", s[:10])
	if err != nil {
		return nil
	}
	return &t
}

// MapRecall maps one extracted recall record to a raw-layer row.
func MapRecall(r map[string]any, now time.Time) (model.RawRecall, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return model.RawRecall{}, eris.Wrap(err, "ingest: marshal recall payload")
	}

	return model.RawRecall{
		PK:         RecallPK(r),
		Source:     SourceSocrata,
		SourceID:   model.String(field(r, "nhtsa_id", "NHTSA_ID")),
		Make:       model.String(field(r, "manufacturer", "make")),
		Component:  model.String(field(r, "component")),
		ReportDate: parseDate(field(r, "report_received_date", "report_date")),
		IngestedAt: now,
		Payload:    payload,
	}, nil
}

// MapComplaint maps one extracted complaint record to a raw-layer row.
// Model year is kept as raw text; typed casting belongs to staging.
func MapComplaint(r map[string]any, now time.Time) (model.RawComplaint, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return model.RawComplaint{}, eris.Wrap(err, "ingest: marshal complaint payload")
	}

	odi := model.String(field(r, "ODINumber", "odi_number", "odiNumber", "complaint_number"))

	return model.RawComplaint{
		PK:           ComplaintPK(r),
		Source:       SourceSocrata,
		SourceID:     odi,
		ODINumber:    odi,
		Make:         model.String(field(r, "Make", "make")),
		Model:        model.String(field(r, "Model", "model")),
		ModelYear:    model.String(field(r, "ModelYear", "model_year", "Year")),
		Component:    model.String(field(r, "Component", "component")),
		IncidentDate: parseDate(field(r, "IncidentDate", "incident_date")),
		ReceivedDate: parseDate(field(r, "DateReceived", "date_received")),
		State:        model.String(field(r, "State", "state")),
		IngestedAt:   now,
		Payload:      payload,
	}, nil
}
