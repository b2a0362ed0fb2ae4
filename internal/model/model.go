// Package model defines the record types flowing through the RecallWatch
// pipeline: raw ingested records, staged records, star-schema dimensions,
// facts, and the daily rollup.
package model

import "time"

// Record kinds.
const (
	KindRecall    = "recall"
	KindComplaint = "complaint"
)

// RawRecall is an immutable recall record as written by the ingest layer.
// Optional fields are nil when the source omitted them. Payload retains the
// original API record verbatim for audit and replay.
type RawRecall struct {
	PK              string     `json:"recall_pk"`
	Source          string     `json:"source"`
	SourceID        *string    `json:"source_id,omitempty"`
	Make            *string    `json:"make,omitempty"`
	Model           *string    `json:"model,omitempty"`
	ModelYear       *string    `json:"model_year,omitempty"`
	Component       *string    `json:"component,omitempty"`
	ReportDate      *time.Time `json:"report_date,omitempty"`
	SourceUpdatedAt *time.Time `json:"source_updated_at,omitempty"`
	IngestedAt      time.Time  `json:"ingested_at"`
	Payload         []byte     `json:"raw_payload,omitempty"`
}

// RawComplaint is an immutable consumer complaint record as written by the
// ingest layer.
type RawComplaint struct {
	PK              string     `json:"complaint_pk"`
	Source          string     `json:"source"`
	SourceID        *string    `json:"source_id,omitempty"`
	ODINumber       *string    `json:"odi_number,omitempty"`
	Make            *string    `json:"make,omitempty"`
	Model           *string    `json:"model,omitempty"`
	ModelYear       *string    `json:"model_year,omitempty"`
	Component       *string    `json:"component,omitempty"`
	IncidentDate    *time.Time `json:"incident_date,omitempty"`
	ReceivedDate    *time.Time `json:"received_date,omitempty"`
	State           *string    `json:"state,omitempty"`
	SourceUpdatedAt *time.Time `json:"source_updated_at,omitempty"`
	IngestedAt      time.Time  `json:"ingested_at"`
	Payload         []byte     `json:"raw_payload,omitempty"`
}

// StagedRecall is a normalized, deduplicated recall record. Recomputed on
// every run; never persisted as source of truth.
type StagedRecall struct {
	PK            string
	Source        string
	SourceID      *string
	Make          *string
	Model         *string
	ModelYear     *int
	ComponentRaw  *string
	ComponentNorm *string
	ReportDate    *time.Time
	IngestedAt    time.Time
}

// StagedComplaint is a normalized, deduplicated complaint record.
type StagedComplaint struct {
	PK            string
	Source        string
	SourceID      *string
	ODINumber     *string
	Make          *string
	Model         *string
	ModelYear     *int
	ComponentRaw  *string
	ComponentNorm *string
	IncidentDate  *time.Time
	ReceivedDate  *time.Time
	State         *string
	IngestedAt    time.Time
}

// VehicleDim is a row of the vehicle dimension. Key is a content hash of
// (make, model, model_year); Make is always present by construction.
type VehicleDim struct {
	Key       string  `json:"vehicle_key"`
	Make      string  `json:"make"`
	Model     *string `json:"model,omitempty"`
	ModelYear *int    `json:"model_year,omitempty"`
}

// ComponentDim is a row of the component dimension, keyed by a content hash
// of the normalized component name.
type ComponentDim struct {
	Key  string `json:"component_key"`
	Name string `json:"name"`
}

// RecallFact links a staged recall to dimension keys and its report date.
type RecallFact struct {
	RecallPK     string
	VehicleKey   string
	ComponentKey string
	Date         time.Time
}

// ComplaintFact links a staged complaint to dimension keys and its received
// date, with kind-specific passthrough fields.
type ComplaintFact struct {
	ComplaintPK  string
	VehicleKey   string
	ComponentKey string
	Date         time.Time
	State        *string
	ODINumber    *string
}

// RollupRow is one row of the daily rollup at (date, vehicle, component)
// grain, with trailing-window metrics and denormalized display fields.
type RollupRow struct {
	Date               time.Time `json:"date"`
	VehicleKey         string    `json:"vehicle_key"`
	ComponentKey       string    `json:"component_key"`
	RecallCount        int64     `json:"recall_count"`
	ComplaintCount     int64     `json:"complaint_count"`
	Complaints7d       int64     `json:"complaints_7d"`
	Complaints30d      int64     `json:"complaints_30d"`
	Complaints7dGrowth *int64    `json:"complaints_7d_growth,omitempty"`
	Make               *string   `json:"make,omitempty"`
	Model              *string   `json:"model,omitempty"`
	ModelYear          *int      `json:"model_year,omitempty"`
	ComponentName      *string   `json:"component_name,omitempty"`
}

// Mart bundles the transform outputs published atomically at the end of a
// successful run.
type Mart struct {
	Vehicles       []VehicleDim
	Components     []ComponentDim
	RecallFacts    []RecallFact
	ComplaintFacts []ComplaintFact
	Rollup         []RollupRow
}

// Run statuses recorded in the run log.
const (
	RunStatusRunning  = "running"
	RunStatusComplete = "complete"
	RunStatusFailed   = "failed"
)

// RunEntry is a row of the pipeline run log.
type RunEntry struct {
	ID          string         `json:"id"`
	Trigger     string         `json:"trigger"`
	Status      string         `json:"status"`
	Stage       string         `json:"stage,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	RollupRows  int64          `json:"rollup_rows"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// RunResult holds the outcome of a completed transform run.
type RunResult struct {
	RollupRows int64          `json:"rollup_rows"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// String returns a pointer to s, or nil when s is empty. Shared by the
// ingest mappers and test fixtures.
func String(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Int returns a pointer to v.
func Int(v int) *int { return &v }
