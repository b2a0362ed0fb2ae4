package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/aaryabookseller16/Recall-Watch/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Schema names are
// flattened into table-name prefixes since SQLite has no schemas.
type SQLiteStore struct {
	db *sql.DB

	// SQLite deployments are single-process; the run lock is in-memory.
	lockMu   sync.Mutex
	lockHeld bool
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sdb.Exec(pragma); err != nil {
			sdb.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sdb}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS raw_recalls (
	recall_pk         TEXT PRIMARY KEY,
	source            TEXT NOT NULL,
	source_id         TEXT,
	make              TEXT,
	model             TEXT,
	model_year        TEXT,
	component         TEXT,
	report_date       DATETIME,
	source_updated_at DATETIME,
	ingested_at       DATETIME NOT NULL,
	raw_payload       BLOB
);

CREATE TABLE IF NOT EXISTS raw_complaints (
	complaint_pk      TEXT PRIMARY KEY,
	source            TEXT NOT NULL,
	source_id         TEXT,
	odi_number        TEXT,
	make              TEXT,
	model             TEXT,
	model_year        TEXT,
	component         TEXT,
	incident_date     DATETIME,
	received_date     DATETIME,
	state             TEXT,
	source_updated_at DATETIME,
	ingested_at       DATETIME NOT NULL,
	raw_payload       BLOB
);

CREATE TABLE IF NOT EXISTS mart_dim_vehicle (
	vehicle_key TEXT PRIMARY KEY,
	make        TEXT NOT NULL,
	model       TEXT,
	model_year  INTEGER
);

CREATE TABLE IF NOT EXISTS mart_dim_component (
	component_key TEXT PRIMARY KEY,
	name          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS mart_fact_recalls (
	recall_pk     TEXT PRIMARY KEY,
	vehicle_key   TEXT NOT NULL,
	component_key TEXT NOT NULL,
	report_date   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS mart_fact_complaints (
	complaint_pk  TEXT PRIMARY KEY,
	vehicle_key   TEXT NOT NULL,
	component_key TEXT NOT NULL,
	received_date DATETIME NOT NULL,
	state         TEXT,
	odi_number    TEXT
);

CREATE TABLE IF NOT EXISTS mart_rollup_daily (
	date                 DATETIME NOT NULL,
	vehicle_key          TEXT NOT NULL,
	component_key        TEXT NOT NULL,
	recall_count         INTEGER NOT NULL DEFAULT 0,
	complaint_count      INTEGER NOT NULL DEFAULT 0,
	complaints_7d        INTEGER NOT NULL DEFAULT 0,
	complaints_30d       INTEGER NOT NULL DEFAULT 0,
	complaints_7d_growth INTEGER,
	make                 TEXT,
	model                TEXT,
	model_year           INTEGER,
	component_name       TEXT,
	PRIMARY KEY (date, vehicle_key, component_key)
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id           TEXT PRIMARY KEY,
	trigger      TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	stage        TEXT,
	started_at   DATETIME NOT NULL,
	completed_at DATETIME,
	rollup_rows  INTEGER NOT NULL DEFAULT 0,
	error        TEXT,
	metadata     TEXT
);

CREATE INDEX IF NOT EXISTS idx_raw_recalls_make ON raw_recalls(make);
CREATE INDEX IF NOT EXISTS idx_raw_complaints_make ON raw_complaints(make);
CREATE INDEX IF NOT EXISTS idx_rollup_daily_make ON mart_rollup_daily(make);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started_at ON pipeline_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Raw layer

func (s *SQLiteStore) UpsertRawRecalls(ctx context.Context, rows []model.RawRecall) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert recalls: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO raw_recalls
			(recall_pk, source, source_id, make, model, model_year, component,
			 report_date, source_updated_at, ingested_at, raw_payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(recall_pk) DO UPDATE SET
			source = excluded.source, source_id = excluded.source_id,
			make = excluded.make, model = excluded.model,
			model_year = excluded.model_year, component = excluded.component,
			report_date = excluded.report_date,
			source_updated_at = excluded.source_updated_at,
			ingested_at = excluded.ingested_at, raw_payload = excluded.raw_payload`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert recalls: prepare")
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.PK, r.Source, r.SourceID, r.Make, r.Model, r.ModelYear, r.Component,
			r.ReportDate, r.SourceUpdatedAt, r.IngestedAt, r.Payload,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert recall %s", r.PK)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert recalls: commit")
	}
	return int64(len(rows)), nil
}

func (s *SQLiteStore) UpsertRawComplaints(ctx context.Context, rows []model.RawComplaint) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert complaints: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO raw_complaints
			(complaint_pk, source, source_id, odi_number, make, model, model_year,
			 component, incident_date, received_date, state, source_updated_at,
			 ingested_at, raw_payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(complaint_pk) DO UPDATE SET
			source = excluded.source, source_id = excluded.source_id,
			odi_number = excluded.odi_number, make = excluded.make,
			model = excluded.model, model_year = excluded.model_year,
			component = excluded.component, incident_date = excluded.incident_date,
			received_date = excluded.received_date, state = excluded.state,
			source_updated_at = excluded.source_updated_at,
			ingested_at = excluded.ingested_at, raw_payload = excluded.raw_payload`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert complaints: prepare")
	}
	defer stmt.Close()

	for _, c := range rows {
		if _, err := stmt.ExecContext(ctx,
			c.PK, c.Source, c.SourceID, c.ODINumber, c.Make, c.Model, c.ModelYear,
			c.Component, c.IncidentDate, c.ReceivedDate, c.State, c.SourceUpdatedAt,
			c.IngestedAt, c.Payload,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert complaint %s", c.PK)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert complaints: commit")
	}
	return int64(len(rows)), nil
}

func (s *SQLiteStore) ScanRawRecalls(ctx context.Context) ([]model.RawRecall, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT recall_pk, source, source_id, make, model, model_year, component,
		       report_date, source_updated_at, ingested_at, raw_payload
		FROM raw_recalls ORDER BY recall_pk`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan raw recalls")
	}
	defer rows.Close()

	var out []model.RawRecall
	for rows.Next() {
		var r model.RawRecall
		var sourceID, mk, mdl, year, comp sql.NullString
		var reportDate, updatedAt sql.NullTime
		if err := rows.Scan(&r.PK, &r.Source, &sourceID, &mk, &mdl, &year, &comp,
			&reportDate, &updatedAt, &r.IngestedAt, &r.Payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan raw recall row")
		}
		r.SourceID = strPtr(sourceID)
		r.Make = strPtr(mk)
		r.Model = strPtr(mdl)
		r.ModelYear = strPtr(year)
		r.Component = strPtr(comp)
		r.ReportDate = timePtr(reportDate)
		r.SourceUpdatedAt = timePtr(updatedAt)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: scan raw recalls iterate")
}

func (s *SQLiteStore) ScanRawComplaints(ctx context.Context) ([]model.RawComplaint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT complaint_pk, source, source_id, odi_number, make, model, model_year,
		       component, incident_date, received_date, state, source_updated_at,
		       ingested_at, raw_payload
		FROM raw_complaints ORDER BY complaint_pk`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan raw complaints")
	}
	defer rows.Close()

	var out []model.RawComplaint
	for rows.Next() {
		var c model.RawComplaint
		var sourceID, odi, mk, mdl, year, comp, state sql.NullString
		var incident, received, updatedAt sql.NullTime
		if err := rows.Scan(&c.PK, &c.Source, &sourceID, &odi, &mk, &mdl, &year,
			&comp, &incident, &received, &state, &updatedAt,
			&c.IngestedAt, &c.Payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan raw complaint row")
		}
		c.SourceID = strPtr(sourceID)
		c.ODINumber = strPtr(odi)
		c.Make = strPtr(mk)
		c.Model = strPtr(mdl)
		c.ModelYear = strPtr(year)
		c.Component = strPtr(comp)
		c.State = strPtr(state)
		c.IncidentDate = timePtr(incident)
		c.ReceivedDate = timePtr(received)
		c.SourceUpdatedAt = timePtr(updatedAt)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: scan raw complaints iterate")
}

// Mart

func (s *SQLiteStore) PublishMart(ctx context.Context, mart *model.Mart) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: publish mart: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{
		"mart_rollup_daily", "mart_fact_complaints", "mart_fact_recalls",
		"mart_dim_component", "mart_dim_vehicle",
	} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return eris.Wrapf(err, "sqlite: publish mart: truncate %s", table)
		}
	}

	for _, v := range mart.Vehicles {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO mart_dim_vehicle (vehicle_key, make, model, model_year) VALUES (?, ?, ?, ?)`,
			v.Key, v.Make, v.Model, v.ModelYear,
		); err != nil {
			return eris.Wrap(err, "sqlite: publish mart: insert dim_vehicle")
		}
	}
	for _, c := range mart.Components {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO mart_dim_component (component_key, name) VALUES (?, ?)`,
			c.Key, c.Name,
		); err != nil {
			return eris.Wrap(err, "sqlite: publish mart: insert dim_component")
		}
	}
	for _, f := range mart.RecallFacts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO mart_fact_recalls (recall_pk, vehicle_key, component_key, report_date) VALUES (?, ?, ?, ?)`,
			f.RecallPK, f.VehicleKey, f.ComponentKey, f.Date,
		); err != nil {
			return eris.Wrap(err, "sqlite: publish mart: insert fact_recalls")
		}
	}
	for _, f := range mart.ComplaintFacts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO mart_fact_complaints (complaint_pk, vehicle_key, component_key, received_date, state, odi_number)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			f.ComplaintPK, f.VehicleKey, f.ComponentKey, f.Date, f.State, f.ODINumber,
		); err != nil {
			return eris.Wrap(err, "sqlite: publish mart: insert fact_complaints")
		}
	}
	for _, r := range mart.Rollup {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO mart_rollup_daily
				(date, vehicle_key, component_key, recall_count, complaint_count,
				 complaints_7d, complaints_30d, complaints_7d_growth,
				 make, model, model_year, component_name)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.Date, r.VehicleKey, r.ComponentKey, r.RecallCount, r.ComplaintCount,
			r.Complaints7d, r.Complaints30d, r.Complaints7dGrowth,
			r.Make, r.Model, r.ModelYear, r.ComponentName,
		); err != nil {
			return eris.Wrap(err, "sqlite: publish mart: insert rollup_daily")
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: publish mart: commit")
}

func (s *SQLiteStore) QueryRollup(ctx context.Context, filter RollupFilter) ([]model.RollupRow, error) {
	query := `SELECT date, vehicle_key, component_key, recall_count, complaint_count,
	                 complaints_7d, complaints_30d, complaints_7d_growth,
	                 make, model, model_year, component_name
	          FROM mart_rollup_daily WHERE 1=1`
	var args []any

	if filter.Make != "" {
		query += ` AND upper(make) = upper(?)`
		args = append(args, filter.Make)
	}
	if filter.Component != "" {
		query += ` AND component_name = lower(?)`
		args = append(args, filter.Component)
	}
	if filter.From != "" {
		query += ` AND date(date) >= ?`
		args = append(args, filter.From)
	}
	if filter.To != "" {
		query += ` AND date(date) <= ?`
		args = append(args, filter.To)
	}
	query += ` ORDER BY vehicle_key, component_key, date`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query rollup")
	}
	defer rows.Close()

	var out []model.RollupRow
	for rows.Next() {
		var r model.RollupRow
		var growth sql.NullInt64
		var mk, mdl, compName sql.NullString
		var year sql.NullInt64
		if err := rows.Scan(&r.Date, &r.VehicleKey, &r.ComponentKey,
			&r.RecallCount, &r.ComplaintCount, &r.Complaints7d, &r.Complaints30d,
			&growth, &mk, &mdl, &year, &compName); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan rollup row")
		}
		if growth.Valid {
			g := growth.Int64
			r.Complaints7dGrowth = &g
		}
		r.Make = strPtr(mk)
		r.Model = strPtr(mdl)
		if year.Valid {
			y := int(year.Int64)
			r.ModelYear = &y
		}
		r.ComponentName = strPtr(compName)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: query rollup iterate")
}

// Run log

func (s *SQLiteStore) StartRun(ctx context.Context, trigger string) (*model.RunEntry, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, trigger, status, started_at) VALUES (?, ?, ?, ?)`,
		id, trigger, model.RunStatusRunning, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: start run")
	}

	return &model.RunEntry{
		ID:        id,
		Trigger:   trigger,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, result *model.RunResult) error {
	metaJSON, err := json.Marshal(result.Metadata)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run metadata")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, completed_at = ?, rollup_rows = ?, metadata = ? WHERE id = ?`,
		model.RunStatusComplete, time.Now().UTC(), result.RollupRows, string(metaJSON), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, stage string, runErr error) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, stage = ?, error = ?, completed_at = ? WHERE id = ?`,
		model.RunStatusFailed, stage, runErr.Error(), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.RunEntry, error) {
	query := `SELECT id, trigger, status, stage, started_at, completed_at, rollup_rows, error, metadata
	          FROM pipeline_runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.RunEntry
	for rows.Next() {
		var r model.RunEntry
		var stage, errMsg, metaJSON sql.NullString
		var completedAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.Trigger, &r.Status, &stage, &r.StartedAt,
			&completedAt, &r.RollupRows, &errMsg, &metaJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		if stage.Valid {
			r.Stage = stage.String
		}
		if errMsg.Valid {
			r.Error = errMsg.String
		}
		r.CompletedAt = timePtr(completedAt)
		if metaJSON.Valid && metaJSON.String != "" && metaJSON.String != "null" {
			if err := json.Unmarshal([]byte(metaJSON.String), &r.Metadata); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal run metadata")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// Run lock

func (s *SQLiteStore) AcquireRunLock(context.Context) (bool, error) {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if s.lockHeld {
		return false, nil
	}
	s.lockHeld = true
	return true, nil
}

func (s *SQLiteStore) ReleaseRunLock(context.Context) error {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	s.lockHeld = false
	return nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

var _ Store = (*SQLiteStore)(nil)
