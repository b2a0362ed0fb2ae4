package store

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aaryabookseller16/Recall-Watch/internal/db"
	"github.com/aaryabookseller16/Recall-Watch/internal/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Advisory lock keys. Migrations and transform runs must not overlap
// with themselves across processes.
const (
	migrationLockID = 7301001
	runLockID       = 7301002
)

var rawRecallCols = []string{
	"recall_pk", "source", "source_id", "make", "model", "model_year",
	"component", "report_date", "source_updated_at", "ingested_at", "raw_payload",
}

var rawComplaintCols = []string{
	"complaint_pk", "source", "source_id", "odi_number", "make", "model",
	"model_year", "component", "incident_date", "received_date", "state",
	"source_updated_at", "ingested_at", "raw_payload",
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()

	// runLockTx pins the advisory run lock to one session for its whole
	// lifetime; see AcquireRunLock.
	lockMu    sync.Mutex
	runLockTx pgx.Tx
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Migrate applies all pending SQL migrations in lexicographic order under
// an advisory lock, recording each in raw.schema_migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "store.migrate"))

	if _, err := s.pool.Exec(ctx, fmt.Sprintf("SELECT pg_advisory_lock(%d)", migrationLockID)); err != nil {
		return eris.Wrap(err, "postgres: acquire migration advisory lock")
	}
	defer func() {
		if _, err := s.pool.Exec(ctx, fmt.Sprintf("SELECT pg_advisory_unlock(%d)", migrationLockID)); err != nil {
			log.Warn("failed to release migration advisory lock", zap.Error(err))
		}
	}()

	if err := s.ensureMigrationTable(ctx); err != nil {
		return err
	}

	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return eris.Wrap(err, "postgres: read migration dir")
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if applied[name] {
			continue
		}

		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return eris.Wrapf(err, "postgres: read migration %s", name)
		}

		log.Info("applying migration", zap.String("file", name))

		if _, err := s.pool.Exec(ctx, string(data)); err != nil {
			return eris.Wrapf(err, "postgres: apply migration %s", name)
		}
		if _, err := s.pool.Exec(ctx,
			"INSERT INTO raw.schema_migrations (filename, applied_at) VALUES ($1, now())",
			name,
		); err != nil {
			return eris.Wrapf(err, "postgres: record migration %s", name)
		}

		log.Info("migration applied", zap.String("file", name))
	}

	return nil
}

func (s *PostgresStore) ensureMigrationTable(ctx context.Context) error {
	sql := `
		CREATE SCHEMA IF NOT EXISTS raw;
		CREATE TABLE IF NOT EXISTS raw.schema_migrations (
			id         SERIAL PRIMARY KEY,
			filename   TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`
	if _, err := s.pool.Exec(ctx, sql); err != nil {
		return eris.Wrap(err, "postgres: ensure migration table")
	}
	return nil
}

func (s *PostgresStore) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, "SELECT filename FROM raw.schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan migration row")
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// Raw layer

func (s *PostgresStore) UpsertRawRecalls(ctx context.Context, rows []model.RawRecall) (int64, error) {
	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = []any{
			r.PK, r.Source, r.SourceID, r.Make, r.Model, r.ModelYear,
			r.Component, r.ReportDate, r.SourceUpdatedAt, r.IngestedAt, r.Payload,
		}
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertSpec{
		Table:        "raw.recalls",
		Columns:      rawRecallCols,
		ConflictKeys: []string{"recall_pk"},
	}, values)
}

func (s *PostgresStore) UpsertRawComplaints(ctx context.Context, rows []model.RawComplaint) (int64, error) {
	values := make([][]any, len(rows))
	for i, c := range rows {
		values[i] = []any{
			c.PK, c.Source, c.SourceID, c.ODINumber, c.Make, c.Model,
			c.ModelYear, c.Component, c.IncidentDate, c.ReceivedDate, c.State,
			c.SourceUpdatedAt, c.IngestedAt, c.Payload,
		}
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertSpec{
		Table:        "raw.complaints",
		Columns:      rawComplaintCols,
		ConflictKeys: []string{"complaint_pk"},
	}, values)
}

func (s *PostgresStore) ScanRawRecalls(ctx context.Context) ([]model.RawRecall, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT recall_pk, source, source_id, make, model, model_year,
		       component, report_date, source_updated_at, ingested_at, raw_payload
		FROM raw.recalls ORDER BY recall_pk`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan raw recalls")
	}
	defer rows.Close()

	var out []model.RawRecall
	for rows.Next() {
		var r model.RawRecall
		if err := rows.Scan(&r.PK, &r.Source, &r.SourceID, &r.Make, &r.Model,
			&r.ModelYear, &r.Component, &r.ReportDate, &r.SourceUpdatedAt,
			&r.IngestedAt, &r.Payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan raw recall row")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: scan raw recalls iterate")
}

func (s *PostgresStore) ScanRawComplaints(ctx context.Context) ([]model.RawComplaint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT complaint_pk, source, source_id, odi_number, make, model, model_year,
		       component, incident_date, received_date, state, source_updated_at,
		       ingested_at, raw_payload
		FROM raw.complaints ORDER BY complaint_pk`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan raw complaints")
	}
	defer rows.Close()

	var out []model.RawComplaint
	for rows.Next() {
		var c model.RawComplaint
		if err := rows.Scan(&c.PK, &c.Source, &c.SourceID, &c.ODINumber, &c.Make,
			&c.Model, &c.ModelYear, &c.Component, &c.IncidentDate, &c.ReceivedDate,
			&c.State, &c.SourceUpdatedAt, &c.IngestedAt, &c.Payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan raw complaint row")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: scan raw complaints iterate")
}

// Mart

// PublishMart replaces the mart wholesale in one transaction. Readers see
// either the previous mart or the new one, never a mix.
func (s *PostgresStore) PublishMart(ctx context.Context, mart *model.Mart) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: publish mart: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, table := range []string{
		"mart.rollup_daily", "mart.fact_complaints", "mart.fact_recalls",
		"mart.dim_component", "mart.dim_vehicle",
	} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
			return eris.Wrapf(err, "postgres: publish mart: truncate %s", table)
		}
	}

	vehicleRows := make([][]any, len(mart.Vehicles))
	for i, v := range mart.Vehicles {
		vehicleRows[i] = []any{v.Key, v.Make, v.Model, v.ModelYear}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"mart", "dim_vehicle"},
		[]string{"vehicle_key", "make", "model", "model_year"},
		pgx.CopyFromRows(vehicleRows)); err != nil {
		return eris.Wrap(err, "postgres: publish mart: copy dim_vehicle")
	}

	componentRows := make([][]any, len(mart.Components))
	for i, c := range mart.Components {
		componentRows[i] = []any{c.Key, c.Name}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"mart", "dim_component"},
		[]string{"component_key", "name"},
		pgx.CopyFromRows(componentRows)); err != nil {
		return eris.Wrap(err, "postgres: publish mart: copy dim_component")
	}

	recallRows := make([][]any, len(mart.RecallFacts))
	for i, f := range mart.RecallFacts {
		recallRows[i] = []any{f.RecallPK, f.VehicleKey, f.ComponentKey, f.Date}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"mart", "fact_recalls"},
		[]string{"recall_pk", "vehicle_key", "component_key", "report_date"},
		pgx.CopyFromRows(recallRows)); err != nil {
		return eris.Wrap(err, "postgres: publish mart: copy fact_recalls")
	}

	complaintRows := make([][]any, len(mart.ComplaintFacts))
	for i, f := range mart.ComplaintFacts {
		complaintRows[i] = []any{f.ComplaintPK, f.VehicleKey, f.ComponentKey, f.Date, f.State, f.ODINumber}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"mart", "fact_complaints"},
		[]string{"complaint_pk", "vehicle_key", "component_key", "received_date", "state", "odi_number"},
		pgx.CopyFromRows(complaintRows)); err != nil {
		return eris.Wrap(err, "postgres: publish mart: copy fact_complaints")
	}

	rollupRows := make([][]any, len(mart.Rollup))
	for i, r := range mart.Rollup {
		rollupRows[i] = []any{
			r.Date, r.VehicleKey, r.ComponentKey, r.RecallCount, r.ComplaintCount,
			r.Complaints7d, r.Complaints30d, r.Complaints7dGrowth,
			r.Make, r.Model, r.ModelYear, r.ComponentName,
		}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"mart", "rollup_daily"},
		[]string{"date", "vehicle_key", "component_key", "recall_count", "complaint_count",
			"complaints_7d", "complaints_30d", "complaints_7d_growth",
			"make", "model", "model_year", "component_name"},
		pgx.CopyFromRows(rollupRows)); err != nil {
		return eris.Wrap(err, "postgres: publish mart: copy rollup_daily")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: publish mart: commit")
}

func (s *PostgresStore) QueryRollup(ctx context.Context, filter RollupFilter) ([]model.RollupRow, error) {
	query := `SELECT date, vehicle_key, component_key, recall_count, complaint_count,
	                 complaints_7d, complaints_30d, complaints_7d_growth,
	                 make, model, model_year, component_name
	          FROM mart.rollup_daily WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Make != "" {
		query += fmt.Sprintf(` AND upper(make) = upper($%d)`, argIdx)
		args = append(args, filter.Make)
		argIdx++
	}
	if filter.Component != "" {
		query += fmt.Sprintf(` AND component_name = lower($%d)`, argIdx)
		args = append(args, filter.Component)
		argIdx++
	}
	if filter.From != "" {
		query += fmt.Sprintf(` AND date >= $%d`, argIdx)
		args = append(args, filter.From)
		argIdx++
	}
	if filter.To != "" {
		query += fmt.Sprintf(` AND date <= $%d`, argIdx)
		args = append(args, filter.To)
		argIdx++
	}
	query += ` ORDER BY vehicle_key, component_key, date`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query rollup")
	}
	defer rows.Close()

	var out []model.RollupRow
	for rows.Next() {
		var r model.RollupRow
		if err := rows.Scan(&r.Date, &r.VehicleKey, &r.ComponentKey,
			&r.RecallCount, &r.ComplaintCount, &r.Complaints7d, &r.Complaints30d,
			&r.Complaints7dGrowth, &r.Make, &r.Model, &r.ModelYear, &r.ComponentName); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rollup row")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: query rollup iterate")
}

// Run log

func (s *PostgresStore) StartRun(ctx context.Context, trigger string) (*model.RunEntry, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO raw.pipeline_runs (id, "trigger", status, started_at) VALUES ($1, $2, $3, $4)`,
		id, trigger, model.RunStatusRunning, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: start run")
	}

	return &model.RunEntry{
		ID:        id,
		Trigger:   trigger,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, result *model.RunResult) error {
	metaJSON, err := json.Marshal(result.Metadata)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run metadata")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE raw.pipeline_runs
		 SET status = $1, completed_at = $2, rollup_rows = $3, metadata = $4
		 WHERE id = $5`,
		model.RunStatusComplete, time.Now().UTC(), result.RollupRows, metaJSON, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, stage string, runErr error) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE raw.pipeline_runs
		 SET status = $1, stage = $2, error = $3, completed_at = $4
		 WHERE id = $5`,
		model.RunStatusFailed, stage, runErr.Error(), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.RunEntry, error) {
	query := `SELECT id, "trigger", status, stage, started_at, completed_at, rollup_rows, error, metadata
	          FROM raw.pipeline_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, filter.Status)
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.RunEntry
	for rows.Next() {
		var r model.RunEntry
		var stage, errMsg *string
		var metaJSON []byte
		if err := rows.Scan(&r.ID, &r.Trigger, &r.Status, &stage, &r.StartedAt,
			&r.CompletedAt, &r.RollupRows, &errMsg, &metaJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if stage != nil {
			r.Stage = *stage
		}
		if errMsg != nil {
			r.Error = *errMsg
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &r.Metadata); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal run metadata")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// Run lock

// AcquireRunLock takes the transform lock inside a transaction that stays
// open until ReleaseRunLock. Advisory locks are session-scoped: issued
// through the pool, acquire and release would land on different
// connections and the unlock would silently no-op, leaving the lock stuck
// on an idle session. Holding a transaction pins one connection for the
// lock's lifetime, and the xact-scoped lock frees itself if the process
// dies mid-run.
func (s *PostgresStore) AcquireRunLock(ctx context.Context) (bool, error) {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	if s.runLockTx != nil {
		return false, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, eris.Wrap(err, "postgres: acquire run lock: begin")
	}

	var acquired bool
	if err := tx.QueryRow(ctx, fmt.Sprintf("SELECT pg_try_advisory_xact_lock(%d)", runLockID)).Scan(&acquired); err != nil {
		_ = tx.Rollback(ctx)
		return false, eris.Wrap(err, "postgres: acquire run lock")
	}
	if !acquired {
		_ = tx.Rollback(ctx)
		return false, nil
	}

	s.runLockTx = tx
	return true, nil
}

func (s *PostgresStore) ReleaseRunLock(ctx context.Context) error {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	if s.runLockTx == nil {
		return nil
	}
	err := s.runLockTx.Rollback(ctx)
	s.runLockTx = nil
	if err != nil && !eris.Is(err, pgx.ErrTxClosed) {
		return eris.Wrap(err, "postgres: release run lock")
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
