// Package store persists the raw layer, the published mart, and the
// pipeline run log. Two implementations exist: Postgres for real
// deployments and SQLite for local runs and tests.
package store

import (
	"context"

	"github.com/aaryabookseller16/Recall-Watch/internal/model"
)

// RunFilter specifies criteria for listing pipeline runs.
type RunFilter struct {
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// RollupFilter narrows rollup queries. Make and Component match
// case-insensitively; Date bounds are inclusive ISO dates.
type RollupFilter struct {
	Make      string `json:"make,omitempty"`
	Component string `json:"component,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// Store defines the persistence interface for the pipeline.
type Store interface {
	// Raw layer
	UpsertRawRecalls(ctx context.Context, rows []model.RawRecall) (int64, error)
	UpsertRawComplaints(ctx context.Context, rows []model.RawComplaint) (int64, error)
	ScanRawRecalls(ctx context.Context) ([]model.RawRecall, error)
	ScanRawComplaints(ctx context.Context) ([]model.RawComplaint, error)

	// Mart
	PublishMart(ctx context.Context, mart *model.Mart) error
	QueryRollup(ctx context.Context, filter RollupFilter) ([]model.RollupRow, error)

	// Run log
	StartRun(ctx context.Context, trigger string) (*model.RunEntry, error)
	CompleteRun(ctx context.Context, runID string, result *model.RunResult) error
	FailRun(ctx context.Context, runID string, stage string, runErr error) error
	ListRuns(ctx context.Context, filter RunFilter) ([]model.RunEntry, error)

	// Run lock; at most one transform at a time. Returns false when
	// another run holds the lock.
	AcquireRunLock(ctx context.Context) (bool, error)
	ReleaseRunLock(ctx context.Context) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
