// Package ingest runs the extract+load half of the pipeline: it pulls raw
// records from the source datasets, derives deterministic primary keys, and
// upserts them into the raw store.
package ingest

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aaryabookseller16/Recall-Watch/internal/extract"
	"github.com/aaryabookseller16/Recall-Watch/internal/model"
)

// Source is the record extractor the ingestor pulls from.
type Source interface {
	Recalls(ctx context.Context, w extract.Window) ([]map[string]any, error)
	Complaints(ctx context.Context, w extract.Window) ([]map[string]any, error)
}

// RawStore is the sink for mapped raw rows.
type RawStore interface {
	UpsertRawRecalls(ctx context.Context, rows []model.RawRecall) (int64, error)
	UpsertRawComplaints(ctx context.Context, rows []model.RawComplaint) (int64, error)
}

// Report summarizes one ingest run.
type Report struct {
	StartedAt           time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt          time.Time `json:"finished_at" yaml:"finished_at"`
	Make                string    `json:"make" yaml:"make"`
	StartDate           string    `json:"start_date" yaml:"start_date"`
	EndDate             string    `json:"end_date" yaml:"end_date"`
	RecallsExtracted    int       `json:"recalls_extracted" yaml:"recalls_extracted"`
	RecallsLoaded       int64     `json:"recalls_loaded" yaml:"recalls_loaded"`
	ComplaintsExtracted int       `json:"complaints_extracted" yaml:"complaints_extracted"`
	ComplaintsLoaded    int64     `json:"complaints_loaded" yaml:"complaints_loaded"`
	ComplaintsSkipped   bool      `json:"complaints_skipped" yaml:"complaints_skipped"`
}

// Options controls one ingest run.
type Options struct {
	Window      extract.Window
	RecallsOnly bool
}

// Ingestor wires a source to the raw store.
type Ingestor struct {
	source Source
	store  RawStore
	log    *zap.Logger
}

// New creates an Ingestor.
func New(source Source, store RawStore) *Ingestor {
	return &Ingestor{
		source: source,
		store:  store,
		log:    zap.L().With(zap.String("component", "ingest")),
	}
}

// Run extracts both kinds concurrently, then loads them. Extraction
// failures abort the run before anything is written.
func (i *Ingestor) Run(ctx context.Context, opts Options) (*Report, error) {
	report := &Report{
		StartedAt: time.Now().UTC(),
		Make:      opts.Window.Make,
		StartDate: opts.Window.Start,
		EndDate:   opts.Window.End,
	}

	i.log.Info("ingest starting",
		zap.String("make", opts.Window.Make),
		zap.String("start", opts.Window.Start),
		zap.String("end", opts.Window.End),
		zap.Bool("recalls_only", opts.RecallsOnly),
	)

	var recalls, complaints []map[string]any
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		recalls, err = i.source.Recalls(gctx, opts.Window)
		return eris.Wrap(err, "ingest: extract recalls")
	})
	if !opts.RecallsOnly {
		g.Go(func() error {
			var err error
			complaints, err = i.source.Complaints(gctx, opts.Window)
			return eris.Wrap(err, "ingest: extract complaints")
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	report.RecallsExtracted = len(recalls)
	report.ComplaintsExtracted = len(complaints)
	report.ComplaintsSkipped = opts.RecallsOnly

	now := time.Now().UTC()

	recallRows := make([]model.RawRecall, 0, len(recalls))
	for _, r := range recalls {
		row, err := MapRecall(r, now)
		if err != nil {
			return nil, err
		}
		recallRows = append(recallRows, row)
	}
	loaded, err := i.store.UpsertRawRecalls(ctx, recallRows)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: load recalls")
	}
	report.RecallsLoaded = loaded
	i.log.Info("recalls loaded", zap.Int("extracted", len(recalls)), zap.Int64("loaded", loaded))

	if !opts.RecallsOnly {
		complaintRows := make([]model.RawComplaint, 0, len(complaints))
		for _, c := range complaints {
			row, err := MapComplaint(c, now)
			if err != nil {
				return nil, err
			}
			complaintRows = append(complaintRows, row)
		}
		loaded, err := i.store.UpsertRawComplaints(ctx, complaintRows)
		if err != nil {
			return nil, eris.Wrap(err, "ingest: load complaints")
		}
		report.ComplaintsLoaded = loaded
		i.log.Info("complaints loaded", zap.Int("extracted", len(complaints)), zap.Int64("loaded", loaded))
	}

	report.FinishedAt = time.Now().UTC()
	return report, nil
}
