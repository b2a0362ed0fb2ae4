// Package pipeline orchestrates the transform half of RecallWatch: scan
// the raw layer, stage, build dimensions and facts, roll up, check for
// anomalies, and publish the mart atomically.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aaryabookseller16/Recall-Watch/internal/mart"
	"github.com/aaryabookseller16/Recall-Watch/internal/model"
	"github.com/aaryabookseller16/Recall-Watch/internal/staging"
	"github.com/aaryabookseller16/Recall-Watch/internal/store"
)

// Stage names recorded on failed runs.
const (
	StageScan      = "scan"
	StageStaging   = "staging"
	StageTransform = "transform"
	StagePublish   = "publish"
)

// Options controls one transform run.
type Options struct {
	Trigger       string
	AnomalyFactor int64
}

// Result summarizes a completed transform run.
type Result struct {
	RunID            string
	RawRecalls       int
	RawComplaints    int
	StagedRecalls    int
	StagedComplaints int
	Vehicles         int
	Components       int
	RecallFacts      int
	ComplaintFacts   int
	RollupRows       int
	Anomalies        []mart.Anomaly
	Elapsed          time.Duration
}

// Pipeline runs the raw-to-mart transform against a Store.
type Pipeline struct {
	store store.Store
	log   *zap.Logger
}

// New creates a Pipeline.
func New(st store.Store) *Pipeline {
	return &Pipeline{
		store: st,
		log:   zap.L().With(zap.String("component", "pipeline")),
	}
}

// Run executes one full transform under the store's run lock. Any stage
// failure aborts the run and records the failing stage; the previously
// published mart stays untouched.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Trigger == "" {
		opts.Trigger = "cli"
	}
	if opts.AnomalyFactor <= 0 {
		opts.AnomalyFactor = mart.DefaultAnomalyFactor
	}

	ok, err := p.store.AcquireRunLock(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: acquire run lock")
	}
	if !ok {
		return nil, eris.New("pipeline: another run is in progress")
	}
	defer func() {
		if err := p.store.ReleaseRunLock(ctx); err != nil {
			p.log.Warn("failed to release run lock", zap.Error(err))
		}
	}()

	run, err := p.store.StartRun(ctx, opts.Trigger)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: start run")
	}

	start := time.Now()
	p.log.Info("transform starting", zap.String("run_id", run.ID), zap.String("trigger", opts.Trigger))

	result, err := p.transform(ctx, opts)
	if err != nil {
		stage := stageOf(err)
		p.log.Error("transform failed",
			zap.String("run_id", run.ID),
			zap.String("stage", stage),
			zap.Error(err),
		)
		if failErr := p.store.FailRun(ctx, run.ID, stage, err); failErr != nil {
			p.log.Warn("failed to record run failure", zap.Error(failErr))
		}
		return nil, err
	}

	result.RunID = run.ID
	result.Elapsed = time.Since(start)

	if err := p.store.CompleteRun(ctx, run.ID, &model.RunResult{
		RollupRows: int64(result.RollupRows),
		Metadata: map[string]any{
			"raw_recalls":     result.RawRecalls,
			"raw_complaints":  result.RawComplaints,
			"vehicles":        result.Vehicles,
			"components":      result.Components,
			"recall_facts":    result.RecallFacts,
			"complaint_facts": result.ComplaintFacts,
			"anomalies":       len(result.Anomalies),
			"elapsed_ms":      result.Elapsed.Milliseconds(),
		},
	}); err != nil {
		return nil, eris.Wrap(err, "pipeline: complete run")
	}

	p.log.Info("transform complete",
		zap.String("run_id", run.ID),
		zap.Int("rollup_rows", result.RollupRows),
		zap.Int("anomalies", len(result.Anomalies)),
		zap.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

// stageError tags an error with the pipeline stage it occurred in.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func atStage(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &stageError{stage: stage, err: err}
}

func stageOf(err error) string {
	var se *stageError
	if eris.As(err, &se) {
		return se.stage
	}
	return StageTransform
}

func (p *Pipeline) transform(ctx context.Context, opts Options) (*Result, error) {
	rawRecalls, err := p.store.ScanRawRecalls(ctx)
	if err != nil {
		return nil, atStage(StageScan, err)
	}
	rawComplaints, err := p.store.ScanRawComplaints(ctx)
	if err != nil {
		return nil, atStage(StageScan, err)
	}
	p.log.Info("raw scan complete",
		zap.Int("recalls", len(rawRecalls)),
		zap.Int("complaints", len(rawComplaints)),
	)

	stagedRecalls, err := staging.StageRecalls(rawRecalls)
	if err != nil {
		return nil, atStage(StageStaging, err)
	}
	stagedComplaints, err := staging.StageComplaints(rawComplaints)
	if err != nil {
		return nil, atStage(StageStaging, err)
	}
	p.log.Info("staging complete",
		zap.Int("recalls", len(stagedRecalls)),
		zap.Int("complaints", len(stagedComplaints)),
	)

	vehicles := mart.BuildVehicleDim(stagedRecalls, stagedComplaints)
	components := mart.BuildComponentDim(stagedRecalls, stagedComplaints)

	recallFacts, err := mart.BuildRecallFacts(stagedRecalls, vehicles, components)
	if err != nil {
		return nil, atStage(StageTransform, err)
	}
	complaintFacts, err := mart.BuildComplaintFacts(stagedComplaints, vehicles, components)
	if err != nil {
		return nil, atStage(StageTransform, err)
	}

	rollup := mart.BuildRollup(recallFacts, complaintFacts, vehicles, components)
	anomalies := mart.Anomalies(rollup, opts.AnomalyFactor)

	for _, a := range anomalies {
		p.log.Warn("complaint spike",
			zap.String("vehicle_key", a.VehicleKey),
			zap.String("component_key", a.ComponentKey),
			zap.Time("date", a.Date),
			zap.Int64("count", a.Count),
			zap.Int64("prev_count", a.PrevCount),
		)
	}

	if err := p.store.PublishMart(ctx, &model.Mart{
		Vehicles:       vehicles,
		Components:     components,
		RecallFacts:    recallFacts,
		ComplaintFacts: complaintFacts,
		Rollup:         rollup,
	}); err != nil {
		return nil, atStage(StagePublish, err)
	}

	return &Result{
		RawRecalls:       len(rawRecalls),
		RawComplaints:    len(rawComplaints),
		StagedRecalls:    len(stagedRecalls),
		StagedComplaints: len(stagedComplaints),
		Vehicles:         len(vehicles),
		Components:       len(components),
		RecallFacts:      len(recallFacts),
		ComplaintFacts:   len(complaintFacts),
		RollupRows:       len(rollup),
		Anomalies:        anomalies,
	}, nil
}
