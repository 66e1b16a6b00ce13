// Package orchestrator runs the learners of one nightly batch.
// A failing or panicking learner is recorded as an error result and the
// remaining learners still run.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"gate-learner/internal/domain"
	"gate-learner/internal/idhash"
	"gate-learner/internal/observability"
	"gate-learner/internal/storage"
)

// Runner is one learner as seen by the batch. Implemented by learning.Learner.
type Runner interface {
	Name() string
	Window() (time.Time, time.Time)
	Run(ctx context.Context) (*domain.LearnerResult, error)
}

// Options for creating Orchestrator.
type Options struct {
	Learners []Runner

	// Optional mirrors
	Runs      storage.LearnerRunStore
	Snapshots storage.BucketSnapshotStore
	Publisher storage.Publisher
	Metrics   *observability.Metrics

	Clock func() time.Time
}

// Orchestrator runs learners sequentially and fans results out to mirrors.
type Orchestrator struct {
	learners  []Runner
	runs      storage.LearnerRunStore
	snapshots storage.BucketSnapshotStore
	publisher storage.Publisher
	metrics   *observability.Metrics
	clock     func() time.Time
	logger    zerolog.Logger
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Orchestrator{
		learners:  opts.Learners,
		runs:      opts.Runs,
		snapshots: opts.Snapshots,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		clock:     clock,
		logger:    log.With().Str("component", "orchestrator").Logger(),
	}
}

// RunResult contains results from one batch.
type RunResult struct {
	Results   []*domain.LearnerResult
	Updated   int
	NoChanges int
	NoData    int
	Failed    int
	Errors    []string // learner and mirror errors, in run order
}

// Run executes every learner once. Only context cancellation stops the batch
// early; the results gathered so far are returned with the context error.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{}

	for _, l := range o.learners {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		started := o.clock()
		r := o.runOne(ctx, l)
		elapsed := o.clock().Sub(started)

		result.Results = append(result.Results, r)
		switch r.Status {
		case domain.LearnerUpdated:
			result.Updated++
		case domain.LearnerNoChanges:
			result.NoChanges++
		case domain.LearnerNoData:
			result.NoData++
		default:
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", r.Learner, r.Error))
		}

		event := o.logger.Info()
		if r.Status == domain.LearnerError {
			event = o.logger.Error()
		}
		event.
			Str("learner", r.Learner).
			Str("status", string(r.Status)).
			Int("trades", r.Trades).
			Int("dropped", r.Dropped).
			Int("changes", r.Changes()).
			Bool("persisted", r.Persisted).
			Str("error", r.Error).
			Dur("elapsed", elapsed).
			Msg("learner finished")

		if o.metrics != nil {
			o.metrics.RecordLearnerRun(r, elapsed)
		}
		result.Errors = append(result.Errors, o.mirror(ctx, l, r, started, elapsed)...)
	}

	if o.metrics != nil {
		o.metrics.MarkRun(o.clock())
	}
	return result, nil
}

// runOne converts errors and panics into an error result.
func (o *Orchestrator) runOne(ctx context.Context, l Runner) (res *domain.LearnerResult) {
	name := l.Name()
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error().Str("learner", name).Interface("panic", p).Msg("learner panicked")
			res = &domain.LearnerResult{
				Learner: name,
				Status:  domain.LearnerError,
				Error:   fmt.Sprintf("panic: %v", p),
			}
		}
	}()

	r, err := l.Run(ctx)
	if err != nil {
		return &domain.LearnerResult{Learner: name, Status: domain.LearnerError, Error: err.Error()}
	}
	if r == nil {
		return &domain.LearnerResult{Learner: name, Status: domain.LearnerError, Error: "learner returned no result"}
	}
	return r
}

// mirror writes run history, bucket snapshots and published tables.
// Mirror failures never change the learner result.
func (o *Orchestrator) mirror(ctx context.Context, l Runner, r *domain.LearnerResult, started time.Time, elapsed time.Duration) []string {
	var errs []string
	fail := func(sink string, err error) {
		o.logger.Warn().Str("learner", r.Learner).Str("sink", sink).Err(err).Msg("mirror write failed")
		if o.metrics != nil {
			o.metrics.RecordMirrorError(sink)
		}
		errs = append(errs, fmt.Sprintf("%s: %s: %v", r.Learner, sink, err))
	}

	windowStart, windowEnd := l.Window()
	runID := idhash.ComputeRunID(r.Learner, windowStart, windowEnd, r.Trades)

	if o.runs != nil {
		run := &domain.LearnerRun{
			RunID:       runID,
			Learner:     r.Learner,
			Status:      r.Status,
			Error:       r.Error,
			WindowStart: windowStart,
			WindowEnd:   windowEnd,
			Trades:      r.Trades,
			Dropped:     r.Dropped,
			Changes:     r.Changes(),
			Persisted:   r.Persisted,
			StartedAt:   started,
			Duration:    elapsed,
		}
		if err := o.runs.Insert(ctx, run); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			fail("learner_runs", err)
		}
	}

	if o.snapshots != nil && len(r.Decisions) > 0 {
		if err := o.snapshots.InsertBulk(ctx, snapshotRows(runID, r, started)); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			fail("bucket_snapshots", err)
		}
	}

	if o.publisher != nil && r.Status == domain.LearnerUpdated && r.Persisted && r.Table != nil {
		if err := o.publisher.Publish(ctx, r.Learner, r.Table); err != nil {
			fail("publish", err)
		}
	}

	return errs
}

func snapshotRows(runID string, r *domain.LearnerResult, at time.Time) []*domain.BucketSnapshotRow {
	rows := make([]*domain.BucketSnapshotRow, 0, len(r.Decisions))
	for _, d := range r.Decisions {
		rows = append(rows, &domain.BucketSnapshotRow{
			RunID:      runID,
			Learner:    r.Learner,
			State:      d.State,
			Status:     d.Status,
			Count:      d.Stats.Count,
			TotalPnL:   d.Stats.TotalPnL,
			AvgPnL:     d.Stats.AvgPnL,
			AvgROIPct:  d.Stats.AvgROIPct,
			WinRate:    d.Stats.WinRate,
			Previous:   d.Previous,
			Committed:  d.Committed,
			RecordedAt: at,
		})
	}
	return rows
}
