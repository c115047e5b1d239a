// Package tracker persists the lifecycle of acquisition runs and every fetch
// attempt made within them.
package tracker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/acquisition-cli/internal/model"
)

// Sentinel errors for run transitions.
var (
	ErrRunNotFound = eris.New("run not found")
	ErrRunTerminal = eris.New("run is not running")
)

// CancelReason is recorded on runs stopped by an operator.
const CancelReason = "cancelled by operator"

// Tracker drives the run state machine: running -> completed and
// running -> failed. Terminal transitions are conditional in the store, so a
// concurrent cancel and completion cannot both succeed.
type Tracker struct {
	store    Store
	inflight *InflightGuard
	now      func() time.Time
}

// New creates a Tracker.
func New(store Store) *Tracker {
	return &Tracker{
		store:    store,
		inflight: NewInflightGuard(),
		now:      time.Now,
	}
}

// StartRun validates cfg and persists a new run in the running state.
func (t *Tracker) StartRun(ctx context.Context, cfg model.RunConfig) (*model.Run, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	run := &model.Run{
		ID:        uuid.New().String(),
		Config:    cfg,
		Status:    model.RunStatusRunning,
		StartedAt: t.now().UTC(),
	}
	if err := t.store.CreateRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "tracker: start run")
	}

	zap.L().Info("tracker: run started",
		zap.String("run_id", run.ID),
		zap.String("kind", string(cfg.Kind)),
		zap.Int("target_count", cfg.TargetCount),
	)
	return run, nil
}

// RecordAttempt appends an immutable attempt. Attempts are accepted after the
// run turns terminal so in-flight fetches still leave a record.
func (t *Tracker) RecordAttempt(ctx context.Context, a model.Attempt) error {
	if a.RunID == "" {
		return eris.New("tracker: attempt without run id")
	}
	if !a.Status.Valid() {
		return eris.Errorf("tracker: invalid attempt status %q", a.Status)
	}
	if a.Status != model.AttemptSuccess {
		a.RawPayload = nil
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = t.now().UTC()
	}
	return eris.Wrap(t.store.InsertAttempt(ctx, &a), "tracker: record attempt")
}

// UpdateProgress raises the run's counters. Counters never decrease.
func (t *Tracker) UpdateProgress(ctx context.Context, runID string, processed, found int) error {
	ok, err := t.store.UpdateProgress(ctx, runID, processed, found)
	if err != nil {
		return eris.Wrap(err, "tracker: update progress")
	}
	if !ok {
		return t.notRunning(ctx, runID, "update progress")
	}
	return nil
}

// CompleteRun moves a running run to completed with its final counts.
func (t *Tracker) CompleteRun(ctx context.Context, runID string, totalFound, totalProcessed int) error {
	ok, err := t.store.CompleteRun(ctx, runID, totalFound, totalProcessed, t.now().UTC())
	if err != nil {
		return eris.Wrap(err, "tracker: complete run")
	}
	if !ok {
		return t.notRunning(ctx, runID, "complete run")
	}
	zap.L().Info("tracker: run completed",
		zap.String("run_id", runID),
		zap.Int("total_found", totalFound),
		zap.Int("total_processed", totalProcessed),
	)
	return nil
}

// FailRun moves a running run to failed, appending errs and keeping the
// partial counts.
func (t *Tracker) FailRun(ctx context.Context, runID string, errs []string) error {
	ok, err := t.store.FailRun(ctx, runID, errs, t.now().UTC())
	if err != nil {
		return eris.Wrap(err, "tracker: fail run")
	}
	if !ok {
		return t.notRunning(ctx, runID, "fail run")
	}
	zap.L().Info("tracker: run failed", zap.String("run_id", runID), zap.Strings("errors", errs))
	return nil
}

// Cancel fails a running run on behalf of an operator. The run loop notices
// on its next status check.
func (t *Tracker) Cancel(ctx context.Context, runID string) error {
	return t.FailRun(ctx, runID, []string{CancelReason})
}

func (t *Tracker) notRunning(ctx context.Context, runID, op string) error {
	run, err := t.store.GetRun(ctx, runID)
	if err != nil {
		if eris.Is(err, ErrRunNotFound) {
			return eris.Wrapf(ErrRunNotFound, "tracker: %s %s", op, runID)
		}
		return eris.Wrapf(err, "tracker: %s", op)
	}
	return eris.Wrapf(ErrRunTerminal, "tracker: %s %s (status %s)", op, runID, run.Status)
}

// Get returns the full run.
func (t *Tracker) Get(ctx context.Context, runID string) (*model.Run, error) {
	run, err := t.store.GetRun(ctx, runID)
	if err != nil {
		return nil, eris.Wrap(err, "tracker: get run")
	}
	return run, nil
}

// Status returns the polling view of a run.
func (t *Tracker) Status(ctx context.Context, runID string) (*model.RunStatusReport, error) {
	run, err := t.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &model.RunStatusReport{
		ID:             run.ID,
		Status:         run.Status,
		TotalFound:     run.TotalFound,
		TotalProcessed: run.TotalProcessed,
	}, nil
}

// IsRunning reports whether the run may still make progress.
func (t *Tracker) IsRunning(ctx context.Context, runID string) (bool, error) {
	run, err := t.Get(ctx, runID)
	if err != nil {
		return false, err
	}
	return run.Status == model.RunStatusRunning, nil
}

// ListRuns returns runs matching filter, newest first.
func (t *Tracker) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	runs, err := t.store.ListRuns(ctx, filter)
	return runs, eris.Wrap(err, "tracker: list runs")
}

// ListAttempts returns a run's attempts in the order they were recorded.
func (t *Tracker) ListAttempts(ctx context.Context, runID string, limit int) ([]model.Attempt, error) {
	attempts, err := t.store.ListAttempts(ctx, runID, limit)
	return attempts, eris.Wrap(err, "tracker: list attempts")
}

// LastRun returns the most recently started run, or nil.
func (t *Tracker) LastRun(ctx context.Context) (*model.Run, error) {
	runs, err := t.ListRuns(ctx, RunFilter{Limit: 1})
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return &runs[0], nil
}

// BeginAttempt claims the in-flight slot for a candidate. The caller must
// call release when the attempt has been recorded. ok is false when another
// run in this process is already fetching the same candidate.
func (t *Tracker) BeginAttempt(platform model.Platform, handle string) (release func(), ok bool) {
	return t.inflight.Acquire(platform, handle)
}
