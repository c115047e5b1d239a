package discovery

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/acquisition-cli/internal/account"
	"github.com/sells-group/acquisition-cli/internal/fetcher"
	"github.com/sells-group/acquisition-cli/internal/model"
	"github.com/sells-group/acquisition-cli/internal/tracker"
	"github.com/sells-group/acquisition-cli/pkg/platform"
)

var (
	// errPhaseDone ends the current phase: its quota or the run target is
	// reached.
	errPhaseDone = eris.New("discovery: phase budget exhausted")
	// errStopped ends the run loop because the run left the running state.
	errStopped = eris.New("discovery: run no longer running")
)

// Deps are the collaborators shared by the orchestrator and the enricher.
type Deps struct {
	Tracker  RunTracker
	Admitter Admitter
	Accounts account.Store
	Client   platform.Client
	// Listings downloads external listing sources.
	Listings fetcher.Fetcher
	// Sleep overrides pacing sleeps; nil uses Sleep.
	Sleep SleepFunc
}

func (d Deps) profiles() *profileFetcher {
	return &profileFetcher{tracker: d.Tracker, accounts: d.Accounts, client: d.Client, now: time.Now}
}

// checkRunning returns errStopped once the run is no longer running.
func checkRunning(ctx context.Context, t RunTracker, runID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ok, err := t.IsRunning(ctx, runID)
	if err != nil {
		return eris.Wrap(err, "discovery: check run status")
	}
	if !ok {
		return errStopped
	}
	return nil
}

// reportProgress pushes counters; a terminal run stops the loop.
func reportProgress(ctx context.Context, t RunTracker, runID string, processed, found int) error {
	err := t.UpdateProgress(ctx, runID, processed, found)
	if errors.Is(err, tracker.ErrRunTerminal) {
		return errStopped
	}
	return err
}

// applyBounds deactivates a candidate whose follower count falls outside the
// run's bounds. It reports whether the candidate stays active.
func applyBounds(ctx context.Context, accounts account.Store, cfg *model.RunConfig, c model.Candidate, p *model.Profile) bool {
	if p == nil || p.WithinFollowerBounds(cfg.MinFollowers, cfg.MaxFollowers) {
		return true
	}
	if err := accounts.SetActive(ctx, c.ID, false); err != nil {
		zap.L().Warn("discovery: deactivate out-of-bounds candidate",
			zap.Int64("candidate_id", c.ID),
			zap.Error(err),
		)
	}
	return false
}

// finishRun applies the terminal transition for a run loop that returned
// runErr.
func finishRun(ctx context.Context, t RunTracker, log *zap.Logger, runID string, found, processed int, runErr error) error {
	switch {
	case errors.Is(runErr, errStopped):
		log.Info("discovery: run stopped before completion",
			zap.Int("total_found", found),
			zap.Int("total_processed", processed),
		)
		return nil

	case ctx.Err() != nil:
		bg := context.WithoutCancel(ctx)
		_ = t.UpdateProgress(bg, runID, processed, found)
		if err := t.FailRun(bg, runID, []string{"interrupted: " + ctx.Err().Error()}); err != nil && !errors.Is(err, tracker.ErrRunTerminal) {
			log.Error("discovery: fail interrupted run", zap.Error(err))
		}
		return ctx.Err()

	case runErr != nil:
		log.Error("discovery: run failed", zap.Error(runErr))
		_ = t.UpdateProgress(ctx, runID, processed, found)
		if err := t.FailRun(ctx, runID, []string{runErr.Error()}); err != nil && !errors.Is(err, tracker.ErrRunTerminal) {
			return eris.Wrap(err, "discovery: record run failure")
		}
		return runErr
	}

	err := t.CompleteRun(ctx, runID, found, processed)
	if errors.Is(err, tracker.ErrRunTerminal) {
		log.Info("discovery: run ended by operator before completion")
		return nil
	}
	return err
}
