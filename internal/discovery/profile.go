package discovery

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/acquisition-cli/internal/account"
	"github.com/sells-group/acquisition-cli/internal/model"
	"github.com/sells-group/acquisition-cli/pkg/platform"
)

// profileFetcher performs one enrichment attempt for a candidate. Fetch
// failures become attempt records; only failures to persist the attempt are
// returned.
type profileFetcher struct {
	tracker  RunTracker
	accounts account.Store
	client   platform.Client
	now      func() time.Time
}

type fetchResult struct {
	status  model.AttemptStatus
	profile *model.Profile
	// busy is set when another run holds the candidate's in-flight slot.
	busy bool
}

func (f *profileFetcher) fetch(ctx context.Context, runID string, c model.Candidate, skipPrivate bool) (fetchResult, error) {
	release, ok := f.tracker.BeginAttempt(c.Platform, c.Handle)
	if !ok {
		return fetchResult{busy: true}, nil
	}
	defer release()

	log := zap.L().With(
		zap.String("run_id", runID),
		zap.String("platform", string(c.Platform)),
		zap.String("handle", c.Handle),
	)
	start := f.now()
	attempt := model.Attempt{
		RunID:    runID,
		Handle:   c.Handle,
		Platform: c.Platform,
	}
	if c.ID > 0 {
		id := c.ID
		attempt.CandidateID = &id
	}

	var res fetchResult
	if skipPrivate {
		private, err := f.client.IsPrivate(ctx, c.Platform, c.Handle)
		switch {
		case err == nil && private:
			res.status = model.AttemptSkippedPrivate
		case err != nil:
			res.status = classify(err)
			attempt.Error = err.Error()
		}
	}

	if res.status == "" {
		prof, err := f.client.Profile(ctx, c.Platform, c.Handle)
		if err != nil {
			res.status = classify(err)
			attempt.Error = err.Error()
		} else {
			p := prof.ToModel(f.now().UTC())
			res.status = model.AttemptSuccess
			res.profile = &p
			attempt.RawPayload = prof.Raw
			if c.ID > 0 {
				if err := f.accounts.UpdateProfile(ctx, c.ID, p); err != nil {
					// The fetch worked; the candidate row keeps its old data.
					res.status = model.AttemptFailed
					attempt.Error = err.Error()
					attempt.RawPayload = nil
				}
			}
		}
	}

	attempt.Status = res.status
	attempt.DurationMs = f.now().Sub(start).Milliseconds()
	if res.status == model.AttemptFailed {
		log.Warn("discovery: enrichment attempt failed", zap.String("error", attempt.Error))
	}
	if err := f.tracker.RecordAttempt(ctx, attempt); err != nil {
		return res, err
	}
	return res, nil
}

func classify(err error) model.AttemptStatus {
	switch {
	case errors.Is(err, platform.ErrNotFound):
		return model.AttemptNotFound
	case errors.Is(err, platform.ErrPrivate):
		return model.AttemptSkippedPrivate
	default:
		return model.AttemptFailed
	}
}
