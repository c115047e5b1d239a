package discovery

import (
	"context"

	"github.com/sells-group/acquisition-cli/internal/model"
	"github.com/sells-group/acquisition-cli/internal/reconcile"
)

// RunTracker is the part of the run tracker a run loop drives.
type RunTracker interface {
	StartRun(ctx context.Context, cfg model.RunConfig) (*model.Run, error)
	RecordAttempt(ctx context.Context, a model.Attempt) error
	UpdateProgress(ctx context.Context, runID string, processed, found int) error
	CompleteRun(ctx context.Context, runID string, totalFound, totalProcessed int) error
	FailRun(ctx context.Context, runID string, errs []string) error
	IsRunning(ctx context.Context, runID string) (bool, error)
	BeginAttempt(platform model.Platform, handle string) (release func(), ok bool)
}

// Admitter gates entry into the candidate store.
type Admitter interface {
	Admit(ctx context.Context, c model.Candidate) (reconcile.Admission, error)
	Import(ctx context.Context, req reconcile.ImportRequest) (model.ImportResult, error)
}

// DuplicateFinder answers ad hoc reconciliation queries and records
// detections on prospect and application records.
type DuplicateFinder interface {
	FindDuplicates(ctx context.Context, obs model.ObservedIdentity) (*model.DuplicateSet, error)
	Detect(ctx context.Context, origin reconcile.Origin, obs model.ObservedIdentity, auto bool) (*model.DuplicateSet, error)
}
