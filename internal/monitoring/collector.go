package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/acquisition-cli/internal/model"
	"github.com/sells-group/acquisition-cli/internal/tracker"
)

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Run metrics (runs started within the lookback window).
	RunsTotal     int     `json:"runs_total"`
	RunsRunning   int     `json:"runs_running"`
	RunsCompleted int     `json:"runs_completed"`
	RunsFailed    int     `json:"runs_failed"`
	RunFailRate   float64 `json:"run_fail_rate"`

	// Attempt metrics (within lookback window).
	AttemptsTotal          int     `json:"attempts_total"`
	AttemptsSuccess        int     `json:"attempts_success"`
	AttemptsFailed         int     `json:"attempts_failed"`
	AttemptsNotFound       int     `json:"attempts_not_found"`
	AttemptsSkippedPrivate int     `json:"attempts_skipped_private"`
	AttemptFailRate        float64 `json:"attempt_fail_rate"`

	// Endpoint pool health.
	EndpointsTotal     int     `json:"endpoints_total"`
	EndpointsActive    int     `json:"endpoints_active"`
	PoolAvgSuccessRate float64 `json:"pool_avg_success_rate"`

	// Candidate store.
	CandidatesTotal       int `json:"candidates_total"`
	CandidatesMissingData int `json:"candidates_missing_data"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// ActivityCounter aggregates runs and attempts since a cutoff.
type ActivityCounter interface {
	CountRuns(ctx context.Context, since time.Time) (tracker.RunCounts, error)
	CountAttempts(ctx context.Context, since time.Time) (tracker.AttemptCounts, error)
}

// PoolView exposes the endpoint pool state.
type PoolView interface {
	Snapshot() []model.Endpoint
}

// CandidateStats reports candidate store totals.
type CandidateStats interface {
	Stats(ctx context.Context, scope model.StatsScope) (model.Stats, error)
}

// Collector gathers metrics from the run store, the endpoint pool and the
// candidate store. pool and candidates may be nil.
type Collector struct {
	activity   ActivityCounter
	pool       PoolView
	candidates CandidateStats
	now        func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(activity ActivityCounter, pool PoolView, candidates CandidateStats) *Collector {
	return &Collector{activity: activity, pool: pool, candidates: candidates, now: time.Now}
}

// Collect gathers a snapshot of system metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.activity.CountRuns(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count runs")
	}
	snap.RunsTotal = runs.Total
	snap.RunsRunning = runs.Running
	snap.RunsCompleted = runs.Completed
	snap.RunsFailed = runs.Failed
	if finished := runs.Completed + runs.Failed; finished > 0 {
		snap.RunFailRate = float64(runs.Failed) / float64(finished)
	}

	attempts, err := c.activity.CountAttempts(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count attempts")
	}
	snap.AttemptsTotal = attempts.Total
	snap.AttemptsSuccess = attempts.Success
	snap.AttemptsFailed = attempts.Failed
	snap.AttemptsNotFound = attempts.NotFound
	snap.AttemptsSkippedPrivate = attempts.SkippedPrivate
	if attempts.Total > 0 {
		snap.AttemptFailRate = float64(attempts.Failed) / float64(attempts.Total)
	}

	if c.pool != nil {
		eps := c.pool.Snapshot()
		var rateSum float64
		for _, ep := range eps {
			if ep.IsDirect() {
				continue
			}
			snap.EndpointsTotal++
			rateSum += ep.SuccessRate
			if ep.IsActive {
				snap.EndpointsActive++
			}
		}
		if snap.EndpointsTotal > 0 {
			snap.PoolAvgSuccessRate = rateSum / float64(snap.EndpointsTotal)
		}
	}

	if c.candidates != nil {
		stats, err := c.candidates.Stats(ctx, model.StatsScope{})
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: candidate stats")
		}
		snap.CandidatesTotal = stats.TotalCandidates
		snap.CandidatesMissingData = stats.MissingData
	}

	return snap, nil
}
