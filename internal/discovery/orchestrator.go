// Package discovery runs acquisition runs: the phase-based discovery
// orchestrator and targeted enrichment batches.
package discovery

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/acquisition-cli/internal/handle"
	"github.com/sells-group/acquisition-cli/internal/model"
	"github.com/sells-group/acquisition-cli/internal/reconcile"
)

// phase is one swappable discovery strategy.
type phase interface {
	name() string
	// sources lists the source tags the phase admits under, for daily quotas.
	sources() []string
	quota(q model.PhaseQuotas) model.PhaseQuota
	run(ctx context.Context, rs *runState) error
}

// Orchestrator runs discovery phases in fixed order: tag, chain, geo,
// external. One run is processed sequentially by a single goroutine.
type Orchestrator struct {
	deps Deps
	now  func() time.Time
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(d Deps) *Orchestrator {
	return &Orchestrator{deps: d, now: time.Now}
}

func (o *Orchestrator) phases(cfg *model.RunConfig) []phase {
	var out []phase
	if len(cfg.Tags)+len(cfg.Keywords) > 0 {
		out = append(out, &tagPhase{client: o.deps.Client})
	}
	if cfg.Chain.SeedSample > 0 {
		out = append(out, &chainPhase{client: o.deps.Client, accounts: o.deps.Accounts})
	}
	if len(cfg.Locations) > 0 {
		out = append(out, &geoPhase{client: o.deps.Client})
	}
	if len(cfg.ExternalSources) > 0 {
		out = append(out, &externalPhase{listings: o.deps.Listings})
	}
	return out
}

// Execute drives a started discovery run to a terminal state. Per-candidate
// failures are recorded as attempts; only errors that prevent any further
// progress fail the run.
func (o *Orchestrator) Execute(ctx context.Context, run *model.Run) error {
	rs := &runState{
		deps:     o.deps,
		profiles: o.deps.profiles(),
		run:      run,
		cfg:      &run.Config,
		pacer:    NewPacer(run.Config.Pacing.MinDelay(), run.Config.Pacing.MaxDelay(), o.deps.Sleep),
		log:      zap.L().With(zap.String("run_id", run.ID), zap.String("kind", string(run.Config.Kind))),
	}

	var runErr error
	for _, ph := range o.phases(rs.cfg) {
		if rs.targetReached() {
			break
		}
		if err := rs.beginPhase(ctx, ph, o.now()); err != nil {
			runErr = err
			break
		}
		if rs.budget == 0 {
			rs.log.Info("discovery: phase quota exhausted", zap.String("phase", ph.name()))
			continue
		}

		err := ph.run(ctx, rs)
		rs.log.Info("discovery: phase finished",
			zap.String("phase", ph.name()),
			zap.Int("admitted", rs.phaseAdmitted),
			zap.Int("total_found", rs.found),
			zap.Int("total_processed", rs.processed),
		)
		if err != nil && !errors.Is(err, errPhaseDone) {
			runErr = err
			break
		}
	}

	return finishRun(ctx, o.deps.Tracker, rs.log, run.ID, rs.found, rs.processed, runErr)
}

// offer is one handle emitted by a phase.
type offer struct {
	Platform model.Platform
	Handle   string
	Email    string
	Country  string
	Source   string
}

// runState is the per-run loop state. It is owned by one goroutine.
type runState struct {
	deps     Deps
	profiles *profileFetcher
	run      *model.Run
	cfg      *model.RunConfig
	pacer    *Pacer
	log      *zap.Logger

	found     int
	processed int

	// Per phase.
	seen          map[string]struct{}
	budget        int // remaining admissions; -1 is unbounded
	phaseAdmitted int
}

func (rs *runState) targetReached() bool {
	return rs.cfg.TargetCount > 0 && rs.found >= rs.cfg.TargetCount
}

// beginPhase resets the seen-set and computes the phase budget from its
// per-run quota and what its sources already admitted today.
func (rs *runState) beginPhase(ctx context.Context, ph phase, now time.Time) error {
	rs.seen = make(map[string]struct{})
	rs.phaseAdmitted = 0
	rs.budget = -1

	q := ph.quota(rs.cfg.Quotas)
	if q.PerRun > 0 {
		rs.budget = q.PerRun
	}
	if q.Daily > 0 {
		y, m, d := now.UTC().Date()
		dayStart := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		used := 0
		for _, p := range rs.cfg.Platforms {
			for _, src := range ph.sources() {
				n, err := rs.deps.Accounts.CountDiscoveredSince(ctx, p, src, dayStart)
				if err != nil {
					return eris.Wrapf(err, "discovery: daily quota for %s", ph.name())
				}
				used += n
			}
		}
		remaining := max(q.Daily-used, 0)
		if rs.budget < 0 || remaining < rs.budget {
			rs.budget = remaining
		}
	}
	rs.log.Info("discovery: phase starting", zap.String("phase", ph.name()), zap.Int("budget", rs.budget))
	return nil
}

// beforeFetch checks the run is still running before a platform fetch.
func (rs *runState) beforeFetch(ctx context.Context) error {
	if rs.targetReached() || rs.budget == 0 {
		return errPhaseDone
	}
	return checkRunning(ctx, rs.deps.Tracker, rs.run.ID)
}

// fetched paces after a successful listing fetch.
func (rs *runState) fetched(ctx context.Context) error {
	return rs.pacer.Wait(ctx)
}

// fetchFailed records a failed listing fetch against its query reference and
// paces. The run carries on.
func (rs *runState) fetchFailed(ctx context.Context, p model.Platform, ref string, fetchErr error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rs.log.Warn("discovery: listing fetch failed",
		zap.String("platform", string(p)),
		zap.String("ref", ref),
		zap.Error(fetchErr),
	)
	if err := rs.deps.Tracker.RecordAttempt(ctx, model.Attempt{
		RunID:    rs.run.ID,
		Handle:   ref,
		Platform: p,
		Status:   classify(fetchErr),
		Error:    fetchErr.Error(),
	}); err != nil {
		return eris.Wrap(err, "discovery: record listing attempt")
	}
	return rs.pacer.Wait(ctx)
}

// offer runs one emitted handle through dedup, run-status check,
// reconciliation and enrichment.
func (rs *runState) offer(ctx context.Context, off offer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rs.targetReached() || rs.budget == 0 {
		return errPhaseDone
	}

	h := handle.Normalize(off.Handle)
	if !off.Platform.Valid() || !handle.Valid(h) {
		return nil
	}
	key := string(off.Platform) + "/" + h
	if _, dup := rs.seen[key]; dup {
		return nil
	}
	rs.seen[key] = struct{}{}

	if err := checkRunning(ctx, rs.deps.Tracker, rs.run.ID); err != nil {
		return err
	}

	country := off.Country
	if country == "" {
		country = rs.cfg.PrimaryCountry()
	}
	adm, err := rs.deps.Admitter.Admit(ctx, model.Candidate{
		Platform: off.Platform,
		Handle:   h,
		Source:   off.Source,
		Email:    off.Email,
		Country:  country,
	})
	if err != nil {
		return eris.Wrap(err, "discovery: admit candidate")
	}
	rs.processed++

	if adm.Outcome == reconcile.Created {
		rs.phaseAdmitted++
		if rs.budget > 0 {
			rs.budget--
		}
		res, err := rs.profiles.fetch(ctx, rs.run.ID, adm.Candidate, false)
		if err != nil {
			return eris.Wrap(err, "discovery: record enrichment attempt")
		}
		if applyBounds(ctx, rs.deps.Accounts, rs.cfg, adm.Candidate, res.profile) {
			rs.found++
		}
		if err := reportProgress(ctx, rs.deps.Tracker, rs.run.ID, rs.processed, rs.found); err != nil {
			return err
		}
		if !res.busy {
			return rs.pacer.Wait(ctx)
		}
		return nil
	}

	return reportProgress(ctx, rs.deps.Tracker, rs.run.ID, rs.processed, rs.found)
}
