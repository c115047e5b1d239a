package discovery

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/acquisition-cli/internal/account"
	"github.com/sells-group/acquisition-cli/internal/model"
)

// Enricher re-fetches profile data for a filtered set of stored candidates.
type Enricher struct {
	deps     Deps
	profiles *profileFetcher
}

// NewEnricher creates an Enricher.
func NewEnricher(d Deps) *Enricher {
	return &Enricher{deps: d, profiles: d.profiles()}
}

// Execute drives a started enrichment run. Every selected candidate yields
// exactly one attempt record unless another run holds it in flight.
func (e *Enricher) Execute(ctx context.Context, run *model.Run) error {
	cfg := &run.Config
	log := zap.L().With(zap.String("run_id", run.ID), zap.String("kind", string(cfg.Kind)))
	if cfg.Enrichment == nil {
		return finishRun(ctx, e.deps.Tracker, log, run.ID, 0, 0, eris.New("discovery: enrichment settings missing"))
	}
	ec := cfg.Enrichment

	batch, err := e.deps.Accounts.ListForEnrichment(ctx, account.EnrichmentFilter{
		Platform:        ec.Platform,
		Country:         ec.Country,
		Source:          ec.Source,
		IDs:             ec.CandidateIDs,
		OnlyMissingData: ec.OnlyMissingData,
		Limit:           ec.BatchSize,
	})
	if err != nil {
		return finishRun(ctx, e.deps.Tracker, log, run.ID, 0, 0, eris.Wrap(err, "discovery: select enrichment batch"))
	}
	log.Info("discovery: enrichment batch selected", zap.Int("candidates", len(batch)))

	pacer := NewPacer(cfg.Pacing.MinDelay(), cfg.Pacing.MaxDelay(), e.deps.Sleep)
	var found, processed, busy int
	runErr := func() error {
		for i, c := range batch {
			if err := checkRunning(ctx, e.deps.Tracker, run.ID); err != nil {
				return err
			}
			res, err := e.profiles.fetch(ctx, run.ID, c, ec.SkipPrivate)
			if err != nil {
				return eris.Wrap(err, "discovery: record enrichment attempt")
			}
			processed++
			if res.busy {
				busy++
			}
			if res.status == model.AttemptSuccess && applyBounds(ctx, e.deps.Accounts, cfg, c, res.profile) {
				found++
			}
			if err := reportProgress(ctx, e.deps.Tracker, run.ID, processed, found); err != nil {
				return err
			}
			if i < len(batch)-1 && !res.busy {
				if err := pacer.Wait(ctx); err != nil {
					return err
				}
			}
		}
		return nil
	}()

	if busy > 0 {
		log.Info("discovery: candidates skipped while in flight elsewhere", zap.Int("count", busy))
	}
	return finishRun(ctx, e.deps.Tracker, log, run.ID, found, processed, runErr)
}
