package discovery

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/acquisition-cli/internal/account"
	"github.com/sells-group/acquisition-cli/internal/config"
	"github.com/sells-group/acquisition-cli/internal/model"
	"github.com/sells-group/acquisition-cli/internal/reconcile"
	"github.com/sells-group/acquisition-cli/internal/tracker"
)

// ErrInvalidOrigin rejects detections on records that cannot carry a
// detection snapshot.
var ErrInvalidOrigin = eris.New("discovery: invalid detection origin")

// Tracker is the tracker surface the service exposes to operators.
type Tracker interface {
	RunTracker
	Get(ctx context.Context, runID string) (*model.Run, error)
	Status(ctx context.Context, runID string) (*model.RunStatusReport, error)
	Cancel(ctx context.Context, runID string) error
	ListRuns(ctx context.Context, filter tracker.RunFilter) ([]model.Run, error)
	ListAttempts(ctx context.Context, runID string, limit int) ([]model.Attempt, error)
	LastRun(ctx context.Context) (*model.Run, error)
}

// Defaults fill run configuration left unset by a request.
type Defaults struct {
	Discovery  config.DiscoveryConfig
	Enrichment config.EnrichmentConfig
	Targets    *config.Targets
}

// EnrichmentRequest selects candidates for a re-enrichment batch. Nil flags
// take the configured defaults.
type EnrichmentRequest struct {
	Platform        model.Platform `json:"platform,omitempty"`
	Country         string         `json:"country,omitempty"`
	Source          string         `json:"source,omitempty"`
	CandidateIDs    []int64        `json:"candidate_ids,omitempty"`
	BatchSize       int            `json:"batch_size,omitempty"`
	SkipPrivate     *bool          `json:"skip_private,omitempty"`
	OnlyMissingData *bool          `json:"only_missing_data,omitempty"`
	MinDelayMs      int            `json:"min_delay_ms,omitempty"`
	MaxDelayMs      int            `json:"max_delay_ms,omitempty"`
	MinFollowers    int            `json:"min_followers,omitempty"`
	MaxFollowers    int            `json:"max_followers,omitempty"`
}

// Service is the operator-facing entry point to acquisition runs.
// Background runs share a base context cancelled by Close.
type Service struct {
	tracker  Tracker
	accounts account.Store
	admitter Admitter
	finder   DuplicateFinder
	orch     *Orchestrator
	enricher *Enricher
	defaults Defaults

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// NewService wires a Service. d.Tracker is replaced by t.
func NewService(t Tracker, d Deps, finder DuplicateFinder, defaults Defaults) *Service {
	d.Tracker = t
	ctx, stop := context.WithCancel(context.Background())
	return &Service{
		tracker:  t,
		accounts: d.Accounts,
		admitter: d.Admitter,
		finder:   finder,
		orch:     NewOrchestrator(d),
		enricher: NewEnricher(d),
		defaults: defaults,
		baseCtx:  ctx,
		stop:     stop,
	}
}

// StartDiscoveryRun validates the configuration, creates the run and
// executes it in the background. The run is returned in the running state.
func (s *Service) StartDiscoveryRun(ctx context.Context, req model.RunConfig) (*model.Run, error) {
	run, err := s.tracker.StartRun(ctx, s.DiscoveryConfig(req))
	if err != nil {
		return nil, err
	}
	s.launch(run, s.orch.Execute)
	return run, nil
}

// RunDiscovery executes a discovery run to completion and returns its final
// state.
func (s *Service) RunDiscovery(ctx context.Context, req model.RunConfig) (*model.Run, error) {
	run, err := s.tracker.StartRun(ctx, s.DiscoveryConfig(req))
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, run, s.orch.Execute)
}

// StartEnrichmentBatch creates an enrichment run and executes it in the
// background.
func (s *Service) StartEnrichmentBatch(ctx context.Context, req EnrichmentRequest) (*model.Run, error) {
	run, err := s.tracker.StartRun(ctx, s.EnrichmentConfig(req))
	if err != nil {
		return nil, err
	}
	s.launch(run, s.enricher.Execute)
	return run, nil
}

// RunEnrichment executes an enrichment batch to completion.
func (s *Service) RunEnrichment(ctx context.Context, req EnrichmentRequest) (*model.Run, error) {
	run, err := s.tracker.StartRun(ctx, s.EnrichmentConfig(req))
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, run, s.enricher.Execute)
}

type executeFunc func(ctx context.Context, run *model.Run) error

func (s *Service) launch(run *model.Run, exec executeFunc) {
	s.wg.Go(func() {
		if err := exec(s.baseCtx, run); err != nil {
			zap.L().Error("discovery: background run ended with error",
				zap.String("run_id", run.ID),
				zap.Error(err),
			)
		}
	})
}

func (s *Service) execute(ctx context.Context, run *model.Run, exec executeFunc) (*model.Run, error) {
	execErr := exec(ctx, run)
	final, err := s.tracker.Get(context.WithoutCancel(ctx), run.ID)
	if err != nil {
		return run, eris.Wrap(err, "discovery: reload run")
	}
	return final, execErr
}

// GetRunStatus returns the polling view of a run.
func (s *Service) GetRunStatus(ctx context.Context, runID string) (*model.RunStatusReport, error) {
	return s.tracker.Status(ctx, runID)
}

// GetRun returns the full run.
func (s *Service) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	return s.tracker.Get(ctx, runID)
}

// CancelRun marks a running run failed. The loop stops at its next status
// check.
func (s *Service) CancelRun(ctx context.Context, runID string) error {
	return s.tracker.Cancel(ctx, runID)
}

// ListRuns returns runs newest first.
func (s *Service) ListRuns(ctx context.Context, filter tracker.RunFilter) ([]model.Run, error) {
	return s.tracker.ListRuns(ctx, filter)
}

// ListAttempts returns the attempts recorded for a run.
func (s *Service) ListAttempts(ctx context.Context, runID string, limit int) ([]model.Attempt, error) {
	return s.tracker.ListAttempts(ctx, runID, limit)
}

// GetStats aggregates candidates and attempts, with the most recent run.
func (s *Service) GetStats(ctx context.Context, scope model.StatsScope) (*model.Stats, error) {
	stats, err := s.accounts.Stats(ctx, scope)
	if err != nil {
		return nil, err
	}
	last, err := s.tracker.LastRun(ctx)
	if err != nil {
		return nil, err
	}
	stats.LastRun = last
	return &stats, nil
}

// ImportHandles admits externally sourced handles in bulk.
func (s *Service) ImportHandles(ctx context.Context, req reconcile.ImportRequest) (model.ImportResult, error) {
	if req.Source == "" {
		req.Source = model.SourceImport
	}
	return s.admitter.Import(ctx, req)
}

// FindDuplicates queries every reconciliation layer for an identity.
func (s *Service) FindDuplicates(ctx context.Context, obs model.ObservedIdentity) (*model.DuplicateSet, error) {
	return s.finder.FindDuplicates(ctx, obs)
}

// DetectDuplicates reconciles an existing prospect or application record
// against every layer, excluding the record itself, and stores the
// detection snapshot on it.
func (s *Service) DetectDuplicates(ctx context.Context, origin reconcile.Origin, obs model.ObservedIdentity, auto bool) (*model.DuplicateSet, error) {
	if origin.Layer != model.LayerProspect && origin.Layer != model.LayerApplication {
		return nil, eris.Wrapf(ErrInvalidOrigin, "layer %q", origin.Layer)
	}
	if origin.ID <= 0 {
		return nil, eris.Wrap(ErrInvalidOrigin, "id must be positive")
	}
	return s.finder.Detect(ctx, origin, obs, auto)
}

// Wait blocks until every background run has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close interrupts background runs and waits for them. Interrupted runs are
// marked failed.
func (s *Service) Close() {
	s.stop()
	s.wg.Wait()
}

// DiscoveryConfig fills unset fields of req from the configured defaults.
// Phase inputs are taken from the targets file only when the request names
// none at all.
func (s *Service) DiscoveryConfig(req model.RunConfig) model.RunConfig {
	cfg := req
	d := s.defaults.Discovery
	cfg.Kind = model.RunKindDiscovery
	cfg.Enrichment = nil

	if t := s.defaults.Targets; t != nil {
		if len(cfg.Countries) == 0 {
			cfg.Countries = t.Countries
		}
		if len(cfg.Platforms) == 0 {
			cfg.Platforms = parsePlatforms(t.Platforms)
		}
		if !hasPhaseInput(&cfg) {
			cfg.Tags = t.Tags
			cfg.Keywords = t.Keywords
			cfg.Locations = make([]model.Location, 0, len(t.Locations))
			for _, l := range t.Locations {
				cfg.Locations = append(cfg.Locations, model.Location{ID: l.ID, Name: l.Name, Country: l.Country})
			}
			cfg.ExternalSources = make([]model.ExternalSource, 0, len(t.External))
			for _, e := range t.External {
				cfg.ExternalSources = append(cfg.ExternalSources, model.ExternalSource{
					URL:      e.URL,
					Format:   e.Format,
					Column:   e.Column,
					Platform: model.Platform(strings.ToLower(e.Platform)),
					Country:  e.Country,
				})
			}
			cfg.Chain.SeedSample = d.SeedSample
		}
	}

	cfg.TargetCount = or(cfg.TargetCount, d.TargetCount)
	if cfg.Pacing.MinDelayMs == 0 && cfg.Pacing.MaxDelayMs == 0 {
		cfg.Pacing.MinDelayMs = d.MinDelayMs
		cfg.Pacing.MaxDelayMs = d.MaxDelayMs
	}
	cfg.Pacing.TermDelayMs = or(cfg.Pacing.TermDelayMs, d.TermDelayMs)
	cfg.Quotas.Tag.Daily = or(cfg.Quotas.Tag.Daily, d.TagDailyQuota)
	cfg.Quotas.Chain.Daily = or(cfg.Quotas.Chain.Daily, d.ChainDailyQuota)
	cfg.Quotas.Geo.Daily = or(cfg.Quotas.Geo.Daily, d.GeoDailyQuota)
	cfg.Quotas.External.Daily = or(cfg.Quotas.External.Daily, d.ExternalDailyQuota)
	cfg.Chain.FollowersPerSeed = or(cfg.Chain.FollowersPerSeed, d.FollowersPerSeed)
	cfg.Chain.SecondHopSample = or(cfg.Chain.SecondHopSample, d.SecondHopSample)
	return cfg
}

// EnrichmentConfig builds the run configuration for an enrichment request.
func (s *Service) EnrichmentConfig(req EnrichmentRequest) model.RunConfig {
	d := s.defaults.Enrichment
	ec := &model.EnrichmentConfig{
		Platform:        req.Platform,
		Country:         strings.ToUpper(req.Country),
		Source:          req.Source,
		CandidateIDs:    req.CandidateIDs,
		BatchSize:       or(req.BatchSize, d.BatchSize),
		SkipPrivate:     d.SkipPrivate,
		OnlyMissingData: d.OnlyMissingData,
	}
	if req.SkipPrivate != nil {
		ec.SkipPrivate = *req.SkipPrivate
	}
	if req.OnlyMissingData != nil {
		ec.OnlyMissingData = *req.OnlyMissingData
	}
	if len(req.CandidateIDs) > 0 && ec.BatchSize < len(req.CandidateIDs) {
		ec.BatchSize = len(req.CandidateIDs)
	}

	cfg := model.RunConfig{
		Kind:         model.RunKindEnrichment,
		MinFollowers: req.MinFollowers,
		MaxFollowers: req.MaxFollowers,
		Pacing: model.PacingConfig{
			MinDelayMs: req.MinDelayMs,
			MaxDelayMs: req.MaxDelayMs,
		},
		Enrichment: ec,
	}
	if req.Platform != "" {
		cfg.Platforms = []model.Platform{req.Platform}
	}
	if ec.Country != "" {
		cfg.Countries = []string{ec.Country}
	}
	if cfg.Pacing.MinDelayMs == 0 && cfg.Pacing.MaxDelayMs == 0 {
		cfg.Pacing.MinDelayMs = d.MinDelayMs
		cfg.Pacing.MaxDelayMs = d.MaxDelayMs
	}
	return cfg
}

func hasPhaseInput(c *model.RunConfig) bool {
	return len(c.Tags)+len(c.Keywords)+len(c.Locations)+len(c.ExternalSources) > 0 || c.Chain.SeedSample > 0
}

func parsePlatforms(raw []string) []model.Platform {
	out := make([]model.Platform, 0, len(raw))
	for _, r := range raw {
		out = append(out, model.Platform(strings.ToLower(strings.TrimSpace(r))))
	}
	return out
}

func or(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
