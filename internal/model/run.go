package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrInvalidConfig is returned for run configurations rejected before a run
// is created.
var ErrInvalidConfig = eris.New("invalid run configuration")

// RunStatus is the lifecycle state of an acquisition run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// RunKind distinguishes full discovery runs from enrichment batches.
type RunKind string

const (
	RunKindDiscovery  RunKind = "discovery"
	RunKindEnrichment RunKind = "enrichment"
)

// PacingConfig holds the delays between fetches. When MaxDelayMs is zero
// or equal to MinDelayMs the delay is fixed.
type PacingConfig struct {
	MinDelayMs  int `json:"min_delay_ms" yaml:"min_delay_ms"`
	MaxDelayMs  int `json:"max_delay_ms" yaml:"max_delay_ms"`
	TermDelayMs int `json:"term_delay_ms" yaml:"term_delay_ms"`
}

// MinDelay returns the minimum inter-fetch delay.
func (p PacingConfig) MinDelay() time.Duration {
	return time.Duration(p.MinDelayMs) * time.Millisecond
}

// MaxDelay returns the maximum inter-fetch delay.
func (p PacingConfig) MaxDelay() time.Duration {
	return time.Duration(p.MaxDelayMs) * time.Millisecond
}

// TermDelay returns the delay between two search terms.
func (p PacingConfig) TermDelay() time.Duration {
	return time.Duration(p.TermDelayMs) * time.Millisecond
}

// PhaseQuota bounds how many candidates one phase may emit. Zero means
// unbounded.
type PhaseQuota struct {
	PerRun int `json:"per_run" yaml:"per_run"`
	Daily  int `json:"daily" yaml:"daily"`
}

// PhaseQuotas holds one quota per discovery phase.
type PhaseQuotas struct {
	Tag      PhaseQuota `json:"tag" yaml:"tag"`
	Chain    PhaseQuota `json:"chain" yaml:"chain"`
	Geo      PhaseQuota `json:"geo" yaml:"geo"`
	External PhaseQuota `json:"external" yaml:"external"`
}

// ChainConfig caps the graph expansion frontier on two dimensions.
type ChainConfig struct {
	SeedSample         int `json:"seed_sample" yaml:"seed_sample"`
	FollowersPerSeed   int `json:"followers_per_seed" yaml:"followers_per_seed"`
	SecondHopSample    int `json:"second_hop_sample" yaml:"second_hop_sample"`
	SecondHopFollowers int `json:"second_hop_followers" yaml:"second_hop_followers"`
}

// Location is a place page enumerated by the geographic phase.
type Location struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name,omitempty" yaml:"name"`
	Country string `json:"country,omitempty" yaml:"country"`
}

// ExternalSource is a listing outside the target platform.
type ExternalSource struct {
	URL      string   `json:"url" yaml:"url"`
	Format   string   `json:"format,omitempty" yaml:"format"`
	Column   string   `json:"column,omitempty" yaml:"column"`
	Platform Platform `json:"platform,omitempty" yaml:"platform"`
	Country  string   `json:"country,omitempty" yaml:"country"`
}

// EnrichmentConfig configures a targeted re-enrichment batch.
type EnrichmentConfig struct {
	Platform        Platform `json:"platform,omitempty"`
	Country         string   `json:"country,omitempty"`
	Source          string   `json:"source,omitempty"`
	CandidateIDs    []int64  `json:"candidate_ids,omitempty"`
	BatchSize       int      `json:"batch_size"`
	SkipPrivate     bool     `json:"skip_private"`
	OnlyMissingData bool     `json:"only_missing_data"`
}

// RunConfig is the typed configuration snapshot persisted with a run.
type RunConfig struct {
	Kind            RunKind           `json:"kind"`
	Countries       []string          `json:"countries,omitempty"`
	Platforms       []Platform        `json:"platforms,omitempty"`
	Tags            []string          `json:"tags,omitempty"`
	Keywords        []string          `json:"keywords,omitempty"`
	Locations       []Location        `json:"locations,omitempty"`
	ExternalSources []ExternalSource  `json:"external_sources,omitempty"`
	MinFollowers    int               `json:"min_followers,omitempty"`
	MaxFollowers    int               `json:"max_followers,omitempty"`
	TargetCount     int               `json:"target_count,omitempty"`
	Pacing          PacingConfig      `json:"pacing"`
	Quotas          PhaseQuotas       `json:"quotas"`
	Chain           ChainConfig       `json:"chain"`
	Enrichment      *EnrichmentConfig `json:"enrichment,omitempty"`
}

// PrimaryCountry returns the country assigned to candidates whose phase has
// no more specific country.
func (c *RunConfig) PrimaryCountry() string {
	if len(c.Countries) == 0 {
		return ""
	}
	return strings.ToUpper(c.Countries[0])
}

// Validate rejects configurations that cannot start a run.
func (c *RunConfig) Validate() error {
	var problems []string

	switch c.Kind {
	case RunKindDiscovery:
		if len(c.Platforms) == 0 {
			problems = append(problems, "at least one platform is required")
		}
		if c.TargetCount <= 0 {
			problems = append(problems, "target_count must be positive")
		}
		if len(c.Tags)+len(c.Keywords)+len(c.Locations)+len(c.ExternalSources) == 0 && c.Chain.SeedSample <= 0 {
			problems = append(problems, "no phase input: set tags, keywords, locations, external sources or chain.seed_sample")
		}
	case RunKindEnrichment:
		if c.Enrichment == nil {
			problems = append(problems, "enrichment settings are required")
		} else if c.Enrichment.BatchSize <= 0 {
			problems = append(problems, "enrichment batch_size must be positive")
		}
	default:
		problems = append(problems, "unknown run kind "+string(c.Kind))
	}

	for _, p := range c.Platforms {
		if !p.Valid() {
			problems = append(problems, "unsupported platform "+string(p))
		}
	}
	if c.MinFollowers < 0 || c.MaxFollowers < 0 {
		problems = append(problems, "follower bounds must not be negative")
	}
	if c.MaxFollowers > 0 && c.MinFollowers > c.MaxFollowers {
		problems = append(problems, "min_followers exceeds max_followers")
	}
	if c.Pacing.MinDelayMs < 0 || c.Pacing.MaxDelayMs < 0 || c.Pacing.TermDelayMs < 0 {
		problems = append(problems, "pacing delays must not be negative")
	}
	if c.Pacing.MaxDelayMs > 0 && c.Pacing.MinDelayMs > c.Pacing.MaxDelayMs {
		problems = append(problems, "pacing min_delay_ms exceeds max_delay_ms")
	}

	if len(problems) > 0 {
		return eris.Wrap(ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Run is one execution of the orchestrator or of an enrichment batch.
type Run struct {
	ID             string     `json:"id"`
	Config         RunConfig  `json:"config"`
	Status         RunStatus  `json:"status"`
	TotalFound     int        `json:"total_found"`
	TotalProcessed int        `json:"total_processed"`
	Errors         []string   `json:"errors,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// RunStatusReport is the pull-based polling view of a run.
type RunStatusReport struct {
	ID             string    `json:"id"`
	Status         RunStatus `json:"status"`
	TotalFound     int       `json:"total_found"`
	TotalProcessed int       `json:"total_processed"`
}
