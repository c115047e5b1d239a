package model

import "time"

// Source tags identify which phase or method found a candidate.
const (
	SourceTag      = "tag"
	SourceKeyword  = "keyword"
	SourceChain    = "chain"
	SourceGeo      = "geo"
	SourceExternal = "external"
	SourceImport   = "import"
)

// Profile is the enriched profile data captured for a candidate.
type Profile struct {
	FullName       string    `json:"full_name,omitempty"`
	Bio            string    `json:"bio,omitempty"`
	FollowerCount  int       `json:"follower_count"`
	FollowingCount int       `json:"following_count"`
	PostCount      int       `json:"post_count"`
	IsPrivate      bool      `json:"is_private"`
	IsVerified     bool      `json:"is_verified"`
	ExternalURL    string    `json:"external_url,omitempty"`
	EnrichedAt     time.Time `json:"enriched_at"`
}

// Candidate is a discovered account admitted into the candidate store.
// (Platform, Handle) is unique; Handle is always normalized.
type Candidate struct {
	ID        int64     `json:"id" db:"id"`
	Platform  Platform  `json:"platform" db:"platform"`
	Handle    string    `json:"handle" db:"handle"`
	Source    string    `json:"source" db:"source"`
	Email     string    `json:"email,omitempty" db:"email"`
	Profile   *Profile  `json:"profile,omitempty" db:"profile"`
	Active    bool      `json:"active" db:"active"`
	Country   string    `json:"country,omitempty" db:"country"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasProfile reports whether the candidate carries enriched profile data.
func (c *Candidate) HasProfile() bool {
	return c.Profile != nil && !c.Profile.EnrichedAt.IsZero()
}

// WithinFollowerBounds reports whether the follower count falls inside
// [min, max]. A zero bound is unbounded.
func (p *Profile) WithinFollowerBounds(minFollowers, maxFollowers int) bool {
	if minFollowers > 0 && p.FollowerCount < minFollowers {
		return false
	}
	if maxFollowers > 0 && p.FollowerCount > maxFollowers {
		return false
	}
	return true
}

// ImportResult summarizes a bulk admission of externally sourced handles.
type ImportResult struct {
	Created                int `json:"created"`
	Updated                int `json:"updated"`
	BatchDuplicatesSkipped int `json:"batch_duplicates_skipped"`
	StoreDuplicatesSkipped int `json:"store_duplicates_skipped"`
	Invalid                int `json:"invalid"`
}

// StatsScope narrows aggregate reporting.
type StatsScope struct {
	Platform Platform `json:"platform,omitempty"`
	Country  string   `json:"country,omitempty"`
	Source   string   `json:"source,omitempty"`
}

// Stats is the aggregate reporting view over candidates and attempts.
type Stats struct {
	TotalCandidates int  `json:"total_candidates"`
	WithData        int  `json:"with_data"`
	MissingData     int  `json:"missing_data"`
	FailedAttempts  int  `json:"failed_attempts"`
	NeverAttempted  int  `json:"never_attempted"`
	LastRun         *Run `json:"last_run,omitempty"`
}
