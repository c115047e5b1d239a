package model

import "time"

// Layer is one of the three independently populated account stores.
type Layer string

// Layers in precedence order: admitted candidates are the most trusted,
// raw applications the least.
const (
	LayerCandidate   Layer = "candidate"
	LayerProspect    Layer = "prospect"
	LayerApplication Layer = "application"
)

// MatchBasis records why a stored record matched.
type MatchBasis string

const (
	MatchHandle      MatchBasis = "handle"
	MatchURLContains MatchBasis = "url_contains"
	MatchEmail       MatchBasis = "email"
)

// ObservedIdentity is a newly observed identity to reconcile. Handles maps
// each platform to a raw or normalized handle; Primary is the platform the
// identity was observed on.
type ObservedIdentity struct {
	Primary Platform            `json:"primary"`
	Handles map[Platform]string `json:"handles"`
	Email   string              `json:"email,omitempty"`
}

// DuplicateMatch is one stored record matching an observed identity.
type DuplicateMatch struct {
	Layer    Layer      `json:"layer"`
	RecordID int64      `json:"record_id"`
	Platform Platform   `json:"platform,omitempty"`
	Handle   string     `json:"handle,omitempty"`
	Email    string     `json:"email,omitempty"`
	Country  string     `json:"country,omitempty"`
	Basis    MatchBasis `json:"basis"`
	Status   string     `json:"status,omitempty"`
}

// DuplicateSet is the ephemeral result of one reconciliation query.
type DuplicateSet struct {
	Matches []DuplicateMatch `json:"matches"`
}

// Empty reports whether nothing matched.
func (s *DuplicateSet) Empty() bool {
	return s == nil || len(s.Matches) == 0
}

// ExactCandidate returns the admitted-store match on the exact normalized
// handle and platform, if any.
func (s *DuplicateSet) ExactCandidate(platform Platform, handle string) (DuplicateMatch, bool) {
	if s == nil {
		return DuplicateMatch{}, false
	}
	for _, m := range s.Matches {
		if m.Layer == LayerCandidate && m.Basis == MatchHandle && m.Platform == platform && m.Handle == handle {
			return m, true
		}
	}
	return DuplicateMatch{}, false
}

// ForReview returns matches that need manual review: everything except the
// exact admitted-store match.
func (s *DuplicateSet) ForReview(platform Platform, handle string) []DuplicateMatch {
	if s == nil {
		return nil
	}
	var out []DuplicateMatch
	for _, m := range s.Matches {
		if m.Layer == LayerCandidate && m.Basis == MatchHandle && m.Platform == platform && m.Handle == handle {
			continue
		}
		out = append(out, m)
	}
	return out
}

// IDs returns the record ids matched in the given layer.
func (s *DuplicateSet) IDs(layer Layer) []int64 {
	if s == nil {
		return nil
	}
	var ids []int64
	for _, m := range s.Matches {
		if m.Layer == layer {
			ids = append(ids, m.RecordID)
		}
	}
	return ids
}

// DetectionSnapshot is persisted onto a prospect or application record for
// later manual review. It is never a source of truth.
type DetectionSnapshot struct {
	CandidateIDs   []int64   `json:"candidate_ids,omitempty"`
	ProspectIDs    []int64   `json:"prospect_ids,omitempty"`
	ApplicationIDs []int64   `json:"application_ids,omitempty"`
	DetectedAt     time.Time `json:"detected_at"`
	AutoDetected   bool      `json:"auto_detected"`
}

// Snapshot builds a detection snapshot from the set.
func (s *DuplicateSet) Snapshot(at time.Time, auto bool) DetectionSnapshot {
	return DetectionSnapshot{
		CandidateIDs:   s.IDs(LayerCandidate),
		ProspectIDs:    s.IDs(LayerProspect),
		ApplicationIDs: s.IDs(LayerApplication),
		DetectedAt:     at,
		AutoDetected:   auto,
	}
}
