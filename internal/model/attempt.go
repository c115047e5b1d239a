package model

import "time"

// AttemptStatus is the outcome of one fetch within a run.
type AttemptStatus string

const (
	AttemptSuccess        AttemptStatus = "success"
	AttemptFailed         AttemptStatus = "failed"
	AttemptNotFound       AttemptStatus = "not_found"
	AttemptSkippedPrivate AttemptStatus = "skipped_private"
)

// Valid reports whether s is a known attempt status.
func (s AttemptStatus) Valid() bool {
	switch s {
	case AttemptSuccess, AttemptFailed, AttemptNotFound, AttemptSkippedPrivate:
		return true
	default:
		return false
	}
}

// Attempt is an immutable record of one fetch of one candidate. When no
// candidate row exists yet, CandidateID is nil and Handle carries the raw
// reference. RawPayload is kept for audit only and set on success.
type Attempt struct {
	ID          int64         `json:"id"`
	RunID       string        `json:"run_id"`
	CandidateID *int64        `json:"candidate_id,omitempty"`
	Handle      string        `json:"handle"`
	Platform    Platform      `json:"platform"`
	Status      AttemptStatus `json:"status"`
	Error       string        `json:"error,omitempty"`
	DurationMs  int64         `json:"duration_ms"`
	RawPayload  []byte        `json:"-"`
	CreatedAt   time.Time     `json:"created_at"`
}
