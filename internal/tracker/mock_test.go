package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/acquisition-cli/internal/model"
)

// memStore is an in-memory Store with the same conditional semantics as the
// Postgres implementation.
type memStore struct {
	mu       sync.Mutex
	runs     map[string]*model.Run
	attempts []model.Attempt
}

func newMemStore() *memStore {
	return &memStore{runs: make(map[string]*model.Run)}
}

func (m *memStore) CreateRun(_ context.Context, run *model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *memStore) GetRun(_ context.Context, runID string) (*model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, eris.Wrap(ErrRunNotFound, runID)
	}
	cp := *run
	return &cp, nil
}

func (m *memStore) ListRuns(_ context.Context, _ RunFilter) ([]model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Run
	for _, r := range m.runs {
		out = append(out, *r)
	}
	return out, nil
}

func (m *memStore) UpdateProgress(_ context.Context, runID string, processed, found int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok || run.Status != model.RunStatusRunning {
		return false, nil
	}
	run.TotalProcessed = max(run.TotalProcessed, processed)
	run.TotalFound = max(run.TotalFound, found)
	return true, nil
}

func (m *memStore) CompleteRun(_ context.Context, runID string, found, processed int, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok || run.Status != model.RunStatusRunning {
		return false, nil
	}
	run.Status = model.RunStatusCompleted
	run.TotalFound = max(run.TotalFound, found)
	run.TotalProcessed = max(run.TotalProcessed, processed)
	run.CompletedAt = &at
	return true, nil
}

func (m *memStore) FailRun(_ context.Context, runID string, errs []string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok || run.Status != model.RunStatusRunning {
		return false, nil
	}
	run.Status = model.RunStatusFailed
	run.Errors = append(run.Errors, errs...)
	run.CompletedAt = &at
	return true, nil
}

func (m *memStore) InsertAttempt(_ context.Context, a *model.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = int64(len(m.attempts) + 1)
	m.attempts = append(m.attempts, *a)
	return nil
}

func (m *memStore) ListAttempts(_ context.Context, runID string, _ int) ([]model.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Attempt
	for _, a := range m.attempts {
		if a.RunID == runID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) CountAttempts(_ context.Context, _ time.Time) (AttemptCounts, error) {
	return AttemptCounts{}, nil
}

func (m *memStore) CountRuns(_ context.Context, _ time.Time) (RunCounts, error) {
	return RunCounts{}, nil
}
