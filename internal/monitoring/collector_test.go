package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/acquisition-cli/internal/model"
	"github.com/sells-group/acquisition-cli/internal/tracker"
)

type mockActivity struct {
	runs      tracker.RunCounts
	attempts  tracker.AttemptCounts
	runErr    error
	attErr    error
	sinceRuns time.Time
}

func (m *mockActivity) CountRuns(_ context.Context, since time.Time) (tracker.RunCounts, error) {
	m.sinceRuns = since
	return m.runs, m.runErr
}

func (m *mockActivity) CountAttempts(context.Context, time.Time) (tracker.AttemptCounts, error) {
	return m.attempts, m.attErr
}

type mockPool []model.Endpoint

func (p mockPool) Snapshot() []model.Endpoint { return p }

type mockCandidates struct {
	stats model.Stats
	err   error
}

func (m *mockCandidates) Stats(context.Context, model.StatsScope) (model.Stats, error) {
	return m.stats, m.err
}

func TestCollector_Collect(t *testing.T) {
	act := &mockActivity{
		runs:     tracker.RunCounts{Total: 10, Running: 2, Completed: 6, Failed: 2},
		attempts: tracker.AttemptCounts{Total: 40, Success: 30, Failed: 8, NotFound: 1, SkippedPrivate: 1},
	}
	pool := mockPool{
		model.DirectEndpoint(),
		{ID: 1, Host: "10.0.0.1", Port: 1080, Protocol: "socks5", IsActive: true, SuccessRate: 90},
		{ID: 2, Host: "10.0.0.2", Port: 1080, Protocol: "socks5", IsActive: false, SuccessRate: 10},
	}
	cands := &mockCandidates{stats: model.Stats{TotalCandidates: 500, MissingData: 120}}
	c := NewCollector(act, pool, cands)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, now.Add(-24*time.Hour), act.sinceRuns)
	assert.Equal(t, 10, snap.RunsTotal)
	assert.Equal(t, 2, snap.RunsRunning)
	assert.InDelta(t, 0.25, snap.RunFailRate, 0.001)
	assert.Equal(t, 40, snap.AttemptsTotal)
	assert.InDelta(t, 0.2, snap.AttemptFailRate, 0.001)
	assert.Equal(t, 2, snap.EndpointsTotal)
	assert.Equal(t, 1, snap.EndpointsActive)
	assert.InDelta(t, 50.0, snap.PoolAvgSuccessRate, 0.001)
	assert.Equal(t, 500, snap.CandidatesTotal)
	assert.Equal(t, 120, snap.CandidatesMissingData)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.Equal(t, now, snap.CollectedAt)
}

func TestCollector_EmptyWindow(t *testing.T) {
	c := NewCollector(&mockActivity{}, nil, nil)

	snap, err := c.Collect(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, snap.RunFailRate)
	assert.Zero(t, snap.AttemptFailRate)
	assert.Zero(t, snap.EndpointsTotal)
}

func TestCollector_RunCountError(t *testing.T) {
	c := NewCollector(&mockActivity{runErr: errors.New("db down")}, nil, nil)

	_, err := c.Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count runs")
}

func TestCollector_AttemptCountError(t *testing.T) {
	c := NewCollector(&mockActivity{attErr: errors.New("db down")}, nil, nil)

	_, err := c.Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count attempts")
}

func TestCollector_CandidateStatsError(t *testing.T) {
	c := NewCollector(&mockActivity{}, nil, &mockCandidates{err: errors.New("timeout")})

	_, err := c.Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "candidate stats")
}
