// Package proxypool owns the outbound endpoints shared by every run: health
// scoring, round-robin rotation and the direct-connection fallback.
package proxypool

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/acquisition-cli/internal/config"
	"github.com/sells-group/acquisition-cli/internal/model"
)

// Defaults for rotation and auto-deactivation.
const (
	DefaultRotateAfterFailures = 3
	DefaultDeactivateBelowRate = 20.0
	DefaultMinSampleSize       = 10
)

// ErrEndpointNotFound is returned by operator actions on unknown ids.
var ErrEndpointNotFound = eris.New("endpoint not found")

// Options tunes rotation and health scoring.
type Options struct {
	// RotateAfterFailures is the number of consecutive failures on the
	// current endpoint that triggers a rotation.
	RotateAfterFailures int
	// DeactivateBelowRate is the success-rate floor (0-100).
	DeactivateBelowRate float64
	// MinSampleSize is the request count that must be exceeded before the
	// floor applies.
	MinSampleSize int
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		RotateAfterFailures: DefaultRotateAfterFailures,
		DeactivateBelowRate: DefaultDeactivateBelowRate,
		MinSampleSize:       DefaultMinSampleSize,
	}
}

// OptionsFromConfig maps the pool config section, keeping defaults for
// unset values.
func OptionsFromConfig(cfg config.PoolConfig) Options {
	opts := DefaultOptions()
	if cfg.RotateAfterFailures > 0 {
		opts.RotateAfterFailures = cfg.RotateAfterFailures
	}
	if cfg.DeactivateBelowRate > 0 {
		opts.DeactivateBelowRate = cfg.DeactivateBelowRate
	}
	if cfg.MinSampleSize > 0 {
		opts.MinSampleSize = cfg.MinSampleSize
	}
	return opts
}

// Outcome is the result of one request made through an endpoint.
type Outcome struct {
	Success bool
	Latency time.Duration
	Err     error
}

// Selector is the narrow contract fetch clients depend on.
type Selector interface {
	SelectEndpoint() model.Endpoint
	ReportOutcome(ctx context.Context, ep model.Endpoint, out Outcome)
}

// entry guards one endpoint's counters. saveMu is held from mutation
// through persistence so saves reach the store in mutation order.
type entry struct {
	saveMu sync.Mutex
	mu     sync.Mutex
	ep     model.Endpoint
}

func (e *entry) active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ep.IsActive
}

func (e *entry) snapshot() model.Endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ep
}

// Manager is safe for concurrent use by independent runs. The manager lock
// covers selection state only; counters are locked per endpoint.
type Manager struct {
	opts  Options
	store EndpointStore

	mu          sync.Mutex
	entries     []*entry
	byKey       map[string]*entry
	current     int
	consecutive int

	now func() time.Time
}

// NewManager creates a manager. store may be nil for an in-memory pool.
func NewManager(store EndpointStore, opts Options) *Manager {
	def := DefaultOptions()
	if opts.RotateAfterFailures <= 0 {
		opts.RotateAfterFailures = def.RotateAfterFailures
	}
	if opts.MinSampleSize <= 0 {
		opts.MinSampleSize = def.MinSampleSize
	}
	return &Manager{
		opts:  opts,
		store: store,
		byKey: make(map[string]*entry),
		now:   time.Now,
	}
}

// Load syncs the pool with the persisted endpoints. Endpoints already in
// memory keep their counters, and an endpoint inactive on either side stays
// inactive.
func (m *Manager) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	eps, err := m.store.ListEndpoints(ctx)
	if err != nil {
		return eris.Wrap(err, "proxypool: load")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var cur *entry
	if len(m.entries) > 0 {
		cur = m.entries[m.current]
	}
	old := m.byKey
	m.entries = make([]*entry, 0, len(eps))
	m.byKey = make(map[string]*entry, len(eps))
	m.current = 0
	for _, ep := range eps {
		e, ok := old[ep.Key()]
		if !ok {
			m.appendLocked(ep)
			continue
		}
		e.mu.Lock()
		e.ep.ID = ep.ID
		e.ep.Username, e.ep.Password = ep.Username, ep.Password
		e.ep.IsActive = e.ep.IsActive && ep.IsActive
		e.mu.Unlock()
		if e == cur {
			m.current = len(m.entries)
		}
		m.entries = append(m.entries, e)
		m.byKey[ep.Key()] = e
	}
	if cur == nil || len(m.entries) == 0 || m.entries[m.current] != cur {
		m.consecutive = 0
	}
	zap.L().Info("proxypool: loaded endpoints",
		zap.Int("total", len(eps)),
		zap.Int("active", m.activeCountLocked()),
	)
	return nil
}

// Add registers endpoints, persisting them first when a store is attached.
// Endpoints already in the pool are left untouched.
func (m *Manager) Add(ctx context.Context, eps ...model.Endpoint) error {
	if len(eps) == 0 {
		return nil
	}
	if m.store != nil {
		if _, err := m.store.UpsertEndpoints(ctx, eps); err != nil {
			return eris.Wrap(err, "proxypool: add")
		}
		return m.Load(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ep := range eps {
		if _, ok := m.byKey[ep.Key()]; ok {
			continue
		}
		if ep.SuccessRate == 0 && ep.TotalRequests == 0 {
			ep.SuccessRate = 100
		}
		m.appendLocked(ep)
	}
	return nil
}

func (m *Manager) appendLocked(ep model.Endpoint) {
	e := &entry{ep: ep}
	m.entries = append(m.entries, e)
	m.byKey[ep.Key()] = e
}

// SelectEndpoint returns the endpoint to use for the next request. It
// rotates round-robin after RotateAfterFailures consecutive failures or when
// the current endpoint was deactivated, and falls back to the direct
// endpoint when nothing is active.
func (m *Manager) SelectEndpoint() model.Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.entries) == 0 {
		return model.DirectEndpoint()
	}

	cur := m.entries[m.current]
	if m.consecutive >= m.opts.RotateAfterFailures || !cur.active() {
		next := m.nextActiveLocked()
		if next < 0 {
			zap.L().Warn("proxypool: no active endpoints, using direct connection")
			return model.DirectEndpoint()
		}
		if next != m.current {
			zap.L().Info("proxypool: rotating endpoint",
				zap.String("from", cur.snapshot().Key()),
				zap.String("to", m.entries[next].snapshot().Key()),
				zap.Int("consecutive_failures", m.consecutive),
			)
		}
		m.current = next
		m.consecutive = 0
	}

	e := m.entries[m.current]
	now := m.now()
	e.mu.Lock()
	e.ep.LastUsedAt = &now
	ep := e.ep
	e.mu.Unlock()
	return ep
}

// nextActiveLocked scans forward from the current index, wrapping, and
// returns the first active endpoint. The current endpoint is checked last.
func (m *Manager) nextActiveLocked() int {
	n := len(m.entries)
	for i := 1; i <= n; i++ {
		idx := (m.current + i) % n
		if m.entries[idx].active() {
			return idx
		}
	}
	return -1
}

// ReportOutcome folds one request result into the endpoint's health. It never
// fails: persistence errors are logged and reports for the direct endpoint or
// unknown endpoints are ignored.
func (m *Manager) ReportOutcome(ctx context.Context, ep model.Endpoint, out Outcome) {
	if ep.IsDirect() {
		return
	}

	m.mu.Lock()
	e, ok := m.byKey[ep.Key()]
	isCurrent := ok && len(m.entries) > 0 && m.entries[m.current] == e
	m.mu.Unlock()
	if !ok {
		zap.L().Debug("proxypool: outcome for unknown endpoint", zap.String("endpoint", ep.Key()))
		return
	}

	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	e.mu.Lock()
	e.ep.TotalRequests++
	n := float64(e.ep.TotalRequests)
	score := 0.0
	if out.Success {
		score = 100
	} else {
		e.ep.FailedRequests++
	}
	e.ep.SuccessRate = (e.ep.SuccessRate*(n-1) + score) / n

	deactivated := false
	if e.ep.IsActive && e.ep.TotalRequests > m.opts.MinSampleSize && e.ep.SuccessRate < m.opts.DeactivateBelowRate {
		e.ep.IsActive = false
		deactivated = true
	}
	updated := e.ep
	e.mu.Unlock()

	if isCurrent {
		m.mu.Lock()
		if len(m.entries) > 0 && m.entries[m.current] == e {
			if out.Success {
				m.consecutive = 0
			} else {
				m.consecutive++
			}
		}
		m.mu.Unlock()
	}

	log := zap.L().With(zap.String("endpoint", updated.Key()))
	if deactivated {
		log.Warn("proxypool: endpoint deactivated",
			zap.Float64("success_rate", updated.SuccessRate),
			zap.Int("total_requests", updated.TotalRequests),
		)
	} else if !out.Success {
		log.Debug("proxypool: request failed", zap.Error(out.Err), zap.Duration("latency", out.Latency))
	}

	if m.store != nil {
		if err := m.store.SaveEndpointStats(ctx, updated); err != nil {
			log.Error("proxypool: persist endpoint stats", zap.Error(err))
		}
	}
}

// Reset reactivates an endpoint and clears its counters. Deactivation is
// never undone automatically.
func (m *Manager) Reset(ctx context.Context, id int64) (model.Endpoint, error) {
	m.mu.Lock()
	var target *entry
	for _, e := range m.entries {
		if e.snapshot().ID == id {
			target = e
			break
		}
	}
	m.mu.Unlock()
	if target == nil {
		return model.Endpoint{}, eris.Wrapf(ErrEndpointNotFound, "proxypool: reset %d", id)
	}

	target.saveMu.Lock()
	defer target.saveMu.Unlock()

	target.mu.Lock()
	target.ep.IsActive = true
	target.ep.SuccessRate = 100
	target.ep.TotalRequests = 0
	target.ep.FailedRequests = 0
	ep := target.ep
	target.mu.Unlock()

	m.mu.Lock()
	if len(m.entries) > 0 && m.entries[m.current] == target {
		m.consecutive = 0
	}
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.ResetEndpoint(ctx, ep.ID); err != nil {
			return ep, eris.Wrap(err, "proxypool: reset")
		}
	}
	zap.L().Info("proxypool: endpoint reset", zap.String("endpoint", ep.Key()))
	return ep, nil
}

// Snapshot returns a copy of every endpoint in pool order.
func (m *Manager) Snapshot() []model.Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Endpoint, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.snapshot()
	}
	return out
}

// ActiveCount returns the number of active endpoints.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeCountLocked()
}

func (m *Manager) activeCountLocked() int {
	n := 0
	for _, e := range m.entries {
		if e.active() {
			n++
		}
	}
	return n
}
