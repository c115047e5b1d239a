package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/acquisition-cli/internal/account"
	"github.com/sells-group/acquisition-cli/internal/model"
)

// memLayer is an in-memory Layer with optional snapshot support.
type memLayer struct {
	mu        sync.Mutex
	name      model.Layer
	records   []model.DuplicateMatch
	urls      map[int64]string
	err       error
	queries   []Query
	snapshots map[int64]model.DetectionSnapshot
}

func newMemLayer(name model.Layer, records ...model.DuplicateMatch) *memLayer {
	return &memLayer{name: name, records: records, urls: map[int64]string{}, snapshots: map[int64]model.DetectionSnapshot{}}
}

func (l *memLayer) Name() model.Layer { return l.name }

func (l *memLayer) Find(_ context.Context, q Query) ([]model.DuplicateMatch, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queries = append(l.queries, q)
	if l.err != nil {
		return nil, l.err
	}
	var out []model.DuplicateMatch
	for _, r := range l.records {
		if q.ExcludeID > 0 && r.RecordID == q.ExcludeID {
			continue
		}
		m := r
		m.Layer = l.name
		if h, ok := q.Handles[r.Platform]; ok && (r.Handle == h ||
			(q.MatchURLContains && l.urls[r.RecordID] != "" && contains(l.urls[r.RecordID], h))) {
			m.Basis = basis(q, m, l.urls[r.RecordID])
			out = append(out, m)
			continue
		}
		if q.Email != "" && r.Email == q.Email {
			m.Basis = model.MatchEmail
			out = append(out, m)
		}
	}
	return out, nil
}

func (l *memLayer) WriteSnapshot(_ context.Context, id int64, snap model.DetectionSnapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snapshots[id] = snap
	return nil
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

// memAccounts is an in-memory account.Store that also feeds a candidate
// layer, so admissions become visible to later reconciliation.
type memAccounts struct {
	mu        sync.Mutex
	nextID    int64
	byKey     map[string]*model.Candidate
	layer     *memLayer
	countries map[int64]string
	// preempt simulates a concurrent writer claiming keys before InsertBatch.
	preempt map[string]bool
}

var _ account.Store = (*memAccounts)(nil)

func newMemAccounts(layer *memLayer) *memAccounts {
	return &memAccounts{byKey: map[string]*model.Candidate{}, layer: layer, countries: map[int64]string{}, preempt: map[string]bool{}}
}

func key(p model.Platform, h string) string { return string(p) + "/" + h }

func (m *memAccounts) seed(c model.Candidate) model.Candidate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(c)
}

func (m *memAccounts) insertLocked(c model.Candidate) model.Candidate {
	m.nextID++
	c.ID = m.nextID
	cp := c
	m.byKey[key(c.Platform, c.Handle)] = &cp
	m.countries[c.ID] = c.Country
	if m.layer != nil {
		m.layer.mu.Lock()
		m.layer.records = append(m.layer.records, model.DuplicateMatch{
			RecordID: c.ID, Platform: c.Platform, Handle: c.Handle, Email: c.Email, Country: c.Country,
		})
		m.layer.mu.Unlock()
	}
	return c
}

func (m *memAccounts) Get(_ context.Context, id int64) (*model.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.byKey {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memAccounts) GetByHandle(_ context.Context, p model.Platform, h string) (*model.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.byKey[key(p, h)]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (m *memAccounts) Insert(_ context.Context, c *model.Candidate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byKey[key(c.Platform, c.Handle)]; ok {
		return false, nil
	}
	*c = m.insertLocked(*c)
	return true, nil
}

func (m *memAccounts) InsertBatch(_ context.Context, cs []model.Candidate) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, c := range cs {
		k := key(c.Platform, c.Handle)
		if m.preempt[k] {
			m.insertLocked(model.Candidate{Platform: c.Platform, Handle: c.Handle, Country: "ZZ"})
			continue
		}
		if _, ok := m.byKey[k]; ok {
			continue
		}
		m.insertLocked(c)
		n++
	}
	return n, nil
}

func (m *memAccounts) UpdateCountry(_ context.Context, id int64, country string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.countries[id] = country
	for _, c := range m.byKey {
		if c.ID == id {
			c.Country = country
		}
	}
	return nil
}

func (m *memAccounts) UpdateProfile(context.Context, int64, model.Profile) error { return nil }

func (m *memAccounts) SetActive(context.Context, int64, bool) error { return nil }

func (m *memAccounts) ListForEnrichment(context.Context, account.EnrichmentFilter) ([]model.Candidate, error) {
	return nil, nil
}

func (m *memAccounts) SampleSeeds(context.Context, model.Platform, string, int) ([]model.Candidate, error) {
	return nil, nil
}

func (m *memAccounts) CountDiscoveredSince(context.Context, model.Platform, string, time.Time) (int, error) {
	return 0, nil
}

func (m *memAccounts) Stats(context.Context, model.StatsScope) (model.Stats, error) {
	return model.Stats{}, nil
}

func (m *memAccounts) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byKey)
}
