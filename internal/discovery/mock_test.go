package discovery

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/acquisition-cli/internal/account"
	"github.com/sells-group/acquisition-cli/internal/model"
	"github.com/sells-group/acquisition-cli/internal/reconcile"
	"github.com/sells-group/acquisition-cli/internal/tracker"
	"github.com/sells-group/acquisition-cli/pkg/platform"
)

func noSleep(context.Context, time.Duration) error { return nil }

// fakeTracker is an in-memory Tracker with the same transition rules as the
// real one.
type fakeTracker struct {
	mu       sync.Mutex
	runs     map[string]*model.Run
	attempts []model.Attempt
	next     int
	busy     map[string]bool
	// onProgress runs after each accepted progress update.
	onProgress func(run *model.Run)
	// isRunningCalls counts status checks.
	isRunningCalls int
	attemptErr     error
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{runs: map[string]*model.Run{}, busy: map[string]bool{}}
}

func (f *fakeTracker) StartRun(_ context.Context, cfg model.RunConfig) (*model.Run, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	run := &model.Run{
		ID:        fmt.Sprintf("run-%d", f.next),
		Config:    cfg,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	f.runs[run.ID] = run
	cp := *run
	return &cp, nil
}

func (f *fakeTracker) RecordAttempt(_ context.Context, a model.Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attemptErr != nil {
		return f.attemptErr
	}
	f.attempts = append(f.attempts, a)
	return nil
}

func (f *fakeTracker) UpdateProgress(_ context.Context, runID string, processed, found int) error {
	f.mu.Lock()
	run, ok := f.runs[runID]
	if !ok {
		f.mu.Unlock()
		return tracker.ErrRunNotFound
	}
	if run.Status != model.RunStatusRunning {
		f.mu.Unlock()
		return eris.Wrap(tracker.ErrRunTerminal, "update progress")
	}
	run.TotalProcessed = max(run.TotalProcessed, processed)
	run.TotalFound = max(run.TotalFound, found)
	hook := f.onProgress
	f.mu.Unlock()
	if hook != nil {
		hook(run)
	}
	return nil
}

func (f *fakeTracker) finish(runID string, status model.RunStatus, found, processed int, errs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return tracker.ErrRunNotFound
	}
	if run.Status != model.RunStatusRunning {
		return eris.Wrap(tracker.ErrRunTerminal, "finish")
	}
	now := time.Now().UTC()
	run.Status = status
	run.CompletedAt = &now
	run.Errors = append(run.Errors, errs...)
	if status == model.RunStatusCompleted {
		run.TotalFound = found
		run.TotalProcessed = processed
	}
	return nil
}

func (f *fakeTracker) CompleteRun(_ context.Context, runID string, found, processed int) error {
	return f.finish(runID, model.RunStatusCompleted, found, processed, nil)
}

func (f *fakeTracker) FailRun(_ context.Context, runID string, errs []string) error {
	return f.finish(runID, model.RunStatusFailed, 0, 0, errs)
}

func (f *fakeTracker) Cancel(ctx context.Context, runID string) error {
	return f.FailRun(ctx, runID, []string{tracker.CancelReason})
}

func (f *fakeTracker) IsRunning(_ context.Context, runID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.isRunningCalls++
	run, ok := f.runs[runID]
	if !ok {
		return false, tracker.ErrRunNotFound
	}
	return run.Status == model.RunStatusRunning, nil
}

func (f *fakeTracker) BeginAttempt(p model.Platform, h string) (func(), bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := string(p) + "/" + h
	if f.busy[key] {
		return nil, false
	}
	f.busy[key] = true
	return func() {
		f.mu.Lock()
		delete(f.busy, key)
		f.mu.Unlock()
	}, true
}

func (f *fakeTracker) Get(_ context.Context, runID string) (*model.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return nil, eris.Wrap(tracker.ErrRunNotFound, runID)
	}
	cp := *run
	return &cp, nil
}

func (f *fakeTracker) Status(ctx context.Context, runID string) (*model.RunStatusReport, error) {
	run, err := f.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &model.RunStatusReport{ID: run.ID, Status: run.Status, TotalFound: run.TotalFound, TotalProcessed: run.TotalProcessed}, nil
}

func (f *fakeTracker) ListRuns(_ context.Context, filter tracker.RunFilter) ([]model.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Run
	for _, r := range f.runs {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeTracker) ListAttempts(_ context.Context, runID string, _ int) ([]model.Attempt, error) {
	return f.attemptsFor(runID), nil
}

func (f *fakeTracker) LastRun(ctx context.Context) (*model.Run, error) {
	runs, _ := f.ListRuns(ctx, tracker.RunFilter{Limit: 1})
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

func (f *fakeTracker) attemptsFor(runID string) []model.Attempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Attempt
	for _, a := range f.attempts {
		if a.RunID == runID {
			out = append(out, a)
		}
	}
	return out
}

func (f *fakeTracker) run(id string) model.Run {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.runs[id]
}

// fakeAccounts is an in-memory account.Store.
type fakeAccounts struct {
	mu         sync.Mutex
	nextID     int64
	byID       map[int64]*model.Candidate
	dailyCount map[string]int
	seeds      []model.Candidate
	enrichErr  error
	lastFilter account.EnrichmentFilter
}

var _ account.Store = (*fakeAccounts)(nil)

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{byID: map[int64]*model.Candidate{}, dailyCount: map[string]int{}}
}

func (f *fakeAccounts) add(c model.Candidate) model.Candidate {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c.ID = f.nextID
	c.Active = true
	f.byID[c.ID] = &c
	return c
}

func (f *fakeAccounts) Get(_ context.Context, id int64) (*model.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.byID[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeAccounts) GetByHandle(_ context.Context, p model.Platform, h string) (*model.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.byID {
		if c.Platform == p && c.Handle == h {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeAccounts) Insert(ctx context.Context, c *model.Candidate) (bool, error) {
	if existing, _ := f.GetByHandle(ctx, c.Platform, c.Handle); existing != nil {
		return false, nil
	}
	*c = f.add(*c)
	return true, nil
}

func (f *fakeAccounts) InsertBatch(ctx context.Context, cs []model.Candidate) (int64, error) {
	var n int64
	for i := range cs {
		ok, _ := f.Insert(ctx, &cs[i])
		if ok {
			n++
		}
	}
	return n, nil
}

func (f *fakeAccounts) UpdateCountry(_ context.Context, id int64, country string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[id].Country = country
	return nil
}

func (f *fakeAccounts) UpdateProfile(_ context.Context, id int64, p model.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[id].Profile = &p
	return nil
}

func (f *fakeAccounts) SetActive(_ context.Context, id int64, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[id].Active = active
	return nil
}

func (f *fakeAccounts) ListForEnrichment(_ context.Context, flt account.EnrichmentFilter) ([]model.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = flt
	if f.enrichErr != nil {
		return nil, f.enrichErr
	}
	ids := make([]int64, 0, len(f.byID))
	for id := range f.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []model.Candidate
	for _, id := range ids {
		c := f.byID[id]
		if flt.Platform != "" && c.Platform != flt.Platform {
			continue
		}
		if flt.OnlyMissingData && c.HasProfile() {
			continue
		}
		out = append(out, *c)
		if flt.Limit > 0 && len(out) == flt.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeAccounts) SampleSeeds(_ context.Context, p model.Platform, _ string, n int) ([]model.Candidate, error) {
	var out []model.Candidate
	for _, s := range f.seeds {
		if s.Platform == p && len(out) < n {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeAccounts) CountDiscoveredSince(_ context.Context, p model.Platform, source string, _ time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dailyCount[string(p)+"/"+source], nil
}

func (f *fakeAccounts) Stats(context.Context, model.StatsScope) (model.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := model.Stats{TotalCandidates: len(f.byID)}
	for _, c := range f.byID {
		if c.HasProfile() {
			s.WithData++
		} else {
			s.MissingData++
		}
	}
	return s, nil
}

func (f *fakeAccounts) candidates() []model.Candidate {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Candidate, 0, len(f.byID))
	for _, c := range f.byID {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// fakeAdmitter admits by exact (platform, handle) against fakeAccounts.
type fakeAdmitter struct {
	accounts *fakeAccounts
	err      error
	admitted []model.Candidate
	imports  []reconcile.ImportRequest
}

func (a *fakeAdmitter) Admit(ctx context.Context, c model.Candidate) (reconcile.Admission, error) {
	if a.err != nil {
		return reconcile.Admission{}, a.err
	}
	a.admitted = append(a.admitted, c)
	if existing, _ := a.accounts.GetByHandle(ctx, c.Platform, c.Handle); existing != nil {
		return reconcile.Admission{Outcome: reconcile.Existing, Candidate: *existing}, nil
	}
	if _, err := a.accounts.Insert(ctx, &c); err != nil {
		return reconcile.Admission{}, err
	}
	return reconcile.Admission{Outcome: reconcile.Created, Candidate: c}, nil
}

func (a *fakeAdmitter) Import(_ context.Context, req reconcile.ImportRequest) (model.ImportResult, error) {
	a.imports = append(a.imports, req)
	return model.ImportResult{Created: len(req.Values)}, nil
}

// fakeClient serves canned pages and profiles.
type fakeClient struct {
	mu        sync.Mutex
	tags      map[string][]platform.Account
	locations map[string][]platform.Account
	followers map[string][]platform.Account
	profiles  map[string]int // follower counts; default 1000
	private   map[string]bool
	missing   map[string]bool
	failTags  map[string]error
	calls     []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		tags:      map[string][]platform.Account{},
		locations: map[string][]platform.Account{},
		followers: map[string][]platform.Account{},
		profiles:  map[string]int{},
		private:   map[string]bool{},
		missing:   map[string]bool{},
		failTags:  map[string]error{},
	}
}

func (c *fakeClient) record(call string) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
}

func (c *fakeClient) TagPage(_ context.Context, _ model.Platform, term string, sort platform.Sort) (*platform.Page, error) {
	c.record("tag:" + term + ":" + string(sort))
	if err := c.failTags[term]; err != nil {
		return nil, err
	}
	if sort != platform.SortTop {
		return &platform.Page{}, nil
	}
	return &platform.Page{Accounts: c.tags[term]}, nil
}

func (c *fakeClient) LocationPage(_ context.Context, _ model.Platform, id string) (*platform.Page, error) {
	c.record("location:" + id)
	return &platform.Page{Accounts: c.locations[id]}, nil
}

func (c *fakeClient) Followers(_ context.Context, _ model.Platform, h string, limit int) (*platform.Page, error) {
	c.record("followers:" + h)
	accs := c.followers[h]
	if limit > 0 && len(accs) > limit {
		accs = accs[:limit]
	}
	return &platform.Page{Accounts: accs}, nil
}

func (c *fakeClient) Profile(_ context.Context, _ model.Platform, h string) (*platform.Profile, error) {
	c.record("profile:" + h)
	if c.missing[h] {
		return nil, platform.ErrNotFound
	}
	if c.private[h] {
		return nil, platform.ErrPrivate
	}
	n, ok := c.profiles[h]
	if !ok {
		n = 1000
	}
	return &platform.Profile{Handle: h, FollowerCount: n, Raw: []byte(`{"handle":"` + h + `"}`)}, nil
}

func (c *fakeClient) IsPrivate(_ context.Context, _ model.Platform, h string) (bool, error) {
	c.record("privacy:" + h)
	return c.private[h], nil
}

func (c *fakeClient) count(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if len(call) >= len(prefix) && call[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func accounts(prefix string, n int) []platform.Account {
	out := make([]platform.Account, n)
	for i := range out {
		out[i] = platform.Account{Handle: fmt.Sprintf("%s%03d", prefix, i)}
	}
	return out
}

type fixture struct {
	tracker  *fakeTracker
	accounts *fakeAccounts
	admitter *fakeAdmitter
	client   *fakeClient
	deps     Deps
}

func newFixture() *fixture {
	f := &fixture{
		tracker:  newFakeTracker(),
		accounts: newFakeAccounts(),
		client:   newFakeClient(),
	}
	f.admitter = &fakeAdmitter{accounts: f.accounts}
	f.deps = Deps{
		Tracker:  f.tracker,
		Admitter: f.admitter,
		Accounts: f.accounts,
		Client:   f.client,
		Sleep:    noSleep,
	}
	return f
}

// fakeListings serves listing bodies by URL.
type fakeListings map[string]string

func (l fakeListings) Download(_ context.Context, url string) (io.ReadCloser, error) {
	body, ok := l[url]
	if !ok {
		return nil, eris.Errorf("fetch %s: 404", url)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (l fakeListings) DownloadToFile(context.Context, string, string) (int64, error) {
	return 0, eris.New("not supported")
}
