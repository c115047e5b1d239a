package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/acquisition-cli/internal/model"
	"github.com/sells-group/acquisition-cli/internal/proxypool"
	"github.com/sells-group/acquisition-cli/internal/resilience"
)

type recordingSelector struct {
	mu       sync.Mutex
	outcomes []proxypool.Outcome
}

func (s *recordingSelector) SelectEndpoint() model.Endpoint {
	return model.DirectEndpoint()
}

func (s *recordingSelector) ReportOutcome(_ context.Context, _ model.Endpoint, out proxypool.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, out)
}

func (s *recordingSelector) results() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []bool
	for _, o := range s.outcomes {
		out = append(out, o.Success)
	}
	return out
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func newTestClient(url string, sel proxypool.Selector) Client {
	return NewClient("test-key",
		WithBaseURL(url),
		WithSelector(sel),
		WithRetry(fastRetry()),
	)
}

func TestTagPage_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/instagram/tags/fitness", r.URL.Path)
		assert.Equal(t, "recent", r.URL.Query().Get("sort"))
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"accounts":[{"handle":"anna"},{"handle":"ben","is_private":true}],"next_cursor":"c2"}`))
	}))
	defer srv.Close()

	sel := &recordingSelector{}
	page, err := newTestClient(srv.URL, sel).TagPage(context.Background(), model.PlatformInstagram, "fitness", SortRecent)
	require.NoError(t, err)
	require.Len(t, page.Accounts, 2)
	assert.Equal(t, "anna", page.Accounts[0].Handle)
	assert.True(t, page.Accounts[1].IsPrivate)
	assert.Equal(t, "c2", page.NextCursor)
	assert.NotEmpty(t, page.Raw)
	assert.Equal(t, []bool{true}, sel.results())
}

func TestProfile_Success(t *testing.T) {
	t.Parallel()

	want := Profile{Handle: "anna", FullName: "Anna", FollowerCount: 12000, PostCount: 310, IsVerified: true}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tiktok/users/anna", r.URL.Path)
		_ = json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	prof, err := newTestClient(srv.URL, nil).Profile(context.Background(), model.PlatformTikTok, "anna")
	require.NoError(t, err)
	assert.Equal(t, 12000, prof.FollowerCount)
	assert.True(t, prof.IsVerified)

	at := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	m := prof.ToModel(at)
	assert.Equal(t, 310, m.PostCount)
	assert.Equal(t, at, m.EnrichedAt)
}

func TestProfile_PrivateAccount(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"handle":"hidden","follower_count":40,"is_private":true}`))
	}))
	defer srv.Close()

	sel := &recordingSelector{}
	prof, err := newTestClient(srv.URL, sel).Profile(context.Background(), model.PlatformInstagram, "hidden")
	require.Error(t, err)
	assert.Nil(t, prof)
	assert.True(t, errors.Is(err, ErrPrivate))
	assert.Equal(t, []bool{true}, sel.results())
}

func TestProfile_CancelledRequestNotReported(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	sel := &recordingSelector{}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := newTestClient(srv.URL, sel).Profile(ctx, model.PlatformInstagram, "anna")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Empty(t, sel.results())
}

func TestProfile_NotFoundIsHealthyAndNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	sel := &recordingSelector{}
	_, err := newTestClient(srv.URL, sel).Profile(context.Background(), model.PlatformInstagram, "ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []bool{true}, sel.results())
}

func TestProfile_RetriesTransient(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"handle":"anna","follower_count":5}`))
	}))
	defer srv.Close()

	sel := &recordingSelector{}
	prof, err := newTestClient(srv.URL, sel).Profile(context.Background(), model.PlatformInstagram, "anna")
	require.NoError(t, err)
	assert.Equal(t, 5, prof.FollowerCount)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []bool{false, false, true}, sel.results())
}

func TestProfile_ServerErrorExhaustsRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`upstream down`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, nil).Profile(context.Background(), model.PlatformInstagram, "anna")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, int32(3), calls.Load())
}

func TestProfile_BadRequestNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, nil).Profile(context.Background(), model.PlatformInstagram, "anna")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestFollowers_Limit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/instagram/users/seed/followers", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"accounts":[{"handle":"a"},{"handle":"b"},{"handle":"c"}]}`))
	}))
	defer srv.Close()

	page, err := newTestClient(srv.URL, nil).Followers(context.Background(), model.PlatformInstagram, "seed", 2)
	require.NoError(t, err)
	assert.Len(t, page.Accounts, 2)
}

func TestLocationPage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/instagram/locations/213385402", r.URL.Path)
		_, _ = w.Write([]byte(`{"accounts":[{"handle":"berlin.eats"}]}`))
	}))
	defer srv.Close()

	page, err := newTestClient(srv.URL, nil).LocationPage(context.Background(), model.PlatformInstagram, "213385402")
	require.NoError(t, err)
	require.Len(t, page.Accounts, 1)
	assert.Equal(t, "berlin.eats", page.Accounts[0].Handle)
}

func TestIsPrivate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/instagram/users/hidden/privacy", r.URL.Path)
		_, _ = w.Write([]byte(`{"is_private":true}`))
	}))
	defer srv.Close()

	private, err := newTestClient(srv.URL, nil).IsPrivate(context.Background(), model.PlatformInstagram, "hidden")
	require.NoError(t, err)
	assert.True(t, private)
}

func TestCircuitOpensAfterThreshold(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient("k",
		WithBaseURL(srv.URL),
		WithRetry(resilience.RetryConfig{MaxAttempts: 1}),
		WithBreakers(resilience.NewBreakerSet(resilience.CircuitBreakerConfig{FailureThreshold: 2, CoolDown: time.Hour})),
	)
	for i := 0; i < 2; i++ {
		_, err := client.Profile(context.Background(), model.PlatformInstagram, "anna")
		require.Error(t, err)
	}
	_, err := client.Profile(context.Background(), model.PlatformInstagram, "anna")
	require.Error(t, err)
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
	assert.Equal(t, int32(2), calls.Load())

	// Other operations keep their own breaker.
	_, err = client.IsPrivate(context.Background(), model.PlatformInstagram, "anna")
	assert.False(t, errors.Is(err, resilience.ErrCircuitOpen))
}

func TestRateLimiterHonoursContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"is_private":false}`))
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL), WithRateLimit(0.001, 1))
	_, err := client.IsPrivate(context.Background(), model.PlatformInstagram, "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.IsPrivate(ctx, model.PlatformInstagram, "b")
	require.Error(t, err)
}

func TestClientCachePerEndpoint(t *testing.T) {
	t.Parallel()

	c := NewClient("k").(*httpClient)
	direct := c.clientFor(model.DirectEndpoint())
	assert.Same(t, direct, c.clientFor(model.DirectEndpoint()))

	proxied := c.clientFor(model.Endpoint{Protocol: "http", Host: "10.0.0.1", Port: 8080})
	assert.NotSame(t, direct, proxied)
	tr, ok := proxied.Transport.(*http.Transport)
	require.True(t, ok)
	require.NotNil(t, tr.Proxy)
}
