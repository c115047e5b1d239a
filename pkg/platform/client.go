// Package platform provides a client for the social platform scraping
// gateway: tag and location pages, followers, profiles and privacy checks.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/acquisition-cli/internal/model"
	"github.com/sells-group/acquisition-cli/internal/proxypool"
	"github.com/sells-group/acquisition-cli/internal/resilience"
)

var (
	// ErrNotFound means the account does not exist or cannot be reached by
	// design. It is not retried.
	ErrNotFound = eris.New("platform: account not found")
	// ErrPrivate means the gateway marked the account private.
	ErrPrivate = eris.New("platform: account is private")
)

// Client defines the platform fetch operations.
type Client interface {
	// TagPage returns accounts posting under a tag or keyword.
	TagPage(ctx context.Context, p model.Platform, term string, sort Sort) (*Page, error)
	// LocationPage returns accounts posting from a location page.
	LocationPage(ctx context.Context, p model.Platform, locationID string) (*Page, error)
	// Followers returns up to limit followers of handle.
	Followers(ctx context.Context, p model.Platform, handle string, limit int) (*Page, error)
	// Profile fetches a full profile.
	Profile(ctx context.Context, p model.Platform, handle string) (*Profile, error)
	// IsPrivate checks the private-account flag without a full fetch.
	IsPrivate(ctx context.Context, p model.Platform, handle string) (bool, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithSelector routes every request through endpoints chosen by sel.
func WithSelector(sel proxypool.Selector) Option {
	return func(c *httpClient) {
		c.selector = sel
	}
}

// WithRateLimit caps the request rate across every caller of the client.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *httpClient) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithBreakers sets the per-operation circuit breakers.
func WithBreakers(b *resilience.BreakerSet) Option {
	return func(c *httpClient) {
		c.breakers = b
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.timeout = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		c.userAgent = ua
	}
}

type httpClient struct {
	apiKey    string
	baseURL   string
	userAgent string
	timeout   time.Duration
	selector  proxypool.Selector
	limiter   *rate.Limiter
	retry     resilience.RetryConfig
	breakers  *resilience.BreakerSet
	// clients caches one http.Client per endpoint key.
	clients *xsync.Map[string, *http.Client]
}

// NewClient creates a gateway client. Without a selector every request goes
// out directly.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:    apiKey,
		baseURL:   "https://gateway.example.com",
		userAgent: "acquisition-cli/1.0",
		timeout:   30 * time.Second,
		retry:     resilience.DefaultRetryConfig(),
		breakers:  resilience.NewBreakerSet(resilience.DefaultCircuitBreakerConfig()),
		clients:   xsync.NewMap[string, *http.Client](),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("platform")
	}
	return c
}

// clientFor returns the cached http.Client for ep.
func (c *httpClient) clientFor(ep model.Endpoint) *http.Client {
	key := ep.Key()
	if hc, ok := c.clients.Load(key); ok {
		return hc
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	if u := ep.URL(); u != nil {
		transport.Proxy = http.ProxyURL(u)
	}
	hc, _ := c.clients.LoadOrStore(key, &http.Client{Timeout: c.timeout, Transport: transport})
	return hc
}

func (c *httpClient) selectEndpoint() model.Endpoint {
	if c.selector == nil {
		return model.DirectEndpoint()
	}
	return c.selector.SelectEndpoint()
}

// report feeds an outcome to the selector. Requests ended by their own
// context say nothing about the endpoint and are not reported.
func (c *httpClient) report(ctx context.Context, ep model.Endpoint, ok bool, latency time.Duration, err error) {
	if c.selector == nil || ctx.Err() != nil {
		return
	}
	c.selector.ReportOutcome(ctx, ep, proxypool.Outcome{Success: ok, Latency: latency, Err: err})
}

// do performs one GET through a freshly selected endpoint. It returns the body
// on 2xx, ErrNotFound on 404/410 and a TransientError for responses worth
// retrying.
func (c *httpClient) do(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "platform: rate limit wait")
		}
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "platform: create request")
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	ep := c.selectEndpoint()
	start := time.Now()
	resp, err := c.clientFor(ep).Do(req)
	if err != nil {
		c.report(ctx, ep, false, time.Since(start), err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, resilience.NewTransientError(eris.Wrapf(err, "platform: request via %s", ep.Key()), 0)
	}
	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	latency := time.Since(start)
	if readErr != nil {
		c.report(ctx, ep, false, latency, readErr)
		return nil, resilience.NewTransientError(eris.Wrap(readErr, "platform: read response body"), resp.StatusCode)
	}

	switch resilience.ClassifyStatus(resp.StatusCode) {
	case resilience.StatusOK:
		c.report(ctx, ep, true, latency, nil)
		return body, nil
	case resilience.StatusMissing:
		// The endpoint delivered a real answer.
		c.report(ctx, ep, true, latency, nil)
		return nil, ErrNotFound
	case resilience.StatusRetryable:
		statusErr := eris.Errorf("platform: status %d: %s", resp.StatusCode, truncate(body))
		c.report(ctx, ep, false, latency, statusErr)
		return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
	default:
		c.report(ctx, ep, true, latency, nil)
		return nil, eris.Errorf("platform: unexpected status %d: %s", resp.StatusCode, truncate(body))
	}
}

// get runs do under the operation's breaker with retries.
func (c *httpClient) get(ctx context.Context, op, path string, query url.Values) ([]byte, error) {
	cb := c.breakers.Get(op)
	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return resilience.Call(ctx, cb, func(ctx context.Context) ([]byte, error) {
			return c.do(ctx, path, query)
		})
	})
}

func truncate(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}

func decodePage(op string, body []byte) (*Page, error) {
	var page Page
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, eris.Wrapf(err, "platform: unmarshal %s", op)
	}
	page.Raw = body
	return &page, nil
}

func (c *httpClient) TagPage(ctx context.Context, p model.Platform, term string, sort Sort) (*Page, error) {
	if sort == "" {
		sort = SortTop
	}
	path := fmt.Sprintf("/v1/%s/tags/%s", p, url.PathEscape(term))
	body, err := c.get(ctx, "tag", path, url.Values{"sort": {string(sort)}})
	if err != nil {
		return nil, eris.Wrapf(err, "platform: tag %q", term)
	}
	return decodePage("tag page", body)
}

func (c *httpClient) LocationPage(ctx context.Context, p model.Platform, locationID string) (*Page, error) {
	path := fmt.Sprintf("/v1/%s/locations/%s", p, url.PathEscape(locationID))
	body, err := c.get(ctx, "location", path, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "platform: location %s", locationID)
	}
	return decodePage("location page", body)
}

func (c *httpClient) Followers(ctx context.Context, p model.Platform, handle string, limit int) (*Page, error) {
	path := fmt.Sprintf("/v1/%s/users/%s/followers", p, url.PathEscape(handle))
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	body, err := c.get(ctx, "followers", path, q)
	if err != nil {
		return nil, eris.Wrapf(err, "platform: followers of %s", handle)
	}
	page, err := decodePage("followers", body)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(page.Accounts) > limit {
		page.Accounts = page.Accounts[:limit]
	}
	return page, nil
}

func (c *httpClient) Profile(ctx context.Context, p model.Platform, handle string) (*Profile, error) {
	path := fmt.Sprintf("/v1/%s/users/%s", p, url.PathEscape(handle))
	body, err := c.get(ctx, "profile", path, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "platform: profile %s", handle)
	}
	var prof Profile
	if err := json.Unmarshal(body, &prof); err != nil {
		return nil, eris.Wrap(err, "platform: unmarshal profile")
	}
	if prof.IsPrivate {
		return nil, eris.Wrapf(ErrPrivate, "platform: profile %s", handle)
	}
	prof.Raw = body
	return &prof, nil
}

func (c *httpClient) IsPrivate(ctx context.Context, p model.Platform, handle string) (bool, error) {
	path := fmt.Sprintf("/v1/%s/users/%s/privacy", p, url.PathEscape(handle))
	body, err := c.get(ctx, "privacy", path, nil)
	if err != nil {
		return false, eris.Wrapf(err, "platform: privacy %s", handle)
	}
	var pr privacyResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return false, eris.Wrap(err, "platform: unmarshal privacy")
	}
	if pr.IsPrivate {
		zap.L().Debug("platform: private account",
			zap.String("platform", string(p)),
			zap.String("handle", handle),
		)
	}
	return pr.IsPrivate, nil
}
