package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/truleado/truleado-sub002/internal/model"
)

const (
	redditAPIBaseURL  = "https://oauth.reddit.com"
	redditAuthBaseURL = "https://www.reddit.com"
	redditMaxLimit    = 100
	defaultTimeout    = 15 * time.Second
	defaultMaxWait    = 10 * time.Second
	defaultRateReset  = time.Minute
	defaultPerMinute  = 60
	defaultBurst      = 10
	tokenExpirySkew   = time.Minute

	defaultTokenLifetime = time.Hour
)

// RedditOptions configures a RedditClient. Zero values get sensible defaults.
type RedditOptions struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
	APIBaseURL   string
	AuthBaseURL  string
	Timeout      time.Duration // per call
	MaxWait      time.Duration // longest rate-limit cool-down waited out in-line
	PerMinute    int           // base call pace per owner
	Burst        int
	HTTPClient   *http.Client
	Now          func() time.Time
}

// RedditClient searches subreddits with each owner's OAuth credential.
type RedditClient struct {
	opts   RedditOptions
	client *http.Client
	store  CredentialStore
	cache  TokenCache
	locks  *OwnerLocks
	now    func() time.Time
	pace   rate.Limit

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	cooling  map[string]bool // owner's limiter is a cool-off, not the base pace
}

// NewRedditClient constructs a client. cache may be nil.
func NewRedditClient(opts RedditOptions, store CredentialStore, cache TokenCache) *RedditClient {
	if opts.APIBaseURL == "" {
		opts.APIBaseURL = redditAPIBaseURL
	}
	if opts.AuthBaseURL == "" {
		opts.AuthBaseURL = redditAuthBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = defaultMaxWait
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "lead-engine/1.0"
	}
	if opts.PerMinute <= 0 {
		opts.PerMinute = defaultPerMinute
	}
	if opts.Burst <= 0 {
		opts.Burst = defaultBurst
	}
	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	client := *base
	client.Transport = &userAgentTransport{agent: opts.UserAgent, next: base.Transport}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &RedditClient{
		opts:     opts,
		client:   &client,
		store:    store,
		cache:    cache,
		locks:    NewOwnerLocks(),
		now:      now,
		pace:     rate.Every(time.Minute / time.Duration(opts.PerMinute)),
		limiters: make(map[string]*rate.Limiter),
		cooling:  make(map[string]bool),
	}
}

// redditListing mirrors the top-level search response.
type redditListing struct {
	Data struct {
		Children []struct {
			Kind string     `json:"kind"`
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// redditPost mirrors a single link (t3) object.
type redditPost struct {
	ID          string  `json:"id"`
	Subreddit   string  `json:"subreddit"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Author      string  `json:"author"`
	Permalink   string  `json:"permalink"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
}

// Search runs one subreddit search. Calls for the same owner are serialized.
func (c *RedditClient) Search(ctx context.Context, ownerID string, q Query) ([]model.Candidate, error) {
	release, err := c.locks.Acquire(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := c.waitTurn(ctx, ownerID); err != nil {
		return nil, err
	}

	token, err := c.accessToken(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	return c.search(ctx, ownerID, token, q)
}

func (c *RedditClient) search(ctx context.Context, ownerID, token string, q Query) ([]model.Candidate, error) {
	limit := q.Limit
	if limit <= 0 || limit > redditMaxLimit {
		limit = redditMaxLimit
	}

	params := url.Values{}
	params.Set("q", q.Term)
	params.Set("restrict_sr", "1")
	params.Set("type", "link")
	params.Set("raw_json", "1")
	params.Set("limit", strconv.Itoa(limit))
	if q.Sort != "" {
		params.Set("sort", q.Sort)
	}
	if q.Window != "" {
		params.Set("t", q.Window)
	}
	endpoint := fmt.Sprintf("%s/r/%s/search?%s", c.opts.APIBaseURL, url.PathEscape(q.Community), params.Encode())

	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "bearer "+token)
	req.Header.Set("Accept", "application/json")

	op := fmt.Sprintf("search r/%s %q", q.Community, q.Term)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, op, err)
	}
	defer resp.Body.Close()

	c.noteRateLimit(ownerID, resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ctx, op, fmt.Errorf("read body: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if c.cache != nil {
			if err := c.cache.Delete(ctx, ownerID); err != nil {
				slog.Warn("token cache delete failed", "ownerId", ownerID, "err", err)
			}
		}
		return nil, fmt.Errorf("%w: search rejected the access token", ErrCredentialExpired)
	case resp.StatusCode == http.StatusTooManyRequests:
		wait := rateLimitWait(resp)
		c.throttle(ownerID, wait)
		return nil, &RetryableError{Op: op, StatusCode: resp.StatusCode, RetryAfter: wait}
	case retryableStatus(resp.StatusCode):
		return nil, &RetryableError{Op: op, StatusCode: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%s: reddit returned %d: %s", op, resp.StatusCode, truncate(string(body), 200))
	}

	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("%s: json unmarshal: %w", op, err)
	}

	results := make([]model.Candidate, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		p := child.Data
		if child.Kind != "t3" || p.ID == "" {
			continue
		}
		community := p.Subreddit
		if community == "" {
			community = q.Community
		}
		results = append(results, model.Candidate{
			ExternalID:  p.ID,
			Community:   community,
			Title:       p.Title,
			Body:        p.Selftext,
			Author:      p.Author,
			URL:         "https://www.reddit.com" + p.Permalink,
			Score:       p.Score,
			NumComments: p.NumComments,
			CreatedAt:   time.Unix(int64(p.CreatedUTC), 0).UTC(),
			SearchTerm:  q.Term,
		})
	}
	return results, nil
}

// ─── Credentials ─────────────────────────────────────────────────────────────

// accessToken resolves a usable token: cache, then store, then refresh.
// Must be called with the owner's lock held so refreshes are not duplicated.
func (c *RedditClient) accessToken(ctx context.Context, ownerID string) (string, error) {
	if c.cache != nil {
		tok, ok, err := c.cache.Get(ctx, ownerID)
		if err != nil {
			slog.Warn("token cache get failed", "ownerId", ownerID, "err", err)
		} else if ok {
			return tok, nil
		}
	}

	cred, err := c.store.Load(ctx, ownerID)
	if err != nil {
		return "", err
	}

	now := c.now()
	if !cred.Valid(now, tokenExpirySkew) {
		if cred.RefreshToken == "" {
			return "", fmt.Errorf("%w: access token expired at %s and no refresh token", ErrCredentialExpired, cred.ExpiresAt.Format(time.RFC3339))
		}
		cred, err = c.refresh(ctx, cred.RefreshToken)
		if err != nil {
			return "", err
		}
		if err := c.store.Save(ctx, ownerID, cred); err != nil {
			slog.Warn("saving refreshed credential failed", "ownerId", ownerID, "err", err)
		}
	}

	if c.cache != nil {
		ttl := cred.ExpiresAt.Sub(now) - tokenExpirySkew
		if ttl > 0 {
			if err := c.cache.Set(ctx, ownerID, cred.AccessToken, ttl); err != nil {
				slog.Warn("token cache set failed", "ownerId", ownerID, "err", err)
			}
		}
	}
	return cred.AccessToken, nil
}

// refresh exchanges a refresh token through the OAuth2 refresh grant. A
// rejected grant is ErrCredentialExpired; transport trouble is retryable.
func (c *RedditClient) refresh(ctx context.Context, refreshToken string) (Credential, error) {
	conf := &oauth2.Config{
		ClientID:     c.opts.ClientID,
		ClientSecret: c.opts.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.opts.AuthBaseURL + "/api/v1/access_token",
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	callCtx = context.WithValue(callCtx, oauth2.HTTPClient, c.client)

	// Only the refresh token is passed in, so the source always refreshes.
	tok, err := conf.TokenSource(callCtx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return Credential{}, refreshError(ctx, err)
	}

	expires := tok.Expiry
	if expires.IsZero() {
		expires = c.now().Add(defaultTokenLifetime)
	}
	return Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expires,
	}, nil
}

// refreshError maps a failed refresh grant. 4xx answers and invalid_grant
// mean the user must reconnect; 5xx, 429 and transport errors are retryable.
func refreshError(parent context.Context, err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return transportError(parent, "token refresh", err)
	}
	status := 0
	if re.Response != nil {
		status = re.Response.StatusCode
	}
	if re.ErrorCode != "invalid_grant" && retryableStatus(status) {
		return &RetryableError{Op: "token refresh", StatusCode: status, Err: err}
	}
	return fmt.Errorf("%w: token refresh rejected (status %d, %s)", ErrCredentialExpired, status, re.ErrorCode)
}

// ─── Rate limiting ───────────────────────────────────────────────────────────

// limiter returns ownerID's limiter, creating it at the base pace.
func (c *RedditClient) limiter(ownerID string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.limiters[ownerID]
	if !ok {
		lim = rate.NewLimiter(c.pace, c.opts.Burst)
		c.limiters[ownerID] = lim
	}
	return lim
}

// waitTurn takes one call slot from the owner's limiter. A delay above
// MaxWait fails fast with a RetryableError instead of blocking the worker.
func (c *RedditClient) waitTurn(ctx context.Context, ownerID string) error {
	lim := c.limiter(ownerID)
	if d := limiterDelay(lim); d > c.opts.MaxWait {
		return &RetryableError{Op: "rate limit cool-down", StatusCode: http.StatusTooManyRequests, RetryAfter: d}
	}
	if err := lim.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &RetryableError{Op: "rate limit cool-down", StatusCode: http.StatusTooManyRequests, Err: err}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cooling[ownerID] && c.limiters[ownerID] == lim {
		// Cool-off served: back to the base pace with a full burst.
		c.limiters[ownerID] = rate.NewLimiter(c.pace, c.opts.Burst)
		delete(c.cooling, ownerID)
	}
	return nil
}

// throttle drops ownerID to one call per wait with the only token spent, so
// the next call becomes possible once wait has passed. A longer pending
// cool-off is kept.
func (c *RedditClient) throttle(ownerID string, wait time.Duration) {
	lim := rate.NewLimiter(rate.Every(wait), 1)
	lim.Allow()

	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.limiters[ownerID]; ok && limiterDelay(cur) >= wait {
		return
	}
	c.limiters[ownerID] = lim
	c.cooling[ownerID] = true
}

// limiterDelay reports how long lim needs before it can grant one token.
func limiterDelay(lim *rate.Limiter) time.Duration {
	missing := 1 - lim.Tokens()
	if missing <= 0 || lim.Limit() == rate.Inf {
		return 0
	}
	if lim.Limit() <= 0 {
		return rate.InfDuration
	}
	return time.Duration(missing / float64(lim.Limit()) * float64(time.Second))
}

// noteRateLimit starts a cool-off when the remaining budget hits zero.
func (c *RedditClient) noteRateLimit(ownerID string, resp *http.Response) {
	remaining := resp.Header.Get("X-Ratelimit-Remaining")
	if remaining == "" {
		return
	}
	left, err := strconv.ParseFloat(remaining, 64)
	if err != nil || left >= 1 {
		return
	}
	c.throttle(ownerID, rateLimitWait(resp))
}

// rateLimitWait reads Retry-After, then X-Ratelimit-Reset (both seconds).
func rateLimitWait(resp *http.Response) time.Duration {
	for _, h := range []string{"Retry-After", "X-Ratelimit-Reset"} {
		if v := resp.Header.Get(h); v != "" {
			if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
				return time.Duration(secs * float64(time.Second))
			}
		}
	}
	return defaultRateReset
}

// userAgentTransport stamps every request, token refreshes included.
type userAgentTransport struct {
	agent string
	next  http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.agent)
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(req)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
