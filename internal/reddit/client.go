// Package reddit implements the rate-limited client for Reddit's public
// listing API. It batches all watched subreddits into a single request
// and passively tracks quota from response headers.
package reddit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/Sxientrie/reddit-hawk/internal/metrics"
	"github.com/Sxientrie/reddit-hawk/internal/model"
	"github.com/Sxientrie/reddit-hawk/internal/store"
)

// RateLimitThreshold is the remaining-quota floor below which the client
// refuses to issue requests.
const RateLimitThreshold = 5

// listingLimit is the maximum number of posts the listing endpoint
// returns per request.
const listingLimit = 100

// defaultRemaining is the quota assumed before any headers have been
// observed, and restored once a tracked quota window has expired.
const defaultRemaining = 100

const maxBodySize = 5 * 1024 * 1024

// RateLimitError signals that the upstream quota is exhausted.
// Reset is the number of seconds until the quota window resets.
type RateLimitError struct {
	Reset float64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exhausted, reset in %.0fs", e.Reset)
}

// statusError carries a non-200 HTTP status through the retry loop.
type statusError struct {
	Code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Client fetches new posts from the public listing endpoints.
// No authentication is used; the User-Agent header is mandatory to
// avoid an instant block.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	session    store.Store
	log        *slog.Logger

	mu     sync.Mutex
	limits model.RateLimitState
}

// New creates a Client. session holds the rate-limit state so it
// survives daemon restarts within a host session.
func New(httpClient *http.Client, baseURL, userAgent string, session store.Store, log *slog.Logger) *Client {
	c := &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		userAgent:  userAgent,
		session:    session,
		log:        log,
		// Stricter default for unauthenticated endpoints.
		limits: model.RateLimitState{Remaining: defaultRemaining},
	}

	var saved model.RateLimitState
	if err := store.GetJSON(context.Background(), session, store.KeyRateLimits, &saved); err == nil {
		c.limits = saved
	}
	return c
}

// Limits returns the last observed rate-limit state.
func (c *Client) Limits() model.RateLimitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limits
}

// FetchBatch fetches the newest posts across all given subreddits in a
// single request. Returns *RateLimitError without a network call when
// the tracked remaining quota is below the safety threshold.
func (c *Client) FetchBatch(ctx context.Context, subreddits []string) ([]model.Post, error) {
	if len(subreddits) == 0 {
		return nil, nil
	}

	c.mu.Lock()
	if c.limits.Remaining < RateLimitThreshold && c.windowElapsedLocked() {
		// The tracked quota window has passed since the headers were
		// observed, so the block is stale. Restore the default and let
		// the next response correct it.
		c.log.Info("rate limit window elapsed, resuming requests")
		c.limits.Remaining = defaultRemaining
	}
	remaining := c.limits.Remaining
	c.mu.Unlock()

	if remaining < RateLimitThreshold {
		c.log.Warn("rate limit threshold reached pre-flight", "remaining", remaining)
		return nil, &RateLimitError{Reset: c.resetDelay()}
	}

	reqURL := fmt.Sprintf("%s/r/%s/new.json", c.baseURL, strings.Join(subreddits, "+"))

	start := time.Now()
	body, err := c.get(ctx, reqURL)
	metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.Code == http.StatusTooManyRequests {
			return nil, &RateLimitError{Reset: c.resetDelay()}
		}
		return nil, err
	}

	posts, rejected := ParseListing(body)
	if rejected > 0 {
		c.log.Warn("dropped unparseable posts", "count", rejected)
	}
	metrics.PostsFetched.Add(float64(len(posts)))
	return posts, nil
}

// get performs the request with bounded retries for transient failures.
func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	var body []byte

	backoff := retry.WithMaxRetries(2, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)

		q := req.URL.Query()
		q.Set("limit", strconv.Itoa(listingLimit))
		q.Set("raw_json", "1")
		req.URL.RawQuery = q.Encode()

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("http get: %w", err))
		}
		defer func() { _ = resp.Body.Close() }()

		c.updateLimits(ctx, resp.Header)

		if resp.StatusCode != http.StatusOK {
			serr := &statusError{Code: resp.StatusCode}
			if transientStatus(resp.StatusCode) {
				return retry.RetryableError(serr)
			}
			return serr
		}

		b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return retry.RetryableError(fmt.Errorf("read body: %w", err))
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch listing: %w", err)
	}
	return body, nil
}

// updateLimits refreshes tracked quota from x-ratelimit-* headers.
// Public endpoints do not always send them, so present values are
// trusted optimistically and absent ones leave state untouched.
func (c *Client) updateLimits(ctx context.Context, h http.Header) {
	c.mu.Lock()
	changed := false
	if v, err := strconv.ParseFloat(h.Get("x-ratelimit-remaining"), 64); err == nil {
		c.limits.Remaining = v
		changed = true
	}
	if v, err := strconv.ParseFloat(h.Get("x-ratelimit-reset"), 64); err == nil {
		c.limits.Reset = v
		changed = true
	}
	if v, err := strconv.ParseFloat(h.Get("x-ratelimit-used"), 64); err == nil {
		c.limits.Used = v
		changed = true
	}
	if changed {
		c.limits.ObservedAtUnix = time.Now().Unix()
	}
	limits := c.limits
	c.mu.Unlock()

	if !changed {
		return
	}

	metrics.RateLimitRemaining.Set(limits.Remaining)
	c.log.Debug("rate limits updated", "remaining", limits.Remaining, "reset", limits.Reset)

	if err := store.SetJSON(ctx, c.session, store.KeyRateLimits, limits); err != nil {
		c.log.Warn("persist rate limits", "error", err)
	}
}

// windowElapsedLocked reports whether the tracked reset window has
// passed since the rate-limit headers were last observed. State that
// was never stamped with an observation time counts as elapsed.
// Callers must hold c.mu.
func (c *Client) windowElapsedLocked() bool {
	observed := time.Unix(c.limits.ObservedAtUnix, 0)
	return time.Since(observed).Seconds() >= c.limits.Reset
}

// resetDelay returns the tracked reset delay with a 60s floor for the
// case where a 429 arrived before any headers were observed.
func (c *Client) resetDelay() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limits.Reset <= 0 {
		return 60
	}
	return c.limits.Reset
}

func transientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusRequestEntityTooLarge,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
