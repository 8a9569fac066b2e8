package jira

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/Sourjya261-BB/Jira-Router/config"
	"github.com/Sourjya261-BB/Jira-Router/internal/constants"
	"github.com/Sourjya261-BB/Jira-Router/internal/log"
	"github.com/Sourjya261-BB/Jira-Router/internal/retry"
)

// rateLimitTransport paces outgoing requests and logs throttling responses.
type rateLimitTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}

	log.Trace("jira request", "url", req.URL.String())

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		log.Debug("jira rate limited", "retry_after", resp.Header.Get("Retry-After"))
	}
	return resp, nil
}

// Client fetches pages from the Jira search API.
type Client struct {
	baseURL    string
	authHeader string
	httpClient *http.Client

	jql    string
	fields string

	maxAttempts int
	baseDelay   time.Duration
	sleep       retry.SleepFunc
	jitter      func() time.Duration
	now         func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Authentication headers are still
// added for basic auth; bearer tokens must be handled by the given client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithSleep replaces the function used for backoff and jitter waits.
func WithSleep(sleep retry.SleepFunc) Option {
	return func(c *Client) {
		c.sleep = sleep
	}
}

// WithJitter replaces the post-success delay source.
func WithJitter(jitter func() time.Duration) Option {
	return func(c *Client) {
		c.jitter = jitter
	}
}

// WithBaseDelay sets the base of the exponential backoff.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = d
	}
}

// WithMaxAttempts sets the attempt budget per page.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		c.maxAttempts = n
	}
}

// WithClock replaces the clock used to interpret Retry-After dates.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a search client for issues created on or after cutoff.
func NewClient(ctx context.Context, cfg config.JiraConfig, cutoff time.Time, opts ...Option) *Client {
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	paced := &http.Client{
		Timeout: constants.RequestTimeout,
		Transport: &rateLimitTransport{
			base:    http.DefaultTransport,
			limiter: limiter,
		},
	}

	c := &Client{
		baseURL:     strings.TrimRight(cfg.Server, "/"),
		httpClient:  paced,
		jql:         BuildJQL(cfg.IssueTypes, cutoff),
		fields:      strings.Join(SearchFields(cfg.TeamField), ","),
		maxAttempts: constants.MaxFetchAttempts,
		baseDelay:   constants.BaseRetryDelay,
		sleep:       retry.Sleep,
		jitter:      defaultJitter,
		now:         time.Now,
	}

	if cfg.AuthType == "bearer" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		hc := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, paced), ts)
		hc.Timeout = constants.RequestTimeout
		c.httpClient = hc
	} else {
		creds := base64.StdEncoding.EncodeToString([]byte(cfg.Email + ":" + cfg.Token))
		c.authHeader = "Basic " + creds
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultJitter() time.Duration {
	return constants.JitterMin + rand.N(constants.JitterMax-constants.JitterMin)
}

// BuildJQL returns the search query for the given issue types and cutoff date.
func BuildJQL(issueTypes []string, cutoff time.Time) string {
	quoted := make([]string, len(issueTypes))
	for i, t := range issueTypes {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `\"`) + `"`
	}
	return fmt.Sprintf(`issuetype in (%s) AND created >= "%s"`,
		strings.Join(quoted, ", "), cutoff.Format(constants.CutoffDateLayout))
}

// SearchFields lists the fields requested for every issue.
func SearchFields(teamField string) []string {
	return []string{
		"key", "summary", "reporter", "assignee", "status",
		"created", "updated", "description", teamField, "issuetype",
	}
}

// JQL returns the query this client searches with.
func (c *Client) JQL() string {
	return c.jql
}

// FetchPage retrieves up to pageSize issues starting at offset.
//
// Throttled, failed and undecodable responses are retried with exponential
// backoff, or the server's Retry-After hint when present, until the attempt
// budget is spent. Rejected credentials are not retried. Any failure is
// returned as a *FetchExhaustedError. A successful fetch is followed by a
// short random delay.
func (c *Client) FetchPage(ctx context.Context, offset, pageSize int) (*SearchResult, error) {
	var result *SearchResult

	policy := retry.Policy{
		MaxAttempts: c.maxAttempts,
		Backoff: func(attempt int, err error) time.Duration {
			var te *TransientFetchError
			if errors.As(err, &te) && te.RetryAfter > 0 {
				return te.RetryAfter
			}
			return retry.Exponential(c.baseDelay)(attempt, err)
		},
		Retryable: func(err error) bool {
			return ctx.Err() == nil && !errors.Is(err, ErrUnauthorized)
		},
		Sleep: c.sleep,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			log.Debug("retrying page", "offset", offset, "attempt", attempt+1, "wait", wait, "error", err)
		},
	}

	attempts, err := policy.Do(ctx, func(int) error {
		res, err := c.search(ctx, offset, pageSize)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, &FetchExhaustedError{Offset: offset, Attempts: attempts, Err: err}
	}

	log.Debug("fetched page", "offset", offset, "issues", len(result.Issues), "total", result.Total, "attempts", attempts)

	if d := c.jitter(); d > 0 {
		_ = c.sleep(ctx, d)
	}
	return result, nil
}

func (c *Client) search(ctx context.Context, offset, pageSize int) (*SearchResult, error) {
	q := url.Values{}
	q.Set("jql", c.jql)
	q.Set("fields", c.fields)
	q.Set("startAt", strconv.Itoa(offset))
	q.Set("maxResults", strconv.Itoa(pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+constants.SearchPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientFetchError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &TransientFetchError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header, c.now()),
			Err:        ErrRateLimited,
		}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: jira returned %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &TransientFetchError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("jira returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var result SearchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &TransientFetchError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return &result, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
	}
	req.Header.Set("Accept", "application/json")
}
