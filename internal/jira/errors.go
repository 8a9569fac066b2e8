package jira

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

var (
	// ErrRateLimited is wrapped by transient errors caused by HTTP 429.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnauthorized is returned when Jira rejects the static credentials.
	// It is not retried.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrFetchExhausted is matched by every FetchExhaustedError.
	ErrFetchExhausted = errors.New("fetch exhausted")
)

// TransientFetchError is a failed request that is worth retrying: throttling,
// server errors, network failures and undecodable bodies.
type TransientFetchError struct {
	StatusCode int           // 0 for network errors
	RetryAfter time.Duration // server hint, 0 when absent
	Err        error
}

func (e *TransientFetchError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("transient fetch error: %v", e.Err)
	}
	return fmt.Sprintf("transient fetch error (HTTP %d): %v", e.StatusCode, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// FetchExhaustedError reports a page that could not be fetched within the
// attempt budget.
type FetchExhaustedError struct {
	Offset   int
	Attempts int
	Err      error
}

func (e *FetchExhaustedError) Error() string {
	return fmt.Sprintf("fetching page at offset %d failed after %d attempt(s): %v", e.Offset, e.Attempts, e.Err)
}

func (e *FetchExhaustedError) Unwrap() error { return e.Err }

// Is matches ErrFetchExhausted.
func (e *FetchExhaustedError) Is(target error) bool {
	return target == ErrFetchExhausted
}

// parseRetryAfter reads a Retry-After header given either as seconds or as
// an HTTP date. It returns 0 when the header is absent or unusable.
func parseRetryAfter(h http.Header, now time.Time) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
