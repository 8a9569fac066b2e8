// Package retry provides a small retry policy used for page fetches and for
// the serial retry passes over failed offsets.
package retry

import (
	"context"
	"time"
)

// BackoffFunc returns how long to wait after the given zero-based attempt
// failed with err.
type BackoffFunc func(attempt int, err error) time.Duration

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy describes how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Backoff computes the wait between attempts. Nil means no wait.
	Backoff BackoffFunc
	// Retryable reports whether err is worth another attempt. Nil retries everything.
	Retryable func(err error) bool
	// Sleep waits between attempts. Nil uses Sleep.
	Sleep SleepFunc
	// OnRetry is called before each wait, after a failed attempt.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// Do runs op until it succeeds, returns a non-retryable error, or the attempt
// budget is spent. It returns the number of attempts made and the last error.
// No wait happens after the final attempt.
func (p Policy) Do(ctx context.Context, op func(attempt int) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = op(attempt)
		if err == nil {
			return attempt + 1, nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return attempt + 1, err
		}
		if attempt == maxAttempts-1 {
			return attempt + 1, err
		}
		if werr := p.Wait(ctx, attempt, err); werr != nil {
			return attempt + 1, werr
		}
	}
	return maxAttempts, err
}

// Wait sleeps for the backoff of the given attempt.
func (p Policy) Wait(ctx context.Context, attempt int, err error) error {
	var d time.Duration
	if p.Backoff != nil {
		d = p.Backoff(attempt, err)
	}
	if p.OnRetry != nil {
		p.OnRetry(attempt, d, err)
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	return sleep(ctx, d)
}

// Exponential returns base * 2^attempt.
func Exponential(base time.Duration) BackoffFunc {
	return func(attempt int, _ error) time.Duration {
		return base << uint(attempt)
	}
}

// Constant always waits d.
func Constant(d time.Duration) BackoffFunc {
	return func(int, error) time.Duration {
		return d
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
