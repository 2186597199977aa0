// Package retry provides a bounded retry-with-backoff combinator
// parameterized per call site.
package retry

import (
	"context"
	"errors"
	"time"
)

// BackoffFunc returns the delay before the given retry. The first retry is
// attempt 1.
type BackoffFunc func(attempt int) time.Duration

// Exponential returns a backoff of unit*2^attempt, so a unit of one second
// yields 2s, 4s, 8s, ...
func Exponential(unit time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		return unit * time.Duration(1<<attempt)
	}
}

// Constant returns a fixed delay between retries.
func Constant(delay time.Duration) BackoffFunc {
	return func(int) time.Duration {
		return delay
	}
}

// SleepFunc waits for the given duration or until the context is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy bounds retries of a single operation. Every failure is retried
// regardless of cause until the budget is exhausted.
type Policy struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int
	// Backoff computes the delay before each retry.
	Backoff BackoffFunc
	// OnRetry, when set, is invoked before each retry sleep.
	OnRetry func(attempt int, delay time.Duration, err error)
	// Sleep overrides the default context-aware sleep.
	Sleep SleepFunc
}

func (p Policy) withDefaults() Policy {
	if p.Backoff == nil {
		p.Backoff = Exponential(time.Second)
	}
	if p.Sleep == nil {
		p.Sleep = sleep
	}

	return p
}

// ErrInvalidMaxRetries is returned when the retry budget is negative.
var ErrInvalidMaxRetries = errors.New("retry: max retries must be non-negative")

// Do runs op, retrying up to policy.MaxRetries additional times with the
// policy's backoff between attempts. It returns nil on the first success,
// the context error if canceled while waiting, and otherwise the last
// operation error.
func Do(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	if policy.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}
	policy = policy.withDefaults()

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := policy.Backoff(attempt)
			if policy.OnRetry != nil {
				policy.OnRetry(attempt, delay, lastErr)
			}
			if err := policy.Sleep(ctx, delay); err != nil {
				return err
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
