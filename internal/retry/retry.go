// Package retry runs an operation with exponential backoff between attempts.
package retry

import (
	"context"
	"time"
)

// DefaultBaseDelay is the first backoff wait: 2s, 4s, 8s, ...
const DefaultBaseDelay = 2 * time.Second

// DefaultMaxDelay caps the backoff wait when Policy.MaxDelay is unset.
const DefaultMaxDelay = 5 * time.Minute

// Policy configures Do. State is scoped to a single call.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// OnRetry is called before each retry, never before the first attempt.
	OnRetry func(attempt int, delay time.Duration, err error)
	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Delay returns the wait after failed attempt n (1-based): base * 2^(n-1),
// never more than the max delay.
func (p Policy) Delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	limit := p.MaxDelay
	if limit <= 0 {
		limit = DefaultMaxDelay
	}
	if base >= limit {
		return limit
	}
	d := base
	for i := 1; i < attempt; i++ {
		if d > limit/2 {
			return limit
		}
		d *= 2
	}
	return d
}

// Do invokes op until it succeeds or MaxAttempts attempts have failed,
// returning the first success or the last error. A cancelled context
// aborts the backoff wait and returns ctx.Err().
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := p.Delay(attempt - 1)
			if p.OnRetry != nil {
				p.OnRetry(attempt, delay, lastErr)
			}
			if err := sleep(ctx, delay); err != nil {
				return zero, err
			}
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		value, err := op(ctx, attempt)
		if err == nil {
			return value, nil
		}
		lastErr = err
	}
	return zero, lastErr
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
