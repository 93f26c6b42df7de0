// Package backoff implements the exponential/linear retry policy shared by
// the gadget executor and provider adapters, adapted from the teacher's
// internal/backoff package.
package backoff

import (
	"context"
	"math/rand"
	"time"
)

// Policy configures retry timing.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      float64 // fraction of delay randomized, e.g. 0.2 = ±20%
}

// DefaultPolicy mirrors the teacher's default gadget-retry policy: three
// attempts, 200ms base, doubling, capped at 5s, 20% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.2,
	}
}

// Delay returns the backoff delay before attempt (1-indexed).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
	}
	if cap := float64(p.MaxDelay); p.MaxDelay > 0 && d > cap {
		d = cap
	}
	if p.Jitter > 0 {
		delta := d * p.Jitter
		d = d - delta + rand.Float64()*2*delta
	}
	return time.Duration(d)
}

// Retry calls op until it succeeds, isRetryable(err) returns false, the
// policy's MaxAttempts is exhausted, or ctx is cancelled. Sleeps between
// attempts respect ctx cancellation.
func Retry(ctx context.Context, p Policy, isRetryable func(error) bool, op func(ctx context.Context) error) error {
	var lastErr error
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if isRetryable != nil && !isRetryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		select {
		case <-time.After(p.Delay(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
