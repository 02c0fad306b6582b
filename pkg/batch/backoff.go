package batch

import (
	"context"
	"time"

	"github.com/Sternrassler/cps-audit/pkg/enrollment"
)

// BackoffPolicy decides whether a failed fetch gets its single inline
// re-attempt, and how long to wait before it.
type BackoffPolicy interface {
	Next(o enrollment.Outcome) (wait time.Duration, retry bool)
}

// DefaultBackoff is the policy used unless another one is injected.
type DefaultBackoff struct {
	// SafetyMargin is added to the server's retry hint.
	SafetyMargin time.Duration

	// RateLimitWait is used when a 429 carries no retry hint.
	RateLimitWait time.Duration

	// MaxWait caps any single wait. Zero means no cap.
	MaxWait time.Duration
}

// DefaultBackoffPolicy returns the policy CPS audits run with.
func DefaultBackoffPolicy() DefaultBackoff {
	return DefaultBackoff{
		SafetyMargin:  3 * time.Second,
		RateLimitWait: 5 * time.Second,
		MaxWait:       2 * time.Minute,
	}
}

// Next implements BackoffPolicy.
func (b DefaultBackoff) Next(o enrollment.Outcome) (time.Duration, bool) {
	switch o.Failure {
	case enrollment.FailureRateLimited:
		wait := b.RateLimitWait
		if o.RetryAfter > 0 {
			wait = o.RetryAfter
		}
		wait += b.SafetyMargin
		if b.MaxWait > 0 && wait > b.MaxWait {
			wait = b.MaxWait
		}
		return wait, true
	case enrollment.FailureServerError, enrollment.FailureTransportError:
		return 0, true
	default:
		// Client errors are not transient; none means success.
		return 0, false
	}
}

// Sleeper waits for a duration. Tests inject a fake to avoid real sleeps.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to the Sleeper interface.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep calls f.
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// RealSleeper sleeps on a timer and returns early when ctx is done.
type RealSleeper struct{}

// Sleep implements Sleeper.
func (RealSleeper) Sleep(ctx context.Context, d time.Duration) error {
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
