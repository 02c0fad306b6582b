// Package ratelimit implements CPS request-rate tracking and request gating.
// State lives in Redis so that every process auditing the same account
// shares one request window and one 429 penalty window.
package ratelimit

import (
	"fmt"
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyPenaltyUntil = "cps:rate_limit:penalty_until"
	RedisKeyWindowPrefix = "cps:rate_limit:window:"
)

// DefaultRequestsPerSecond is the per-account request budget the audit
// keeps to. CPS allows 20 requests per 2 seconds, the budget leaves room for
// other tooling on the same account.
const DefaultRequestsPerSecond = 5

// RateLimitState is the shared view of the account's request budget.
type RateLimitState struct {
	// RequestsInWindow is the number of requests issued in the current
	// one-second window.
	RequestsInWindow int `json:"requests_in_window"`

	// Limit is the number of requests allowed per window.
	Limit int `json:"limit"`

	// PenaltyUntil is set after a 429. No request is allowed before it.
	PenaltyUntil time.Time `json:"penalty_until"`

	// LastUpdate is when this state was read.
	LastUpdate time.Time `json:"last_update"`
}

// InPenalty reports whether a 429 penalty is still running.
func (s *RateLimitState) InPenalty() bool {
	return s.PenaltyUntil.After(s.LastUpdate)
}

// WindowFull reports whether the current window has no requests left.
func (s *RateLimitState) WindowFull() bool {
	return s.Limit > 0 && s.RequestsInWindow >= s.Limit
}

// TimeUntilClear returns how long to wait before the penalty ends.
// Returns 0 if no penalty is active.
func (s *RateLimitState) TimeUntilClear() time.Duration {
	if !s.InPenalty() {
		return 0
	}
	return s.PenaltyUntil.Sub(s.LastUpdate)
}

func windowKey(now time.Time) string {
	return fmt.Sprintf("%s%d", RedisKeyWindowPrefix, now.Unix())
}

// untilNextWindow returns the time left in now's one-second window.
func untilNextWindow(now time.Time) time.Duration {
	return now.Truncate(time.Second).Add(time.Second).Sub(now)
}
