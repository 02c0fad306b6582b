package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	cpsRateLimitPenaltiesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cps_rate_limit_penalties_total",
		Help: "Total number of 429 penalties recorded in the shared window",
	})

	cpsRateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cps_rate_limit_blocks_total",
		Help: "Total number of requests held back by an active 429 penalty",
	})

	cpsRateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cps_rate_limit_throttles_total",
		Help: "Total number of requests delayed because the request window was full",
	})
)

// Tracker gates CPS requests on a Redis-backed request window and 429
// penalty window.
type Tracker struct {
	redis  *redis.Client
	limit  int
	logger zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewTracker creates a new rate limit tracker allowing limit requests per
// second. A limit <= 0 falls back to DefaultRequestsPerSecond.
func NewTracker(redisClient *redis.Client, limit int, logger zerolog.Logger) *Tracker {
	if limit <= 0 {
		limit = DefaultRequestsPerSecond
	}
	return &Tracker{
		redis:  redisClient,
		limit:  limit,
		logger: logger,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Limit returns the number of requests allowed per second.
func (t *Tracker) Limit() int {
	return t.limit
}

// GetState retrieves the current rate limit state from Redis.
// Missing keys mean an empty window and no penalty.
func (t *Tracker) GetState(ctx context.Context) (*RateLimitState, error) {
	now := t.now()

	count, err := t.redis.Get(ctx, windowKey(now)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get request window: %w", err)
	}

	state := &RateLimitState{
		RequestsInWindow: count,
		Limit:            t.limit,
		LastUpdate:       now,
	}

	until, err := t.redis.Get(ctx, RedisKeyPenaltyUntil).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get penalty window: %w", err)
	}
	if until > 0 {
		state.PenaltyUntil = time.UnixMilli(until)
	}

	return state, nil
}

// Penalize records a 429 so that every client sharing this Redis waits d
// before its next request. An existing longer penalty is kept.
func (t *Tracker) Penalize(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	until := t.now().Add(d)

	current, err := t.redis.Get(ctx, RedisKeyPenaltyUntil).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("get penalty window: %w", err)
	}
	if current >= until.UnixMilli() {
		return nil
	}

	if err := t.redis.Set(ctx, RedisKeyPenaltyUntil, strconv.FormatInt(until.UnixMilli(), 10), d).Err(); err != nil {
		return fmt.Errorf("store penalty window in redis: %w", err)
	}

	cpsRateLimitPenaltiesTotal.Inc()
	t.logger.Warn().
		Dur("penalty", d).
		Time("until", until).
		Msg("CPS rate limit penalty recorded")

	return nil
}

// Acquire blocks until a request may be sent: it waits out any active
// penalty, then claims a slot in the current one-second window, waiting for
// the next window when this one is full.
func (t *Tracker) Acquire(ctx context.Context) error {
	for {
		state, err := t.GetState(ctx)
		if err != nil {
			return fmt.Errorf("get rate limit state: %w", err)
		}

		if wait := state.TimeUntilClear(); wait > 0 {
			t.logger.Debug().
				Dur("wait_duration", wait).
				Msg("CPS rate limit penalty active - holding request")
			cpsRateLimitBlocksTotal.Inc()
			if err := t.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		now := t.now()
		key := windowKey(now)

		pipe := t.redis.TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, 2*time.Second)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("claim request window: %w", err)
		}

		if int(incr.Val()) <= t.limit {
			return nil
		}

		cpsRateLimitThrottlesTotal.Inc()
		if err := t.sleep(ctx, untilNextWindow(now)); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
