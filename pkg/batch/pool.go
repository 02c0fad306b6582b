package batch

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Pool is the admission counter bounding in-flight fetches. One Pool is
// created per pass and shared by every batch and contract of that pass.
type Pool struct {
	sem      *semaphore.Weighted
	limit    int
	inFlight atomic.Int64
}

// NewPool creates a pool admitting at most limit concurrent fetches.
func NewPool(limit int) (*Pool, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: concurrency limit must be > 0 (got %d)", ErrInvalidArgument, limit)
	}
	return &Pool{
		sem:   semaphore.NewWeighted(int64(limit)),
		limit: limit,
	}, nil
}

// Limit returns the configured admission limit.
func (p *Pool) Limit() int {
	return p.limit
}

// InFlight returns the number of currently admitted fetches.
func (p *Pool) InFlight() int {
	return int(p.inFlight.Load())
}

// acquire blocks until a slot is free. Admission ignores cancellation: a
// dispatched batch always runs all of its members.
func (p *Pool) acquire(label string) {
	// Acquire only fails on a done context.
	_ = p.sem.Acquire(context.Background(), 1)
	poolInFlight.WithLabelValues(label).Set(float64(p.inFlight.Add(1)))
}

func (p *Pool) release(label string) {
	poolInFlight.WithLabelValues(label).Set(float64(p.inFlight.Add(-1)))
	p.sem.Release(1)
}
