package batch

import (
	"context"
	"sync"
	"time"

	"github.com/Sternrassler/cps-audit/pkg/enrollment"
	"github.com/Sternrassler/cps-audit/pkg/progress"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Executor runs batches on a shared Pool.
type Executor struct {
	pool     *Pool
	fetcher  enrollment.Fetcher
	backoff  BackoffPolicy
	sleeper  Sleeper
	reporter progress.Reporter
	logger   zerolog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithBackoff replaces the inline retry policy.
func WithBackoff(b BackoffPolicy) Option {
	return func(e *Executor) { e.backoff = b }
}

// WithSleeper replaces the clock used for backoff waits.
func WithSleeper(s Sleeper) Option {
	return func(e *Executor) { e.sleeper = s }
}

// WithReporter sets the progress reporter.
func WithReporter(r progress.Reporter) Option {
	return func(e *Executor) { e.reporter = r }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor creates an executor dispatching fetches through pool.
func NewExecutor(pool *Pool, fetcher enrollment.Fetcher, opts ...Option) *Executor {
	e := &Executor{
		pool:     pool,
		fetcher:  fetcher,
		backoff:  DefaultBackoffPolicy(),
		sleeper:  RealSleeper{},
		reporter: progress.Nop,
		logger:   log.With().Str("component", "batch-executor").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Pool returns the admission pool the executor dispatches through.
func (e *Executor) Pool() *Pool {
	return e.pool
}

// Execute fetches every enrollment of b and returns once all of them,
// including inline retries, have finished. Successes keep the batch's input
// order.
//
// If the fetcher reports itself unusable, no further IDs are dispatched and
// Execute returns a *enrollment.BatchError after joining the fetches already
// in flight. The returned result still accounts for every ID of the batch.
func (e *Executor) Execute(ctx context.Context, pass enrollment.Pass, b enrollment.Batch) (enrollment.BatchResult, error) {
	start := time.Now()
	label := string(pass)
	outcomes := make([]enrollment.Outcome, len(b.IDs))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		fatal     error
		completed int
		failed    = enrollment.NewIDSet()
	)

	isFatal := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fatal != nil
	}

	e.logger.Debug().
		Str("pass", label).
		Str("contract", b.ContractID).
		Int("batch", b.Number).
		Int("size", len(b.IDs)).
		Msg("Dispatching batch")

	for i, id := range b.IDs {
		if isFatal() {
			break
		}
		e.pool.acquire(label)
		if isFatal() {
			e.pool.release(label)
			break
		}

		wg.Add(1)
		go func(i int, id enrollment.ID) {
			defer wg.Done()
			defer e.pool.release(label)

			out, err := e.fetchWithRetry(ctx, pass, b, id)

			mu.Lock()
			if err != nil && fatal == nil {
				fatal = err
			}
			outcomes[i] = out
			completed++
			if !out.OK {
				failed.Add(id)
			}
			ev := progress.Event{
				Pass:        pass,
				ContractID:  b.ContractID,
				BatchNumber: b.Number,
				Completed:   completed,
				Total:       len(b.IDs),
				FailedSoFar: failed.Sorted(),
			}
			mu.Unlock()

			progress.Deliver(e.reporter, ev, e.logger)
		}(i, id)
	}
	wg.Wait()

	result := enrollment.BatchResult{
		ContractID: b.ContractID,
		Number:     b.Number,
		FailedIDs:  enrollment.NewIDSet(),
	}
	for i, id := range b.IDs {
		out := outcomes[i]
		if out.OK {
			result.Successes = append(result.Successes, out.Payload)
			result.SucceededIDs = append(result.SucceededIDs, id)
			fetchOutcomesTotal.WithLabelValues(label, "ok").Inc()
			continue
		}
		result.FailedIDs.Add(id)
		fetchOutcomesTotal.WithLabelValues(label, out.Failure.String()).Inc()
	}

	batchDurationSeconds.WithLabelValues(label).Observe(time.Since(start).Seconds())

	var batchErr error
	if fatal != nil {
		batchErr = &enrollment.BatchError{ContractID: b.ContractID, Number: b.Number, Err: fatal}
		e.logger.Error().
			Err(fatal).
			Str("pass", label).
			Str("contract", b.ContractID).
			Int("batch", b.Number).
			Msg("Fetcher unusable - batch aborted")
	}

	progress.Deliver(e.reporter, progress.Event{
		Pass:        pass,
		ContractID:  b.ContractID,
		BatchNumber: b.Number,
		Completed:   len(b.IDs),
		Total:       len(b.IDs),
		FailedSoFar: result.FailedIDs.Sorted(),
		Done:        true,
		Err:         batchErr,
	}, e.logger)

	return result, batchErr
}

// fetchWithRetry performs one fetch and, when the backoff policy allows it,
// exactly one re-attempt.
func (e *Executor) fetchWithRetry(ctx context.Context, pass enrollment.Pass, b enrollment.Batch, id enrollment.ID) (enrollment.Outcome, error) {
	out, err := e.fetcher.Fetch(ctx, id)
	out.ID = id
	if err != nil || out.OK {
		return out, err
	}

	wait, retry := e.backoff.Next(out)
	if !retry {
		e.logger.Debug().
			Int64("enrollment_id", int64(id)).
			Str("kind", out.Failure.String()).
			Int("status", out.StatusCode).
			Msg("Fetch failed - not retrying inline")
		return out, nil
	}

	inlineRetriesTotal.WithLabelValues(out.Failure.String()).Inc()
	inlineBackoffSeconds.Observe(wait.Seconds())

	e.logger.Warn().
		Str("pass", string(pass)).
		Str("contract", b.ContractID).
		Int("batch", b.Number).
		Int64("enrollment_id", int64(id)).
		Str("kind", out.Failure.String()).
		Int("status", out.StatusCode).
		Dur("backoff", wait).
		Msg("Retrying enrollment fetch")

	if err := e.sleeper.Sleep(ctx, wait); err != nil {
		e.logger.Debug().Err(err).Int64("enrollment_id", int64(id)).Msg("Backoff interrupted")
	}

	second, err := e.fetcher.Fetch(ctx, id)
	second.ID = id
	if err == nil && !second.OK {
		e.logger.Warn().
			Str("contract", b.ContractID).
			Int("batch", b.Number).
			Int64("enrollment_id", int64(id)).
			Str("kind", second.Failure.String()).
			Int("status", second.StatusCode).
			Msg("Inline retry failed - deferring to retry pass")
	}
	return second, err
}
