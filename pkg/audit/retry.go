package audit

import (
	"context"
	"fmt"

	"github.com/Sternrassler/cps-audit/pkg/batch"
	"github.com/Sternrassler/cps-audit/pkg/enrollment"
	"github.com/rs/zerolog"
)

// RetryCoordinator re-runs the failed enrollments of a finished pass exactly
// once, on its own pool, usually slower than the initial pass.
type RetryCoordinator struct {
	fetcher              enrollment.Fetcher
	batchSize            int
	concurrency          int
	maxBatchesInFlight   int
	maxContractsInFlight int
	execOpts             []batch.Option
	logger               zerolog.Logger
}

// NewRetryCoordinator creates a coordinator fetching through fetcher with
// batches of batchSize and at most concurrency fetches in flight. Executor
// options (backoff, sleeper, reporter) apply to the retry pass.
func NewRetryCoordinator(fetcher enrollment.Fetcher, batchSize, concurrency int, opts ...batch.Option) (*RetryCoordinator, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("%w: fetcher is required", ErrInvalidArgument)
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: retry batch size must be > 0 (got %d)", ErrInvalidArgument, batchSize)
	}
	if concurrency <= 0 {
		return nil, fmt.Errorf("%w: retry concurrency limit must be > 0 (got %d)", ErrInvalidArgument, concurrency)
	}
	return &RetryCoordinator{
		fetcher:     fetcher,
		batchSize:   batchSize,
		concurrency: concurrency,
		execOpts:    opts,
		logger:      defaultLogger(),
	}, nil
}

// Retry runs a retry pass over every aggregate with failed enrollments and
// returns the retry aggregates, in input order. Each synthetic contract lists
// its failed IDs in ascending order. Aggregates without failures are skipped
// and cost no remote calls. The retry pass is never itself retried.
func (r *RetryCoordinator) Retry(ctx context.Context, aggregates []enrollment.ContractAggregate) ([]enrollment.ContractAggregate, error) {
	var contracts []enrollment.Contract
	total := 0
	for _, agg := range aggregates {
		if agg.FailedIDs.Len() == 0 {
			continue
		}
		ids := agg.FailedIDs.Sorted()
		total += len(ids)
		contracts = append(contracts, enrollment.Contract{ID: agg.ContractID, IDs: ids})

		r.logger.Warn().
			Str("contract", agg.ContractID).
			Int("enrollments", len(ids)).
			Msg("RETRY enrollment detail for contract")
	}
	if len(contracts) == 0 {
		r.logger.Info().Msg("No failed enrollments - retry pass skipped")
		return nil, nil
	}

	pool, err := batch.NewPool(r.concurrency)
	if err != nil {
		return nil, err
	}
	opts := append([]batch.Option{batch.WithLogger(r.logger)}, r.execOpts...)
	exec := batch.NewExecutor(pool, r.fetcher, opts...)
	orch, err := NewOrchestrator(exec, r.batchSize, r.maxBatchesInFlight, r.logger)
	if err != nil {
		return nil, err
	}

	r.logger.Info().
		Int("contracts", len(contracts)).
		Int("enrollments", total).
		Int("concurrency", r.concurrency).
		Msg("Starting retry pass")

	return runPass(ctx, enrollment.PassRetry, orch, contracts, r.maxContractsInFlight, r.logger)
}
