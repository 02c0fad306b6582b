package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/cps-audit/pkg/batch"
	"github.com/Sternrassler/cps-audit/pkg/enrollment"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Orchestrator runs every batch of one contract and folds the results.
type Orchestrator struct {
	executor           *batch.Executor
	batchSize          int
	maxBatchesInFlight int
	logger             zerolog.Logger
}

// NewOrchestrator creates an orchestrator dispatching through executor.
// maxBatchesInFlight of zero leaves batch fan-out unbounded.
func NewOrchestrator(executor *batch.Executor, batchSize, maxBatchesInFlight int, logger zerolog.Logger) (*Orchestrator, error) {
	if executor == nil {
		return nil, fmt.Errorf("%w: executor is required", ErrInvalidArgument)
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be > 0 (got %d)", ErrInvalidArgument, batchSize)
	}
	if maxBatchesInFlight < 0 {
		return nil, fmt.Errorf("%w: max batches in flight must be >= 0 (got %d)", ErrInvalidArgument, maxBatchesInFlight)
	}
	return &Orchestrator{
		executor:           executor,
		batchSize:          batchSize,
		maxBatchesInFlight: maxBatchesInFlight,
		logger:             logger,
	}, nil
}

// Run plans c into batches, executes them concurrently and returns the
// aggregate. Successes are ordered by (batch number, position in batch)
// regardless of completion order. A batch that fails as a whole has all of
// its IDs marked failed and never affects its siblings.
//
// Run only returns an error for invalid input, before anything is fetched.
func (o *Orchestrator) Run(ctx context.Context, pass enrollment.Pass, c enrollment.Contract) (enrollment.ContractAggregate, error) {
	if err := c.Validate(); err != nil {
		return enrollment.ContractAggregate{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	batches, err := batch.Plan(c.ID, c.IDs, o.batchSize)
	if err != nil {
		return enrollment.ContractAggregate{}, err
	}

	start := time.Now()
	logger := o.logger.With().Str("pass", string(pass)).Str("contract", c.ID).Logger()
	logger.Info().
		Int("enrollments", len(c.IDs)).
		Int("batches", len(batches)).
		Msg("Processing contract")

	results := make([]enrollment.BatchResult, len(batches))
	batchErrs := make([]*enrollment.BatchError, len(batches))

	var g errgroup.Group
	if o.maxBatchesInFlight > 0 {
		g.SetLimit(o.maxBatchesInFlight)
	}
	for i, b := range batches {
		i, b := i, b
		g.Go(func() error {
			r, err := o.executor.Execute(ctx, pass, b)
			if err != nil {
				batchErrs[i] = asBatchError(b, err)
				r = failWholeBatch(b)
			}
			results[i] = r
			return nil
		})
	}
	// Workers never return errors; failures are recorded per batch.
	_ = g.Wait()

	agg := enrollment.ContractAggregate{
		ContractID: c.ID,
		Pass:       pass,
		FailedIDs:  enrollment.NewIDSet(),
	}
	for i, r := range results {
		agg.Successes = append(agg.Successes, r.Successes...)
		agg.SucceededIDs = append(agg.SucceededIDs, r.SucceededIDs...)
		agg.FailedIDs.Union(r.FailedIDs)
		if be := batchErrs[i]; be != nil {
			agg.BatchErrors = append(agg.BatchErrors, be)
			batchFailuresTotal.WithLabelValues(string(pass)).Inc()
			logger.Warn().
				Err(be.Err).
				Int("batch", be.Number).
				Int("enrollments", len(batches[i].IDs)).
				Msg("Batch failed - all enrollments marked failed")
		}
	}
	contractsProcessedTotal.WithLabelValues(string(pass)).Inc()

	ev := logger.Info()
	if agg.FailedIDs.Len() > 0 {
		ev = logger.Warn().Interface("failed_ids", agg.FailedIDs.Sorted())
	}
	ev.Int("succeeded", len(agg.Successes)).
		Int("failed", agg.FailedIDs.Len()).
		Dur("duration", time.Since(start)).
		Msg("Contract complete")

	return agg, nil
}

func asBatchError(b enrollment.Batch, err error) *enrollment.BatchError {
	var be *enrollment.BatchError
	if errors.As(err, &be) {
		return be
	}
	return &enrollment.BatchError{ContractID: b.ContractID, Number: b.Number, Err: err}
}

func failWholeBatch(b enrollment.Batch) enrollment.BatchResult {
	return enrollment.BatchResult{
		ContractID: b.ContractID,
		Number:     b.Number,
		FailedIDs:  enrollment.NewIDSet(b.IDs...),
	}
}

// defaultLogger is the audit component logger derived from the global one.
func defaultLogger() zerolog.Logger {
	return log.With().Str("component", "audit").Logger()
}
