package audit

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/cps-audit/pkg/batch"
)

var (
	// ErrInvalidArgument is returned for invalid configuration or input.
	ErrInvalidArgument = batch.ErrInvalidArgument

	// ErrNoEnrollments is returned when the input holds no enrollment IDs.
	ErrNoEnrollments = errors.New("no enrollments to audit")
)

// Config holds the audit tuning knobs. Parsing lives with the caller.
type Config struct {
	// BatchSize is the initial-pass batching granularity per contract.
	BatchSize int

	// RetryBatchSize is used for the retry pass. Zero means BatchSize.
	RetryBatchSize int

	// ConcurrencyLimit bounds in-flight fetches during the initial pass.
	ConcurrencyLimit int

	// RetryConcurrencyLimit bounds in-flight fetches during the retry pass.
	RetryConcurrencyLimit int

	// MaxBatchesInFlight bounds concurrently dispatched batches per contract.
	// Zero means unlimited; the pool still bounds fetches.
	MaxBatchesInFlight int

	// MaxContractsInFlight bounds concurrently processed contracts.
	// Zero means unlimited.
	MaxContractsInFlight int
}

// DefaultConfig returns the configuration used by the CLI. CPS allows 20
// requests per 2 seconds per account, so concurrency stays well below it.
func DefaultConfig() Config {
	return Config{
		BatchSize:             20,
		RetryBatchSize:        10,
		ConcurrencyLimit:      5,
		RetryConcurrencyLimit: 2,
		MaxBatchesInFlight:    0,
		MaxContractsInFlight:  1,
	}
}

// Validate checks the configuration before any work is dispatched.
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be > 0 (got %d)", ErrInvalidArgument, c.BatchSize)
	}
	if c.RetryBatchSize < 0 {
		return fmt.Errorf("%w: retry batch size must be >= 0 (got %d)", ErrInvalidArgument, c.RetryBatchSize)
	}
	if c.ConcurrencyLimit <= 0 {
		return fmt.Errorf("%w: concurrency limit must be > 0 (got %d)", ErrInvalidArgument, c.ConcurrencyLimit)
	}
	if c.RetryConcurrencyLimit <= 0 {
		return fmt.Errorf("%w: retry concurrency limit must be > 0 (got %d)", ErrInvalidArgument, c.RetryConcurrencyLimit)
	}
	if c.MaxBatchesInFlight < 0 {
		return fmt.Errorf("%w: max batches in flight must be >= 0 (got %d)", ErrInvalidArgument, c.MaxBatchesInFlight)
	}
	if c.MaxContractsInFlight < 0 {
		return fmt.Errorf("%w: max contracts in flight must be >= 0 (got %d)", ErrInvalidArgument, c.MaxContractsInFlight)
	}
	return nil
}

func (c Config) retryBatchSize() int {
	if c.RetryBatchSize > 0 {
		return c.RetryBatchSize
	}
	return c.BatchSize
}
