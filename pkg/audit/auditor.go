package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/cps-audit/pkg/batch"
	"github.com/Sternrassler/cps-audit/pkg/enrollment"
	"github.com/Sternrassler/cps-audit/pkg/progress"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Report is the outcome of one audit invocation.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []enrollment.FinalResult
}

// Succeeded returns the number of enrollments retrieved across contracts.
func (r Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		n += len(res.Successes)
	}
	return n
}

// Unresolved returns the number of enrollments still failed after retry.
func (r Report) Unresolved() int {
	n := 0
	for _, res := range r.Results {
		n += res.StillFailedIDs.Len()
	}
	return n
}

// Auditor drives a full audit: an initial pass over every contract, one
// retry pass over the failures, and the merge of both.
type Auditor struct {
	fetcher  enrollment.Fetcher
	cfg      Config
	backoff  batch.BackoffPolicy
	sleeper  batch.Sleeper
	reporter progress.Reporter
	logger   zerolog.Logger
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithReporter sets the progress reporter for both passes.
func WithReporter(r progress.Reporter) Option {
	return func(a *Auditor) { a.reporter = r }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Auditor) { a.logger = l }
}

// WithBackoff replaces the inline retry policy.
func WithBackoff(b batch.BackoffPolicy) Option {
	return func(a *Auditor) { a.backoff = b }
}

// WithSleeper replaces the clock used for backoff waits.
func WithSleeper(s batch.Sleeper) Option {
	return func(a *Auditor) { a.sleeper = s }
}

// New creates an auditor. The configuration is validated here so that a bad
// setup fails before any contract is touched.
func New(fetcher enrollment.Fetcher, cfg Config, opts ...Option) (*Auditor, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("%w: fetcher is required", ErrInvalidArgument)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Auditor{
		fetcher:  fetcher,
		cfg:      cfg,
		backoff:  batch.DefaultBackoffPolicy(),
		sleeper:  batch.RealSleeper{},
		reporter: progress.Nop,
		logger:   defaultLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Run audits contracts. It returns ErrInvalidArgument for malformed input and
// ErrNoEnrollments when there is nothing to fetch; partial failures are only
// ever reported through FinalResult.StillFailedIDs.
func (a *Auditor) Run(ctx context.Context, contracts []enrollment.Contract) (Report, error) {
	total, err := validateContracts(contracts)
	if err != nil {
		return Report{}, err
	}
	if total == 0 {
		return Report{}, ErrNoEnrollments
	}

	report := Report{RunID: uuid.NewString(), StartedAt: time.Now()}
	logger := a.logger.With().Str("run_id", report.RunID).Logger()
	logger.Info().
		Int("contracts", len(contracts)).
		Int("enrollments", total).
		Int("batch_size", a.cfg.BatchSize).
		Int("concurrency", a.cfg.ConcurrencyLimit).
		Msg("Collecting enrollment detail")

	execOpts := []batch.Option{
		batch.WithBackoff(a.backoff),
		batch.WithSleeper(a.sleeper),
		batch.WithReporter(a.reporter),
		batch.WithLogger(logger),
	}

	pool, err := batch.NewPool(a.cfg.ConcurrencyLimit)
	if err != nil {
		return Report{}, err
	}
	orch, err := NewOrchestrator(batch.NewExecutor(pool, a.fetcher, execOpts...), a.cfg.BatchSize, a.cfg.MaxBatchesInFlight, logger)
	if err != nil {
		return Report{}, err
	}

	initial, err := runPass(ctx, enrollment.PassInitial, orch, contracts, a.cfg.MaxContractsInFlight, logger)
	if err != nil {
		return Report{}, err
	}

	retry, err := NewRetryCoordinator(a.fetcher, a.cfg.retryBatchSize(), a.cfg.RetryConcurrencyLimit, execOpts...)
	if err != nil {
		return Report{}, err
	}
	retry.maxBatchesInFlight = a.cfg.MaxBatchesInFlight
	retry.maxContractsInFlight = a.cfg.MaxContractsInFlight
	retry.logger = logger

	retried, err := retry.Retry(ctx, initial)
	if err != nil {
		return Report{}, err
	}

	report.Results = MergeAll(initial, retried)
	report.FinishedAt = time.Now()
	enrollmentsUnresolved.Set(float64(report.Unresolved()))

	ev := logger.Info()
	if report.Unresolved() > 0 {
		ev = logger.Warn()
	}
	ev.Int("succeeded", report.Succeeded()).
		Int("unresolved", report.Unresolved()).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("Audit complete")

	return report, nil
}

func validateContracts(contracts []enrollment.Contract) (int, error) {
	seen := make(map[string]struct{}, len(contracts))
	total := 0
	for _, c := range contracts {
		if err := c.Validate(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		if _, dup := seen[c.ID]; dup {
			return 0, fmt.Errorf("%w: contract %s listed twice", ErrInvalidArgument, c.ID)
		}
		seen[c.ID] = struct{}{}
		total += len(c.IDs)
	}
	return total, nil
}
