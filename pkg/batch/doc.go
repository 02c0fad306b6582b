// Package batch splits a contract's enrollment IDs into fixed-size batches
// and executes each batch on a bounded, shared worker pool.
//
// CPS enforces per-account quotas (20 requests per 2 seconds, 100 per 2
// minutes), so every fetch must pass through a single admission counter
// regardless of how many batches or contracts run at once. The Pool is that
// counter; Executors built on the same Pool share it.
//
// Example usage:
//
//	pool, _ := batch.NewPool(5)
//	exec := batch.NewExecutor(pool, fetcher, batch.WithReporter(reporter))
//	batches, _ := batch.Plan("C-1", ids, 20)
//	for _, b := range batches {
//		result, err := exec.Execute(ctx, enrollment.PassInitial, b)
//		...
//	}
//
// Each fetch gets at most one inline re-attempt, chosen by a BackoffPolicy:
//   - rate limited: wait the server's "Retry after" hint plus a safety margin
//   - server error: retry immediately
//   - transport error: retry immediately
//
// Anything still failing is returned in BatchResult.FailedIDs and left to the
// retry pass in package audit.
package batch
