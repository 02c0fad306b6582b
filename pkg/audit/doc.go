// Package audit retrieves enrollment detail for many contracts at once.
//
// An audit runs two passes. The initial pass plans every contract into
// batches and executes them on one shared, bounded worker pool. The retry
// pass takes the enrollments that still failed, sorts them, and runs them
// once more on a separate (usually smaller) pool. Merge then appends the
// retry successes to the initial ones and keeps whatever is still failing.
//
//	auditor, err := audit.New(cpsClient, audit.DefaultConfig(),
//		audit.WithReporter(progress.NewLogReporter(logger)))
//	report, err := auditor.Run(ctx, contracts)
//	for _, res := range report.Results {
//		fmt.Println(res.ContractID, len(res.Successes), res.StillFailedIDs.Sorted())
//	}
//
// The retry pass runs exactly once, so an audit costs at most two traversals
// of the data whatever the failure rate.
package audit
