package batch

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/cps-audit/pkg/enrollment"
)

// ErrInvalidArgument is returned for non-positive batch sizes or pool limits.
var ErrInvalidArgument = errors.New("invalid argument")

// Plan splits ids into batches of at most batchSize, preserving order.
// Batch k (1-based) holds ids[(k-1)*batchSize : k*batchSize]. An empty ids
// slice yields no batches.
func Plan(contractID string, ids []enrollment.ID, batchSize int) ([]enrollment.Batch, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be > 0 (got %d)", ErrInvalidArgument, batchSize)
	}

	batches := make([]enrollment.Batch, 0, (len(ids)+batchSize-1)/batchSize)
	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))
		chunk := make([]enrollment.ID, end-start)
		copy(chunk, ids[start:end])
		batches = append(batches, enrollment.Batch{
			ContractID: contractID,
			Number:     len(batches) + 1,
			IDs:        chunk,
		})
	}
	return batches, nil
}
