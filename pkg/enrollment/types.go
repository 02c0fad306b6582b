// Package enrollment defines the data model shared by the audit pipeline:
// enrollment IDs, contracts, batches, fetch outcomes and per-pass results.
//
// Enrollment payloads are opaque JSON documents; nothing in this module
// interprets them.
package enrollment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrInvalidContract is returned by Contract.Validate.
var ErrInvalidContract = errors.New("invalid contract")

// ID identifies an enrollment in the CPS API.
type ID int64

// IDSet is an unordered set of enrollment IDs.
type IDSet map[ID]struct{}

// NewIDSet returns a set holding ids.
func NewIDSet(ids ...ID) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id into the set.
func (s IDSet) Add(id ID) {
	s[id] = struct{}{}
}

// Has reports whether id is in the set.
func (s IDSet) Has(id ID) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of IDs in the set. A nil set has length 0.
func (s IDSet) Len() int {
	return len(s)
}

// Sorted returns the IDs in ascending numeric order.
func (s IDSet) Sorted() []ID {
	ids := make([]ID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Clone returns an independent copy. Cloning a nil set yields an empty set.
func (s IDSet) Clone() IDSet {
	c := make(IDSet, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

// Union adds every ID of other to s.
func (s IDSet) Union(other IDSet) {
	for id := range other {
		s[id] = struct{}{}
	}
}

// Contract is a billing grouping and the ordered enrollment IDs it owns.
type Contract struct {
	ID  string
	IDs []ID
}

// Validate checks that the contract has an ID and no duplicate enrollments.
func (c Contract) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: empty contract id", ErrInvalidContract)
	}
	seen := make(IDSet, len(c.IDs))
	for _, id := range c.IDs {
		if seen.Has(id) {
			return fmt.Errorf("%w: contract %s lists enrollment %d twice", ErrInvalidContract, c.ID, id)
		}
		seen.Add(id)
	}
	return nil
}

// Batch is a fixed-size slice of one contract's enrollment IDs.
type Batch struct {
	ContractID string
	// Number is 1-based and sequential within a contract.
	Number int
	IDs    []ID
}

// FailureKind classifies a failed fetch.
type FailureKind int

const (
	// FailureNone marks a successful fetch.
	FailureNone FailureKind = iota

	// FailureRateLimited is a 429 from the remote service.
	FailureRateLimited

	// FailureServerError is a 5xx from the remote service.
	FailureServerError

	// FailureTransportError covers connection, timeout and body read errors.
	FailureTransportError

	// FailureClientError is any other 4xx. It is not transient.
	FailureClientError
)

// String implements fmt.Stringer.
func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureRateLimited:
		return "rate_limited"
	case FailureServerError:
		return "server_error"
	case FailureTransportError:
		return "transport_error"
	case FailureClientError:
		return "client_error"
	default:
		return fmt.Sprintf("failure(%d)", int(k))
	}
}

// Outcome is the result of one fetch attempt for one enrollment.
type Outcome struct {
	ID      ID
	OK      bool
	Payload json.RawMessage
	Failure FailureKind

	// StatusCode is the HTTP status, 0 when no response was received.
	StatusCode int

	// RetryAfter is the wait the remote service asked for on a rate-limited
	// response. Zero when no hint was supplied.
	RetryAfter time.Duration

	// Err describes a failed attempt for logging.
	Err error
}

// Success builds an OK outcome.
func Success(id ID, payload json.RawMessage) Outcome {
	return Outcome{ID: id, OK: true, Payload: payload, Failure: FailureNone}
}

// Failed builds a failed outcome of the given kind.
func Failed(id ID, kind FailureKind, err error) Outcome {
	return Outcome{ID: id, Failure: kind, Err: err}
}

// Fetcher retrieves the detail of a single enrollment.
//
// Per-enrollment failures are reported in the Outcome. A non-nil error means
// the fetcher itself can no longer be used (for example repeated
// authentication failures) and aborts the batch that observed it.
type Fetcher interface {
	Fetch(ctx context.Context, id ID) (Outcome, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, id ID) (Outcome, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, id ID) (Outcome, error) {
	return f(ctx, id)
}

// Pass tags which traversal produced an aggregate.
type Pass string

const (
	PassInitial Pass = "initial"
	PassRetry   Pass = "retry"
)

// BatchResult is the joined outcome of one batch.
type BatchResult struct {
	ContractID string
	Number     int

	// Successes holds payloads in the batch's input order.
	Successes []json.RawMessage
	// SucceededIDs[i] is the enrollment that produced Successes[i].
	SucceededIDs []ID
	FailedIDs    IDSet
}

// Size returns the number of enrollments the result accounts for.
func (r BatchResult) Size() int {
	return len(r.Successes) + r.FailedIDs.Len()
}

// BatchError records a batch that failed as a whole.
type BatchError struct {
	ContractID string
	Number     int
	Err        error
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	return fmt.Sprintf("contract %s batch %d: %v", e.ContractID, e.Number, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *BatchError) Unwrap() error {
	return e.Err
}

// ContractAggregate folds every BatchResult of one contract for one pass.
type ContractAggregate struct {
	ContractID string
	Pass       Pass

	// Successes is ordered by (batch number, position within batch).
	Successes    []json.RawMessage
	SucceededIDs []ID
	FailedIDs    IDSet

	// BatchErrors lists batches that failed as a whole.
	BatchErrors []*BatchError
}

// FinalResult is the reconciled outcome for one contract after both passes.
type FinalResult struct {
	ContractID string

	// Successes holds initial-pass payloads followed by retry-pass payloads.
	Successes      []json.RawMessage
	SucceededIDs   []ID
	StillFailedIDs IDSet

	// Retried is true when a retry pass ran for this contract.
	Retried bool
}
