package audit

import (
	"bytes"
	"encoding/json"

	"github.com/Sternrassler/cps-audit/pkg/enrollment"
)

// Merge reconciles the initial and retry aggregates of one contract.
// Retry successes are appended after the initial ones. When retried is nil
// the initial failures are final. Merge copies everything it returns, so the
// result never aliases either aggregate.
func Merge(initial enrollment.ContractAggregate, retried *enrollment.ContractAggregate) enrollment.FinalResult {
	res := enrollment.FinalResult{
		ContractID:   initial.ContractID,
		Successes:    clonePayloads(initial.Successes, extra(retried)),
		SucceededIDs: make([]enrollment.ID, 0, len(initial.SucceededIDs)+extra(retried)),
	}
	res.SucceededIDs = append(res.SucceededIDs, initial.SucceededIDs...)

	if retried == nil {
		res.StillFailedIDs = initial.FailedIDs.Clone()
		return res
	}

	res.Retried = true
	for _, p := range retried.Successes {
		res.Successes = append(res.Successes, json.RawMessage(bytes.Clone(p)))
	}
	res.SucceededIDs = append(res.SucceededIDs, retried.SucceededIDs...)
	res.StillFailedIDs = retried.FailedIDs.Clone()
	return res
}

// MergeAll merges per contract, in the order of initial. Retried aggregates
// are matched by contract ID.
func MergeAll(initial, retried []enrollment.ContractAggregate) []enrollment.FinalResult {
	byContract := make(map[string]*enrollment.ContractAggregate, len(retried))
	for i := range retried {
		byContract[retried[i].ContractID] = &retried[i]
	}

	results := make([]enrollment.FinalResult, 0, len(initial))
	for _, agg := range initial {
		results = append(results, Merge(agg, byContract[agg.ContractID]))
	}
	return results
}

func extra(retried *enrollment.ContractAggregate) int {
	if retried == nil {
		return 0
	}
	return len(retried.Successes)
}

func clonePayloads(src []json.RawMessage, spare int) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(src)+spare)
	for _, p := range src {
		out = append(out, json.RawMessage(bytes.Clone(p)))
	}
	return out
}
