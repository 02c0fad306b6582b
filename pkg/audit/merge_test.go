package audit

import (
	"encoding/json"
	"reflect"
	"slices"
	"testing"

	"github.com/Sternrassler/cps-audit/internal/testutil"
	"github.com/Sternrassler/cps-audit/pkg/enrollment"
)

func aggregate(contract string, pass enrollment.Pass, ok []enrollment.ID, failed ...enrollment.ID) enrollment.ContractAggregate {
	agg := enrollment.ContractAggregate{ContractID: contract, Pass: pass, FailedIDs: enrollment.NewIDSet(failed...)}
	for _, id := range ok {
		agg.Successes = append(agg.Successes, testutil.Payload(id))
		agg.SucceededIDs = append(agg.SucceededIDs, id)
	}
	return agg
}

func TestMerge_WithRetry(t *testing.T) {
	initial := aggregate("C-1", enrollment.PassInitial, []enrollment.ID{10, 11}, 12, 13)
	retried := aggregate("C-1", enrollment.PassRetry, []enrollment.ID{12}, 13)

	res := Merge(initial, &retried)

	if res.ContractID != "C-1" || !res.Retried {
		t.Errorf("unexpected header: %+v", res)
	}
	if got, want := ids(t, res.Successes), []enrollment.ID{10, 11, 12}; !slices.Equal(got, want) {
		t.Errorf("successes = %v, want %v", got, want)
	}
	if want := []enrollment.ID{10, 11, 12}; !slices.Equal(res.SucceededIDs, want) {
		t.Errorf("SucceededIDs = %v, want %v", res.SucceededIDs, want)
	}
	if want := []enrollment.ID{13}; !slices.Equal(res.StillFailedIDs.Sorted(), want) {
		t.Errorf("StillFailedIDs = %v, want %v", res.StillFailedIDs.Sorted(), want)
	}
}

func TestMerge_WithoutRetry(t *testing.T) {
	initial := aggregate("C-1", enrollment.PassInitial, []enrollment.ID{1, 2}, 3)

	res := Merge(initial, nil)

	if res.Retried {
		t.Error("Retried should be false without a retry aggregate")
	}
	if got := ids(t, res.Successes); !slices.Equal(got, []enrollment.ID{1, 2}) {
		t.Errorf("successes = %v", got)
	}
	if !slices.Equal(res.StillFailedIDs.Sorted(), []enrollment.ID{3}) {
		t.Errorf("StillFailedIDs = %v, want [3]", res.StillFailedIDs.Sorted())
	}
}

func TestMerge_Idempotent(t *testing.T) {
	initial := aggregate("C-1", enrollment.PassInitial, []enrollment.ID{1, 2, 3}, 4, 5)
	retried := aggregate("C-1", enrollment.PassRetry, []enrollment.ID{5}, 4)

	first := Merge(initial, &retried)
	second := Merge(initial, &retried)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Merge is not idempotent:\nfirst  %+v\nsecond %+v", first, second)
	}
}

func TestMerge_DoesNotAlias(t *testing.T) {
	initial := aggregate("C-1", enrollment.PassInitial, []enrollment.ID{1}, 2)
	retried := aggregate("C-1", enrollment.PassRetry, []enrollment.ID{2})

	res := Merge(initial, &retried)

	initial.Successes[0][1] = 'X'
	initial.FailedIDs.Add(99)
	retried.FailedIDs.Add(77)
	initial.SucceededIDs[0] = 1000

	if string(res.Successes[0]) != string(testutil.Payload(1)) {
		t.Errorf("result payload changed with the aggregate: %s", res.Successes[0])
	}
	if res.StillFailedIDs.Has(77) || res.StillFailedIDs.Has(99) {
		t.Error("result failed set shares storage with an aggregate")
	}
	if res.SucceededIDs[0] != 1 {
		t.Error("result SucceededIDs shares storage with the aggregate")
	}

	// And the other way round.
	res.Successes = append(res.Successes, json.RawMessage(`{}`))
	if len(initial.Successes) != 1 {
		t.Error("appending to the result changed the aggregate")
	}
}

func TestMergeAll(t *testing.T) {
	initial := []enrollment.ContractAggregate{
		aggregate("C-1", enrollment.PassInitial, []enrollment.ID{1}, 2),
		aggregate("C-2", enrollment.PassInitial, []enrollment.ID{3}),
		aggregate("C-3", enrollment.PassInitial, nil, 4, 5),
	}
	retried := []enrollment.ContractAggregate{
		aggregate("C-3", enrollment.PassRetry, []enrollment.ID{4}, 5),
		aggregate("C-1", enrollment.PassRetry, []enrollment.ID{2}),
	}

	results := MergeAll(initial, retried)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	tests := []struct {
		contract string
		ok       []enrollment.ID
		failed   []enrollment.ID
		retried  bool
	}{
		{"C-1", []enrollment.ID{1, 2}, nil, true},
		{"C-2", []enrollment.ID{3}, nil, false},
		{"C-3", []enrollment.ID{4}, []enrollment.ID{5}, true},
	}
	for i, tt := range tests {
		res := results[i]
		if res.ContractID != tt.contract {
			t.Errorf("result %d is %s, want %s", i, res.ContractID, tt.contract)
		}
		if !slices.Equal(res.SucceededIDs, tt.ok) {
			t.Errorf("%s SucceededIDs = %v, want %v", tt.contract, res.SucceededIDs, tt.ok)
		}
		if got := res.StillFailedIDs.Sorted(); !slices.Equal(got, tt.failed) {
			t.Errorf("%s StillFailedIDs = %v, want %v", tt.contract, got, tt.failed)
		}
		if res.Retried != tt.retried {
			t.Errorf("%s Retried = %v, want %v", tt.contract, res.Retried, tt.retried)
		}
	}
}
