package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/cps-audit/pkg/enrollment"
)

// Step is one scripted response of a ScriptedFetcher.
type Step struct {
	Failure    enrollment.FailureKind
	StatusCode int
	RetryAfter time.Duration
	Fatal      error
	Delay      time.Duration
}

// OK returns a successful step.
func OK() Step { return Step{StatusCode: 200} }

// RateLimited returns a 429 step carrying a retry hint.
func RateLimited(retryAfter time.Duration) Step {
	return Step{Failure: enrollment.FailureRateLimited, StatusCode: 429, RetryAfter: retryAfter}
}

// ServerError returns a 500 step.
func ServerError() Step {
	return Step{Failure: enrollment.FailureServerError, StatusCode: 500}
}

// TransportError returns a step with no HTTP response.
func TransportError() Step {
	return Step{Failure: enrollment.FailureTransportError}
}

// ClientError returns a non-transient 4xx step.
func ClientError(status int) Step {
	return Step{Failure: enrollment.FailureClientError, StatusCode: status}
}

// Fatal returns a step where the fetcher reports itself unusable.
func Fatal(err error) Step { return Step{Fatal: err} }

// Payload is the JSON document the scripted fetcher returns for id.
func Payload(id enrollment.ID) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"id":%d}`, id))
}

// ScriptedFetcher is an enrollment.Fetcher whose responses are scripted per
// enrollment ID. Unscripted IDs, and calls past the end of a script, succeed.
// It records call counts and the peak number of concurrent calls.
type ScriptedFetcher struct {
	mu          sync.Mutex
	scripts     map[enrollment.ID][]Step
	calls       map[enrollment.ID]int
	total       int
	inFlight    int
	maxInFlight int

	// Delay is applied to every call that has no step-specific delay.
	Delay time.Duration
}

// NewScriptedFetcher creates an empty scripted fetcher.
func NewScriptedFetcher() *ScriptedFetcher {
	return &ScriptedFetcher{
		scripts: make(map[enrollment.ID][]Step),
		calls:   make(map[enrollment.ID]int),
	}
}

// Script sets the responses for successive calls with id.
func (f *ScriptedFetcher) Script(id enrollment.ID, steps ...Step) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[id] = steps
}

// Fetch implements enrollment.Fetcher.
func (f *ScriptedFetcher) Fetch(ctx context.Context, id enrollment.ID) (enrollment.Outcome, error) {
	f.mu.Lock()
	n := f.calls[id]
	f.calls[id]++
	f.total++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	step := OK()
	if script := f.scripts[id]; n < len(script) {
		step = script[n]
	}
	delay := f.Delay
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if step.Delay > 0 {
		delay = step.Delay
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	if step.Fatal != nil {
		return enrollment.Outcome{ID: id}, step.Fatal
	}
	if step.Failure != enrollment.FailureNone {
		out := enrollment.Failed(id, step.Failure, fmt.Errorf("scripted %s", step.Failure))
		out.StatusCode = step.StatusCode
		out.RetryAfter = step.RetryAfter
		return out, nil
	}
	out := enrollment.Success(id, Payload(id))
	out.StatusCode = 200
	return out, nil
}

// Calls returns how many times id was fetched.
func (f *ScriptedFetcher) Calls(id enrollment.ID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

// TotalCalls returns the number of fetches across all IDs.
func (f *ScriptedFetcher) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

// MaxInFlight returns the highest number of concurrent fetches observed.
func (f *ScriptedFetcher) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

// SleepRecorder is a batch.Sleeper that records waits instead of sleeping.
type SleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

// Sleep records d and returns immediately.
func (s *SleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return nil
}

// Waits returns the recorded durations.
func (s *SleepRecorder) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}
