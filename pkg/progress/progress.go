// Package progress carries per-batch progress events from the audit pipeline
// to an observer (terminal UI, logs, telemetry). Reporting is purely
// observational and never affects control flow.
package progress

import (
	"sync"

	"github.com/Sternrassler/cps-audit/pkg/enrollment"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var progressEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "cps_progress_events_dropped_total",
	Help: "Progress events dropped because the async reporter buffer was full",
})

// Event describes progress within one batch.
type Event struct {
	Pass        enrollment.Pass
	ContractID  string
	BatchNumber int

	// Completed counts enrollments finished so far (success or failure).
	Completed int
	Total     int

	// FailedSoFar lists failed enrollments of the batch, ascending.
	FailedSoFar []enrollment.ID

	// Done marks the summary event emitted once the batch has joined.
	Done bool

	// Err is set on a summary event when the batch failed as a whole.
	Err error
}

// Reporter receives progress events. Implementations must be safe for
// concurrent use and should return quickly; wrap slow reporters with NewAsync.
type Reporter interface {
	Report(Event)
}

// Func adapts a function to the Reporter interface.
type Func func(Event)

// Report calls f.
func (f Func) Report(e Event) { f(e) }

// Nop discards every event.
var Nop Reporter = Func(func(Event) {})

// LogReporter writes events to a zerolog logger.
type LogReporter struct {
	logger zerolog.Logger
}

// NewLogReporter creates a reporter logging to logger.
func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

// Report implements Reporter. Per-enrollment events log at debug level,
// batch summaries at info (or warn when anything failed).
func (r *LogReporter) Report(e Event) {
	if !e.Done {
		r.logger.Debug().
			Str("pass", string(e.Pass)).
			Str("contract", e.ContractID).
			Int("batch", e.BatchNumber).
			Int("completed", e.Completed).
			Int("total", e.Total).
			Msg("Enrollment fetched")
		return
	}

	ev := r.logger.Info()
	if e.Err != nil || len(e.FailedSoFar) > 0 {
		ev = r.logger.Warn().Interface("failed_ids", e.FailedSoFar)
	}
	if e.Err != nil {
		ev = ev.Err(e.Err)
	}
	ev.Str("pass", string(e.Pass)).
		Str("contract", e.ContractID).
		Int("batch", e.BatchNumber).
		Int("requests", e.Total).
		Int("failed", len(e.FailedSoFar)).
		Msg("Batch complete")
}

// Async forwards events to another reporter from a single goroutine.
// Report never blocks: when the buffer is full the event is dropped.
type Async struct {
	next   Reporter
	events chan Event
	done   chan struct{}
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

// NewAsync starts forwarding to next with the given buffer size.
func NewAsync(next Reporter, buffer int) *Async {
	if buffer <= 0 {
		buffer = 1024
	}
	a := &Async{
		next:   next,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for e := range a.events {
		Deliver(a.next, e, zerolog.Nop())
	}
}

// Report implements Reporter.
func (a *Async) Report(e Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		progressEventsDropped.Inc()
		return
	}
	select {
	case a.events <- e:
	default:
		progressEventsDropped.Inc()
	}
}

// Close stops accepting events and waits until buffered ones are delivered.
func (a *Async) Close() {
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.events)
		a.mu.Unlock()
	})
	<-a.done
}

// Deliver hands e to r, recovering from a panicking reporter so that a
// broken observer cannot fail the pipeline.
func Deliver(r Reporter, e Event, logger zerolog.Logger) {
	if r == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			logger.Warn().
				Interface("panic", rec).
				Str("contract", e.ContractID).
				Int("batch", e.BatchNumber).
				Msg("Progress reporter panicked")
		}
	}()
	r.Report(e)
}
