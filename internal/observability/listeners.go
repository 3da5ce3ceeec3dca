package observability

import (
	"context"
	"sync"
	"time"

	"github.com/harun/agentrun/internal/tracing"
)

// Event is one timing sample emitted during a run.
type Event struct {
	RunID    string            `json:"run_id"`
	Name     string            `json:"name"`
	Duration time.Duration     `json:"duration"`
	At       time.Time         `json:"at"`
	Attrs    map[string]string `json:"attrs,omitempty"`
}

// Listener receives events for the run it was registered against.
type Listener func(Event)

// Listener state is process-wide. Every Register must be paired with Clear for the same run,
// otherwise events keep flowing to a finished run.
var (
	listenersMu sync.RWMutex
	listeners   = map[string][]Listener{}
)

// Register attaches l to runID.
func Register(runID string, l Listener) {
	listenersMu.Lock()
	defer listenersMu.Unlock()
	listeners[runID] = append(listeners[runID], l)
	setActiveRuns(len(listeners))
}

// Clear drops every listener registered for runID.
func Clear(runID string) {
	listenersMu.Lock()
	defer listenersMu.Unlock()
	delete(listeners, runID)
	setActiveRuns(len(listeners))
}

// Registered returns the number of listeners attached to runID.
func Registered(runID string) int {
	listenersMu.RLock()
	defer listenersMu.RUnlock()
	return len(listeners[runID])
}

// Emit delivers a timing sample to the listeners of the run in ctx. Events without a run or
// without listeners are dropped.
func Emit(ctx context.Context, name string, duration time.Duration, attrs map[string]string) {
	runID := tracing.GetRunID(ctx)
	if runID == "" {
		return
	}

	listenersMu.RLock()
	ls := append([]Listener(nil), listeners[runID]...)
	listenersMu.RUnlock()

	if len(ls) == 0 {
		return
	}
	ev := Event{RunID: runID, Name: name, Duration: duration, At: time.Now(), Attrs: attrs}
	for _, l := range ls {
		l(ev)
	}
}

// Timer emits an event named name when the returned func is called.
func Timer(ctx context.Context, name string) func(attrs map[string]string) {
	start := time.Now()
	return func(attrs map[string]string) {
		Emit(ctx, name, time.Since(start), attrs)
	}
}

// Collector accumulates events for one run.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

// Listen is a Listener that appends to the collector.
func (c *Collector) Listen(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

// Events returns a copy of the collected events.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}
