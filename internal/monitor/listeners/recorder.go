// internal/monitor/listeners/recorder.go
package listeners

import (
	"sync"

	"github.com/xkilldash9x/actionwatch/api/schemas"
)

// Sink receives what the registry observes. Implementations must be safe for
// concurrent use.
type Sink interface {
	RecordChange(schemas.Change)
	RecordEvent(schemas.Event)
}

// Recorder is an append-only Sink for a single monitored run.
type Recorder struct {
	mu      sync.Mutex
	changes []schemas.Change
	events  []schemas.Event
}

var _ Sink = (*Recorder)(nil)

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		changes: make([]schemas.Change, 0),
		events:  make([]schemas.Event, 0),
	}
}

func (r *Recorder) RecordChange(c schemas.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *Recorder) RecordEvent(ev schemas.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Changes returns a copy of the recorded changes in arrival order.
func (r *Recorder) Changes() []schemas.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]schemas.Change, len(r.changes))
	copy(out, r.changes)
	return out
}

// Events returns a copy of the raw event log in arrival order.
func (r *Recorder) Events() []schemas.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]schemas.Event, len(r.events))
	copy(out, r.events)
	return out
}
