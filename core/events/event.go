package events

import (
	"sync"

	"xdonate/core/types"
)

// Event represents a structured state change emitted by the forwarder.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. the admin API,
// log pipeline, history recorder).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is the default wiring when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Payload extracts the canonical typed payload from an event when the emitting
// component attached one.
type Payload interface {
	Event() *types.Event
}

// Capture retains every emitted event in order. Used by tests and by the
// daemon's history recorder.
type Capture struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements the Emitter interface.
func (c *Capture) Emit(evt Event) {
	if c == nil || evt == nil {
		return
	}
	c.mu.Lock()
	c.events = append(c.events, evt)
	c.mu.Unlock()
}

// Events returns a copy of the captured events in emission order.
func (c *Capture) Events() []Event {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}
