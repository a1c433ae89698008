package events

import (
	"sync"

	"tally/core/types"
)

// WireEvent is implemented by events that carry a wire representation.
type WireEvent interface {
	Event
	Event() *types.Event
}

// Buffer collects events emitted while an instruction executes so they can
// be published only once its state has been committed.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if evt == nil {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, evt)
	b.mu.Unlock()
}

// Events returns the buffered events in emission order.
func (b *Buffer) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Wire converts buffered events into their wire form, skipping events that
// have none.
func (b *Buffer) Wire() []*types.Event {
	var out []*types.Event
	for _, evt := range b.Events() {
		if w, ok := evt.(WireEvent); ok {
			if e := w.Event(); e != nil {
				out = append(out, e)
			}
		}
	}
	return out
}

// Flush forwards every buffered event to dst and clears the buffer.
func (b *Buffer) Flush(dst Emitter) {
	b.mu.Lock()
	pending := b.events
	b.events = nil
	b.mu.Unlock()
	if dst == nil {
		return
	}
	for _, evt := range pending {
		dst.Emit(evt)
	}
}

// Reset drops buffered events without publishing them.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}

// Fanout publishes every event to each of its emitters in order.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, e := range f {
		if e != nil {
			e.Emit(evt)
		}
	}
}
