package events

// Event is a ledger change produced by a plan, subscription or token
// instruction. Events are published only after the instruction commits.
type Event interface {
	EventType() string
}

// Emitter receives committed ledger events. The node fans them out to the
// Prometheus registry and the debug log.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a plain function to the Emitter interface.
type EmitterFunc func(Event)

// Emit calls f(evt).
func (f EmitterFunc) Emit(evt Event) {
	if f != nil {
		f(evt)
	}
}

// NoopEmitter drops every event. Engines fall back to it when no sink is set.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}
