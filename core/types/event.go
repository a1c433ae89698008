package types

// Event represents a typed event emitted during state transitions. Events are
// informational; the account data is the only authoritative record.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// NewEvent creates an event with an empty attribute set.
func NewEvent(eventType string) *Event {
	return &Event{Type: eventType, Attributes: make(map[string]string)}
}

// With sets an attribute and returns the event for chaining. Empty values are
// dropped.
func (e *Event) With(key, value string) *Event {
	if e == nil || value == "" {
		return e
	}
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}
