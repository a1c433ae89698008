package events

import (
	"testing"

	"tally/core/types"
)

type wired struct{ evt *types.Event }

func (w wired) EventType() string    { return w.evt.Type }
func (w wired) Event() *types.Event { return w.evt }

type bare string

func (b bare) EventType() string { return string(b) }

func TestBufferFlushPublishesInOrder(t *testing.T) {
	var buf Buffer
	buf.Emit(wired{evt: types.NewEvent("a")})
	buf.Emit(bare("b"))
	buf.Emit(nil)

	var sink Buffer
	buf.Flush(&sink)

	got := sink.Events()
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].EventType() != "a" || got[1].EventType() != "b" {
		t.Fatalf("unexpected order: %s, %s", got[0].EventType(), got[1].EventType())
	}
	if len(buf.Events()) != 0 {
		t.Fatalf("buffer not cleared after flush")
	}
}

func TestBufferWireSkipsEventsWithoutWireForm(t *testing.T) {
	var buf Buffer
	buf.Emit(bare("skip"))
	buf.Emit(wired{evt: types.NewEvent("keep").With("k", "v")})

	wire := buf.Wire()
	if len(wire) != 1 || wire[0].Type != "keep" {
		t.Fatalf("unexpected wire events: %+v", wire)
	}
	if wire[0].Attributes["k"] != "v" {
		t.Fatalf("attribute lost: %+v", wire[0].Attributes)
	}
}

func TestBufferResetDropsEvents(t *testing.T) {
	var buf Buffer
	buf.Emit(bare("x"))
	buf.Reset()
	var sink Buffer
	buf.Flush(Fanout{&sink, NoopEmitter{}})
	if len(sink.Events()) != 0 {
		t.Fatalf("reset events were published")
	}
}

func TestFanoutReachesEmitterFuncs(t *testing.T) {
	var seen []string
	record := EmitterFunc(func(evt Event) { seen = append(seen, evt.EventType()) })

	var buf Buffer
	buf.Emit(bare("plan.created"))
	buf.Emit(bare("subscription.renewed"))
	buf.Flush(Fanout{record, nil, EmitterFunc(nil), record})

	want := []string{"plan.created", "plan.created", "subscription.renewed", "subscription.renewed"}
	if len(seen) != len(want) {
		t.Fatalf("expected %d deliveries, got %v", len(want), seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("delivery %d = %s, want %s", i, seen[i], want[i])
		}
	}
}
