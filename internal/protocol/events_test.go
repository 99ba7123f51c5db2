package protocol

import "testing"

func TestEventAccessors(t *testing.T) {
	ev := Event{"t": uint64(42), "type": EvStageChanged}
	if got := ev.Tick(); got != 42 {
		t.Fatalf("tick: got %d want 42", got)
	}
	if got := ev.EventType(); got != EvStageChanged {
		t.Fatalf("type: got %q want %q", got, EvStageChanged)
	}
}

func TestEventTickFromJSONNumber(t *testing.T) {
	// JSON round-trips numbers as float64.
	ev := Event{"t": float64(7)}
	if got := ev.Tick(); got != 7 {
		t.Fatalf("tick: got %d want 7", got)
	}
}

func TestEventMissingFields(t *testing.T) {
	ev := Event{}
	if got := ev.Tick(); got != 0 {
		t.Fatalf("tick: got %d want 0", got)
	}
	if got := ev.EventType(); got != "" {
		t.Fatalf("type: got %q want empty", got)
	}
}
