package log

import "testing"

// recordingLogger collects events for assertions.
type recordingLogger struct {
	events []Event
}

func (r *recordingLogger) Log(e Event) { r.events = append(r.events, e) }

func TestNoopLogger(t *testing.T) {
	var l Logger = NoopLogger{}
	l.Log(Event{})
}

func TestOrNoop(t *testing.T) {
	if _, ok := OrNoop(nil).(NoopLogger); !ok {
		t.Error("OrNoop(nil) should return NoopLogger")
	}
	r := &recordingLogger{}
	if OrNoop(r) != Logger(r) {
		t.Error("OrNoop should return non-nil logger unchanged")
	}
}

func TestMultiLogger(t *testing.T) {
	a := &recordingLogger{}
	b := &recordingLogger{}
	m := NewMultiLogger(a, nil, b)

	m.Log(Event{ConnectionID: "one"})
	m.Log(Event{ConnectionID: "two"})

	for name, r := range map[string]*recordingLogger{"a": a, "b": b} {
		if len(r.events) != 2 {
			t.Fatalf("%s received %d events, want 2", name, len(r.events))
		}
		if r.events[1].ConnectionID != "two" {
			t.Errorf("%s second event = %q", name, r.events[1].ConnectionID)
		}
	}
}
