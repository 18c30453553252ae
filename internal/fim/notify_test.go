package fim

import (
	"errors"
	"testing"
)

type stubSink struct {
	name     string
	err      error
	received []NotifySummary
}

func (s *stubSink) Name() string { return s.name }

func (s *stubSink) Notify(summary NotifySummary) error {
	s.received = append(s.received, summary)
	return s.err
}

func TestDispatcher_deliversToAllSinks(t *testing.T) {
	a := &stubSink{name: "a"}
	b := &stubSink{name: "b"}
	d := NewDispatcher(NewNopLogger(), a, b)

	summary := NotifySummary{TotalFiles: 3, ModifiedCount: 1}
	d.Dispatch(summary)

	for _, sink := range []*stubSink{a, b} {
		if len(sink.received) != 1 {
			t.Fatalf("sink %s received %d summaries, want 1", sink.name, len(sink.received))
		}
		if sink.received[0] != summary {
			t.Errorf("sink %s received %+v, want %+v", sink.name, sink.received[0], summary)
		}
	}
}

func TestDispatcher_failingSinkDoesNotBlockOthers(t *testing.T) {
	failing := &stubSink{name: "failing", err: errors.New("smtp down")}
	healthy := &stubSink{name: "healthy"}
	d := NewDispatcher(NewNopLogger(), failing, healthy)

	d.Dispatch(NotifySummary{ModifiedCount: 1})

	if len(healthy.received) != 1 {
		t.Errorf("healthy sink received %d summaries, want 1", len(healthy.received))
	}
}

func TestDispatcher_noSinks(t *testing.T) {
	d := NewDispatcher(NewNopLogger())
	d.Dispatch(NotifySummary{}) // must not panic
}
