package events

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLogAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	l, err := NewLogger(path, 30)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	if err := l.LogEvent(EventStateTransition, "claude_code", TransitionData{
		From: "active", To: "paused", Confidence: 0.92, Provider: "merged",
	}); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	if err := l.LogEvent(EventActionDispatched, "claude_code", ActionData{
		Action: "continue", Outcome: "executed",
	}); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	evs, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("got %d events, want 2", len(evs))
	}
	if evs[0].Type != EventStateTransition || evs[0].Interface != "claude_code" {
		t.Fatalf("unexpected first event: %+v", evs[0])
	}
	if evs[0].Data["to"] != "paused" {
		t.Fatalf("transition data = %v", evs[0].Data)
	}
	if evs[1].Type != EventActionDispatched {
		t.Fatalf("unexpected second event: %+v", evs[1])
	}
}

func TestDisabledLoggerIsNoop(t *testing.T) {
	l, err := NewLogger("", 30)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if err := l.LogEvent(EventError, "x", map[string]any{"k": "v"}); err != nil {
		t.Fatalf("disabled Log: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPruneDropsExpiredEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	l, err := NewLogger(path, 30)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	old := NewEvent(EventMonitorStart, "claude_code", nil)
	old.Timestamp = time.Now().AddDate(0, 0, -60)
	fresh := NewEvent(EventMonitorStop, "claude_code", nil)
	for _, e := range []*Event{old, fresh} {
		if err := l.Log(e); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	cutoff := time.Now().AddDate(0, 0, -30)
	if err := pruneBefore(path, cutoff); err != nil {
		t.Fatalf("pruneBefore: %v", err)
	}

	evs, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(evs) != 1 || evs[0].Type != EventMonitorStop {
		t.Fatalf("events after prune = %+v", evs)
	}
}

func TestReadAllMissingFile(t *testing.T) {
	evs, err := ReadAll(filepath.Join(t.TempDir(), "nope.jsonl"))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if evs != nil {
		t.Fatalf("got %v, want nil", evs)
	}
}

func TestToMapUnknownTypeIsNil(t *testing.T) {
	if m := ToMap(42); m != nil {
		t.Fatalf("ToMap(42) = %v, want nil", m)
	}
	if m := ToMap(map[string]any{"a": 1}); m["a"] != 1 {
		t.Fatalf("map passthrough broken: %v", m)
	}
}
