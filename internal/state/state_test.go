package state

import (
	"testing"
)

func TestSessionStateValid(t *testing.T) {
	tests := []struct {
		name     string
		state    SessionState
		expected bool
	}{
		{name: "active", state: StateActive, expected: true},
		{name: "paused", state: StatePaused, expected: true},
		{name: "ready", state: StateReady, expected: true},
		{name: "ended", state: StateEnded, expected: true},
		{name: "error", state: StateError, expected: true},
		{name: "rate limited", state: StateRateLimited, expected: true},
		{name: "unknown", state: StateUnknown, expected: true},
		{name: "empty", state: SessionState(""), expected: false},
		{name: "garbage", state: SessionState("thinking"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.Valid(); got != tt.expected {
				t.Errorf("Valid(%q) = %v, want %v", tt.state, got, tt.expected)
			}
		})
	}
}

func TestNewResultValidation(t *testing.T) {
	tests := []struct {
		name       string
		state      SessionState
		confidence float64
		wantErr    bool
	}{
		{name: "valid mid confidence", state: StateActive, confidence: 0.5, wantErr: false},
		{name: "zero confidence", state: StateUnknown, confidence: 0, wantErr: false},
		{name: "full confidence", state: StateReady, confidence: 1.0, wantErr: false},
		{name: "negative confidence", state: StateActive, confidence: -0.1, wantErr: true},
		{name: "above one", state: StateActive, confidence: 1.01, wantErr: true},
		{name: "bad state", state: SessionState("bogus"), confidence: 0.5, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResult(tt.state, tt.confidence, "test")
			if (err != nil) != tt.wantErr {
				t.Errorf("NewResult(%q, %v) error = %v, wantErr %v", tt.state, tt.confidence, err, tt.wantErr)
			}
		})
	}
}

func TestUnknownResult(t *testing.T) {
	r := Unknown("openai", "timeout after 30s")
	if r.State != StateUnknown {
		t.Errorf("state = %q, want unknown", r.State)
	}
	if r.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", r.Confidence)
	}
	if len(r.Evidence) != 1 || r.Evidence[0] != "timeout after 30s" {
		t.Errorf("evidence = %v, want the failure reason", r.Evidence)
	}
	if r.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
}

func TestResultClone(t *testing.T) {
	r, err := NewResult(StatePaused, 0.9, "test", "continue button visible")
	if err != nil {
		t.Fatalf("NewResult: %v", err)
	}

	c := r.Clone()
	c.Evidence[0] = "mutated"
	if r.Evidence[0] != "continue button visible" {
		t.Error("Clone shares evidence slice with original")
	}
}
