package handler

import (
	"testing"

	"github.com/vigil-sh/vigil/internal/state"
)

func TestStripANSI(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "no ansi", input: "hello world", expected: "hello world"},
		{name: "color codes", input: "\x1b[32mgreen\x1b[0m text", expected: "green text"},
		{name: "cursor movement", input: "\x1b[2Jcleared", expected: "cleared"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripANSI(tt.input); got != tt.expected {
				t.Errorf("StripANSI(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDetectHints(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		agentType string
		wantState state.SessionState
		minConf   float64
	}{
		{
			name:      "rate limit message",
			text:      "Error: you've reached your usage limit. Upgrade for more.",
			wantState: state.StateRateLimited,
			minConf:   0.9,
		},
		{
			name:      "http 429",
			text:      "request failed with status 429",
			wantState: state.StateRateLimited,
			minConf:   0.85,
		},
		{
			name:      "truncated response offers continue",
			text:      "...and the response was truncated.\nContinue?",
			wantState: state.StatePaused,
			minConf:   0.85,
		},
		{
			name:      "press enter to continue",
			text:      "Press Enter to continue",
			wantState: state.StatePaused,
			minConf:   0.9,
		},
		{
			name:      "conversation limit",
			text:      "This conversation is too long. Please start a new conversation.",
			wantState: state.StateEnded,
			minConf:   0.85,
		},
		{
			name:      "thinking indicator",
			text:      "Thinking... (esc to interrupt)",
			wantState: state.StateActive,
			minConf:   0.85,
		},
		{
			name:      "auth failure",
			text:      "authentication failed: invalid API key",
			wantState: state.StateError,
			minConf:   0.85,
		},
		{
			name:      "claude prompt is ready",
			text:      "done editing files\n\nclaude> ",
			agentType: "claude",
			wantState: state.StateReady,
			minConf:   0.75,
		},
		{
			name:      "shell prompt in agent pane means exited",
			text:      "goodbye\nuser@host:~$",
			agentType: "claude",
			wantState: state.StateEnded,
			minConf:   0.75,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hints := DetectHints(tt.text, tt.agentType)
			if len(hints) == 0 {
				t.Fatalf("DetectHints(%q) returned no hints", tt.text)
			}
			found := false
			for _, h := range hints {
				if h.State == tt.wantState && h.Confidence >= tt.minConf {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("DetectHints(%q) = %+v, want state %s with confidence >= %v",
					tt.text, hints, tt.wantState, tt.minConf)
			}
		})
	}
}

func TestDetectHintsEmptyText(t *testing.T) {
	if hints := DetectHints("", "claude"); hints != nil {
		t.Errorf("expected no hints for empty text, got %+v", hints)
	}
	if hints := DetectHints("   \n  ", ""); hints != nil {
		t.Errorf("expected no hints for blank text, got %+v", hints)
	}
}

func TestDetectHintsAnsiStripped(t *testing.T) {
	text := "\x1b[33mThinking\x1b[0m... (esc to interrupt)"
	hints := DetectHints(text, "claude")
	if len(hints) == 0 || hints[0].State != state.StateActive {
		t.Errorf("expected active hint through ANSI codes, got %+v", hints)
	}
}

func TestIsSystemicError(t *testing.T) {
	tests := []struct {
		name     string
		evidence []string
		expected bool
	}{
		{name: "auth failure", evidence: []string{"authentication failure"}, expected: true},
		{name: "invalid credentials", evidence: []string{"invalid credentials"}, expected: true},
		{name: "disk full", evidence: []string{"disk full"}, expected: true},
		{name: "connection issue is local", evidence: []string{"connection issue"}, expected: false},
		{name: "empty", evidence: nil, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSystemicError(tt.evidence); got != tt.expected {
				t.Errorf("IsSystemicError(%v) = %v, want %v", tt.evidence, got, tt.expected)
			}
		})
	}
}
