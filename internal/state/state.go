// Package state defines the session states and classification results that
// flow between the classifier, the state machine, and the dispatcher.
package state

import (
	"fmt"
	"time"
)

// SessionState represents the classified state of a monitored LLM session.
type SessionState string

const (
	// StateActive indicates the session is producing output (thinking/streaming).
	StateActive SessionState = "active"
	// StatePaused indicates the response was truncated and a continue control is visible.
	StatePaused SessionState = "paused"
	// StateReady indicates the session is idle at an input box waiting for the user.
	StateReady SessionState = "ready"
	// StateEnded indicates the conversation has ended or hit its length limit.
	StateEnded SessionState = "ended"
	// StateError indicates the interface is showing an error condition.
	StateError SessionState = "error"
	// StateRateLimited indicates the provider is throttling the session.
	StateRateLimited SessionState = "rate_limited"
	// StateUnknown is the initial and fallback state when classification
	// fails or is inconclusive. It is a first-class state, not an error.
	StateUnknown SessionState = "unknown"
)

// String returns the string representation of the state.
func (s SessionState) String() string {
	return string(s)
}

// Valid reports whether s is one of the known session states.
func (s SessionState) Valid() bool {
	switch s {
	case StateActive, StatePaused, StateReady, StateEnded,
		StateError, StateRateLimited, StateUnknown:
		return true
	}
	return false
}

// Icon returns the visual indicator for a state.
func (s SessionState) Icon() string {
	switch s {
	case StateActive:
		return "\U0001f7e2" // green circle
	case StateReady:
		return "⚪" // white circle
	case StatePaused:
		return "\U0001f7e1" // yellow circle
	case StateEnded:
		return "⚫" // black circle
	case StateError:
		return "\U0001f534" // red circle
	case StateRateLimited:
		return "\U0001f7e0" // orange circle
	default:
		return "❔" // question mark
	}
}

// MergedProvider is the provider name assigned to merged results.
const MergedProvider = "merged"

// Result is one provider's classification of a single frame.
// Results are never mutated after construction.
type Result struct {
	// State is the classified session state.
	State SessionState `json:"state"`
	// Confidence is the classifier's certainty in [0,1].
	Confidence float64 `json:"confidence"`
	// Evidence lists the visual or textual indicators behind the call.
	Evidence []string `json:"evidence,omitempty"`
	// Provider identifies which backend produced the result.
	Provider string `json:"provider"`
	// Timestamp is when the result was produced.
	Timestamp time.Time `json:"timestamp"`
}

// NewResult constructs a Result, validating the state and confidence range.
func NewResult(s SessionState, confidence float64, provider string, evidence ...string) (Result, error) {
	if !s.Valid() {
		return Result{}, fmt.Errorf("invalid session state %q", s)
	}
	if confidence < 0 || confidence > 1 {
		return Result{}, fmt.Errorf("confidence %.3f out of range [0,1]", confidence)
	}
	return Result{
		State:      s,
		Confidence: confidence,
		Evidence:   evidence,
		Provider:   provider,
		Timestamp:  time.Now().UTC(),
	}, nil
}

// Unknown returns an unknown/zero-confidence result carrying the given
// evidence. Used when classification fails outright.
func Unknown(provider string, evidence ...string) Result {
	return Result{
		State:      StateUnknown,
		Confidence: 0,
		Evidence:   evidence,
		Provider:   provider,
		Timestamp:  time.Now().UTC(),
	}
}

// Clone returns a deep copy of the result.
func (r Result) Clone() Result {
	out := r
	if r.Evidence != nil {
		out.Evidence = make([]string, len(r.Evidence))
		copy(out.Evidence, r.Evidence)
	}
	return out
}
