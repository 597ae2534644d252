// Package events records monitor activity to a JSONL audit log with
// time-based rotation. Every committed transition, dispatched action, and
// recovery attempt leaves one line here.
package events

import (
	"time"
)

// EventType identifies what happened.
type EventType string

const (
	// Monitor lifecycle
	EventMonitorStart EventType = "monitor_start"
	EventMonitorStop  EventType = "monitor_stop"

	// Classification and state
	EventStateTransition EventType = "state_transition"
	EventClassifyFailure EventType = "classify_failure"

	// Actions
	EventActionDispatched EventType = "action_dispatched"

	// Recovery
	EventRecoveryLaunch  EventType = "recovery_launch"
	EventRecoveryFailed  EventType = "recovery_failed"
	EventContextInjected EventType = "context_injected"

	EventError EventType = "error"
)

// Event is a single logged occurrence, keyed by interface.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Interface string         `json:"interface,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(t EventType, iface string, data map[string]any) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		Type:      t,
		Interface: iface,
		Data:      data,
	}
}

// TransitionData describes a committed state change.
type TransitionData struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	Confidence float64 `json:"confidence"`
	Provider   string  `json:"provider"`
}

// ActionData describes a dispatch outcome.
type ActionData struct {
	Action  string `json:"action"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

// RecoveryData describes one launch attempt series.
type RecoveryData struct {
	Attempt int    `json:"attempt"`
	PID     int    `json:"pid,omitempty"`
	Health  string `json:"health,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// ToMap flattens typed event payloads for the JSON encoder.
func ToMap(v any) map[string]any {
	switch d := v.(type) {
	case TransitionData:
		return map[string]any{
			"from":       d.From,
			"to":         d.To,
			"confidence": d.Confidence,
			"provider":   d.Provider,
		}
	case ActionData:
		return map[string]any{
			"action":  d.Action,
			"outcome": d.Outcome,
			"detail":  d.Detail,
		}
	case RecoveryData:
		return map[string]any{
			"attempt": d.Attempt,
			"pid":     d.PID,
			"health":  d.Health,
			"reason":  d.Reason,
		}
	case map[string]any:
		return d
	default:
		return nil
	}
}
