// Package session tracks the observed lifecycle of one monitored agent
// session. The machine commits state transitions only when a classification
// clears the configured confidence threshold; low-confidence readings are
// recorded in history but never move the committed state.
package session

import (
	"sync"
	"time"

	"github.com/vigil-sh/vigil/internal/state"
)

// HistorySize bounds the per-session confidence history ring.
const HistorySize = 50

// Status describes the monitoring loop for a session, not the agent itself.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusErrored Status = "errored"
)

// HistoryEntry is one classification sample, committed or not.
type HistoryEntry struct {
	State      state.SessionState `json:"state"`
	Confidence float64            `json:"confidence"`
	Provider   string             `json:"provider"`
	Committed  bool               `json:"committed"`
	Timestamp  time.Time          `json:"timestamp"`
}

// Transition reports a committed state change.
type Transition struct {
	From state.SessionState
	To   state.SessionState
	At   time.Time
}

// Snapshot is a point-in-time copy of a session, safe to hold after the
// machine moves on.
type Snapshot struct {
	Interface      string             `json:"interface"`
	Status         Status             `json:"status"`
	CurrentState   state.SessionState `json:"current_state"`
	LastResult     state.Result       `json:"last_result"`
	StartedAt      time.Time          `json:"started_at"`
	LastSampleAt   time.Time          `json:"last_sample_at"`
	StateChangedAt time.Time          `json:"state_changed_at"`
	Samples        int                `json:"samples"`
	History        []HistoryEntry     `json:"history"`
}

// Machine is the state machine for one monitored interface.
type Machine struct {
	mu sync.Mutex

	iface     string
	threshold float64

	status       Status
	current      state.SessionState
	lastResult   state.Result
	startedAt    time.Time
	lastSample   time.Time
	stateChanged time.Time
	samples      int
	history      []HistoryEntry
}

// NewMachine starts a session machine in the unknown state.
func NewMachine(iface string, confidenceThreshold float64) *Machine {
	now := time.Now().UTC()
	return &Machine{
		iface:        iface,
		threshold:    confidenceThreshold,
		status:       StatusRunning,
		current:      state.StateUnknown,
		startedAt:    now,
		stateChanged: now,
	}
}

// Observe records one classification. The committed state changes only when
// the reading clears the confidence threshold AND names a different state;
// every reading lands in history either way. It returns a non-nil Transition
// when the committed state changed.
func (m *Machine) Observe(res state.Result) *Transition {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := res.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}
	m.lastSample = now
	m.samples++
	m.lastResult = res.Clone()

	committed := res.Confidence >= m.threshold && res.State != m.current
	m.pushHistory(HistoryEntry{
		State:      res.State,
		Confidence: res.Confidence,
		Provider:   res.Provider,
		Committed:  committed,
		Timestamp:  now,
	})

	if !committed {
		return nil
	}

	tr := &Transition{From: m.current, To: res.State, At: now}
	m.current = res.State
	m.stateChanged = now
	return tr
}

// pushHistory appends with a fixed bound. Caller holds mu.
func (m *Machine) pushHistory(e HistoryEntry) {
	m.history = append(m.history, e)
	if len(m.history) > HistorySize {
		m.history = m.history[len(m.history)-HistorySize:]
	}
}

// Current returns the last committed state.
func (m *Machine) Current() state.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SetStatus updates the monitoring-loop status.
func (m *Machine) SetStatus(s Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = s
}

// Reset returns the machine to unknown after a recovery relaunch so stale
// high-confidence history cannot mask the new session's startup phase.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	m.current = state.StateUnknown
	m.lastResult = state.Result{}
	m.stateChanged = now
	m.history = nil
	m.status = StatusRunning
}

// Snapshot deep-copies the machine's observable state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	hist := make([]HistoryEntry, len(m.history))
	copy(hist, m.history)

	return Snapshot{
		Interface:      m.iface,
		Status:         m.status,
		CurrentState:   m.current,
		LastResult:     m.lastResult.Clone(),
		StartedAt:      m.startedAt,
		LastSampleAt:   m.lastSample,
		StateChangedAt: m.stateChanged,
		Samples:        m.samples,
		History:        hist,
	}
}
