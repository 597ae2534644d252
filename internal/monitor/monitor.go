// Package monitor runs the sampling loop: capture a frame, classify it,
// update the session machine, dispatch any recovery action, and adapt the
// sampling interval to what was seen. One goroutine per monitored interface.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vigil-sh/vigil/internal/config"
	"github.com/vigil-sh/vigil/internal/dispatch"
	"github.com/vigil-sh/vigil/internal/events"
	"github.com/vigil-sh/vigil/internal/handler"
	"github.com/vigil-sh/vigil/internal/notify"
	"github.com/vigil-sh/vigil/internal/session"
	"github.com/vigil-sh/vigil/internal/state"
)

// ErrAlreadyMonitored is returned when a second monitor is started for an
// interface that already has one. The existing monitor is never superseded.
var ErrAlreadyMonitored = errors.New("interface already monitored")

// lowConfidenceStreak is how many consecutive unknown or sub-threshold
// readings trigger an interval speedup.
const lowConfidenceStreak = 2

// windowGoneConfidence is the heuristic weight of a missing window.
const windowGoneConfidence = 0.9

// Classifier is the slice of classify.Classifier the loop needs.
type Classifier interface {
	Classify(ctx context.Context, frame handler.Frame, hints []handler.Hint, promptContext string) state.Result
}

// Monitor samples one interface until stopped.
type Monitor struct {
	iface      string
	handler    handler.Handler
	classifier Classifier
	machine    *session.Machine
	dispatcher *dispatch.Dispatcher
	policy     config.PolicyConfig
	cfg        config.MonitorConfig
	logger     *events.Logger
	notifier   *notify.Notifier

	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	interval  time.Duration
	lowStreak int
	frames    []handler.Frame
}

// NewMonitor assembles a monitor without starting it. logger and notifier
// may be nil.
func NewMonitor(iface string, h handler.Handler, c Classifier, d *dispatch.Dispatcher,
	policy config.PolicyConfig, cfg config.MonitorConfig, logger *events.Logger,
	notifier *notify.Notifier) *Monitor {
	return &Monitor{
		iface:      iface,
		handler:    h,
		classifier: c,
		machine:    session.NewMachine(iface, policy.ConfidenceThreshold),
		dispatcher: d,
		policy:     policy,
		cfg:        cfg,
		logger:     logger,
		notifier:   notifier,
		interval:   time.Duration(cfg.IntervalSeconds) * time.Second,
		done:       make(chan struct{}),
	}
}

// Start begins the sampling loop.
func (m *Monitor) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	m.cancel = cancel
	m.emit(events.EventMonitorStart, map[string]any{"interval_seconds": m.cfg.IntervalSeconds})
	go m.run(ctx)
}

// Stop cancels any in-flight classification and waits for the loop to exit.
// Stopping a monitor that was never started is a no-op.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

// Snapshot returns an immutable copy of the session state.
func (m *Monitor) Snapshot() session.Snapshot {
	return m.machine.Snapshot()
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)
	// Record terminal status on disk; a dead monitor must never keep
	// reading as running to other processes.
	defer func() {
		m.machine.SetStatus(session.StatusStopped)
		if err := m.writeHeartbeat(); err != nil {
			log.Printf("[monitor] %s final heartbeat: %v", m.iface, err)
		}
	}()
	defer m.emit(events.EventMonitorStop, nil)

	timer := time.NewTimer(0) // first cycle immediately
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		m.cycle(ctx)

		if ctx.Err() != nil {
			return
		}
		timer.Reset(m.currentInterval())
	}
}

// cycle runs one sample: capture, classify, observe, dispatch, heartbeat.
func (m *Monitor) cycle(ctx context.Context) {
	res := m.classifyOnce(ctx)
	if ctx.Err() != nil {
		return
	}

	transition := m.machine.Observe(res)
	m.adaptInterval(res)

	if transition != nil {
		m.emit(events.EventStateTransition, events.ToMap(events.TransitionData{
			From:       string(transition.From),
			To:         string(transition.To),
			Confidence: res.Confidence,
			Provider:   res.Provider,
		}))

		decision := dispatch.Decide(transition.To, res.Confidence, m.policy,
			m.dispatcher.HasPending(), handler.IsSystemicError(res.Evidence))
		outcome := m.dispatcher.Dispatch(ctx, decision)
		m.emit(events.EventActionDispatched, events.ToMap(events.ActionData{
			Action:  string(outcome.Action),
			Outcome: string(outcome.Outcome),
			Detail:  outcome.Detail,
		}))

		m.notifyOutcome(transition.To, decision, outcome)

		// A fresh session starts over from unknown.
		if outcome.Action == dispatch.ActionNewSession && outcome.Outcome == dispatch.OutcomeExecuted {
			m.machine.Reset()
		}
	}

	if err := m.writeHeartbeat(); err != nil {
		log.Printf("[monitor] %s heartbeat: %v", m.iface, err)
	}
}

// notifyOutcome surfaces transitions and dispatch outcomes that a human may
// care about. Subscription filtering happens inside the notifier.
func (m *Monitor) notifyOutcome(to state.SessionState, decision dispatch.Decision, outcome dispatch.Result) {
	if m.notifier == nil {
		return
	}

	if typ, ok := stateEvents[to]; ok {
		m.send(notify.Event{
			Type:      typ,
			Timestamp: time.Now(),
			Interface: m.iface,
			State:     string(to),
			Message:   fmt.Sprintf("session %s is %s", m.iface, to),
		})
	}

	switch outcome.Outcome {
	case dispatch.OutcomeReportOnly:
		m.send(notify.Event{
			Type:      notify.EventApprovalNeeded,
			Timestamp: time.Now(),
			Interface: m.iface,
			State:     string(to),
			Message:   fmt.Sprintf("action %s needs approval: %s", outcome.Action, decision.Reason),
		})
	case dispatch.OutcomeFailed:
		typ := notify.EventSessionError
		if outcome.Action == dispatch.ActionNewSession {
			typ = notify.EventRecoveryFailed
		}
		m.send(notify.Event{
			Type:      typ,
			Timestamp: time.Now(),
			Interface: m.iface,
			State:     string(to),
			Message:   fmt.Sprintf("action %s failed: %s", outcome.Action, outcome.Detail),
		})
	}
}

func (m *Monitor) send(ev notify.Event) {
	if err := m.notifier.Notify(ev); err != nil {
		log.Printf("[monitor] %s notify: %v", m.iface, err)
	}
}

var stateEvents = map[state.SessionState]notify.EventType{
	state.StatePaused:      notify.EventSessionPaused,
	state.StateEnded:       notify.EventSessionEnded,
	state.StateError:       notify.EventSessionError,
	state.StateRateLimited: notify.EventSessionRateLimited,
}

// classifyOnce captures a frame and classifies it. A missing window is not
// an error: it becomes a strong heuristic that the session ended.
func (m *Monitor) classifyOnce(ctx context.Context) state.Result {
	win, err := m.handler.LocateWindow(ctx)
	if err != nil {
		if errors.Is(err, handler.ErrWindowNotFound) {
			hints := []handler.Hint{{
				State:      state.StateEnded,
				Confidence: windowGoneConfidence,
				Evidence:   "target window not found",
			}}
			return m.classifier.Classify(ctx, handler.Frame{}, hints, "")
		}
		m.emit(events.EventClassifyFailure, map[string]any{"error": err.Error()})
		return state.Unknown(m.handler.Name(), fmt.Sprintf("locate window: %v", err))
	}

	frame, err := m.handler.CaptureRegion(ctx, win)
	if err != nil {
		m.emit(events.EventClassifyFailure, map[string]any{"error": err.Error()})
		return state.Unknown(m.handler.Name(), fmt.Sprintf("capture: %v", err))
	}
	m.pushFrame(frame)

	return m.classifier.Classify(ctx, frame, m.handler.Hints(frame), "")
}

// adaptInterval tunes the sampling rate from the latest reading. Two
// consecutive low-information readings halve the interval down to the
// floor; a rate-limited state multiplies it up to the ceiling; any other
// confident reading returns to the base rate.
func (m *Monitor) adaptInterval(res state.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	base := time.Duration(m.cfg.IntervalSeconds) * time.Second
	min := time.Duration(m.cfg.MinIntervalSeconds) * time.Second
	max := time.Duration(m.cfg.MaxIntervalSeconds) * time.Second

	switch {
	case res.State == state.StateRateLimited:
		m.lowStreak = 0
		factor := m.cfg.BackoffFactor
		if factor <= 1 {
			factor = 2
		}
		m.interval = time.Duration(float64(m.interval) * factor)
		if m.interval > max {
			m.interval = max
		}
	case res.State == state.StateUnknown || res.Confidence < m.policy.ConfidenceThreshold:
		m.lowStreak++
		if m.lowStreak >= lowConfidenceStreak {
			m.interval /= 2
			if m.interval < min {
				m.interval = min
			}
			m.lowStreak = 0
		}
	default:
		m.lowStreak = 0
		m.interval = base
	}
}

func (m *Monitor) currentInterval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}

// pushFrame retains the most recent frames for diagnostics.
func (m *Monitor) pushFrame(f handler.Frame) {
	if m.cfg.FrameDumpDir != "" {
		if err := m.dumpFrame(f); err != nil {
			log.Printf("[monitor] %s frame dump: %v", m.iface, err)
		}
	}

	size := m.cfg.FrameRingSize
	if size <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, f)
	if len(m.frames) > size {
		m.frames = m.frames[len(m.frames)-size:]
	}
}

// dumpFrame persists the latest captured frame for offline inspection.
// Only the newest frame per interface is kept on disk.
func (m *Monitor) dumpFrame(f handler.Frame) error {
	if err := os.MkdirAll(m.cfg.FrameDumpDir, 0o755); err != nil {
		return err
	}
	if len(f.PNG) > 0 {
		path := filepath.Join(m.cfg.FrameDumpDir, m.iface+".png")
		if err := writeFileAtomic(path, f.PNG); err != nil {
			return err
		}
	}
	if f.Text != "" {
		path := filepath.Join(m.cfg.FrameDumpDir, m.iface+".txt")
		if err := writeFileAtomic(path, []byte(f.Text)); err != nil {
			return err
		}
	}
	return nil
}

// RecentFrames returns a copy of the retained frames, oldest first.
func (m *Monitor) RecentFrames() []handler.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]handler.Frame, len(m.frames))
	copy(out, m.frames)
	return out
}

// writeHeartbeat persists the current snapshot atomically so `vigil status`
// can read it from another process.
func (m *Monitor) writeHeartbeat() error {
	dir := m.cfg.HeartbeatDir
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	snap := m.machine.Snapshot()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	return writeFileAtomic(filepath.Join(dir, m.iface+".json"), data)
}

// writeFileAtomic writes via a temp file and rename so readers in other
// processes never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

func (m *Monitor) emit(t events.EventType, data map[string]any) {
	if m.logger == nil {
		return
	}
	if err := m.logger.Log(events.NewEvent(t, m.iface, data)); err != nil {
		log.Printf("[monitor] %s event log: %v", m.iface, err)
	}
}
