package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vigil-sh/vigil/internal/config"
	"github.com/vigil-sh/vigil/internal/dispatch"
	"github.com/vigil-sh/vigil/internal/handler"
	"github.com/vigil-sh/vigil/internal/notify"
	"github.com/vigil-sh/vigil/internal/session"
	"github.com/vigil-sh/vigil/internal/state"
)

// scriptedClassifier returns queued results in order, repeating the last.
type scriptedClassifier struct {
	results   []state.Result
	i         int
	lastHints []handler.Hint
	block     chan struct{} // if non-nil, Classify waits for ctx or this
}

func (s *scriptedClassifier) Classify(ctx context.Context, frame handler.Frame, hints []handler.Hint, promptContext string) state.Result {
	s.lastHints = hints
	if s.block != nil {
		select {
		case <-ctx.Done():
			return state.Unknown("merged", "classification cancelled")
		case <-s.block:
		}
	}
	if len(s.results) == 0 {
		return state.Unknown("merged")
	}
	r := s.results[s.i]
	if s.i < len(s.results)-1 {
		s.i++
	}
	return r
}

type loopHandler struct {
	windowErr error
	frame     handler.Frame
	hints     []handler.Hint
	clicked   int
}

func (h *loopHandler) Name() string { return "loop" }

func (h *loopHandler) LocateWindow(ctx context.Context) (handler.WindowHandle, error) {
	if h.windowErr != nil {
		return handler.WindowHandle{}, h.windowErr
	}
	return handler.WindowHandle{ID: "w"}, nil
}

func (h *loopHandler) CaptureRegion(ctx context.Context, w handler.WindowHandle) (handler.Frame, error) {
	return h.frame, nil
}

func (h *loopHandler) FindControl(ctx context.Context, w handler.WindowHandle, k handler.ControlKind) (handler.Control, error) {
	return handler.Control{Kind: k}, nil
}

func (h *loopHandler) Click(ctx context.Context, c handler.Control) error {
	h.clicked++
	return nil
}

func (h *loopHandler) TypeText(ctx context.Context, w handler.WindowHandle, text string) error {
	return nil
}

func (h *loopHandler) Hints(f handler.Frame) []handler.Hint { return h.hints }

func result(t *testing.T, s state.SessionState, conf float64) state.Result {
	t.Helper()
	r, err := state.NewResult(s, conf, "merged", "scripted")
	if err != nil {
		t.Fatalf("NewResult: %v", err)
	}
	return r
}

func testMonitor(t *testing.T, h handler.Handler, c Classifier) *Monitor {
	t.Helper()
	cfg := config.DefaultMonitorConfig()
	cfg.HeartbeatDir = ""
	policy := config.DefaultPolicyConfig()
	d := dispatch.NewDispatcher("loop", h, nil, nil)
	return NewMonitor("loop", h, c, d, policy, cfg, nil, nil)
}

func TestRateLimitBackoffBounded(t *testing.T) {
	m := testMonitor(t, &loopHandler{}, &scriptedClassifier{})
	max := time.Duration(m.cfg.MaxIntervalSeconds) * time.Second
	rl := result(t, state.StateRateLimited, 0.9)

	prev := m.currentInterval()
	for range 10 {
		m.adaptInterval(rl)
		cur := m.currentInterval()
		if cur < prev {
			t.Fatalf("interval shrank under rate limiting: %v -> %v", prev, cur)
		}
		if cur > max {
			t.Fatalf("interval %v exceeds ceiling %v", cur, max)
		}
		prev = cur
	}
	if prev != max {
		t.Fatalf("interval = %v, want saturated at %v", prev, max)
	}
}

func TestTwoLowReadingsHalveInterval(t *testing.T) {
	m := testMonitor(t, &loopHandler{}, &scriptedClassifier{})
	base := m.currentInterval()
	unk := state.Unknown("merged")

	m.adaptInterval(unk)
	if m.currentInterval() != base {
		t.Fatalf("interval moved after one low reading")
	}
	m.adaptInterval(unk)
	if m.currentInterval() != base/2 {
		t.Fatalf("interval = %v, want %v after two low readings", m.currentInterval(), base/2)
	}

	// Keep pushing; must not go under the floor.
	min := time.Duration(m.cfg.MinIntervalSeconds) * time.Second
	for range 10 {
		m.adaptInterval(unk)
	}
	if m.currentInterval() < min {
		t.Fatalf("interval %v below floor %v", m.currentInterval(), min)
	}
}

func TestConfidentReadingResetsInterval(t *testing.T) {
	m := testMonitor(t, &loopHandler{}, &scriptedClassifier{})
	base := m.currentInterval()

	m.adaptInterval(result(t, state.StateRateLimited, 0.9))
	if m.currentInterval() == base {
		t.Fatal("backoff did not move interval")
	}
	m.adaptInterval(result(t, state.StateActive, 0.9))
	if m.currentInterval() != base {
		t.Fatalf("interval = %v, want reset to %v", m.currentInterval(), base)
	}
}

func TestCycleCommitsTransitionAndDispatches(t *testing.T) {
	h := &loopHandler{}
	c := &scriptedClassifier{results: []state.Result{result(t, state.StatePaused, 0.95)}}
	m := testMonitor(t, h, c)

	m.cycle(context.Background())

	if got := m.machine.Snapshot().CurrentState; got != state.StatePaused {
		t.Fatalf("state = %s, want paused", got)
	}
	if h.clicked != 1 {
		t.Fatalf("clicked = %d, want 1 (continue dispatched)", h.clicked)
	}
}

func TestCycleLowConfidenceHoldsStateAndActions(t *testing.T) {
	h := &loopHandler{}
	c := &scriptedClassifier{results: []state.Result{result(t, state.StatePaused, 0.4)}}
	m := testMonitor(t, h, c)

	m.cycle(context.Background())

	if got := m.machine.Snapshot().CurrentState; got != state.StateUnknown {
		t.Fatalf("state = %s, want unknown held", got)
	}
	if h.clicked != 0 {
		t.Fatal("no action may fire on a sub-threshold reading")
	}
	if len(m.machine.Snapshot().History) != 1 {
		t.Fatal("reading must still land in history")
	}
}

func TestMissingWindowFeedsEndedHint(t *testing.T) {
	h := &loopHandler{windowErr: handler.ErrWindowNotFound}
	c := &scriptedClassifier{results: []state.Result{result(t, state.StateEnded, 0.9)}}
	m := testMonitor(t, h, c)

	m.cycle(context.Background())

	if len(c.lastHints) != 1 || c.lastHints[0].State != state.StateEnded {
		t.Fatalf("hints = %+v, want ended hint", c.lastHints)
	}
	if c.lastHints[0].Confidence != windowGoneConfidence {
		t.Fatalf("hint confidence = %v, want %v", c.lastHints[0].Confidence, windowGoneConfidence)
	}
}

func TestHeartbeatWrittenAtomically(t *testing.T) {
	h := &loopHandler{}
	c := &scriptedClassifier{results: []state.Result{result(t, state.StateActive, 0.9)}}
	m := testMonitor(t, h, c)
	m.cfg.HeartbeatDir = t.TempDir()

	m.cycle(context.Background())

	data, err := os.ReadFile(filepath.Join(m.cfg.HeartbeatDir, "loop.json"))
	if err != nil {
		t.Fatalf("heartbeat missing: %v", err)
	}
	var snap session.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("heartbeat not valid JSON: %v", err)
	}
	if snap.CurrentState != state.StateActive {
		t.Fatalf("heartbeat state = %s, want active", snap.CurrentState)
	}
	// No temp files left behind.
	entries, _ := os.ReadDir(m.cfg.HeartbeatDir)
	if len(entries) != 1 {
		t.Fatalf("heartbeat dir has %d entries, want 1", len(entries))
	}
}

func TestStopCancelsInFlightClassification(t *testing.T) {
	h := &loopHandler{}
	c := &scriptedClassifier{block: make(chan struct{})}
	m := testMonitor(t, h, c)

	m.Start(context.Background())

	stopped := make(chan struct{})
	go func() {
		m.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not join the loop")
	}
	if got := m.machine.Snapshot().Status; got != session.StatusStopped {
		t.Fatalf("status = %s, want stopped", got)
	}
}

func TestStopPersistsTerminalStatus(t *testing.T) {
	h := &loopHandler{}
	c := &scriptedClassifier{results: []state.Result{result(t, state.StateActive, 0.9)}}
	m := testMonitor(t, h, c)
	m.cfg.HeartbeatDir = t.TempDir()

	m.Start(context.Background())
	path := filepath.Join(m.cfg.HeartbeatDir, "loop.json")
	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, err := os.Stat(path); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("heartbeat never written")
		}
		time.Sleep(10 * time.Millisecond)
	}

	m.Stop()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("heartbeat missing after Stop: %v", err)
	}
	var snap session.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("heartbeat not valid JSON: %v", err)
	}
	if snap.Status != session.StatusStopped {
		t.Fatalf("persisted status = %s, want stopped", snap.Status)
	}
}

func TestStopWithoutStartReturns(t *testing.T) {
	m := testMonitor(t, &loopHandler{}, &scriptedClassifier{})

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a monitor that was never started")
	}
}

func TestManagerRejectsSecondMonitor(t *testing.T) {
	cfg := config.Default()
	cfg.Monitor.HeartbeatDir = t.TempDir()
	mg := NewManager(cfg, nil, nil, nil, nil, nil)

	// Register a monitor directly to avoid spawning a real loop.
	mg.monitors["claude_code"] = NewMonitor("claude_code", &loopHandler{}, &scriptedClassifier{},
		dispatch.NewDispatcher("claude_code", &loopHandler{}, nil, nil),
		cfg.Policy, cfg.Monitor, nil, nil)

	_, err := mg.Start(context.Background(), "claude_code")
	if !errors.Is(err, ErrAlreadyMonitored) {
		t.Fatalf("err = %v, want ErrAlreadyMonitored", err)
	}
}

func TestManagerUnknownInterface(t *testing.T) {
	mg := NewManager(config.Default(), nil, nil, nil, nil, nil)
	if _, err := mg.Start(context.Background(), "not_configured"); err == nil {
		t.Fatal("expected error for unknown interface")
	}
}

func TestReadHeartbeats(t *testing.T) {
	dir := t.TempDir()
	snap := session.Snapshot{Interface: "claude_code", CurrentState: state.StateReady}
	data, _ := json.Marshal(snap)
	if err := os.WriteFile(filepath.Join(dir, "claude_code.json"), data, 0o644); err != nil {
		t.Fatalf("seed heartbeat: %v", err)
	}

	snaps, err := ReadHeartbeats(dir)
	if err != nil {
		t.Fatalf("ReadHeartbeats: %v", err)
	}
	if len(snaps) != 1 || snaps[0].Interface != "claude_code" {
		t.Fatalf("snaps = %+v", snaps)
	}
}

func TestReportOnlyOutcomeNotifies(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "notifications.log")
	nc := notify.DefaultConfig()
	nc.Desktop.Enabled = false
	nc.Log = notify.LogConfig{Enabled: true, Path: logPath}

	h := &loopHandler{}
	c := &scriptedClassifier{results: []state.Result{result(t, state.StateEnded, 0.95)}}
	m := testMonitor(t, h, c)
	m.notifier = notify.New(nc) // auto_recover defaults off, so ended is report-only

	m.cycle(context.Background())

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read notification log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, string(notify.EventSessionEnded)) {
		t.Errorf("log missing session.ended: %q", out)
	}
	if !strings.Contains(out, string(notify.EventApprovalNeeded)) {
		t.Errorf("log missing approval_needed: %q", out)
	}
}
