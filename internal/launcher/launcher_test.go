package launcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vigil-sh/vigil/internal/config"
	"github.com/vigil-sh/vigil/internal/contextstore"
	"github.com/vigil-sh/vigil/internal/handler"
)

type fakeWindowHandler struct {
	name       string
	failLookup int // LocateWindow fails this many times before succeeding
	lookups    int
	typed      []string
}

func (f *fakeWindowHandler) Name() string { return f.name }

func (f *fakeWindowHandler) LocateWindow(ctx context.Context) (handler.WindowHandle, error) {
	f.lookups++
	if f.lookups <= f.failLookup {
		return handler.WindowHandle{}, handler.ErrWindowNotFound
	}
	return handler.WindowHandle{ID: "w1"}, nil
}

func (f *fakeWindowHandler) CaptureRegion(ctx context.Context, w handler.WindowHandle) (handler.Frame, error) {
	return handler.Frame{}, nil
}

func (f *fakeWindowHandler) FindControl(ctx context.Context, w handler.WindowHandle, k handler.ControlKind) (handler.Control, error) {
	return handler.Control{}, handler.ErrControlNotFound
}

func (f *fakeWindowHandler) Click(ctx context.Context, c handler.Control) error { return nil }

func (f *fakeWindowHandler) TypeText(ctx context.Context, w handler.WindowHandle, text string) error {
	f.typed = append(f.typed, text)
	return nil
}

func (f *fakeWindowHandler) Hints(fr handler.Frame) []handler.Hint { return nil }

func testInterfaces() map[string]config.InterfaceConfig {
	return map[string]config.InterfaceConfig{
		"claude_code": {
			Handler:    "tmux",
			Target:     "dev:0.0",
			Executable: "claude",
			Args:       []string{"--resume"},
		},
	}
}

func newTestLauncher(start startFunc) (*Launcher, *[]time.Duration) {
	var slept []time.Duration
	l := New(config.DefaultLauncherConfig(), testInterfaces(), nil, nil, nil)
	l.start = start
	l.sleep = func(_ context.Context, d time.Duration) { slept = append(slept, d) }
	return l, &slept
}

func TestLaunchFirstAttemptSucceeds(t *testing.T) {
	l, slept := newTestLauncher(func(exe string, args []string) (int, error) {
		if exe != "claude" || len(args) != 1 {
			t.Fatalf("launched %s %v", exe, args)
		}
		return 4242, nil
	})

	rec, err := l.Launch(context.Background(), "claude_code")
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if rec.PID != 4242 || rec.RetryCount != 0 || rec.Health != HealthStarting {
		t.Fatalf("record = %+v", rec)
	}
	if len(*slept) != 0 {
		t.Fatalf("slept %v, want no backoff on success", *slept)
	}
	if len(l.History()) != 1 {
		t.Fatalf("history = %d records, want 1", len(l.History()))
	}
}

func TestLaunchRetriesWithBackoffThenSucceeds(t *testing.T) {
	calls := 0
	l, slept := newTestLauncher(func(exe string, args []string) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("spawn failed")
		}
		return 99, nil
	})

	rec, err := l.Launch(context.Background(), "claude_code")
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if rec.RetryCount != 2 || rec.PID != 99 {
		t.Fatalf("record = %+v", rec)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*slept) != len(want) || (*slept)[0] != want[0] || (*slept)[1] != want[1] {
		t.Fatalf("backoff = %v, want %v", *slept, want)
	}
}

func TestLaunchExhaustsRetries(t *testing.T) {
	l, _ := newTestLauncher(func(exe string, args []string) (int, error) {
		return 0, errors.New("no such binary")
	})

	rec, err := l.Launch(context.Background(), "claude_code")
	if !errors.Is(err, ErrLaunchFailed) {
		t.Fatalf("err = %v, want ErrLaunchFailed", err)
	}
	if rec.RetryCount != 3 {
		t.Fatalf("retry_count = %d, want 3", rec.RetryCount)
	}
	if rec.Health != HealthCrashed {
		t.Fatalf("health = %s, want crashed", rec.Health)
	}
	if len(rec.Attempts) != 3 {
		t.Fatalf("attempts = %d, want 3", len(rec.Attempts))
	}
	for _, a := range rec.Attempts {
		if a.Failure == "" {
			t.Fatalf("attempt %d missing failure reason", a.Number)
		}
	}
}

func TestLaunchCancelCutsBackoffShort(t *testing.T) {
	l, _ := newTestLauncher(func(string, []string) (int, error) {
		return 0, errors.New("spawn failed")
	})
	l.cfg.RetryDelaySeconds = 30
	l.sleep = sleepContext

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := l.Launch(ctx, "claude_code")
	if !errors.Is(err, ErrLaunchFailed) {
		t.Fatalf("err = %v, want ErrLaunchFailed", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Launch took %v after cancel, want prompt return", elapsed)
	}
}

func TestLaunchUnknownInterface(t *testing.T) {
	l, _ := newTestLauncher(func(string, []string) (int, error) { return 1, nil })
	if _, err := l.Launch(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for unknown interface")
	}
}

func TestAwaitReadyPollsUntilWindowAppears(t *testing.T) {
	l, slept := newTestLauncher(func(string, []string) (int, error) { return 1, nil })
	h := &fakeWindowHandler{name: "claude_code", failLookup: 3}

	rec := Record{Interface: "claude_code", Health: HealthStarting}
	if err := l.AwaitReady(context.Background(), &rec, h); err != nil {
		t.Fatalf("AwaitReady: %v", err)
	}
	if rec.Health != HealthReady {
		t.Fatalf("health = %s, want ready", rec.Health)
	}
	if h.lookups != 4 {
		t.Fatalf("lookups = %d, want 4", h.lookups)
	}
	for _, d := range *slept {
		if d != 500*time.Millisecond {
			t.Fatalf("poll interval = %v, want 500ms", d)
		}
	}
}

func TestAwaitReadyTimesOut(t *testing.T) {
	l, _ := newTestLauncher(func(string, []string) (int, error) { return 1, nil })
	l.cfg.ReadyTimeoutSecs = 1
	l.cfg.ReadyPollMillis = 1
	l.sleep = sleepContext

	h := &fakeWindowHandler{name: "claude_code", failLookup: 1 << 30}
	rec := Record{Interface: "claude_code", Health: HealthStarting}
	err := l.AwaitReady(context.Background(), &rec, h)
	if !errors.Is(err, ErrReadyTimeout) {
		t.Fatalf("err = %v, want ErrReadyTimeout", err)
	}
	if rec.Health != HealthStarting {
		t.Fatalf("health = %s, want starting after timeout", rec.Health)
	}
}

func TestRelaunchInjectsContinuationPrompt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "claude_code.json"),
		[]byte(`{"operation":"port the scheduler","last_completed_step":"ported timers"}`), 0o644); err != nil {
		t.Fatalf("write context: %v", err)
	}
	store, err := contextstore.New(dir)
	if err != nil {
		t.Fatalf("contextstore.New: %v", err)
	}
	defer store.Close()

	h := &fakeWindowHandler{name: "claude_code"}
	l := New(config.DefaultLauncherConfig(), testInterfaces(),
		func(string, config.InterfaceConfig) (handler.Handler, error) { return h, nil },
		store, nil)
	l.start = func(string, []string) (int, error) { return 7, nil }
	l.sleep = func(context.Context, time.Duration) {}

	if err := l.Relaunch(context.Background(), "claude_code"); err != nil {
		t.Fatalf("Relaunch: %v", err)
	}
	if len(h.typed) != 1 {
		t.Fatalf("typed %d prompts, want 1", len(h.typed))
	}
	if !strings.Contains(h.typed[0], "port the scheduler") {
		t.Fatalf("prompt missing operation: %q", h.typed[0])
	}
}

func TestAwaitReadyHonorsCancellation(t *testing.T) {
	l, _ := newTestLauncher(func(string, []string) (int, error) { return 1, nil })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := &fakeWindowHandler{name: "claude_code", failLookup: 1 << 30}
	rec := Record{Interface: "claude_code"}
	if err := l.AwaitReady(ctx, &rec, h); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
