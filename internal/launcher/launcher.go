// Package launcher starts fresh agent sessions after failures. A launch
// attempt series retries with exponential backoff, waits for the new window
// to appear, then injects the recovery context as a continuation prompt.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"sync"
	"time"

	"github.com/vigil-sh/vigil/internal/config"
	"github.com/vigil-sh/vigil/internal/contextstore"
	"github.com/vigil-sh/vigil/internal/events"
	"github.com/vigil-sh/vigil/internal/handler"
)

// ErrReadyTimeout is returned by AwaitReady when the new window never
// appears. It is reported, not retried: the caller decides what comes next.
var ErrReadyTimeout = errors.New("session not ready before timeout")

// ErrLaunchFailed is returned when every attempt in a launch series failed.
var ErrLaunchFailed = errors.New("launch failed")

// Health tracks a launched process through its startup phase.
type Health string

const (
	HealthStarting Health = "starting"
	HealthReady    Health = "ready"
	HealthCrashed  Health = "crashed"
)

// Attempt records one launch try within a series.
type Attempt struct {
	Number  int       `json:"number"`
	At      time.Time `json:"at"`
	PID     int       `json:"pid,omitempty"`
	Failure string    `json:"failure,omitempty"`
}

// Record is the outcome of one launch series.
type Record struct {
	Interface  string    `json:"interface"`
	PID        int       `json:"pid,omitempty"`
	Health     Health    `json:"health"`
	RetryCount int       `json:"retry_count"`
	StartedAt  time.Time `json:"started_at"`
	Attempts   []Attempt `json:"attempts"`
}

// startFunc spawns the interface process and returns its PID. Swappable in
// tests; the default detaches the child so it outlives the monitor.
type startFunc func(exe string, args []string) (int, error)

func startDetached(exe string, args []string) (int, error) {
	cmd := exec.Command(exe, args...)
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, err
	}
	return pid, nil
}

// Launcher starts sessions for configured interfaces.
type Launcher struct {
	cfg      config.LauncherConfig
	ifaces   map[string]config.InterfaceConfig
	handlers func(name string, ic config.InterfaceConfig) (handler.Handler, error)
	store    *contextstore.Store // may be nil
	logger   *events.Logger      // may be nil
	start    startFunc
	sleep    func(context.Context, time.Duration)

	mu      sync.Mutex
	history []Record
}

// New builds a launcher. store and logger may be nil; handlerFactory is
// normally handler.New.
func New(cfg config.LauncherConfig, ifaces map[string]config.InterfaceConfig,
	handlerFactory func(string, config.InterfaceConfig) (handler.Handler, error),
	store *contextstore.Store, logger *events.Logger) *Launcher {
	return &Launcher{
		cfg:      cfg,
		ifaces:   ifaces,
		handlers: handlerFactory,
		store:    store,
		logger:   logger,
		start:    startDetached,
		sleep:    sleepContext,
	}
}

// sleepContext waits for d or until ctx is cancelled, whichever comes first,
// so a stop never has to wait out a backoff delay.
func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Launch runs one attempt series for an interface. Each failed attempt
// increments RetryCount and is recorded with its reason; backoff doubles
// between attempts. The returned Record is also appended to history even
// when the series fails.
func (l *Launcher) Launch(ctx context.Context, iface string) (Record, error) {
	ic, ok := l.ifaces[iface]
	if !ok {
		return Record{}, fmt.Errorf("unknown interface %q", iface)
	}
	if ic.Executable == "" {
		return Record{}, fmt.Errorf("interface %q has no executable configured", iface)
	}

	rec := Record{
		Interface: iface,
		Health:    HealthStarting,
		StartedAt: time.Now().UTC(),
	}

	maxAttempts := l.cfg.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	delay := time.Duration(l.cfg.RetryDelaySeconds) * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		pid, err := l.start(ic.Executable, ic.Args)
		a := Attempt{Number: attempt, At: time.Now().UTC(), PID: pid}
		if err == nil {
			rec.Attempts = append(rec.Attempts, a)
			rec.PID = pid
			l.emit(events.EventRecoveryLaunch, iface, events.RecoveryData{
				Attempt: attempt, PID: pid, Health: string(HealthStarting),
			})
			l.record(rec)
			return rec, nil
		}

		lastErr = err
		a.Failure = err.Error()
		rec.Attempts = append(rec.Attempts, a)
		rec.RetryCount++
		log.Printf("[launcher] %s attempt %d/%d failed: %v", iface, attempt, maxAttempts, err)

		if attempt < maxAttempts {
			l.sleep(ctx, delay)
			delay *= 2
		}
	}

	rec.Health = HealthCrashed
	l.emit(events.EventRecoveryFailed, iface, events.RecoveryData{
		Attempt: rec.RetryCount, Health: string(HealthCrashed), Reason: fmt.Sprint(lastErr),
	})
	l.record(rec)
	return rec, fmt.Errorf("%w: %s: %d attempts, last error: %v", ErrLaunchFailed, iface, rec.RetryCount, lastErr)
}

// AwaitReady polls the handler's window lookup at a short fixed interval
// until the window appears or the timeout elapses.
func (l *Launcher) AwaitReady(ctx context.Context, rec *Record, h handler.Handler) error {
	timeout := time.Duration(l.cfg.ReadyTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	poll := time.Duration(l.cfg.ReadyPollMillis) * time.Millisecond
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}

	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := h.LocateWindow(ctx); err == nil {
			rec.Health = HealthReady
			l.updateHistory(*rec)
			return nil
		} else if !errors.Is(err, handler.ErrWindowNotFound) {
			log.Printf("[launcher] %s readiness check: %v", rec.Interface, err)
		}
		if time.Now().After(deadline) {
			return ErrReadyTimeout
		}
		l.sleep(ctx, poll)
	}
}

/// Relaunch is the dispatcher entry point: launch, wait for the window, then
// inject the stored recovery context as a continuation prompt.
func (l *Launcher) Relaunch(ctx context.Context, iface string) error {
	ic, ok := l.ifaces[iface]
	if !ok {
		return fmt.Errorf("unknown interface %q", iface)
	}

	rec, err := l.Launch(ctx, iface)
	if err != nil {
		return err
	}

	h, err := l.handlers(iface, ic)
	if err != nil {
		return fmt.Errorf("handler for %s: %w", iface, err)
	}
	if err := l.AwaitReady(ctx, &rec, h); err != nil {
		return fmt.Errorf("await ready for %s: %w", iface, err)
	}
	if ic.ReadyWaitSeconds > 0 {
		// Window exists but the agent UI may still be initializing.
		l.sleep(ctx, time.Duration(ic.ReadyWaitSeconds)*time.Second)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return l.injectContext(ctx, iface, h)
}

// injectContext types the continuation prompt into the fresh session. A
// missing or empty context is not an error; the session simply starts cold.
func (l *Launcher) injectContext(ctx context.Context, iface string, h handler.Handler) error {
	if l.store == nil {
		return nil
	}
	c, ok := l.store.Get(iface)
	if !ok {
		return nil
	}
	prompt := contextstore.ContinuationPrompt(c)
	if prompt == "" {
		return nil
	}

	win, err := h.LocateWindow(ctx)
	if err != nil {
		return fmt.Errorf("locate window for context injection: %w", err)
	}
	if err := h.TypeText(ctx, win, prompt); err != nil {
		return fmt.Errorf("inject context: %w", err)
	}
	l.emit(events.EventContextInjected, iface, map[string]any{"prompt_length": len(prompt)})
	return nil
}

// History returns a copy of all launch records, oldest first.
func (l *Launcher) History() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.history))
	copy(out, l.history)
	return out
}

func (l *Launcher) record(r Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.history = append(l.history, r)
}

// updateHistory replaces the newest record for the interface, used when
// readiness resolves after the record was stored.
func (l *Launcher) updateHistory(r Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.history) - 1; i >= 0; i-- {
		if l.history[i].Interface == r.Interface {
			l.history[i] = r
			return
		}
	}
	l.history = append(l.history, r)
}

func (l *Launcher) emit(t events.EventType, iface string, data any) {
	if l.logger == nil {
		return
	}
	if err := l.logger.LogEvent(t, iface, data); err != nil {
		log.Printf("[launcher] event log: %v", err)
	}
}
