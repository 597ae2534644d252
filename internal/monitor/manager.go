package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/vigil-sh/vigil/internal/classify"
	"github.com/vigil-sh/vigil/internal/config"
	"github.com/vigil-sh/vigil/internal/contextstore"
	"github.com/vigil-sh/vigil/internal/dispatch"
	"github.com/vigil-sh/vigil/internal/events"
	"github.com/vigil-sh/vigil/internal/handler"
	"github.com/vigil-sh/vigil/internal/launcher"
	"github.com/vigil-sh/vigil/internal/notify"
	"github.com/vigil-sh/vigil/internal/session"
)

// Manager owns the monitor registry and enforces the one-monitor-per-
// interface rule.
type Manager struct {
	cfg        *config.Config
	classifier *classify.Classifier
	launcher   *launcher.Launcher
	store      *contextstore.Store // may be nil
	logger     *events.Logger      // may be nil
	notifier   *notify.Notifier    // may be nil

	mu       sync.Mutex
	monitors map[string]*Monitor
}

// NewManager wires the shared collaborators for all monitors.
func NewManager(cfg *config.Config, c *classify.Classifier, l *launcher.Launcher,
	store *contextstore.Store, logger *events.Logger, notifier *notify.Notifier) *Manager {
	return &Manager{
		cfg:        cfg,
		classifier: c,
		launcher:   l,
		store:      store,
		logger:     logger,
		notifier:   notifier,
		monitors:   make(map[string]*Monitor),
	}
}

// Start creates and starts a monitor for the named interface. A second
// Start for the same interface fails with ErrAlreadyMonitored.
func (mg *Manager) Start(ctx context.Context, iface string) (*Monitor, error) {
	ic, err := mg.cfg.Interface(iface)
	if err != nil {
		return nil, err
	}

	mg.mu.Lock()
	defer mg.mu.Unlock()
	if _, exists := mg.monitors[iface]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyMonitored, iface)
	}

	h, err := handler.New(iface, ic)
	if err != nil {
		return nil, fmt.Errorf("handler for %s: %w", iface, err)
	}

	var pendingFn func() string
	if mg.store != nil {
		store := mg.store
		pendingFn = func() string { return store.Pending(iface) }
	}
	var relauncher dispatch.Relauncher
	if mg.launcher != nil {
		relauncher = mg.launcher
	}
	d := dispatch.NewDispatcher(iface, h, relauncher, pendingFn)

	m := NewMonitor(iface, h, mg.classifier, d, mg.cfg.Policy, mg.cfg.Monitor, mg.logger, mg.notifier)
	mg.monitors[iface] = m
	m.Start(ctx)
	return m, nil
}

// Stop halts one monitor and removes it from the registry.
func (mg *Manager) Stop(iface string) error {
	mg.mu.Lock()
	m, ok := mg.monitors[iface]
	if ok {
		delete(mg.monitors, iface)
	}
	mg.mu.Unlock()

	if !ok {
		return fmt.Errorf("interface %s is not monitored", iface)
	}
	m.Stop()
	return nil
}

// StopAll halts every monitor and waits for each loop to exit.
func (mg *Manager) StopAll() {
	mg.mu.Lock()
	running := make([]*Monitor, 0, len(mg.monitors))
	for _, m := range mg.monitors {
		running = append(running, m)
	}
	mg.monitors = make(map[string]*Monitor)
	mg.mu.Unlock()

	for _, m := range running {
		m.Stop()
	}
}

// Snapshot returns the session snapshot for one monitored interface.
func (mg *Manager) Snapshot(iface string) (session.Snapshot, bool) {
	mg.mu.Lock()
	m, ok := mg.monitors[iface]
	mg.mu.Unlock()
	if !ok {
		return session.Snapshot{}, false
	}
	return m.Snapshot(), true
}

// Snapshots returns snapshots for all monitored interfaces, sorted by name.
func (mg *Manager) Snapshots() []session.Snapshot {
	mg.mu.Lock()
	running := make([]*Monitor, 0, len(mg.monitors))
	for _, m := range mg.monitors {
		running = append(running, m)
	}
	mg.mu.Unlock()

	out := make([]session.Snapshot, 0, len(running))
	for _, m := range running {
		out = append(out, m.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Interface < out[j].Interface })
	return out
}

// ReadHeartbeats loads persisted snapshots from the heartbeat directory.
// Used by `vigil status` when the monitors run in another process.
func ReadHeartbeats(dir string) ([]session.Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []session.Snapshot
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		var snap session.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			continue
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Interface < out[j].Interface })
	return out, nil
}
