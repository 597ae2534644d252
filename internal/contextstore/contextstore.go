// Package contextstore reads recovery context written by external tooling.
// Each monitored interface may have a JSON file under the store directory
// describing what the agent was doing; the launcher renders it into a
// continuation prompt after a relaunch. The store never writes these files.
package contextstore

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Context is the recovery context for one interface.
type Context struct {
	Operation string            `json:"operation"`
	LastStep  string            `json:"last_completed_step,omitempty"`
	NextSteps []string          `json:"next_steps,omitempty"`
	Notes     map[string]string `json:"notes,omitempty"`
	Pending   string            `json:"pending_message,omitempty"`
}

// Empty reports whether the context carries nothing renderable.
func (c Context) Empty() bool {
	return c.Operation == "" && c.LastStep == "" && len(c.NextSteps) == 0 && c.Pending == ""
}

// Store caches per-interface context files and refreshes the cache when the
// directory changes, so reads off the hot monitoring path never touch disk.
type Store struct {
	dir string

	mu    sync.RWMutex
	cache map[string]Context

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// New opens (creating if needed) the store directory, loads existing context
// files, and starts watching for changes.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create context dir: %w", err)
	}

	s := &Store{
		dir:   dir,
		cache: make(map[string]Context),
		done:  make(chan struct{}),
	}
	if err := s.reloadAll(); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("context watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	s.watcher = w
	go s.watch()
	return s, nil
}

// Get returns the cached context for an interface.
func (s *Store) Get(iface string) (Context, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cache[iface]
	return c, ok
}

// Pending returns the queued message for an interface, if any.
func (s *Store) Pending(iface string) string {
	c, ok := s.Get(iface)
	if !ok {
		return ""
	}
	return c.Pending
}

// Close stops the watcher.
func (s *Store) Close() error {
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

func (s *Store) watch() {
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Ext(ev.Name) != ".json" {
				continue
			}
			iface := strings.TrimSuffix(filepath.Base(ev.Name), ".json")
			switch {
			case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
				s.mu.Lock()
				delete(s.cache, iface)
				s.mu.Unlock()
			case ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write):
				if err := s.loadFile(ev.Name); err != nil {
					log.Printf("[contextstore] reload %s: %v", ev.Name, err)
				}
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[contextstore] watch error: %v", err)
		}
	}
}

func (s *Store) reloadAll() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read context dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		if err := s.loadFile(filepath.Join(s.dir, e.Name())); err != nil {
			log.Printf("[contextstore] skip %s: %v", e.Name(), err)
		}
	}
	return nil
}

func (s *Store) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var c Context
	if err := json.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	iface := strings.TrimSuffix(filepath.Base(path), ".json")
	s.mu.Lock()
	s.cache[iface] = c
	s.mu.Unlock()
	return nil
}

// ContinuationPrompt renders a context into the message injected after a
// relaunch. Empty contexts render to "".
func ContinuationPrompt(c Context) string {
	if c.Empty() {
		return ""
	}
	var b strings.Builder
	b.WriteString("The previous session was interrupted. Resuming work.\n")
	if c.Operation != "" {
		fmt.Fprintf(&b, "Operation in progress: %s\n", c.Operation)
	}
	if c.LastStep != "" {
		fmt.Fprintf(&b, "Last completed step: %s\n", c.LastStep)
	}
	if len(c.NextSteps) > 0 {
		b.WriteString("Next steps:\n")
		for _, step := range c.NextSteps {
			fmt.Fprintf(&b, "- %s\n", step)
		}
	}
	b.WriteString("Please continue from where the previous session left off.")
	return b.String()
}
