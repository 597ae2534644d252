package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// DefaultRetentionDays is how long log entries are kept.
	DefaultRetentionDays = 30

	// rotationCheckEvery is the event count between rotation checks.
	rotationCheckEvery = 100
)

// Logger appends events to a JSONL file and drops entries past retention.
type Logger struct {
	path          string
	retentionDays int

	mu        sync.Mutex
	file      *os.File
	enc       *json.Encoder
	count     int
	rotatedAt time.Time
}

// NewLogger opens (creating if needed) the JSONL log at path. An empty path
// yields a disabled logger whose Log calls are no-ops.
func NewLogger(path string, retentionDays int) (*Logger, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	l := &Logger{path: path, retentionDays: retentionDays, rotatedAt: time.Now()}
	if path == "" {
		return l, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("event log dir: %w", err)
	}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

// open (re)opens the log file for appending. Caller holds mu or is NewLogger.
func (l *Logger) open() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("event log: %w", err)
	}
	l.file = f
	l.enc = json.NewEncoder(f)
	return nil
}

// Log appends one event.
func (l *Logger) Log(event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	if err := l.enc.Encode(event); err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	l.count++
	if l.count%rotationCheckEvery == 0 {
		go l.maybeRotate()
	}
	return nil
}

// LogEvent creates and appends an event in one call.
func (l *Logger) LogEvent(t EventType, iface string, data any) error {
	return l.Log(NewEvent(t, iface, ToMap(data)))
}

// Close closes the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.enc = nil
	return err
}

// maybeRotate prunes expired entries at most once per day.
func (l *Logger) maybeRotate() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.rotatedAt) < 24*time.Hour || l.file == nil {
		return
	}
	l.rotatedAt = time.Now()

	// Release the handle so the pruned file can replace it, then reopen.
	l.file.Close()
	l.file = nil
	l.enc = nil

	cutoff := time.Now().AddDate(0, 0, -l.retentionDays)
	if err := pruneBefore(l.path, cutoff); err != nil {
		fmt.Fprintf(os.Stderr, "event log rotation: %v\n", err)
	}
	if err := l.open(); err != nil {
		fmt.Fprintf(os.Stderr, "event log reopen: %v\n", err)
	}
}

// pruneBefore rewrites the JSONL file at path keeping only entries at or
// after cutoff, replacing it atomically. Malformed lines are kept rather
// than destroyed.
func pruneBefore(path string, cutoff time.Time) error {
	src, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(path), "events-prune-*.jsonl")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	out := bufio.NewWriter(tmp)
	sc := bufio.NewScanner(src)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err == nil && !e.Timestamp.After(cutoff) {
			continue
		}
		out.Write(line)
		out.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		tmp.Close()
		return err
	}
	if err := out.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// ReadAll loads every event currently in the log, oldest first. Used by the
// events command and tests; not on the hot path.
func ReadAll(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, sc.Err()
}
