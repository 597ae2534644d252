package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDisabledNotifierIsNoop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	n := New(cfg)
	if err := n.Notify(Event{Type: EventSessionEnded, Message: "x"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
}

func TestUnsubscribedEventIsSkipped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Events = []string{string(EventRecoveryFailed)}
	cfg.Desktop.Enabled = false
	cfg.Log.Enabled = true
	cfg.Log.Path = filepath.Join(t.TempDir(), "n.log")

	n := New(cfg)
	if err := n.Notify(Event{Type: EventSessionPaused, Message: "paused"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if _, err := os.Stat(cfg.Log.Path); !os.IsNotExist(err) {
		t.Fatal("unsubscribed event reached the log channel")
	}
}

func TestWebhookDelivery(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	cfg := Config{
		Enabled: true,
		Events:  []string{string(EventRecoveryFailed)},
		Webhook: WebhookConfig{Enabled: true, URL: srv.URL},
	}
	n := New(cfg)
	err := n.Notify(Event{
		Type:      EventRecoveryFailed,
		Interface: "claude_code",
		Message:   "3 launch attempts failed",
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if got["event"] != string(EventRecoveryFailed) || got["interface"] != "claude_code" {
		t.Fatalf("payload = %v", got)
	}
}

func TestWebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := Config{
		Enabled: true,
		Events:  []string{string(EventSessionError)},
		Webhook: WebhookConfig{Enabled: true, URL: srv.URL},
	}
	n := New(cfg)
	err := n.Notify(Event{Type: EventSessionError, Message: "boom"})
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("err = %v, want 403 reported", err)
	}
}

func TestLogChannelAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifications.log")
	cfg := Config{
		Enabled: true,
		Events:  []string{string(EventApprovalNeeded)},
		Log:     LogConfig{Enabled: true, Path: path},
	}
	n := New(cfg)
	if err := n.Notify(Event{
		Type:      EventApprovalNeeded,
		Interface: "claude_desktop",
		Message:   "session ended; auto_recover disabled",
	}); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, "claude_desktop") || !strings.Contains(line, "auto_recover disabled") {
		t.Fatalf("log line = %q", line)
	}
}

func TestDefaultConfigSubscriptions(t *testing.T) {
	n := New(DefaultConfig())
	for _, e := range []EventType{EventSessionEnded, EventSessionError, EventRecoveryFailed, EventApprovalNeeded} {
		if !n.enabledSet[e] {
			t.Errorf("default config should subscribe to %s", e)
		}
	}
	if n.enabledSet[EventSessionPaused] {
		t.Error("paused should not notify by default; it is auto-handled")
	}
}
