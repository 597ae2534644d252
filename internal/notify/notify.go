// Package notify pushes human-facing alerts through configured channels:
// desktop notifications, webhooks, shell commands, and a log file. Report-
// only dispatch outcomes land here, since by definition no automated action
// was taken and a human has to step in.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"text/template"
	"time"
)

// EventType classifies a notification.
type EventType string

const (
	EventSessionPaused      EventType = "session.paused"
	EventSessionEnded       EventType = "session.ended"
	EventSessionError       EventType = "session.error"
	EventSessionRateLimited EventType = "session.rate_limited"
	EventRecoveryLaunched   EventType = "recovery.launched"
	EventRecoveryFailed     EventType = "recovery.failed"
	EventApprovalNeeded     EventType = "action.approval_needed"
)

// Event is one notification.
type Event struct {
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Interface string            `json:"interface,omitempty"`
	State     string            `json:"state,omitempty"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
}

// Config selects channels and event types.
type Config struct {
	Enabled bool     `toml:"enabled"`
	Events  []string `toml:"events"`

	Desktop DesktopConfig `toml:"desktop"`
	Webhook WebhookConfig `toml:"webhook"`
	Shell   ShellConfig   `toml:"shell"`
	Log     LogConfig     `toml:"log"`
}

// DesktopConfig configures OS notifications.
type DesktopConfig struct {
	Enabled bool   `toml:"enabled"`
	Title   string `toml:"title"`
}

// WebhookConfig configures HTTP notifications.
type WebhookConfig struct {
	Enabled  bool              `toml:"enabled"`
	URL      string            `toml:"url"`
	Template string            `toml:"template"` // Go template over Event
	Method   string            `toml:"method"`
	Headers  map[string]string `toml:"headers"`
}

// ShellConfig configures a notification hook command.
type ShellConfig struct {
	Enabled  bool   `toml:"enabled"`
	Command  string `toml:"command"`
	PassJSON bool   `toml:"pass_json"` // Pipe the event as JSON on stdin
}

// LogConfig configures the plain-text notification log.
type LogConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// DefaultConfig notifies on the states that need a human.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Events: []string{
			string(EventSessionEnded),
			string(EventSessionError),
			string(EventRecoveryFailed),
			string(EventApprovalNeeded),
		},
		Desktop: DesktopConfig{Enabled: true, Title: "Vigil"},
		Webhook: WebhookConfig{
			Enabled:  false,
			Method:   "POST",
			Template: `{"text": "vigil: {{.Type}} - {{.Message}}"}`,
		},
		Shell: ShellConfig{Enabled: false, PassJSON: true},
		Log:   LogConfig{Enabled: false, Path: "~/.local/state/vigil/notifications.log"},
	}
}

// defaultWebhookTemplate matches the fields most chat/webhook receivers want.
const defaultWebhookTemplate = `{"event":"{{.Type}}","message":"{{.Message}}","interface":"{{.Interface}}","timestamp":"{{.Timestamp}}"}`

// channel is one delivery target. Channels are independent: one failing
// never blocks the others.
type channel struct {
	name string
	send func(Event) error
}

// Notifier fans one event out to every enabled channel.
type Notifier struct {
	config     Config
	enabledSet map[EventType]bool
	channels   []channel
	mu         sync.Mutex // serializes log appends
	httpClient *http.Client
}

// New builds a notifier from config.
func New(cfg Config) *Notifier {
	n := &Notifier{
		config:     cfg,
		enabledSet: make(map[EventType]bool, len(cfg.Events)),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, e := range cfg.Events {
		n.enabledSet[EventType(e)] = true
	}

	if cfg.Desktop.Enabled {
		n.channels = append(n.channels, channel{"desktop", n.sendDesktop})
	}
	if cfg.Webhook.Enabled && cfg.Webhook.URL != "" {
		n.channels = append(n.channels, channel{"webhook", n.sendWebhook})
	}
	if cfg.Shell.Enabled && cfg.Shell.Command != "" {
		n.channels = append(n.channels, channel{"shell", n.sendShell})
	}
	if cfg.Log.Enabled && cfg.Log.Path != "" {
		n.channels = append(n.channels, channel{"log", n.sendLog})
	}
	return n
}

// Notify sends the event through each enabled channel in parallel. Channel
// failures are collected, not fatal.
func (n *Notifier) Notify(event Event) error {
	if !n.config.Enabled || !n.enabledSet[event.Type] {
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	errs := make([]error, len(n.channels))
	var wg sync.WaitGroup
	for i, ch := range n.channels {
		wg.Add(1)
		go func(i int, ch channel) {
			defer wg.Done()
			if err := ch.send(event); err != nil {
				errs[i] = fmt.Errorf("%s: %w", ch.name, err)
			}
		}(i, ch)
	}
	wg.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("notification errors: %v", failed)
	}
	return nil
}

func (n *Notifier) sendDesktop(event Event) error {
	title := n.config.Desktop.Title
	if title == "" {
		title = "Vigil"
	}
	if event.Interface != "" {
		title += " [" + event.Interface + "]"
	}
	body := event.Message
	if body == "" {
		body = string(event.Type)
	}

	switch runtime.GOOS {
	case "darwin":
		script := fmt.Sprintf(`display notification %q with title %q`, body, title)
		return exec.Command("osascript", "-e", script).Run()
	case "linux":
		if _, err := exec.LookPath("notify-send"); err != nil {
			return fmt.Errorf("notify-send not found")
		}
		return exec.Command("notify-send", title, body).Run()
	default:
		return fmt.Errorf("desktop notifications not supported on %s", runtime.GOOS)
	}
}

func (n *Notifier) sendWebhook(event Event) error {
	body, err := renderWebhookBody(n.config.Webhook.Template, event)
	if err != nil {
		return err
	}

	method := n.config.Webhook.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequest(method, n.config.Webhook.URL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range n.config.Webhook.Headers {
		req.Header.Set(k, v)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, detail)
	}
	return nil
}

func renderWebhookBody(tmplStr string, event Event) (io.Reader, error) {
	if tmplStr == "" {
		tmplStr = defaultWebhookTemplate
	}
	tmpl, err := template.New("webhook").Parse(tmplStr)
	if err != nil {
		return nil, fmt.Errorf("invalid template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, event); err != nil {
		return nil, fmt.Errorf("template execution failed: %w", err)
	}
	return &buf, nil
}

func (n *Notifier) sendShell(event Event) error {
	cmd := exec.Command("sh", "-c", n.config.Shell.Command)
	if n.config.Shell.PassJSON {
		payload, err := json.Marshal(event)
		if err != nil {
			return err
		}
		cmd.Stdin = bytes.NewReader(payload)
	}
	cmd.Env = append(os.Environ(),
		"VIGIL_EVENT_TYPE="+string(event.Type),
		"VIGIL_EVENT_MESSAGE="+event.Message,
		"VIGIL_EVENT_INTERFACE="+event.Interface,
		"VIGIL_EVENT_STATE="+event.State,
	)
	return cmd.Run()
}

func (n *Notifier) sendLog(event Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	path := expandHome(n.config.Log.Path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	var line strings.Builder
	line.WriteString("[" + event.Timestamp.Format(time.RFC3339) + "]")
	if event.Interface != "" {
		line.WriteString(" [" + event.Interface + "]")
	}
	line.WriteString(" " + string(event.Type) + ": " + event.Message)
	_, err = fmt.Fprintln(f, line.String())
	return err
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
