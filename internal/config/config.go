// Package config loads vigil configuration from a TOML file.
// Missing files are not an error: every section has working defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/vigil-sh/vigil/internal/notify"
)

// Config represents the main configuration.
type Config struct {
	Monitor    MonitorConfig              `toml:"monitor"`
	Classifier ClassifierConfig           `toml:"classifier"`
	Providers  ProvidersConfig            `toml:"providers"`
	Policy     PolicyConfig               `toml:"policy"`
	Launcher   LauncherConfig             `toml:"launcher"`
	Events     EventsConfig               `toml:"events"`
	Store      StoreConfig                `toml:"store"`
	Notify     notify.Config              `toml:"notify"`
	Interfaces map[string]InterfaceConfig `toml:"interfaces"`
}

// MonitorConfig controls the sampling loop.
type MonitorConfig struct {
	IntervalSeconds    int     `toml:"interval_seconds"`     // Base wait between cycles
	MinIntervalSeconds int     `toml:"min_interval_seconds"` // Floor for adaptive speedup
	MaxIntervalSeconds int     `toml:"max_interval_seconds"` // Ceiling for rate-limit backoff
	BackoffFactor      float64 `toml:"backoff_factor"`       // Multiplier applied on rate_limited
	FrameRingSize      int     `toml:"frame_ring_size"`      // Recent frames retained for diagnostics
	FrameDumpDir       string  `toml:"frame_dump_dir"`       // Optional on-disk frame dump ("" = off)
	HeartbeatDir       string  `toml:"heartbeat_dir"`        // Per-monitor status files
}

// DefaultMonitorConfig returns sensible sampling defaults.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		IntervalSeconds:    30,
		MinIntervalSeconds: 5,
		MaxIntervalSeconds: 300,
		BackoffFactor:      2.0,
		FrameRingSize:      8,
		HeartbeatDir:       "~/.local/state/vigil/monitors",
	}
}

// ClassifierConfig controls provider querying and result merging.
type ClassifierConfig struct {
	TimeoutSeconds     int     `toml:"timeout_seconds"`     // Per provider call
	HeuristicThreshold float64 `toml:"heuristic_threshold"` // Handler hints above this skip provider calls
	UseSecondary       bool    `toml:"use_secondary"`       // Query secondary for corroboration, not just fallback
}

// DefaultClassifierConfig returns classifier defaults.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		TimeoutSeconds:     30,
		HeuristicThreshold: 0.85,
		UseSecondary:       false,
	}
}

// ProviderConfig describes one classification backend.
type ProviderConfig struct {
	Kind      string `toml:"kind"`        // "openai" or "anthropic"
	Model     string `toml:"model"`       // Model identifier
	APIKeyEnv string `toml:"api_key_env"` // Env var holding the API key
	BaseURL   string `toml:"base_url"`    // Override endpoint (optional)
}

// ProvidersConfig holds the prioritized provider list.
type ProvidersConfig struct {
	Primary   ProviderConfig `toml:"primary"`
	Secondary ProviderConfig `toml:"secondary"`
}

// DefaultProvidersConfig returns the default provider ordering:
// OpenAI vision first, Anthropic as fallback.
func DefaultProvidersConfig() ProvidersConfig {
	return ProvidersConfig{
		Primary: ProviderConfig{
			Kind:      "openai",
			Model:     "gpt-4o",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Secondary: ProviderConfig{
			Kind:      "anthropic",
			Model:     "claude-sonnet-4-20250514",
			APIKeyEnv: "ANTHROPIC_API_KEY",
		},
	}
}

// PolicyConfig holds default action-policy values applied when the monitor
// command doesn't override them.
type PolicyConfig struct {
	ConfidenceThreshold float64  `toml:"confidence_threshold"`
	AllowedActions      []string `toml:"allowed_actions"`
	AutoRecover         bool     `toml:"auto_recover"`
	OverrideRisk        string   `toml:"override_risk"` // "low", "medium", "high"
}

// DefaultPolicyConfig returns conservative policy defaults.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		ConfidenceThreshold: 0.7,
		AllowedActions:      []string{"continue", "send_message", "new_session"},
		AutoRecover:         false,
		OverrideRisk:        "medium",
	}
}

// LauncherConfig controls the session launcher retry behavior.
type LauncherConfig struct {
	MaxRetries        int `toml:"max_retries"`
	RetryDelaySeconds int `toml:"retry_delay_seconds"` // Base delay, doubled per attempt
	ReadyTimeoutSecs  int `toml:"ready_timeout_seconds"`
	ReadyPollMillis   int `toml:"ready_poll_millis"`
}

// DefaultLauncherConfig returns launcher defaults.
func DefaultLauncherConfig() LauncherConfig {
	return LauncherConfig{
		MaxRetries:        3,
		RetryDelaySeconds: 2,
		ReadyTimeoutSecs:  30,
		ReadyPollMillis:   500,
	}
}

// EventsConfig controls the JSONL diagnostics log.
type EventsConfig struct {
	Enabled       bool   `toml:"enabled"`
	Path          string `toml:"path"`
	RetentionDays int    `toml:"retention_days"`
}

// DefaultEventsConfig returns event log defaults.
func DefaultEventsConfig() EventsConfig {
	return EventsConfig{
		Enabled:       true,
		Path:          "~/.local/state/vigil/events.jsonl",
		RetentionDays: 30,
	}
}

// StoreConfig points at the external session-context store.
type StoreConfig struct {
	Path string `toml:"path"` // Directory of per-interface context blobs
}

// DefaultStoreConfig returns the default context store location.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{Path: "~/.local/share/vigil/context"}
}

// InterfaceConfig describes one monitorable interface and how to launch it.
type InterfaceConfig struct {
	Handler          string   `toml:"handler"`      // "tmux" or "desktop"
	WindowTitle      string   `toml:"window_title"` // Desktop window title to locate
	Target           string   `toml:"target"`       // tmux target (session:pane)
	AgentType        string   `toml:"agent_type"`   // Prompt pattern family for tmux panes
	Executable       string   `toml:"executable"`
	Args             []string `toml:"args"`
	ReadyWaitSeconds int      `toml:"ready_wait_seconds"`
	TemplatesFile    string   `toml:"templates_file"` // YAML control-template definitions
}

// DefaultInterfaces returns the built-in interface definitions.
func DefaultInterfaces() map[string]InterfaceConfig {
	return map[string]InterfaceConfig{
		"claude_desktop": {
			Handler:          "desktop",
			WindowTitle:      "Claude",
			Executable:       "claude-desktop",
			ReadyWaitSeconds: 3,
		},
		"claude_code": {
			Handler:          "tmux",
			Target:           "vigil:0",
			AgentType:        "claude",
			Executable:       "claude",
			ReadyWaitSeconds: 2,
		},
	}
}

// Default returns a fully populated default configuration.
func Default() *Config {
	return &Config{
		Monitor:    DefaultMonitorConfig(),
		Classifier: DefaultClassifierConfig(),
		Providers:  DefaultProvidersConfig(),
		Policy:     DefaultPolicyConfig(),
		Launcher:   DefaultLauncherConfig(),
		Events:     DefaultEventsConfig(),
		Store:      DefaultStoreConfig(),
		Notify:     notify.DefaultConfig(),
		Interfaces: DefaultInterfaces(),
	}
}

// Path returns the config file location. VIGIL_CONFIG overrides the
// default ~/.config/vigil/config.toml.
func Path() string {
	if p := os.Getenv("VIGIL_CONFIG"); p != "" {
		return p
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "config.toml"
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "vigil", "config.toml")
}

// Load reads the config file at path, layering it over defaults.
// A missing file returns defaults without error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = Path()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.expandPaths()
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	cfg.expandPaths()
	return cfg, nil
}

// expandPaths resolves ~ in every configured path.
func (c *Config) expandPaths() {
	c.Monitor.HeartbeatDir = ExpandPath(c.Monitor.HeartbeatDir)
	c.Monitor.FrameDumpDir = ExpandPath(c.Monitor.FrameDumpDir)
	c.Events.Path = ExpandPath(c.Events.Path)
	c.Store.Path = ExpandPath(c.Store.Path)
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Monitor.IntervalSeconds < 1 {
		return fmt.Errorf("monitor.interval_seconds must be >= 1, got %d", c.Monitor.IntervalSeconds)
	}
	if c.Monitor.MinIntervalSeconds > c.Monitor.IntervalSeconds {
		return fmt.Errorf("monitor.min_interval_seconds (%d) exceeds interval_seconds (%d)",
			c.Monitor.MinIntervalSeconds, c.Monitor.IntervalSeconds)
	}
	if c.Monitor.BackoffFactor < 1 {
		return fmt.Errorf("monitor.backoff_factor must be >= 1, got %v", c.Monitor.BackoffFactor)
	}
	if c.Policy.ConfidenceThreshold < 0 || c.Policy.ConfidenceThreshold > 1 {
		return fmt.Errorf("policy.confidence_threshold must be in [0,1], got %v", c.Policy.ConfidenceThreshold)
	}
	if c.Launcher.MaxRetries < 1 {
		return fmt.Errorf("launcher.max_retries must be >= 1, got %d", c.Launcher.MaxRetries)
	}
	for name, ic := range c.Interfaces {
		switch ic.Handler {
		case "tmux", "desktop":
		default:
			return fmt.Errorf("interfaces.%s: unknown handler %q", name, ic.Handler)
		}
	}
	return nil
}

// Interface looks up an interface definition by name.
func (c *Config) Interface(name string) (InterfaceConfig, error) {
	ic, ok := c.Interfaces[name]
	if !ok {
		known := make([]string, 0, len(c.Interfaces))
		for k := range c.Interfaces {
			known = append(known, k)
		}
		return InterfaceConfig{}, fmt.Errorf("unknown interface %q (configured: %s)",
			name, strings.Join(known, ", "))
	}
	return ic, nil
}

// ExpandPath expands a leading ~ to the user home directory.
func ExpandPath(p string) string {
	if p == "" || !strings.HasPrefix(p, "~") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~/"))
}
