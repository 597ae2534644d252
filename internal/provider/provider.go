// Package provider wraps AI classification backends behind a single
// capability interface. A provider knows nothing about sessions or
// monitoring; it turns one frame into one classification result.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vigil-sh/vigil/internal/config"
	"github.com/vigil-sh/vigil/internal/handler"
	"github.com/vigil-sh/vigil/internal/state"
)

// ErrorKind categorizes provider failures for the classifier's fallback logic.
type ErrorKind string

const (
	ErrTimeout           ErrorKind = "timeout"
	ErrAuth              ErrorKind = "auth"
	ErrMalformedResponse ErrorKind = "malformed_response"
)

// Error is a typed provider failure.
type Error struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Provider is the capability boundary for one classification backend.
type Provider interface {
	// Name identifies the backend (e.g. "openai", "anthropic").
	Name() string

	// Classify analyzes a frame and returns a session state reading.
	// Failures are reported as *Error; the classifier absorbs them.
	Classify(ctx context.Context, frame handler.Frame, promptContext string) (state.Result, error)
}

// New builds a provider from its configuration. The API key is read from
// the configured environment variable at construction time.
func New(pc config.ProviderConfig) (Provider, error) {
	if pc.Kind == "" {
		return nil, fmt.Errorf("provider kind not configured")
	}
	key := os.Getenv(pc.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("provider %s: %s is not set", pc.Kind, pc.APIKeyEnv)
	}

	switch pc.Kind {
	case "openai":
		return newOpenAI(pc.Model, key, pc.BaseURL), nil
	case "anthropic":
		return newAnthropic(pc.Model, key, pc.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", pc.Kind)
	}
}

// classificationPrompt builds the analysis prompt sent alongside a frame.
func classificationPrompt(interfaceName, promptContext string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze this capture of the %s interface and determine the session state.\n\n", interfaceName)
	sb.WriteString(`Indicators:
- active: "thinking", loading or typing indicators, streaming output
- paused: a "Continue" button or truncated-response notice
- ready: idle input box, cursor in text area, no activity indicators
- ended: "start a new conversation", conversation limit reached
- rate_limited: "you've reached your limit", upgrade prompts, HTTP 429
- error: error banners, "something went wrong", connection problems
- unknown: none of the above is discernible

Respond with only JSON:
{"state": "active|paused|ready|ended|error|rate_limited|unknown", "confidence": 0.0-1.0, "evidence": ["what you see"]}
`)
	if promptContext != "" {
		sb.WriteString("\nAdditional context:\n")
		sb.WriteString(promptContext)
		sb.WriteString("\n")
	}
	return sb.String()
}

// wireResult is the JSON shape providers are asked to return.
type wireResult struct {
	State      string   `json:"state"`
	Status     string   `json:"status"` // legacy field name, accepted as alias
	Confidence float64  `json:"confidence"`
	Evidence   []string `json:"evidence"`
}

// parseClassification extracts a Result from a model's text reply.
// Code fences and surrounding prose are tolerated; anything that doesn't
// contain parseable JSON is a malformed_response error.
func parseClassification(raw, providerName string) (state.Result, error) {
	jsonText := extractJSON(raw)
	if jsonText == "" {
		return state.Result{}, &Error{Provider: providerName, Kind: ErrMalformedResponse,
			Err: fmt.Errorf("no JSON object in reply %.80q", raw)}
	}

	var wire wireResult
	if err := json.Unmarshal([]byte(jsonText), &wire); err != nil {
		return state.Result{}, &Error{Provider: providerName, Kind: ErrMalformedResponse, Err: err}
	}

	name := wire.State
	if name == "" {
		name = wire.Status
	}
	s := normalizeState(name)

	res, err := state.NewResult(s, clamp01(wire.Confidence), providerName, wire.Evidence...)
	if err != nil {
		return state.Result{}, &Error{Provider: providerName, Kind: ErrMalformedResponse, Err: err}
	}
	return res, nil
}

// normalizeState maps model vocabulary onto the session state enum.
func normalizeState(s string) state.SessionState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active", "working", "generating", "thinking":
		return state.StateActive
	case "paused", "truncated":
		return state.StatePaused
	case "ready", "idle", "waiting", "input_needed":
		return state.StateReady
	case "ended", "finished", "closed":
		return state.StateEnded
	case "error", "failed":
		return state.StateError
	case "rate_limited", "ratelimited", "throttled":
		return state.StateRateLimited
	default:
		return state.StateUnknown
	}
}

// extractJSON returns the first top-level JSON object in s.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// classifyErr wraps a transport error with the right error kind.
func classifyErr(providerName string, err error, statusCode int) *Error {
	kind := ErrMalformedResponse
	switch {
	case statusCode == 401 || statusCode == 403:
		kind = ErrAuth
	case err == context.DeadlineExceeded || strings.Contains(err.Error(), "deadline exceeded") ||
		strings.Contains(err.Error(), "timeout"):
		kind = ErrTimeout
	}
	return &Error{Provider: providerName, Kind: kind, Err: err}
}

// defaultHTTPTimeout bounds a single provider request when the caller's
// context carries no deadline of its own.
const defaultHTTPTimeout = 60 * time.Second
