package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vigil-sh/vigil/internal/config"
	"github.com/vigil-sh/vigil/internal/handler"
	"github.com/vigil-sh/vigil/internal/state"
)

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		want     state.SessionState
		wantConf float64
		wantErr  bool
	}{
		{
			name: "plain json",
			raw:  `{"state": "paused", "confidence": 0.9, "evidence": ["continue button"]}`,
			want: state.StatePaused, wantConf: 0.9,
		},
		{
			name: "fenced json",
			raw:  "Here is my analysis:\n```json\n{\"state\": \"active\", \"confidence\": 0.8}\n```",
			want: state.StateActive, wantConf: 0.8,
		},
		{
			name: "legacy status field",
			raw:  `{"status": "rate_limited", "confidence": 0.95}`,
			want: state.StateRateLimited, wantConf: 0.95,
		},
		{
			name: "vocabulary normalization",
			raw:  `{"state": "idle", "confidence": 0.7}`,
			want: state.StateReady, wantConf: 0.7,
		},
		{
			name: "unrecognized state becomes unknown",
			raw:  `{"state": "daydreaming", "confidence": 0.6}`,
			want: state.StateUnknown, wantConf: 0.6,
		},
		{
			name: "confidence clamped",
			raw:  `{"state": "active", "confidence": 1.7}`,
			want: state.StateActive, wantConf: 1.0,
		},
		{
			name:    "no json at all",
			raw:     "I cannot tell what this screenshot shows.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := parseClassification(tt.raw, "test")
			if tt.wantErr {
				var perr *Error
				if !errors.As(err, &perr) || perr.Kind != ErrMalformedResponse {
					t.Errorf("err = %v, want malformed_response provider error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseClassification: %v", err)
			}
			if res.State != tt.want {
				t.Errorf("state = %q, want %q", res.State, tt.want)
			}
			if res.Confidence != tt.wantConf {
				t.Errorf("confidence = %v, want %v", res.Confidence, tt.wantConf)
			}
		})
	}
}

func TestExtractJSONNested(t *testing.T) {
	raw := `prefix {"state": "ready", "detail": {"inner": "{brace} in string"}} suffix`
	got := extractJSON(raw)
	want := `{"state": "ready", "detail": {"inner": "{brace} in string"}}`
	if got != want {
		t.Errorf("extractJSON = %q, want %q", got, want)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Setenv("VIGIL_TEST_MISSING_KEY", "")
	_, err := New(config.ProviderConfig{Kind: "openai", Model: "gpt-4o", APIKeyEnv: "VIGIL_TEST_MISSING_KEY"})
	if err == nil {
		t.Error("expected error for missing API key")
	}
}

func TestNewUnknownKind(t *testing.T) {
	t.Setenv("VIGIL_TEST_KEY", "k")
	_, err := New(config.ProviderConfig{Kind: "palm", APIKeyEnv: "VIGIL_TEST_KEY"})
	if err == nil {
		t.Error("expected error for unknown provider kind")
	}
}

func TestOpenAIClassifyRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		w.Write([]byte(`{"choices": [{"message": {"content": "{\"state\": \"ended\", \"confidence\": 0.85, \"evidence\": [\"new conversation prompt\"]}"}}]}`))
	}))
	defer srv.Close()

	p := newOpenAI("gpt-4o", "test-key", srv.URL)
	res, err := p.Classify(context.Background(), handler.Frame{Text: "start a new conversation"}, "")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.State != state.StateEnded || res.Confidence != 0.85 {
		t.Errorf("result = %+v, want ended/0.85", res)
	}
	if res.Provider != "openai" {
		t.Errorf("provider = %q, want openai", res.Provider)
	}
}

func TestOpenAIClassifyAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "bad key"}}`))
	}))
	defer srv.Close()

	p := newOpenAI("gpt-4o", "bad", srv.URL)
	_, err := p.Classify(context.Background(), handler.Frame{Text: "x"}, "")
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != ErrAuth {
		t.Errorf("err = %v, want auth provider error", err)
	}
}

func TestAnthropicClassifyRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("api key header = %q", got)
		}
		w.Write([]byte(`{"content": [{"type": "text", "text": "{\"state\": \"active\", \"confidence\": 0.9}"}]}`))
	}))
	defer srv.Close()

	p := newAnthropic("claude-sonnet-4-20250514", "test-key", srv.URL)
	res, err := p.Classify(context.Background(), handler.Frame{PNG: []byte{0x89, 'P', 'N', 'G'}}, "")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.State != state.StateActive || res.Provider != "anthropic" {
		t.Errorf("result = %+v, want active from anthropic", res)
	}
}
