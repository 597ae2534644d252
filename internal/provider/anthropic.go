package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/vigil-sh/vigil/internal/handler"
	"github.com/vigil-sh/vigil/internal/state"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
)

// anthropicProvider classifies frames via the Anthropic messages API.
type anthropicProvider struct {
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
}

func newAnthropic(model, apiKey, baseURL string) *anthropicProvider {
	if baseURL == "" {
		baseURL = anthropicDefaultBaseURL
	}
	return &anthropicProvider{
		model:   model,
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (p *anthropicProvider) Name() string { return "anthropic" }

type anContentBlock struct {
	Type   string         `json:"type"`
	Text   string         `json:"text,omitempty"`
	Source *anImageSource `json:"source,omitempty"`
}

type anImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anMessage struct {
	Role    string           `json:"role"`
	Content []anContentBlock `json:"content"`
}

type anRequest struct {
	Model     string      `json:"model"`
	MaxTokens int         `json:"max_tokens"`
	Messages  []anMessage `json:"messages"`
}

type anResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Classify sends the frame and prompt to the messages endpoint.
func (p *anthropicProvider) Classify(ctx context.Context, frame handler.Frame, promptContext string) (state.Result, error) {
	blocks := []anContentBlock{}
	if len(frame.PNG) > 0 {
		blocks = append(blocks, anContentBlock{
			Type: "image",
			Source: &anImageSource{
				Type:      "base64",
				MediaType: "image/png",
				Data:      base64.StdEncoding.EncodeToString(frame.PNG),
			},
		})
	} else if frame.Text != "" {
		blocks = append(blocks, anContentBlock{
			Type: "text",
			Text: "Captured terminal contents:\n```\n" + frame.Text + "\n```",
		})
	}
	blocks = append(blocks, anContentBlock{Type: "text", Text: classificationPrompt("target", promptContext)})

	body, err := json.Marshal(anRequest{
		Model:     p.model,
		MaxTokens: 500,
		Messages:  []anMessage{{Role: "user", Content: blocks}},
	})
	if err != nil {
		return state.Result{}, &Error{Provider: p.Name(), Kind: ErrMalformedResponse, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return state.Result{}, &Error{Provider: p.Name(), Kind: ErrMalformedResponse, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		return state.Result{}, classifyErr(p.Name(), err, 0)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return state.Result{}, classifyErr(p.Name(), err, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return state.Result{}, classifyErr(p.Name(),
			fmt.Errorf("status %d: %.200s", resp.StatusCode, data), resp.StatusCode)
	}

	var parsed anResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return state.Result{}, &Error{Provider: p.Name(), Kind: ErrMalformedResponse, Err: err}
	}
	if parsed.Error != nil {
		return state.Result{}, &Error{Provider: p.Name(), Kind: ErrMalformedResponse,
			Err: fmt.Errorf("api error: %s", parsed.Error.Message)}
	}

	for _, block := range parsed.Content {
		if block.Type == "text" {
			return parseClassification(block.Text, p.Name())
		}
	}
	return state.Result{}, &Error{Provider: p.Name(), Kind: ErrMalformedResponse,
		Err: fmt.Errorf("no text block in reply")}
}
