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

const openAIDefaultBaseURL = "https://api.openai.com"

// openAIProvider classifies frames via the OpenAI chat completions API,
// sending pixel frames as data-URL image parts.
type openAIProvider struct {
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
}

func newOpenAI(model, apiKey, baseURL string) *openAIProvider {
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}
	return &openAIProvider{
		model:   model,
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (p *openAIProvider) Name() string { return "openai" }

type oaContentPart struct {
	Type     string      `json:"type"`
	Text     string      `json:"text,omitempty"`
	ImageURL *oaImageURL `json:"image_url,omitempty"`
}

type oaImageURL struct {
	URL string `json:"url"`
}

type oaMessage struct {
	Role    string          `json:"role"`
	Content []oaContentPart `json:"content"`
}

type oaRequest struct {
	Model     string      `json:"model"`
	Messages  []oaMessage `json:"messages"`
	MaxTokens int         `json:"max_tokens"`
}

type oaResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Classify sends the frame and prompt to the chat completions endpoint.
func (p *openAIProvider) Classify(ctx context.Context, frame handler.Frame, promptContext string) (state.Result, error) {
	parts := []oaContentPart{{Type: "text", Text: classificationPrompt("target", promptContext)}}
	if len(frame.PNG) > 0 {
		parts = append(parts, oaContentPart{
			Type: "image_url",
			ImageURL: &oaImageURL{
				URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(frame.PNG),
			},
		})
	} else if frame.Text != "" {
		parts = append(parts, oaContentPart{
			Type: "text",
			Text: "Captured terminal contents:\n```\n" + frame.Text + "\n```",
		})
	}

	body, err := json.Marshal(oaRequest{
		Model:     p.model,
		Messages:  []oaMessage{{Role: "user", Content: parts}},
		MaxTokens: 500,
	})
	if err != nil {
		return state.Result{}, &Error{Provider: p.Name(), Kind: ErrMalformedResponse, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return state.Result{}, &Error{Provider: p.Name(), Kind: ErrMalformedResponse, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

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

	var parsed oaResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return state.Result{}, &Error{Provider: p.Name(), Kind: ErrMalformedResponse, Err: err}
	}
	if parsed.Error != nil {
		return state.Result{}, &Error{Provider: p.Name(), Kind: ErrMalformedResponse,
			Err: fmt.Errorf("api error: %s", parsed.Error.Message)}
	}
	if len(parsed.Choices) == 0 {
		return state.Result{}, &Error{Provider: p.Name(), Kind: ErrMalformedResponse,
			Err: fmt.Errorf("empty choices")}
	}

	return parseClassification(parsed.Choices[0].Message.Content, p.Name())
}
