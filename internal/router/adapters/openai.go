package adapters

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/af-corp/docroute/internal/registry"
)

// OpenAIAdapter talks to OpenAI-compatible chat/completions endpoints,
// OpenRouter included. Images are inlined as base64 data URLs.
type OpenAIAdapter struct {
	name   string
	cfg    registry.Provider
	client *http.Client
}

func NewOpenAIAdapter(cfg registry.Provider, client *http.Client) *OpenAIAdapter {
	name := cfg.Name
	if name == "" {
		name = "openai"
	}
	return &OpenAIAdapter{name: name, cfg: cfg, client: client}
}

func (a *OpenAIAdapter) Name() string { return a.name }

func (a *OpenAIAdapter) CloseIdleConnections() { a.client.CloseIdleConnections() }

func (a *OpenAIAdapter) TransformRequest(ctx context.Context, req *ExtractRequest) (*http.Request, error) {
	if a.cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", a.name, ErrMissingCredential)
	}
	parts := make([]openAIContentPart, 0, len(req.Images)+1)
	for _, img := range req.Images {
		parts = append(parts, openAIContentPart{
			Type:     "image_url",
			ImageURL: &openAIImageURL{URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(img)},
		})
	}
	parts = append(parts, openAIContentPart{Type: "text", Text: req.Prompt})

	body := openAIRequestBody{
		Model:       req.Model,
		Temperature: req.Temperature,
		Messages:    []openAIMessage{{Role: "user", Content: parts}},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal openai request: %w", err)
	}

	url := strings.TrimRight(a.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	for k, v := range a.cfg.Headers {
		if v != "" {
			httpReq.Header.Set(k, v)
		}
	}

	return httpReq, nil
}

func (a *OpenAIAdapter) TransformResponse(ctx context.Context, resp *http.Response) (*Extraction, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read openai response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newProviderError(a.name, resp.StatusCode, body)
	}

	var oaiResp openAIResponseBody
	if err := json.Unmarshal(body, &oaiResp); err != nil {
		return nil, &MalformedResponseError{Provider: a.name, Reason: "response is not JSON", Err: err}
	}
	if len(oaiResp.Choices) == 0 || oaiResp.Choices[0].Message == nil {
		return nil, &MalformedResponseError{Provider: a.name, Reason: "missing choices[0].message"}
	}

	content := oaiResp.Choices[0].Message.Content
	fields, err := parseObject(a.name, content)
	if err != nil {
		return nil, err
	}

	return &Extraction{
		Fields:   fields,
		RawText:  content,
		Provider: a.name,
		Model:    oaiResp.Model,
	}, nil
}

func (a *OpenAIAdapter) SendRequest(req *http.Request) (*http.Response, error) {
	return a.client.Do(req)
}

type openAIRequestBody struct {
	Model       string          `json:"model"`
	Temperature float64         `json:"temperature"`
	Messages    []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string              `json:"role"`
	Content []openAIContentPart `json:"content"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIResponseBody struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message *struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}
