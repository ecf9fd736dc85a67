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

const (
	anthropicDefaultVersion = "2023-06-01"
	anthropicMaxTokens      = 4096
)

// AnthropicAdapter handles communication with the Anthropic Messages API.
type AnthropicAdapter struct {
	name   string
	cfg    registry.Provider
	client *http.Client
}

func NewAnthropicAdapter(cfg registry.Provider, client *http.Client) *AnthropicAdapter {
	name := cfg.Name
	if name == "" {
		name = "anthropic"
	}
	return &AnthropicAdapter{name: name, cfg: cfg, client: client}
}

func (a *AnthropicAdapter) Name() string { return a.name }

func (a *AnthropicAdapter) CloseIdleConnections() { a.client.CloseIdleConnections() }

func (a *AnthropicAdapter) TransformRequest(ctx context.Context, req *ExtractRequest) (*http.Request, error) {
	if a.cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", a.name, ErrMissingCredential)
	}
	blocks := make([]anthropicBlock, 0, len(req.Images)+1)
	for _, img := range req.Images {
		blocks = append(blocks, anthropicBlock{
			Type: "image",
			Source: &anthropicImageSource{
				Type:      "base64",
				MediaType: "image/png",
				Data:      base64.StdEncoding.EncodeToString(img),
			},
		})
	}
	blocks = append(blocks, anthropicBlock{Type: "text", Text: req.Prompt})

	temp := req.Temperature
	body := anthropicRequestBody{
		Model:       req.Model,
		Messages:    []anthropicMessage{{Role: "user", Content: blocks}},
		MaxTokens:   anthropicMaxTokens,
		Temperature: &temp,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal anthropic request: %w", err)
	}

	url := strings.TrimRight(a.cfg.BaseURL, "/") + "/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}

	version := a.cfg.APIVersion
	if version == "" {
		version = anthropicDefaultVersion
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", version)
	for k, v := range a.cfg.Headers {
		if v != "" {
			httpReq.Header.Set(k, v)
		}
	}

	return httpReq, nil
}

func (a *AnthropicAdapter) TransformResponse(ctx context.Context, resp *http.Response) (*Extraction, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read anthropic response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newProviderError(a.name, resp.StatusCode, body)
	}

	var antResp anthropicResponseBody
	if err := json.Unmarshal(body, &antResp); err != nil {
		return nil, &MalformedResponseError{Provider: a.name, Reason: "response is not JSON", Err: err}
	}

	var content string
	found := false
	for _, block := range antResp.Content {
		if block.Type == "text" {
			content = block.Text
			found = true
			break
		}
	}
	if !found {
		return nil, &MalformedResponseError{Provider: a.name, Reason: "no text block in content"}
	}

	fields, err := parseObject(a.name, content)
	if err != nil {
		return nil, err
	}

	return &Extraction{
		Fields:   fields,
		RawText:  content,
		Provider: a.name,
		Model:    antResp.Model,
	}, nil
}

func (a *AnthropicAdapter) SendRequest(req *http.Request) (*http.Response, error) {
	return a.client.Do(req)
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicBlock struct {
	Type   string                `json:"type"`
	Text   string                `json:"text,omitempty"`
	Source *anthropicImageSource `json:"source,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicRequestBody struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicResponseBody struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}
