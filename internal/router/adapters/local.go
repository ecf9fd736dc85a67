package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/af-corp/docroute/internal/registry"
)

// LocalAdapter calls the self-hosted model service, which takes a multipart
// upload on /process and answers {success, data: {extracted_fields}}.
// The service reads one file, so only the first image is sent.
type LocalAdapter struct {
	name   string
	cfg    registry.Provider
	client *http.Client
}

func NewLocalAdapter(cfg registry.Provider, client *http.Client) *LocalAdapter {
	name := cfg.Name
	if name == "" {
		name = "local"
	}
	return &LocalAdapter{name: name, cfg: cfg, client: client}
}

func (a *LocalAdapter) Name() string { return a.name }

func (a *LocalAdapter) CloseIdleConnections() { a.client.CloseIdleConnections() }

func (a *LocalAdapter) TransformRequest(ctx context.Context, req *ExtractRequest) (*http.Request, error) {
	if len(req.Images) == 0 {
		return nil, fmt.Errorf("local backend needs at least one image")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	filename := req.Filename
	if filename == "" {
		filename = "page.png"
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(req.Images[0]); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := mw.WriteField("prompt", req.Prompt); err != nil {
		return nil, fmt.Errorf("write prompt field: %w", err)
	}
	if err := mw.WriteField("model", req.Model); err != nil {
		return nil, fmt.Errorf("write model field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	url := strings.TrimRight(a.cfg.BaseURL, "/") + "/process"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	if a.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}
	for k, v := range a.cfg.Headers {
		if v != "" {
			httpReq.Header.Set(k, v)
		}
	}
	return httpReq, nil
}

func (a *LocalAdapter) TransformResponse(ctx context.Context, resp *http.Response) (*Extraction, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read local response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newProviderError(a.name, resp.StatusCode, body)
	}

	var lr localResponseBody
	if err := json.Unmarshal(body, &lr); err != nil {
		return nil, &MalformedResponseError{Provider: a.name, Reason: "response is not JSON", Err: err}
	}
	if !lr.Success {
		pe := newProviderError(a.name, resp.StatusCode, []byte(lr.Error))
		pe.Code = "processing_failed"
		return nil, pe
	}
	if lr.Data == nil || lr.Data.ExtractedFields == nil {
		return nil, &MalformedResponseError{Provider: a.name, Reason: "missing data.extracted_fields"}
	}

	var fields map[string]any
	if err := json.Unmarshal(lr.Data.ExtractedFields, &fields); err != nil || fields == nil {
		return nil, &MalformedResponseError{Provider: a.name, Reason: "extracted_fields is not a JSON object", Err: err}
	}

	return &Extraction{
		Fields:   fields,
		RawText:  string(lr.Data.ExtractedFields),
		Provider: a.name,
	}, nil
}

func (a *LocalAdapter) SendRequest(req *http.Request) (*http.Response, error) {
	return a.client.Do(req)
}

type localResponseBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    *struct {
		ExtractedFields json.RawMessage `json:"extracted_fields"`
	} `json:"data"`
}
