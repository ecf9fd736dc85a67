package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// ExtractRequest is one extraction call: a prompt plus the page images it
// refers to, addressed to a remote model id.
type ExtractRequest struct {
	Prompt      string
	Images      [][]byte
	Model       string
	Temperature float64
	// Filename is a hint for backends that take a file upload.
	Filename string
}

// Extraction is the parsed result of one backend call.
type Extraction struct {
	Fields   map[string]any
	RawText  string
	Provider string
	Model    string
}

// ProviderAdapter isolates one provider's wire format. Each provider type has
// its own implementation, picked by the routing decision's provider.
type ProviderAdapter interface {
	Name() string
	TransformRequest(ctx context.Context, req *ExtractRequest) (*http.Request, error)
	// SendRequest sends an HTTP request using the provider's configured client.
	SendRequest(req *http.Request) (*http.Response, error)
	TransformResponse(ctx context.Context, resp *http.Response) (*Extraction, error)
}

// Extract performs exactly one outbound call through a. Non-2xx responses
// surface as *ProviderError and unparseable content as
// *MalformedResponseError. It does not retry.
func Extract(ctx context.Context, a ProviderAdapter, req *ExtractRequest) (*Extraction, error) {
	start := time.Now()
	httpReq, err := a.TransformRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", a.Name(), err)
	}

	resp, err := a.SendRequest(httpReq)
	if err != nil {
		slog.Warn("backend.http.error",
			"provider", a.Name(),
			"model", req.Model,
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("send %s request: %w", a.Name(), err)
	}

	out, err := a.TransformResponse(ctx, resp)
	if err != nil {
		slog.Warn("backend.response.error",
			"provider", a.Name(),
			"model", req.Model,
			"status", resp.StatusCode,
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}
	if out.Model == "" {
		out.Model = req.Model
	}

	slog.Debug("backend.extract.ok",
		"provider", a.Name(),
		"model", out.Model,
		"images", len(req.Images),
		"fields", len(out.Fields),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}
