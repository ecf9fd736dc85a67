package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/af-corp/docroute/internal/config"
	"github.com/af-corp/docroute/internal/extract"
	"github.com/af-corp/docroute/internal/httputil"
	"github.com/af-corp/docroute/internal/orchestrator"
	"github.com/af-corp/docroute/internal/router"
	"github.com/af-corp/docroute/internal/types"
)

// Handler holds dependencies for the document HTTP handlers.
type Handler struct {
	orch      *orchestrator.Orchestrator
	maxUpload int64
	version   string
}

func NewHandler(orch *orchestrator.Orchestrator, maxUpload int64, version string) *Handler {
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}
	return &Handler{orch: orch, maxUpload: maxUpload, version: version}
}

// ProcessDocument handles POST /v1/documents. The document is the multipart
// "file" part; "mode", "budget", "doc_type" and a JSON "interim" field set
// are optional form values.
func (h *Handler) ProcessDocument(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteTooLargeError(w, reqID, "Document exceeds the upload limit")
			return
		}
		httputil.WriteBadRequestError(w, reqID, "Invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "Failed to read uploaded file")
		return
	}

	doc := orchestrator.Document{
		Filename: header.Filename,
		Data:     data,
		Mode:     r.FormValue("mode"),
		Budget:   r.FormValue("budget"),
		DocType:  r.FormValue("doc_type"),
	}
	if doc.Mode != "" && !validMode(doc.Mode) {
		httputil.WriteBadRequestError(w, reqID, "mode must be one of smart, remote, local")
		return
	}
	if raw := r.FormValue("interim"); raw != "" {
		var interim extract.FieldSet
		if err := json.Unmarshal([]byte(raw), &interim); err != nil {
			httputil.WriteBadRequestError(w, reqID, "Invalid interim extraction: "+err.Error())
			return
		}
		doc.Interim = &interim
	}

	res := h.orch.Orchestrate(r.Context(), doc)

	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	slog.Info("document processed",
		"request_id", reqID,
		"document_id", res.DocumentID,
		"filename", res.Filename,
		"bytes", len(data),
		"success", res.Success,
		"status_code", status,
		"elapsed_ms", res.ElapsedMs,
	)
	httputil.WriteJSON(w, status, res)
}

type routeRequest struct {
	Task     string         `json:"task"`
	Mode     string         `json:"mode"`
	Features types.Features `json:"features"`
}

// Route handles POST /v1/route: a dry run of model selection.
func (h *Handler) Route(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	var req routeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	if req.Task == "" {
		req.Task = req.Features.Task
	}
	if req.Task == "" {
		httputil.WriteBadRequestError(w, reqID, "task is required")
		return
	}
	if req.Mode != "" && !validMode(req.Mode) {
		httputil.WriteBadRequestError(w, reqID, "mode must be one of smart, remote, local")
		return
	}

	f := req.Features.WithTask(req.Task)
	httputil.WriteJSON(w, http.StatusOK, h.orch.Decide(req.Mode, req.Task, f))
}

type modelObject struct {
	ID            string   `json:"id"`
	Object        string   `json:"object"`
	OwnedBy       string   `json:"owned_by"`
	RemoteModelID string   `json:"remote_model_id"`
	Capabilities  []string `json:"capabilities"`
}

type modelListResponse struct {
	Object  string        `json:"object"`
	Data    []modelObject `json:"data"`
	Default string        `json:"default,omitempty"`
}

// ListModels handles GET /v1/models
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	reg := h.orch.Routing().Registry

	resp := modelListResponse{Object: "list", Data: []modelObject{}}
	for _, m := range reg.Models() {
		resp.Data = append(resp.Data, modelObject{
			ID:            m.Name,
			Object:        "model",
			OwnedBy:       m.Provider,
			RemoteModelID: m.RemoteModelID,
			Capabilities:  m.Capabilities,
		})
	}
	if d, ok := reg.DefaultModel(); ok {
		resp.Default = d.Name
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type healthResponse struct {
	Status    string                  `json:"status"`
	Version   string                  `json:"version"`
	Providers []router.ProviderHealth `json:"providers"`
}

// Health handles GET /health. The service reports degraded while any
// provider circuit is not closed; it keeps serving through the fallbacks.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy", Version: h.version, Providers: h.orch.Health().Snapshot()}
	for _, p := range resp.Providers {
		if p.State != router.StateClosed.String() {
			resp.Status = "degraded"
			break
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func validMode(mode string) bool {
	switch mode {
	case config.ModeSmart, config.ModeRemote, config.ModeLocal:
		return true
	}
	return false
}
