package gateway

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/af-corp/docroute/internal/ratelimit"
	"github.com/af-corp/docroute/internal/telemetry"
)

// RouterOptions configures the HTTP surface around a Handler.
type RouterOptions struct {
	// Limiter and IngestRPM bound document submissions per client; a zero
	// IngestRPM disables the limit.
	Limiter     ratelimit.Checker
	IngestRPM   int
	Metrics     *telemetry.Metrics
	MetricsPath string
}

// NewRouter mounts the handlers on a chi router.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestID)

	r.Get("/health", h.Health)
	if opts.MetricsPath != "" {
		r.Handle(opts.MetricsPath, promhttp.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/models", h.ListModels)
		r.Post("/route", h.Route)
		r.With(ratelimit.Middleware(opts.Limiter, opts.IngestRPM, opts.Metrics)).
			Post("/documents", h.ProcessDocument)
	})
	return r
}

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestID propagates X-Request-ID, generating one when the client sent none.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = "req_" + uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
