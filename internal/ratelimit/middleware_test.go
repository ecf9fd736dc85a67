package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/af-corp/docroute/internal/httputil"
)

func TestMiddleware_AllowsRequest(t *testing.T) {
	mw := Middleware(NewLimiter(nil), 100, nil)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", nil)
	rec := httptest.NewRecorder()
	rec.Header().Set("X-Request-ID", "req-1")

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if h := rec.Header().Get(headerRateLimitRequests); h != "100" {
		t.Errorf("expected X-RateLimit-Limit-Requests=100, got %s", h)
	}
	if h := rec.Header().Get(headerRateLimitRemainingRequests); h == "" {
		t.Error("expected X-RateLimit-Remaining-Requests header")
	}
	if h := rec.Header().Get(headerRateLimitReset); h == "" {
		t.Error("expected X-RateLimit-Reset-Requests header")
	}
}

func TestMiddleware_Disabled(t *testing.T) {
	mw := Middleware(NewLimiter(nil), 0, nil)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/documents", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected passthrough, got %d", rec.Code)
	}
	if h := rec.Header().Get(headerRateLimitRequests); h != "" {
		t.Errorf("expected no rate limit headers when disabled, got %s", h)
	}
}

func TestMiddleware_RejectsOverLimit(t *testing.T) {
	checker := &countingChecker{n: 1}
	mw := Middleware(checker, 5, nil)

	called := 0
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called++
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/documents", nil)
		req.RemoteAddr = "10.0.0.7:51234"
		rec := httptest.NewRecorder()
		rec.Header().Set("X-Request-ID", "req-limit")
		handler.ServeHTTP(rec, req)

		if i == 0 {
			continue
		}
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", rec.Code)
		}
		if rec.Header().Get(headerRetryAfter) == "" {
			t.Error("expected Retry-After header")
		}
		var apiErr httputil.APIError
		if err := json.NewDecoder(rec.Body).Decode(&apiErr); err != nil {
			t.Fatalf("decode error body: %v", err)
		}
		if apiErr.Error.Code != "rate_limit_exceeded" {
			t.Errorf("expected rate_limit_exceeded, got %s", apiErr.Error.Code)
		}
	}

	if called != 1 {
		t.Errorf("expected handler to run once, ran %d times", called)
	}
	if _, ok := checker.seen["ingest:10.0.0.7"]; !ok {
		t.Errorf("expected client address key, got %v", checker.seen)
	}
}
