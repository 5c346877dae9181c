package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/havenlabs/haven/internal/core/domain"
	"github.com/havenlabs/haven/internal/storage/memory"
)

type stubPipeline struct {
	lastReq *domain.InteractionRequest
	res     *domain.Result
}

func (p *stubPipeline) Process(ctx context.Context, req *domain.InteractionRequest) *domain.Result {
	p.lastReq = req
	return p.res
}

func newTestServer(t *testing.T) (*Server, *stubPipeline, *memory.TraceStore) {
	t.Helper()
	pipeline := &stubPipeline{res: &domain.Result{ResponseText: "hello back"}}
	traces := memory.NewTraceStore()
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	return New(0, logger, pipeline, traces), pipeline, traces
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

func TestHandleInteraction(t *testing.T) {
	srv, pipeline, _ := newTestServer(t)

	body := `{"user_id":"u1","text":"remind me to stretch","task_focus":"health"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/interactions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if pipeline.lastReq == nil || pipeline.lastReq.UserID != "u1" {
		t.Fatalf("pipeline did not receive the request: %+v", pipeline.lastReq)
	}
	if pipeline.lastReq.TaskFocus != "health" {
		t.Fatalf("task focus not forwarded: %q", pipeline.lastReq.TaskFocus)
	}

	var resp interactionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ResponseText != "hello back" {
		t.Fatalf("unexpected response text %q", resp.ResponseText)
	}
	if resp.RequestID == "" {
		t.Fatal("expected a request id in the response")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}
}

func TestHandleInteractionRejectsMissingFields(t *testing.T) {
	srv, _, _ := newTestServer(t)

	for _, body := range []string{
		`{"text":"hi"}`,
		`{"user_id":"u1"}`,
		`{"user_id":"u1","text":"   "}`,
		`not json`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/v1/interactions", strings.NewReader(body))
		rec := httptest.NewRecorder()
		srv.Router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestHandleTraces(t *testing.T) {
	srv, _, traces := newTestServer(t)

	rec1 := &domain.TraceRecord{UserID: "u1", InputSummary: "first", ResponseSummary: "a"}
	rec2 := &domain.TraceRecord{UserID: "u1", InputSummary: "second", ResponseSummary: "b"}
	for _, r := range []*domain.TraceRecord{rec1, rec2} {
		if err := traces.Append(context.Background(), r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/users/u1/traces?limit=1", nil)
	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Traces []*domain.TraceRecord `json:"traces"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Traces) != 1 || resp.Traces[0].InputSummary != "second" {
		t.Fatalf("expected newest trace only, got %+v", resp.Traces)
	}
}

func TestHandleTracesRejectsBadLimit(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/users/u1/traces?limit=0", nil)
	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
