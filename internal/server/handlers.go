package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/havenlabs/haven/internal/core/domain"
)

const maxRequestBody = 64 << 10 // 64 KiB of free text is plenty

type interactionPayload struct {
	UserID    string `json:"user_id"`
	Text      string `json:"text"`
	TaskFocus string `json:"task_focus,omitempty"`
}

type interactionResponse struct {
	ResponseText string              `json:"response_text"`
	Actions      []domain.ActionSpec `json:"actions,omitempty"`
	RequestID    string              `json:"request_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	var payload interactionPayload
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payload.UserID = strings.TrimSpace(payload.UserID)
	payload.Text = strings.TrimSpace(payload.Text)
	if payload.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if payload.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	AddLogField(r.Context(), "user_id", payload.UserID)

	res := s.pipeline.Process(r.Context(), &domain.InteractionRequest{
		UserID:    payload.UserID,
		RawText:   payload.Text,
		TaskFocus: payload.TaskFocus,
		Timestamp: time.Now().UTC(),
	})

	writeJSON(w, http.StatusOK, interactionResponse{
		ResponseText: res.ResponseText,
		Actions:      res.Actions,
		RequestID:    GetRequestID(r.Context()),
	})
}

func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		limit = n
	}

	recs, err := s.traces.Recent(r.Context(), userID, limit)
	if err != nil {
		AddError(r.Context(), err)
		s.logger.Error("query traces", slog.String("user_id", userID), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to load traces")
		return
	}
	if recs == nil {
		recs = []*domain.TraceRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"traces": recs})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
