// Package query exposes question answering over HTTP.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"semcode/internal/answer"
	"semcode/internal/middleware"
)

// Answerer is the query surface the handler depends on.
type Answerer interface {
	Query(ctx context.Context, question string, opts answer.Options) (*answer.Result, error)
}

type Handler struct {
	answerer Answerer
}

func NewHandler(a Answerer) *Handler {
	return &Handler{answerer: a}
}

// Ask handles POST /query.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
		Repo     string `json:"repo"`
		Language string `json:"language"`
		TopK     int    `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.answerer.Query(r.Context(), req.Question, answer.Options{
		Repo:     req.Repo,
		Language: req.Language,
		TopK:     req.TopK,
	})
	if err != nil {
		if errors.Is(err, answer.ErrEmptyQuestion) {
			h.writeError(r.Context(), w, "VALIDATION_ERROR", "question is required", http.StatusBadRequest)
			return
		}
		slog.Error("query failed", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": result}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
