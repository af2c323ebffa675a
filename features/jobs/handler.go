// Package jobs exposes the job status surface: list, inspect and cancel.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"semcode/internal/engine"
	"semcode/internal/middleware"
)

// Engine is the job tracking surface the handler depends on.
type Engine interface {
	Get(id string) (engine.Job, error)
	List() []engine.Job
	Cancel(id string) error
}

type Handler struct {
	engine Engine
}

func NewHandler(e Engine) *Handler {
	return &Handler{engine: e}
}

// List handles GET /jobs.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.List())
}

// Get handles GET /jobs/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.engine.Get(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			h.writeError(r.Context(), w, "NOT_FOUND", "job not found", http.StatusNotFound)
			return
		}
		slog.Error("job lookup failed", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

// Cancel handles DELETE /jobs/{id}.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.engine.Cancel(id); err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			h.writeError(r.Context(), w, "NOT_FOUND", "job not found", http.StatusNotFound)
			return
		}
		slog.Error("job cancel failed", "error", err, "id", id)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	job, err := h.engine.Get(id)
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": payload}); err != nil {
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
