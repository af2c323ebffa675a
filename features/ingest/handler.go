// Package ingest exposes repository ingestion over HTTP: submissions go to
// the job engine and return a job snapshot, optionally waiting for the
// terminal state.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"semcode/internal/engine"
	"semcode/internal/middleware"
	"semcode/internal/pipeline"
)

// Engine is the submission surface the handler depends on.
type Engine interface {
	Submit(req pipeline.Request) (engine.Job, error)
	Wait(ctx context.Context, id string) (engine.Job, error)
}

type Handler struct {
	engine Engine
}

func NewHandler(e Engine) *Handler {
	return &Handler{engine: e}
}

// Create handles POST /repositories. With ?wait=true the response carries the
// terminal job snapshot instead of the pending one.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string   `json:"name"`
		Sources []string `json:"sources"`
		Force   bool     `json:"force"`
		Ignore  []string `json:"ignore"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	if req.Name == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "name is required", http.StatusBadRequest)
		return
	}
	if len(req.Sources) == 0 {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "at least one source is required", http.StatusBadRequest)
		return
	}

	job, err := h.engine.Submit(pipeline.Request{
		Name:    req.Name,
		Sources: req.Sources,
		Force:   req.Force,
		Ignore:  req.Ignore,
	})
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrQueueFull):
			h.writeError(r.Context(), w, "QUEUE_FULL", "too many pending jobs, retry later", http.StatusServiceUnavailable)
		case errors.Is(err, engine.ErrStopped):
			h.writeError(r.Context(), w, "SHUTTING_DOWN", "engine is shutting down", http.StatusServiceUnavailable)
		default:
			slog.Error("job submission failed", "error", err, "repo", req.Name)
			h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		done, err := h.engine.Wait(r.Context(), job.ID)
		if err != nil {
			h.writeError(r.Context(), w, "WAIT_ABORTED", err.Error(), http.StatusRequestTimeout)
			return
		}
		h.writeJSON(w, http.StatusOK, done)
		return
	}

	h.writeJSON(w, http.StatusAccepted, job)
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
