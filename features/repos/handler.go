package repos

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"semcode/internal/middleware"
	"semcode/internal/registry"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// List handles GET /repositories.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.List(r.Context())
	if err != nil {
		slog.Error("repository list failed", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []registry.Entry{}
	}
	h.writeJSON(w, http.StatusOK, entries)
}

// Get handles GET /repositories/{name}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.Get(r.Context(), r.PathValue("name"))
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			h.writeError(r.Context(), w, "NOT_FOUND", "repository not registered", http.StatusNotFound)
			return
		}
		slog.Error("repository lookup failed", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}

// Delete handles DELETE /repositories/{name}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.service.Delete(r.Context(), name); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			h.writeError(r.Context(), w, "NOT_FOUND", "repository not registered", http.StatusNotFound)
			return
		}
		slog.Error("repository delete failed", "error", err, "repo", name)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
