package logger

import (
	"context"
	"log/slog"

	"semcode/internal/middleware"
)

type ctxKey int

const jobIDKey ctxKey = 0

// WithJobID tags ctx so every log record emitted during an indexing run
// carries the job's id.
func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobIDKey, id)
}

// ContextHandler decorates every record with the correlation id and, inside
// a job run, the job id carried in the context.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ctx.Value(middleware.CorrelationKey).(string); ok && id != "" {
		r.AddAttrs(slog.String("correlation_id", id))
	}
	if id, ok := ctx.Value(jobIDKey).(string); ok && id != "" {
		r.AddAttrs(slog.String("job_id", id))
	}
	return h.Handler.Handle(ctx, r)
}
