package answer

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"semcode/internal/middleware"
)

// QueryLogEntry is one line in the append-only query log.
type QueryLogEntry struct {
	Timestamp      time.Time     `json:"timestamp"`
	Question       string        `json:"question"`
	NumResults     int           `json:"num_results"`
	FallbackUsed   bool          `json:"fallback_used"`
	FallbackReason string        `json:"fallback_reason,omitempty"`
	Duration       time.Duration `json:"duration_ns"`
	LatencyMs      int64         `json:"latency_ms"`
	CorrelationID  string        `json:"correlation_id"`
}

// QueryLogger appends JSON lines describing answered queries.
type QueryLogger struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewQueryLogger(w io.Writer) *QueryLogger {
	return &QueryLogger{writer: w}
}

// NewFileQueryLogger appends to the given file, mirroring entries to stdout.
func NewFileQueryLogger(path string) (*QueryLogger, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}

	cleanPath := filepath.Clean(path)
	f, err := os.OpenFile(cleanPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 -- path is from application config, not user input
	if err != nil {
		return nil, err
	}
	return NewQueryLogger(io.MultiWriter(os.Stdout, f)), nil
}

func (l *QueryLogger) Log(ctx context.Context, entry QueryLogEntry) {
	entry.Timestamp = time.Now()
	entry.LatencyMs = entry.Duration.Milliseconds()
	entry.CorrelationID = middleware.GetCorrelationID(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := json.NewEncoder(l.writer).Encode(entry); err != nil {
		slog.Error("failed to write query log entry", "error", err)
	}
}
