// Package embed defines the embedding capability the indexing and query
// paths depend on. Backends are selected by configuration at startup.
package embed

import (
	"context"
	"errors"
)

// Error kinds callers use to decide between retry and abort.
var (
	// ErrAuth marks credential or permission failures; never retried.
	ErrAuth = errors.New("embedding auth failure")
	// ErrTransient marks network or backend hiccups; safe to retry.
	ErrTransient = errors.New("transient embedding failure")
	// ErrInvalidInput marks malformed input; never retried.
	ErrInvalidInput = errors.New("invalid embedding input")
	// ErrDimensionMismatch marks a backend returning vectors that do not
	// match the configured dimension; fatal configuration error.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Provider maps text to fixed-dimension vectors. Implementations must honor
// their configured batch size internally, so callers may pass batches of any
// length. Vectors are returned in input order, one per text.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// SplitBatches cuts texts into consecutive slices of at most size elements.
func SplitBatches(texts []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	var out [][]string
	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		out = append(out, texts[start:end])
	}
	return out
}
