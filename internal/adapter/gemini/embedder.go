// Package gemini adapts Google's generative AI backend to the embedding and
// generation capabilities the core depends on.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"semcode/internal/embed"
)

type EmbedderConfig struct {
	APIKey    string
	Model     string
	Dimension int
	BatchSize int
	Timeout   time.Duration
}

// Embedder implements embed.Provider on the Gemini embedding API.
type Embedder struct {
	client *genai.Client
	cfg    EmbedderConfig
}

func NewEmbedder(ctx context.Context, cfg EmbedderConfig) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini api key not configured", embed.ErrAuth)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, err
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Embedder{client: client, cfg: cfg}, nil
}

func (e *Embedder) Dimension() int { return e.cfg.Dimension }

func (e *Embedder) Close() error { return e.client.Close() }

// EmbedBatch embeds texts in configured-size sub-batches, in order. The
// returned vectors are validated against the configured dimension before
// anything is handed back.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("%w: blank text at index %d", embed.ErrInvalidInput, i)
		}
	}

	model := e.client.EmbeddingModel(e.cfg.Model)
	out := make([][]float32, 0, len(texts))

	for _, sub := range embed.SplitBatches(texts, e.cfg.BatchSize) {
		batch := model.NewBatch()
		for _, text := range sub {
			batch.AddContent(genai.Text(text))
		}

		callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		res, err := model.BatchEmbedContents(callCtx, batch)
		cancel()
		if err != nil {
			slog.ErrorContext(ctx, "batch embedding failed", "model", e.cfg.Model, "size", len(sub), "error", err)
			return nil, ClassifyError(err)
		}
		if len(res.Embeddings) != len(sub) {
			return nil, fmt.Errorf("%w: got %d embeddings for %d texts", embed.ErrTransient, len(res.Embeddings), len(sub))
		}

		for _, emb := range res.Embeddings {
			if len(emb.Values) != e.cfg.Dimension {
				return nil, fmt.Errorf("%w: backend returned %d, configured %d", embed.ErrDimensionMismatch, len(emb.Values), e.cfg.Dimension)
			}
			out = append(out, emb.Values)
		}
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
