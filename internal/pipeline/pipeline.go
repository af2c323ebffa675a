// Package pipeline runs the indexing flow for one repository: copy the
// sources into the workspace, chunk them, embed the chunks and upsert the
// vectors, then record the outcome in the registry.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"semcode/internal/chunk"
	"semcode/internal/embed"
	"semcode/internal/registry"
	"semcode/internal/staging"
	"semcode/internal/vector"
)

// Stage names, in execution order. Progress consumers see them verbatim.
const (
	StageCopy   = "copy"
	StageChunk  = "chunk"
	StageEmbed  = "embed"
	StageUpsert = "upsert"
)

// Stager is the staging capability the pipeline depends on.
type Stager interface {
	Stage(ctx context.Context, opts staging.Options) (*staging.Result, error)
}

// Extractor turns one staged file into chunks.
type Extractor interface {
	Extract(repo, root, relPath, language string) ([]chunk.Chunk, error)
}

// Progress receives stage transitions and monotonic per-stage counters.
// Implementations must tolerate concurrent Copied calls.
type Progress interface {
	Stage(name string)
	Copied(n int)
	Chunked(n int)
	Embedded(n int)
	Upserted(n int)
}

// NopProgress discards all progress updates.
type NopProgress struct{}

func (NopProgress) Stage(string) {}
func (NopProgress) Copied(int)   {}
func (NopProgress) Chunked(int)  {}
func (NopProgress) Embedded(int) {}
func (NopProgress) Upserted(int) {}

// Request describes one indexing run.
type Request struct {
	Name    string
	Sources []string
	Force   bool
	Ignore  []string
}

// Result summarises a completed run. VectorsIndexed is false when the vector
// store was unreachable and the run completed without upserting.
type Result struct {
	Name           string   `json:"name"`
	Languages      []string `json:"languages"`
	ChunkCount     int      `json:"chunk_count"`
	Embedded       int      `json:"embedded"`
	Upserted       int      `json:"upserted"`
	VectorsIndexed bool     `json:"vectors_indexed"`
	Collection     string   `json:"collection"`
}

// Config carries the pipeline knobs; zero values fall back to defaults.
type Config struct {
	Collection         string
	EmbedBatchSize     int
	EmbedRetryAttempts int
	EmbedRetryDelay    time.Duration
	StagingConcurrency int
}

type Pipeline struct {
	stager    Stager
	extractor Extractor
	embedder  embed.Provider
	index     vector.Index
	registry  registry.Store
	cfg       Config
	logger    *slog.Logger
}

func New(stager Stager, extractor Extractor, embedder embed.Provider, index vector.Index, reg registry.Store, cfg Config, logger *slog.Logger) *Pipeline {
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 64
	}
	return &Pipeline{
		stager:    stager,
		extractor: extractor,
		embedder:  embedder,
		index:     index,
		registry:  reg,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run executes the full flow. Cancellation is honored between stages; a
// cancelled run returns ctx.Err() and registers nothing.
func (p *Pipeline) Run(ctx context.Context, req Request, progress Progress) (*Result, error) {
	if progress == nil {
		progress = NopProgress{}
	}

	progress.Stage(StageCopy)
	staged, err := p.stager.Stage(ctx, staging.Options{
		Name:        req.Name,
		Sources:     req.Sources,
		Force:       req.Force,
		Ignore:      req.Ignore,
		Concurrency: p.cfg.StagingConcurrency,
		Progress:    func(string) { progress.Copied(1) },
	})
	if err != nil {
		return nil, fmt.Errorf("stage sources: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	progress.Stage(StageChunk)
	var chunks []chunk.Chunk
	for _, f := range staged.Files {
		cs, err := p.extractor.Extract(req.Name, staged.Root, f.Path, f.Language)
		if err != nil {
			p.logger.WarnContext(ctx, "skipping unreadable file",
				slog.String("repo", req.Name), slog.String("path", f.Path), slog.Any("error", err))
			continue
		}
		kept := 0
		for _, c := range cs {
			// An empty file falls back to a whole-file chunk with blank
			// text; there is nothing to embed or search for it.
			if strings.TrimSpace(c.Text) == "" {
				continue
			}
			chunks = append(chunks, c)
			kept++
		}
		progress.Chunked(kept)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{
		Name:       req.Name,
		Languages:  staged.Languages,
		ChunkCount: len(chunks),
		Collection: p.cfg.Collection,
	}

	if len(chunks) == 0 {
		p.logger.WarnContext(ctx, "no chunks extracted", slog.String("repo", req.Name))
		return result, p.register(ctx, result)
	}

	progress.Stage(StageEmbed)
	vectors, err := p.embedAll(ctx, chunks, progress)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	result.Embedded = len(vectors)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	progress.Stage(StageUpsert)
	records := make([]vector.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vector.Record{
			ID:     vector.RecordID(c.Repo, c.Path, c.Ordinal),
			Vector: vectors[i],
			Metadata: vector.Metadata{
				Content:  c.Text,
				Repo:     c.Repo,
				Path:     c.Path,
				Language: c.Language,
				Ordinal:  c.Ordinal,
				Symbol:   c.Symbol,
			},
		}
	}

	upserted, indexed, err := p.upsert(ctx, records, progress)
	if err != nil {
		return nil, err
	}
	result.Upserted = upserted
	result.VectorsIndexed = indexed

	return result, p.register(ctx, result)
}

// embedAll embeds chunk texts in configured batches, retrying transient
// failures with backoff. Auth, input and dimension errors abort immediately.
func (p *Pipeline) embedAll(ctx context.Context, chunks []chunk.Chunk, progress Progress) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	cfg := retryConfig{
		MaxAttempts: p.cfg.EmbedRetryAttempts,
		BaseDelay:   p.cfg.EmbedRetryDelay,
	}
	transient := func(err error) bool { return errors.Is(err, embed.ErrTransient) }

	var vectors [][]float32
	for _, batch := range embed.SplitBatches(texts, p.cfg.EmbedBatchSize) {
		batch := batch
		vs, err := retryWithBackoff(ctx, cfg, transient, func() ([][]float32, error) {
			return p.embedder.EmbedBatch(ctx, batch)
		})
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vs...)
		progress.Embedded(len(vs))
	}
	return vectors, nil
}

// upsert writes records to the vector store. An unreachable store degrades
// the run instead of failing it: the repository is still registered, with
// VectorsIndexed false so a later run can fill the gap.
func (p *Pipeline) upsert(ctx context.Context, records []vector.Record, progress Progress) (int, bool, error) {
	err := p.index.EnsureCollection(ctx, p.cfg.Collection, p.embedder.Dimension())
	if errors.Is(err, vector.ErrUnreachable) {
		p.logger.WarnContext(ctx, "vector store unreachable, skipping upsert", slog.Any("error", err))
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("ensure collection: %w", err)
	}

	res, err := p.index.Upsert(ctx, p.cfg.Collection, records)
	if errors.Is(err, vector.ErrUnreachable) {
		p.logger.WarnContext(ctx, "vector store unreachable, skipping upsert", slog.Any("error", err))
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("upsert vectors: %w", err)
	}

	for _, f := range res.Failed {
		p.logger.WarnContext(ctx, "record rejected by vector store",
			slog.String("id", f.ID), slog.String("reason", f.Reason))
	}
	progress.Upserted(res.Upserted)
	return res.Upserted, true, nil
}

func (p *Pipeline) register(ctx context.Context, result *Result) error {
	entry := &registry.Entry{
		Name:           result.Name,
		Languages:      result.Languages,
		ChunkCount:     result.ChunkCount,
		Collection:     result.Collection,
		VectorsIndexed: result.VectorsIndexed,
		IndexedAt:      time.Now().UTC(),
	}
	if err := p.registry.Put(ctx, entry); err != nil {
		return fmt.Errorf("register repository: %w", err)
	}
	return nil
}
