// Package answer turns a question into a grounded response: embed the
// question, retrieve the nearest chunks, synthesize an answer, and fall back
// to an extractive summary when synthesis is unavailable.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"semcode/internal/embed"
	"semcode/internal/vector"
)

var ErrEmptyQuestion = errors.New("question must not be blank")

// Machine-readable reasons reported alongside a fallback answer.
const (
	ReasonGenerationTimeout  = "generation_timeout"
	ReasonGenerationError    = "generation_error"
	ReasonGenerationDisabled = "generation_disabled"
)

// NoContextAnswer is returned when the search yields nothing.
const NoContextAnswer = "No matching context was retrieved. Try ingesting the repository again."

// Source is one retrieved chunk backing the answer.
type Source struct {
	Repo     string  `json:"repo"`
	Path     string  `json:"path"`
	Language string  `json:"language,omitempty"`
	Snippet  string  `json:"snippet"`
	Score    float32 `json:"score"`
}

// Result is the response for one query. Sources are ordered by descending
// score. FallbackReason is set only when FallbackUsed is true.
type Result struct {
	Answer         string   `json:"answer"`
	Sources        []Source `json:"sources"`
	FallbackUsed   bool     `json:"fallback_used"`
	FallbackReason string   `json:"fallback_reason,omitempty"`
}

// Options narrow one query. Zero values fall back to configuration.
type Options struct {
	Repo     string
	Language string
	TopK     int
}

// Generator synthesizes an answer from an assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Config struct {
	Collection         string
	TopK               int
	SearchTimeout      time.Duration
	ContextMaxChars    int
	FallbackMaxSources int
	FallbackSentences  int
	GenerationEnabled  bool
}

type Service struct {
	embedder embed.Provider
	index    vector.Index
	gen      Generator
	cfg      Config
	queryLog *QueryLogger
	logger   *slog.Logger
}

// NewService wires the query path. gen may be nil when generation is
// disabled; queryLog may be nil to skip query logging.
func NewService(embedder embed.Provider, index vector.Index, gen Generator, cfg Config, queryLog *QueryLogger, logger *slog.Logger) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.ContextMaxChars <= 0 {
		cfg.ContextMaxChars = 12000
	}
	if cfg.FallbackMaxSources <= 0 {
		cfg.FallbackMaxSources = 3
	}
	if cfg.FallbackSentences <= 0 {
		cfg.FallbackSentences = 3
	}
	return &Service{
		embedder: embedder,
		index:    index,
		gen:      gen,
		cfg:      cfg,
		queryLog: queryLog,
		logger:   logger,
	}
}

// Query answers the question from indexed chunks. Search failures are fatal
// to the query; generation failures degrade to the extractive fallback.
func (s *Service) Query(ctx context.Context, question string, opts Options) (*Result, error) {
	start := time.Now()
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = s.cfg.TopK
	}

	queryVector, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	searchCtx := ctx
	if s.cfg.SearchTimeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, s.cfg.SearchTimeout)
		defer cancel()
	}
	hits, err := s.index.Search(searchCtx, s.cfg.Collection, queryVector, topK, vector.Filters{
		Repo:     opts.Repo,
		Language: opts.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	result := s.assemble(ctx, question, hits)
	s.log(ctx, question, result, time.Since(start))
	return result, nil
}

func (s *Service) assemble(ctx context.Context, question string, hits []vector.Hit) *Result {
	if len(hits) == 0 {
		return &Result{Answer: NoContextAnswer, Sources: []Source{}}
	}

	sources := make([]Source, len(hits))
	for i, h := range hits {
		sources[i] = Source{
			Repo:     h.Repo,
			Path:     h.Path,
			Language: h.Language,
			Snippet:  snippet(h.Content, s.cfg.FallbackSentences),
			Score:    h.Score,
		}
	}

	if !s.cfg.GenerationEnabled || s.gen == nil {
		return &Result{
			Answer:         fallbackAnswer(question, sources, s.cfg.FallbackMaxSources),
			Sources:        sources,
			FallbackUsed:   true,
			FallbackReason: ReasonGenerationDisabled,
		}
	}

	answer, err := s.gen.Generate(ctx, buildPrompt(assembleContext(hits, s.cfg.ContextMaxChars), question))
	if err != nil {
		reason := ReasonGenerationError
		if errors.Is(err, context.DeadlineExceeded) {
			reason = ReasonGenerationTimeout
		}
		s.logger.WarnContext(ctx, "generation failed, using extractive fallback",
			slog.String("reason", reason), slog.Any("error", err))
		return &Result{
			Answer:         fallbackAnswer(question, sources, s.cfg.FallbackMaxSources),
			Sources:        sources,
			FallbackUsed:   true,
			FallbackReason: reason,
		}
	}

	return &Result{Answer: answer, Sources: sources}
}

// assembleContext concatenates hit contents best-first until the budget is
// spent, so the lowest-ranked chunks are the ones truncated away.
func assembleContext(hits []vector.Hit, maxChars int) string {
	var b strings.Builder
	for _, h := range hits {
		block := fmt.Sprintf("// %s:%s\n%s\n\n", h.Repo, h.Path, h.Content)
		if b.Len()+len(block) > maxChars {
			remaining := maxChars - b.Len()
			if remaining > 0 {
				b.WriteString(cutAtRuneBoundary(block, remaining))
			}
			break
		}
		b.WriteString(block)
	}
	return strings.TrimRight(b.String(), "\n")
}

func buildPrompt(contextBlock, question string) string {
	return fmt.Sprintf("Context:\n%s\n\nQuestion:\n%s\n\nAnswer with references to the files you used.", contextBlock, question)
}

func (s *Service) log(ctx context.Context, question string, result *Result, duration time.Duration) {
	if s.queryLog == nil {
		return
	}
	s.queryLog.Log(ctx, QueryLogEntry{
		Question:       question,
		NumResults:     len(result.Sources),
		FallbackUsed:   result.FallbackUsed,
		FallbackReason: result.FallbackReason,
		Duration:       duration,
	})
}
