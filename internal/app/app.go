package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"semcode/features/ingest"
	"semcode/features/jobs"
	"semcode/features/query"
	"semcode/features/repos"
	"semcode/internal/adapter/gemini"
	"semcode/internal/answer"
	"semcode/internal/chunk"
	"semcode/internal/config"
	"semcode/internal/embed"
	"semcode/internal/engine"
	"semcode/internal/middleware"
	"semcode/internal/pipeline"
	"semcode/internal/registry"
	"semcode/internal/staging"
)

type App struct {
	Handler http.Handler
	Engine  *engine.Engine

	cfg *config.Config
}

func New(ctx context.Context, cfg *config.Config, deps *Dependencies, logger *slog.Logger) (*App, error) {
	embedder, err := gemini.NewEmbedder(ctx, gemini.EmbedderConfig{
		APIKey:    cfg.GeminiAPIKey,
		Model:     cfg.EmbedModel,
		Dimension: cfg.EmbedDimension,
		BatchSize: cfg.EmbedBatchSize,
		Timeout:   cfg.EmbedTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("embedder init: %w", err)
	}
	cached, err := embed.NewCachedProvider(embedder, cfg.EmbedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("embed cache init: %w", err)
	}

	reg := registry.NewPostgresStore(deps.DB)
	stager := staging.New(cfg.WorkspaceRoot)
	extractor := chunk.NewExtractor(cfg.MaxChunkChars)

	pipe := pipeline.New(stager, extractor, cached, deps.VectorIndex, reg, pipeline.Config{
		Collection:         cfg.Collection,
		EmbedBatchSize:     cfg.EmbedBatchSize,
		EmbedRetryAttempts: cfg.EmbedRetryAttempts,
		EmbedRetryDelay:    cfg.EmbedRetryBaseDelay,
		StagingConcurrency: cfg.StagingConcurrency,
	}, logger)

	var pub engine.Publisher
	if deps.NSQProducer != nil {
		pub = deps.NSQProducer
	}
	eng := engine.New(pipe, pub, logger, cfg.WorkerCount, cfg.JobQueueSize)

	var gen answer.Generator
	if cfg.GenEnabled {
		g, err := gemini.NewGenerator(ctx, gemini.GeneratorConfig{
			APIKey:       cfg.GeminiAPIKey,
			Model:        cfg.GenModel,
			Temperature:  cfg.GenTemperature,
			SystemPrompt: gemini.SystemPrompt,
			Timeout:      cfg.GenTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("generator init: %w", err)
		}
		gen = g
	}

	queryLogger, err := answer.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = answer.NewQueryLogger(os.Stdout)
	}

	answerer := answer.NewService(cached, deps.VectorIndex, gen, answer.Config{
		Collection:         cfg.Collection,
		TopK:               cfg.SearchTopK,
		SearchTimeout:      cfg.SearchTimeout,
		ContextMaxChars:    cfg.ContextMaxChars,
		FallbackMaxSources: cfg.FallbackMaxSources,
		FallbackSentences:  cfg.FallbackSentences,
		GenerationEnabled:  cfg.GenEnabled,
	}, queryLogger, logger)

	ingestHandler := ingest.NewHandler(eng)
	jobsHandler := jobs.NewHandler(eng)
	reposHandler := repos.NewHandler(repos.NewService(reg, deps.VectorIndex, cfg.Collection, logger))
	queryHandler := query.NewHandler(answerer)

	mux := http.NewServeMux()

	mux.Handle("POST /repositories", middleware.CorrelationID(http.HandlerFunc(ingestHandler.Create)))
	mux.Handle("GET /repositories", middleware.CorrelationID(http.HandlerFunc(reposHandler.List)))
	mux.Handle("GET /repositories/{name}", middleware.CorrelationID(http.HandlerFunc(reposHandler.Get)))
	mux.Handle("DELETE /repositories/{name}", middleware.CorrelationID(http.HandlerFunc(reposHandler.Delete)))

	mux.Handle("GET /jobs", middleware.CorrelationID(http.HandlerFunc(jobsHandler.List)))
	mux.Handle("GET /jobs/{id}", middleware.CorrelationID(http.HandlerFunc(jobsHandler.Get)))
	mux.Handle("DELETE /jobs/{id}", middleware.CorrelationID(http.HandlerFunc(jobsHandler.Cancel)))

	mux.Handle("POST /query", middleware.CorrelationID(http.HandlerFunc(queryHandler.Ask)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{Handler: mux, Engine: eng, cfg: cfg}, nil
}

// Run serves HTTP until ctx is cancelled, then drains the job engine.
func (a *App) Run(ctx context.Context) error {
	a.Engine.Start()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.cfg.ServerPort)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return a.Engine.Stop(drainCtx)
}
