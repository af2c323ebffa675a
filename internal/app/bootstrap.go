package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	wstore "semcode/internal/adapter/weaviate"
	"semcode/internal/config"
	"semcode/internal/vector"
)

// Dependencies holds the external connections the application runs on.
// NSQProducer is nil when no NSQD host is configured.
type Dependencies struct {
	DB          *sql.DB
	VectorIndex vector.Index
	NSQProducer *nsq.Producer
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.PingContext(ctx); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1)
		time.Sleep(retryDelay)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("migration up error: %w", err)
	}

	wCfg := weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme}
	wClient, err := weaviate.NewClient(wCfg)
	if err != nil {
		return nil, fmt.Errorf("weaviate client error: %w", err)
	}
	index := wstore.NewStore(wClient, cfg.UpsertBatchSize)

	// An unreachable vector store must not block startup: ingestion degrades
	// per run, and the collection is ensured again before each upsert.
	if err := ensureCollectionWithRetry(ctx, index, cfg, retryDelay); err != nil {
		if !errors.Is(err, vector.ErrUnreachable) {
			return nil, fmt.Errorf("weaviate collection error: %w", err)
		}
		slog.Warn("vector store unreachable at startup, continuing without it", "error", err)
	}

	deps := &Dependencies{DB: db, VectorIndex: index}

	if cfg.NSQDHost != "" {
		producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
		if err != nil {
			return nil, fmt.Errorf("nsq producer error: %w", err)
		}
		deps.NSQProducer = producer
		if cfg.NSQDHTTP != "" {
			createTopics(cfg.NSQDHTTP)
		}
	}

	return deps, nil
}

func ensureCollectionWithRetry(ctx context.Context, index vector.Index, cfg *config.Config, delay time.Duration) error {
	var err error
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err = index.EnsureCollection(ctx, cfg.Collection, cfg.EmbedDimension); err == nil {
			return nil
		}
		if errors.Is(err, vector.ErrDimensionMismatch) {
			return err
		}
		if i < cfg.BootstrapRetryAttempts-1 {
			time.Sleep(delay)
		}
	}
	return err
}

func createTopics(nsqdHTTP string) {
	go func() {
		time.Sleep(2 * time.Second)
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, config.TopicJobStatus)
		resp, err := http.Post(url, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", config.TopicJobStatus, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}()
}
