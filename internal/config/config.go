package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"semcode"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"semcode"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	// NSQD_HOST is optional; empty disables job status events.
	NSQDHost string `envconfig:"NSQD_HOST"`
	NSQDHTTP string `envconfig:"NSQD_HTTP"`

	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`

	WorkspaceRoot string `envconfig:"WORKSPACE_ROOT" default:"./workspace"`
	Collection    string `envconfig:"COLLECTION" default:"SemcodeChunk"`

	EmbedModel          string        `envconfig:"EMBED_MODEL" default:"gemini-embedding-001"`
	EmbedDimension      int           `envconfig:"EMBED_DIMENSION" default:"3072"`
	EmbedBatchSize      int           `envconfig:"EMBED_BATCH_SIZE" default:"64"`
	EmbedTimeout        time.Duration `envconfig:"EMBED_TIMEOUT" default:"60s"`
	EmbedRetryAttempts  int           `envconfig:"EMBED_RETRY_ATTEMPTS" default:"3"`
	EmbedRetryBaseDelay time.Duration `envconfig:"EMBED_RETRY_BASE_DELAY" default:"500ms"`
	EmbedCacheSize      int           `envconfig:"EMBED_CACHE_SIZE" default:"10000"`
	UpsertBatchSize     int           `envconfig:"UPSERT_BATCH_SIZE" default:"128"`
	MaxChunkChars       int           `envconfig:"MAX_CHUNK_CHARS" default:"4000"`
	StagingConcurrency  int           `envconfig:"STAGING_CONCURRENCY" default:"16"`
	WorkerCount         int           `envconfig:"WORKER_COUNT" default:"4"`
	JobQueueSize        int           `envconfig:"JOB_QUEUE_SIZE" default:"256"`
	SearchTopK          int           `envconfig:"SEARCH_TOP_K" default:"5"`
	SearchTimeout       time.Duration `envconfig:"SEARCH_TIMEOUT" default:"15s"`
	GenModel            string        `envconfig:"GEN_MODEL" default:"gemini-2.0-flash"`
	GenTemperature      float32       `envconfig:"GEN_TEMPERATURE" default:"0"`
	GenTimeout          time.Duration `envconfig:"GEN_TIMEOUT" default:"45s"`
	GenEnabled          bool          `envconfig:"GEN_ENABLED" default:"true"`
	ContextMaxChars     int           `envconfig:"CONTEXT_MAX_CHARS" default:"12000"`
	FallbackMaxSources  int           `envconfig:"FALLBACK_MAX_SOURCES" default:"3"`
	FallbackSentences   int           `envconfig:"FALLBACK_SENTENCES" default:"3"`
	QueryLogPath        string        `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	MigrationPath       string        `envconfig:"MIGRATION_PATH" default:"file://migrations"`
	ServerPort          int           `envconfig:"SERVER_PORT" default:"8081"`

	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars may be set in the shell instead; a missing .env is fine.
	_ = godotenv.Load(".env")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: COLLECTION", ErrMissingRequired)
	}
	if c.EmbedDimension <= 0 {
		return fmt.Errorf("%w: EMBED_DIMENSION must be positive", ErrMissingRequired)
	}
	if c.EmbedBatchSize <= 0 {
		return fmt.Errorf("%w: EMBED_BATCH_SIZE must be positive", ErrMissingRequired)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("%w: WORKER_COUNT must be positive", ErrMissingRequired)
	}
	return nil
}
