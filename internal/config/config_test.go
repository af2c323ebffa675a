package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DBHost)
	assert.Equal(t, 5432, cfg.DBPort)
	assert.Equal(t, "SemcodeChunk", cfg.Collection)
	assert.Equal(t, 3072, cfg.EmbedDimension)
	assert.Equal(t, 64, cfg.EmbedBatchSize)
	assert.Equal(t, 128, cfg.UpsertBatchSize)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, 60*time.Second, cfg.EmbedTimeout)
	assert.Equal(t, 3, cfg.FallbackMaxSources)
	assert.Equal(t, 3, cfg.FallbackSentences)
	assert.True(t, cfg.GenEnabled)
	assert.Empty(t, cfg.NSQDHost)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("EMBED_DIMENSION", "768")
	t.Setenv("WORKER_COUNT", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 768, cfg.EmbedDimension)
	assert.Equal(t, 2, cfg.WorkerCount)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"missing db host", func(c *Config) { c.DBHost = "" }, true},
		{"missing db user", func(c *Config) { c.DBUser = "" }, true},
		{"missing db name", func(c *Config) { c.DBName = "" }, true},
		{"missing collection", func(c *Config) { c.Collection = "" }, true},
		{"zero dimension", func(c *Config) { c.EmbedDimension = 0 }, true},
		{"negative batch size", func(c *Config) { c.EmbedBatchSize = -1 }, true},
		{"zero workers", func(c *Config) { c.WorkerCount = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMissingRequired)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
