package registry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semcode/internal/registry"
	"semcode/internal/testutils"
)

func TestPostgresStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	store := registry.NewPostgresStore(s.DB)
	ctx := context.Background()

	entry := &registry.Entry{
		Name:           "demo",
		Languages:      []string{"go", "python"},
		ChunkCount:     12,
		Collection:     "SemcodeChunk",
		VectorsIndexed: true,
		IndexedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, store.Put(ctx, entry))

	got, err := store.Get(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, entry.Languages, got.Languages)
	assert.Equal(t, 12, got.ChunkCount)
	assert.True(t, got.VectorsIndexed)

	// Re-registering the same name overwrites, not duplicates.
	entry.ChunkCount = 20
	entry.VectorsIndexed = false
	require.NoError(t, store.Put(ctx, entry))

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 20, entries[0].ChunkCount)
	assert.False(t, entries[0].VectorsIndexed)

	require.NoError(t, store.Delete(ctx, "demo"))
	_, err = store.Get(ctx, "demo")
	assert.ErrorIs(t, err, registry.ErrNotFound)

	assert.ErrorIs(t, store.Delete(ctx, "demo"), registry.ErrNotFound)
}
