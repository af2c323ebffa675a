package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedProvider memoizes embeddings by content hash so re-ingesting an
// unchanged file or repeating a popular question skips the backend call.
type CachedProvider struct {
	inner Provider
	cache *lru.Cache[string, []float32]
}

func NewCachedProvider(inner Provider, size int) (*CachedProvider, error) {
	if size <= 0 {
		size = 10000
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachedProvider{inner: inner, cache: cache}, nil
}

func (c *CachedProvider) Dimension() int { return c.inner.Dimension() }

func (c *CachedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := hashKey(text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

func (c *CachedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var misses []string
	var missIdx []int

	for i, text := range texts {
		if vec, ok := c.cache.Get(hashKey(text)); ok {
			out[i] = vec
		} else {
			misses = append(misses, text)
			missIdx = append(missIdx, i)
		}
	}

	if len(misses) > 0 {
		vecs, err := c.inner.EmbedBatch(ctx, misses)
		if err != nil {
			return nil, err
		}
		for j, vec := range vecs {
			out[missIdx[j]] = vec
			c.cache.Add(hashKey(misses[j]), vec)
		}
	}
	return out, nil
}

func hashKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
