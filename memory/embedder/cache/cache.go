// Package cache memoizes embeddings in a ristretto cache so repeated texts
// (a goal is embedded once for recall and again when its task is recorded)
// skip the underlying embedder.
package cache

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/becomeliminal/nim-pipeline/memory"
)

// Config sizes the cache.
type Config struct {
	// MaxEntries bounds the number of cached embeddings. Default: 10000.
	MaxEntries int64
}

// CachedEmbedder wraps another embedder.
type CachedEmbedder struct {
	next  memory.Embedder
	cache *ristretto.Cache
}

// New wraps next with a cache.
func New(next memory.Embedder, cfg Config) (*CachedEmbedder, error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.MaxEntries * 10,
		MaxCost:     cfg.MaxEntries,
		BufferItems: 64,
		// Entries are counted, not sized.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &CachedEmbedder{next: next, cache: c}, nil
}

// Embed returns the cached vector for text, computing it on a miss.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return clone(vec), nil
		}
	}

	vec, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, clone(vec), 1)
	return vec, nil
}

// Dimensions returns the wrapped embedder's size.
func (e *CachedEmbedder) Dimensions() int {
	return e.next.Dimensions()
}

// Wait blocks until pending cache writes are visible. Sets are applied
// asynchronously.
func (e *CachedEmbedder) Wait() {
	e.cache.Wait()
}

// Close stops the cache's background goroutines.
func (e *CachedEmbedder) Close() {
	e.cache.Close()
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
