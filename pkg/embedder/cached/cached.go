// Package cached wraps an embedder with an in-process ristretto cache.
//
// Storing and retrieving memories often embeds the same text repeatedly
// (queries, re-stored facts). Cached vectors are returned as copies so
// callers may modify them freely.
package cached

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/powerbrain/brainmem-go/pkg/embedder"
)

// Config contains cache sizing.
type Config struct {
	// MaxEntries is the approximate number of vectors kept (default 10000).
	MaxEntries int64

	// Namespace is prefixed to cache keys, e.g. the embedding model name.
	Namespace string
}

// Provider decorates an embedder.Provider with a vector cache.
type Provider struct {
	inner     embedder.Provider
	cache     *ristretto.Cache
	namespace string
}

// New wraps inner with a cache.
func New(inner embedder.Provider, cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 10000
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}

	return &Provider{
		inner:     inner,
		cache:     cache,
		namespace: cfg.Namespace,
	}, nil
}

func (p *Provider) key(text string) string {
	return p.namespace + "\x00" + text
}

func (p *Provider) lookup(text string) ([]float64, bool) {
	v, ok := p.cache.Get(p.key(text))
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float64)
	if !ok {
		return nil, false
	}
	return clone(vec), true
}

func (p *Provider) store(text string, vec []float64) {
	// Each entry costs one unit so MaxCost bounds the entry count.
	p.cache.Set(p.key(text), clone(vec), 1)
}

// Embed returns the cached vector for text or computes and caches it.
func (p *Provider) Embed(ctx context.Context, text string) ([]float64, error) {
	if vec, ok := p.lookup(text); ok {
		return vec, nil
	}
	vec, err := p.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	p.store(text, vec)
	return vec, nil
}

// EmbedBatch embeds only the texts missing from the cache, in one inner call.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		if vec, ok := p.lookup(text); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := p.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("embedding generation failed: got %d vectors for %d texts", len(vectors), len(missing))
	}
	for j, vec := range vectors {
		out[missingIdx[j]] = vec
		p.store(missing[j], vec)
	}
	return out, nil
}

// Dimensions returns the inner provider's dimensions.
func (p *Provider) Dimensions() int {
	return p.inner.Dimensions()
}

// Wait blocks until buffered cache writes are applied.
func (p *Provider) Wait() {
	p.cache.Wait()
}

// Hits returns the number of cache hits so far.
func (p *Provider) Hits() uint64 {
	return p.cache.Metrics.Hits()
}

// Close closes the cache and the inner provider.
func (p *Provider) Close() error {
	p.cache.Close()
	return p.inner.Close()
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
