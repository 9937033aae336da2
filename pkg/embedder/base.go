// Package embedder provides interfaces for text embedding providers.
//
// It defines the Provider interface that all embedding implementations must satisfy,
// enabling text-to-vector conversion for similarity search.
package embedder

import (
	"context"
	"fmt"
	"math"
)

// Provider defines the interface for embedding providers.
//
// All embedding implementations (OpenAI, Ollama, hashing, cached) implement
// this interface. Implementations must be safe for concurrent use.
type Provider interface {
	// Embed converts a text string into a vector embedding.
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch converts multiple text strings into vector embeddings.
	// The result has one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Dimensions returns the dimension of embedding vectors produced by this provider.
	Dimensions() int

	// Close closes the provider and releases resources.
	Close() error
}

// CheckVector rejects empty vectors, non-finite components and, when dims
// is positive, vectors of the wrong length.
func CheckVector(vec []float64, dims int) error {
	if len(vec) == 0 {
		return fmt.Errorf("empty embedding")
	}
	if dims > 0 && len(vec) != dims {
		return fmt.Errorf("embedding has %d dimensions, want %d", len(vec), dims)
	}
	for i, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("embedding component %d is not finite", i)
		}
	}
	return nil
}
