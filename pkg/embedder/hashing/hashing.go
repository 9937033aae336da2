// Package hashing provides an offline bag-of-words embedder.
//
// Each lowercase word is hashed into one of a fixed number of buckets with a
// hashed sign, and the resulting vector is L2-normalized. Texts sharing words
// get similar vectors, which is enough for local development and tests
// without an embedding service.
package hashing

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultDimensions is used when New is given a non-positive size.
const DefaultDimensions = 256

// Embedder is a deterministic feature-hashing embedder.
type Embedder struct {
	dims int
}

// New creates a hashing embedder producing vectors of dims components.
func New(dims int) *Embedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Embedder{dims: dims}
}

// Embed hashes the words of text into a normalized vector. Text without any
// word maps to a fixed unit vector so that the result is never all zeros.
func (e *Embedder) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, e.dims)

	for _, tok := range tokenize(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()

		bucket := int(sum % uint64(e.dims))
		if sum&(1<<63) != 0 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}

	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

// EmbedBatch embeds each text in order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the embedding size.
func (e *Embedder) Dimensions() int {
	return e.dims
}

// Close is a no-op.
func (e *Embedder) Close() error {
	return nil
}

// tokenize splits text into lowercase words of letters and digits.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
