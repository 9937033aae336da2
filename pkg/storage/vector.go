package storage

import (
	"math"
	"sort"

	"github.com/powerbrain/brainmem-go/pkg/model"
)

// CosineSimilarity calculates the cosine similarity between two vectors.
//
// Returns a value in [-1, 1], or 0 if the vectors have different dimensions
// or zero norm.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SortAndLimit sorts results by similarity (descending, stable) and keeps
// at most limit entries. A non-positive limit keeps everything.
func SortAndLimit(results []*model.SearchResult, limit int) []*model.SearchResult {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].SimilarityScore > results[j].SimilarityScore
	})
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}

// NewHit builds an unranked search result for m.
func NewHit(m *model.Memory, score float64) *model.SearchResult {
	return &model.SearchResult{
		Memory:          m,
		SimilarityScore: score,
		FinalScore:      score,
	}
}
