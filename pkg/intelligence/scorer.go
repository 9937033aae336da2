// Package intelligence provides the decision logic of the memory engine:
// importance scoring, temporal decay, re-ranking of search results and
// near-duplicate merging on the write path.
package intelligence

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/powerbrain/brainmem-go/pkg/model"
)

// MaxAccessBoost caps the access-frequency multiplier.
const MaxAccessBoost = 2.0

// ScorerConfig contains the weights used by Scorer.
type ScorerConfig struct {
	// SemanticWeight multiplies the importance of semantic memories.
	SemanticWeight float64 `json:"semantic_weight"`

	// EpisodicWeight multiplies the importance of episodic memories.
	EpisodicWeight float64 `json:"episodic_weight"`

	// MinContentLength is the length (in characters) below which content is
	// considered a fragment and down-weighted.
	MinContentLength int `json:"min_content_length"`
}

// DefaultScorerConfig returns the default scorer weights.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		SemanticWeight:   1.2,
		EpisodicWeight:   1.0,
		MinContentLength: 10,
	}
}

// Scorer derives importance-related signals from a memory.
//
// Durable facts (semantic) are weighted above events (episodic), and very
// short fragments are down-weighted without being discarded. Scorer is
// stateless and safe for concurrent use.
//
// Example usage:
//
//	scorer := NewScorer(DefaultScorerConfig())
//	importance, err := scorer.CalculateImportance(memory)
//	boost := scorer.CalculateAccessBoost(memory)
type Scorer struct {
	config ScorerConfig
}

// NewScorer creates a scorer. A non-positive MinContentLength falls back to
// the default of 10.
func NewScorer(config ScorerConfig) *Scorer {
	if config.MinContentLength <= 0 {
		config.MinContentLength = DefaultScorerConfig().MinContentLength
	}
	return &Scorer{config: config}
}

// CalculateImportance returns the effective importance of a memory in [0,1].
//
// The formula is:
//
//	clamp(importance_score * type_multiplier * length_factor, 0, 1)
//
// where length_factor is 1 for content of at least MinContentLength
// characters (after trimming) and max(0.5, 0.5 + len/(2*MinContentLength))
// otherwise.
//
// Returns ErrValidation for a nil memory or an unknown memory type.
func (s *Scorer) CalculateImportance(m *model.Memory) (float64, error) {
	if m == nil {
		return 0, model.Validationf("memory is nil")
	}

	var typeMultiplier float64
	switch m.MemoryType {
	case model.MemoryTypeSemantic:
		typeMultiplier = s.config.SemanticWeight
	case model.MemoryTypeEpisodic:
		typeMultiplier = s.config.EpisodicWeight
	default:
		return 0, model.Validationf("memory %q has unknown memory type %q", m.ID, m.MemoryType)
	}

	length := utf8.RuneCountInString(strings.TrimSpace(m.Content))
	lengthFactor := 1.0
	if length < s.config.MinContentLength {
		lengthFactor = math.Max(0.5, 0.5+float64(length)/float64(2*s.config.MinContentLength))
	}

	return clamp(m.ImportanceScore*typeMultiplier*lengthFactor, 0, 1), nil
}

// CalculateAccessBoost returns 1 + log1p(access_count)*0.1, capped at 2.0.
//
// Diminishing returns keep frequently accessed memories from outweighing
// content quality. A negative access count is treated as zero.
func (s *Scorer) CalculateAccessBoost(m *model.Memory) float64 {
	return accessBoost(m)
}

func accessBoost(m *model.Memory) float64 {
	count := 0
	if m != nil && m.AccessCount > 0 {
		count = m.AccessCount
	}
	return math.Min(1.0+math.Log1p(float64(count))*0.1, MaxAccessBoost)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
