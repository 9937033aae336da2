package intelligence

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/powerbrain/brainmem-go/pkg/model"
)

// weightSumTolerance is how far the weight sum may drift from 1.0 before a
// warning is raised.
const weightSumTolerance = 0.01

// Weights are the coefficients of the ranking formula.
type Weights struct {
	Similarity float64 `json:"similarity"`
	Importance float64 `json:"importance"`
	Recency    float64 `json:"recency"`
	Access     float64 `json:"access"`
}

// DefaultWeights returns {0.4, 0.3, 0.2, 0.1}.
func DefaultWeights() Weights {
	return Weights{
		Similarity: 0.4,
		Importance: 0.3,
		Recency:    0.2,
		Access:     0.1,
	}
}

// Sum returns the sum of all weights.
func (w Weights) Sum() float64 {
	return w.Similarity + w.Importance + w.Recency + w.Access
}

// Validate reports whether the weights sum to 1.0 within 0.01. When they do
// not, it returns a human readable warning. Unnormalized weights still rank.
func (w Weights) Validate() (string, bool) {
	sum := w.Sum()
	if math.Abs(sum-1.0) <= weightSumTolerance {
		return "", true
	}
	return fmt.Sprintf("ranking weights sum to %.4f, expected 1.0; final scores are unnormalized", sum), false
}

// Ranker turns raw search results into the final ordering.
//
// The final score of a result is:
//
//	similarity*w_sim + importance*w_imp + decay*w_rec + access_boost*w_acc
//
// where importance and access_boost come from the Scorer and decay from
// TemporalDecay.
//
// Example usage:
//
//	ranker := NewRanker(scorer, decay, DefaultWeights(), logger)
//	ranked, err := ranker.RankMemories(results)
type Ranker struct {
	scorer  *Scorer
	decay   *TemporalDecay
	weights Weights
	logger  zerolog.Logger

	mu       sync.Mutex
	warnings []string
}

// NewRanker creates a ranker. Nil scorer or decay fall back to defaults.
//
// A weight sum outside 1.0±0.01 is logged at warn level and recorded in
// Warnings; it never prevents construction.
func NewRanker(scorer *Scorer, decay *TemporalDecay, weights Weights, logger zerolog.Logger) *Ranker {
	if scorer == nil {
		scorer = NewScorer(DefaultScorerConfig())
	}
	if decay == nil {
		decay = NewTemporalDecay(DefaultDecayConfig())
	}

	r := &Ranker{
		scorer:  scorer,
		decay:   decay,
		weights: weights,
		logger:  logger.With().Str("component", "ranker").Logger(),
	}

	if warning, ok := weights.Validate(); !ok {
		r.warn(warning)
	}
	return r
}

func (r *Ranker) warn(msg string) {
	r.logger.Warn().
		Float64("similarity", r.weights.Similarity).
		Float64("importance", r.weights.Importance).
		Float64("recency", r.weights.Recency).
		Float64("access", r.weights.Access).
		Msg(msg)

	r.mu.Lock()
	r.warnings = append(r.warnings, msg)
	r.mu.Unlock()
}

// Weights returns the configured weights.
func (r *Ranker) Weights() Weights {
	return r.weights
}

// Warnings returns the configuration warnings raised so far.
func (r *Ranker) Warnings() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.warnings...)
}

// Score computes the final score of a single result.
func (r *Ranker) Score(result *model.SearchResult) (float64, error) {
	if result == nil || result.Memory == nil {
		return 0, model.Validationf("search result has no memory")
	}
	m := result.Memory
	if m.Timestamp.IsZero() {
		return 0, model.Validationf("memory %q has no timestamp", m.ID)
	}

	importance, err := r.scorer.CalculateImportance(m)
	if err != nil {
		return 0, err
	}

	return result.SimilarityScore*r.weights.Similarity +
		importance*r.weights.Importance +
		r.decay.CalculateDecay(m)*r.weights.Recency +
		r.scorer.CalculateAccessBoost(m)*r.weights.Access, nil
}

// RankMemories returns copies of results with FinalScore recomputed, stably
// sorted by FinalScore descending. SimilarityScore is left untouched and the
// input slice is not modified.
//
// Returns ErrValidation if any result carries a malformed memory.
func (r *Ranker) RankMemories(results []*model.SearchResult) ([]*model.SearchResult, error) {
	ranked := make([]*model.SearchResult, 0, len(results))
	for i, result := range results {
		score, err := r.Score(result)
		if err != nil {
			return nil, fmt.Errorf("rank result %d: %w", i, err)
		}
		c := result.Clone()
		c.FinalScore = score
		ranked = append(ranked, c)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].FinalScore > ranked[j].FinalScore
	})
	return ranked, nil
}
