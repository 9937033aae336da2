package intelligence

import (
	"github.com/rs/zerolog"

	"github.com/powerbrain/brainmem-go/pkg/embedder"
	"github.com/powerbrain/brainmem-go/pkg/idgen"
	"github.com/powerbrain/brainmem-go/pkg/storage"
)

// Config contains configuration for every intelligence component.
// Each component receives its part explicitly; nothing is read from globals.
type Config struct {
	Scorer  ScorerConfig `json:"scorer"`
	Decay   DecayConfig  `json:"decay"`
	Weights Weights      `json:"weights"`
	Dedup   DedupConfig  `json:"dedup"`
}

// DefaultConfig returns a default configuration for the intelligence layer.
func DefaultConfig() Config {
	return Config{
		Scorer:  DefaultScorerConfig(),
		Decay:   DefaultDecayConfig(),
		Weights: DefaultWeights(),
		Dedup:   DefaultDedupConfig(),
	}
}

// Dependencies are the collaborators of a Manager.
type Dependencies struct {
	Embedder embedder.Provider
	Index    storage.VectorIndex
	IDs      idgen.Generator

	// Logger defaults to a no-op logger when zero.
	Logger zerolog.Logger

	// Clock defaults to time.Now.
	Clock Clock
}

// Manager bundles the scorer, decay, ranker and deduplicator built from a
// single Config so that they share one clock and one logger.
//
// Example usage:
//
//	manager := NewManager(DefaultConfig(), Dependencies{
//	    Embedder: emb,
//	    Index:    index,
//	    IDs:      ids,
//	    Logger:   logger,
//	})
//	memory, err := manager.Dedup.Store(ctx, content, meta)
//	ranked, err := manager.Ranker.RankMemories(results)
type Manager struct {
	Scorer *Scorer
	Decay  *TemporalDecay
	Ranker *Ranker
	Dedup  *Deduplicator

	config Config
}

// NewManager creates the intelligence components from config.
func NewManager(config Config, deps Dependencies) *Manager {
	decayOpts := []DecayOption{}
	dedupOpts := []DedupOption{WithDedupLogger(deps.Logger)}
	if deps.Clock != nil {
		decayOpts = append(decayOpts, WithClock(deps.Clock))
		dedupOpts = append(dedupOpts, WithDedupClock(deps.Clock))
	}

	scorer := NewScorer(config.Scorer)
	decay := NewTemporalDecay(config.Decay, decayOpts...)

	return &Manager{
		Scorer: scorer,
		Decay:  decay,
		Ranker: NewRanker(scorer, decay, config.Weights, deps.Logger),
		Dedup:  NewDeduplicator(deps.Embedder, deps.Index, deps.IDs, config.Dedup, dedupOpts...),
		config: config,
	}
}

// Config returns the configuration the manager was built from.
func (m *Manager) Config() Config {
	return m.config
}
