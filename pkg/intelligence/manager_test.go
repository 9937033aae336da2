package intelligence_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerbrain/brainmem-go/pkg/intelligence"
	"github.com/powerbrain/brainmem-go/pkg/model"
)

func TestNewManager_WiresComponents(t *testing.T) {
	index := newMemIndex()
	manager := intelligence.NewManager(intelligence.DefaultConfig(), intelligence.Dependencies{
		Embedder: foodOracle(),
		Index:    index,
		IDs:      &seqIDs{},
		Logger:   zerolog.Nop(),
		Clock:    fixedClock(now),
	})

	assert.Equal(t, 0.85, manager.Dedup.Config().Threshold)
	assert.Equal(t, intelligence.DefaultWeights(), manager.Ranker.Weights())
	assert.Empty(t, manager.Ranker.Warnings())

	memory, err := manager.Dedup.Store(context.Background(), spicy, semanticMeta("alice"))
	require.NoError(t, err)
	assert.Equal(t, now, memory.Timestamp)
	assert.Equal(t, 1.0, manager.Decay.CalculateDecay(memory))

	ranked, err := manager.Ranker.RankMemories([]*model.SearchResult{hit(memory.ID, 1, memory)})
	require.NoError(t, err)
	require.Len(t, ranked, 1)
}

func TestDefaultConfig(t *testing.T) {
	cfg := intelligence.DefaultConfig()

	assert.Equal(t, 0.01, cfg.Decay.DecayRate)
	assert.Equal(t, 1.2, cfg.Scorer.SemanticWeight)
	assert.Equal(t, 5, cfg.Dedup.CandidateLimit)
	assert.Equal(t, 0.05, cfg.Dedup.ImportanceStep)
	_, ok := cfg.Weights.Validate()
	assert.True(t, ok)
}
