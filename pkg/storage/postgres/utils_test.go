package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerbrain/brainmem-go/pkg/model"
	"github.com/powerbrain/brainmem-go/pkg/storage"
)

func TestBuildWhereClauseWithOffset(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	where, args := buildWhereClauseWithOffset(&storage.SearchOptions{
		UserID:      "alice",
		MemoryTypes: []model.MemoryType{model.MemoryTypeSemantic},
		Tags:        []string{"food"},
		Since:       &since,
	}, 3)

	assert.Equal(t, "WHERE user_id = $3 AND memory_type = ANY($4) AND tags ?| $5 AND created_at >= $6", where)
	require.Len(t, args, 4)
	assert.Equal(t, "alice", args[0])
	assert.Equal(t, since, args[3])
}

func TestBuildWhereClauseEmpty(t *testing.T) {
	where, args := buildWhereClause(&storage.SearchOptions{})
	assert.Empty(t, where)
	assert.Empty(t, args)
}

func TestVectorStringRoundTrip(t *testing.T) {
	s := vectorToString([]float64{0.5, -1, 0.25})
	assert.Equal(t, "[0.5,-1,0.25]", s)

	v, err := parseVectorString(s)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, -1, 0.25}, v)

	_, err = parseVectorString("[1,abc]")
	assert.Error(t, err)
}
