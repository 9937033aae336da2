package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerbrain/brainmem-go/pkg/model"
)

func validMemory() *model.Memory {
	return &model.Memory{
		ID:              "1",
		Content:         "User loves spicy Indian food",
		Timestamp:       time.Now().UTC(),
		MemoryType:      model.MemoryTypeSemantic,
		ImportanceScore: 0.8,
		UserID:          "user_001",
		Tags:            []string{"food"},
	}
}

func TestParseMemoryType(t *testing.T) {
	mt, err := model.ParseMemoryType(" SEMANTIC ")
	require.NoError(t, err)
	assert.Equal(t, model.MemoryTypeSemantic, mt)

	mt, err = model.ParseMemoryType("episodic")
	require.NoError(t, err)
	assert.Equal(t, model.MemoryTypeEpisodic, mt)

	_, err = model.ParseMemoryType("procedural")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestMemoryValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *model.Memory)
	}{
		{"empty content", func(m *model.Memory) { m.Content = "   " }},
		{"unknown type", func(m *model.Memory) { m.MemoryType = "working" }},
		{"importance above one", func(m *model.Memory) { m.ImportanceScore = 1.01 }},
		{"negative importance", func(m *model.Memory) { m.ImportanceScore = -0.1 }},
		{"negative access count", func(m *model.Memory) { m.AccessCount = -1 }},
		{"missing user", func(m *model.Memory) { m.UserID = "" }},
	}

	assert.NoError(t, validMemory().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validMemory()
			tt.mutate(m)
			assert.ErrorIs(t, m.Validate(), model.ErrValidation)
		})
	}
}

func TestMemoryCloneIsDeep(t *testing.T) {
	m := validMemory()
	now := time.Now()
	m.LastAccessed = &now
	m.Embedding = []float64{1, 2}

	c := m.Clone()
	c.Tags[0] = "changed"
	c.Embedding[0] = 9
	*c.LastAccessed = now.Add(time.Hour)

	assert.Equal(t, "food", m.Tags[0])
	assert.Equal(t, 1.0, m.Embedding[0])
	assert.True(t, m.LastAccessed.Equal(now))
}

func TestMergeTags(t *testing.T) {
	tags := model.MergeTags([]string{"food", "diet"}, []string{"diet", " health ", ""}, nil)
	assert.Equal(t, []string{"food", "diet", "health"}, tags)
	assert.Empty(t, model.MergeTags())
}

func TestQueryValidate(t *testing.T) {
	q := model.NewQuery("user_001", "what food do I like?")
	require.NoError(t, q.Validate())
	assert.Equal(t, model.DefaultTopK, q.TopK)

	bad := q
	bad.TopK = 51
	assert.ErrorIs(t, bad.Validate(), model.ErrValidation)

	bad = q
	bad.TopK = 0
	assert.ErrorIs(t, bad.Validate(), model.ErrValidation)

	bad = q
	bad.MinSimilarity = 1.5
	assert.ErrorIs(t, bad.Validate(), model.ErrValidation)

	bad = q
	bad.UserID = ""
	assert.ErrorIs(t, bad.Validate(), model.ErrValidation)
	bad.AllowCrossUser = true
	assert.NoError(t, bad.Validate())
}

func TestQuerySince(t *testing.T) {
	q := model.NewQuery("u", "x")
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	assert.Nil(t, q.Since(now))

	days := 7
	q.TimeWindowDays = &days
	since := q.Since(now)
	require.NotNil(t, since)
	assert.Equal(t, time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC), *since)
}

func TestDraftToMemory(t *testing.T) {
	d := model.Draft{
		Content:         "User is allergic to peanuts",
		MemoryType:      model.MemoryTypeSemantic,
		ImportanceScore: 0.9,
		Tags:            []string{"health", "allergy", "health"},
	}
	require.NoError(t, d.Validate())

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.FixedZone("X", 3600))
	m := d.ToMemory("user_001", "42", now)
	assert.Equal(t, "42", m.ID)
	assert.Equal(t, "user_001", m.UserID)
	assert.Equal(t, 0, m.AccessCount)
	assert.Nil(t, m.LastAccessed)
	assert.Nil(t, m.Embedding)
	assert.Equal(t, time.UTC, m.Timestamp.Location())
	assert.Equal(t, []string{"health", "allergy"}, m.Tags)
}

func TestUnavailableKeepsKinds(t *testing.T) {
	base := errors.New("connection refused")
	err := model.Unavailable("Search", base)
	assert.ErrorIs(t, err, model.ErrCollaboratorUnavailable)
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "Search")

	notFound := model.Unavailable("Get", model.ErrNotFound)
	assert.ErrorIs(t, notFound, model.ErrNotFound)
	assert.NotErrorIs(t, notFound, model.ErrCollaboratorUnavailable)

	assert.Nil(t, model.Unavailable("noop", nil))
}
