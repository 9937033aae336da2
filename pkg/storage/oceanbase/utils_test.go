package oceanbase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerbrain/brainmem-go/pkg/model"
	"github.com/powerbrain/brainmem-go/pkg/storage"
)

func TestBuildWhereClause(t *testing.T) {
	where, args := buildWhereClause(&storage.SearchOptions{
		UserID:      "bob",
		MemoryTypes: []model.MemoryType{model.MemoryTypeEpisodic, model.MemoryTypeSemantic},
		Tags:        []string{"ignored-here"},
	})
	assert.Equal(t, "WHERE user_id = ? AND memory_type IN (?, ?)", where)
	assert.Equal(t, []interface{}{"bob", "episodic", "semantic"}, args)
}

func TestStringToVector(t *testing.T) {
	v, err := stringToVector("[0.5, 0.25,1]")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.25, 1}, v)
	assert.Equal(t, "[0.5,0.25,1]", vectorToString(v))
}

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN(&Config{Host: "db", User: "root", Password: "pw", DBName: "brain"})
	assert.True(t, strings.HasPrefix(dsn, "root:pw@tcp(db:2881)/brain?"))
	assert.Contains(t, dsn, "parseTime=true")
}

func TestGenerateHash(t *testing.T) {
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", generateHash("hello"))
}
