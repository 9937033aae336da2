package cli_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerbrain/brainmem-go/internal/cli"
)

// writeConfig writes a JSON config using the pure Go SQLite driver in a
// temporary directory.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := map[string]any{
		"vector_store": map[string]any{
			"provider": "sqlite",
			"config": map[string]any{
				"db_path": filepath.Join(dir, "brainmem.db"),
				"driver":  "sqlite",
			},
		},
		"logging": map[string]any{"level": "error", "format": "json"},
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "brainmem dev"))
}

func TestRememberRecallForget(t *testing.T) {
	config := writeConfig(t)

	out, err := run(t, "--config", config, "-u", "u1", "remember", "-t", "semantic", "--tags", "food", "User loves spicy Indian food")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "stored "), out)
	id := strings.TrimSpace(strings.TrimPrefix(out, "stored "))

	out, err = run(t, "--config", config, "-u", "u1", "remember", "-t", "semantic", "User loves spicy Indian food")
	require.NoError(t, err)
	assert.Equal(t, "merged into "+id+"\n", out)

	out, err = run(t, "--config", config, "-u", "u1", "recall", "User loves spicy Indian food")
	require.NoError(t, err)
	assert.Contains(t, out, "1. [")
	assert.Contains(t, out, id)
	assert.Contains(t, out, "#food")

	out, err = run(t, "--config", config, "-u", "u1", "list", "--json")
	require.NoError(t, err)
	var listed struct {
		Memories []map[string]any `json:"memories"`
		Total    int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	assert.Equal(t, 1, listed.Total)
	require.Len(t, listed.Memories, 1)
	assert.NotContains(t, listed.Memories[0], "embedding")

	out, err = run(t, "--config", config, "-u", "u1", "context", "User loves spicy Indian food")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "relevant memories about the user:"), out)

	out, err = run(t, "--config", config, "forget", id)
	require.NoError(t, err)
	assert.Equal(t, "forgot "+id+"\n", out)

	_, err = run(t, "--config", config, "forget", id)
	assert.Error(t, err)

	out, err = run(t, "--config", config, "-u", "u1", "recall", "food")
	require.NoError(t, err)
	assert.Equal(t, "no memories found\n", out)
}

func TestCommandErrors(t *testing.T) {
	config := writeConfig(t)

	_, err := run(t, "--config", config, "remember", "User works as a nurse")
	assert.ErrorContains(t, err, "--user is required")

	_, err = run(t, "--config", config, "-u", "u1", "remember", "-t", "procedural", "User works as a nurse")
	assert.Error(t, err)

	_, err = run(t, "--config", config, "-u", "u1", "extract", "-m", "I'm allergic to peanuts")
	assert.ErrorContains(t, err, "llm not configured")

	_, err = run(t, "--config", filepath.Join(t.TempDir(), "missing.json"), "list")
	assert.Error(t, err)
}
