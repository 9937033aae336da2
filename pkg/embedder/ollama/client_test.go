package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerbrain/brainmem-go/pkg/embedder/ollama"
)

func TestEmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)

		out := make([][]float64, len(req.Input))
		for i := range req.Input {
			out[i] = []float64{float64(i), 1}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"embeddings": out})
	}))
	defer srv.Close()

	client, err := ollama.NewClient(&ollama.Config{BaseURL: srv.URL + "/", Dimensions: 2})
	require.NoError(t, err)

	vectors, err := client.EmbedBatch(context.Background(), []string{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 1}, {1, 1}}, vectors)

	vec, err := client.Embed(context.Background(), "z")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, vec)
}

func TestEmbedErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := ollama.NewClient(&ollama.Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
