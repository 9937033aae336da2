package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerbrain/brainmem-go/pkg/core"
	"github.com/powerbrain/brainmem-go/pkg/embedder/hashing"
	"github.com/powerbrain/brainmem-go/pkg/llm"
	"github.com/powerbrain/brainmem-go/pkg/server"
	"github.com/powerbrain/brainmem-go/pkg/storage/chromem"
)

type scriptedLLM struct {
	response string
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return s.response, nil
}

func (s *scriptedLLM) GenerateWithMessages(context.Context, []llm.Message, ...llm.GenerateOption) (string, error) {
	return s.response, nil
}

func (s *scriptedLLM) Close() error { return nil }

func testServer(t *testing.T, opts ...core.ClientOption) *server.Server {
	t.Helper()
	emb := hashing.New(64)
	index, err := chromem.NewClient(&chromem.Config{EmbeddingModelDims: emb.Dimensions()})
	require.NoError(t, err)

	opts = append([]core.ClientOption{core.WithLogger(zerolog.Nop())}, opts...)
	client, err := core.NewClientWithProviders(nil, index, emb, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return server.New(client, "test-version")
}

func do(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestHealth(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "test-version", resp["version"])
	assert.Equal(t, float64(0), resp["memories"])
	assert.Equal(t, false, resp["llm"])
}

func TestStoreAndGet(t *testing.T) {
	srv := testServer(t)

	body := `{"user_id":"u1","content":"User loves spicy Indian food","memory_type":"semantic","tags":["food"]}`
	w := do(t, srv, http.MethodPost, "/v1/memories", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	created := decode(t, w)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "semantic", created["memory_type"])
	assert.NotContains(t, created, "embedding")

	// Storing the same fact again merges instead of inserting.
	w = do(t, srv, http.MethodPost, "/v1/memories", body)
	require.Equal(t, http.StatusCreated, w.Code)
	merged := decode(t, w)
	assert.Equal(t, id, merged["id"])
	assert.Equal(t, float64(1), merged["access_count"])

	w = do(t, srv, http.MethodGet, "/v1/memories/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "User loves spicy Indian food", decode(t, w)["content"])
}

func TestStoreValidation(t *testing.T) {
	srv := testServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"user_id":`},
		{"missing user", `{"content":"User works as a nurse"}`},
		{"unknown type", `{"user_id":"u1","content":"x","memory_type":"procedural"}`},
		{"importance out of range", `{"user_id":"u1","content":"User works as a nurse","importance_score":3}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, http.MethodPost, "/v1/memories", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, decode(t, w), "error")
		})
	}
}

func TestSearch(t *testing.T) {
	srv := testServer(t)

	for _, content := range []string{"User loves spicy Indian food", "User works as a nurse"} {
		w := do(t, srv, http.MethodPost, "/v1/memories", `{"user_id":"u1","content":"`+content+`","memory_type":"semantic"}`)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := do(t, srv, http.MethodPost, "/v1/memories/search",
		`{"user_id":"u1","query":"User loves spicy Indian food","top_k":5,"min_similarity":0.9}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	results, _ := decode(t, w)["results"].([]any)
	require.Len(t, results, 1)
	first := results[0].(map[string]any)
	memory := first["memory"].(map[string]any)
	assert.Equal(t, "User loves spicy Indian food", memory["content"])
	assert.Equal(t, float64(1), memory["access_count"])
	assert.GreaterOrEqual(t, first["similarity_score"].(float64), 0.9)

	w = do(t, srv, http.MethodPost, "/v1/memories/search", `{"user_id":"u1","query":"food","top_k":99}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAndForget(t *testing.T) {
	srv := testServer(t)

	var ids []string
	for _, content := range []string{"User loves spicy Indian food", "User works as a nurse", "User plays the violin"} {
		w := do(t, srv, http.MethodPost, "/v1/memories", `{"user_id":"u1","content":"`+content+`"}`)
		require.Equal(t, http.StatusCreated, w.Code)
		ids = append(ids, decode(t, w)["id"].(string))
	}

	w := do(t, srv, http.MethodGet, "/v1/users/u1/memories?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Len(t, resp["memories"], 2)
	assert.Equal(t, float64(3), resp["total"])

	w = do(t, srv, http.MethodGet, "/v1/users/u1/memories?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, http.MethodDelete, "/v1/memories/"+ids[0], "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, srv, http.MethodGet, "/v1/memories/"+ids[0], "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, srv, http.MethodDelete, "/v1/memories/"+ids[0], "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestContext(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, http.MethodPost, "/v1/memories", `{"user_id":"u1","content":"User loves spicy Indian food","memory_type":"semantic"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, srv, http.MethodGet, "/v1/users/u1/context?q=User+loves+spicy+Indian+food", "")
	require.Equal(t, http.StatusOK, w.Code)
	text := decode(t, w)["context"].(string)
	assert.True(t, strings.HasPrefix(text, "relevant memories about the user:"))
	assert.Contains(t, text, "1. User loves spicy Indian food (type: semantic")

	w = do(t, srv, http.MethodGet, "/v1/users/u1/context", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExtract(t *testing.T) {
	t.Run("without llm", func(t *testing.T) {
		srv := testServer(t)
		w := do(t, srv, http.MethodPost, "/v1/extract", `{"user_id":"u1","user_message":"hi","assistant_message":"hello"}`)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("with llm", func(t *testing.T) {
		llm := &scriptedLLM{response: "SEMANTIC|0.9|health,allergy|User is allergic to peanuts\nnot a memory"}
		srv := testServer(t, core.WithLLM(llm))

		w := do(t, srv, http.MethodPost, "/v1/extract",
			`{"user_id":"u1","user_message":"I'm allergic to peanuts","assistant_message":"Noted."}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := decode(t, w)
		stored := resp["stored"].([]any)
		require.Len(t, stored, 1)
		assert.Equal(t, "User is allergic to peanuts", stored[0].(map[string]any)["content"])

		failures := resp["failures"].([]any)
		require.Len(t, failures, 1)
		assert.Equal(t, float64(2), failures[0].(map[string]any)["line"])
	})
}
