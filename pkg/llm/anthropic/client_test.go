package anthropic_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerbrain/brainmem-go/pkg/llm"
	"github.com/powerbrain/brainmem-go/pkg/llm/anthropic"
)

func TestGenerateWithMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var req struct {
			Model         string        `json:"model"`
			System        string        `json:"system"`
			Messages      []llm.Message `json:"messages"`
			MaxTokens     int           `json:"max_tokens"`
			StopSequences []string      `json:"stop_sequences"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-3-5-haiku-latest", req.Model)
		assert.Equal(t, "extract\n\nbe terse", req.System)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, llm.RoleUser, req.Messages[0].Role)
		assert.Equal(t, 200, req.MaxTokens)
		assert.Equal(t, []string{"END"}, req.StopSequences)

		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"SEMANTIC|0.8|food|"},{"type":"text","text":"likes tea"}]}`))
	}))
	defer srv.Close()

	client, err := anthropic.NewClient(&anthropic.Config{APIKey: "secret", BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	out, err := client.GenerateWithMessages(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "extract"},
		{Role: llm.RoleSystem, Content: "be terse"},
		{Role: llm.RoleUser, Content: "I like tea"},
	}, llm.WithMaxTokens(200), llm.WithStop("END"))
	require.NoError(t, err)
	assert.Equal(t, "SEMANTIC|0.8|food|likes tea", out)
}

func TestGenerateErrors(t *testing.T) {
	_, err := anthropic.NewClient(&anthropic.Config{})
	assert.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"type":"overloaded_error"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := anthropic.NewClient(&anthropic.Config{APIKey: "secret", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "hi")
	assert.ErrorContains(t, err, "status 503")

	_, err = client.GenerateWithMessages(context.Background(), []llm.Message{{Role: llm.RoleSystem, Content: "only system"}})
	assert.Error(t, err)
}
