package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerbrain/brainmem-go/pkg/llm"
	llmOpenAI "github.com/powerbrain/brainmem-go/pkg/llm/openai"
)

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req struct {
			Model    string        `json:"model"`
			Messages []llm.Message `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "ping", req.Messages[0].Content)

		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"pong"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	client, err := llmOpenAI.NewClient(&llmOpenAI.Config{APIKey: "k", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", out)
}

func TestGenerateNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	client, err := llmOpenAI.NewClient(&llmOpenAI.Config{APIKey: "k", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "ping")
	assert.Error(t, err)
}

func chatServer(t *testing.T, reply string, inspect func(req map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if inspect != nil {
			inspect(req)
		}
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const okReply = `{"id":"c1","object":"chat.completion","choices":[{"index":0,
	"message":{"role":"assistant","content":"  SEMANTIC|0.9|food|User likes curry \n"},"finish_reason":"stop"}]}`

func TestGenerateZeroTemperatureReachesServer(t *testing.T) {
	srv := chatServer(t, okReply, func(req map[string]any) {
		temp, ok := req["temperature"].(float64)
		require.True(t, ok, "temperature must be sent")
		assert.Greater(t, temp, 0.0)
		assert.Less(t, temp, 1e-30)
		assert.Equal(t, float64(64), req["max_tokens"])
	})

	client, err := llmOpenAI.NewClient(&llmOpenAI.Config{APIKey: "k", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), "extract", llm.WithTemperature(0), llm.WithMaxTokens(64))
	require.NoError(t, err)
	assert.Equal(t, "SEMANTIC|0.9|food|User likes curry", out)
}

func TestGenerateSystemPrompt(t *testing.T) {
	var roles []string
	srv := chatServer(t, okReply, func(req map[string]any) {
		roles = roles[:0]
		for _, m := range req["messages"].([]any) {
			roles = append(roles, m.(map[string]any)["role"].(string))
		}
	})

	client, err := llmOpenAI.NewClient(&llmOpenAI.Config{
		APIKey:       "k",
		BaseURL:      srv.URL + "/v1",
		Model:        "deepseek-chat",
		SystemPrompt: "You extract memories.",
	})
	require.NoError(t, err)
	assert.Equal(t, "deepseek-chat", client.Model())

	_, err = client.Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []string{"system", "user"}, roles)

	_, err = client.GenerateWithMessages(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "custom"},
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"system", "user", "assistant"}, roles)

	_, err = client.GenerateWithMessages(context.Background(), []llm.Message{{Role: "tool", Content: "x"}})
	assert.ErrorContains(t, err, "unsupported message role")
}

func TestGenerateRejectsUnusableAnswers(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{
			name:  "truncated",
			reply: `{"choices":[{"index":0,"message":{"role":"assistant","content":"SEMANTIC|0.9|fo"},"finish_reason":"length"}]}`,
			want:  "truncated",
		},
		{
			name:  "blank",
			reply: `{"choices":[{"index":0,"message":{"role":"assistant","content":"  \n"},"finish_reason":"stop"}]}`,
			want:  "empty response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := chatServer(t, tt.reply, nil)
			client, err := llmOpenAI.NewClient(&llmOpenAI.Config{APIKey: "k", BaseURL: srv.URL + "/v1"})
			require.NoError(t, err)

			_, err = client.Generate(context.Background(), "ping")
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestGenerateWrapsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	client, err := llmOpenAI.NewClient(&llmOpenAI.Config{APIKey: "k", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "ping")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
	assert.Contains(t, err.Error(), "slow down")
}
