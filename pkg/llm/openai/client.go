// Package openai provides an llm.Provider backed by the OpenAI Chat
// Completions API. Any OpenAI-compatible server (DeepSeek, DashScope,
// vLLM) works by setting BaseURL.
package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/powerbrain/brainmem-go/pkg/llm"
)

const defaultModel = "gpt-4o-mini"

// Client is an OpenAI LLM client.
type Client struct {
	client       *openai.Client
	model        string
	systemPrompt string
}

// Config is the configuration for OpenAI LLM.
// APIKey: API key (required unless BaseURL points at a keyless server)
// Model: model name, defaults to "gpt-4o-mini"
// BaseURL: API base URL, defaults to OpenAI official address
// SystemPrompt: prepended when a request carries no system message
type Config struct {
	APIKey       string
	Model        string
	BaseURL      string
	SystemPrompt string
}

// NewClient creates a new OpenAI LLM client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.New("API key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	return &Client{
		client:       openai.NewClientWithConfig(config),
		model:        model,
		systemPrompt: cfg.SystemPrompt,
	}, nil
}

// Model returns the chat model name sent with every request.
func (c *Client) Model() string {
	return c.model
}

// Generate sends prompt as a single user message.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return c.GenerateWithMessages(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts...)
}

// GenerateWithMessages sends a conversation and returns the first choice,
// trimmed of surrounding whitespace. A truncated or empty answer is an error
// so a caller parsing line-oriented output never sees half a line.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	chatMessages, err := c.chatMessages(messages)
	if err != nil {
		return "", err
	}

	options := llm.ApplyGenerateOptions(opts)
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    chatMessages,
		Temperature: temperature(options.Temperature),
		MaxTokens:   options.MaxTokens,
		TopP:        float32(options.TopP),
		Stop:        options.Stop,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("chat completion %s (status %d): %w", c.model, apiErr.HTTPStatusCode, err)
		}
		return "", fmt.Errorf("chat completion %s: %w", c.model, err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("llm generation failed: no choices returned from OpenAI API")
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonLength {
		return "", fmt.Errorf("llm generation failed: response truncated at %d max tokens", options.MaxTokens)
	}

	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		return "", errors.New("llm generation failed: empty response")
	}
	return content, nil
}

func (c *Client) chatMessages(messages []llm.Message) ([]openai.ChatCompletionMessage, error) {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)

	hasSystem := false
	for _, msg := range messages {
		var role string
		switch msg.Role {
		case llm.RoleSystem:
			role = openai.ChatMessageRoleSystem
			hasSystem = true
		case llm.RoleUser:
			role = openai.ChatMessageRoleUser
		case llm.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		default:
			return nil, fmt.Errorf("unsupported message role %q", msg.Role)
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}

	if !hasSystem && c.systemPrompt != "" {
		out = append([]openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleSystem,
			Content: c.systemPrompt,
		}}, out...)
	}
	return out, nil
}

// temperature keeps an explicit zero on the wire; the SDK omits a zero
// float32 and the server would then fall back to its own default of 1.
func temperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

// Close is a no-op; the SDK client holds no resources.
func (c *Client) Close() error {
	return nil
}
