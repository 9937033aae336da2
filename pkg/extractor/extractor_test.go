package extractor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerbrain/brainmem-go/pkg/extractor"
	"github.com/powerbrain/brainmem-go/pkg/llm"
	"github.com/powerbrain/brainmem-go/pkg/model"
)

type fakeLLM struct {
	response string
	err      error
	messages []llm.Message
	options  *llm.GenerateOptions
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return f.GenerateWithMessages(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts...)
}

func (f *fakeLLM) GenerateWithMessages(_ context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	f.messages = messages
	f.options = llm.ApplyGenerateOptions(opts)
	return f.response, f.err
}

func (f *fakeLLM) Close() error { return nil }

func TestParseLine(t *testing.T) {
	draft, err := extractor.ParseLine("SEMANTIC|0.8|food,preference|User loves spicy Indian food")
	require.NoError(t, err)
	assert.Equal(t, model.Draft{
		Content:         "User loves spicy Indian food",
		MemoryType:      model.MemoryTypeSemantic,
		ImportanceScore: 0.8,
		Tags:            []string{"food", "preference"},
	}, draft)

	draft, err = extractor.ParseLine(" episodic | 1.7 | work, , work | Asked about Go | generics ")
	require.NoError(t, err)
	assert.Equal(t, model.MemoryTypeEpisodic, draft.MemoryType)
	assert.Equal(t, 1.0, draft.ImportanceScore)
	assert.Equal(t, []string{"work"}, draft.Tags)
	assert.Equal(t, "Asked about Go | generics", draft.Content)

	draft, err = extractor.ParseLine("SEMANTIC|-2||No tags here")
	require.NoError(t, err)
	assert.Equal(t, 0.0, draft.ImportanceScore)
	assert.Empty(t, draft.Tags)
}

func TestParseLineErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"too few fields", "SEMANTIC|0.8|food"},
		{"unknown type", "PROCEDURAL|0.8|food|Knows how to cook"},
		{"bad score", "SEMANTIC|high|food|Likes tea"},
		{"nan score", "SEMANTIC|NaN|food|Likes tea"},
		{"empty content", "SEMANTIC|0.5|food|   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := extractor.ParseLine(tt.line)
			assert.ErrorIs(t, err, model.ErrValidation)
		})
	}
}

func TestParseResponse(t *testing.T) {
	response := "```\n" +
		"TYPE|SCORE|TAGS|CONTENT\n" +
		"SEMANTIC|0.9|health,allergy|User is allergic to peanuts\n" +
		"\n" +
		"this line is chatter\n" +
		"EPISODIC|0.6|conversation|User asked about Python on Feb 15\n" +
		"```"

	results := extractor.ParseResponse(response)
	require.Len(t, results, 3)

	assert.True(t, results[0].OK())
	assert.Equal(t, 3, results[0].Line)
	assert.False(t, results[1].OK())
	assert.Equal(t, 5, results[1].Line)
	assert.Equal(t, "this line is chatter", results[1].Text)
	assert.True(t, results[2].OK())

	drafts := extractor.Drafts(results)
	require.Len(t, drafts, 2)
	assert.Equal(t, "User is allergic to peanuts", drafts[0].Content)
	assert.Equal(t, "User asked about Python on Feb 15", drafts[1].Content)

	failures := extractor.Failures(results)
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0].Err, model.ErrValidation)
}

func TestParseResponseNone(t *testing.T) {
	assert.Empty(t, extractor.ParseResponse("NONE"))
	assert.Empty(t, extractor.ParseResponse("  none \n\n"))
	assert.Empty(t, extractor.ParseResponse(""))
}

func TestExtract(t *testing.T) {
	fake := &fakeLLM{response: "SEMANTIC|0.9|health|User is allergic to peanuts\nbroken"}
	ex := extractor.New(fake)

	results, err := ex.Extract(context.Background(), "I'm allergic to peanuts", "I'll remember that.")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Len(t, extractor.Drafts(results), 1)

	require.Len(t, fake.messages, 2)
	assert.Equal(t, llm.RoleSystem, fake.messages[0].Role)
	assert.Contains(t, fake.messages[0].Content, "TYPE|SCORE|TAGS|CONTENT")
	assert.Contains(t, fake.messages[1].Content, "USER: I'm allergic to peanuts")
	assert.Contains(t, fake.messages[1].Content, "ASSISTANT: I'll remember that.")
	assert.Equal(t, 0.2, fake.options.Temperature)
}

func TestExtractOptions(t *testing.T) {
	fake := &fakeLLM{response: "SEMANTIC|0.9|a|one\nSEMANTIC|0.9|b|two\nSEMANTIC|0.9|c|three"}
	ex := extractor.New(fake,
		extractor.WithPrompt("custom prompt"),
		extractor.WithMaxLines(2),
		extractor.WithGenerateOptions(llm.WithTemperature(0), llm.WithMaxTokens(64)),
	)

	results, err := ex.Extract(context.Background(), "hi", "")
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, "custom prompt", fake.messages[0].Content)
	assert.Equal(t, 0.0, fake.options.Temperature)
	assert.Equal(t, 64, fake.options.MaxTokens)
}

func TestExtractErrors(t *testing.T) {
	boom := errors.New("connection refused")
	ex := extractor.New(&fakeLLM{err: boom})

	_, err := ex.Extract(context.Background(), "hi", "hello")
	assert.ErrorIs(t, err, model.ErrCollaboratorUnavailable)
	assert.ErrorIs(t, err, boom)

	_, err = ex.Extract(context.Background(), " ", "")
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = extractor.New(nil).Extract(context.Background(), "hi", "hello")
	assert.ErrorIs(t, err, model.ErrCollaboratorUnavailable)
}
