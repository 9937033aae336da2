// Package extractor turns a conversation turn into memory drafts using an LLM.
//
// The LLM answers with one memory per line in the form
//
//	TYPE|SCORE|TAGS|CONTENT
//
// and every line is parsed into its own LineResult, so a malformed line is
// reported next to the lines that parsed instead of failing the whole turn.
package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/powerbrain/brainmem-go/pkg/llm"
	"github.com/powerbrain/brainmem-go/pkg/model"
)

// Extractor extracts memory drafts from conversation turns.
//
// Example usage:
//
//	ex := extractor.New(llmProvider)
//	results, err := ex.Extract(ctx, "I'm allergic to peanuts", "Noted!")
//	drafts := extractor.Drafts(results)
type Extractor struct {
	llm      llm.Provider
	prompt   string
	genOpts  []llm.GenerateOption
	logger   zerolog.Logger
	maxLines int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithPrompt replaces the system prompt.
func WithPrompt(prompt string) Option {
	return func(e *Extractor) {
		if strings.TrimSpace(prompt) != "" {
			e.prompt = prompt
		}
	}
}

// WithGenerateOptions sets the options passed to the LLM call.
func WithGenerateOptions(opts ...llm.GenerateOption) Option {
	return func(e *Extractor) {
		e.genOpts = opts
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger.With().Str("component", "extractor").Logger()
	}
}

// WithMaxLines caps how many response lines are parsed. Zero means no cap.
func WithMaxLines(n int) Option {
	return func(e *Extractor) {
		e.maxLines = n
	}
}

// New creates an extractor backed by provider.
func New(provider llm.Provider, opts ...Option) *Extractor {
	e := &Extractor{
		llm:     provider,
		prompt:  defaultPrompt,
		genOpts: []llm.GenerateOption{llm.WithTemperature(0.2)},
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract asks the LLM for the memories worth keeping from one turn.
//
// An LLM failure is returned as ErrCollaboratorUnavailable; it is never
// turned into an empty result. A response of NONE yields no results.
func (e *Extractor) Extract(ctx context.Context, userMessage, assistantMessage string) ([]LineResult, error) {
	if strings.TrimSpace(userMessage) == "" && strings.TrimSpace(assistantMessage) == "" {
		return nil, model.Validationf("conversation turn is empty")
	}
	if e.llm == nil {
		return nil, model.Unavailable("extract", fmt.Errorf("no LLM provider configured"))
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: e.prompt},
		{Role: llm.RoleUser, Content: formatTurn(userMessage, assistantMessage)},
	}

	response, err := e.llm.GenerateWithMessages(ctx, messages, e.genOpts...)
	if err != nil {
		return nil, model.Unavailable("extract", err)
	}

	results := ParseResponse(response)
	if e.maxLines > 0 && len(results) > e.maxLines {
		results = results[:e.maxLines]
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			e.logger.Warn().Int("line", r.Line).Err(r.Err).Msg("skipping malformed memory line")
		}
	}
	e.logger.Info().
		Int("extracted", len(results)-failed).
		Int("malformed", failed).
		Msg("extracted memories from conversation")

	return results, nil
}

func formatTurn(userMessage, assistantMessage string) string {
	var b strings.Builder
	b.WriteString("Conversation:\n")
	b.WriteString("USER: ")
	b.WriteString(strings.TrimSpace(userMessage))
	b.WriteString("\nASSISTANT: ")
	b.WriteString(strings.TrimSpace(assistantMessage))
	b.WriteString("\n\nOutput your extracted memories (or NONE):")
	return b.String()
}

const defaultPrompt = `You are a memory extraction system. Analyze the conversation and extract important facts, preferences, or information about the user.

Extract memories in this EXACT format (one per line, with actual values):

Examples:
SEMANTIC|0.8|food,preference|User loves spicy Indian food
EPISODIC|0.6|conversation,work|User asked about Python programming on Feb 15
SEMANTIC|0.9|health,allergy|User is allergic to peanuts

Format: TYPE|SCORE|TAGS|CONTENT
- TYPE: SEMANTIC (facts/preferences) or EPISODIC (events/interactions)
- SCORE: Number between 0.0 and 1.0 (importance)
- TAGS: Comma-separated words (no spaces after commas)
- CONTENT: The actual memory text

Only extract truly important information that's worth remembering long-term.
If there's nothing important worth remembering, respond ONLY with: NONE`
