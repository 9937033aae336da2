package core

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/powerbrain/brainmem-go/pkg/idgen"
	"github.com/powerbrain/brainmem-go/pkg/llm"
	"github.com/powerbrain/brainmem-go/pkg/model"
)

// StoreOption is a function type for configuring Store operations.
//
// Options are applied using the functional options pattern, allowing
// flexible configuration without requiring all parameters.
type StoreOption func(*StoreOptions)

// StoreOptions contains configuration options for Store operations.
type StoreOptions struct {
	// UserID identifies the user who owns this memory. Required.
	UserID string

	// MemoryType is episodic unless set.
	MemoryType model.MemoryType

	// Importance overrides the estimated importance when set.
	Importance *float64

	// Tags are labels attached to the memory.
	Tags []string

	// DedupThreshold overrides the configured merge threshold when set.
	DedupThreshold *float64
}

// WithUserID sets the owner of the stored memory.
//
// Example:
//
//	memory, _ := client.Store(ctx, "content", core.WithUserID("user_001"))
func WithUserID(userID string) StoreOption {
	return func(opts *StoreOptions) {
		opts.UserID = userID
	}
}

// WithMemoryType sets the memory type.
//
// Example:
//
//	memory, _ := client.Store(ctx, "User is vegetarian",
//	    core.WithUserID("user_001"),
//	    core.WithMemoryType(model.MemoryTypeSemantic),
//	)
func WithMemoryType(memoryType model.MemoryType) StoreOption {
	return func(opts *StoreOptions) {
		opts.MemoryType = memoryType
	}
}

// WithImportance sets an explicit importance score in [0,1].
func WithImportance(score float64) StoreOption {
	return func(opts *StoreOptions) {
		opts.Importance = &score
	}
}

// WithTags sets the memory tags.
func WithTags(tags ...string) StoreOption {
	return func(opts *StoreOptions) {
		opts.Tags = append(opts.Tags, tags...)
	}
}

// WithDedupThreshold overrides the similarity at which the new content is
// merged into existing memories.
func WithDedupThreshold(threshold float64) StoreOption {
	return func(opts *StoreOptions) {
		opts.DedupThreshold = &threshold
	}
}

func applyStoreOptions(opts []StoreOption) *StoreOptions {
	options := &StoreOptions{
		MemoryType: model.MemoryTypeEpisodic,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

func (o *StoreOptions) metadata() model.StoreMetadata {
	return model.StoreMetadata{
		UserID:          o.UserID,
		MemoryType:      o.MemoryType,
		ImportanceScore: o.Importance,
		Tags:            o.Tags,
	}
}

// ClientOption configures a Client at construction time.
type ClientOption func(*clientOptions)

type clientOptions struct {
	logger       *zerolog.Logger
	clock        func() time.Time
	perUserLock  bool
	strictAccess bool
	ids          idgen.Generator
	llm          llm.Provider
}

// WithLogger replaces the logger built from Config.Logging.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = &logger
	}
}

// WithClock replaces time.Now for timestamps, decay and access statistics.
func WithClock(clock func() time.Time) ClientOption {
	return func(o *clientOptions) {
		o.clock = clock
	}
}

// WithPerUserLocking serializes writes per user inside this process, so two
// concurrent stores of the same fact cannot both insert.
func WithPerUserLocking() ClientOption {
	return func(o *clientOptions) {
		o.perUserLock = true
	}
}

// WithStrictAccessUpdates makes Retrieve return an error when access
// statistics cannot be written. By default failures are only logged.
func WithStrictAccessUpdates() ClientOption {
	return func(o *clientOptions) {
		o.strictAccess = true
	}
}

// WithIDGenerator replaces the generator selected by Config.IDGenerator.
func WithIDGenerator(ids idgen.Generator) ClientOption {
	return func(o *clientOptions) {
		o.ids = ids
	}
}

// WithLLM sets the LLM used for memory extraction, overriding Config.LLM.
func WithLLM(provider llm.Provider) ClientOption {
	return func(o *clientOptions) {
		o.llm = provider
	}
}

func applyClientOptions(opts []ClientOption) *clientOptions {
	options := &clientOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
