package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/powerbrain/brainmem-go/pkg/embedder"
	"github.com/powerbrain/brainmem-go/pkg/extractor"
	"github.com/powerbrain/brainmem-go/pkg/idgen"
	"github.com/powerbrain/brainmem-go/pkg/intelligence"
	"github.com/powerbrain/brainmem-go/pkg/llm"
	"github.com/powerbrain/brainmem-go/pkg/logging"
	"github.com/powerbrain/brainmem-go/pkg/model"
	"github.com/powerbrain/brainmem-go/pkg/storage"
)

// DefaultContextMemories is the number of memories BuildContext includes when
// the caller passes zero.
const DefaultContextMemories = 10

// Client is the main brainmem client for memory management.
//
// It provides a complete interface for storing, retrieving, and managing memories
// with support for:
//   - Deduplicating writes (near-duplicates are merged, not appended)
//   - Ranked retrieval (similarity, importance, recency and access frequency)
//   - Access statistics on retrieval
//   - LLM extraction of memories from conversation turns
//
// The client is safe for concurrent use.
//
// Example usage:
//
//	config, _ := core.LoadConfigFromEnv()
//	client, _ := core.NewClient(config)
//	defer client.Close()
//
//	memory, _ := client.Store(ctx, "User loves spicy Indian food",
//	    core.WithUserID("user_001"),
//	    core.WithMemoryType(model.MemoryTypeSemantic),
//	)
type Client struct {
	// config contains the client configuration.
	config *Config

	// index is the vector index for memory persistence.
	index storage.VectorIndex

	// embedder is the embedding provider for vector generation.
	embedder embedder.Provider

	// llm is the optional LLM provider used for extraction.
	llm llm.Provider

	// extractor is nil when no LLM is configured.
	extractor *extractor.Extractor

	// engine holds the scorer, decay, ranker and deduplicator.
	engine *intelligence.Manager

	logger       zerolog.Logger
	now          func() time.Time
	strictAccess bool

	// userLocks serializes writes per user when per-user locking is enabled.
	userLocks *userLocks
}

// NewClient creates a new brainmem client.
//
// The client is initialized with:
//   - Vector index (SQLite, chromem, PostgreSQL or OceanBase)
//   - Embedding provider (hashing, OpenAI or Ollama), optionally cached
//   - LLM provider (OpenAI or Ollama), only when configured
//   - Intelligence components built from cfg.Intelligence
//
// A nil cfg uses DefaultConfig. Resources opened before a failure are closed.
//
// Example:
//
//	config := core.DefaultConfig()
//	config.VectorStore.Config["db_path"] = "./memories.db"
//	client, err := core.NewClient(config)
func NewClient(cfg *Config, opts ...ClientOption) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := applyClientOptions(opts)

	logger, err := clientLogger(cfg, options)
	if err != nil {
		return nil, err
	}

	emb, err := initEmbedder(cfg)
	if err != nil {
		return nil, NewMemoryError("NewClient", err)
	}

	index, err := initStorage(cfg.VectorStore, emb.Dimensions())
	if err != nil {
		_ = emb.Close()
		return nil, NewMemoryError("NewClient", err)
	}

	if options.llm == nil && cfg.LLM.Provider != "" {
		provider, err := initLLM(cfg.LLM)
		if err != nil {
			_ = index.Close()
			_ = emb.Close()
			return nil, NewMemoryError("NewClient", err)
		}
		options.llm = provider
	}

	client, err := newClient(cfg, index, emb, logger, options)
	if err != nil {
		_ = index.Close()
		_ = emb.Close()
		if options.llm != nil {
			_ = options.llm.Close()
		}
		return nil, err
	}

	client.logger.Info().
		Str("embedder", cfg.Embedder.Provider).
		Str("vector_store", cfg.VectorStore.Provider).
		Bool("llm", client.llm != nil).
		Msg("brainmem client ready")
	return client, nil
}

// NewClientWithProviders creates a client around an existing index and
// embedder. Only the Intelligence, IDGenerator and Logging sections of cfg
// are used; a nil cfg uses DefaultConfig. The client takes ownership of both
// providers and closes them in Close.
func NewClientWithProviders(cfg *Config, index storage.VectorIndex, emb embedder.Provider, opts ...ClientOption) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if index == nil || emb == nil {
		return nil, NewMemoryError("NewClientWithProviders", invalidConfig("index and embedder are required"))
	}
	if err := cfg.Intelligence.Validate(); err != nil {
		return nil, NewMemoryError("NewClientWithProviders", err)
	}
	options := applyClientOptions(opts)

	logger, err := clientLogger(cfg, options)
	if err != nil {
		return nil, err
	}
	return newClient(cfg, index, emb, logger, options)
}

func newClient(cfg *Config, index storage.VectorIndex, emb embedder.Provider, logger zerolog.Logger, options *clientOptions) (*Client, error) {
	ids := options.ids
	if ids == nil {
		var err error
		ids, err = idgen.New(idgen.Kind(cfg.IDGenerator.Kind), cfg.IDGenerator.Node)
		if err != nil {
			return nil, NewMemoryError("NewClient", invalidConfig("%v", err))
		}
	}

	now := options.clock
	if now == nil {
		now = time.Now
	}

	engine := intelligence.NewManager(cfg.Intelligence.ToIntelligence(), intelligence.Dependencies{
		Embedder: emb,
		Index:    index,
		IDs:      ids,
		Logger:   logger,
		Clock:    now,
	})

	client := &Client{
		config:       cfg,
		index:        index,
		embedder:     emb,
		llm:          options.llm,
		engine:       engine,
		logger:       logging.Component(logger, "client"),
		now:          now,
		strictAccess: options.strictAccess,
	}
	if options.llm != nil {
		client.extractor = extractor.New(options.llm, extractor.WithLogger(logger))
	}
	if options.perUserLock {
		client.userLocks = newUserLocks()
	}
	return client, nil
}

func clientLogger(cfg *Config, options *clientOptions) (zerolog.Logger, error) {
	if options.logger != nil {
		return *options.logger, nil
	}
	logger, err := logging.New(&logging.Config{
		Level:  cfg.Logging.Level,
		Format: logging.Format(cfg.Logging.Format),
	})
	if err != nil {
		return zerolog.Nop(), NewMemoryError("NewClient", invalidConfig("%v", err))
	}
	return logger, nil
}

// Config returns the client configuration.
func (c *Client) Config() *Config {
	return c.config
}

// Intelligence returns the scorer, decay, ranker and deduplicator used by
// the client.
func (c *Client) Intelligence() *intelligence.Manager {
	return c.engine
}

// HasLLM reports whether extraction is available.
func (c *Client) HasLLM() bool {
	return c.extractor != nil
}

// Store persists content as a memory of the user, merging it into existing
// near-duplicates of the same user and type.
//
// The memory type defaults to episodic and the importance is estimated from
// the content when not given. The returned memory is either the new record or
// the canonical record the content was merged into.
//
// Example:
//
//	memory, err := client.Store(ctx, "User is allergic to peanuts",
//	    core.WithUserID("user_001"),
//	    core.WithMemoryType(model.MemoryTypeSemantic),
//	    core.WithTags("health", "allergy"),
//	)
func (c *Client) Store(ctx context.Context, content string, opts ...StoreOption) (*model.Memory, error) {
	storeOpts := applyStoreOptions(opts)

	unlock := c.lockUser(storeOpts.UserID)
	defer unlock()

	memory, err := c.engine.Dedup.StoreWithThreshold(ctx, content, storeOpts.metadata(), c.threshold(storeOpts))
	if err != nil {
		return nil, NewMemoryError("Store", err)
	}

	c.logger.Debug().
		Str("user_id", memory.UserID).
		Str("memory_id", memory.ID).
		Int("access_count", memory.AccessCount).
		Msg("stored memory")
	return memory, nil
}

// StoreBatch stores several contents with the same options. Embeddings are
// computed in one EmbedBatch call; each content still goes through the
// duplicate search, in order, so later entries can merge into earlier ones.
//
// Every content is validated before anything is embedded. On a failure the
// memories stored so far are returned together with the error.
func (c *Client) StoreBatch(ctx context.Context, contents []string, opts ...StoreOption) ([]*model.Memory, error) {
	storeOpts := applyStoreOptions(opts)
	meta := storeOpts.metadata()
	threshold := c.threshold(storeOpts)

	if len(contents) == 0 {
		return nil, NewMemoryError("StoreBatch", model.Validationf("no contents"))
	}
	for i, content := range contents {
		if err := meta.Validate(content); err != nil {
			return nil, NewMemoryError("StoreBatch", fmt.Errorf("content %d: %w", i, err))
		}
	}

	vectors, err := c.embedder.EmbedBatch(ctx, contents)
	if err != nil {
		return nil, NewMemoryError("StoreBatch", model.Unavailable("embed batch", err))
	}
	if len(vectors) != len(contents) {
		return nil, NewMemoryError("StoreBatch", model.Unavailable("embed batch",
			fmt.Errorf("got %d embeddings for %d contents", len(vectors), len(contents))))
	}

	unlock := c.lockUser(storeOpts.UserID)
	defer unlock()

	stored := make([]*model.Memory, 0, len(contents))
	for i, content := range contents {
		if err := embedder.CheckVector(vectors[i], 0); err != nil {
			return stored, NewMemoryError("StoreBatch", model.Unavailable("embed batch", err))
		}
		memory, err := c.engine.Dedup.StoreEmbedded(ctx, content, vectors[i], meta, threshold)
		if err != nil {
			return stored, NewMemoryError("StoreBatch", fmt.Errorf("content %d: %w", i, err))
		}
		stored = append(stored, memory)
	}
	return stored, nil
}

// StoreDrafts binds extracted drafts to userID and stores them through the
// deduplicating write path. Drafts are stored in order; on a failure the
// memories stored so far are returned with the error.
func (c *Client) StoreDrafts(ctx context.Context, userID string, drafts []model.Draft) ([]*model.Memory, error) {
	unlock := c.lockUser(userID)
	defer unlock()

	stored := make([]*model.Memory, 0, len(drafts))
	for i, draft := range drafts {
		if err := draft.Validate(); err != nil {
			return stored, NewMemoryError("StoreDrafts", fmt.Errorf("draft %d: %w", i, err))
		}
		memory, err := c.engine.Dedup.Store(ctx, draft.Content, draft.Metadata(userID))
		if err != nil {
			return stored, NewMemoryError("StoreDrafts", fmt.Errorf("draft %d: %w", i, err))
		}
		stored = append(stored, memory)
	}
	return stored, nil
}

// NewQuery returns a query for userID using the configured top_k and
// similarity threshold.
func (c *Client) NewQuery(userID, text string) model.Query {
	q := model.NewQuery(userID, text)
	q.TopK = c.defaultTopK()
	q.MinSimilarity = c.config.Intelligence.SimilarityThreshold
	return q
}

// Retrieve returns the memories most relevant to the query, best first.
//
// The index is searched with the query filters, top_k and min_similarity;
// the hits are re-ranked by final score and truncated to top_k. Every
// returned memory then has its access count incremented and its last access
// time set, and the results reflect the new counters. A zero TopK uses the
// configured default.
//
// Example:
//
//	q := client.NewQuery("user_001", "What food do I like?")
//	q.MemoryTypes = []model.MemoryType{model.MemoryTypeSemantic}
//	results, err := client.Retrieve(ctx, q)
func (c *Client) Retrieve(ctx context.Context, query model.Query) ([]*model.SearchResult, error) {
	if query.TopK == 0 {
		query.TopK = c.defaultTopK()
	}
	if err := query.Validate(); err != nil {
		return nil, NewMemoryError("Retrieve", err)
	}

	vec, err := c.embedder.Embed(ctx, query.QueryText)
	if err != nil {
		return nil, NewMemoryError("Retrieve", model.Unavailable("embed", err))
	}
	if err := embedder.CheckVector(vec, 0); err != nil {
		return nil, NewMemoryError("Retrieve", model.Unavailable("embed", err))
	}

	opts := &storage.SearchOptions{
		UserID:      query.UserID,
		MemoryTypes: query.MemoryTypes,
		Tags:        query.Tags,
		Since:       query.Since(c.now()),
		Limit:       query.TopK,
		MinScore:    query.MinSimilarity,
	}
	if query.AllowCrossUser {
		opts.UserID = ""
	}

	hits, err := c.index.Search(ctx, vec, opts)
	if err != nil {
		return nil, NewMemoryError("Retrieve", model.Unavailable("search", err))
	}

	candidates := make([]*model.SearchResult, 0, len(hits))
	for _, hit := range hits {
		if hit == nil || hit.Memory == nil || hit.SimilarityScore < query.MinSimilarity {
			continue
		}
		candidates = append(candidates, hit)
	}

	ranked, err := c.engine.Ranker.RankMemories(candidates)
	if err != nil {
		return nil, NewMemoryError("Retrieve", err)
	}
	if len(ranked) > query.TopK {
		ranked = ranked[:query.TopK]
	}

	if err := c.recordAccess(ctx, ranked); err != nil {
		return ranked, NewMemoryError("Retrieve", err)
	}

	c.logger.Debug().
		Str("user_id", query.UserID).
		Int("candidates", len(candidates)).
		Int("returned", len(ranked)).
		Msg("retrieved memories")
	return ranked, nil
}

// recordAccess bumps the access statistics of every result. Failures are
// logged; they are returned only in strict mode.
func (c *Client) recordAccess(ctx context.Context, results []*model.SearchResult) error {
	var errs []error
	now := c.now().UTC()
	for _, r := range results {
		count := r.Memory.AccessCount + 1
		update := &storage.MetadataUpdate{
			AccessCount:  &count,
			LastAccessed: &now,
		}
		if err := c.index.UpdateMetadata(ctx, r.Memory.ID, update); err != nil {
			c.logger.Warn().
				Err(err).
				Str("memory_id", r.Memory.ID).
				Msg("failed to record memory access")
			errs = append(errs, fmt.Errorf("memory %s: %w", r.Memory.ID, model.Unavailable("record access", err)))
			continue
		}
		update.Apply(r.Memory)
	}
	if c.strictAccess && len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Get returns a memory by id, or an error wrapping ErrNotFound.
func (c *Client) Get(ctx context.Context, id string) (*model.Memory, error) {
	if id == "" {
		return nil, NewMemoryError("Get", model.Validationf("memory id is required"))
	}
	memory, err := c.index.Get(ctx, id)
	if err != nil {
		return nil, NewMemoryError("Get", model.Unavailable("get", err))
	}
	return memory, nil
}

// Forget deletes a memory by id, or returns an error wrapping ErrNotFound.
func (c *Client) Forget(ctx context.Context, id string) error {
	if id == "" {
		return NewMemoryError("Forget", model.Validationf("memory id is required"))
	}
	if err := c.index.Delete(ctx, id); err != nil {
		return NewMemoryError("Forget", model.Unavailable("delete", err))
	}
	c.logger.Debug().Str("memory_id", id).Msg("forgot memory")
	return nil
}

// List returns the memories of userID, newest first. A zero limit uses the
// index default; an empty userID lists every user.
func (c *Client) List(ctx context.Context, userID string, limit, offset int) ([]*model.Memory, error) {
	if limit < 0 || offset < 0 {
		return nil, NewMemoryError("List", model.Validationf("limit and offset must not be negative"))
	}
	memories, err := c.index.List(ctx, &storage.ListOptions{
		UserID: userID,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, NewMemoryError("List", model.Unavailable("list", err))
	}
	return memories, nil
}

// Count returns the number of memories of userID ("" counts every user).
func (c *Client) Count(ctx context.Context, userID string) (int, error) {
	n, err := c.index.Count(ctx, userID)
	if err != nil {
		return 0, NewMemoryError("Count", model.Unavailable("count", err))
	}
	return n, nil
}

// BuildContext retrieves the memories relevant to query and formats them as
// a numbered block for an LLM prompt. A zero maxMemories includes up to
// DefaultContextMemories.
//
// Example output:
//
//	relevant memories about the user:
//
//	1. User loves spicy Indian food (type: semantic, importance: 0.80, relevance: 0.75)
func (c *Client) BuildContext(ctx context.Context, userID, query string, maxMemories int) (string, error) {
	if maxMemories == 0 {
		maxMemories = DefaultContextMemories
	}
	q := c.NewQuery(userID, query)
	q.TopK = maxMemories

	results, err := c.Retrieve(ctx, q)
	if err != nil {
		return "", err
	}
	return FormatContext(results), nil
}

// FormatContext renders ranked results the way BuildContext does.
func FormatContext(results []*model.SearchResult) string {
	if len(results) == 0 {
		return "no relevant memories found."
	}
	parts := make([]string, 0, len(results)+1)
	parts = append(parts, "relevant memories about the user:\n")
	for i, r := range results {
		parts = append(parts, fmt.Sprintf("%d. %s (type: %s, importance: %.2f, relevance: %.2f)",
			i+1, r.Memory.Content, r.Memory.MemoryType, r.Memory.ImportanceScore, r.FinalScore))
	}
	return strings.Join(parts, "\n")
}

// Extract asks the LLM for the memories worth keeping from a conversation
// turn without storing them. Returns ErrLLMNotConfigured without an LLM.
func (c *Client) Extract(ctx context.Context, userMessage, assistantMessage string) ([]extractor.LineResult, error) {
	if c.extractor == nil {
		return nil, NewMemoryError("Extract", ErrLLMNotConfigured)
	}
	results, err := c.extractor.Extract(ctx, userMessage, assistantMessage)
	if err != nil {
		return nil, NewMemoryError("Extract", err)
	}
	return results, nil
}

// ExtractAndStore extracts memories from a conversation turn and stores the
// lines that parsed for userID. The per-line results are returned alongside
// the stored memories so callers can report malformed lines.
func (c *Client) ExtractAndStore(ctx context.Context, userID, userMessage, assistantMessage string) ([]*model.Memory, []extractor.LineResult, error) {
	if userID == "" {
		return nil, nil, NewMemoryError("ExtractAndStore", model.Validationf("user id is required"))
	}
	results, err := c.Extract(ctx, userMessage, assistantMessage)
	if err != nil {
		return nil, nil, err
	}
	stored, err := c.StoreDrafts(ctx, userID, extractor.Drafts(results))
	return stored, results, err
}

// Close releases the index, the embedder and the LLM.
func (c *Client) Close() error {
	var errs []error
	if c.llm != nil {
		errs = append(errs, c.llm.Close())
	}
	errs = append(errs, c.index.Close(), c.embedder.Close())
	if err := errors.Join(errs...); err != nil {
		return NewMemoryError("Close", err)
	}
	return nil
}

func (c *Client) defaultTopK() int {
	if k := c.config.Intelligence.DefaultTopK; k > 0 {
		return k
	}
	return model.DefaultTopK
}

func (c *Client) threshold(opts *StoreOptions) float64 {
	if opts.DedupThreshold != nil {
		return *opts.DedupThreshold
	}
	return c.engine.Dedup.Config().Threshold
}

func (c *Client) lockUser(userID string) func() {
	if c.userLocks == nil {
		return func() {}
	}
	return c.userLocks.lock(userID)
}

// userLocks hands out one mutex per user. Entries are reference counted and
// removed when the last holder unlocks.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

func (l *userLocks) lock(userID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[userID]
	if !ok {
		entry = &userLock{}
		l.locks[userID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}

func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
