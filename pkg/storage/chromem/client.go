// Package chromem provides an embedded vector index built on chromem-go.
//
// chromem-go is a pure Go, in-process vector database. It keeps every
// document in memory and optionally persists the collection to a directory.
// Payload fields are stored as string metadata on each document.
package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/powerbrain/brainmem-go/pkg/model"
	"github.com/powerbrain/brainmem-go/pkg/storage"
)

// Metadata keys.
const (
	metaUserID       = "user_id"
	metaMemoryType   = "memory_type"
	metaImportance   = "importance_score"
	metaTags         = "tags"
	metaCreatedAt    = "created_at"
	metaLastAccessed = "last_accessed"
	metaAccessCount  = "access_count"
)

// Config contains configuration for the chromem index.
type Config struct {
	// Path is the persistence directory. Empty keeps everything in memory.
	Path string

	// Compress enables gzip compression of persisted documents.
	Compress bool

	// CollectionName is the chromem collection (default "memories").
	CollectionName string

	// EmbeddingModelDims is the dimension of embedding vectors.
	EmbeddingModelDims int
}

// Client implements storage.VectorIndex on a chromem collection.
type Client struct {
	db         *chromem.DB
	collection *chromem.Collection
	dimensions int

	// mu serializes read-modify-write sequences on documents.
	mu sync.Mutex
}

// NewClient creates a chromem-backed vector index.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.EmbeddingModelDims <= 0 {
		return nil, fmt.Errorf("NewChromemClient: embedding dimensions must be positive")
	}
	name := cfg.CollectionName
	if name == "" {
		name = "memories"
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("NewChromemClient: %w", err)
		}
	}

	// Embeddings are always supplied by the caller.
	col, err := db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("NewChromemClient: create collection: %w", err)
	}

	return &Client{
		db:         db,
		collection: col,
		dimensions: cfg.EmbeddingModelDims,
	}, nil
}

// Upsert stores the memory, replacing any document with the same ID.
func (c *Client) Upsert(ctx context.Context, memory *model.Memory) error {
	if len(memory.Embedding) != c.dimensions {
		return fmt.Errorf("Upsert: %w", model.Validationf("embedding dimension %d, want %d", len(memory.Embedding), c.dimensions))
	}

	doc, err := toDocument(memory)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}

// Search queries the collection and applies the remaining filters in Go.
func (c *Client) Search(ctx context.Context, embedding []float64, opts *storage.SearchOptions) ([]*model.SearchResult, error) {
	if opts == nil {
		opts = &storage.SearchOptions{}
	}
	if len(embedding) != c.dimensions {
		return nil, fmt.Errorf("Search: %w", model.Validationf("query dimension %d, want %d", len(embedding), c.dimensions))
	}

	results, err := c.queryAll(ctx, toFloat32(embedding), whereFor(opts))
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}

	hits := make([]*model.SearchResult, 0, len(results))
	for _, r := range results {
		memory, err := fromResult(r)
		if err != nil {
			return nil, fmt.Errorf("Search: %w", err)
		}
		if !opts.Matches(memory) {
			continue
		}
		score := float64(r.Similarity)
		if score < opts.MinScore {
			continue
		}
		hits = append(hits, storage.NewHit(memory, score))
	}

	return storage.SortAndLimit(hits, opts.Limit), nil
}

// Get retrieves a memory by ID.
func (c *Client) Get(ctx context.Context, id string) (*model.Memory, error) {
	doc, err := c.collection.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Get %s: %w", id, model.ErrNotFound)
	}
	memory, err := fromDocument(doc.ID, doc.Content, doc.Metadata, doc.Embedding)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return memory, nil
}

// Delete removes a memory by ID.
func (c *Client) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.collection.GetByID(ctx, id); err != nil {
		return fmt.Errorf("Delete %s: %w", id, model.ErrNotFound)
	}
	if err := c.collection.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

// UpdateMetadata rewrites the document with the changed payload fields.
func (c *Client) UpdateMetadata(ctx context.Context, id string, update *storage.MetadataUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.collection.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("UpdateMetadata %s: %w", id, model.ErrNotFound)
	}
	memory, err := fromDocument(doc.ID, doc.Content, doc.Metadata, doc.Embedding)
	if err != nil {
		return fmt.Errorf("UpdateMetadata: %w", err)
	}
	update.Apply(memory)

	updated, err := toDocument(memory)
	if err != nil {
		return fmt.Errorf("UpdateMetadata: %w", err)
	}
	// Keep the stored (already normalized) vector as is.
	updated.Embedding = doc.Embedding

	if err := c.collection.AddDocument(ctx, updated); err != nil {
		return fmt.Errorf("UpdateMetadata: %w", err)
	}
	return nil
}

// List returns memories newest first.
func (c *Client) List(ctx context.Context, opts *storage.ListOptions) ([]*model.Memory, error) {
	if opts == nil {
		opts = &storage.ListOptions{}
	}

	memories, err := c.scan(ctx, opts.UserID)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}

	sort.SliceStable(memories, func(i, j int) bool {
		if !memories[i].Timestamp.Equal(memories[j].Timestamp) {
			return memories[i].Timestamp.After(memories[j].Timestamp)
		}
		return memories[i].ID > memories[j].ID
	})

	if opts.Offset >= len(memories) {
		return nil, nil
	}
	memories = memories[opts.Offset:]
	if limit := opts.EffectiveLimit(); len(memories) > limit {
		memories = memories[:limit]
	}
	return memories, nil
}

// Count returns the number of memories owned by userID.
func (c *Client) Count(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return c.collection.Count(), nil
	}
	memories, err := c.scan(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	return len(memories), nil
}

// Close releases resources. Persistent collections are written on every
// change, so there is nothing to flush.
func (c *Client) Close() error {
	return nil
}

// scan returns every memory of userID ("" = all).
//
// chromem has no plain listing API, so this queries with an arbitrary unit
// vector and asks for every document.
func (c *Client) scan(ctx context.Context, userID string) ([]*model.Memory, error) {
	probe := make([]float32, c.dimensions)
	probe[0] = 1

	var where map[string]string
	if userID != "" {
		where = map[string]string{metaUserID: userID}
	}

	results, err := c.queryAll(ctx, probe, where)
	if err != nil {
		return nil, err
	}

	memories := make([]*model.Memory, 0, len(results))
	for _, r := range results {
		memory, err := fromResult(r)
		if err != nil {
			return nil, err
		}
		memories = append(memories, memory)
	}
	return memories, nil
}

// queryAll asks chromem for every document that passes where.
// chromem-go requires nResults <= collection size.
func (c *Client) queryAll(ctx context.Context, query []float32, where map[string]string) ([]chromem.Result, error) {
	n := c.collection.Count()
	if n == 0 {
		return nil, nil
	}
	return c.collection.QueryEmbedding(ctx, query, n, where, nil)
}

// whereFor pushes the equality filters chromem supports down to the query.
func whereFor(opts *storage.SearchOptions) map[string]string {
	where := map[string]string{}
	if opts.UserID != "" {
		where[metaUserID] = opts.UserID
	}
	if len(opts.MemoryTypes) == 1 {
		where[metaMemoryType] = string(opts.MemoryTypes[0])
	}
	if len(where) == 0 {
		return nil
	}
	return where
}

func toDocument(memory *model.Memory) (chromem.Document, error) {
	tags, err := json.Marshal(model.MergeTags(memory.Tags))
	if err != nil {
		return chromem.Document{}, err
	}

	metadata := map[string]string{
		metaUserID:      memory.UserID,
		metaMemoryType:  string(memory.MemoryType),
		metaImportance:  strconv.FormatFloat(memory.ImportanceScore, 'g', -1, 64),
		metaTags:        string(tags),
		metaCreatedAt:   storage.FormatTime(memory.Timestamp),
		metaAccessCount: strconv.Itoa(memory.AccessCount),
	}
	if memory.LastAccessed != nil {
		metadata[metaLastAccessed] = storage.FormatTime(*memory.LastAccessed)
	}

	return chromem.Document{
		ID:        memory.ID,
		Content:   memory.Content,
		Embedding: toFloat32(memory.Embedding),
		Metadata:  metadata,
	}, nil
}

func fromResult(r chromem.Result) (*model.Memory, error) {
	return fromDocument(r.ID, r.Content, r.Metadata, r.Embedding)
}

func fromDocument(id, content string, metadata map[string]string, embedding []float32) (*model.Memory, error) {
	memory := &model.Memory{
		ID:         id,
		Content:    content,
		UserID:     metadata[metaUserID],
		MemoryType: model.MemoryType(metadata[metaMemoryType]),
		Embedding:  toFloat64(embedding),
	}

	var err error
	if memory.ImportanceScore, err = strconv.ParseFloat(metadata[metaImportance], 64); err != nil {
		return nil, fmt.Errorf("parse importance of %s: %w", id, err)
	}
	if memory.AccessCount, err = strconv.Atoi(metadata[metaAccessCount]); err != nil {
		return nil, fmt.Errorf("parse access count of %s: %w", id, err)
	}
	if memory.Timestamp, err = storage.ParseTime(metadata[metaCreatedAt]); err != nil {
		return nil, fmt.Errorf("parse created_at of %s: %w", id, err)
	}
	if s := metadata[metaLastAccessed]; s != "" {
		t, err := storage.ParseTime(s)
		if err != nil {
			return nil, fmt.Errorf("parse last_accessed of %s: %w", id, err)
		}
		memory.LastAccessed = &t
	}
	if s := metadata[metaTags]; s != "" {
		if err := json.Unmarshal([]byte(s), &memory.Tags); err != nil {
			return nil, fmt.Errorf("parse tags of %s: %w", id, err)
		}
	}

	return memory, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
