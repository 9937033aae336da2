// Package postgres provides a PostgreSQL + pgvector vector index.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/powerbrain/brainmem-go/pkg/model"
	"github.com/powerbrain/brainmem-go/pkg/storage"
)

// Client is a PostgreSQL + pgvector client.
type Client struct {
	db             *sql.DB
	collectionName string
	dimensions     int
}

// Config contains PostgreSQL configuration.
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	DBName             string
	CollectionName     string
	EmbeddingModelDims int
	SSLMode            string
}

// NewClient creates a new PostgreSQL client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.EmbeddingModelDims <= 0 {
		return nil, fmt.Errorf("NewPostgresClient: embedding dimensions must be positive")
	}
	collection := cfg.CollectionName
	if collection == "" {
		collection = "memories"
	}
	if err := storage.ValidateIdentifier(collection); err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	db, err := sql.Open("postgres", buildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	client := &Client{
		db:             db,
		collectionName: collection,
		dimensions:     cfg.EmbeddingModelDims,
	}

	// Initialize pgvector extension and table structure
	if err := client.initTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return client, nil
}

func buildDSN(cfg *Config) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, port, cfg.User, cfg.Password, cfg.DBName, sslMode)
}

// initTables initializes the database table.
func (c *Client) initTables(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("initTables: create extension: %w", err)
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			memory_type VARCHAR(16) NOT NULL,
			importance_score DOUBLE PRECISION NOT NULL DEFAULT 0.5,
			tags JSONB NOT NULL DEFAULT '[]'::jsonb,
			created_at TIMESTAMPTZ NOT NULL,
			last_accessed TIMESTAMPTZ,
			access_count INTEGER NOT NULL DEFAULT 0
		)
	`, c.collectionName, c.dimensions)
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTables: create table: %w", err)
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_user_type ON %s(user_id, memory_type)
	`, c.collectionName, c.collectionName)
	if _, err := c.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("initTables: create index: %w", err)
	}

	hnswQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s
		USING hnsw (embedding vector_cosine_ops)
	`, c.collectionName, c.collectionName)
	if _, err := c.db.ExecContext(ctx, hnswQuery); err != nil {
		return fmt.Errorf("initTables: create vector index: %w", err)
	}

	return nil
}

// Upsert inserts or replaces a memory.
func (c *Client) Upsert(ctx context.Context, memory *model.Memory) error {
	if len(memory.Embedding) != c.dimensions {
		return fmt.Errorf("Upsert: %w", model.Validationf("embedding dimension %d, want %d", len(memory.Embedding), c.dimensions))
	}

	tagsJSON, err := json.Marshal(model.MergeTags(memory.Tags))
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, user_id, content, embedding, memory_type, importance_score, tags, created_at, last_accessed, access_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			memory_type = EXCLUDED.memory_type,
			importance_score = EXCLUDED.importance_score,
			tags = EXCLUDED.tags,
			created_at = EXCLUDED.created_at,
			last_accessed = EXCLUDED.last_accessed,
			access_count = EXCLUDED.access_count
	`, c.collectionName)

	var lastAccessed interface{}
	if memory.LastAccessed != nil {
		lastAccessed = memory.LastAccessed.UTC()
	}

	_, err = c.db.ExecContext(ctx, query,
		memory.ID,
		memory.UserID,
		memory.Content,
		vectorToString(memory.Embedding),
		string(memory.MemoryType),
		memory.ImportanceScore,
		string(tagsJSON),
		memory.Timestamp.UTC(),
		lastAccessed,
		memory.AccessCount,
	)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}

	return nil
}

// Search performs vector search using pgvector's cosine distance.
func (c *Client) Search(ctx context.Context, embedding []float64, opts *storage.SearchOptions) ([]*model.SearchResult, error) {
	if opts == nil {
		opts = &storage.SearchOptions{}
	}

	// $1 is the query vector, $2 the minimum similarity.
	whereClause, filterArgs := buildWhereClauseWithOffset(opts, 3)
	if whereClause == "" {
		whereClause = "WHERE 1 - (embedding <=> $1) >= $2"
	} else {
		whereClause += " AND 1 - (embedding <=> $1) >= $2"
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = model.MaxTopK
	}

	query := fmt.Sprintf(`
		SELECT %s, 1 - (embedding <=> $1) AS similarity
		FROM %s
		%s
		ORDER BY embedding <=> $1, created_at, id
		LIMIT $%d
	`, selectColumns, c.collectionName, whereClause, len(filterArgs)+3)

	allArgs := []interface{}{vectorToString(embedding), opts.MinScore}
	allArgs = append(allArgs, filterArgs...)
	allArgs = append(allArgs, limit)

	rows, err := c.db.QueryContext(ctx, query, allArgs...)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*model.SearchResult
	for rows.Next() {
		var similarity float64
		memory, err := scanMemory(rows, &similarity)
		if err != nil {
			return nil, fmt.Errorf("Search: %w", err)
		}
		results = append(results, storage.NewHit(memory, similarity))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}

	return storage.SortAndLimit(results, limit), nil
}

// Get retrieves a memory by ID.
func (c *Client) Get(ctx context.Context, id string) (*model.Memory, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, selectColumns, c.collectionName)

	memory, err := scanMemory(c.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("Get %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}

	return memory, nil
}

// Delete deletes a memory.
func (c *Client) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", c.collectionName)

	result, err := c.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("Delete %s: %w", id, model.ErrNotFound)
	}

	return nil
}

// UpdateMetadata updates payload fields of a memory.
func (c *Client) UpdateMetadata(ctx context.Context, id string, update *storage.MetadataUpdate) error {
	sets := []string{}
	args := []interface{}{}
	next := func() int { return len(args) + 1 }

	if update != nil {
		if update.AccessCount != nil {
			sets = append(sets, fmt.Sprintf("access_count = $%d", next()))
			args = append(args, *update.AccessCount)
		}
		if update.LastAccessed != nil {
			sets = append(sets, fmt.Sprintf("last_accessed = $%d", next()))
			args = append(args, update.LastAccessed.UTC())
		}
		if update.ImportanceScore != nil {
			sets = append(sets, fmt.Sprintf("importance_score = $%d", next()))
			args = append(args, *update.ImportanceScore)
		}
		if update.Tags != nil {
			tagsJSON, err := json.Marshal(model.MergeTags(update.Tags))
			if err != nil {
				return fmt.Errorf("UpdateMetadata: %w", err)
			}
			sets = append(sets, fmt.Sprintf("tags = $%d", next()))
			args = append(args, string(tagsJSON))
		}
	}

	if len(sets) == 0 {
		_, err := c.Get(ctx, id)
		return err
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", c.collectionName, strings.Join(sets, ", "), next())
	args = append(args, id)

	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("UpdateMetadata: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateMetadata: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("UpdateMetadata %s: %w", id, model.ErrNotFound)
	}

	return nil
}

// List retrieves memories newest first.
func (c *Client) List(ctx context.Context, opts *storage.ListOptions) ([]*model.Memory, error) {
	if opts == nil {
		opts = &storage.ListOptions{}
	}
	whereClause, args := buildWhereClause(&storage.SearchOptions{UserID: opts.UserID})

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, selectColumns, c.collectionName, whereClause, len(args)+1, len(args)+2)

	args = append(args, opts.EffectiveLimit(), opts.Offset)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var memories []*model.Memory
	for rows.Next() {
		memory, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}
		memories = append(memories, memory)
	}

	return memories, rows.Err()
}

// Count returns the number of memories owned by userID.
func (c *Client) Count(ctx context.Context, userID string) (int, error) {
	whereClause, args := buildWhereClause(&storage.SearchOptions{UserID: userID})
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", c.collectionName, whereClause)

	var count int
	if err := c.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	return count, nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

const selectColumns = `id, user_id, content, embedding::text, memory_type, importance_score,
	tags, created_at, last_accessed, access_count`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanMemory scans a memory row. Extra destinations are appended after the
// memory columns.
func scanMemory(scanner rowScanner, extra ...interface{}) (*model.Memory, error) {
	var memory model.Memory
	var embeddingStr, memoryType string
	var tags []byte
	var createdAt time.Time
	var lastAccessed pq.NullTime

	dest := []interface{}{
		&memory.ID,
		&memory.UserID,
		&memory.Content,
		&embeddingStr,
		&memoryType,
		&memory.ImportanceScore,
		&tags,
		&createdAt,
		&lastAccessed,
		&memory.AccessCount,
	}
	if err := scanner.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	embedding, err := parseVectorString(embeddingStr)
	if err != nil {
		return nil, fmt.Errorf("parse embedding: %w", err)
	}
	memory.Embedding = embedding
	memory.MemoryType = model.MemoryType(memoryType)
	memory.Timestamp = createdAt.UTC()

	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &memory.Tags); err != nil {
			return nil, fmt.Errorf("parse tags: %w", err)
		}
	}

	if lastAccessed.Valid {
		t := lastAccessed.Time.UTC()
		memory.LastAccessed = &t
	}

	return &memory, nil
}
