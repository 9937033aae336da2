// Package oceanbase provides an OceanBase vector index over the MySQL protocol.
package oceanbase

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/powerbrain/brainmem-go/pkg/model"
	"github.com/powerbrain/brainmem-go/pkg/storage"
)

// Client is an OceanBase client.
type Client struct {
	db             *sql.DB
	config         *Config
	collectionName string
}

// Config contains OceanBase configuration.
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	DBName             string
	CollectionName     string
	EmbeddingModelDims int
}

// NewClient creates a new OceanBase client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.EmbeddingModelDims <= 0 {
		return nil, fmt.Errorf("NewOceanBaseClient: embedding dimensions must be positive")
	}
	collection := cfg.CollectionName
	if collection == "" {
		collection = "memories"
	}
	if err := storage.ValidateIdentifier(collection); err != nil {
		return nil, fmt.Errorf("NewOceanBaseClient: %w", err)
	}

	db, err := sql.Open("mysql", buildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("NewOceanBaseClient: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewOceanBaseClient: %w", err)
	}

	client := &Client{
		db:             db,
		config:         cfg,
		collectionName: collection,
	}

	if err := client.initTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return client, nil
}

// buildDSN formats the MySQL DSN with UTC time parsing enabled.
func buildDSN(cfg *Config) string {
	port := cfg.Port
	if port == 0 {
		port = 2881
	}
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, port)
	mc.DBName = cfg.DBName
	mc.ParseTime = true
	mc.Loc = time.UTC
	return mc.FormatDSN()
}

// initTables initializes the database table.
func (c *Client) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(128) NOT NULL,
			document LONGTEXT NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			memory_type VARCHAR(16) NOT NULL,
			importance_score DOUBLE NOT NULL,
			tags JSON,
			hash VARCHAR(32),
			created_at DATETIME(6) NOT NULL,
			last_accessed DATETIME(6) NULL,
			access_count INT NOT NULL DEFAULT 0,
			INDEX idx_user_type (user_id, memory_type)
		)
	`, c.collectionName, c.config.EmbeddingModelDims)

	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	return nil
}

// Upsert inserts or replaces a memory.
func (c *Client) Upsert(ctx context.Context, memory *model.Memory) error {
	if len(memory.Embedding) != c.config.EmbeddingModelDims {
		return fmt.Errorf("Upsert: %w", model.Validationf("embedding dimension %d, want %d", len(memory.Embedding), c.config.EmbeddingModelDims))
	}

	tagsJSON, err := json.Marshal(model.MergeTags(memory.Tags))
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, user_id, document, embedding, memory_type, importance_score, tags, hash, created_at, last_accessed, access_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			user_id = VALUES(user_id),
			document = VALUES(document),
			embedding = VALUES(embedding),
			memory_type = VALUES(memory_type),
			importance_score = VALUES(importance_score),
			tags = VALUES(tags),
			hash = VALUES(hash),
			created_at = VALUES(created_at),
			last_accessed = VALUES(last_accessed),
			access_count = VALUES(access_count)
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
		generateHash(memory.Content),
		memory.Timestamp.UTC(),
		lastAccessed,
		memory.AccessCount,
	)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}

	return nil
}

// Search performs vector search ordered by cosine distance.
//
// The tag filter is applied after the query, so the SQL limit is only
// pushed down when no tags are requested.
func (c *Client) Search(ctx context.Context, embedding []float64, opts *storage.SearchOptions) ([]*model.SearchResult, error) {
	if opts == nil {
		opts = &storage.SearchOptions{}
	}

	whereClause, args := buildWhereClause(opts)

	limitClause := ""
	if opts.Limit > 0 && len(opts.Tags) == 0 {
		limitClause = "LIMIT ?"
		args = append(args, opts.Limit)
	}

	query := fmt.Sprintf(`
		SELECT %s, cosine_distance(embedding, ?) AS distance
		FROM %s
		%s
		ORDER BY distance ASC, created_at, id
		%s
	`, selectColumns, c.collectionName, whereClause, limitClause)

	allArgs := append([]interface{}{vectorToString(embedding)}, args...)

	rows, err := c.db.QueryContext(ctx, query, allArgs...)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*model.SearchResult
	for rows.Next() {
		var distance float64
		memory, err := scanMemory(rows, &distance)
		if err != nil {
			return nil, fmt.Errorf("Search: %w", err)
		}
		if !opts.Matches(memory) {
			continue
		}
		similarity := 1 - distance
		if similarity < opts.MinScore {
			continue
		}
		results = append(results, storage.NewHit(memory, similarity))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}

	return storage.SortAndLimit(results, opts.Limit), nil
}

// Get retrieves a memory by ID.
func (c *Client) Get(ctx context.Context, id string) (*model.Memory, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, selectColumns, c.collectionName)

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
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", c.collectionName)

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
//
// MySQL reports zero affected rows when values are unchanged, so existence
// is checked with Get first.
func (c *Client) UpdateMetadata(ctx context.Context, id string, update *storage.MetadataUpdate) error {
	if _, err := c.Get(ctx, id); err != nil {
		return err
	}

	sets := []string{}
	args := []interface{}{}

	if update != nil {
		if update.AccessCount != nil {
			sets = append(sets, "access_count = ?")
			args = append(args, *update.AccessCount)
		}
		if update.LastAccessed != nil {
			sets = append(sets, "last_accessed = ?")
			args = append(args, update.LastAccessed.UTC())
		}
		if update.ImportanceScore != nil {
			sets = append(sets, "importance_score = ?")
			args = append(args, *update.ImportanceScore)
		}
		if update.Tags != nil {
			tagsJSON, err := json.Marshal(model.MergeTags(update.Tags))
			if err != nil {
				return fmt.Errorf("UpdateMetadata: %w", err)
			}
			sets = append(sets, "tags = ?")
			args = append(args, string(tagsJSON))
		}
	}
	if len(sets) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", c.collectionName, strings.Join(sets, ", "))
	args = append(args, id)

	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("UpdateMetadata: %w", err)
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
		LIMIT ? OFFSET ?
	`, selectColumns, c.collectionName, whereClause)

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

const selectColumns = `id, user_id, document, embedding, memory_type, importance_score,
	tags, created_at, last_accessed, access_count`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(scanner rowScanner, extra ...interface{}) (*model.Memory, error) {
	var memory model.Memory
	var embeddingStr, memoryType string
	var tags []byte
	var createdAt time.Time
	var lastAccessed sql.NullTime

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

	embedding, err := stringToVector(embeddingStr)
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
