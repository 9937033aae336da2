// Package sqlite provides SQLite implementation for the vector index.
//
// SQLite is a lightweight, file-based database suitable for local development
// and single-user deployments. Vectors and tags are stored as JSON strings in
// TEXT fields, and similarity search uses in-memory cosine similarity.
//
// Two drivers are supported: "sqlite3" (github.com/mattn/go-sqlite3, cgo) and
// "sqlite" (modernc.org/sqlite, pure Go).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/powerbrain/brainmem-go/pkg/model"
	"github.com/powerbrain/brainmem-go/pkg/storage"
	_ "modernc.org/sqlite"
)

// Driver names accepted in Config.Driver.
const (
	DriverCGO    = "sqlite3"
	DriverPureGo = "sqlite"
)

// Client implements storage.VectorIndex using SQLite as the backend.
type Client struct {
	// db is the SQLite database connection.
	db *sql.DB

	// collectionName is the name of the table storing memories.
	collectionName string

	// dimensions is the dimension of embedding vectors (0 = unchecked).
	dimensions int
}

// Config contains configuration for creating a SQLite vector index.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// CollectionName is the name of the table to use (default "memories").
	CollectionName string

	// EmbeddingModelDims is the dimension of embedding vectors.
	// Upserts with a different dimension are rejected when non-zero.
	EmbeddingModelDims int

	// Driver selects the database/sql driver: "sqlite3" (default) or "sqlite".
	Driver string
}

// NewClient creates a new SQLite vector index client.
func NewClient(cfg *Config) (*Client, error) {
	collection := cfg.CollectionName
	if collection == "" {
		collection = "memories"
	}
	if err := storage.ValidateIdentifier(collection); err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	// Create parent directory if it doesn't exist
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("NewSQLiteClient: failed to create directory: %w", err)
		}
	}

	driver, dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}
	// A single connection keeps writers from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	client := &Client{
		db:             db,
		collectionName: collection,
		dimensions:     cfg.EmbeddingModelDims,
	}

	if err := client.initTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return client, nil
}

func buildDSN(cfg *Config) (string, string, error) {
	switch cfg.Driver {
	case "", DriverCGO:
		return DriverCGO, cfg.DBPath + "?_foreign_keys=1&_journal_mode=WAL", nil
	case DriverPureGo:
		return DriverPureGo, cfg.DBPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", nil
	default:
		return "", "", fmt.Errorf("unsupported sqlite driver %q", cfg.Driver)
	}
}

// initTables initializes the database table structure.
func (c *Client) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding TEXT NOT NULL,
			memory_type TEXT NOT NULL,
			importance_score REAL NOT NULL DEFAULT 0.5,
			tags TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			last_accessed TEXT,
			access_count INTEGER NOT NULL DEFAULT 0
		)
	`, c.collectionName)

	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_user_type ON %s(user_id, memory_type)
	`, c.collectionName, c.collectionName)
	if _, err := c.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	return nil
}

// Upsert inserts or replaces a memory.
func (c *Client) Upsert(ctx context.Context, memory *model.Memory) error {
	if len(memory.Embedding) == 0 {
		return fmt.Errorf("Upsert: %w", model.Validationf("memory %q has no embedding", memory.ID))
	}
	if c.dimensions > 0 && len(memory.Embedding) != c.dimensions {
		return fmt.Errorf("Upsert: %w", model.Validationf("embedding dimension %d, want %d", len(memory.Embedding), c.dimensions))
	}

	embeddingJSON, err := json.Marshal(memory.Embedding)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	tagsJSON, err := json.Marshal(model.MergeTags(memory.Tags))
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, user_id, content, embedding, memory_type, importance_score, tags, created_at, last_accessed, access_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			content = excluded.content,
			embedding = excluded.embedding,
			memory_type = excluded.memory_type,
			importance_score = excluded.importance_score,
			tags = excluded.tags,
			created_at = excluded.created_at,
			last_accessed = excluded.last_accessed,
			access_count = excluded.access_count
	`, c.collectionName)

	_, err = c.db.ExecContext(ctx, query,
		memory.ID,
		memory.UserID,
		memory.Content,
		string(embeddingJSON),
		string(memory.MemoryType),
		memory.ImportanceScore,
		string(tagsJSON),
		storage.FormatTime(memory.Timestamp),
		storage.FormatTimePtr(memory.LastAccessed),
		memory.AccessCount,
	)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}

	return nil
}

// Search performs vector similarity search using cosine similarity.
//
// SQLite does not have native vector operations, so similarity is calculated
// in memory after loading the rows that pass the SQL filters. The tag filter
// is applied in Go because tags are stored as JSON.
func (c *Client) Search(ctx context.Context, embedding []float64, opts *storage.SearchOptions) ([]*model.SearchResult, error) {
	if opts == nil {
		opts = &storage.SearchOptions{}
	}

	whereClause, args := buildWhereClause(opts)

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		%s
		ORDER BY created_at, id
	`, selectColumns, c.collectionName, whereClause)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*model.SearchResult
	for rows.Next() {
		memory, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("Search: %w", err)
		}
		if !opts.Matches(memory) {
			continue
		}

		score := storage.CosineSimilarity(embedding, memory.Embedding)
		if score >= opts.MinScore {
			results = append(results, storage.NewHit(memory, score))
		}
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

// Delete deletes a memory by ID.
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
func (c *Client) UpdateMetadata(ctx context.Context, id string, update *storage.MetadataUpdate) error {
	sets := []string{}
	args := []interface{}{}

	if update != nil {
		if update.AccessCount != nil {
			sets = append(sets, "access_count = ?")
			args = append(args, *update.AccessCount)
		}
		if update.LastAccessed != nil {
			sets = append(sets, "last_accessed = ?")
			args = append(args, storage.FormatTime(*update.LastAccessed))
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
		// Nothing to change; still report missing records.
		_, err := c.Get(ctx, id)
		return err
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", c.collectionName, strings.Join(sets, ", "))
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

// List retrieves memories newest first with optional filtering and pagination.
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

const selectColumns = `id, user_id, content, embedding, memory_type, importance_score,
	tags, created_at, last_accessed, access_count`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanMemory scans a memory from a database row or rows.
func scanMemory(scanner rowScanner) (*model.Memory, error) {
	var memory model.Memory
	var embeddingStr, tagsStr, memoryType, createdAt string
	var lastAccessed sql.NullString

	err := scanner.Scan(
		&memory.ID,
		&memory.UserID,
		&memory.Content,
		&embeddingStr,
		&memoryType,
		&memory.ImportanceScore,
		&tagsStr,
		&createdAt,
		&lastAccessed,
		&memory.AccessCount,
	)
	if err != nil {
		return nil, err
	}

	memory.MemoryType = model.MemoryType(memoryType)

	if err := json.Unmarshal([]byte(embeddingStr), &memory.Embedding); err != nil {
		return nil, fmt.Errorf("parse embedding: %w", err)
	}
	if tagsStr != "" {
		if err := json.Unmarshal([]byte(tagsStr), &memory.Tags); err != nil {
			return nil, fmt.Errorf("parse tags: %w", err)
		}
	}

	if memory.Timestamp, err = storage.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if lastAccessed.Valid && lastAccessed.String != "" {
		t, err := storage.ParseTime(lastAccessed.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_accessed: %w", err)
		}
		memory.LastAccessed = &t
	}

	return &memory, nil
}
