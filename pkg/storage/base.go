// Package storage provides the vector index contract and its backends.
//
// The vector index is the source of truth for memories. It persists vectors
// together with the memory payload and answers nearest-neighbour queries
// with user, type, tag and time filters.
package storage

import (
	"context"
	"time"

	"github.com/powerbrain/brainmem-go/pkg/model"
)

// MetricType defines the distance metric for vector similarity.
type MetricType string

const (
	// MetricCosine uses cosine similarity.
	MetricCosine MetricType = "cosine"

	// MetricL2 uses Euclidean distance (L2 norm).
	MetricL2 MetricType = "l2"

	// MetricIP uses inner product (dot product).
	MetricIP MetricType = "ip"
)

// VectorIndex defines the interface for vector index backends.
//
// All backends (SQLite, PostgreSQL, OceanBase, chromem) implement it.
type VectorIndex interface {
	// Upsert stores the memory, replacing any record with the same ID.
	// The memory must carry an embedding.
	Upsert(ctx context.Context, memory *model.Memory) error

	// Search performs vector similarity search.
	//
	// Results are sorted by similarity (highest first) and have FinalScore
	// equal to SimilarityScore. Memories in results may omit embeddings.
	Search(ctx context.Context, embedding []float64, opts *SearchOptions) ([]*model.SearchResult, error)

	// Get returns the memory with its embedding, or model.ErrNotFound.
	Get(ctx context.Context, id string) (*model.Memory, error)

	// Delete removes a memory, or returns model.ErrNotFound.
	Delete(ctx context.Context, id string) error

	// UpdateMetadata changes payload fields without touching the vector.
	// Returns model.ErrNotFound if the memory does not exist.
	UpdateMetadata(ctx context.Context, id string, update *MetadataUpdate) error

	// List returns memories newest first with optional filtering and pagination.
	List(ctx context.Context, opts *ListOptions) ([]*model.Memory, error)

	// Count returns the number of memories owned by userID ("" = all users).
	Count(ctx context.Context, userID string) (int, error)

	// Close releases resources.
	Close() error
}

// SearchOptions contains the filters of a similarity search.
type SearchOptions struct {
	// UserID restricts results to one user. Empty means every user.
	UserID string

	// MemoryTypes restricts results to these types (empty = all).
	MemoryTypes []model.MemoryType

	// Tags keeps memories carrying at least one of these tags.
	Tags []string

	// Since keeps memories created at or after this time.
	Since *time.Time

	// Limit sets the maximum number of results to return.
	Limit int

	// MinScore drops results whose similarity is below it.
	MinScore float64
}

// Matches reports whether m passes the non-vector filters of the options.
// Backends that cannot push a filter down to the database apply it here.
func (o *SearchOptions) Matches(m *model.Memory) bool {
	if o == nil {
		return true
	}
	if o.UserID != "" && m.UserID != o.UserID {
		return false
	}
	if len(o.MemoryTypes) > 0 {
		ok := false
		for _, t := range o.MemoryTypes {
			if m.MemoryType == t {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(o.Tags) > 0 && !m.HasAnyTag(o.Tags) {
		return false
	}
	if o.Since != nil && m.Timestamp.Before(*o.Since) {
		return false
	}
	return true
}

// MetadataUpdate lists payload fields to change. Nil fields are left alone.
type MetadataUpdate struct {
	AccessCount     *int
	LastAccessed    *time.Time
	ImportanceScore *float64
	Tags            []string
}

// Apply writes the update onto m.
func (u *MetadataUpdate) Apply(m *model.Memory) {
	if u == nil {
		return
	}
	if u.AccessCount != nil {
		m.AccessCount = *u.AccessCount
	}
	if u.LastAccessed != nil {
		t := u.LastAccessed.UTC()
		m.LastAccessed = &t
	}
	if u.ImportanceScore != nil {
		m.ImportanceScore = *u.ImportanceScore
	}
	if u.Tags != nil {
		m.Tags = model.MergeTags(u.Tags)
	}
}

// ListOptions contains options for List operations.
type ListOptions struct {
	// UserID filters results to a specific user.
	UserID string

	// Limit sets the maximum number of results (0 = backend default of 100).
	Limit int

	// Offset sets the number of results to skip.
	Offset int
}

// EffectiveLimit returns the limit to apply.
func (o *ListOptions) EffectiveLimit() int {
	if o == nil || o.Limit <= 0 {
		return 100
	}
	return o.Limit
}
