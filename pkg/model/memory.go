// Package model defines the data model shared by the memory engine, the
// vector index backends and the public client.
//
// A Memory is treated as a value: components that change a memory (merge,
// ranking, access statistics) work on a Clone and hand back the new value
// instead of mutating a record that other callers may hold.
package model

import (
	"strings"
	"time"
)

// MemoryType classifies a memory.
type MemoryType string

const (
	// MemoryTypeEpisodic is a record of a specific event or interaction.
	MemoryTypeEpisodic MemoryType = "episodic"

	// MemoryTypeSemantic is a durable fact or preference.
	MemoryTypeSemantic MemoryType = "semantic"
)

// ParseMemoryType parses a memory type case-insensitively.
func ParseMemoryType(s string) (MemoryType, error) {
	t := MemoryType(strings.ToLower(strings.TrimSpace(s)))
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

// Validate returns ErrValidation for anything other than episodic or semantic.
func (t MemoryType) Validate() error {
	switch t {
	case MemoryTypeEpisodic, MemoryTypeSemantic:
		return nil
	default:
		return Validationf("unknown memory type %q", string(t))
	}
}

// String implements fmt.Stringer.
func (t MemoryType) String() string {
	return string(t)
}

// Memory is the unit of persisted knowledge.
//
// Example:
//
//	memory := &model.Memory{
//	    ID:              "1781234567890",
//	    UserID:          "user_001",
//	    Content:         "User loves spicy Indian food",
//	    MemoryType:      model.MemoryTypeSemantic,
//	    ImportanceScore: 0.8,
//	    Tags:            []string{"food", "preference"},
//	}
type Memory struct {
	// ID is the opaque unique identifier. Immutable once assigned.
	ID string `json:"id"`

	// Content is the non-empty memory text.
	Content string `json:"content"`

	// Embedding is the vector representation. It is nil when the memory was
	// rebuilt from a search hit that omits vectors.
	Embedding []float64 `json:"embedding,omitempty"`

	// Timestamp is the creation time in UTC.
	Timestamp time.Time `json:"timestamp"`

	// MemoryType is episodic or semantic.
	MemoryType MemoryType `json:"memory_type"`

	// ImportanceScore is in [0,1]. It grows when duplicates are merged.
	ImportanceScore float64 `json:"importance_score"`

	// UserID is the owner scope.
	UserID string `json:"user_id"`

	// Tags are short labels. They grow on merge and never shrink.
	Tags []string `json:"tags"`

	// LastAccessed is when the memory was last retrieved or merged (nil if never).
	LastAccessed *time.Time `json:"last_accessed,omitempty"`

	// AccessCount is incremented on retrieval and on merge.
	AccessCount int `json:"access_count"`
}

// Validate checks the Memory invariants.
func (m *Memory) Validate() error {
	if m == nil {
		return Validationf("memory is nil")
	}
	if strings.TrimSpace(m.Content) == "" {
		return Validationf("memory %q has empty content", m.ID)
	}
	if err := m.MemoryType.Validate(); err != nil {
		return err
	}
	if err := ValidateImportance(m.ImportanceScore); err != nil {
		return err
	}
	if m.AccessCount < 0 {
		return Validationf("memory %q has negative access count %d", m.ID, m.AccessCount)
	}
	if m.UserID == "" {
		return Validationf("memory %q has no user id", m.ID)
	}
	return nil
}

// Clone returns a deep copy of m.
func (m *Memory) Clone() *Memory {
	if m == nil {
		return nil
	}
	c := *m
	if m.Embedding != nil {
		c.Embedding = append([]float64(nil), m.Embedding...)
	}
	if m.Tags != nil {
		c.Tags = append([]string(nil), m.Tags...)
	}
	if m.LastAccessed != nil {
		t := *m.LastAccessed
		c.LastAccessed = &t
	}
	return &c
}

// HasTag reports whether the memory carries tag.
func (m *Memory) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasAnyTag reports whether the memory carries at least one of tags.
func (m *Memory) HasAnyTag(tags []string) bool {
	for _, tag := range tags {
		if m.HasTag(tag) {
			return true
		}
	}
	return false
}

// MergeTags returns the union of the given tag lists, first-seen order,
// without duplicates or blank entries.
func MergeTags(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, list := range lists {
		for _, tag := range list {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	return out
}

// ValidateImportance returns ErrValidation when score is outside [0,1].
func ValidateImportance(score float64) error {
	if score < 0 || score > 1 || score != score {
		return Validationf("importance score %v outside [0,1]", score)
	}
	return nil
}

// StoreMetadata carries the caller-supplied attributes of a new observation.
type StoreMetadata struct {
	// UserID is required.
	UserID string

	// MemoryType is required.
	MemoryType MemoryType

	// ImportanceScore is optional; nil lets the engine estimate it.
	ImportanceScore *float64

	// Tags are optional labels.
	Tags []string
}

// Validate checks the metadata and content of a store request.
func (s StoreMetadata) Validate(content string) error {
	if strings.TrimSpace(content) == "" {
		return Validationf("content is empty")
	}
	if s.UserID == "" {
		return Validationf("user id is required")
	}
	if err := s.MemoryType.Validate(); err != nil {
		return err
	}
	if s.ImportanceScore != nil {
		if err := ValidateImportance(*s.ImportanceScore); err != nil {
			return err
		}
	}
	return nil
}
