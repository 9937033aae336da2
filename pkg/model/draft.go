package model

import "time"

// Draft is a memory candidate extracted from a conversation. It has no id,
// owner or embedding until it is bound to a user by the write path.
type Draft struct {
	Content         string     `json:"content"`
	MemoryType      MemoryType `json:"memory_type"`
	ImportanceScore float64    `json:"importance_score"`
	Tags            []string   `json:"tags"`
}

// Validate checks the draft fields.
func (d Draft) Validate() error {
	return StoreMetadata{
		UserID:          "draft",
		MemoryType:      d.MemoryType,
		ImportanceScore: &d.ImportanceScore,
	}.Validate(d.Content)
}

// ToMemory binds the draft to a user with a fresh id and creation time.
func (d Draft) ToMemory(userID, id string, now time.Time) *Memory {
	return &Memory{
		ID:              id,
		Content:         d.Content,
		Timestamp:       now.UTC(),
		MemoryType:      d.MemoryType,
		ImportanceScore: d.ImportanceScore,
		UserID:          userID,
		Tags:            MergeTags(d.Tags),
		AccessCount:     0,
	}
}

// Metadata returns the store metadata equivalent of the draft for userID.
func (d Draft) Metadata(userID string) StoreMetadata {
	score := d.ImportanceScore
	return StoreMetadata{
		UserID:          userID,
		MemoryType:      d.MemoryType,
		ImportanceScore: &score,
		Tags:            d.Tags,
	}
}
