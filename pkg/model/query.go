package model

import (
	"strings"
	"time"
)

// Query bounds.
const (
	DefaultTopK          = 5
	MaxTopK              = 50
	DefaultMinSimilarity = 0.7
)

// Query describes a retrieval request.
type Query struct {
	// QueryText is embedded and matched against stored memories.
	QueryText string `json:"query_text"`

	// UserID scopes the search unless AllowCrossUser is set.
	UserID string `json:"user_id"`

	// MemoryTypes restricts results to the given types (empty = all).
	MemoryTypes []MemoryType `json:"memory_types,omitempty"`

	// TopK is the maximum number of results, 1-50.
	TopK int `json:"top_k"`

	// MinSimilarity drops hits whose raw similarity is below it, 0-1.
	MinSimilarity float64 `json:"min_similarity"`

	// TimeWindowDays keeps only memories created within the last N days.
	TimeWindowDays *int `json:"time_window_days,omitempty"`

	// Tags keeps only memories carrying at least one of these tags.
	Tags []string `json:"tags,omitempty"`

	// AllowCrossUser disables the user_id filter.
	AllowCrossUser bool `json:"allow_cross_user"`
}

// NewQuery returns a query with the default TopK and MinSimilarity.
func NewQuery(userID, text string) Query {
	return Query{
		QueryText:     text,
		UserID:        userID,
		TopK:          DefaultTopK,
		MinSimilarity: DefaultMinSimilarity,
	}
}

// Validate checks the query bounds.
func (q Query) Validate() error {
	if strings.TrimSpace(q.QueryText) == "" {
		return Validationf("query text is empty")
	}
	if q.UserID == "" && !q.AllowCrossUser {
		return Validationf("user id is required unless cross-user search is allowed")
	}
	if q.TopK < 1 || q.TopK > MaxTopK {
		return Validationf("top_k %d outside [1,%d]", q.TopK, MaxTopK)
	}
	if q.MinSimilarity < 0 || q.MinSimilarity > 1 {
		return Validationf("min_similarity %v outside [0,1]", q.MinSimilarity)
	}
	for _, t := range q.MemoryTypes {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	if q.TimeWindowDays != nil && *q.TimeWindowDays < 0 {
		return Validationf("time_window_days %d is negative", *q.TimeWindowDays)
	}
	return nil
}

// Since returns the start of the time window relative to now, or nil when the
// query has no window.
func (q Query) Since(now time.Time) *time.Time {
	if q.TimeWindowDays == nil {
		return nil
	}
	since := now.UTC().Add(-time.Duration(*q.TimeWindowDays) * 24 * time.Hour)
	return &since
}

// SearchResult pairs a memory with its raw similarity and its ranked score.
//
// Indexes return results with FinalScore equal to SimilarityScore; the
// Ranker always recomputes FinalScore before results reach a caller.
type SearchResult struct {
	Memory          *Memory `json:"memory"`
	SimilarityScore float64 `json:"similarity_score"`
	FinalScore      float64 `json:"final_score"`
}

// Clone returns a deep copy of r.
func (r *SearchResult) Clone() *SearchResult {
	if r == nil {
		return nil
	}
	c := *r
	c.Memory = r.Memory.Clone()
	return &c
}
