package intelligence

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/powerbrain/brainmem-go/pkg/embedder"
	"github.com/powerbrain/brainmem-go/pkg/idgen"
	"github.com/powerbrain/brainmem-go/pkg/model"
	"github.com/powerbrain/brainmem-go/pkg/storage"
)

// DedupConfig contains configuration for the Deduplicator.
type DedupConfig struct {
	// Threshold is the minimum similarity for two memories to be duplicates.
	// Near-paraphrases above it are merged. Default 0.85.
	Threshold float64 `json:"threshold"`

	// CandidateLimit is how many nearest neighbours are checked. Default 5.
	CandidateLimit int `json:"candidate_limit"`

	// ImportanceStep is added to the canonical importance per merged
	// duplicate. Default 0.05.
	ImportanceStep float64 `json:"importance_step"`
}

// DefaultDedupConfig returns the default deduplication settings.
func DefaultDedupConfig() DedupConfig {
	return DedupConfig{
		Threshold:      0.85,
		CandidateLimit: 5,
		ImportanceStep: 0.05,
	}
}

// DedupOption configures a Deduplicator.
type DedupOption func(*Deduplicator)

// WithDedupClock overrides the time source used for timestamps.
func WithDedupClock(clock Clock) DedupOption {
	return func(d *Deduplicator) {
		if clock != nil {
			d.now = clock
		}
	}
}

// WithDedupLogger sets the logger.
func WithDedupLogger(logger zerolog.Logger) DedupOption {
	return func(d *Deduplicator) {
		d.logger = logger.With().Str("component", "dedup").Logger()
	}
}

// Deduplicator is the write path of the engine. It keeps semantically
// redundant memories from accumulating by merging near-duplicates into a
// single canonical record.
//
// The workflow of Store:
//  1. Embed the content
//  2. Search the index for the nearest memories of the same user and type
//     with similarity >= threshold
//  3. No hits: insert a new memory
//  4. Hits: merge them with the new observation, upsert the canonical record
//     and delete the other duplicates
//
// Two concurrent Store calls for the same user can both see zero hits and
// both insert. Callers that need strict uniqueness serialize writes per user.
//
// Example usage:
//
//	dedup := NewDeduplicator(embedder, index, ids, DefaultDedupConfig())
//	memory, err := dedup.Store(ctx, "User loves spicy Indian food", model.StoreMetadata{
//	    UserID:     "user_001",
//	    MemoryType: model.MemoryTypeSemantic,
//	})
type Deduplicator struct {
	embedder embedder.Provider
	index    storage.VectorIndex
	ids      idgen.Generator
	config   DedupConfig
	now      Clock
	logger   zerolog.Logger
}

// NewDeduplicator creates a deduplicator. Zero config fields take their
// defaults.
func NewDeduplicator(emb embedder.Provider, index storage.VectorIndex, ids idgen.Generator, config DedupConfig, opts ...DedupOption) *Deduplicator {
	defaults := DefaultDedupConfig()
	if config.Threshold == 0 {
		config.Threshold = defaults.Threshold
	}
	if config.CandidateLimit <= 0 {
		config.CandidateLimit = defaults.CandidateLimit
	}
	if config.ImportanceStep == 0 {
		config.ImportanceStep = defaults.ImportanceStep
	}
	if ids == nil {
		ids = idgen.UUID{}
	}

	d := &Deduplicator{
		embedder: emb,
		index:    index,
		ids:      ids,
		config:   config,
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Config returns the effective configuration.
func (d *Deduplicator) Config() DedupConfig {
	return d.config
}

// Store embeds content and stores it with the configured threshold.
func (d *Deduplicator) Store(ctx context.Context, content string, meta model.StoreMetadata) (*model.Memory, error) {
	return d.StoreWithThreshold(ctx, content, meta, d.config.Threshold)
}

// StoreWithThreshold is Store with a per-call deduplication threshold.
//
// Returns:
//   - the new memory, or the canonical memory when duplicates were merged
//   - ErrValidation for malformed content, metadata or threshold
//   - ErrCollaboratorUnavailable when embedding or the index fails
func (d *Deduplicator) StoreWithThreshold(ctx context.Context, content string, meta model.StoreMetadata, threshold float64) (*model.Memory, error) {
	if err := meta.Validate(content); err != nil {
		return nil, err
	}
	if err := validateThreshold(threshold); err != nil {
		return nil, err
	}

	vec, err := d.embedder.Embed(ctx, content)
	if err != nil {
		return nil, model.Unavailable("embed", err)
	}
	if err := embedder.CheckVector(vec, 0); err != nil {
		return nil, model.Unavailable("embed", err)
	}

	return d.StoreEmbedded(ctx, content, vec, meta, threshold)
}

// StoreEmbedded runs the deduplication search and insert-or-merge for
// content whose embedding was already computed, e.g. by a batch call.
func (d *Deduplicator) StoreEmbedded(ctx context.Context, content string, vec []float64, meta model.StoreMetadata, threshold float64) (*model.Memory, error) {
	if err := meta.Validate(content); err != nil {
		return nil, err
	}
	if err := validateThreshold(threshold); err != nil {
		return nil, err
	}

	hits, err := d.index.Search(ctx, vec, &storage.SearchOptions{
		UserID:      meta.UserID,
		MemoryTypes: []model.MemoryType{meta.MemoryType},
		Limit:       d.config.CandidateLimit,
		MinScore:    threshold,
	})
	if err != nil {
		return nil, model.Unavailable("search duplicates", err)
	}

	duplicates := make([]*model.Memory, 0, len(hits))
	for _, hit := range hits {
		if hit == nil || hit.Memory == nil || hit.SimilarityScore < threshold {
			continue
		}
		duplicates = append(duplicates, hit.Memory)
	}

	if len(duplicates) > 0 {
		merged, err := d.persistMerge(ctx, duplicates, content, vec, meta)
		if err != nil || merged != nil {
			return merged, err
		}
		// Every duplicate vanished between search and merge.
	}

	return d.insert(ctx, content, vec, meta)
}

func (d *Deduplicator) insert(ctx context.Context, content string, vec []float64, meta model.StoreMetadata) (*model.Memory, error) {
	importance, err := resolveImportance(content, meta)
	if err != nil {
		return nil, err
	}

	memory := &model.Memory{
		ID:              d.ids.NewID(),
		Content:         content,
		Embedding:       append([]float64(nil), vec...),
		Timestamp:       d.now().UTC(),
		MemoryType:      meta.MemoryType,
		ImportanceScore: importance,
		UserID:          meta.UserID,
		Tags:            model.MergeTags(meta.Tags),
	}

	if err := d.index.Upsert(ctx, memory); err != nil {
		return nil, model.Unavailable("insert memory", err)
	}

	d.logger.Debug().
		Str("memory_id", memory.ID).
		Str("user_id", memory.UserID).
		Msg("stored new memory")
	return memory, nil
}

// persistMerge re-reads the duplicates, merges them and writes the result.
// It returns (nil, nil) when none of the duplicates exist any more.
func (d *Deduplicator) persistMerge(ctx context.Context, hits []*model.Memory, content string, vec []float64, meta model.StoreMetadata) (*model.Memory, error) {
	current := make([]*model.Memory, 0, len(hits))
	for _, hit := range hits {
		m, err := d.index.Get(ctx, hit.ID)
		if errors.Is(err, model.ErrNotFound) {
			d.logger.Debug().Str("memory_id", hit.ID).Msg("duplicate vanished before merge")
			continue
		}
		if err != nil {
			return nil, model.Unavailable("load duplicate", err)
		}
		current = append(current, m)
	}
	if len(current) == 0 {
		return nil, nil
	}

	canonical, err := d.MergeDuplicates(current, content, meta.ImportanceScore, meta.Tags)
	if err != nil {
		return nil, err
	}
	if len(canonical.Embedding) == 0 {
		canonical.Embedding = append([]float64(nil), vec...)
	}

	// The canonical record must be safe before any duplicate is removed.
	if err := d.index.Upsert(ctx, canonical); err != nil {
		return nil, model.Unavailable("upsert canonical", err)
	}

	var deleteErrs []error
	for _, m := range current {
		if m.ID == canonical.ID {
			continue
		}
		err := d.index.Delete(ctx, m.ID)
		if err == nil || errors.Is(err, model.ErrNotFound) {
			continue
		}
		deleteErrs = append(deleteErrs, fmt.Errorf("delete duplicate %s: %w", m.ID, err))
	}
	if len(deleteErrs) > 0 {
		d.logger.Warn().
			Str("canonical_id", canonical.ID).
			Int("failed", len(deleteErrs)).
			Msg("merge left stale duplicates")
		return nil, model.Unavailable("delete duplicates", errors.Join(deleteErrs...))
	}

	d.logger.Debug().
		Str("canonical_id", canonical.ID).
		Int("merged", len(current)).
		Int("access_count", canonical.AccessCount).
		Msg("merged duplicate memories")
	return canonical, nil
}

// MergeDuplicates folds duplicates and a new observation into one canonical
// memory. It is pure: the inputs are not modified.
//
// Canonical selection: highest importance, then longest content, then the
// earliest position in duplicates (retrieval order).
//
// Aggregation onto a copy of the canonical:
//   - tags: union of the canonical, every duplicate and newTags
//   - access count: sum over duplicates, plus one for the merge itself
//   - last accessed: now (UTC)
//   - importance: min(canonical + step*len(duplicates), 1.0)
//
// The canonical content is kept and newContent is not substituted for it.
// newImportance is only range-checked; the step bump is what raises the
// canonical importance.
func (d *Deduplicator) MergeDuplicates(duplicates []*model.Memory, newContent string, newImportance *float64, newTags []string) (*model.Memory, error) {
	if len(duplicates) == 0 {
		return nil, model.Validationf("no duplicates to merge")
	}
	if newImportance != nil {
		if err := model.ValidateImportance(*newImportance); err != nil {
			return nil, err
		}
	}
	best := -1
	for i, m := range duplicates {
		if m == nil {
			return nil, model.Validationf("duplicate %d is nil", i)
		}
		if best < 0 || outranks(m, duplicates[best]) {
			best = i
		}
	}

	canonical := duplicates[best].Clone()

	tagLists := make([][]string, 0, len(duplicates)+2)
	tagLists = append(tagLists, canonical.Tags)
	accessCount := 0
	for _, m := range duplicates {
		tagLists = append(tagLists, m.Tags)
		accessCount += m.AccessCount
	}
	tagLists = append(tagLists, newTags)

	now := d.now().UTC()
	canonical.Tags = model.MergeTags(tagLists...)
	canonical.AccessCount = accessCount + 1
	canonical.LastAccessed = &now
	canonical.ImportanceScore = math.Min(canonical.ImportanceScore+d.config.ImportanceStep*float64(len(duplicates)), 1.0)

	return canonical, nil
}

// outranks reports whether a should replace b as the canonical candidate.
// Equal candidates keep b, so the earlier one wins.
func outranks(a, b *model.Memory) bool {
	if a.ImportanceScore != b.ImportanceScore {
		return a.ImportanceScore > b.ImportanceScore
	}
	return utf8.RuneCountInString(a.Content) > utf8.RuneCountInString(b.Content)
}

func resolveImportance(content string, meta model.StoreMetadata) (float64, error) {
	if meta.ImportanceScore != nil {
		return *meta.ImportanceScore, nil
	}
	return EstimateImportance(content, meta.MemoryType)
}

func validateThreshold(threshold float64) error {
	if threshold < 0 || threshold > 1 || math.IsNaN(threshold) {
		return model.Validationf("deduplication threshold %v outside [0,1]", threshold)
	}
	return nil
}
