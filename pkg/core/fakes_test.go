package core_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/powerbrain/brainmem-go/pkg/llm"
	"github.com/powerbrain/brainmem-go/pkg/model"
	"github.com/powerbrain/brainmem-go/pkg/storage"
)

var errBoom = errors.New("boom")

// countingEmbedder wraps the hashing embedder and counts calls.
type countingEmbedder struct {
	mu     sync.Mutex
	embed  func(text string) []float64
	calls  int
	err    error
	closed bool
}

func (e *countingEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.embed(text), nil
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *countingEmbedder) Dimensions() int { return 3 }

func (e *countingEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *countingEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// unitEmbedder maps every text to the same vector, so every stored memory is
// a candidate and the fake index decides the similarity.
func unitEmbedder() *countingEmbedder {
	return &countingEmbedder{embed: func(string) []float64 { return []float64{1, 0, 0} }}
}

// fakeIndex is an in-memory storage.VectorIndex. Similarities come from
// scores when set for an id, otherwise from cosine similarity.
type fakeIndex struct {
	mu         sync.Mutex
	memories   map[string]*model.Memory
	scores     map[string]float64
	lastSearch *storage.SearchOptions
	searchErr  error
	updateErr  error
	closeErr   error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		memories: make(map[string]*model.Memory),
		scores:   make(map[string]float64),
	}
}

func (x *fakeIndex) Upsert(_ context.Context, m *model.Memory) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if len(m.Embedding) == 0 {
		return model.Validationf("memory %s has no embedding", m.ID)
	}
	x.memories[m.ID] = m.Clone()
	return nil
}

func (x *fakeIndex) Search(_ context.Context, vec []float64, opts *storage.SearchOptions) ([]*model.SearchResult, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	copied := *opts
	x.lastSearch = &copied
	if x.searchErr != nil {
		return nil, x.searchErr
	}

	ids := make([]string, 0, len(x.memories))
	for id := range x.memories {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var results []*model.SearchResult
	for _, id := range ids {
		m := x.memories[id]
		if !opts.Matches(m) {
			continue
		}
		score, ok := x.scores[id]
		if !ok {
			score = storage.CosineSimilarity(vec, m.Embedding)
		}
		if score < opts.MinScore {
			continue
		}
		hit := m.Clone()
		hit.Embedding = nil
		results = append(results, storage.NewHit(hit, score))
	}
	return storage.SortAndLimit(results, opts.Limit), nil
}

func (x *fakeIndex) Get(_ context.Context, id string) (*model.Memory, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	m, ok := x.memories[id]
	if !ok {
		return nil, fmt.Errorf("Get: %w", model.ErrNotFound)
	}
	return m.Clone(), nil
}

func (x *fakeIndex) Delete(_ context.Context, id string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.memories[id]; !ok {
		return fmt.Errorf("Delete: %w", model.ErrNotFound)
	}
	delete(x.memories, id)
	return nil
}

func (x *fakeIndex) UpdateMetadata(_ context.Context, id string, update *storage.MetadataUpdate) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.updateErr != nil {
		return x.updateErr
	}
	m, ok := x.memories[id]
	if !ok {
		return model.ErrNotFound
	}
	update.Apply(m)
	return nil
}

func (x *fakeIndex) List(_ context.Context, opts *storage.ListOptions) ([]*model.Memory, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	var out []*model.Memory
	for _, m := range x.memories {
		if opts.UserID != "" && m.UserID != opts.UserID {
			continue
		}
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if opts.Offset >= len(out) {
		return []*model.Memory{}, nil
	}
	out = out[opts.Offset:]
	if limit := opts.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (x *fakeIndex) Count(_ context.Context, userID string) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	n := 0
	for _, m := range x.memories {
		if userID == "" || m.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (x *fakeIndex) Close() error { return x.closeErr }

func (x *fakeIndex) put(m *model.Memory, score float64) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.memories[m.ID] = m.Clone()
	x.scores[m.ID] = score
}

func (x *fakeIndex) get(id string) *model.Memory {
	x.mu.Lock()
	defer x.mu.Unlock()
	if m, ok := x.memories[id]; ok {
		return m.Clone()
	}
	return nil
}

func (x *fakeIndex) search() *storage.SearchOptions {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.lastSearch
}

// scriptedLLM answers every request with the same response.
type scriptedLLM struct {
	response string
	err      error
	closed   bool
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return s.GenerateWithMessages(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts...)
}

func (s *scriptedLLM) GenerateWithMessages(context.Context, []llm.Message, ...llm.GenerateOption) (string, error) {
	return s.response, s.err
}

func (s *scriptedLLM) Close() error {
	s.closed = true
	return nil
}

// seqIDs hands out m1, m2, ...
type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("m%d", s.n)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
