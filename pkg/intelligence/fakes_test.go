package intelligence_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/powerbrain/brainmem-go/pkg/model"
	"github.com/powerbrain/brainmem-go/pkg/storage"
)

var errBoom = errors.New("boom")

// oracleEmbedder returns fixed vectors so tests control pairwise similarity.
type oracleEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float64
	err     error
	calls   int
}

func newOracle(vectors map[string][]float64) *oracleEmbedder {
	return &oracleEmbedder{vectors: vectors}
}

func (o *oracleEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return nil, o.err
	}
	vec, ok := o.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", text)
	}
	return append([]float64(nil), vec...), nil
}

func (o *oracleEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec, err := o.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (o *oracleEmbedder) Dimensions() int { return 3 }

func (o *oracleEmbedder) Close() error { return nil }

func (o *oracleEmbedder) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

// memIndex is an in-memory storage.VectorIndex with failure injection.
type memIndex struct {
	mu        sync.Mutex
	memories  map[string]*model.Memory
	ops       []string
	searchErr error
	upsertErr error
	deleteErr map[string]error
	vanished  map[string]bool
}

func newMemIndex() *memIndex {
	return &memIndex{
		memories:  make(map[string]*model.Memory),
		deleteErr: make(map[string]error),
		vanished:  make(map[string]bool),
	}
}

func (x *memIndex) Upsert(_ context.Context, m *model.Memory) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.upsertErr != nil {
		return x.upsertErr
	}
	if len(m.Embedding) == 0 {
		return model.Validationf("memory %s has no embedding", m.ID)
	}
	x.memories[m.ID] = m.Clone()
	x.ops = append(x.ops, "upsert:"+m.ID)
	return nil
}

func (x *memIndex) Search(_ context.Context, vec []float64, opts *storage.SearchOptions) ([]*model.SearchResult, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
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
		score := storage.CosineSimilarity(vec, m.Embedding)
		if score < opts.MinScore {
			continue
		}
		results = append(results, storage.NewHit(m.Clone(), score))
	}
	return storage.SortAndLimit(results, opts.Limit), nil
}

func (x *memIndex) Get(_ context.Context, id string) (*model.Memory, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	m, ok := x.memories[id]
	if !ok || x.vanished[id] {
		return nil, model.ErrNotFound
	}
	return m.Clone(), nil
}

func (x *memIndex) Delete(_ context.Context, id string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.deleteErr[id]; err != nil {
		return err
	}
	if _, ok := x.memories[id]; !ok {
		return model.ErrNotFound
	}
	delete(x.memories, id)
	x.ops = append(x.ops, "delete:"+id)
	return nil
}

func (x *memIndex) UpdateMetadata(_ context.Context, id string, update *storage.MetadataUpdate) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	m, ok := x.memories[id]
	if !ok {
		return model.ErrNotFound
	}
	update.Apply(m)
	x.ops = append(x.ops, "update:"+id)
	return nil
}

func (x *memIndex) List(_ context.Context, opts *storage.ListOptions) ([]*model.Memory, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	var out []*model.Memory
	for _, m := range x.memories {
		if opts != nil && opts.UserID != "" && m.UserID != opts.UserID {
			continue
		}
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (x *memIndex) Count(_ context.Context, userID string) (int, error) {
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

func (x *memIndex) Close() error { return nil }

func (x *memIndex) put(m *model.Memory) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.memories[m.ID] = m.Clone()
}

func (x *memIndex) get(id string) (*model.Memory, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	m, ok := x.memories[id]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

func (x *memIndex) operations() []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]string(nil), x.ops...)
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
