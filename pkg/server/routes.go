package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/powerbrain/brainmem-go/pkg/core"
	"github.com/powerbrain/brainmem-go/pkg/extractor"
	"github.com/powerbrain/brainmem-go/pkg/model"
)

type storeRequest struct {
	UserID         string   `json:"user_id"`
	Content        string   `json:"content"`
	MemoryType     string   `json:"memory_type"`
	Importance     *float64 `json:"importance_score"`
	Tags           []string `json:"tags"`
	DedupThreshold *float64 `json:"dedup_threshold"`
}

type searchRequest struct {
	Query          string   `json:"query"`
	UserID         string   `json:"user_id"`
	MemoryTypes    []string `json:"memory_types"`
	TopK           int      `json:"top_k"`
	MinSimilarity  *float64 `json:"min_similarity"`
	TimeWindowDays *int     `json:"time_window_days"`
	Tags           []string `json:"tags"`
	AllowCrossUser bool     `json:"allow_cross_user"`
}

type extractRequest struct {
	UserID           string `json:"user_id"`
	UserMessage      string `json:"user_message"`
	AssistantMessage string `json:"assistant_message"`
}

type lineFailure struct {
	Line  int    `json:"line"`
	Text  string `json:"text"`
	Error string `json:"error"`
}

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	var req storeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}

	opts := []core.StoreOption{core.WithUserID(req.UserID), core.WithTags(req.Tags...)}
	if req.MemoryType != "" {
		memoryType, err := model.ParseMemoryType(req.MemoryType)
		if err != nil {
			s.writeError(w, err)
			return
		}
		opts = append(opts, core.WithMemoryType(memoryType))
	}
	if req.Importance != nil {
		opts = append(opts, core.WithImportance(*req.Importance))
	}
	if req.DedupThreshold != nil {
		opts = append(opts, core.WithDedupThreshold(*req.DedupThreshold))
	}

	memory, err := s.client.Store(r.Context(), req.Content, opts...)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view(memory))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}

	q := s.client.NewQuery(req.UserID, req.Query)
	if req.TopK != 0 {
		q.TopK = req.TopK
	}
	if req.MinSimilarity != nil {
		q.MinSimilarity = *req.MinSimilarity
	}
	for _, t := range req.MemoryTypes {
		memoryType, err := model.ParseMemoryType(t)
		if err != nil {
			s.writeError(w, err)
			return
		}
		q.MemoryTypes = append(q.MemoryTypes, memoryType)
	}
	q.TimeWindowDays = req.TimeWindowDays
	q.Tags = req.Tags
	q.AllowCrossUser = req.AllowCrossUser

	results, err := s.client.Retrieve(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]*model.SearchResult, 0, len(results))
	for _, res := range results {
		out = append(out, &model.SearchResult{
			Memory:          view(res.Memory),
			SimilarityScore: res.SimilarityScore,
			FinalScore:      res.FinalScore,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	memory, err := s.client.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view(memory))
}

func (s *Server) handleForget(w http.ResponseWriter, r *http.Request) {
	if err := s.client.Forget(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset")
	if !ok {
		return
	}

	memories, err := s.client.List(r.Context(), userID, limit, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	total, err := s.client.Count(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]*model.Memory, 0, len(memories))
	for _, m := range memories {
		out = append(out, view(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"memories": out,
		"total":    total,
	})
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		badRequest(w, "q parameter required")
		return
	}
	maxMemories, ok := queryInt(w, r, "max")
	if !ok {
		return
	}

	text, err := s.client.BuildContext(r.Context(), chi.URLParam(r, "userID"), query, maxMemories)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"context": text})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}

	stored, results, err := s.client.ExtractAndStore(r.Context(), req.UserID, req.UserMessage, req.AssistantMessage)
	if err != nil && len(stored) == 0 {
		s.writeError(w, err)
		return
	}

	memories := make([]*model.Memory, 0, len(stored))
	for _, m := range stored {
		memories = append(memories, view(m))
	}
	failures := make([]lineFailure, 0)
	for _, f := range extractor.Failures(results) {
		failures = append(failures, lineFailure{Line: f.Line, Text: f.Text, Error: f.Err.Error()})
	}

	resp := map[string]any{
		"stored":   memories,
		"failures": failures,
	}
	status := http.StatusOK
	if err != nil {
		// Some drafts were stored before the write path failed.
		status = http.StatusMultiStatus
		resp["error"] = err.Error()
		s.logger.Warn().Err(err).Int("stored", len(memories)).Msg("extraction stored partially")
	}
	writeJSON(w, status, resp)
}

// view strips the embedding from a memory returned to API callers.
func view(m *model.Memory) *model.Memory {
	if m == nil {
		return nil
	}
	c := m.Clone()
	c.Embedding = nil
	return c
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		badRequest(w, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
