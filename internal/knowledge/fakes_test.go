package knowledge

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"supportwatch/internal/ai"
	"supportwatch/internal/models"
)

func strPtr(s string) *string { return &s }

func entry(id int64, question, answer string, keywords ...string) models.KnowledgeEntry {
	return models.KnowledgeEntry{
		ID:              id,
		Question:        question,
		Answer:          answer,
		Keywords:        keywords,
		IsActive:        true,
		EmbeddingStatus: models.EmbeddingStatusPending,
	}
}

// memStore is an in-memory Store and EmbeddingStore
type memStore struct {
	mu      sync.Mutex
	entries map[int64]models.KnowledgeEntry
	logs    []models.AutoReplyLog
	usage   map[int64]int
	failed  map[int64]string
	ready   map[int64]string

	listErr error
	logErr  error
}

func newMemStore(entries ...models.KnowledgeEntry) *memStore {
	s := &memStore{
		entries: make(map[int64]models.KnowledgeEntry),
		usage:   make(map[int64]int),
		failed:  make(map[int64]string),
		ready:   make(map[int64]string),
	}
	for _, e := range entries {
		s.entries[e.ID] = e
	}
	return s
}

func (s *memStore) sorted() []models.KnowledgeEntry {
	out := make([]models.KnowledgeEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) ListActiveKnowledge(_ context.Context, categories []string) ([]models.KnowledgeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	allowed := categorySet(categories)
	var out []models.KnowledgeEntry
	for _, e := range s.sorted() {
		if e.IsActive && allowed(e.Category) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) ListKnowledgeByIDs(_ context.Context, ids []int64) ([]models.KnowledgeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.KnowledgeEntry
	for _, id := range ids {
		if e, ok := s.entries[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) IncrementKnowledgeUsage(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.usage[id]++
	}
	return nil
}

func (s *memStore) InsertAutoReplyLog(_ context.Context, entry *models.AutoReplyLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logErr != nil {
		return s.logErr
	}
	entry.ID = int64(len(s.logs) + 1)
	s.logs = append(s.logs, *entry)
	return nil
}

func (s *memStore) ListKnowledgeForEmbedding(_ context.Context, family string, all bool) ([]models.KnowledgeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []models.KnowledgeEntry
	for _, e := range s.sorted() {
		if !e.IsActive {
			continue
		}
		if all || e.EmbeddingStatus != models.EmbeddingStatusReady || e.EmbeddingFamily == nil || *e.EmbeddingFamily != family {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) MarkEmbeddingReady(_ context.Context, id int64, family string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[id]
	e.EmbeddingStatus = models.EmbeddingStatusReady
	e.EmbeddingFamily = &family
	s.entries[id] = e
	s.ready[id] = family
	return nil
}

func (s *memStore) MarkEmbeddingFailed(_ context.Context, id int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[id]
	e.EmbeddingStatus = models.EmbeddingStatusFailed
	s.entries[id] = e
	s.failed[id] = reason
	return nil
}

func (s *memStore) lastLog() models.AutoReplyLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logs[len(s.logs)-1]
}

// memIndex scores stored vectors by cosine similarity per family
type memIndex struct {
	mu        sync.Mutex
	vectors   map[string]map[int64]EntryVector
	queries   []VectorQuery
	searchErr error
	upsertErr error
	upserts   int
}

func newMemIndex() *memIndex {
	return &memIndex{vectors: make(map[string]map[int64]EntryVector)}
}

func (m *memIndex) put(family string, id int64, vector ...float32) {
	if m.vectors[family] == nil {
		m.vectors[family] = make(map[int64]EntryVector)
	}
	m.vectors[family][id] = EntryVector{EntryID: id, Vector: vector}
}

func (m *memIndex) Upsert(_ context.Context, family string, vectors []EntryVector) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.upsertErr != nil {
		return m.upsertErr
	}
	for _, v := range vectors {
		if m.vectors[family] == nil {
			m.vectors[family] = make(map[int64]EntryVector)
		}
		m.vectors[family][v.EntryID] = v
	}
	return nil
}

func (m *memIndex) Search(_ context.Context, q VectorQuery) ([]VectorHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, q)
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	var hits []VectorHit
	for id, v := range m.vectors[q.Family] {
		sim := cosineSimilarity(q.Vector, v.Vector)
		if sim >= q.Threshold {
			hits = append(hits, VectorHit{EntryID: id, Similarity: sim})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// fakeBackend records embedding and synthesis calls
type fakeBackend struct {
	mu          sync.Mutex
	family      string
	fallback    bool
	embed       func(texts []string) ([][]float32, error)
	synthesize  func(query string, entries []ai.KnowledgeSnippet) (ai.Synthesis, error)
	embedCalls  int
	familyCalls []string
	synthCalls  [][]ai.KnowledgeSnippet
}

func (f *fakeBackend) Embed(_ context.Context, texts []string) (ai.Embedding, error) {
	f.mu.Lock()
	f.embedCalls++
	f.mu.Unlock()
	if f.embed == nil {
		return ai.Embedding{}, errors.New("no embedder")
	}
	vectors, err := f.embed(texts)
	if err != nil {
		return ai.Embedding{}, err
	}
	return ai.Embedding{Vectors: vectors, Family: f.family, Backend: ai.BackendOpenAI, Fallback: f.fallback}, nil
}

func (f *fakeBackend) EmbedFamily(ctx context.Context, family string, texts []string) (ai.Embedding, error) {
	f.mu.Lock()
	f.familyCalls = append(f.familyCalls, family)
	f.mu.Unlock()
	if family != f.family {
		return ai.Embedding{}, ai.ErrNoBackends
	}
	vectors, err := f.embed(texts)
	if err != nil {
		return ai.Embedding{}, err
	}
	return ai.Embedding{Vectors: vectors, Family: family, Backend: ai.BackendOpenAI}, nil
}

func (f *fakeBackend) SynthesizeAnswer(_ context.Context, query string, entries []ai.KnowledgeSnippet) (ai.Synthesis, ai.BackendType, error) {
	f.mu.Lock()
	f.synthCalls = append(f.synthCalls, entries)
	f.mu.Unlock()
	if f.synthesize == nil {
		return ai.Synthesis{}, "", ai.ErrAllBackendsExhausted
	}
	s, err := f.synthesize(query, entries)
	if err != nil {
		return ai.Synthesis{}, "", err
	}
	return s, ai.BackendAzure, nil
}

// constantEmbed returns the same vector for every text
func constantEmbed(vector ...float32) func([]string) ([][]float32, error) {
	return func(texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = vector
		}
		return out, nil
	}
}

type trackedSearch struct {
	source    string
	matched   bool
	generated bool
}

type fakeTracker struct {
	mu       sync.Mutex
	searches []trackedSearch
}

func (f *fakeTracker) TrackKnowledgeSearch(source string, matched, generated bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, trackedSearch{source, matched, generated})
	return nil
}
