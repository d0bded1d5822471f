// Package storage provides the vector index behind transcript retrieval.
// Three backends implement the same interface: an in-process map for tests
// and single-node setups, Postgres with pgvector, and Milvus. The backend
// is chosen by configuration at startup.
package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"videoqa/core"
)

// CollectionName returns the per-source collection/table partition name.
func CollectionName(sourceID string) string {
	return "transcript_" + sourceID
}

// VectorStore is the retrieval index. Collections are cheap per-source
// namespaces; dropping one must be safe when it does not exist.
type VectorStore interface {
	Upsert(ctx context.Context, collection string, chunks []core.Chunk) error
	Query(ctx context.Context, collection string, vector []float32, topK int) ([]core.Hit, error)
	DropCollection(ctx context.Context, collection string) error
	Count(ctx context.Context, collection string) (int, error)
	Close() error
}

// MemoryStore keeps chunks in process memory with brute-force cosine search.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]core.Chunk
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][]core.Chunk)}
}

func (m *MemoryStore) Upsert(ctx context.Context, collection string, chunks []core.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.collections[collection]
	byID := make(map[string]int, len(existing))
	for i, c := range existing {
		byID[c.ID] = i
	}
	for _, c := range chunks {
		if i, ok := byID[c.ID]; ok {
			existing[i] = c
			continue
		}
		byID[c.ID] = len(existing)
		existing = append(existing, c)
	}
	m.collections[collection] = existing
	return nil
}

func (m *MemoryStore) Query(ctx context.Context, collection string, vector []float32, topK int) ([]core.Hit, error) {
	if topK <= 0 {
		topK = 5
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	chunks, ok := m.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", collection, core.ErrNotFound)
	}
	hits := make([]core.Hit, 0, len(chunks))
	for _, c := range chunks {
		score := cosine(vector, c.Vector)
		hits = append(hits, core.Hit{Text: c.Text, Metadata: c.Metadata, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (m *MemoryStore) DropCollection(ctx context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, collection)
	return nil
}

func (m *MemoryStore) Count(ctx context.Context, collection string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection]), nil
}

func (m *MemoryStore) Close() error { return nil }

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
