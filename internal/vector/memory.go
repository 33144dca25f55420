package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hyperjump/kaiwa/internal/models"
)

// MemoryIndex is an in-memory vector index using brute-force cosine search.
// Chunks are grouped per document so an upsert or delete swaps a document's
// whole set in one critical section.
type MemoryIndex struct {
	dimensions int
	mu         sync.RWMutex
	docs       map[string][]*models.Chunk
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		docs:       make(map[string][]*models.Chunk),
	}, nil
}

// UpsertChunks replaces the chunk set for documentID with chunks.
// The previous set, if any, is discarded in the same critical section.
func (m *MemoryIndex) UpsertChunks(ctx context.Context, documentID string, chunks []*models.Chunk) error {
	if documentID == "" {
		return fmt.Errorf("document id is required")
	}
	set := make([]*models.Chunk, len(chunks))
	for i, ch := range chunks {
		if ch.DocumentID != documentID {
			return fmt.Errorf("chunk %s belongs to document %s, not %s", ch.ID, ch.DocumentID, documentID)
		}
		if len(ch.Embedding) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(ch.Embedding), m.dimensions)
		}
		cp := *ch
		cp.Embedding = make([]float32, m.dimensions)
		copy(cp.Embedding, ch.Embedding)
		set[i] = &cp
	}
	m.mu.Lock()
	m.docs[documentID] = set
	m.mu.Unlock()
	return nil
}

// DeleteDocument removes all chunks belonging to documentID.
func (m *MemoryIndex) DeleteDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	delete(m.docs, documentID)
	m.mu.Unlock()
	return nil
}

// Search returns the topK most similar chunks to query. Scores are cosine
// similarity clamped to [0,1] and non-increasing in rank order; exact ties
// are broken by lower chunk ordinal, then document id, so results are
// reproducible.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, topK int) ([]*Result, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if topK <= 0 || len(m.docs) == 0 {
		return nil, nil
	}
	var hits []*Result
	for _, set := range m.docs {
		for _, ch := range set {
			hits = append(hits, &Result{Chunk: ch, Score: CosineSimilarity(query, ch.Embedding)})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Chunk.Ordinal != hits[j].Chunk.Ordinal {
			return hits[i].Chunk.Ordinal < hits[j].Chunk.Ordinal
		}
		return hits[i].Chunk.DocumentID < hits[j].Chunk.DocumentID
	})
	if topK > len(hits) {
		topK = len(hits)
	}
	return hits[:topK], nil
}

// Size returns the number of chunks in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, set := range m.docs {
		n += len(set)
	}
	return n
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
