// Package vector provides an in-memory vector index with per-document
// atomic replacement and cosine similarity search.
package vector

import (
	"context"

	"github.com/hyperjump/kaiwa/internal/models"
)

// Index stores chunk vectors keyed by document and answers nearest-neighbor queries.
type Index interface {
	// UpsertChunks replaces the full chunk set for a document. A concurrent
	// Search sees either the previous set or the new one, never a mixture.
	UpsertChunks(ctx context.Context, documentID string, chunks []*models.Chunk) error
	// DeleteDocument removes all chunks for a document. A Search begun after
	// DeleteDocument returns never observes the document's chunks.
	DeleteDocument(ctx context.Context, documentID string) error
	// Search returns at most topK chunks ordered by descending similarity,
	// ties broken by lower chunk ordinal, then document id.
	Search(ctx context.Context, query []float32, topK int) ([]*Result, error)
	Size() int
	Close() error
}

// Result is a single search hit: the chunk and its similarity to the query in [0,1].
type Result struct {
	Chunk *models.Chunk
	Score float64
}
