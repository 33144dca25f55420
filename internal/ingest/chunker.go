// Package ingest turns uploaded PDFs into embedded, searchable chunks and
// owns the document lifecycle.
package ingest

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kaiwa/internal/models"
)

// Chunker splits page text into overlapping word-based chunks.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap (in words).
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// ChunkPages splits each page's text into overlapping windows. Ordinals are
// assigned across the whole document; page numbers are preserved per chunk.
// Chunk IDs are derived from the document id and ordinal so re-ingesting the
// same input yields the same ids.
func (c *Chunker) ChunkPages(docID string, pages []models.PageText) []*models.Chunk {
	var chunks []*models.Chunk
	ordinal := 0
	for _, page := range pages {
		for _, text := range c.split(page.Text) {
			chunks = append(chunks, &models.Chunk{
				ID:         fmt.Sprintf("%s_%d", docID, ordinal),
				DocumentID: docID,
				PageNumber: page.Number,
				Ordinal:    ordinal,
				Content:    text,
			})
			ordinal++
		}
	}
	return chunks
}

// split returns the overlapping word windows of text. Empty or
// whitespace-only text yields nothing.
func (c *Chunker) split(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	step := c.chunkSize - c.chunkOverlap
	if step <= 0 {
		step = 1
	}
	var parts []string
	for i := 0; i < len(words); i += step {
		end := i + c.chunkSize
		if end > len(words) {
			end = len(words)
		}
		parts = append(parts, strings.Join(words[i:end], " "))
		if end >= len(words) {
			break
		}
	}
	return parts
}
