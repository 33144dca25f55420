package ingest

import (
	"strings"
	"testing"

	"github.com/hyperjump/kaiwa/internal/models"
)

func TestChunker_ChunkPages(t *testing.T) {
	c := NewChunker(3, 1)
	pages := []models.PageText{
		{Number: 1, Text: "one two three four five"},
		{Number: 2, Text: "six seven eight"},
	}
	chunks := c.ChunkPages("doc1", pages)
	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.DocumentID != "doc1" {
			t.Errorf("chunk %d DocumentID=%s", i, ch.DocumentID)
		}
		if ch.Ordinal != i {
			t.Errorf("chunk %d Ordinal=%d", i, ch.Ordinal)
		}
		if ch.ID == "" {
			t.Error("chunk ID should be set")
		}
	}
	last := chunks[len(chunks)-1]
	if last.PageNumber != 2 {
		t.Errorf("last chunk page: got %d, want 2", last.PageNumber)
	}
	if !strings.Contains(last.Content, "eight") {
		t.Errorf("last chunk should contain the final word, got %q", last.Content)
	}
}

func TestChunker_Overlap(t *testing.T) {
	c := NewChunker(4, 2)
	chunks := c.ChunkPages("d", []models.PageText{{Number: 1, Text: "a b c d e f"}})
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Content != "a b c d" {
		t.Errorf("first chunk: %q", chunks[0].Content)
	}
	if chunks[1].Content != "c d e f" {
		t.Errorf("second chunk should overlap by 2 words: %q", chunks[1].Content)
	}
}

func TestChunker_Deterministic(t *testing.T) {
	c := NewChunker(3, 1)
	pages := []models.PageText{{Number: 1, Text: "one two three four five"}}
	first := c.ChunkPages("doc1", pages)
	second := c.ChunkPages("doc1", pages)
	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("chunk %d id differs across runs: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
}

func TestChunker_EmptyPages(t *testing.T) {
	c := NewChunker(5, 1)
	chunks := c.ChunkPages("d", []models.PageText{
		{Number: 1, Text: "   \n\t  "},
		{Number: 2, Text: ""},
	})
	if len(chunks) != 0 {
		t.Errorf("pages without text should yield no chunks, got %d", len(chunks))
	}
}

func TestChunker_OverlapAtLeastSize(t *testing.T) {
	// Overlap >= size must still make forward progress.
	c := NewChunker(2, 2)
	chunks := c.ChunkPages("d", []models.PageText{{Number: 1, Text: "a b c d"}})
	if len(chunks) == 0 || len(chunks) > 4 {
		t.Fatalf("unexpected chunk count %d", len(chunks))
	}
}
