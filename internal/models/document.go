// Package models defines core data structures for documents, chunks, chat sessions, and queries.
package models

import "time"

// DocumentStatus is the processing state of an uploaded document.
type DocumentStatus string

// Document lifecycle states. Transitions are one-directional:
// pending -> processing -> completed | failed. A failed document is retried
// by uploading again, which creates a new record.
const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// Valid reports whether s is one of the known document states.
func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Document is the metadata record for an uploaded PDF. ChunkCount is
// authoritative only when Status is completed; it is zero while
// pending/processing and frozen at the last success on failed.
type Document struct {
	ID               string         `json:"id" db:"id"`
	OriginalFilename string         `json:"original_filename" db:"original_filename"`
	FileSize         int64          `json:"file_size" db:"file_size"`
	PageCount        int            `json:"page_count" db:"page_count"`
	ChunkCount       int            `json:"chunk_count" db:"chunk_count"`
	Status           DocumentStatus `json:"status" db:"status"`
	ErrorMessage     string         `json:"error_message,omitempty" db:"error_message"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at" db:"updated_at"`
}

// Chunk is a bounded passage of document text, the retrieval unit.
// Ordinal is the chunk's position within its document; PageNumber is the
// 1-based page the passage was extracted from.
type Chunk struct {
	ID         string    `json:"id" db:"id"`
	DocumentID string    `json:"document_id" db:"document_id"`
	PageNumber int       `json:"page_number" db:"page_number"`
	Ordinal    int       `json:"ordinal" db:"ordinal"`
	Content    string    `json:"content" db:"content"`
	Embedding  []float32 `json:"-" db:"-"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// PageText is the extracted text of a single PDF page.
type PageText struct {
	Number int
	Text   string
}
