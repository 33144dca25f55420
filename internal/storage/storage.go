// Package storage defines persistence for documents, chunks, and chat sessions.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kaiwa/internal/models"
)

// ErrNotFound is returned when a document or session id does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines document, chunk, and chat persistence operations.
type Storage interface {
	// Document operations
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context) ([]*models.Document, error)
	// DeleteDocument removes the document and, via cascade, its chunks.
	DeleteDocument(ctx context.Context, id string) error

	// Status transitions
	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string, pageCount, chunkCount int) error
	// MarkFailed records the failure reason. The stored chunk_count is left
	// untouched (frozen at the last success, or zero).
	MarkFailed(ctx context.Context, id string, reason string) error

	// Chunk operations. ReplaceChunks deletes any existing chunk set for the
	// document and inserts the new one in a single transaction.
	ReplaceChunks(ctx context.Context, documentID string, chunks []*models.Chunk) error
	GetChunksByDocumentID(ctx context.Context, documentID string) ([]*models.Chunk, error)

	// Session operations
	CreateSession(ctx context.Context, session *models.ChatSession) error
	// GetSession returns the session with its messages in insertion order.
	GetSession(ctx context.Context, id string) (*models.ChatSession, error)
	ListSessions(ctx context.Context) ([]*models.SessionSummary, error)
	// DeleteSession removes the session and, via cascade, its messages.
	DeleteSession(ctx context.Context, id string) error
	// AppendExchange appends a user/assistant message pair in a single
	// transaction so a conversational turn is recorded entirely or not at all.
	AppendExchange(ctx context.Context, sessionID string, user, assistant *models.ChatMessage) error

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
