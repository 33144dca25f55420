// Package storage provides the SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kaiwa/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		original_filename TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		page_count INTEGER NOT NULL DEFAULT 0,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		page_number INTEGER NOT NULL,
		ordinal INTEGER NOT NULL,
		content TEXT NOT NULL,
		embedding BLOB NOT NULL,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_document_ordinal ON chunks(document_id, ordinal);

	CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		sources TEXT NOT NULL DEFAULT '[]',
		is_error INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (session_id) REFERENCES chat_sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_session ON chat_messages(session_id);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateDocument inserts a document record.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	if !doc.Status.Valid() {
		return fmt.Errorf("invalid document status: %q", doc.Status)
	}
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, original_filename, file_size, page_count, chunk_count, status, error_message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.OriginalFilename, doc.FileSize, doc.PageCount, doc.ChunkCount,
		string(doc.Status), doc.ErrorMessage, doc.CreatedAt, doc.UpdatedAt,
	)
	return err
}

// GetDocument returns a document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, original_filename, file_size, page_count, chunk_count, status, error_message, created_at, updated_at
		 FROM documents WHERE id = ?`, id,
	)
	return scanDocument(row)
}

func scanDocument(row *sql.Row) (*models.Document, error) {
	var doc models.Document
	var status string
	err := row.Scan(&doc.ID, &doc.OriginalFilename, &doc.FileSize, &doc.PageCount,
		&doc.ChunkCount, &status, &doc.ErrorMessage, &doc.CreatedAt, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	doc.Status = models.DocumentStatus(status)
	return &doc, nil
}

// ListDocuments returns all documents, newest first.
func (s *SQLiteStorage) ListDocuments(ctx context.Context) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, original_filename, file_size, page_count, chunk_count, status, error_message, created_at, updated_at
		 FROM documents ORDER BY created_at DESC, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var doc models.Document
		var status string
		if err := rows.Scan(&doc.ID, &doc.OriginalFilename, &doc.FileSize, &doc.PageCount,
			&doc.ChunkCount, &status, &doc.ErrorMessage, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		doc.Status = models.DocumentStatus(status)
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document; its chunks go with it via cascade.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkProcessing transitions a document to the processing state.
func (s *SQLiteStorage) MarkProcessing(ctx context.Context, id string) error {
	return s.updateStatus(ctx, id,
		`UPDATE documents SET status = ?, error_message = '', updated_at = ? WHERE id = ?`,
		string(models.StatusProcessing), time.Now(), id)
}

// MarkCompleted transitions a document to completed with its final counts.
func (s *SQLiteStorage) MarkCompleted(ctx context.Context, id string, pageCount, chunkCount int) error {
	return s.updateStatus(ctx, id,
		`UPDATE documents SET status = ?, page_count = ?, chunk_count = ?, error_message = '', updated_at = ? WHERE id = ?`,
		string(models.StatusCompleted), pageCount, chunkCount, time.Now(), id)
}

// MarkFailed transitions a document to failed with a human-readable reason.
func (s *SQLiteStorage) MarkFailed(ctx context.Context, id string, reason string) error {
	return s.updateStatus(ctx, id,
		`UPDATE documents SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(models.StatusFailed), reason, time.Now(), id)
}

func (s *SQLiteStorage) updateStatus(ctx context.Context, id, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceChunks atomically swaps the stored chunk set for a document:
// existing chunks are deleted and the new set inserted in one transaction.
func (s *SQLiteStorage) ReplaceChunks(ctx context.Context, documentID string, chunks []*models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, document_id, page_number, ordinal, content, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, ch := range chunks {
		if ch.CreatedAt.IsZero() {
			ch.CreatedAt = now
		}
		if _, err := stmt.ExecContext(ctx, ch.ID, ch.DocumentID, ch.PageNumber, ch.Ordinal,
			ch.Content, encodeEmbedding(ch.Embedding), ch.CreatedAt); err != nil {
			return fmt.Errorf("insert chunk %s: %w", ch.ID, err)
		}
	}
	return tx.Commit()
}

// GetChunksByDocumentID returns all chunks for a document ordered by ordinal.
func (s *SQLiteStorage) GetChunksByDocumentID(ctx context.Context, documentID string) ([]*models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, page_number, ordinal, content, embedding, created_at
		 FROM chunks WHERE document_id = ? ORDER BY ordinal`,
		documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		var ch models.Chunk
		var blob []byte
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.PageNumber, &ch.Ordinal,
			&ch.Content, &blob, &ch.CreatedAt); err != nil {
			return nil, err
		}
		ch.Embedding = decodeEmbedding(blob)
		chunks = append(chunks, &ch)
	}
	return chunks, rows.Err()
}

// CreateSession inserts a chat session.
func (s *SQLiteStorage) CreateSession(ctx context.Context, session *models.ChatSession) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, created_at) VALUES (?, ?)`,
		session.ID, session.CreatedAt,
	)
	return err
}

// GetSession returns a session with its messages in insertion order.
func (s *SQLiteStorage) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at FROM chat_sessions WHERE id = ?`, id,
	).Scan(&session.ID, &session.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	// rowid preserves insertion order even when timestamps collide.
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, sources, is_error, created_at
		 FROM chat_messages WHERE session_id = ? ORDER BY rowid`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var msg models.ChatMessage
		var role, sourcesJSON string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content,
			&sourcesJSON, &msg.IsError, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Role = models.Role(role)
		if sourcesJSON != "" && sourcesJSON != "[]" {
			if err := json.Unmarshal([]byte(sourcesJSON), &msg.Sources); err != nil {
				return nil, fmt.Errorf("failed to unmarshal sources: %w", err)
			}
		}
		session.Messages = append(session.Messages, &msg)
	}
	return &session, rows.Err()
}

// ListSessions returns session summaries, newest first.
func (s *SQLiteStorage) ListSessions(ctx context.Context) ([]*models.SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.created_at, COUNT(m.id)
		 FROM chat_sessions s LEFT JOIN chat_messages m ON m.session_id = s.id
		 GROUP BY s.id ORDER BY s.created_at DESC, s.id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []*models.SessionSummary
	for rows.Next() {
		var sum models.SessionSummary
		if err := rows.Scan(&sum.ID, &sum.CreatedAt, &sum.MessageCount); err != nil {
			return nil, err
		}
		summaries = append(summaries, &sum)
	}
	return summaries, rows.Err()
}

// DeleteSession removes a session; its messages go with it via cascade.
func (s *SQLiteStorage) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendExchange inserts the user and assistant messages of one turn in a
// single transaction. Either both are durably recorded or neither is.
func (s *SQLiteStorage) AppendExchange(ctx context.Context, sessionID string, user, assistant *models.ChatMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, msg := range []*models.ChatMessage{user, assistant} {
		if !msg.Role.Valid() {
			return fmt.Errorf("invalid message role: %q", msg.Role)
		}
		msg.SessionID = sessionID
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = time.Now()
		}
		sourcesJSON := "[]"
		if len(msg.Sources) > 0 {
			data, err := json.Marshal(msg.Sources)
			if err != nil {
				return fmt.Errorf("failed to marshal sources: %w", err)
			}
			sourcesJSON = string(data)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_messages (id, session_id, role, content, sources, is_error, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, msg.SessionID, string(msg.Role), msg.Content, sourcesJSON, msg.IsError, msg.CreatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CountDocuments returns the number of document records.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

// CountChunks returns the number of stored chunks.
func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// encodeEmbedding packs a vector as little-endian float32 bytes for BLOB storage.
func encodeEmbedding(v []float32) []byte {
	const size = 4
	out := make([]byte, len(v)*size)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(f))
	}
	return out
}

// decodeEmbedding unpacks little-endian float32 bytes into a vector.
func decodeEmbedding(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
