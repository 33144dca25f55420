package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/config"
	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/extract"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/storage"
	"github.com/hyperjump/kaiwa/internal/vector"
)

// Upload validation errors. Both reject the upload before any document
// record is created.
var (
	ErrNotPDF   = errors.New("only PDF files are supported")
	ErrTooLarge = errors.New("file exceeds the maximum upload size")
)

// Pipeline orchestrates extraction, chunking, embedding, and indexing, and
// owns document lifecycle state. Ingestion runs for distinct documents may
// execute concurrently; runs for the same document id are serialized.
type Pipeline struct {
	storage    storage.Storage
	embedder   embedding.Embedder
	index      vector.Index
	extractor  extract.PageExtractor
	chunker    *Chunker
	maxBytes   int64
	uploadPath string
	logger     *zap.Logger

	mu       sync.Mutex
	docLocks map[string]*sync.Mutex
}

// NewPipeline creates an ingestion pipeline with the given dependencies.
func NewPipeline(
	store storage.Storage,
	embedder embedding.Embedder,
	index vector.Index,
	extractor extract.PageExtractor,
	cfg *config.IngestConfig,
	uploadPath string,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		storage:    store,
		embedder:   embedder,
		index:      index,
		extractor:  extractor,
		chunker:    NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		maxBytes:   cfg.MaxUploadBytes,
		uploadPath: uploadPath,
		logger:     logger,
	}
}

// ValidateUpload checks the filename extension and size. It must be called
// before a document record is created so invalid uploads leave no trace.
func (p *Pipeline) ValidateUpload(filename string, size int64) error {
	if strings.ToLower(filepath.Ext(filename)) != ".pdf" {
		return ErrNotPDF
	}
	if size > p.maxBytes {
		return ErrTooLarge
	}
	return nil
}

// CreatePending creates the document record in the pending state.
func (p *Pipeline) CreatePending(ctx context.Context, filename string, size int64) (*models.Document, error) {
	doc := &models.Document{
		ID:               uuid.New().String(),
		OriginalFilename: filename,
		FileSize:         size,
		Status:           models.StatusPending,
	}
	if err := p.storage.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create document record: %w", err)
	}
	return doc, nil
}

// SaveUpload persists the raw PDF bytes under the upload path so failed or
// interrupted ingestions can be retried from disk.
func (p *Pipeline) SaveUpload(documentID string, content []byte) error {
	if err := os.MkdirAll(p.uploadPath, 0755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	return os.WriteFile(p.uploadFile(documentID), content, 0600)
}

func (p *Pipeline) uploadFile(documentID string) string {
	return filepath.Join(p.uploadPath, documentID+".pdf")
}

// Ingest runs the full pipeline for a document whose record already exists:
// processing -> extract -> chunk -> embed -> publish -> completed. Any failure
// marks the document failed with a reason and leaves no partial chunk set
// visible to retrieval. Re-running on the same input replaces the chunk set
// rather than duplicating it.
func (p *Pipeline) Ingest(ctx context.Context, documentID string, content []byte) error {
	lock := p.lockFor(documentID)
	lock.Lock()
	defer lock.Unlock()

	if err := p.storage.MarkProcessing(ctx, documentID); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	pages, err := p.extractor.ExtractPages(content)
	if err != nil {
		return p.fail(ctx, documentID, fmt.Sprintf("text extraction failed: %v", err))
	}

	chunks := p.chunker.ChunkPages(documentID, pages)
	if len(chunks) == 0 {
		return p.fail(ctx, documentID, "no extractable text")
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	embeddings, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return p.fail(ctx, documentID, fmt.Sprintf("embedding failed: %v", err))
	}
	for i := range chunks {
		if len(embeddings[i]) != p.embedder.Dimensions() {
			return p.fail(ctx, documentID, fmt.Sprintf(
				"embedding dimension mismatch: got %d, expected %d", len(embeddings[i]), p.embedder.Dimensions()))
		}
		chunks[i].Embedding = embeddings[i]
	}

	if err := p.storage.ReplaceChunks(ctx, documentID, chunks); err != nil {
		return p.fail(ctx, documentID, fmt.Sprintf("storing chunks failed: %v", err))
	}
	if err := p.index.UpsertChunks(ctx, documentID, chunks); err != nil {
		// Keep the durable store and the index consistent: unpublish both
		// rather than serve a set the index never accepted. No completed set
		// is lost here: re-uploads mint a fresh document id and Recover only
		// re-runs pending/processing documents, so this id has never served
		// a completed chunk set.
		_ = p.storage.ReplaceChunks(ctx, documentID, nil)
		_ = p.index.DeleteDocument(ctx, documentID)
		return p.fail(ctx, documentID, fmt.Sprintf("indexing failed: %v", err))
	}

	if err := p.storage.MarkCompleted(ctx, documentID, len(pages), len(chunks)); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	p.logger.Info("document ingested",
		zap.String("document_id", documentID),
		zap.Int("pages", len(pages)),
		zap.Int("chunks", len(chunks)),
	)
	return nil
}

// fail records the terminal failure on the document and returns it as an error
// for callers inside the ingestion boundary (tests, watcher logging).
func (p *Pipeline) fail(ctx context.Context, documentID, reason string) error {
	if err := p.storage.MarkFailed(ctx, documentID, reason); err != nil {
		p.logger.Error("failed to record ingestion failure",
			zap.String("document_id", documentID), zap.Error(err))
	}
	p.logger.Warn("ingestion failed",
		zap.String("document_id", documentID), zap.String("reason", reason))
	return fmt.Errorf("ingestion failed: %s", reason)
}

// Delete removes the document record, its chunks, its index entries, and the
// stored upload file as one logical operation. Returns storage.ErrNotFound
// for unknown ids.
func (p *Pipeline) Delete(ctx context.Context, documentID string) error {
	lock := p.lockFor(documentID)
	lock.Lock()
	defer lock.Unlock()

	if err := p.storage.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	if err := p.index.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete from index: %w", err)
	}
	if err := os.Remove(p.uploadFile(documentID)); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("failed to remove upload file",
			zap.String("document_id", documentID), zap.Error(err))
	}
	return nil
}

// Rebuild repopulates the vector index from stored chunks of completed
// documents. Called once at startup so the index and metadata cannot diverge
// across restarts.
func (p *Pipeline) Rebuild(ctx context.Context) error {
	docs, err := p.storage.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	for _, doc := range docs {
		if doc.Status != models.StatusCompleted {
			continue
		}
		chunks, err := p.storage.GetChunksByDocumentID(ctx, doc.ID)
		if err != nil {
			return fmt.Errorf("load chunks for %s: %w", doc.ID, err)
		}
		if err := p.index.UpsertChunks(ctx, doc.ID, chunks); err != nil {
			return fmt.Errorf("index chunks for %s: %w", doc.ID, err)
		}
	}
	return nil
}

// Recover re-runs ingestion for documents left pending or processing by a
// previous process, from their stored upload files. A document whose file is
// gone is marked failed so the caller can re-upload.
func (p *Pipeline) Recover(ctx context.Context) error {
	docs, err := p.storage.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	for _, doc := range docs {
		if doc.Status != models.StatusPending && doc.Status != models.StatusProcessing {
			continue
		}
		content, err := os.ReadFile(p.uploadFile(doc.ID))
		if err != nil {
			if markErr := p.storage.MarkFailed(ctx, doc.ID, "uploaded file missing after restart"); markErr != nil {
				p.logger.Error("failed to mark unrecoverable document",
					zap.String("document_id", doc.ID), zap.Error(markErr))
			}
			continue
		}
		p.logger.Info("recovering interrupted ingestion", zap.String("document_id", doc.ID))
		if err := p.Ingest(ctx, doc.ID, content); err != nil {
			p.logger.Warn("recovery ingestion failed",
				zap.String("document_id", doc.ID), zap.Error(err))
		}
	}
	return nil
}

// lockFor returns the mutex serializing ingestion passes for one document id.
func (p *Pipeline) lockFor(documentID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.docLocks == nil {
		p.docLocks = make(map[string]*sync.Mutex)
	}
	lock, ok := p.docLocks[documentID]
	if !ok {
		lock = &sync.Mutex{}
		p.docLocks[documentID] = lock
	}
	return lock
}
