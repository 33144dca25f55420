// Package query orchestrates retrieval-augmented question answering:
// embed the question, retrieve chunks, assemble a grounded prompt, invoke the
// generator, and record the exchange in the session.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/config"
	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/llm"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/session"
	"github.com/hyperjump/kaiwa/internal/vector"
	"github.com/hyperjump/kaiwa/pkg/utils"
)

// ErrEmptyQuestion is returned for blank questions before any state mutation.
var ErrEmptyQuestion = errors.New("question is required")

const systemPrompt = `You are a helpful assistant that answers questions based on the provided context.

Instructions:
- Answer the question using ONLY the information from the context below
- If the context doesn't contain enough information, say so clearly
- Cite specific sections when relevant
- Be concise and direct`

// upstreamFailureAnswer is recorded as an error-flagged assistant message when
// the model backend cannot be reached; no partial answer is ever stored.
const upstreamFailureAnswer = "Sorry, the language model could not be reached, so this question was not answered. Please try again."

// Orchestrator answers questions grounded in retrieved chunks and prior
// conversation. Writes to one session's message log are serialized; different
// sessions proceed independently.
type Orchestrator struct {
	sessions  *session.Manager
	embedder  embedding.Embedder
	index     vector.Index
	generator llm.Generator
	cfg       *config.QueryConfig
	logger    *zap.Logger

	mu           sync.Mutex
	sessionLocks map[string]*sync.Mutex
}

// NewOrchestrator creates a query orchestrator with the given collaborators.
func NewOrchestrator(
	sessions *session.Manager,
	embedder embedding.Embedder,
	index vector.Index,
	generator llm.Generator,
	cfg *config.QueryConfig,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		sessions:     sessions,
		embedder:     embedder,
		index:        index,
		generator:    generator,
		cfg:          cfg,
		logger:       logger,
		sessionLocks: make(map[string]*sync.Mutex),
	}
}

// Ask answers a question. A supplied session id must exist
// (storage.ErrNotFound otherwise); with no session id a new session is
// created. The user question and the assistant answer are appended to the
// session as one atomic turn, and the response always carries the resolved
// session id. With zero ingested documents the generator still runs and the
// answer carries no sources.
func (o *Orchestrator) Ask(ctx context.Context, req *models.QueryRequest) (*models.QueryResponse, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	sessionID := req.SessionID
	if sessionID == "" {
		created, err := o.sessions.Create(ctx)
		if err != nil {
			return nil, err
		}
		sessionID = created.ID
	} else {
		if _, err := o.sessions.Get(ctx, sessionID); err != nil {
			return nil, err
		}
	}

	lock := o.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	// History is read inside the lock so concurrent asks on the same session
	// see each other's turns as contiguous blocks.
	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	queryVector, err := o.embedder.Embed(ctx, question)
	if err != nil {
		o.logger.Error("question embedding failed", zap.String("session_id", sessionID), zap.Error(err))
		return o.recordFailedTurn(ctx, sessionID, question)
	}

	topK := req.TopK
	if topK <= 0 {
		topK = o.cfg.TopK
	}
	if topK > o.cfg.MaxTopK {
		topK = o.cfg.MaxTopK
	}
	results, err := o.index.Search(ctx, queryVector, topK)
	if err != nil {
		o.logger.Error("retrieval failed", zap.String("session_id", sessionID), zap.Error(err))
		return o.recordFailedTurn(ctx, sessionID, question)
	}

	prompt := o.buildPrompt(question, results, sess.Messages)
	answer, err := o.generator.Generate(ctx, prompt)
	if err != nil {
		o.logger.Error("generation failed", zap.String("session_id", sessionID), zap.Error(err))
		return o.recordFailedTurn(ctx, sessionID, question)
	}

	sources := o.buildSources(results)
	userMsg := &models.ChatMessage{Content: question}
	assistantMsg := &models.ChatMessage{Content: answer, Sources: sources}
	if err := o.sessions.AppendExchange(ctx, sessionID, userMsg, assistantMsg); err != nil {
		return nil, err
	}

	return &models.QueryResponse{
		Answer:    answer,
		SessionID: sessionID,
		Sources:   sources,
	}, nil
}

// recordFailedTurn records the user question plus an error-flagged assistant
// message so an upstream failure never silently drops the question, then
// returns a response object rather than an error.
func (o *Orchestrator) recordFailedTurn(ctx context.Context, sessionID, question string) (*models.QueryResponse, error) {
	userMsg := &models.ChatMessage{Content: question}
	assistantMsg := &models.ChatMessage{Content: upstreamFailureAnswer, IsError: true}
	if err := o.sessions.AppendExchange(ctx, sessionID, userMsg, assistantMsg); err != nil {
		return nil, err
	}
	return &models.QueryResponse{
		Answer:    upstreamFailureAnswer,
		SessionID: sessionID,
		Sources:   []*models.Source{},
	}, nil
}

// buildPrompt assembles the grounded prompt: instructions, numbered context
// blocks with page attribution, a bounded trailing window of prior messages,
// and the question.
func (o *Orchestrator) buildPrompt(question string, results []*vector.Result, history []*models.ChatMessage) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\nContext:\n")
	if len(results) == 0 {
		b.WriteString("No relevant context found.\n")
	} else {
		for i, r := range results {
			fmt.Fprintf(&b, "[%d] (Page %d, Relevance: %.2f)\n%s\n\n", i+1, r.Chunk.PageNumber, r.Score, r.Chunk.Content)
		}
	}

	if window := o.historyWindow(history); len(window) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, msg := range window {
			if msg.Role == models.RoleUser {
				fmt.Fprintf(&b, "User: %s\n", msg.Content)
			} else {
				fmt.Fprintf(&b, "Assistant: %s\n", msg.Content)
			}
		}
	}

	fmt.Fprintf(&b, "\nQuestion: %s\nAnswer:", question)
	return b.String()
}

// historyWindow returns the trailing messages included in the prompt,
// excluding error-flagged turns that carry no grounding value.
func (o *Orchestrator) historyWindow(history []*models.ChatMessage) []*models.ChatMessage {
	var usable []*models.ChatMessage
	for _, msg := range history {
		if msg.IsError {
			continue
		}
		usable = append(usable, msg)
	}
	if len(usable) > o.cfg.HistoryWindow {
		usable = usable[len(usable)-o.cfg.HistoryWindow:]
	}
	return usable
}

// buildSources converts retrieval results into citations. Scores keep the
// retrieval similarity; content is truncated to the configured snippet length.
func (o *Orchestrator) buildSources(results []*vector.Result) []*models.Source {
	sources := make([]*models.Source, len(results))
	for i, r := range results {
		sources[i] = &models.Source{
			DocumentID:     r.Chunk.DocumentID,
			PageNumber:     r.Chunk.PageNumber,
			RelevanceScore: r.Score,
			Content:        utils.Snippet(r.Chunk.Content, o.cfg.SnippetLength),
		}
	}
	return sources
}

// lockFor returns the mutex serializing turns for one session id.
func (o *Orchestrator) lockFor(sessionID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.sessionLocks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		o.sessionLocks[sessionID] = lock
	}
	return lock
}
