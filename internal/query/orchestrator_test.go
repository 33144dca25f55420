package query

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hyperjump/kaiwa/internal/config"
	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/llm"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/session"
	"github.com/hyperjump/kaiwa/internal/storage"
	"github.com/hyperjump/kaiwa/internal/vector"
)

type failingIndex struct {
	vector.Index
}

func (f *failingIndex) Search(ctx context.Context, query []float32, topK int) ([]*vector.Result, error) {
	return nil, errors.New("index unreachable")
}

type orchestratorFixture struct {
	orchestrator *Orchestrator
	sessions     *session.Manager
	embedder     *embedding.MockEmbedder
	index        *vector.MemoryIndex
	generator    *llm.MockGenerator
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	embedder := embedding.NewMockEmbedder(4)
	index, err := vector.NewMemoryIndex(4)
	if err != nil {
		t.Fatal(err)
	}
	sessions := session.NewManager(store)
	generator := &llm.MockGenerator{Answer: "the report covers Q3 revenue"}
	cfg := &config.QueryConfig{TopK: 3, MaxTopK: 5, HistoryWindow: 4, SnippetLength: 20}
	return &orchestratorFixture{
		orchestrator: NewOrchestrator(sessions, embedder, index, generator, cfg, nil),
		sessions:     sessions,
		embedder:     embedder,
		index:        index,
		generator:    generator,
	}
}

// indexChunks publishes chunks whose embeddings come from the same mock
// embedder the orchestrator queries with, so retrieval finds them.
func (fx *orchestratorFixture) indexChunks(t *testing.T, docID string, contents ...string) {
	t.Helper()
	chunks := make([]*models.Chunk, len(contents))
	for i, content := range contents {
		vec, err := fx.embedder.Embed(context.Background(), content)
		if err != nil {
			t.Fatal(err)
		}
		chunks[i] = &models.Chunk{
			ID:         docID + "_" + content,
			DocumentID: docID,
			PageNumber: i + 1,
			Ordinal:    i,
			Content:    content,
			Embedding:  vec,
		}
	}
	if err := fx.index.UpsertChunks(context.Background(), docID, chunks); err != nil {
		t.Fatal(err)
	}
}

func TestOrchestrator_EmptyQuestion(t *testing.T) {
	fx := newOrchestratorFixture(t)
	_, err := fx.orchestrator.Ask(context.Background(), &models.QueryRequest{Question: "   "})
	if !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("got %v, want ErrEmptyQuestion", err)
	}
	summaries, _ := fx.sessions.List(context.Background())
	if len(summaries) != 0 {
		t.Errorf("blank question must not create a session, got %d", len(summaries))
	}
}

func TestOrchestrator_CreatesSessionAndRecordsTurn(t *testing.T) {
	fx := newOrchestratorFixture(t)
	ctx := context.Background()

	resp, err := fx.orchestrator.Ask(ctx, &models.QueryRequest{Question: "what is in the report?"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.SessionID == "" {
		t.Fatal("response must carry the resolved session id")
	}
	if resp.Answer != "the report covers Q3 revenue" {
		t.Errorf("answer: %q", resp.Answer)
	}

	sess, err := fx.sessions.Get(ctx, resp.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(sess.Messages))
	}
	if sess.Messages[0].Role != models.RoleUser || sess.Messages[0].Content != "what is in the report?" {
		t.Errorf("user message: %+v", sess.Messages[0])
	}
	if sess.Messages[1].Role != models.RoleAssistant || sess.Messages[1].IsError {
		t.Errorf("assistant message: %+v", sess.Messages[1])
	}
}

func TestOrchestrator_UnknownSession(t *testing.T) {
	fx := newOrchestratorFixture(t)
	_, err := fx.orchestrator.Ask(context.Background(), &models.QueryRequest{
		Question:  "hi",
		SessionID: "missing",
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestOrchestrator_FollowUpCarriesHistory(t *testing.T) {
	fx := newOrchestratorFixture(t)
	ctx := context.Background()

	first, err := fx.orchestrator.Ask(ctx, &models.QueryRequest{Question: "first question"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fx.orchestrator.Ask(ctx, &models.QueryRequest{
		Question:  "and a follow-up?",
		SessionID: first.SessionID,
	}); err != nil {
		t.Fatal(err)
	}

	sess, _ := fx.sessions.Get(ctx, first.SessionID)
	if len(sess.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(sess.Messages))
	}
	if sess.Messages[0].Content != "first question" {
		t.Errorf("earlier turns must be preserved in place: %q", sess.Messages[0].Content)
	}

	if len(fx.generator.Prompts) != 2 {
		t.Fatalf("expected 2 generator calls, got %d", len(fx.generator.Prompts))
	}
	second := fx.generator.Prompts[1]
	if !strings.Contains(second, "Conversation so far:") ||
		!strings.Contains(second, "User: first question") {
		t.Errorf("follow-up prompt must include prior turns:\n%s", second)
	}
	if !strings.Contains(second, "Question: and a follow-up?") {
		t.Errorf("prompt must end with the new question:\n%s", second)
	}
}

func TestOrchestrator_NoDocuments(t *testing.T) {
	fx := newOrchestratorFixture(t)
	resp, err := fx.orchestrator.Ask(context.Background(), &models.QueryRequest{Question: "anything indexed?"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Sources) != 0 {
		t.Errorf("no documents means no sources, got %d", len(resp.Sources))
	}
	if !strings.Contains(fx.generator.Prompts[0], "No relevant context found.") {
		t.Errorf("prompt should state the empty context:\n%s", fx.generator.Prompts[0])
	}
}

func TestOrchestrator_SourcesFromRetrieval(t *testing.T) {
	fx := newOrchestratorFixture(t)
	ctx := context.Background()
	fx.indexChunks(t, "doc1",
		"quarterly revenue grew twelve percent year over year",
		"the appendix lists methodology notes")

	resp, err := fx.orchestrator.Ask(ctx, &models.QueryRequest{Question: "how did revenue change?"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Sources) == 0 {
		t.Fatal("expected retrieval sources")
	}
	for _, src := range resp.Sources {
		if src.DocumentID != "doc1" {
			t.Errorf("source document: %s", src.DocumentID)
		}
		if src.PageNumber < 1 {
			t.Errorf("source page: %d", src.PageNumber)
		}
		if src.RelevanceScore < 0 || src.RelevanceScore > 1 {
			t.Errorf("relevance out of [0,1]: %v", src.RelevanceScore)
		}
		if len([]rune(src.Content)) > 23 { // snippet length plus ellipsis
			t.Errorf("snippet not truncated: %q", src.Content)
		}
	}
	if !strings.Contains(fx.generator.Prompts[0], "Context:") {
		t.Errorf("prompt should carry retrieved context:\n%s", fx.generator.Prompts[0])
	}

	// Persisted assistant message carries the same citations.
	sess, _ := fx.sessions.Get(ctx, resp.SessionID)
	if len(sess.Messages[1].Sources) != len(resp.Sources) {
		t.Errorf("stored sources: %d, response sources: %d",
			len(sess.Messages[1].Sources), len(resp.Sources))
	}
}

func TestOrchestrator_TopKClamped(t *testing.T) {
	fx := newOrchestratorFixture(t)
	contents := []string{"alpha one", "beta two", "gamma three", "delta four", "epsilon five", "zeta six", "eta seven"}
	fx.indexChunks(t, "doc1", contents...)

	resp, err := fx.orchestrator.Ask(context.Background(), &models.QueryRequest{
		Question: "everything please",
		TopK:     100,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Sources) > 5 {
		t.Errorf("top_k must be clamped to the maximum, got %d sources", len(resp.Sources))
	}

	resp, err = fx.orchestrator.Ask(context.Background(), &models.QueryRequest{Question: "default top_k"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Sources) != 3 {
		t.Errorf("default top_k should apply, got %d sources", len(resp.Sources))
	}
}

func TestOrchestrator_GeneratorFailureRecordsErrorTurn(t *testing.T) {
	fx := newOrchestratorFixture(t)
	fx.generator.Err = errors.New("connection refused")
	ctx := context.Background()

	resp, err := fx.orchestrator.Ask(ctx, &models.QueryRequest{Question: "will this work?"})
	if err != nil {
		t.Fatalf("upstream failure must still produce a response, got %v", err)
	}
	if resp.Answer == "" || len(resp.Sources) != 0 {
		t.Errorf("failure response: %+v", resp)
	}

	sess, err := fx.sessions.Get(ctx, resp.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("question and error answer must both be recorded, got %d messages", len(sess.Messages))
	}
	if sess.Messages[0].Content != "will this work?" {
		t.Errorf("user question must be kept: %q", sess.Messages[0].Content)
	}
	if !sess.Messages[1].IsError {
		t.Error("assistant message must be error-flagged")
	}

	// Error turns are excluded from later prompt history.
	fx.generator.Err = nil
	if _, err := fx.orchestrator.Ask(ctx, &models.QueryRequest{
		Question:  "retry",
		SessionID: resp.SessionID,
	}); err != nil {
		t.Fatal(err)
	}
	last := fx.generator.Prompts[len(fx.generator.Prompts)-1]
	if strings.Contains(last, upstreamFailureAnswer) {
		t.Errorf("error-flagged turns must not enter the prompt:\n%s", last)
	}
}

func TestOrchestrator_IndexFailureRecordsErrorTurn(t *testing.T) {
	fx := newOrchestratorFixture(t)
	cfg := &config.QueryConfig{TopK: 3, MaxTopK: 5, HistoryWindow: 4, SnippetLength: 20}
	broken := NewOrchestrator(fx.sessions, fx.embedder, &failingIndex{}, fx.generator, cfg, nil)
	ctx := context.Background()

	resp, err := broken.Ask(ctx, &models.QueryRequest{Question: "is the index up?"})
	if err != nil {
		t.Fatalf("index failure must still produce a response, got %v", err)
	}
	if resp.SessionID == "" || len(resp.Sources) != 0 {
		t.Errorf("failure response: %+v", resp)
	}
	if len(fx.generator.Prompts) != 0 {
		t.Errorf("generator must not run without retrieval, got %d calls", len(fx.generator.Prompts))
	}

	sess, err := fx.sessions.Get(ctx, resp.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("question and error answer must both be recorded, got %d messages", len(sess.Messages))
	}
	if sess.Messages[0].Content != "is the index up?" {
		t.Errorf("user question must be kept: %q", sess.Messages[0].Content)
	}
	if !sess.Messages[1].IsError {
		t.Error("assistant message must be error-flagged")
	}
}

func TestOrchestrator_SerializesSameSession(t *testing.T) {
	fx := newOrchestratorFixture(t)
	ctx := context.Background()

	first, err := fx.orchestrator.Ask(ctx, &models.QueryRequest{Question: "opening turn"})
	if err != nil {
		t.Fatal(err)
	}

	const turns = 4
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := fx.orchestrator.Ask(ctx, &models.QueryRequest{
				Question:  fmt.Sprintf("concurrent turn %d", n),
				SessionID: first.SessionID,
			})
			if err != nil {
				t.Errorf("ask %d: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	sess, err := fx.sessions.Get(ctx, first.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Messages) != 2*(turns+1) {
		t.Fatalf("expected %d messages, got %d", 2*(turns+1), len(sess.Messages))
	}
	// Each turn appends as a contiguous user/assistant pair, never interleaved.
	asked := map[string]bool{}
	for i := 0; i < len(sess.Messages); i += 2 {
		user, assistant := sess.Messages[i], sess.Messages[i+1]
		if user.Role != models.RoleUser || assistant.Role != models.RoleAssistant {
			t.Fatalf("messages %d/%d: got %s then %s", i, i+1, user.Role, assistant.Role)
		}
		asked[user.Content] = true
	}
	for i := 0; i < turns; i++ {
		q := fmt.Sprintf("concurrent turn %d", i)
		if !asked[q] {
			t.Errorf("question %q missing from the log", q)
		}
	}
}

func TestOrchestrator_HistoryWindowBounded(t *testing.T) {
	fx := newOrchestratorFixture(t)
	ctx := context.Background()

	first, err := fx.orchestrator.Ask(ctx, &models.QueryRequest{Question: "turn one"})
	if err != nil {
		t.Fatal(err)
	}
	for _, q := range []string{"turn two", "turn three", "turn four"} {
		if _, err := fx.orchestrator.Ask(ctx, &models.QueryRequest{Question: q, SessionID: first.SessionID}); err != nil {
			t.Fatal(err)
		}
	}

	// Window of 4 messages keeps the last two turns only.
	last := fx.generator.Prompts[len(fx.generator.Prompts)-1]
	if strings.Contains(last, "User: turn one") {
		t.Errorf("oldest turn should fall out of the window:\n%s", last)
	}
	if !strings.Contains(last, "User: turn three") {
		t.Errorf("recent turns should stay in the window:\n%s", last)
	}
}
