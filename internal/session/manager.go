// Package session manages chat session and message persistence.
package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/storage"
)

// Manager owns chat sessions and their append-only message logs. Messages can
// only be created through AppendExchange, so none can exist without a parent
// session.
type Manager struct {
	storage storage.Storage
}

// NewManager creates a session manager over the given storage.
func NewManager(store storage.Storage) *Manager {
	return &Manager{storage: store}
}

// Create creates a new empty session.
func (m *Manager) Create(ctx context.Context) (*models.ChatSession, error) {
	session := &models.ChatSession{ID: uuid.New().String()}
	if err := m.storage.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// Get returns the session with its messages in conversational order.
// Returns storage.ErrNotFound for unknown ids.
func (m *Manager) Get(ctx context.Context, id string) (*models.ChatSession, error) {
	return m.storage.GetSession(ctx, id)
}

// List returns summaries of all sessions, newest first.
func (m *Manager) List(ctx context.Context) ([]*models.SessionSummary, error) {
	return m.storage.ListSessions(ctx)
}

// Delete removes a session and all its messages.
// Returns storage.ErrNotFound for unknown ids.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.storage.DeleteSession(ctx, id)
}

// AppendExchange appends one conversational turn (a user message and the
// resulting assistant message) to a session. The pair is written atomically
// and prior messages are never reordered or mutated.
func (m *Manager) AppendExchange(ctx context.Context, sessionID string, user, assistant *models.ChatMessage) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if assistant.ID == "" {
		assistant.ID = uuid.New().String()
	}
	user.Role = models.RoleUser
	assistant.Role = models.RoleAssistant
	if err := m.storage.AppendExchange(ctx, sessionID, user, assistant); err != nil {
		return fmt.Errorf("failed to append exchange: %w", err)
	}
	return nil
}
