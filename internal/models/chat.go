package models

import "time"

// Role identifies the author of a chat message.
type Role string

// Chat message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ChatSession is a persisted multi-turn conversation. Messages are ordered
// by insertion, which is conversational order.
type ChatSession struct {
	ID        string         `json:"id" db:"id"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	Messages  []*ChatMessage `json:"messages"`
}

// SessionSummary is the listing view of a session.
type SessionSummary struct {
	ID           string    `json:"id" db:"id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	MessageCount int       `json:"message_count" db:"message_count"`
}

// ChatMessage is a single user or assistant message in a session.
// Sources is populated only on assistant messages that used retrieval.
// IsError marks an assistant message recorded in place of an answer when
// the generator failed.
type ChatMessage struct {
	ID        string    `json:"id" db:"id"`
	SessionID string    `json:"session_id" db:"session_id"`
	Role      Role      `json:"role" db:"role"`
	Content   string    `json:"content" db:"content"`
	Sources   []*Source `json:"sources,omitempty"`
	IsError   bool      `json:"is_error,omitempty" db:"is_error"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Source is a citation attached to an assistant message: the page a retrieved
// chunk came from, its similarity to the question in [0,1], and a snippet of
// its content.
type Source struct {
	DocumentID     string  `json:"document_id"`
	PageNumber     int     `json:"page_number"`
	RelevanceScore float64 `json:"relevance_score"`
	Content        string  `json:"content"`
}
