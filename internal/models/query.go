package models

// QueryRequest is the body of a question against the ingested documents.
// SessionID is optional; when empty a new session is created. TopK is
// optional; zero means the configured default.
type QueryRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
	TopK      int    `json:"top_k,omitempty"`
}

// QueryResponse is the answer to a question, with the session it was recorded
// in and the retrieved passages the answer was grounded on.
type QueryResponse struct {
	Answer    string    `json:"answer"`
	SessionID string    `json:"session_id"`
	Sources   []*Source `json:"sources"`
}
