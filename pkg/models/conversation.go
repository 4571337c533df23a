package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// QueryError is the local error envelope attached to responses and turns.
// Every caught failure, transport-level or backend-reported, folds into
// this shape; nothing escapes to a global handler.
type QueryError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Error codes used in QueryError.Code.
const (
	CodeSQLExecutionError = "SQL_EXECUTION_ERROR"
	CodeProcessError      = "PROCESS_ERROR"
	CodeRequestError      = "REQUEST_ERROR"
	CodeInjectionDetected = "INJECTION_DETECTED"
)

// ConversationItem is one turn of the chat log. A user turn carries only
// the question; a system turn may carry SQL, a result payload, an
// explanation, or an error. User turns are never mutated; only the last
// system turn is patched in place by the retry and variable-apply flows.
type ConversationItem struct {
	ID          string          `json:"id"`
	Question    string          `json:"question"`
	SQL         string          `json:"sql,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Explanation string          `json:"explanation,omitempty"`
	Error       *QueryError     `json:"error,omitempty"`
	IsUser      bool            `json:"isUser"`
	Timestamp   string          `json:"timestamp"`
}

// NewUserTurn builds an optimistic user echo for a just-submitted question.
func NewUserTurn(question string) ConversationItem {
	return ConversationItem{
		ID:        uuid.NewString(),
		Question:  question,
		IsUser:    true,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// NewSystemTurn builds a system turn. The id is the backend's generation id
// when one exists, or a locally generated one for pure error turns.
func NewSystemTurn(id, question string) ConversationItem {
	if id == "" {
		id = uuid.NewString()
	}
	return ConversationItem{
		ID:        id,
		Question:  question,
		IsUser:    false,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// ContextEntry is the slice of a turn sent back to the backend as
// conversation context for multi-turn SQL generation.
type ContextEntry struct {
	Question  string          `json:"question"`
	SQL       string          `json:"sql,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	IsUser    bool            `json:"isUser"`
	Timestamp string          `json:"timestamp"`
}

// FocusedResponse is the single result view shown below the composer.
// Replaced wholesale on each submission; cleared on conversation reset.
type FocusedResponse struct {
	Question    string          `json:"question"`
	SQL         string          `json:"sql,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	SessionID   string          `json:"sessionId,omitempty"`
	Explanation string          `json:"explanation,omitempty"`
	Error       *QueryError     `json:"error,omitempty"`
}

// SQLVariable is one unbound :name placeholder awaiting a user value.
type SQLVariable struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Value       string `json:"value"`
}

// HistoryQuestion is one entry of the server-backed question history.
type HistoryQuestion struct {
	ID        string `json:"id"`
	Question  string `json:"question"`
	Timestamp string `json:"timestamp,omitempty"`
}
