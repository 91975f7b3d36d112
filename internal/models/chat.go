package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionState is the chat session state machine: open -> closed, terminal.
type SessionState string

const (
	SessionOpen   SessionState = "open"
	SessionClosed SessionState = "closed"
)

// ChatSession identifies an ongoing conversation. Turns are append-only
// and ordered; the session itself is never deleted by the core.
type ChatSession struct {
	ID        uuid.UUID    `json:"id"`
	Owner     string       `json:"owner"`
	Title     string       `json:"title"`
	State     SessionState `json:"state"`
	TurnCount int          `json:"turn_count"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// TurnStatus records whether the assistant side of a turn was produced.
type TurnStatus string

const (
	TurnCompleted TurnStatus = "completed"
	TurnFailed    TurnStatus = "failed"
)

// SourceRef attributes a piece of assistant output to the chunk it was
// grounded on.
type SourceRef struct {
	ChunkID    uuid.UUID   `json:"chunk_id"`
	DocumentID uuid.UUID   `json:"document_id"`
	Verticals  VerticalSet `json:"verticals"`
	Page       int         `json:"page"`
	Similarity float32     `json:"similarity"`
}

// TurnUsage carries resource metrics for one turn.
type TurnUsage struct {
	ContextChars    int   `json:"context_chars"`
	RetrievedChunks int   `json:"retrieved_chunks"`
	LatencyMS       int64 `json:"latency_ms"`
}

// Turn is one user query and its paired assistant response, immutable once
// written. When the assistant side fails the user's question is still
// recorded, with Status set to failed and FailReason naming the cause.
type Turn struct {
	ID         uuid.UUID   `json:"id"`
	SessionID  uuid.UUID   `json:"session_id"`
	Seq        int         `json:"seq"`
	Question   string      `json:"question"`
	Answer     string      `json:"answer,omitempty"`
	Status     TurnStatus  `json:"status"`
	FailReason string      `json:"fail_reason,omitempty"`
	Sources    []SourceRef `json:"sources,omitempty"`
	Verticals  VerticalSet `json:"verticals"`
	Usage      TurnUsage   `json:"usage"`
	CreatedAt  time.Time   `json:"created_at"`
}
