// Package chat orchestrates the conversational turn cycle: receive message,
// retrieve, assemble, generate, persist, return. Sessions are independent of
// each other; within one session turns are strictly ordered and at most one
// is in flight at a time.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"balancesheet-rag/internal/access"
	"balancesheet-rag/internal/assembler"
	"balancesheet-rag/internal/audit"
	"balancesheet-rag/internal/faults"
	"balancesheet-rag/internal/llm"
	"balancesheet-rag/internal/models"
	"balancesheet-rag/internal/retriever"
	"balancesheet-rag/internal/storage"
)

// InsufficientDataAnswer is the grounded response when retrieval finds
// nothing relevant. It is a real completed turn, not an error: the model is
// never asked to answer without context.
const InsufficientDataAnswer = "The available balance-sheet data is insufficient to answer this question."

// Engine drives chat sessions over the retrieval pipeline.
type Engine struct {
	sessions  storage.SessionStore
	retriever *retriever.Retriever
	assembler *assembler.Assembler
	generator llm.Generator
	resolver  *access.Resolver
	auditor   audit.Emitter
	logger    *slog.Logger

	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
}

// NewEngine wires the turn pipeline.
func NewEngine(
	sessions storage.SessionStore,
	ret *retriever.Retriever,
	asm *assembler.Assembler,
	generator llm.Generator,
	resolver *access.Resolver,
	auditor audit.Emitter,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if auditor == nil {
		auditor = audit.NopEmitter{}
	}
	return &Engine{
		sessions:  sessions,
		retriever: ret,
		assembler: asm,
		generator: generator,
		resolver:  resolver,
		auditor:   auditor,
		logger:    logger,
		inflight:  make(map[uuid.UUID]struct{}),
	}
}

// CreateSession opens a new chat session for the principal.
func (e *Engine) CreateSession(ctx context.Context, principal access.Principal, title string) (*models.ChatSession, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Balance sheet analysis"
	}
	session := &models.ChatSession{
		ID:    uuid.New(),
		Owner: principal.Username,
		Title: title,
		State: models.SessionOpen,
	}
	if err := e.sessions.SaveSession(ctx, session); err != nil {
		return nil, err
	}
	e.auditor.Emit(ctx, audit.Event{
		Actor:        principal.Username,
		Action:       "create_chat_session",
		ResourceType: "chat_session",
		ResourceID:   session.ID.String(),
		Success:      true,
	})
	return session, nil
}

// CloseSession transitions a session to closed. Closing an already closed
// session is a no-op; closed is terminal.
func (e *Engine) CloseSession(ctx context.Context, principal access.Principal, sessionID uuid.UUID) (*models.ChatSession, error) {
	session, err := e.loadOwned(ctx, principal, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State == models.SessionClosed {
		return session, nil
	}
	session.State = models.SessionClosed
	if err := e.sessions.SaveSession(ctx, session); err != nil {
		return nil, err
	}
	e.auditor.Emit(ctx, audit.Event{
		Actor:        principal.Username,
		Action:       "close_chat_session",
		ResourceType: "chat_session",
		ResourceID:   sessionID.String(),
		Success:      true,
	})
	return session, nil
}

// ListSessions returns the principal's sessions.
func (e *Engine) ListSessions(ctx context.Context, principal access.Principal) ([]models.ChatSession, error) {
	return e.sessions.ListSessions(ctx, principal.Username)
}

// ListTurns returns the ordered turns of one of the principal's sessions.
func (e *Engine) ListTurns(ctx context.Context, principal access.Principal, sessionID uuid.UUID) ([]models.Turn, error) {
	if _, err := e.loadOwned(ctx, principal, sessionID); err != nil {
		return nil, err
	}
	return e.sessions.ListTurns(ctx, sessionID)
}

// Submit runs one full turn synchronously. Collaborator failures are
// recorded on the turn (the user's question is never lost) and returned as
// typed errors; a caller-initiated cancellation persists nothing.
func (e *Engine) Submit(ctx context.Context, principal access.Principal, sessionID uuid.UUID, question string) (*models.Turn, error) {
	session, err := e.loadOwned(ctx, principal, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State == models.SessionClosed {
		return nil, faults.New(faults.KindSessionClosed, "session is closed")
	}

	// One in-flight turn per session; concurrent submissions are rejected
	// rather than queued.
	if !e.acquire(sessionID) {
		return nil, faults.New(faults.KindSessionBusy, "a turn is already in flight for this session")
	}
	defer e.release(sessionID)

	started := time.Now()
	allowed := e.resolver.AllowedVerticals(principal.Role, principal.Companies)
	e.auditor.Emit(ctx, audit.Event{
		Actor:        principal.Username,
		Action:       "resolve_retrieval_scope",
		ResourceType: "chat_session",
		ResourceID:   sessionID.String(),
		Success:      len(allowed) > 0,
		Details: map[string]any{
			"role":      string(principal.Role),
			"verticals": allowed,
		},
	})

	// Seq is assigned by the store when the turn lands, so a snapshot that
	// went stale while another turn was in flight cannot duplicate it.
	turn := &models.Turn{
		ID:        uuid.New(),
		SessionID: sessionID,
		Question:  question,
		Verticals: allowed,
		CreatedAt: started.UTC(),
	}

	result, err := e.retriever.Retrieve(ctx, question, allowed)
	if err != nil {
		return nil, e.failTurn(ctx, principal, turn, started, err)
	}

	asm := e.assembler.Assemble(result)
	var answer string
	if asm.Insufficient {
		answer = InsufficientDataAnswer
	} else {
		answer, err = e.generator.Generate(ctx, question, asm.Context)
		if err != nil {
			return nil, e.failTurn(ctx, principal, turn, started, err)
		}
	}

	turn.Status = models.TurnCompleted
	turn.Answer = answer
	turn.Sources = asm.Citations
	turn.Usage = models.TurnUsage{
		ContextChars:    len(asm.Context),
		RetrievedChunks: len(result.Chunks),
		LatencyMS:       time.Since(started).Milliseconds(),
	}
	if err := e.sessions.AppendTurn(ctx, turn); err != nil {
		return nil, err
	}
	e.auditTurn(ctx, principal, turn, true)
	return turn, nil
}

// failTurn records a failed turn so the user's question survives the
// failure, then propagates the original error. A turn is never persisted
// for a request the caller itself abandoned.
func (e *Engine) failTurn(ctx context.Context, principal access.Principal, turn *models.Turn, started time.Time, cause error) error {
	if errors.Is(cause, context.Canceled) {
		return cause
	}

	turn.Status = models.TurnFailed
	turn.FailReason = string(faults.KindOf(cause))
	turn.Usage.LatencyMS = time.Since(started).Milliseconds()

	// The append must survive a request deadline that expired mid-turn.
	persistCtx := context.WithoutCancel(ctx)
	if err := e.sessions.AppendTurn(persistCtx, turn); err != nil {
		e.logger.Error("failed to persist failed turn",
			"session_id", turn.SessionID, "error", err)
	}
	e.auditTurn(persistCtx, principal, turn, false)
	return cause
}

func (e *Engine) auditTurn(ctx context.Context, principal access.Principal, turn *models.Turn, success bool) {
	e.auditor.Emit(ctx, audit.Event{
		Actor:        principal.Username,
		Action:       "chat_turn",
		ResourceType: "chat_session",
		ResourceID:   turn.SessionID.String(),
		Success:      success,
		Details: map[string]any{
			"turn_id":          turn.ID.String(),
			"retrieved_chunks": turn.Usage.RetrievedChunks,
			"context_chars":    turn.Usage.ContextChars,
			"fail_reason":      turn.FailReason,
		},
	})
}

func (e *Engine) loadOwned(ctx context.Context, principal access.Principal, sessionID uuid.UUID) (*models.ChatSession, error) {
	session, err := e.sessions.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Owner != principal.Username {
		// Foreign sessions are indistinguishable from missing ones.
		return nil, faults.New(faults.KindNotFound, "session not found")
	}
	return session, nil
}

func (e *Engine) acquire(sessionID uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[sessionID]; busy {
		return false
	}
	e.inflight[sessionID] = struct{}{}
	return true
}

func (e *Engine) release(sessionID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, sessionID)
}
