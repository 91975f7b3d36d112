package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"balancesheet-rag/internal/faults"
	"balancesheet-rag/internal/models"
)

// SessionStore persists chat sessions and their append-only turns.
type SessionStore interface {
	SaveSession(ctx context.Context, session *models.ChatSession) error
	LoadSession(ctx context.Context, id uuid.UUID) (*models.ChatSession, error)
	ListSessions(ctx context.Context, owner string) ([]models.ChatSession, error)
	// AppendTurn atomically appends a turn to an open session, assigning
	// turn.Seq and bumping the session's turn count under the same lock
	// so concurrent submitters never persist duplicate sequence numbers.
	// Closed sessions reject appends. A turn is either fully persisted
	// or not persisted at all.
	AppendTurn(ctx context.Context, turn *models.Turn) error
	ListTurns(ctx context.Context, sessionID uuid.UUID) ([]models.Turn, error)
}

// MemorySessionStore is an in-process SessionStore.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*models.ChatSession
	turns    map[uuid.UUID][]models.Turn
}

// NewMemorySessionStore creates an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[uuid.UUID]*models.ChatSession),
		turns:    make(map[uuid.UUID][]models.Turn),
	}
}

func (m *MemorySessionStore) SaveSession(_ context.Context, session *models.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *session
	cp.UpdatedAt = time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cp.UpdatedAt
	}
	m.sessions[cp.ID] = &cp
	session.CreatedAt = cp.CreatedAt
	session.UpdatedAt = cp.UpdatedAt
	return nil
}

func (m *MemorySessionStore) LoadSession(_ context.Context, id uuid.UUID) (*models.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, faults.New(faults.KindNotFound, "session not found")
	}
	cp := *session
	return &cp, nil
}

func (m *MemorySessionStore) ListSessions(_ context.Context, owner string) ([]models.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ChatSession
	for _, session := range m.sessions {
		if session.Owner == owner {
			out = append(out, *session)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemorySessionStore) AppendTurn(_ context.Context, turn *models.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[turn.SessionID]
	if !ok {
		return faults.New(faults.KindNotFound, "session not found")
	}
	if session.State == models.SessionClosed {
		return faults.New(faults.KindSessionClosed, "session is closed")
	}
	turn.Seq = len(m.turns[turn.SessionID]) + 1
	cp := *turn
	m.turns[turn.SessionID] = append(m.turns[turn.SessionID], cp)
	session.TurnCount = len(m.turns[turn.SessionID])
	session.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemorySessionStore) ListTurns(_ context.Context, sessionID uuid.UUID) ([]models.Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return nil, faults.New(faults.KindNotFound, "session not found")
	}
	return append([]models.Turn(nil), m.turns[sessionID]...), nil
}
