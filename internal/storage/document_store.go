package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"balancesheet-rag/internal/faults"
	"balancesheet-rag/internal/models"
)

// DocumentStore persists Document records. Real persistence is an external
// collaborator; the core only calls Save/Load-shaped operations.
type DocumentStore interface {
	Save(ctx context.Context, doc *models.Document) error
	Load(ctx context.Context, id uuid.UUID) (*models.Document, error)
	// FindByHash locates an owner's document with the given content hash,
	// used to detect re-uploads of identical content.
	FindByHash(ctx context.Context, owner, contentHash string) (*models.Document, bool)
	ListByOwner(ctx context.Context, owner string) ([]models.Document, error)
}

// MemoryDocumentStore is an in-process DocumentStore.
type MemoryDocumentStore struct {
	mu   sync.RWMutex
	docs map[uuid.UUID]*models.Document
}

// NewMemoryDocumentStore creates an empty store.
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{docs: make(map[uuid.UUID]*models.Document)}
}

func (m *MemoryDocumentStore) Save(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *doc
	cp.UpdatedAt = time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cp.UpdatedAt
	}
	m.docs[cp.ID] = &cp
	doc.CreatedAt = cp.CreatedAt
	doc.UpdatedAt = cp.UpdatedAt
	return nil
}

func (m *MemoryDocumentStore) Load(_ context.Context, id uuid.UUID) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, faults.New(faults.KindNotFound, "document not found")
	}
	cp := *doc
	return &cp, nil
}

func (m *MemoryDocumentStore) FindByHash(_ context.Context, owner, contentHash string) (*models.Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, doc := range m.docs {
		if doc.Owner == owner && doc.ContentHash == contentHash {
			cp := *doc
			return &cp, true
		}
	}
	return nil, false
}

func (m *MemoryDocumentStore) ListByOwner(_ context.Context, owner string) ([]models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Document
	for _, doc := range m.docs {
		if doc.Owner == owner {
			out = append(out, *doc)
		}
	}
	return out, nil
}
