// Package storage provides vector storage implementations for chunk
// embeddings, partitioned by vertical.
package storage

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"balancesheet-rag/internal/models"
)

// VectorStore persists chunk vectors and serves similarity search scoped to
// an allowed vertical set. The vertical restriction is enforced inside the
// store, never by caller-side post-filtering.
type VectorStore interface {
	// Upsert is idempotent: re-upserting a chunk ID replaces its vector
	// and metadata.
	Upsert(ctx context.Context, chunk *models.Chunk) error
	// Search returns at most topK chunks with similarity >= minSimilarity
	// whose vertical set intersects allowed, ordered by descending
	// similarity.
	Search(ctx context.Context, embedding []float32, allowed models.VerticalSet, topK int, minSimilarity float32) ([]models.ScoredChunk, error)
	// DeleteByDocument removes every chunk of a document.
	DeleteByDocument(ctx context.Context, documentID uuid.UUID) error
	// CountByVertical reports stored chunk counts per vertical.
	CountByVertical(ctx context.Context) (map[models.Vertical]int, error)
	// CountByDocument reports the number of chunks stored for one document.
	CountByDocument(ctx context.Context, documentID uuid.UUID) (int, error)
	Close() error
}

// MemoryVectorStore is an in-process VectorStore for tests and
// collaborator-free runs.
type MemoryVectorStore struct {
	mu     sync.RWMutex
	chunks map[uuid.UUID]*models.Chunk
}

// NewMemoryVectorStore creates an empty in-memory store.
func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{chunks: make(map[uuid.UUID]*models.Chunk)}
}

func (m *MemoryVectorStore) Upsert(_ context.Context, chunk *models.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *chunk
	cp.Verticals = append(models.VerticalSet(nil), chunk.Verticals...)
	cp.Embedding = append([]float32(nil), chunk.Embedding...)
	m.chunks[cp.ID] = &cp
	return nil
}

func (m *MemoryVectorStore) Search(_ context.Context, embedding []float32, allowed models.VerticalSet, topK int, minSimilarity float32) ([]models.ScoredChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(allowed) == 0 || topK <= 0 {
		return []models.ScoredChunk{}, nil
	}

	scored := make([]models.ScoredChunk, 0, len(m.chunks))
	for _, chunk := range m.chunks {
		if !chunk.Verticals.Intersects(allowed) {
			continue
		}
		sim := cosineSimilarity(embedding, chunk.Embedding)
		if sim < minSimilarity {
			continue
		}
		scored = append(scored, models.ScoredChunk{Chunk: *chunk, Similarity: sim})
	}

	sort.Slice(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	if topK < len(scored) {
		scored = scored[:topK]
	}
	return scored, nil
}

func (m *MemoryVectorStore) DeleteByDocument(_ context.Context, documentID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, chunk := range m.chunks {
		if chunk.DocumentID == documentID {
			delete(m.chunks, id)
		}
	}
	return nil
}

func (m *MemoryVectorStore) CountByVertical(_ context.Context) (map[models.Vertical]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[models.Vertical]int)
	for _, chunk := range m.chunks {
		for _, v := range chunk.Verticals {
			counts[v]++
		}
	}
	return counts, nil
}

func (m *MemoryVectorStore) CountByDocument(_ context.Context, documentID uuid.UUID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, chunk := range m.chunks {
		if chunk.DocumentID == documentID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryVectorStore) Close() error { return nil }

// Len reports the number of stored chunks.
func (m *MemoryVectorStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float32
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}
