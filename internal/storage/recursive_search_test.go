package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"balancesheet-rag/internal/models"
)

// TestSearchWidensCandidatePool verifies that the vertical restriction still
// fills topK when the nearest neighbors all belong to other verticals and
// the candidate pool has to grow past its initial size.
func TestSearchWidensCandidatePool(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "vectors.db")

	store, err := NewSQLiteVectorStore(dbPath, nil)
	if err != nil {
		t.Fatalf("Failed to create SQLite vector store: %v", err)
	}
	defer func() { _ = store.Close() }()

	// 40 group-wide chunks sit exactly on the query vector, so every jio
	// chunk ranks behind all of them.
	groupDoc := uuid.New()
	for seq := 0; seq < 40; seq++ {
		chunk := testChunk(groupDoc, seq, models.VerticalSet{models.VerticalGroupWide}, []float32{1, 0, 0})
		if err := store.Upsert(ctx, chunk); err != nil {
			t.Fatalf("Failed to upsert group-wide chunk: %v", err)
		}
	}
	jioDoc := uuid.New()
	for seq := 0; seq < 3; seq++ {
		chunk := testChunk(jioDoc, seq, models.VerticalSet{"jio"}, []float32{0.8, 0.6, 0})
		if err := store.Upsert(ctx, chunk); err != nil {
			t.Fatalf("Failed to upsert jio chunk: %v", err)
		}
	}

	results, err := store.Search(ctx, []float32{1, 0, 0}, models.VerticalSet{"jio"}, 3, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 results after pool growth, got %d", len(results))
	}
	for _, r := range results {
		if r.Chunk.DocumentID != jioDoc {
			t.Errorf("Got a chunk from the wrong document: %v", r.Chunk.ID)
		}
	}
}

// TestSearchStopsWhenIndexExhausted verifies that search terminates and
// returns what it found when fewer than topK matching chunks exist at all.
func TestSearchStopsWhenIndexExhausted(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "vectors.db")

	store, err := NewSQLiteVectorStore(dbPath, nil)
	if err != nil {
		t.Fatalf("Failed to create SQLite vector store: %v", err)
	}
	defer func() { _ = store.Close() }()

	groupDoc := uuid.New()
	for seq := 0; seq < 10; seq++ {
		chunk := testChunk(groupDoc, seq, models.VerticalSet{models.VerticalGroupWide}, []float32{1, 0, 0})
		if err := store.Upsert(ctx, chunk); err != nil {
			t.Fatalf("Failed to upsert group-wide chunk: %v", err)
		}
	}
	jioDoc := uuid.New()
	if err := store.Upsert(ctx, testChunk(jioDoc, 0, models.VerticalSet{"jio"}, []float32{0.8, 0.6, 0})); err != nil {
		t.Fatalf("Failed to upsert jio chunk: %v", err)
	}

	results, err := store.Search(ctx, []float32{1, 0, 0}, models.VerticalSet{"jio"}, 5, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected the single matching chunk, got %d results", len(results))
	}
}
