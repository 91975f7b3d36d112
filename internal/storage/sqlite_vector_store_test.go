package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"balancesheet-rag/internal/models"
)

func TestSQLiteVectorStoreReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "vectors.db")

	store, err := NewSQLiteVectorStore(dbPath, nil)
	if err != nil {
		t.Fatalf("Failed to create SQLite vector store: %v", err)
	}

	docID := uuid.New()
	if err := store.Upsert(ctx, testChunk(docID, 0, models.VerticalSet{"jio"}, []float32{1, 0, 0})); err != nil {
		t.Fatalf("Failed to upsert chunk: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Failed to close store: %v", err)
	}

	reopened, err := NewSQLiteVectorStore(dbPath, nil)
	if err != nil {
		t.Fatalf("Failed to reopen SQLite vector store: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	results, err := reopened.Search(ctx, []float32{1, 0, 0}, models.VerticalSet{"jio"}, 5, 0)
	if err != nil {
		t.Fatalf("Search after reopen failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result after reopen, got %d", len(results))
	}
}

func TestSQLiteVectorStoreRejectsDimensionChange(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "vectors.db")

	store, err := NewSQLiteVectorStore(dbPath, nil)
	if err != nil {
		t.Fatalf("Failed to create SQLite vector store: %v", err)
	}
	defer func() { _ = store.Close() }()

	docID := uuid.New()
	if err := store.Upsert(ctx, testChunk(docID, 0, models.VerticalSet{"jio"}, []float32{1, 0, 0})); err != nil {
		t.Fatalf("Failed to upsert chunk: %v", err)
	}
	if err := store.Upsert(ctx, testChunk(docID, 1, models.VerticalSet{"jio"}, []float32{1, 0})); err == nil {
		t.Error("Expected an error upserting an embedding with a different dimension")
	}
}

func TestSQLiteVectorStoreCountByDocument(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "vectors.db")

	store, err := NewSQLiteVectorStore(dbPath, nil)
	if err != nil {
		t.Fatalf("Failed to create SQLite vector store: %v", err)
	}
	defer func() { _ = store.Close() }()

	docID := uuid.New()
	for seq := 0; seq < 4; seq++ {
		if err := store.Upsert(ctx, testChunk(docID, seq, models.VerticalSet{"energy"}, []float32{1, 0, 0})); err != nil {
			t.Fatalf("Failed to upsert chunk: %v", err)
		}
	}

	n, err := store.CountByDocument(ctx, docID)
	if err != nil {
		t.Fatalf("CountByDocument failed: %v", err)
	}
	if n != 4 {
		t.Errorf("Expected 4 chunks, got %d", n)
	}
	if n, _ := store.CountByDocument(ctx, uuid.New()); n != 0 {
		t.Errorf("Expected 0 chunks for an unknown document, got %d", n)
	}
}

func TestSQLiteVectorStoreEmptyDB(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "vectors.db")

	store, err := NewSQLiteVectorStore(dbPath, nil)
	if err != nil {
		t.Fatalf("Failed to create SQLite vector store: %v", err)
	}
	defer func() { _ = store.Close() }()

	results, err := store.Search(ctx, []float32{1, 0, 0}, models.VerticalSet{"jio"}, 5, 0)
	if err != nil {
		t.Fatalf("Failed to search in empty store: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected 0 results from empty store, got %d", len(results))
	}
}
