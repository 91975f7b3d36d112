package models

import (
	"strconv"

	"github.com/google/uuid"
)

// chunkNamespace scopes deterministic chunk IDs so that re-ingesting the
// same document reproduces the same IDs and upserts replace rather than
// accumulate.
var chunkNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// Chunk is a bounded span of extracted document text, the atomic unit
// stored and retrieved for grounding. Chunks are created once during
// ingestion, never mutated, and deleted only with their document.
type Chunk struct {
	ID         uuid.UUID   `json:"id"`
	DocumentID uuid.UUID   `json:"document_id"`
	Verticals  VerticalSet `json:"verticals"`
	Page       int         `json:"page"`
	StartChar  int         `json:"start_char"`
	EndChar    int         `json:"end_char"`
	Seq        int         `json:"seq"`
	Text       string      `json:"text"`
	Embedding  []float32   `json:"-"`
}

// ChunkID derives the deterministic ID for the chunk at position seq
// within a document.
func ChunkID(documentID uuid.UUID, seq int) uuid.UUID {
	return uuid.NewSHA1(chunkNamespace, []byte(documentID.String()+"/"+strconv.Itoa(seq)))
}

// ScoredChunk pairs a chunk with its similarity to a query vector.
type ScoredChunk struct {
	Chunk      Chunk   `json:"chunk"`
	Similarity float32 `json:"similarity"`
}

// RetrievalResult is the ephemeral outcome of one access-scoped similarity
// search: chunks ordered by descending similarity plus the vertical set the
// search was scoped to. An empty Chunks slice is a valid outcome meaning
// nothing relevant was found.
type RetrievalResult struct {
	Chunks    []ScoredChunk `json:"chunks"`
	Verticals VerticalSet   `json:"verticals"`
}
