// Package retriever runs the access-scoped similarity search for one query:
// embed the query, search the vector store within the allowed verticals,
// drop weak matches.
package retriever

import (
	"context"

	"balancesheet-rag/internal/embeddings"
	"balancesheet-rag/internal/faults"
	"balancesheet-rag/internal/models"
	"balancesheet-rag/internal/storage"
)

// Retriever holds the query-time pipeline configuration. The vector store
// is an explicit dependency so tests can run against isolated stores.
type Retriever struct {
	embedder  embeddings.Client
	store     storage.VectorStore
	topK      int
	threshold float32
}

// New creates a retriever.
func New(embedder embeddings.Client, store storage.VectorStore, topK int, threshold float32) *Retriever {
	return &Retriever{
		embedder:  embedder,
		store:     store,
		topK:      topK,
		threshold: threshold,
	}
}

// Retrieve returns the chunks relevant to the query within the allowed
// vertical set. An empty allowed set fails with AccessDenied before any
// collaborator is contacted; an empty result set is a valid non-error
// outcome meaning nothing relevant was found.
func (r *Retriever) Retrieve(ctx context.Context, query string, allowed models.VerticalSet) (*models.RetrievalResult, error) {
	if len(allowed) == 0 {
		return nil, faults.New(faults.KindAccessDenied, "no verticals accessible for this query scope")
	}

	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	scored, err := r.store.Search(ctx, embedding, allowed, r.topK, r.threshold)
	if err != nil {
		return nil, err
	}

	// The store already applies the threshold; enforce it here as well so
	// a store implementation that returns weaker matches cannot widen the
	// result.
	kept := scored[:0]
	for _, sc := range scored {
		if sc.Similarity >= r.threshold {
			kept = append(kept, sc)
		}
	}

	return &models.RetrievalResult{
		Chunks:    kept,
		Verticals: append(models.VerticalSet(nil), allowed...),
	}, nil
}
