// Package assembler turns a retrieval result into a bounded prompt context
// with source attribution.
package assembler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"balancesheet-rag/internal/models"
)

// Assembled is the prompt payload for one turn plus the citations backing
// it. Insufficient is set when no usable context survived assembly; the
// caller must answer "insufficient data" instead of invoking the model.
type Assembled struct {
	Context      string
	Citations    []models.SourceRef
	Insufficient bool
}

// Assembler concatenates retrieved chunks up to a configured length.
type Assembler struct {
	maxContextLength int
}

// New creates an assembler bounded at maxContextLength characters.
func New(maxContextLength int) *Assembler {
	return &Assembler{maxContextLength: maxContextLength}
}

// Assemble deduplicates chunks by ID (keeping the best similarity), orders
// them by descending similarity, and concatenates source-tagged chunk texts
// until the next chunk would exceed the length bound. Truncation happens
// only at chunk boundaries, never mid-chunk.
func (a *Assembler) Assemble(result *models.RetrievalResult) Assembled {
	if result == nil || len(result.Chunks) == 0 {
		return Assembled{Insufficient: true}
	}

	// Dedupe: a chunk tagged with several verticals the user can access
	// still appears once.
	best := make(map[uuid.UUID]models.ScoredChunk, len(result.Chunks))
	for _, sc := range result.Chunks {
		if prev, ok := best[sc.Chunk.ID]; !ok || sc.Similarity > prev.Similarity {
			best[sc.Chunk.ID] = sc
		}
	}
	deduped := make([]models.ScoredChunk, 0, len(best))
	for _, sc := range best {
		deduped = append(deduped, sc)
	}
	sort.SliceStable(deduped, func(i, j int) bool {
		if deduped[i].Similarity != deduped[j].Similarity {
			return deduped[i].Similarity > deduped[j].Similarity
		}
		return deduped[i].Chunk.Seq < deduped[j].Chunk.Seq
	})

	var sb strings.Builder
	var citations []models.SourceRef
	for _, sc := range deduped {
		part := renderChunk(sc.Chunk)
		if sb.Len()+len(part) > a.maxContextLength {
			break
		}
		sb.WriteString(part)
		citations = append(citations, models.SourceRef{
			ChunkID:    sc.Chunk.ID,
			DocumentID: sc.Chunk.DocumentID,
			Verticals:  append(models.VerticalSet(nil), sc.Chunk.Verticals...),
			Page:       sc.Chunk.Page,
			Similarity: sc.Similarity,
		})
	}

	if len(citations) == 0 {
		return Assembled{Insufficient: true}
	}
	return Assembled{Context: sb.String(), Citations: citations}
}

// renderChunk prefixes chunk text with its source tag.
func renderChunk(chunk models.Chunk) string {
	labels := make([]string, len(chunk.Verticals))
	for i, v := range chunk.Verticals {
		labels[i] = strings.ToUpper(string(v))
	}
	return fmt.Sprintf("[%s - Page %d]\n%s\n\n", strings.Join(labels, "/"), chunk.Page, chunk.Text)
}
