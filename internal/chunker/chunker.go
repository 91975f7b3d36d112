// Package chunker splits classified text blocks into overlapping fixed-size
// chunks suitable for embedding, preserving vertical and page provenance.
package chunker

import (
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"

	"balancesheet-rag/internal/models"
)

// Chunker applies a character-based sliding window over each block.
// Windows never cross block boundaries, so a chunk never merges text from
// blocks with different vertical sets; the window realigns at every block,
// even when that yields a short trailing chunk.
type Chunker struct {
	size    int
	overlap int
}

// New validates the window parameters. overlap must be smaller than size.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split produces the ordered chunk sequence for one document. Chunk IDs are
// deterministic in (documentID, seq) so re-ingestion reproduces them.
func (c *Chunker) Split(documentID uuid.UUID, blocks []models.ClassifiedBlock) []models.Chunk {
	var chunks []models.Chunk
	seq := 0
	for _, block := range blocks {
		text := block.Text
		if len(text) == 0 {
			continue
		}
		for start := 0; ; {
			end := start + c.size
			if end >= len(text) {
				end = len(text)
			} else {
				// Never split a multi-byte rune at the window edge.
				for end > start && !utf8.RuneStart(text[end]) {
					end--
				}
				if end == start {
					end = start + c.size
				}
			}
			chunks = append(chunks, models.Chunk{
				ID:         models.ChunkID(documentID, seq),
				DocumentID: documentID,
				Verticals:  append(models.VerticalSet(nil), block.Verticals...),
				Page:       block.Page,
				StartChar:  start,
				EndChar:    end,
				Seq:        seq,
				Text:       text[start:end],
			})
			seq++
			if end == len(text) {
				break
			}
			next := end - c.overlap
			if next <= start {
				next = start + 1
			}
			for next < len(text) && !utf8.RuneStart(text[next]) {
				next++
			}
			start = next
		}
	}
	return chunks
}
