// Package classifier assigns extracted text blocks to organizational
// verticals using keyword heuristics. The assignment governs which users may
// ever retrieve a block, so the classifier prefers under-restriction: on
// ambiguity it keeps every plausible vertical rather than silently dropping
// one, and text matching nothing falls back to the group-wide vertical.
package classifier

import (
	"log/slog"
	"sort"
	"strings"

	"balancesheet-rag/internal/models"
)

// minConfidence is the normalized score below which a vertical match is
// treated as noise.
const minConfidence = 0.3

type keywordTable struct {
	vertical models.Vertical
	terms    []string
}

// Classifier scores blocks against immutable keyword tables loaded once at
// startup.
type Classifier struct {
	tables []keywordTable
	logger *slog.Logger
}

// New builds a classifier from the configured vertical -> trigger-term map.
func New(verticals map[string][]string, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	tables := make([]keywordTable, 0, len(verticals))
	for name, terms := range verticals {
		lowered := make([]string, len(terms))
		for i, t := range terms {
			lowered[i] = strings.ToLower(t)
		}
		tables = append(tables, keywordTable{vertical: models.Vertical(name), terms: lowered})
	}
	// Deterministic scoring order regardless of map iteration.
	sort.Slice(tables, func(i, j int) bool { return tables[i].vertical < tables[j].vertical })
	return &Classifier{tables: tables, logger: logger}
}

// verticalScore carries the match strength of one vertical within a block.
type verticalScore struct {
	vertical   models.Vertical
	confidence float64
	firstIndex int
	density    float64
}

// Classify tags each block with a non-empty vertical set.
func (c *Classifier) Classify(blocks []models.TextBlock) []models.ClassifiedBlock {
	out := make([]models.ClassifiedBlock, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, models.ClassifiedBlock{
			TextBlock: b,
			Verticals: c.classifyBlock(b),
		})
	}
	return out
}

func (c *Classifier) classifyBlock(b models.TextBlock) models.VerticalSet {
	text := strings.ToLower(b.Text)
	var matches []verticalScore
	for _, table := range c.tables {
		if s, ok := scoreTable(text, table); ok {
			matches = append(matches, s)
		}
	}

	if len(matches) == 0 {
		if strings.TrimSpace(b.Text) != "" {
			c.logger.Debug("block matched no vertical, defaulting to group-wide",
				"page", b.Page, "chars", len(b.Text))
		}
		return models.VerticalSet{models.VerticalGroupWide}
	}

	// Order by confidence, then by earliest/densest occurrence. Exact ties
	// beyond that keep every tied vertical; the sort only fixes the order of
	// the resulting set.
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].confidence != matches[j].confidence {
			return matches[i].confidence > matches[j].confidence
		}
		if matches[i].firstIndex != matches[j].firstIndex {
			return matches[i].firstIndex < matches[j].firstIndex
		}
		return matches[i].density > matches[j].density
	})

	set := make(models.VerticalSet, len(matches))
	for i, m := range matches {
		set[i] = m.vertical
	}
	return set
}

// scoreTable computes the normalized confidence of a vertical within a text,
// weighting occurrence count by term length.
func scoreTable(text string, table keywordTable) (verticalScore, bool) {
	var raw float64
	var hits int
	first := -1
	for _, term := range table.terms {
		n := strings.Count(text, term)
		if n == 0 {
			continue
		}
		hits += n
		raw += float64(n*len(term)) / float64(len(table.terms))
		if idx := strings.Index(text, term); first == -1 || idx < first {
			first = idx
		}
	}
	if raw == 0 {
		return verticalScore{}, false
	}
	confidence := raw / 10
	if confidence > 1 {
		confidence = 1
	}
	if confidence < minConfidence {
		return verticalScore{}, false
	}
	density := float64(hits) / float64(len(text)+1)
	return verticalScore{
		vertical:   table.vertical,
		confidence: confidence,
		firstIndex: first,
		density:    density,
	}, true
}
