// Package extractor turns a PDF byte stream into ordered per-page text
// blocks. Extraction is best-effort: a page with no recoverable text yields
// an empty block rather than failing the document, and the whole extraction
// fails only when no page yields any text at all.
package extractor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"balancesheet-rag/internal/faults"
	"balancesheet-rag/internal/models"
)

// Extractor is a pure transform from PDF bytes to text blocks.
type Extractor struct {
	maxBytes int64
	conf     *model.Configuration
}

// New creates an extractor that rejects inputs larger than maxBytes.
func New(maxBytes int64) *Extractor {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Extractor{maxBytes: maxBytes, conf: conf}
}

// Extract parses the PDF and returns one text block per page, in page order.
func (e *Extractor) Extract(ctx context.Context, data []byte) ([]models.TextBlock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.maxBytes > 0 && int64(len(data)) > e.maxBytes {
		return nil, faults.New(faults.KindExtraction,
			fmt.Sprintf("document of %d bytes exceeds limit of %d", len(data), e.maxBytes))
	}
	if len(data) == 0 {
		return nil, faults.New(faults.KindExtraction, "empty document")
	}

	// pdfcpu's validation and content extraction work on files; stage the
	// bytes in a private temp dir for the duration of the call.
	tmpDir, err := os.MkdirTemp("", "bsrag-extract-")
	if err != nil {
		return nil, faults.Wrap(faults.KindExtraction, "staging extraction dir", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	inPath := filepath.Join(tmpDir, "doc.pdf")
	if err := os.WriteFile(inPath, data, 0o600); err != nil {
		return nil, faults.Wrap(faults.KindExtraction, "staging document", err)
	}

	if err := api.ValidateFile(inPath, e.conf); err != nil {
		return nil, faults.Wrap(faults.KindExtraction, "not a parseable PDF", err)
	}

	pageCount, err := api.PageCountFile(inPath)
	if err != nil {
		return nil, faults.Wrap(faults.KindExtraction, "reading page count", err)
	}
	if pageCount == 0 {
		return nil, faults.New(faults.KindExtraction, "PDF has no pages")
	}

	contentDir := filepath.Join(tmpDir, "content")
	if err := os.MkdirAll(contentDir, 0o700); err != nil {
		return nil, faults.Wrap(faults.KindExtraction, "staging content dir", err)
	}
	if err := api.ExtractContentFile(inPath, contentDir, nil, e.conf); err != nil {
		return nil, faults.Wrap(faults.KindExtraction, "extracting page content", err)
	}

	blocks := make([]models.TextBlock, 0, pageCount)
	anyText := false
	for page := 1; page <= pageCount; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text := decodePageText(pageContent(contentDir, page))
		if strings.TrimSpace(text) != "" {
			anyText = true
		}
		blocks = append(blocks, models.TextBlock{Page: page, Text: text})
	}

	if !anyText {
		return nil, faults.New(faults.KindExtraction, "no extractable text on any page")
	}
	return blocks, nil
}

// pageContent locates the extracted content stream for a page. pdfcpu names
// the files after the input with a page suffix; match on the suffix so the
// prefix convention is free to change.
func pageContent(dir string, page int) []byte {
	patterns := []string{
		fmt.Sprintf("*_Content_page_%d.txt", page),
		fmt.Sprintf("*page_%d.txt", page),
		fmt.Sprintf("*_%d.txt", page),
	}
	for _, p := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, p))
		if err == nil && len(matches) > 0 {
			if data, err := os.ReadFile(matches[0]); err == nil {
				return data
			}
		}
	}
	return nil
}
