// Package ingest runs the document pipeline: upload boundary checks,
// extraction, vertical classification, chunking, embedding and vector-store
// writes. Failures are local to the document being processed and are
// recorded on its status.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"mime"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"balancesheet-rag/internal/access"
	"balancesheet-rag/internal/audit"
	"balancesheet-rag/internal/chunker"
	"balancesheet-rag/internal/classifier"
	"balancesheet-rag/internal/embeddings"
	"balancesheet-rag/internal/faults"
	"balancesheet-rag/internal/models"
	"balancesheet-rag/internal/storage"
)

// Extractor turns raw PDF bytes into per-page text blocks.
type Extractor interface {
	Extract(ctx context.Context, data []byte) ([]models.TextBlock, error)
}

// Service ingests uploaded balance-sheet PDFs.
type Service struct {
	extractor  Extractor
	classifier *classifier.Classifier
	chunker    *chunker.Chunker
	embedder   embeddings.Client
	docs       storage.DocumentStore
	vectors    storage.VectorStore
	auditor    audit.Emitter
	logger     *slog.Logger

	maxBytes int64
	workers  int

	// Serializes concurrent ingestion per owner and content hash so two
	// uploads of the same bytes share one run: one document id, one set
	// of vector writes.
	group singleflight.Group
}

// NewService wires the ingestion pipeline. workers bounds concurrent
// embedding calls per document.
func NewService(
	ext Extractor,
	cls *classifier.Classifier,
	chk *chunker.Chunker,
	embedder embeddings.Client,
	docs storage.DocumentStore,
	vectors storage.VectorStore,
	auditor audit.Emitter,
	logger *slog.Logger,
	maxBytes int64,
	workers int,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if auditor == nil {
		auditor = audit.NopEmitter{}
	}
	if workers < 1 {
		workers = 1
	}
	return &Service{
		extractor:  ext,
		classifier: cls,
		chunker:    chk,
		embedder:   embedder,
		docs:       docs,
		vectors:    vectors,
		auditor:    auditor,
		logger:     logger,
		maxBytes:   maxBytes,
		workers:    workers,
	}
}

// Ingest accepts an uploaded PDF and processes it end to end. Re-uploading
// content an owner already ingested successfully returns the existing
// document without reprocessing; re-uploading after a failure retries under
// the same document id so vector writes stay idempotent.
func (s *Service) Ingest(ctx context.Context, principal access.Principal, filename, contentType string, data []byte) (*models.Document, error) {
	if !isPDFContentType(contentType) {
		return nil, faults.New(faults.KindUnsupportedMedia, "only application/pdf uploads are accepted")
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, faults.New(faults.KindPayloadTooLarge, "upload exceeds the configured size limit")
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	// The hash lookup and the pending save happen inside the flight, so
	// two first-time uploads of the same bytes cannot mint two documents,
	// and a re-upload during processing joins the running flight instead
	// of rewinding the document to pending.
	out, err, _ := s.group.Do(principal.Username+":"+hash, func() (any, error) {
		doc, found := s.docs.FindByHash(ctx, principal.Username, hash)
		if found && doc.Status == models.StatusCompleted {
			s.auditIngest(ctx, principal, doc, true, map[string]any{"reused": true})
			return doc, nil
		}
		if !found {
			doc = &models.Document{
				ID:          uuid.New(),
				Owner:       principal.Username,
				Filename:    filename,
				SizeBytes:   int64(len(data)),
				ContentHash: hash,
				Status:      models.StatusPending,
			}
		} else {
			// Retry after a failed run keeps the id; a fresh lifecycle starts.
			doc = &models.Document{
				ID:          doc.ID,
				Owner:       doc.Owner,
				Filename:    filename,
				SizeBytes:   int64(len(data)),
				ContentHash: hash,
				Status:      models.StatusPending,
				CreatedAt:   doc.CreatedAt,
			}
		}
		if err := s.docs.Save(ctx, doc); err != nil {
			return nil, err
		}
		return s.process(ctx, doc, data)
	})
	if err != nil {
		return nil, err
	}
	return out.(*models.Document), nil
}

// ListDocuments returns the principal's documents.
func (s *Service) ListDocuments(ctx context.Context, principal access.Principal) ([]models.Document, error) {
	return s.docs.ListByOwner(ctx, principal.Username)
}

// GetDocument returns one of the principal's documents.
func (s *Service) GetDocument(ctx context.Context, principal access.Principal, id uuid.UUID) (*models.Document, error) {
	doc, err := s.docs.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Owner != principal.Username {
		return nil, faults.New(faults.KindNotFound, "document not found")
	}
	return doc, nil
}

func (s *Service) process(ctx context.Context, doc *models.Document, data []byte) (*models.Document, error) {
	doc.Status = models.StatusProcessing
	if err := s.docs.Save(ctx, doc); err != nil {
		return nil, err
	}

	blocks, err := s.extractor.Extract(ctx, data)
	if err != nil {
		return nil, s.fail(ctx, doc, err)
	}
	classified := s.classifier.Classify(blocks)
	chunks := s.chunker.Split(doc.ID, classified)

	if err := s.embedAll(ctx, chunks); err != nil {
		return nil, s.fail(ctx, doc, err)
	}

	// Replace, never accumulate: deterministic chunk ids plus a prior
	// delete make re-ingestion converge on the same chunk set.
	if err := s.vectors.DeleteByDocument(ctx, doc.ID); err != nil {
		return nil, s.fail(ctx, doc, err)
	}
	for i := range chunks {
		if err := s.vectors.Upsert(ctx, &chunks[i]); err != nil {
			return nil, s.fail(ctx, doc, err)
		}
	}

	// The recorded count is the store's, read back after the replace, so
	// the document record and the index can never disagree.
	stored, err := s.vectors.CountByDocument(ctx, doc.ID)
	if err != nil {
		return nil, s.fail(ctx, doc, err)
	}

	doc.Status = models.StatusCompleted
	doc.PageCount = pageCount(blocks)
	doc.ChunkCount = stored
	doc.ErrorDetail = ""
	if err := s.docs.Save(ctx, doc); err != nil {
		return nil, err
	}
	s.auditIngest(ctx, access.Principal{Username: doc.Owner}, doc, true, map[string]any{
		"pages":  doc.PageCount,
		"chunks": doc.ChunkCount,
	})
	s.logger.Info("document ingested",
		"document_id", doc.ID, "owner", doc.Owner,
		"pages", doc.PageCount, "chunks", doc.ChunkCount)
	return doc, nil
}

// fail marks the document failed and propagates the cause. The status write
// must not be lost to a request deadline that expired mid-pipeline.
func (s *Service) fail(ctx context.Context, doc *models.Document, cause error) error {
	persistCtx := context.WithoutCancel(ctx)
	doc.Status = models.StatusFailed
	doc.ErrorDetail = cause.Error()
	if err := s.docs.Save(persistCtx, doc); err != nil {
		s.logger.Error("failed to record document failure",
			"document_id", doc.ID, "error", err)
	}
	s.auditIngest(persistCtx, access.Principal{Username: doc.Owner}, doc, false, map[string]any{
		"reason": string(faults.KindOf(cause)),
	})
	return cause
}

func (s *Service) embedAll(ctx context.Context, chunks []models.Chunk) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range chunks {
		g.Go(func() error {
			vec, err := s.embedder.Embed(gctx, chunks[i].Text)
			if err != nil {
				return err
			}
			chunks[i].Embedding = vec
			return nil
		})
	}
	return g.Wait()
}

func (s *Service) auditIngest(ctx context.Context, principal access.Principal, doc *models.Document, success bool, details map[string]any) {
	s.auditor.Emit(ctx, audit.Event{
		Actor:        principal.Username,
		Action:       "ingest_document",
		ResourceType: "document",
		ResourceID:   doc.ID.String(),
		Success:      success,
		Details:      details,
	})
}

func isPDFContentType(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.TrimSpace(strings.ToLower(contentType))
	}
	return mt == "application/pdf"
}

func pageCount(blocks []models.TextBlock) int {
	max := 0
	for _, b := range blocks {
		if b.Page > max {
			max = b.Page
		}
	}
	return max
}
