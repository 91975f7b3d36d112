package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // Import sqlite3 driver

	"balancesheet-rag/internal/faults"
	"balancesheet-rag/internal/models"
)

func init() {
	sqlite_vec.Auto()
}

// SQLiteVectorStore implements VectorStore on sqlite-vec. Chunk metadata
// lives in plain tables, embeddings in a vec0 virtual table declared with
// cosine distance; the vertical restriction is applied in SQL before
// results leave the store.
type SQLiteVectorStore struct {
	db              *sql.DB
	embeddingLength int
	logger          *slog.Logger
}

// NewSQLiteVectorStore opens (and initializes if needed) a store at dsn.
func NewSQLiteVectorStore(dsn string, logger *slog.Logger) (*SQLiteVectorStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &SQLiteVectorStore{db: db, logger: logger}
	if err := store.initDB(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return store, nil
}

func (s *SQLiteVectorStore) initDB() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		page INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		start_char INTEGER NOT NULL,
		end_char INTEGER NOT NULL,
		content TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
	CREATE TABLE IF NOT EXISTS chunk_verticals (
		chunk_id TEXT NOT NULL,
		vertical TEXT NOT NULL,
		PRIMARY KEY (chunk_id, vertical)
	);
	CREATE INDEX IF NOT EXISTS idx_chunk_verticals_vertical ON chunk_verticals(vertical);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create chunk tables: %w", err)
	}
	// vec_chunks is created lazily on first upsert once the embedding
	// dimension is known. On reopen, recover the dimension from the
	// existing table so searches see previously ingested vectors.
	var dim sql.NullInt64
	err := s.db.QueryRow(`SELECT vec_length(embedding) FROM vec_chunks LIMIT 1`).Scan(&dim)
	if err == nil && dim.Valid {
		s.embeddingLength = int(dim.Int64)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteVectorStore) Close() error {
	return s.db.Close()
}

// serializeFloat32Vector converts a float32 slice to the byte format expected by sqlite-vec
func serializeFloat32Vector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:(i+1)*4], math.Float32bits(v))
	}
	return buf
}

// ensureVecTableExists creates the vec_chunks table on first use.
func (s *SQLiteVectorStore) ensureVecTableExists(embeddingLen int) error {
	if s.embeddingLength != 0 && s.embeddingLength != embeddingLen {
		return fmt.Errorf("cannot change embedding length from %d to %d", s.embeddingLength, embeddingLen)
	}

	var tableExists int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='vec_chunks'").Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("failed to check vec_chunks existence: %w", err)
	}

	if tableExists == 0 {
		vecQuery := fmt.Sprintf(`
			CREATE VIRTUAL TABLE vec_chunks USING vec0(
				id TEXT PRIMARY KEY,
				embedding FLOAT[%d] distance_metric=cosine
			)
		`, embeddingLen)
		if _, err := s.db.Exec(vecQuery); err != nil {
			return fmt.Errorf("failed to create vec_chunks table: %w", err)
		}
	}
	s.embeddingLength = embeddingLen
	return nil
}

// Upsert inserts or replaces a chunk, its vertical memberships, and its
// embedding in one transaction.
func (s *SQLiteVectorStore) Upsert(ctx context.Context, chunk *models.Chunk) error {
	if chunk.ID == uuid.Nil {
		return fmt.Errorf("chunk has no ID")
	}
	if len(chunk.Verticals) == 0 {
		return fmt.Errorf("chunk %s has an empty vertical set", chunk.ID)
	}
	if err := s.ensureVecTableExists(len(chunk.Embedding)); err != nil {
		return fmt.Errorf("failed to ensure vec table exists: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	metaQuery := `
		INSERT INTO chunks (id, document_id, page, seq, start_char, end_char, content)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			page = excluded.page,
			seq = excluded.seq,
			start_char = excluded.start_char,
			end_char = excluded.end_char,
			content = excluded.content
	`
	if _, err := tx.ExecContext(ctx, metaQuery,
		chunk.ID.String(), chunk.DocumentID.String(), chunk.Page, chunk.Seq,
		chunk.StartChar, chunk.EndChar, chunk.Text); err != nil {
		return fmt.Errorf("failed to upsert chunk metadata: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_verticals WHERE chunk_id = ?`, chunk.ID.String()); err != nil {
		return fmt.Errorf("failed to clear chunk verticals: %w", err)
	}
	for _, v := range chunk.Verticals {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunk_verticals (chunk_id, vertical) VALUES (?, ?)`,
			chunk.ID.String(), string(v)); err != nil {
			return fmt.Errorf("failed to insert chunk vertical: %w", err)
		}
	}

	// vec0 does not support UPDATE; delete and insert.
	if _, err := tx.ExecContext(ctx, `DELETE FROM vec_chunks WHERE id = ?`, chunk.ID.String()); err != nil {
		return fmt.Errorf("failed to delete old vector: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO vec_chunks (id, embedding) VALUES (?, ?)`,
		chunk.ID.String(), serializeFloat32Vector(chunk.Embedding)); err != nil {
		return fmt.Errorf("failed to insert chunk vector: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteByDocument removes every chunk belonging to a document.
func (s *SQLiteVectorStore) DeleteByDocument(ctx context.Context, documentID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM chunks WHERE document_id = ?`, documentID.String())
	if err != nil {
		return fmt.Errorf("failed to list document chunks: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return fmt.Errorf("failed to scan chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("failed to iterate document chunks: %w", err)
	}
	_ = rows.Close()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_verticals WHERE chunk_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete chunk verticals: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM vec_chunks WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete chunk vector: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID.String()); err != nil {
		return fmt.Errorf("failed to delete chunk metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const (
	initialMultiplier = 2
	growthFactor      = 2
	maxAttempts       = 10
)

// Search performs KNN search and applies the allowed-vertical restriction
// and similarity threshold inside the store. Because the vertical filter
// runs after the KNN pass, the candidate pool grows geometrically until
// topK matching chunks are found or the index is exhausted. An empty
// allowed set short-circuits to an empty result without touching the index.
func (s *SQLiteVectorStore) Search(ctx context.Context, embedding []float32, allowed models.VerticalSet, topK int, minSimilarity float32) ([]models.ScoredChunk, error) {
	if len(allowed) == 0 || topK <= 0 {
		return []models.ScoredChunk{}, nil
	}
	if s.embeddingLength == 0 {
		// Nothing ingested yet.
		return []models.ScoredChunk{}, nil
	}

	multiplier := initialMultiplier
	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidateCount := topK * multiplier
		candidates, err := s.knn(ctx, embedding, candidateCount)
		if err != nil {
			return nil, err
		}

		matched, err := s.restrictAndHydrate(ctx, candidates, allowed, topK, minSimilarity)
		if err != nil {
			return nil, err
		}
		if len(matched) >= topK || len(candidates) < candidateCount {
			return matched, nil
		}

		s.logger.Debug("widening vector search candidate pool",
			"matched", len(matched), "top_k", topK, "candidates", candidateCount)
		multiplier *= growthFactor
	}

	candidates, err := s.knn(ctx, embedding, topK*multiplier)
	if err != nil {
		return nil, err
	}
	return s.restrictAndHydrate(ctx, candidates, allowed, topK, minSimilarity)
}

type knnHit struct {
	id       string
	distance float32
}

func (s *SQLiteVectorStore) knn(ctx context.Context, embedding []float32, k int) ([]knnHit, error) {
	query := `
		SELECT id, distance
		FROM vec_chunks
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance
	`
	rows, err := s.db.QueryContext(ctx, query, serializeFloat32Vector(embedding), k)
	if err != nil {
		return nil, faults.Wrap(faults.KindRetrievalUnavailable, "vector search failed", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []knnHit
	for rows.Next() {
		var h knnHit
		if err := rows.Scan(&h.id, &h.distance); err != nil {
			return nil, faults.Wrap(faults.KindRetrievalUnavailable, "scanning vector search row", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, faults.Wrap(faults.KindRetrievalUnavailable, "iterating vector search rows", err)
	}
	return hits, nil
}

// restrictAndHydrate keeps candidates whose vertical set intersects allowed,
// drops those below the similarity threshold, and loads full chunk rows.
// Candidate order (ascending distance) is preserved.
func (s *SQLiteVectorStore) restrictAndHydrate(ctx context.Context, candidates []knnHit, allowed models.VerticalSet, topK int, minSimilarity float32) ([]models.ScoredChunk, error) {
	results := []models.ScoredChunk{}
	if len(candidates) == 0 {
		return results, nil
	}

	ids := make([]any, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.id)
	}
	verticalArgs := make([]any, 0, len(allowed))
	for _, v := range allowed {
		verticalArgs = append(verticalArgs, string(v))
	}

	query := fmt.Sprintf(`
		SELECT c.id, c.document_id, c.page, c.seq, c.start_char, c.end_char, c.content
		FROM chunks c
		WHERE c.id IN (%s)
		  AND EXISTS (
			SELECT 1 FROM chunk_verticals cv
			WHERE cv.chunk_id = c.id AND cv.vertical IN (%s)
		  )
	`, placeholders(len(ids)), placeholders(len(verticalArgs)))

	args := append(append([]any{}, ids...), verticalArgs...)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, faults.Wrap(faults.KindRetrievalUnavailable, "hydrating search results", err)
	}
	defer func() { _ = rows.Close() }()

	byID := make(map[string]models.Chunk)
	for rows.Next() {
		var idStr, docStr, content string
		var page, seq, startChar, endChar int
		if err := rows.Scan(&idStr, &docStr, &page, &seq, &startChar, &endChar, &content); err != nil {
			return nil, faults.Wrap(faults.KindRetrievalUnavailable, "scanning chunk row", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			s.logger.Warn("skipping chunk with malformed id", "id", idStr)
			continue
		}
		docID, err := uuid.Parse(docStr)
		if err != nil {
			s.logger.Warn("skipping chunk with malformed document id", "id", idStr, "document_id", docStr)
			continue
		}
		byID[idStr] = models.Chunk{
			ID:         id,
			DocumentID: docID,
			Page:       page,
			Seq:        seq,
			StartChar:  startChar,
			EndChar:    endChar,
			Text:       content,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, faults.Wrap(faults.KindRetrievalUnavailable, "iterating chunk rows", err)
	}

	if err := s.attachVerticals(ctx, byID); err != nil {
		return nil, err
	}

	for _, cand := range candidates {
		chunk, ok := byID[cand.id]
		if !ok {
			continue
		}
		similarity := 1 - cand.distance
		if similarity < minSimilarity {
			continue
		}
		results = append(results, models.ScoredChunk{Chunk: chunk, Similarity: similarity})
		if len(results) >= topK {
			break
		}
	}
	return results, nil
}

func (s *SQLiteVectorStore) attachVerticals(ctx context.Context, byID map[string]models.Chunk) error {
	if len(byID) == 0 {
		return nil
	}
	ids := make([]any, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	query := fmt.Sprintf(
		`SELECT chunk_id, vertical FROM chunk_verticals WHERE chunk_id IN (%s)`,
		placeholders(len(ids)))
	rows, err := s.db.QueryContext(ctx, query, ids...)
	if err != nil {
		return faults.Wrap(faults.KindRetrievalUnavailable, "loading chunk verticals", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var chunkID, vertical string
		if err := rows.Scan(&chunkID, &vertical); err != nil {
			return faults.Wrap(faults.KindRetrievalUnavailable, "scanning chunk vertical", err)
		}
		chunk := byID[chunkID]
		chunk.Verticals = append(chunk.Verticals, models.Vertical(vertical))
		byID[chunkID] = chunk
	}
	return rows.Err()
}

// CountByVertical reports stored chunk counts per vertical.
func (s *SQLiteVectorStore) CountByVertical(ctx context.Context) (map[models.Vertical]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT vertical, COUNT(*) FROM chunk_verticals GROUP BY vertical`)
	if err != nil {
		return nil, faults.Wrap(faults.KindRetrievalUnavailable, "counting chunks by vertical", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[models.Vertical]int)
	for rows.Next() {
		var vertical string
		var n int
		if err := rows.Scan(&vertical, &n); err != nil {
			return nil, faults.Wrap(faults.KindRetrievalUnavailable, "scanning vertical count", err)
		}
		counts[models.Vertical(vertical)] = n
	}
	return counts, rows.Err()
}

// CountByDocument reports the number of chunks stored for one document.
func (s *SQLiteVectorStore) CountByDocument(ctx context.Context, documentID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunks WHERE document_id = ?`, documentID.String()).Scan(&n)
	if err != nil {
		return 0, faults.Wrap(faults.KindRetrievalUnavailable, "counting document chunks", err)
	}
	return n, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
