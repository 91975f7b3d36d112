// Package models defines the core domain types shared across the pipeline.
package models

import (
	"time"

	"github.com/google/uuid"
)

// DocumentStatus tracks the ingestion lifecycle of an uploaded PDF.
// A document transitions pending -> processing -> (completed | failed)
// exactly once and is immutable after reaching a terminal status.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s DocumentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Document identifies one uploaded balance-sheet PDF.
type Document struct {
	ID          uuid.UUID      `json:"id"`
	Owner       string         `json:"owner"`
	Filename    string         `json:"filename"`
	SizeBytes   int64          `json:"size_bytes"`
	ContentHash string         `json:"content_hash"`
	PageCount   int            `json:"page_count"`
	ChunkCount  int            `json:"chunk_count"`
	Status      DocumentStatus `json:"status"`
	ErrorDetail string         `json:"error_detail,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TextBlock is one extracted span of page text, ordered by page.
type TextBlock struct {
	Page int
	Text string
}

// ClassifiedBlock is a text block tagged with the verticals it belongs to.
// The vertical set is never empty; unclassifiable text falls back to
// the group-wide vertical.
type ClassifiedBlock struct {
	TextBlock
	Verticals VerticalSet
}
