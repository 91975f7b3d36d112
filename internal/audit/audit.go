// Package audit emits structured audit events for ingestion, retrieval-scope
// decisions, and turn completions. Delivery is fire-and-forget: a failing
// audit sink must never fail the operation being audited.
package audit

import (
	"context"
	"log/slog"
)

// Event is one auditable action.
type Event struct {
	Actor        string         `json:"actor"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Success      bool           `json:"success"`
	Details      map[string]any `json:"details,omitempty"`
}

// Emitter delivers audit events.
type Emitter interface {
	Emit(ctx context.Context, e Event)
}

// LogEmitter writes audit events to a structured logger.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter creates an emitter backed by the given logger.
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

func (l *LogEmitter) Emit(_ context.Context, e Event) {
	attrs := []any{
		slog.String("actor", e.Actor),
		slog.String("action", e.Action),
		slog.String("resource_type", e.ResourceType),
		slog.String("resource_id", e.ResourceID),
		slog.Bool("success", e.Success),
	}
	if len(e.Details) > 0 {
		attrs = append(attrs, slog.Any("details", e.Details))
	}
	l.logger.Info("audit", attrs...)
}

// NopEmitter discards all events.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, Event) {}
