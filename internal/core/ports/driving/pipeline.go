package driving

import (
	"context"

	"github.com/custodia-labs/jarvis/internal/core/domain"
)

// SemanticIndexer chunks and embeds content.
type SemanticIndexer interface {
	TaskHandler

	// Index chunks and embeds contentID and returns the stored chunks.
	Index(ctx context.Context, contentID string) ([]domain.TextChunk, error)
}

// EntityExtractor runs the active backend over indexed chunks.
type EntityExtractor interface {
	TaskHandler

	// Extract scans chunks of contentID not yet processed by the active
	// backend and returns the mentions it stored.
	Extract(ctx context.Context, contentID string) ([]domain.EntityMention, error)

	// Backend returns the active backend name.
	Backend() string

	// PurgeBackend removes every mention produced by backend.
	PurgeBackend(ctx context.Context, backend string) (int64, error)
}

// FactService runs fact builders and persists their rows.
type FactService interface {
	TaskHandler

	// Build runs the builder for taskType over the mentions of contentID
	// produced by backend.
	Build(ctx context.Context, taskType domain.TaskType, contentID, backend string) ([]domain.FactRow, error)

	// List returns stored rows of factDomain. An empty contentID matches all.
	List(ctx context.Context, factDomain domain.FactDomain, contentID string) ([]domain.FactRow, error)
}

// ExportSummary reports a graph export.
type ExportSummary struct {
	Entities  int
	Relations int
}

// GraphExportService copies the persisted graph to a graph database.
type GraphExportService interface {
	Export(ctx context.Context) (ExportSummary, error)
}
