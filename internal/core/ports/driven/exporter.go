package driven

import (
	"context"

	"github.com/custodia-labs/jarvis/internal/core/domain"
)

// GraphExporter writes the entity graph to an external graph database.
type GraphExporter interface {
	// ExportEntities merges nodes and returns the number written.
	ExportEntities(ctx context.Context, entities []domain.GraphEntity) (int, error)

	// ExportRelations merges edges and returns the number written.
	ExportRelations(ctx context.Context, relations []domain.GraphRelation) (int, error)

	// Close releases resources.
	Close(ctx context.Context) error
}
