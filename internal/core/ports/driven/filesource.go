package driven

import (
	"context"

	"github.com/custodia-labs/jarvis/internal/core/domain"
)

// FileSource walks local files for ingestion.
type FileSource interface {
	// Walk calls fn for every readable file under root. Returning an error
	// from fn stops the walk.
	Walk(ctx context.Context, root string, fn func(doc domain.RawDocument) error) error

	// Watch streams changes under roots until ctx is cancelled.
	Watch(ctx context.Context, roots []string) (<-chan domain.RawDocumentChange, error)
}
