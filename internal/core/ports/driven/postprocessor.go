package driven

import (
	"context"

	"github.com/custodia-labs/jarvis/internal/core/domain"
)

// Chunker splits extracted text into bounded chunks.
// Splitting must be deterministic: the same pages always produce the same
// chunk boundaries.
type Chunker interface {
	// Name returns the chunker name for logging.
	Name() string

	// Chunk splits pages into chunks for contentID, numbering them from 0.
	Chunk(ctx context.Context, contentID string, pages []string) ([]domain.TextChunk, error)
}
