package driving

import (
	"context"

	"github.com/custodia-labs/jarvis/internal/core/domain"
)

// ContentRegistry assigns identity and dedup keys to ingestible units.
type ContentRegistry interface {
	// Register stores raw as a content item of kind and enqueues its first
	// pipeline stage. Registering bytes whose hash is already known returns
	// the existing content id and writes nothing. All failures are returned
	// as *domain.RegistrationError.
	Register(ctx context.Context, raw []byte, kind domain.ContentKind, prov domain.Provenance) (string, error)

	// Get returns a registered item.
	Get(ctx context.Context, contentID string) (*domain.ContentItem, error)

	// List returns registered items.
	List(ctx context.Context, filter domain.ContentFilter) ([]domain.ContentItem, error)
}
