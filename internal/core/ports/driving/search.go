package driving

import (
	"context"

	"github.com/custodia-labs/jarvis/internal/core/domain"
)

// SearchService finds indexed chunks by text.
type SearchService interface {
	// Search returns chunks ranked by relevance to query, together with the
	// mode that produced them.
	Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, domain.SearchMode, error)
}
