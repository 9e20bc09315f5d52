package driven

import (
	"context"

	"github.com/custodia-labs/jarvis/internal/core/domain"
)

// TextExtractor is the MIME-aware text extraction collaborator used by the
// semantic indexer. It returns domain.ErrUnsupportedType when no normaliser
// handles the item's MIME type.
type TextExtractor interface {
	ExtractText(ctx context.Context, item *domain.ContentItem, raw []byte) (*NormaliseResult, error)
}

// NormaliserRegistry selects the appropriate normaliser for a document.
// It maintains a priority-ordered list of normalisers and dispatches
// on MIME type.
type NormaliserRegistry interface {
	TextExtractor

	// Register adds a normaliser to the registry.
	Register(normaliser Normaliser)

	// SupportedMIMETypes returns all MIME types that can be normalised.
	SupportedMIMETypes() []string
}
