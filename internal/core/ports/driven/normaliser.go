package driven

import (
	"context"

	"github.com/custodia-labs/jarvis/internal/core/domain"
)

// Normaliser extracts text from raw bytes of specific MIME types
// (e.g., PDF, Markdown).
type Normaliser interface {
	// SupportedMIMETypes returns the MIME types this normaliser handles.
	SupportedMIMETypes() []string

	// Priority returns the selection priority (higher = preferred).
	// Format-specific normalisers should return 50-89.
	// Fallback normalisers should return 1-9.
	Priority() int

	// Normalise extracts text from a raw document.
	Normalise(ctx context.Context, raw *domain.RawDocument) (*NormaliseResult, error)
}

// NormaliseResult contains the output of normalisation.
// Chunking is handled by the indexer.
type NormaliseResult struct {
	// Title is a human-readable title, if the format carries one.
	Title string

	// Pages holds the text per page. Formats without pages return one.
	Pages []string
}

// Text joins all pages.
func (r *NormaliseResult) Text() string {
	if r == nil {
		return ""
	}
	n := 0
	for _, p := range r.Pages {
		n += len(p) + 2
	}
	buf := make([]byte, 0, n)
	for i, p := range r.Pages {
		if i > 0 {
			buf = append(buf, '\n', '\n')
		}
		buf = append(buf, p...)
	}
	return string(buf)
}
