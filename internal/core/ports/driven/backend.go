package driven

import (
	"context"

	"github.com/custodia-labs/jarvis/internal/core/domain"
)

// EntityBackend scans one text chunk for entity mentions.
// Backends are selected by configuration; every backend satisfies the same
// storage contract, and its Name tags each mention it produces.
type EntityBackend interface {
	// Name returns the backend tag, e.g. "rules:default" or "llm:mistral".
	Name() string

	// Scan returns mention candidates found in chunk. Zero candidates is a
	// valid result. Timeouts and malformed output are returned as errors.
	Scan(ctx context.Context, chunk domain.TextChunk) ([]domain.MentionCandidate, error)
}
