package driven

import (
	"context"

	"github.com/custodia-labs/jarvis/internal/core/domain"
)

// FactBuilder reduces the entity mentions of one content item into
// domain fact rows. Builders are pure: persistence is done by the caller.
type FactBuilder interface {
	// TaskType returns the task type this builder consumes.
	TaskType() domain.TaskType

	// Labels returns the mention labels the builder reads.
	Labels() []string

	// Build returns the fact rows for input.
	Build(ctx context.Context, input domain.FactInput) ([]domain.FactRow, error)
}
