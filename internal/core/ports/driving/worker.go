package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/jarvis/internal/core/domain"
)

// TaskHandler performs the work of one task type.
// Returning an error fails the attempt; the queue decides whether to retry.
type TaskHandler interface {
	Handle(ctx context.Context, task *domain.Task) error
}

// TaskHandlerFunc adapts a function to TaskHandler.
type TaskHandlerFunc func(ctx context.Context, task *domain.Task) error

// Handle calls f.
func (f TaskHandlerFunc) Handle(ctx context.Context, task *domain.Task) error {
	return f(ctx, task)
}

// WorkerSummary reports what a worker run did.
type WorkerSummary struct {
	Claimed   int
	Completed int
	Failed    int
	Elapsed   time.Duration
}

// Worker claims and dispatches tasks.
type Worker interface {
	// RunOnce drains every eligible task and returns.
	RunOnce(ctx context.Context) (WorkerSummary, error)

	// Run processes tasks until ctx is cancelled, sleeping between polls
	// while the queue is empty.
	Run(ctx context.Context) error
}
