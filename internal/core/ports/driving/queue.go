package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/jarvis/internal/core/domain"
)

// TaskQueue owns the task lifecycle.
type TaskQueue interface {
	// Enqueue adds a pending task. It is a no-op returning the existing id
	// when the same (type, content_id) is already pending or running.
	Enqueue(ctx context.Context, taskType domain.TaskType, contentID string, payload map[string]string) (string, error)

	// Claim atomically takes the oldest eligible task of one of types.
	// ok is false when nothing is eligible at now.
	Claim(ctx context.Context, types []domain.TaskType, now time.Time) (task *domain.Task, ok bool, err error)

	// Complete marks a claimed task done. The task must be the one Claim
	// returned; if its lease was reclaimed since, ErrTaskNotRunning is
	// returned and the stored task is left untouched.
	Complete(ctx context.Context, task *domain.Task, now time.Time) error

	// Fail records a failed attempt of a claimed task and either reschedules
	// it with backoff or marks it failed once the retry ceiling is reached.
	// A lost lease yields ErrTaskNotRunning, as for Complete.
	Fail(ctx context.Context, task *domain.Task, cause error, now time.Time) (*domain.Task, error)

	// ReclaimStale fails every running task claimed longer than lockTimeout
	// ago. Returns the number of tasks reclaimed.
	ReclaimStale(ctx context.Context, lockTimeout time.Duration, now time.Time) (int, error)

	// Stats counts tasks by type and status.
	Stats(ctx context.Context) (domain.QueueStats, error)

	// List returns tasks matching filter.
	List(ctx context.Context, filter domain.TaskFilter) ([]domain.Task, error)

	// Retry re-queues a failed task with a fresh attempt budget.
	Retry(ctx context.Context, taskID string, now time.Time) error

	// Purge deletes tasks in status older than olderThan.
	Purge(ctx context.Context, status domain.TaskStatus, olderThan time.Duration, now time.Time) (int64, error)
}
