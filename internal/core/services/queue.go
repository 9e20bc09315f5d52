package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
	"github.com/custodia-labs/jarvis/internal/core/ports/driving"
)

// Ensure Queue implements the interface.
var _ driving.TaskQueue = (*Queue)(nil)

// Queue owns the task lifecycle on top of a durable TaskStore.
// The store guarantees atomic claims; the queue decides retry outcomes.
type Queue struct {
	store    driven.TaskStore
	policy   domain.RetryPolicy
	workerID string
	logger   *slog.Logger
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p domain.RetryPolicy) QueueOption {
	return func(q *Queue) { q.policy = p }
}

// WithWorkerID sets the id recorded in claimed_by.
func WithWorkerID(id string) QueueOption {
	return func(q *Queue) {
		if id != "" {
			q.workerID = id
		}
	}
}

// WithQueueLogger sets the logger. Default is slog.Default().
func WithQueueLogger(logger *slog.Logger) QueueOption {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// NewQueue creates a task queue.
func NewQueue(store driven.TaskStore, opts ...QueueOption) *Queue {
	q := &Queue{
		store:    store,
		policy:   domain.DefaultRetryPolicy(),
		workerID: defaultWorkerID(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.With("component", "queue")
	return q
}

// Policy returns the active retry policy.
func (q *Queue) Policy() domain.RetryPolicy {
	return q.policy
}

// Enqueue adds a pending task unless one is already active.
func (q *Queue) Enqueue(
	ctx context.Context,
	taskType domain.TaskType,
	contentID string,
	payload map[string]string,
) (string, error) {
	if !taskType.Valid() {
		return "", fmt.Errorf("%w: task type %q", domain.ErrUnsupportedType, taskType)
	}
	if contentID == "" {
		return "", fmt.Errorf("%w: content id required", domain.ErrInvalidInput)
	}

	now := time.Now().UTC()
	task := &domain.Task{
		TaskID:        uuid.NewString(),
		Type:          taskType,
		ContentID:     contentID,
		Status:        domain.TaskPending,
		NextAttemptAt: now,
		Payload:       payload,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	id, created, err := q.store.EnqueueTask(ctx, task)
	if err != nil {
		return "", fmt.Errorf("enqueue %s for %s: %w", taskType, contentID, err)
	}
	if created {
		q.logger.Debug("task enqueued", "task_id", id, "type", taskType, "content_id", contentID)
	}
	return id, nil
}

// Claim takes the oldest eligible task of one of types.
func (q *Queue) Claim(ctx context.Context, types []domain.TaskType, now time.Time) (*domain.Task, bool, error) {
	task, err := q.store.ClaimTask(ctx, types, q.workerID, now.UTC())
	if err != nil {
		return nil, false, fmt.Errorf("claim task: %w", err)
	}
	if task == nil {
		return nil, false, nil
	}
	return task, true, nil
}

// Complete marks a claimed task done.
func (q *Queue) Complete(ctx context.Context, task *domain.Task, now time.Time) error {
	if err := requireClaim(task); err != nil {
		return err
	}
	err := q.store.FinishAttempt(ctx, task.TaskID, driven.TaskUpdate{
		Status:    domain.TaskDone,
		ClaimedBy: task.ClaimedBy,
		ClaimedAt: task.ClaimedAt,
		Now:       now.UTC(),
	})
	if err != nil {
		return fmt.Errorf("complete task %s: %w", task.TaskID, err)
	}
	return nil
}

// Fail records a failed attempt of a claimed task and reschedules or fails
// it. The returned task reflects the stored outcome.
func (q *Queue) Fail(ctx context.Context, task *domain.Task, cause error, now time.Time) (*domain.Task, error) {
	if err := requireClaim(task); err != nil {
		return nil, err
	}
	failed := *task
	if err := q.fail(ctx, &failed, cause, now); err != nil {
		return nil, fmt.Errorf("fail task %s: %w", task.TaskID, err)
	}
	return &failed, nil
}

// requireClaim rejects tasks that did not come from Claim.
func requireClaim(task *domain.Task) error {
	if task == nil || task.TaskID == "" {
		return fmt.Errorf("%w: task required", domain.ErrInvalidInput)
	}
	if task.ClaimedAt.IsZero() {
		return fmt.Errorf("%w: task %s was not claimed", domain.ErrInvalidInput, task.TaskID)
	}
	return nil
}

// fail applies the retry policy to task and stores the outcome. The update
// is guarded by the task's claim so a lost lease changes nothing.
func (q *Queue) fail(ctx context.Context, task *domain.Task, cause error, now time.Time) error {
	now = now.UTC()
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	msg = domain.TruncateError(msg)

	attempts := task.AttemptCount + 1
	update := driven.TaskUpdate{
		Status:    domain.TaskPending,
		LastError: msg,
		ClaimedBy: task.ClaimedBy,
		ClaimedAt: task.ClaimedAt,
		Now:       now,
	}
	if q.policy.Exhausted(attempts) {
		update.Status = domain.TaskFailed
	} else {
		update.NextAttemptAt = now.Add(q.policy.Backoff(attempts))
	}

	if err := q.store.FinishAttempt(ctx, task.TaskID, update); err != nil {
		return err
	}

	task.AttemptCount = attempts
	task.Status = update.Status
	task.LastError = msg
	task.NextAttemptAt = update.NextAttemptAt
	task.ClaimedBy = ""
	task.ClaimedAt = time.Time{}
	task.UpdatedAt = now

	if update.Status == domain.TaskFailed {
		q.logger.Warn("task failed permanently",
			"task_id", task.TaskID, "type", task.Type, "content_id", task.ContentID,
			"attempts", attempts, "error", msg)
	} else {
		q.logger.Info("task rescheduled",
			"task_id", task.TaskID, "type", task.Type, "attempts", attempts,
			"next_attempt_at", update.NextAttemptAt, "error", msg)
	}
	return nil
}

// ReclaimStale fails every task claimed longer than lockTimeout ago.
func (q *Queue) ReclaimStale(ctx context.Context, lockTimeout time.Duration, now time.Time) (int, error) {
	if lockTimeout <= 0 {
		return 0, fmt.Errorf("%w: lock timeout must be positive", domain.ErrInvalidInput)
	}
	stale, err := q.store.ListStale(ctx, now.Add(-lockTimeout))
	if err != nil {
		return 0, fmt.Errorf("list stale tasks: %w", err)
	}

	reclaimed := 0
	for i := range stale {
		task := &stale[i]
		err := q.fail(ctx, task, domain.ErrLeaseExpired, now)
		switch {
		case err == nil:
			reclaimed++
		case errors.Is(err, domain.ErrTaskNotRunning):
			// Finished or re-claimed since the listing.
		default:
			return reclaimed, fmt.Errorf("reclaim task %s: %w", task.TaskID, err)
		}
	}
	if reclaimed > 0 {
		q.logger.Warn("reclaimed stale tasks", "count", reclaimed, "lock_timeout", lockTimeout)
	}
	return reclaimed, nil
}

// Stats counts tasks by type and status.
func (q *Queue) Stats(ctx context.Context) (domain.QueueStats, error) {
	return q.store.Stats(ctx)
}

// List returns tasks matching filter.
func (q *Queue) List(ctx context.Context, filter domain.TaskFilter) ([]domain.Task, error) {
	return q.store.ListTasks(ctx, filter)
}

// Retry re-queues a failed task with a fresh attempt budget.
func (q *Queue) Retry(ctx context.Context, taskID string, now time.Time) error {
	if err := q.store.ResetTask(ctx, taskID, now.UTC()); err != nil {
		return fmt.Errorf("retry task %s: %w", taskID, err)
	}
	q.logger.Info("task re-queued", "task_id", taskID)
	return nil
}

// Purge deletes terminal tasks older than olderThan.
func (q *Queue) Purge(ctx context.Context, status domain.TaskStatus, olderThan time.Duration, now time.Time) (int64, error) {
	if !status.Terminal() {
		return 0, fmt.Errorf("%w: only done or failed tasks can be purged", domain.ErrInvalidInput)
	}
	n, err := q.store.PurgeTasks(ctx, status, now.UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("purge %s tasks: %w", status, err)
	}
	return n, nil
}
