package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
)

// ==================== Task Store ====================

// taskStore implements driven.TaskStore.
type taskStore struct {
	store *Store
}

var _ driven.TaskStore = (*taskStore)(nil)

const taskColumns = `task_id, task_type, content_id, status, attempt_count, next_attempt_at,
	last_error, payload, claimed_by, claimed_at, created_at, updated_at`

// execQuerier is satisfied by *sql.DB and *sql.Tx.
type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// EnqueueTask inserts a pending task unless an active one already exists.
func (s *taskStore) EnqueueTask(ctx context.Context, task *domain.Task) (string, bool, error) {
	return insertTask(ctx, s.store.db, task)
}

// insertTask relies on idx_tasks_active to reject a second active task for
// the same (type, content); the existing id is returned instead.
func insertTask(ctx context.Context, q execQuerier, task *domain.Task) (string, bool, error) {
	if task == nil || !task.Type.Valid() || task.ContentID == "" {
		return "", false, domain.ErrInvalidInput
	}
	if task.TaskID == "" {
		task.TaskID = uuid.New().String()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	if task.NextAttemptAt.IsZero() {
		task.NextAttemptAt = task.CreatedAt
	}
	task.UpdatedAt = task.CreatedAt
	task.Status = domain.TaskPending

	payload, err := marshalJSON(task.Payload, "{}")
	if err != nil {
		return "", false, err
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO tasks (task_id, task_type, content_id, status, attempt_count,
			next_attempt_at, payload, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', 0, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, task.TaskID, string(task.Type), task.ContentID, task.NextAttemptAt.UnixNano(),
		payload, task.CreatedAt.UnixNano(), task.UpdatedAt.UnixNano())
	if err != nil {
		return "", false, fmt.Errorf("inserting task: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return task.TaskID, true, nil
	}

	var existing string
	err = q.QueryRowContext(ctx, `
		SELECT task_id FROM tasks
		WHERE task_type = ? AND content_id = ? AND status IN ('pending', 'running')
	`, string(task.Type), task.ContentID).Scan(&existing)
	if err != nil {
		return "", false, fmt.Errorf("looking up active task: %w", err)
	}
	return existing, false, nil
}

// ClaimTask moves the oldest eligible pending task to running in a single
// statement, so two workers can never claim the same row.
func (s *taskStore) ClaimTask(
	ctx context.Context,
	types []domain.TaskType,
	workerID string,
	now time.Time,
) (*domain.Task, error) {
	if len(types) == 0 {
		types = domain.AllTaskTypes()
	}
	args := []any{workerID, now.UnixNano(), now.UnixNano(), now.UnixNano()}
	for _, t := range types {
		args = append(args, string(t))
	}

	query := `
		UPDATE tasks
		SET status = 'running', claimed_by = ?, claimed_at = ?, updated_at = ?
		WHERE task_id = (
			SELECT task_id FROM tasks
			WHERE status = 'pending' AND next_attempt_at <= ?
			  AND task_type IN (` + placeholders(len(types)) + `)
			ORDER BY created_at, rowid
			LIMIT 1
		) AND status = 'pending'
		RETURNING ` + taskColumns

	task, err := scanTask(s.store.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claiming task: %w", err)
	}
	return task, nil
}

// FinishAttempt applies update to a running task and counts the attempt.
func (s *taskStore) FinishAttempt(ctx context.Context, taskID string, update driven.TaskUpdate) error {
	switch update.Status {
	case domain.TaskDone, domain.TaskPending, domain.TaskFailed:
	default:
		return fmt.Errorf("%w: cannot finish attempt with status %q", domain.ErrInvalidInput, update.Status)
	}
	if update.Now.IsZero() {
		update.Now = time.Now().UTC()
	}
	nextAttempt := update.NextAttemptAt
	if nextAttempt.IsZero() {
		nextAttempt = update.Now
	}

	query := `
		UPDATE tasks
		SET status = ?, attempt_count = attempt_count + 1, next_attempt_at = ?,
			last_error = ?, claimed_by = NULL, claimed_at = NULL, updated_at = ?
		WHERE task_id = ? AND status = 'running'`
	args := []any{string(update.Status), nextAttempt.UnixNano(), nullString(update.LastError),
		update.Now.UnixNano(), taskID}
	if update.ClaimedBy != "" {
		query += " AND claimed_by = ?"
		args = append(args, update.ClaimedBy)
	}
	if !update.ClaimedAt.IsZero() {
		query += " AND claimed_at = ?"
		args = append(args, update.ClaimedAt.UnixNano())
	}

	res, err := s.store.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("finishing task attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing task attempt: %w", err)
	}
	if n == 0 {
		return domain.ErrTaskNotRunning
	}
	return nil
}

// GetTask retrieves a task by id.
func (s *taskStore) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	return scanTask(s.store.db.QueryRowContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE task_id = ?", taskID))
}

// ListTasks returns tasks matching filter, oldest first.
func (s *taskStore) ListTasks(ctx context.Context, filter domain.TaskFilter) ([]domain.Task, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		conds = append(conds, "task_type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.ContentID != "" {
		conds = append(conds, "content_id = ?")
		args = append(args, filter.ContentID)
	}

	query := "SELECT " + taskColumns + " FROM tasks"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at, rowid"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	return s.queryTasks(ctx, query, args...)
}

// ListStale returns running tasks claimed before claimedBefore.
func (s *taskStore) ListStale(ctx context.Context, claimedBefore time.Time) ([]domain.Task, error) {
	return s.queryTasks(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE status = 'running' AND claimed_at < ? ORDER BY claimed_at",
		claimedBefore.UnixNano())
}

// Stats counts tasks by type and status.
func (s *taskStore) Stats(ctx context.Context) (domain.QueueStats, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT task_type, status, COUNT(*) FROM tasks GROUP BY task_type, status")
	if err != nil {
		return nil, fmt.Errorf("querying task stats: %w", err)
	}
	defer rows.Close()

	stats := make(domain.QueueStats)
	for rows.Next() {
		var (
			taskType, status string
			count            int
		)
		if err := rows.Scan(&taskType, &status, &count); err != nil {
			return nil, fmt.Errorf("scanning task stats: %w", err)
		}
		byStatus, ok := stats[domain.TaskType(taskType)]
		if !ok {
			byStatus = make(map[domain.TaskStatus]int)
			stats[domain.TaskType(taskType)] = byStatus
		}
		byStatus[domain.TaskStatus(status)] = count
	}
	return stats, rows.Err()
}

// ResetTask moves a failed task back to pending with zero attempts.
func (s *taskStore) ResetTask(ctx context.Context, taskID string, now time.Time) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = 'pending', attempt_count = 0, next_attempt_at = ?, last_error = NULL, updated_at = ?
		WHERE task_id = ? AND status = 'failed'
	`, now.UnixNano(), now.UnixNano(), taskID)
	if err != nil {
		// A newer active task for the same content occupies the slot.
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("%w: an active task already exists for this content", domain.ErrInvalidInput)
		}
		return fmt.Errorf("resetting task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetTask(ctx, taskID); err != nil {
			return err
		}
		return fmt.Errorf("%w: only failed tasks can be retried", domain.ErrInvalidInput)
	}
	return nil
}

// PurgeTasks deletes tasks in status last updated before cutoff.
func (s *taskStore) PurgeTasks(ctx context.Context, status domain.TaskStatus, before time.Time) (int64, error) {
	if !status.Terminal() {
		return 0, fmt.Errorf("%w: only done or failed tasks can be purged", domain.ErrInvalidInput)
	}
	res, err := s.store.db.ExecContext(ctx,
		"DELETE FROM tasks WHERE status = ? AND updated_at < ?", string(status), before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("purging tasks: %w", err)
	}
	return res.RowsAffected()
}

func (s *taskStore) queryTasks(ctx context.Context, query string, args ...any) ([]domain.Task, error) {
	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tasks: %w", err)
	}
	return tasks, nil
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task                          domain.Task
		taskType, status, payload     string
		lastError, claimedBy          sql.NullString
		claimedAt                     sql.NullInt64
		nextAttempt, created, updated int64
	)
	err := row.Scan(&task.TaskID, &taskType, &task.ContentID, &status, &task.AttemptCount,
		&nextAttempt, &lastError, &payload, &claimedBy, &claimedAt, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning task: %w", err)
	}
	task.Type = domain.TaskType(taskType)
	task.Status = domain.TaskStatus(status)
	task.LastError = lastError.String
	task.ClaimedBy = claimedBy.String
	task.Payload = unmarshalStringMap(payload)
	task.NextAttemptAt = fromNanos(sql.NullInt64{Int64: nextAttempt, Valid: true})
	task.ClaimedAt = fromNanos(claimedAt)
	task.CreatedAt = fromNanos(sql.NullInt64{Int64: created, Valid: true})
	task.UpdatedAt = fromNanos(sql.NullInt64{Int64: updated, Valid: true})
	return &task, nil
}
