package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
)

// ==================== Scheduler Store ====================

// schedulerStore implements driven.SchedulerStore over the maintenance
// tables. Pipeline tasks live in taskStore.
type schedulerStore struct {
	store *Store
}

var _ driven.SchedulerStore = (*schedulerStore)(nil)

const jobColumns = `id, name, interval_seconds, last_run, next_run, last_error, last_success, enabled`

// GetTask retrieves a maintenance job by ID.
// Returns nil and no error if the job does not exist.
func (s *schedulerStore) GetTask(ctx context.Context, taskID string) (*domain.ScheduledTask, error) {
	job, err := scanJob(s.store.db.QueryRowContext(ctx,
		"SELECT "+jobColumns+" FROM maintenance_jobs WHERE id = ?", taskID))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return job, err
}

// ListTasks returns all maintenance jobs.
func (s *schedulerStore) ListTasks(ctx context.Context) ([]domain.ScheduledTask, error) {
	rows, err := s.store.db.QueryContext(ctx, "SELECT "+jobColumns+" FROM maintenance_jobs ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying maintenance jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.ScheduledTask //nolint:prealloc // size unknown from query
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating maintenance jobs: %w", err)
	}
	return jobs, nil
}

// SaveTask creates or updates a job by ID.
func (s *schedulerStore) SaveTask(ctx context.Context, task *domain.ScheduledTask) error {
	if task == nil || task.ID == "" {
		return domain.ErrInvalidInput
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO maintenance_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			interval_seconds = excluded.interval_seconds,
			last_run = excluded.last_run,
			next_run = excluded.next_run,
			last_error = excluded.last_error,
			last_success = excluded.last_success,
			enabled = excluded.enabled
	`, task.ID, task.Name, int64(task.Interval.Seconds()),
		formatNullableTime(task.LastRun), formatNullableTime(task.NextRun),
		nullString(task.LastError), formatNullableTime(task.LastSuccess),
		boolToInt(task.Enabled))
	if err != nil {
		return fmt.Errorf("saving maintenance job: %w", err)
	}
	return nil
}

// DeleteTask removes a job. Its run history is kept until pruned.
func (s *schedulerStore) DeleteTask(ctx context.Context, taskID string) error {
	if _, err := s.store.db.ExecContext(ctx, "DELETE FROM maintenance_jobs WHERE id = ?", taskID); err != nil {
		return fmt.Errorf("deleting maintenance job: %w", err)
	}
	return nil
}

// RecordResult appends one run to the job history.
func (s *schedulerStore) RecordResult(ctx context.Context, result *domain.TaskResult) error {
	if result == nil || result.TaskID == "" {
		return domain.ErrInvalidInput
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO maintenance_runs (job_id, started_at, ended_at, success, error, items_processed)
		VALUES (?, ?, ?, ?, ?, ?)
	`, result.TaskID,
		result.StartedAt.UTC().Format(time.RFC3339Nano),
		result.EndedAt.UTC().Format(time.RFC3339Nano),
		boolToInt(result.Success),
		nullString(result.Error),
		result.ItemsProcessed)
	if err != nil {
		return fmt.Errorf("recording maintenance run: %w", err)
	}
	return nil
}

// GetTaskHistory returns the most recent runs of a job, newest first.
func (s *schedulerStore) GetTaskHistory(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT job_id, started_at, ended_at, success, error, items_processed
		FROM maintenance_runs
		WHERE job_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying maintenance history: %w", err)
	}
	defer rows.Close()

	var results []domain.TaskResult //nolint:prealloc // size unknown from query
	for rows.Next() {
		var (
			r                  domain.TaskResult
			startedAt, endedAt string
			success            int
			errMsg             sql.NullString
		)
		if err := rows.Scan(&r.TaskID, &startedAt, &endedAt, &success, &errMsg, &r.ItemsProcessed); err != nil {
			return nil, fmt.Errorf("scanning maintenance run: %w", err)
		}
		r.StartedAt = parseNullableTime(sql.NullString{String: startedAt, Valid: true})
		r.EndedAt = parseNullableTime(sql.NullString{String: endedAt, Valid: true})
		r.Success = success == 1
		r.Error = errMsg.String
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating maintenance history: %w", err)
	}
	return results, nil
}

// PruneHistory keeps the most recent keep runs per job.
func (s *schedulerStore) PruneHistory(ctx context.Context, keep int) error {
	_, err := s.store.db.ExecContext(ctx, `
		DELETE FROM maintenance_runs
		WHERE id NOT IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY job_id ORDER BY started_at DESC, id DESC) AS rn
				FROM maintenance_runs
			) WHERE rn <= ?
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("pruning maintenance history: %w", err)
	}
	return nil
}

func scanJob(row rowScanner) (*domain.ScheduledTask, error) {
	var (
		job                                 domain.ScheduledTask
		intervalSeconds                     int64
		lastRun, nextRun, lastErr, lastSucc sql.NullString
		enabled                             int
	)
	err := row.Scan(&job.ID, &job.Name, &intervalSeconds, &lastRun, &nextRun, &lastErr, &lastSucc, &enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning maintenance job: %w", err)
	}

	job.Interval = time.Duration(intervalSeconds) * time.Second
	job.LastRun = parseNullableTime(lastRun)
	job.NextRun = parseNullableTime(nextRun)
	job.LastError = lastErr.String
	job.LastSuccess = parseNullableTime(lastSucc)
	job.Enabled = enabled == 1
	return &job, nil
}

// formatNullableTime formats t as RFC3339, or nil for the zero time.
func formatNullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseNullableTime returns the zero time for NULL or unparsable values.
func parseNullableTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
