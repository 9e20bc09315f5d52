package sqlite

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
)

func enqueueTestTask(t *testing.T, store *Store, taskType domain.TaskType, contentID string, at time.Time) string {
	t.Helper()
	id, created, err := store.TaskStore().EnqueueTask(context.Background(), &domain.Task{
		Type:      taskType,
		ContentID: contentID,
		CreatedAt: at,
	})
	require.NoError(t, err)
	require.True(t, created)
	return id
}

func TestTaskStore_EnqueueDeduplicatesActiveTasks(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	registerTestContent(t, store, "file:a")

	first := enqueueTestTask(t, store, domain.TaskEntityExtract, "file:a", testBase)

	id, created, err := store.TaskStore().EnqueueTask(ctx, &domain.Task{
		Type:      domain.TaskEntityExtract,
		ContentID: "file:a",
		Payload:   map[string]string{domain.PayloadBackend: "rules:default"},
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, id)

	// A different type for the same content is independent.
	_, created, err = store.TaskStore().EnqueueTask(ctx, &domain.Task{
		Type:      domain.TaskLabResults,
		ContentID: "file:a",
	})
	require.NoError(t, err)
	assert.True(t, created)
}

func TestTaskStore_EnqueueAfterDoneCreatesNewTask(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	registerTestContent(t, store, "file:a")

	first := enqueueTestTask(t, store, domain.TaskSemanticIndex, "file:a", testBase)
	claimed, err := store.TaskStore().ClaimTask(ctx, nil, "w1", testBase)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.NoError(t, store.TaskStore().FinishAttempt(ctx, first, driven.TaskUpdate{
		Status: domain.TaskDone,
		Now:    testBase,
	}))

	second, created, err := store.TaskStore().EnqueueTask(ctx, &domain.Task{
		Type:      domain.TaskSemanticIndex,
		ContentID: "file:a",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first, second)
}

func TestTaskStore_EnqueueRejectsInvalidTask(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, _, err := store.TaskStore().EnqueueTask(context.Background(), &domain.Task{Type: "bogus", ContentID: "file:a"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestTaskStore_ClaimIsFIFOAndRespectsEligibility(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	registerTestContent(t, store, "file:a")
	registerTestContent(t, store, "file:b")

	older := enqueueTestTask(t, store, domain.TaskSemanticIndex, "file:a", testBase)
	newer := enqueueTestTask(t, store, domain.TaskSemanticIndex, "file:b", testBase.Add(time.Second))

	// Nothing is eligible before creation time.
	task, err := store.TaskStore().ClaimTask(ctx, nil, "w1", testBase.Add(-time.Minute))
	require.NoError(t, err)
	assert.Nil(t, task)

	task, err = store.TaskStore().ClaimTask(ctx, nil, "w1", testBase.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, older, task.TaskID)
	assert.Equal(t, domain.TaskRunning, task.Status)
	assert.Equal(t, "w1", task.ClaimedBy)
	assert.True(t, testBase.Add(time.Minute).Equal(task.ClaimedAt))

	task, err = store.TaskStore().ClaimTask(ctx, nil, "w1", testBase.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, newer, task.TaskID)

	task, err = store.TaskStore().ClaimTask(ctx, nil, "w1", testBase.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestTaskStore_ClaimFiltersByType(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	registerTestContent(t, store, "file:a")

	enqueueTestTask(t, store, domain.TaskSemanticIndex, "file:a", testBase)
	labID := enqueueTestTask(t, store, domain.TaskLabResults, "file:a", testBase.Add(time.Second))

	task, err := store.TaskStore().ClaimTask(ctx, []domain.TaskType{domain.TaskLabResults}, "w1", testBase.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, labID, task.TaskID)
}

func TestTaskStore_ConcurrentClaimsAreExclusive(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	const numTasks = 40
	for i := 0; i < numTasks; i++ {
		id := fmt.Sprintf("file:%02d", i)
		registerTestContent(t, store, id)
		enqueueTestTask(t, store, domain.TaskSemanticIndex, id, testBase.Add(time.Duration(i)*time.Millisecond))
	}

	var (
		mu      sync.Mutex
		claimed = make(map[string]int)
		wg      sync.WaitGroup
		errs    = make(chan error, 8)
	)
	now := testBase.Add(time.Hour)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(worker string) {
			defer wg.Done()
			for {
				task, err := store.TaskStore().ClaimTask(ctx, nil, worker, now)
				if err != nil {
					errs <- err
					return
				}
				if task == nil {
					return
				}
				mu.Lock()
				claimed[task.TaskID]++
				mu.Unlock()
			}
		}(fmt.Sprintf("w%d", w))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Len(t, claimed, numTasks)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "task %s claimed more than once", id)
	}
}

func TestTaskStore_FinishAttempt(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	registerTestContent(t, store, "file:a")
	id := enqueueTestTask(t, store, domain.TaskSemanticIndex, "file:a", testBase)

	// Not running yet.
	err := store.TaskStore().FinishAttempt(ctx, id, driven.TaskUpdate{Status: domain.TaskDone, Now: testBase})
	assert.ErrorIs(t, err, domain.ErrTaskNotRunning)

	_, err = store.TaskStore().ClaimTask(ctx, nil, "w1", testBase)
	require.NoError(t, err)

	retryAt := testBase.Add(30 * time.Second)
	require.NoError(t, store.TaskStore().FinishAttempt(ctx, id, driven.TaskUpdate{
		Status:        domain.TaskPending,
		NextAttemptAt: retryAt,
		LastError:     "embedding service unavailable",
		Now:           testBase,
	}))

	task, err := store.TaskStore().GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskPending, task.Status)
	assert.Equal(t, 1, task.AttemptCount)
	assert.Equal(t, "embedding service unavailable", task.LastError)
	assert.True(t, retryAt.Equal(task.NextAttemptAt))
	assert.Empty(t, task.ClaimedBy)
	assert.True(t, task.ClaimedAt.IsZero())

	// Not eligible before the backoff elapses.
	claimed, err := store.TaskStore().ClaimTask(ctx, nil, "w1", testBase.Add(10*time.Second))
	require.NoError(t, err)
	assert.Nil(t, claimed)

	claimed, err = store.TaskStore().ClaimTask(ctx, nil, "w1", retryAt)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	require.NoError(t, store.TaskStore().FinishAttempt(ctx, id, driven.TaskUpdate{
		Status: domain.TaskDone,
		Now:    retryAt,
	}))
	task, err = store.TaskStore().GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskDone, task.Status)
	assert.Equal(t, 2, task.AttemptCount)
	assert.Empty(t, task.LastError)
}

func TestTaskStore_FinishAttemptChecksClaimTime(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	registerTestContent(t, store, "file:a")
	id := enqueueTestTask(t, store, domain.TaskSemanticIndex, "file:a", testBase)

	_, err := store.TaskStore().ClaimTask(ctx, nil, "w1", testBase)
	require.NoError(t, err)

	err = store.TaskStore().FinishAttempt(ctx, id, driven.TaskUpdate{
		Status:    domain.TaskPending,
		ClaimedAt: testBase.Add(-time.Hour),
		Now:       testBase,
	})
	assert.ErrorIs(t, err, domain.ErrTaskNotRunning)

	err = store.TaskStore().FinishAttempt(ctx, id, driven.TaskUpdate{
		Status:    domain.TaskPending,
		ClaimedAt: testBase,
		Now:       testBase,
	})
	assert.NoError(t, err)
}

func TestTaskStore_LateFinishAfterReclaim(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	registerTestContent(t, store, "file:a")
	id := enqueueTestTask(t, store, domain.TaskSemanticIndex, "file:a", testBase)

	first, err := store.TaskStore().ClaimTask(ctx, nil, "w1", testBase)
	require.NoError(t, err)
	require.NotNil(t, first)

	// Liveness sweep returns the task to pending.
	require.NoError(t, store.TaskStore().FinishAttempt(ctx, id, driven.TaskUpdate{
		Status:        domain.TaskPending,
		NextAttemptAt: testBase.Add(11 * time.Minute),
		LastError:     domain.ErrLeaseExpired.Error(),
		ClaimedBy:     first.ClaimedBy,
		ClaimedAt:     first.ClaimedAt,
		Now:           testBase.Add(10 * time.Minute),
	}))

	second, err := store.TaskStore().ClaimTask(ctx, nil, "w2", testBase.Add(2*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, second)
	require.Equal(t, id, second.TaskID)

	// w1 finishes late with its old claim.
	err = store.TaskStore().FinishAttempt(ctx, id, driven.TaskUpdate{
		Status:    domain.TaskDone,
		ClaimedBy: first.ClaimedBy,
		ClaimedAt: first.ClaimedAt,
		Now:       testBase.Add(2 * time.Hour),
	})
	assert.ErrorIs(t, err, domain.ErrTaskNotRunning)

	// Same claim time but another holder is rejected too.
	err = store.TaskStore().FinishAttempt(ctx, id, driven.TaskUpdate{
		Status:    domain.TaskDone,
		ClaimedBy: "w1",
		ClaimedAt: second.ClaimedAt,
		Now:       testBase.Add(2 * time.Hour),
	})
	assert.ErrorIs(t, err, domain.ErrTaskNotRunning)

	task, err := store.TaskStore().GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskRunning, task.Status)
	assert.Equal(t, "w2", task.ClaimedBy)
	assert.Equal(t, 1, task.AttemptCount)

	require.NoError(t, store.TaskStore().FinishAttempt(ctx, id, driven.TaskUpdate{
		Status:    domain.TaskDone,
		ClaimedBy: second.ClaimedBy,
		ClaimedAt: second.ClaimedAt,
		Now:       testBase.Add(2 * time.Hour),
	}))
	task, err = store.TaskStore().GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskDone, task.Status)
	assert.Equal(t, 2, task.AttemptCount)
}

func TestTaskStore_ListStale(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	registerTestContent(t, store, "file:a")
	registerTestContent(t, store, "file:b")
	stale := enqueueTestTask(t, store, domain.TaskSemanticIndex, "file:a", testBase)
	enqueueTestTask(t, store, domain.TaskSemanticIndex, "file:b", testBase.Add(time.Second))

	_, err := store.TaskStore().ClaimTask(ctx, nil, "w1", testBase)
	require.NoError(t, err)
	_, err = store.TaskStore().ClaimTask(ctx, nil, "w2", testBase.Add(10*time.Minute))
	require.NoError(t, err)

	tasks, err := store.TaskStore().ListStale(ctx, testBase.Add(5*time.Minute))
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, stale, tasks[0].TaskID)
}

func TestTaskStore_StatsResetAndPurge(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	registerTestContent(t, store, "file:a")
	registerTestContent(t, store, "file:b")
	failed := enqueueTestTask(t, store, domain.TaskSemanticIndex, "file:a", testBase)
	enqueueTestTask(t, store, domain.TaskSemanticIndex, "file:b", testBase.Add(time.Second))

	_, err := store.TaskStore().ClaimTask(ctx, nil, "w1", testBase)
	require.NoError(t, err)
	require.NoError(t, store.TaskStore().FinishAttempt(ctx, failed, driven.TaskUpdate{
		Status:    domain.TaskFailed,
		LastError: "boom",
		Now:       testBase,
	}))

	stats, err := store.TaskStore().Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[domain.TaskSemanticIndex][domain.TaskFailed])
	assert.Equal(t, 1, stats[domain.TaskSemanticIndex][domain.TaskPending])

	// Only failed tasks can be reset.
	pending, err := store.TaskStore().ListTasks(ctx, domain.TaskFilter{Status: domain.TaskPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.ErrorIs(t, store.TaskStore().ResetTask(ctx, pending[0].TaskID, testBase), domain.ErrInvalidInput)
	assert.ErrorIs(t, store.TaskStore().ResetTask(ctx, "missing", testBase), domain.ErrNotFound)

	require.NoError(t, store.TaskStore().ResetTask(ctx, failed, testBase.Add(time.Minute)))
	task, err := store.TaskStore().GetTask(ctx, failed)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskPending, task.Status)
	assert.Zero(t, task.AttemptCount)
	assert.Empty(t, task.LastError)

	_, err = store.TaskStore().PurgeTasks(ctx, domain.TaskPending, testBase)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	claimed, err := store.TaskStore().ClaimTask(ctx, nil, "w1", testBase.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.NoError(t, store.TaskStore().FinishAttempt(ctx, claimed.TaskID, driven.TaskUpdate{
		Status: domain.TaskDone,
		Now:    testBase.Add(time.Hour),
	}))

	n, err := store.TaskStore().PurgeTasks(ctx, domain.TaskDone, testBase.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
