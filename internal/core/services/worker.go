package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driving"
)

// Ensure Worker implements the interface.
var _ driving.Worker = (*Worker)(nil)

const (
	defaultPollInterval = 2 * time.Second
	maxPollInterval     = time.Minute
	defaultTaskTimeout  = 5 * time.Minute
)

var workerSeq atomic.Int64

// defaultWorkerID returns host-pid-n, unique per process and call.
func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s-%d-%d", host, os.Getpid(), workerSeq.Add(1))
}

// Worker claims tasks and dispatches them to per-type handlers.
// Concurrent loops share nothing but the queue; exclusivity comes from the
// atomic claim.
type Worker struct {
	queue        driving.TaskQueue
	handlers     map[domain.TaskType]driving.TaskHandler
	types        []domain.TaskType
	concurrency  int
	pollInterval time.Duration
	taskTimeout  time.Duration
	leaseTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger

	sweepMu   sync.Mutex
	lastSweep time.Time
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithConcurrency sets the number of claim loops. Values below 1 mean 1.
func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) { w.concurrency = max(n, 1) }
}

// WithPollInterval sets the idle sleep of continuous mode, capped at one
// minute.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = min(d, maxPollInterval)
		}
	}
}

// WithTaskTimeout bounds each handler call.
func WithTaskTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.taskTimeout = d
		}
	}
}

// WithLeaseTimeout makes the worker reclaim tasks claimed longer than d ago:
// once when a run starts, then at most every d while idle.
func WithLeaseTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.leaseTimeout = d
		}
	}
}

// WithTaskTypes restricts the task types the worker claims.
func WithTaskTypes(types ...domain.TaskType) WorkerOption {
	return func(w *Worker) {
		if len(types) > 0 {
			w.types = types
		}
	}
}

// WithClock replaces time.Now for claim eligibility.
func WithClock(now func() time.Time) WorkerOption {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// WithWorkerLogger sets the logger. Default is slog.Default().
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWorker creates a worker dispatching to handlers by task type.
func NewWorker(
	queue driving.TaskQueue,
	handlers map[domain.TaskType]driving.TaskHandler,
	opts ...WorkerOption,
) *Worker {
	w := &Worker{
		queue:        queue,
		handlers:     handlers,
		types:        domain.AllTaskTypes(),
		concurrency:  1,
		pollInterval: defaultPollInterval,
		taskTimeout:  defaultTaskTimeout,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "worker")
	return w
}

type workerStats struct {
	claimed   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

func (s *workerStats) summary(started time.Time) driving.WorkerSummary {
	return driving.WorkerSummary{
		Claimed:   int(s.claimed.Load()),
		Completed: int(s.completed.Load()),
		Failed:    int(s.failed.Load()),
		Elapsed:   time.Since(started),
	}
}

// RunOnce drains every eligible task and returns. The first claim or
// bookkeeping error stops all loops and is returned.
func (w *Worker) RunOnce(ctx context.Context) (driving.WorkerSummary, error) {
	started := time.Now()
	stats := &workerStats{}
	w.sweep(ctx, true)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		errOnce  sync.Once
		firstErr error
	)
	err := w.spawn(func() {
		for ctx.Err() == nil {
			worked, err := w.step(ctx, stats)
			if err != nil {
				errOnce.Do(func() {
					firstErr = err
					cancel()
				})
				return
			}
			if !worked {
				return
			}
		}
	})
	if err != nil {
		return stats.summary(started), err
	}

	summary := stats.summary(started)
	w.logger.Info("batch finished", "claimed", summary.Claimed, "completed", summary.Completed,
		"failed", summary.Failed, "elapsed", summary.Elapsed)
	return summary, firstErr
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	stats := &workerStats{}
	w.logger.Info("worker started", "concurrency", w.concurrency, "types", w.types,
		"poll_interval", w.pollInterval)
	w.sweep(ctx, true)

	err := w.spawn(func() {
		for ctx.Err() == nil {
			worked, err := w.step(ctx, stats)
			if err != nil && ctx.Err() == nil {
				w.logger.Error("worker iteration failed", "error", err)
			}
			if worked && err == nil {
				continue
			}
			w.sweep(ctx, false)
			select {
			case <-ctx.Done():
			case <-time.After(w.pollInterval):
			}
		}
	})
	if err != nil {
		return err
	}

	s := stats.summary(time.Now())
	w.logger.Info("worker stopped", "claimed", s.Claimed, "completed", s.Completed, "failed", s.Failed)
	return nil
}

// sweep reclaims stale running tasks when a sweep is due. Failures are
// logged and the claim loops carry on.
func (w *Worker) sweep(ctx context.Context, force bool) {
	if w.leaseTimeout <= 0 {
		return
	}
	now := w.now()
	w.sweepMu.Lock()
	if !force && now.Sub(w.lastSweep) < w.leaseTimeout {
		w.sweepMu.Unlock()
		return
	}
	w.lastSweep = now
	w.sweepMu.Unlock()

	n, err := w.queue.ReclaimStale(ctx, w.leaseTimeout, now)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("stale sweep failed", "error", err)
		}
		return
	}
	if n > 0 {
		w.logger.Info("reclaimed stale tasks", "count", n, "lease_timeout", w.leaseTimeout)
	}
}

// spawn runs loop on concurrency pool goroutines and waits for all of them.
func (w *Worker) spawn(loop func()) error {
	pool, err := ants.NewPool(w.concurrency)
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			loop()
		}); err != nil {
			wg.Done()
			wg.Wait()
			return fmt.Errorf("start worker loop: %w", err)
		}
	}
	wg.Wait()
	return nil
}

// step claims and processes one task. worked is false when nothing was
// eligible.
func (w *Worker) step(ctx context.Context, stats *workerStats) (bool, error) {
	task, ok, err := w.queue.Claim(ctx, w.types, w.now())
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	stats.claimed.Add(1)

	// Bookkeeping must land even when the run is being cancelled.
	bg := context.WithoutCancel(ctx)

	herr := w.dispatch(ctx, task)
	if herr == nil {
		err := w.queue.Complete(bg, task, w.now())
		if errors.Is(err, domain.ErrTaskNotRunning) {
			w.leaseLost(task, err)
			return true, nil
		}
		if err != nil {
			return true, err
		}
		stats.completed.Add(1)
		w.logger.Debug("task done", "task_id", task.TaskID, "type", task.Type, "content_id", task.ContentID)
		return true, nil
	}

	_, err = w.queue.Fail(bg, task, herr, w.now())
	if errors.Is(err, domain.ErrTaskNotRunning) {
		w.leaseLost(task, err)
		return true, nil
	}
	if err != nil {
		return true, err
	}
	stats.failed.Add(1)
	return true, nil
}

// leaseLost records a finish that was rejected because the liveness sweep
// reclaimed the task. Whoever holds it now owns the outcome.
func (w *Worker) leaseLost(task *domain.Task, err error) {
	w.logger.Warn("task lease lost before finish", "task_id", task.TaskID, "type", task.Type,
		"content_id", task.ContentID, "claimed_at", task.ClaimedAt, "error", err)
}

// dispatch calls the handler for task under the task timeout. Panics are
// turned into errors so one bad document cannot take down the loop.
func (w *Worker) dispatch(ctx context.Context, task *domain.Task) (err error) {
	handler, ok := w.handlers[task.Type]
	if !ok {
		return &domain.TaskError{TaskID: task.TaskID, Type: task.Type,
			Err: fmt.Errorf("%w: no handler for %s", domain.ErrUnsupportedType, task.Type)}
	}

	hctx, cancel := context.WithTimeout(ctx, w.taskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = &domain.TaskError{TaskID: task.TaskID, Type: task.Type, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if herr := handler.Handle(hctx, task); herr != nil {
		if errors.Is(hctx.Err(), context.DeadlineExceeded) && !errors.Is(herr, context.DeadlineExceeded) {
			herr = fmt.Errorf("%w after %s: %w", context.DeadlineExceeded, w.taskTimeout, herr)
		}
		return &domain.TaskError{TaskID: task.TaskID, Type: task.Type, Err: herr}
	}
	return nil
}
