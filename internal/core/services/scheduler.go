package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
	"github.com/custodia-labs/jarvis/internal/core/ports/driving"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// historyRetention is the number of runs kept per maintenance job.
const historyRetention = 100

// Scheduler runs maintenance jobs: the stale-task sweep and the periodic
// local directory scan. Job state survives restarts in the SchedulerStore.
type Scheduler struct {
	config      domain.SchedulerConfig
	store       driven.SchedulerStore
	queue       driving.TaskQueue
	lockTimeout time.Duration
	ingestor    driving.Ingestor
	localDirs   []string
	tick        time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	running bool
	active  map[string]bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler. ingestor may be nil when no local
// directories are configured.
func NewScheduler(
	config domain.SchedulerConfig,
	store driven.SchedulerStore,
	queue driving.TaskQueue,
	lockTimeout time.Duration,
	ingestor driving.Ingestor,
	localDirs []string,
	logger *slog.Logger,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	tick := time.Minute
	for _, cfg := range config.TaskConfigs {
		if cfg.Enabled && cfg.Interval > 0 && cfg.Interval < tick {
			tick = cfg.Interval
		}
	}
	return &Scheduler{
		config:      config,
		store:       store,
		queue:       queue,
		lockTimeout: lockTimeout,
		ingestor:    ingestor,
		localDirs:   localDirs,
		tick:        tick,
		logger:      logger.With("component", "scheduler"),
		active:      make(map[string]bool),
	}
}

// Start begins the scheduler loop. This method blocks until Stop is called
// or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		return nil
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	if err := s.initialiseTasks(ctx); err != nil {
		s.logger.Error("failed to initialise jobs", "error", err)
	}

	return s.run(ctx)
}

// Stop shuts down the loop and waits for running jobs.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// initialiseTasks ensures every built-in job exists in the store with the
// configured interval and enabled flag.
func (s *Scheduler) initialiseTasks(ctx context.Context) error {
	jobs := []struct{ id, name string }{
		{domain.TaskIDStaleSweep, "Stale Task Sweep"},
		{domain.TaskIDLocalScan, "Local Directory Scan"},
	}
	var errs []error
	for _, job := range jobs {
		if err := s.ensureTask(ctx, job.id, job.name, s.config.GetTaskConfig(job.id)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ensureTask creates or updates a job in the store.
func (s *Scheduler) ensureTask(ctx context.Context, id, name string, cfg domain.TaskConfig) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	if task == nil {
		task = &domain.ScheduledTask{
			ID:       id,
			Name:     name,
			Interval: cfg.Interval,
			Enabled:  cfg.Enabled,
			NextRun:  time.Now().Add(cfg.Interval),
		}
	} else {
		if task.Interval != cfg.Interval {
			task.Interval = cfg.Interval
			task.NextRun = time.Now().Add(cfg.Interval)
		}
		task.Enabled = cfg.Enabled
	}
	if cfg.Interval <= 0 {
		task.Enabled = false
	}

	return s.store.SaveTask(ctx, task)
}

func (s *Scheduler) run(ctx context.Context) error {
	s.checkAndRunDueTasks(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.checkAndRunDueTasks(ctx)
		}
	}
}

// checkAndRunDueTasks starts every enabled job whose next run has passed and
// which is not already running.
func (s *Scheduler) checkAndRunDueTasks(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		s.logger.Error("failed to list jobs", "error", err)
		return
	}

	now := time.Now()
	for i := range tasks {
		task := &tasks[i]
		if !task.Enabled {
			continue
		}
		if task.NextRun.IsZero() || !task.NextRun.After(now) {
			s.runTask(ctx, task)
		}
	}
}

// runTask executes a job in the background and records its result.
func (s *Scheduler) runTask(ctx context.Context, task *domain.ScheduledTask) {
	s.mu.Lock()
	if s.active[task.ID] {
		s.mu.Unlock()
		return
	}
	s.active[task.ID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.active, task.ID)
			s.mu.Unlock()
		}()

		result := &domain.TaskResult{
			TaskID:    task.ID,
			StartedAt: time.Now(),
		}

		var err error
		switch task.ID {
		case domain.TaskIDStaleSweep:
			result.ItemsProcessed, err = s.runStaleSweep(ctx)
		case domain.TaskIDLocalScan:
			result.ItemsProcessed, err = s.runLocalScan(ctx)
		default:
			s.logger.Warn("unknown job", "job_id", task.ID)
			return
		}

		result.EndedAt = time.Now()
		if err != nil {
			result.Error = err.Error()
			task.LastError = err.Error()
			s.logger.Error("job failed", "job_id", task.ID, "error", err)
		} else {
			result.Success = true
			task.LastError = ""
			task.LastSuccess = result.EndedAt
			s.logger.Debug("job finished", "job_id", task.ID, "items", result.ItemsProcessed)
		}

		task.LastRun = result.StartedAt
		task.NextRun = result.EndedAt.Add(task.Interval)

		// The run itself may have been cut short by ctx; still persist it.
		bg := context.WithoutCancel(ctx)
		if saveErr := s.store.SaveTask(bg, task); saveErr != nil {
			s.logger.Error("failed to save job", "job_id", task.ID, "error", saveErr)
		}
		if recordErr := s.store.RecordResult(bg, result); recordErr != nil {
			s.logger.Error("failed to record job result", "job_id", task.ID, "error", recordErr)
		}
		if pruneErr := s.store.PruneHistory(bg, historyRetention); pruneErr != nil {
			s.logger.Error("failed to prune job history", "error", pruneErr)
		}
	}()
}

// runStaleSweep reclaims tasks whose worker stopped reporting.
func (s *Scheduler) runStaleSweep(ctx context.Context) (int, error) {
	if s.queue == nil || s.lockTimeout <= 0 {
		return 0, nil
	}
	return s.queue.ReclaimStale(ctx, s.lockTimeout, time.Now())
}

// runLocalScan re-ingests the configured directories. Unchanged files are
// deduplicated by the registry.
func (s *Scheduler) runLocalScan(ctx context.Context) (int, error) {
	if s.ingestor == nil {
		return 0, nil
	}
	registered := 0
	var errs []error
	for _, dir := range s.localDirs {
		summary, err := s.ingestor.IngestPath(ctx, dir)
		registered += summary.Registered
		if err != nil {
			errs = append(errs, err)
		}
	}
	return registered, errors.Join(errs...)
}
