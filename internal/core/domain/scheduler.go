package domain

import "time"

// ScheduledTask represents a recurring maintenance job, such as the
// stale-task sweep. These are distinct from pipeline Tasks.
type ScheduledTask struct {
	// ID is the unique identifier for the job.
	ID string

	// Name is a human-readable name for the job.
	Name string

	// Interval defines how often the job should run.
	Interval time.Duration

	// LastRun is when the job last ran.
	LastRun time.Time

	// NextRun is when the job should run next.
	NextRun time.Time

	// LastError contains the last error message, if any.
	LastError string

	// LastSuccess is when the job last completed successfully.
	LastSuccess time.Time

	// Enabled indicates whether the job is active.
	Enabled bool
}

// TaskResult represents the outcome of a maintenance job execution.
type TaskResult struct {
	TaskID         string
	StartedAt      time.Time
	EndedAt        time.Time
	Success        bool
	Error          string
	ItemsProcessed int
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	// Enabled is the master switch for the scheduler.
	Enabled bool

	// TaskConfigs holds per-job configuration.
	TaskConfigs map[string]TaskConfig
}

// TaskConfig holds configuration for a single job.
type TaskConfig struct {
	Enabled  bool
	Interval time.Duration
}

// GetTaskConfig returns the configuration for a specific job.
// Returns a zero TaskConfig if the job is not configured.
func (c *SchedulerConfig) GetTaskConfig(taskID string) TaskConfig {
	if c.TaskConfigs == nil {
		return TaskConfig{}
	}
	return c.TaskConfigs[taskID]
}

// DefaultSchedulerConfig returns sensible defaults for the scheduler.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled: true,
		TaskConfigs: map[string]TaskConfig{
			TaskIDStaleSweep: {
				Enabled:  true,
				Interval: time.Minute,
			},
			TaskIDLocalScan: {
				Enabled:  false,
				Interval: time.Hour,
			},
		},
	}
}

// Job IDs for built-in maintenance jobs.
const (
	TaskIDStaleSweep = "stale-sweep"
	TaskIDLocalScan  = "local-scan"
)
