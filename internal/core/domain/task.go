package domain

import "time"

// TaskType identifies a pipeline stage.
type TaskType string

// Pipeline task types.
const (
	TaskSemanticIndex    TaskType = "semantic_index"
	TaskEntityExtract    TaskType = "entity_extract"
	TaskLabResults       TaskType = "lab_results"
	TaskFinancialRecords TaskType = "financial_records"
	TaskMedicalEvents    TaskType = "medical_events"
)

// FactTaskTypes lists the fact-builder stages in dispatch order.
func FactTaskTypes() []TaskType {
	return []TaskType{TaskLabResults, TaskFinancialRecords, TaskMedicalEvents}
}

// AllTaskTypes lists every known task type.
func AllTaskTypes() []TaskType {
	return append([]TaskType{TaskSemanticIndex, TaskEntityExtract}, FactTaskTypes()...)
}

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	for _, known := range AllTaskTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

// Task statuses. Done and failed are terminal.
const (
	TaskPending TaskStatus = "pending"
	TaskRunning TaskStatus = "running"
	TaskDone    TaskStatus = "done"
	TaskFailed  TaskStatus = "failed"
)

// Terminal reports whether no further transitions happen automatically.
func (s TaskStatus) Terminal() bool {
	return s == TaskDone || s == TaskFailed
}

// PayloadBackend is the payload key carrying the extraction backend name.
const PayloadBackend = "backend"

// Task is one unit of queued work.
type Task struct {
	TaskID        string
	Type          TaskType
	ContentID     string
	Status        TaskStatus
	AttemptCount  int
	NextAttemptAt time.Time
	LastError     string
	Payload       map[string]string
	ClaimedBy     string
	ClaimedAt     time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Backend returns the extraction backend recorded in the payload.
func (t *Task) Backend() string {
	if t.Payload == nil {
		return ""
	}
	return t.Payload[PayloadBackend]
}

// TaskFilter narrows task listings.
type TaskFilter struct {
	Status    TaskStatus
	Type      TaskType
	ContentID string
	Limit     int
}

// QueueStats counts tasks by type and status.
type QueueStats map[TaskType]map[TaskStatus]int

// Total returns the number of tasks in status across all types.
func (q QueueStats) Total(status TaskStatus) int {
	n := 0
	for _, byStatus := range q {
		n += byStatus[status]
	}
	return n
}

// RetryPolicy controls how failed attempts are rescheduled.
type RetryPolicy struct {
	// MaxAttempts is the attempt ceiling. The attempt that reaches it marks
	// the task failed.
	MaxAttempts int

	// BaseDelay is the delay after the first failed attempt.
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns the default policy: five attempts, starting at
// thirty seconds and capped at one hour.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   30 * time.Second,
		MaxDelay:    time.Hour,
	}
}

// Backoff returns the delay before the next attempt after attempt failures.
// The delay is BaseDelay * 2^(attempt-1), capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
		if delay <= 0 {
			// overflow
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Exhausted reports whether attempts has reached the ceiling.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}

// MaxErrorLength bounds the stored last_error text.
const MaxErrorLength = 1024

// TruncateError shortens msg to MaxErrorLength bytes.
func TruncateError(msg string) string {
	if len(msg) <= MaxErrorLength {
		return msg
	}
	return msg[:MaxErrorLength]
}
