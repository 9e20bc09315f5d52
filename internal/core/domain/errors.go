package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates content with no text extractor, or a task
	// type with no registered handler.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrUnextractable indicates content whose bytes could not be decoded,
	// such as a corrupt archive or a truncated PDF. Retrying cannot help.
	ErrUnextractable = errors.New("unextractable content")

	// ErrLLMUnavailable indicates the LLM service is not configured.
	// The llm extraction backend cannot run without it.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrBackendOutput indicates an extraction backend returned output that
	// could not be parsed. It is retried like any other transient failure.
	ErrBackendOutput = errors.New("malformed backend output")

	// ErrTaskNotRunning indicates complete/fail was called for a task that is
	// not held in the running state.
	ErrTaskNotRunning = errors.New("task not running")

	// ErrLeaseExpired is recorded as last_error when the liveness sweep
	// reclaims a task whose worker stopped reporting.
	ErrLeaseExpired = errors.New("task lease expired")

	// ErrGraphUnavailable indicates the graph database is not configured.
	ErrGraphUnavailable = errors.New("graph database unavailable")
)

// RegistrationError wraps a failure to register content.
// The registry returns it for every storage or validation failure so callers
// can tell ingestion problems apart from other errors.
type RegistrationError struct {
	ContentID string
	Err       error
}

func (e *RegistrationError) Error() string {
	if e.ContentID == "" {
		return fmt.Sprintf("register content: %v", e.Err)
	}
	return fmt.Sprintf("register content %s: %v", e.ContentID, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// TaskError describes a handler failure for a specific task.
type TaskError struct {
	TaskID string
	Type   TaskType
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s (%s): %v", e.TaskID, e.Type, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}
