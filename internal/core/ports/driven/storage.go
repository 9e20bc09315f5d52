package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/jarvis/internal/core/domain"
)

// ContentStore persists content items and their raw bytes.
type ContentStore interface {
	// RegisterContent stores item, raw and the first pipeline task in one
	// transaction. When an item with the same content hash already exists
	// nothing is written and the existing content id is returned with
	// created=false.
	RegisterContent(ctx context.Context, item *domain.ContentItem, raw []byte, first *domain.Task) (contentID string, created bool, err error)

	// GetContent retrieves an item by id. Returns domain.ErrNotFound if absent.
	GetContent(ctx context.Context, contentID string) (*domain.ContentItem, error)

	// GetContentByHash retrieves an item by content hash.
	GetContentByHash(ctx context.Context, hash string) (*domain.ContentItem, error)

	// GetRaw returns the raw bytes of an item.
	GetRaw(ctx context.Context, contentID string) ([]byte, error)

	// ListContent returns items ordered by creation time.
	ListContent(ctx context.Context, filter domain.ContentFilter) ([]domain.ContentItem, error)
}

// TaskUpdate finishes a claimed attempt.
type TaskUpdate struct {
	// Status is the new status: done, pending (retry) or failed.
	Status domain.TaskStatus

	// NextAttemptAt is the re-eligibility time for pending.
	NextAttemptAt time.Time

	// LastError is recorded verbatim; empty clears it.
	LastError string

	// ClaimedBy and ClaimedAt, when set, must match the stored claim. They
	// make the claim a lease: a holder whose task was reclaimed and claimed
	// again cannot finish the new attempt.
	ClaimedBy string
	ClaimedAt time.Time

	// Now is the update timestamp.
	Now time.Time
}

// TaskStore is the durable task queue.
type TaskStore interface {
	// EnqueueTask inserts a pending task. If a pending or running task with
	// the same (type, content_id) exists, nothing is inserted and that task's
	// id is returned with created=false.
	EnqueueTask(ctx context.Context, task *domain.Task) (taskID string, created bool, err error)

	// ClaimTask atomically moves the oldest eligible pending task of one of
	// types to running and returns it. Returns nil, nil when none is eligible.
	ClaimTask(ctx context.Context, types []domain.TaskType, workerID string, now time.Time) (*domain.Task, error)

	// FinishAttempt applies update to a running task and increments its
	// attempt count. Returns domain.ErrTaskNotRunning if the task is not
	// running (or its claim time no longer matches).
	FinishAttempt(ctx context.Context, taskID string, update TaskUpdate) error

	// GetTask retrieves a task by id.
	GetTask(ctx context.Context, taskID string) (*domain.Task, error)

	// ListTasks returns tasks matching filter, oldest first.
	ListTasks(ctx context.Context, filter domain.TaskFilter) ([]domain.Task, error)

	// ListStale returns running tasks claimed before claimedBefore.
	ListStale(ctx context.Context, claimedBefore time.Time) ([]domain.Task, error)

	// Stats counts tasks by type and status.
	Stats(ctx context.Context) (domain.QueueStats, error)

	// ResetTask moves a failed task back to pending with zero attempts.
	ResetTask(ctx context.Context, taskID string, now time.Time) error

	// PurgeTasks deletes tasks in status last updated before cutoff.
	PurgeTasks(ctx context.Context, status domain.TaskStatus, before time.Time) (int64, error)
}

// ChunkStore persists text chunks and embeddings.
type ChunkStore interface {
	// ReplaceChunks upserts chunks and embeddings keyed by
	// (content_id, chunk_index) and removes indexes beyond len(chunks).
	ReplaceChunks(ctx context.Context, contentID string, chunks []domain.TextChunk, embeddings []domain.Embedding) error

	// GetChunks returns the chunks of a content item ordered by index.
	GetChunks(ctx context.Context, contentID string) ([]domain.TextChunk, error)

	// GetChunk returns one chunk. Returns domain.ErrNotFound if absent.
	GetChunk(ctx context.Context, contentID string, chunkIndex int) (*domain.TextChunk, error)

	// GetEmbeddings returns the embeddings of a content item ordered by index.
	GetEmbeddings(ctx context.Context, contentID string) ([]domain.Embedding, error)

	// ListEmbeddings returns every stored embedding produced by model.
	ListEmbeddings(ctx context.Context, model string) ([]domain.Embedding, error)

	// SearchChunks runs a full-text query over chunk text, best match first.
	SearchChunks(ctx context.Context, query string, limit int) ([]domain.TextChunk, error)
}

// ChunkExtraction is the output of one backend scan over one chunk.
type ChunkExtraction struct {
	Backend   string
	Chunk     domain.TextChunk
	Mentions  []domain.EntityMention
	Entities  []domain.GraphEntity
	Relations []domain.GraphRelation
}

// MentionStore persists entity mentions and the graph they fold into.
type MentionStore interface {
	// PendingChunks returns chunks of contentID not yet processed by backend
	// in their current form.
	PendingChunks(ctx context.Context, contentID, backend string) ([]domain.TextChunk, error)

	// SaveChunkExtraction replaces backend's mentions for the chunk, upserts
	// entities and relations, and records the chunk as processed, atomically.
	SaveChunkExtraction(ctx context.Context, extraction ChunkExtraction) error

	// ListMentions returns mentions for contentID. An empty backend matches all.
	ListMentions(ctx context.Context, contentID, backend string) ([]domain.EntityMention, error)

	// PurgeBackend removes every mention, relation and run produced by
	// backend, then drops entities no longer mentioned. Returns the number of
	// mentions removed.
	PurgeBackend(ctx context.Context, backend string) (int64, error)
}

// GraphStore reads the persisted graph.
type GraphStore interface {
	ListEntities(ctx context.Context) ([]domain.GraphEntity, error)
	ListRelations(ctx context.Context) ([]domain.GraphRelation, error)
}

// FactStore persists domain fact rows.
type FactStore interface {
	// ReplaceFacts upserts rows by natural key and deletes rows of the same
	// domain, content and backend that rows no longer contains.
	ReplaceFacts(ctx context.Context, factDomain domain.FactDomain, contentID, backend string, rows []domain.FactRow) error

	ListLabResults(ctx context.Context, contentID string) ([]domain.LabResult, error)
	ListFinancialRecords(ctx context.Context, contentID string) ([]domain.FinancialRecord, error)
	ListMedicalEvents(ctx context.Context, contentID string) ([]domain.MedicalEvent, error)
}
