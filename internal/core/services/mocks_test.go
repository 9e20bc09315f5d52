package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
	"github.com/custodia-labs/jarvis/internal/core/ports/driving"
)

// --- Content store ---

type mockContentStore struct {
	mu       sync.Mutex
	items    map[string]domain.ContentItem
	raw      map[string][]byte
	tasks    []domain.Task
	err      error
	calls    int
	notFound bool
}

func newMockContentStore() *mockContentStore {
	return &mockContentStore{
		items: make(map[string]domain.ContentItem),
		raw:   make(map[string][]byte),
	}
}

func (m *mockContentStore) RegisterContent(
	_ context.Context, item *domain.ContentItem, raw []byte, first *domain.Task,
) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return "", false, m.err
	}
	for id, existing := range m.items {
		if existing.ContentHash == item.ContentHash {
			return id, false, nil
		}
	}
	m.items[item.ContentID] = *item
	m.raw[item.ContentID] = raw
	if first != nil {
		m.tasks = append(m.tasks, *first)
	}
	return item.ContentID, true, nil
}

func (m *mockContentStore) put(item domain.ContentItem, raw []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item.ContentHash = domain.HashContent(raw)
	m.items[item.ContentID] = item
	m.raw[item.ContentID] = raw
}

func (m *mockContentStore) GetContent(_ context.Context, contentID string) (*domain.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[contentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

func (m *mockContentStore) GetContentByHash(_ context.Context, hash string) (*domain.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items {
		if item.ContentHash == hash {
			return &item, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockContentStore) GetRaw(_ context.Context, contentID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.raw[contentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return raw, nil
}

func (m *mockContentStore) ListContent(_ context.Context, filter domain.ContentFilter) ([]domain.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ContentItem
	for _, item := range m.items {
		if filter.Kind == "" || item.Kind == filter.Kind {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContentID < out[j].ContentID })
	return out, nil
}

// --- Task store ---

// mockTaskStore is an in-memory queue with the same observable semantics as
// the SQLite store.
type mockTaskStore struct {
	mu       sync.Mutex
	tasks    []*domain.Task
	claimErr error
}

func newMockTaskStore() *mockTaskStore { return &mockTaskStore{} }

func (m *mockTaskStore) find(id string) *domain.Task {
	for _, t := range m.tasks {
		if t.TaskID == id {
			return t
		}
	}
	return nil
}

func (m *mockTaskStore) EnqueueTask(_ context.Context, task *domain.Task) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.Type == task.Type && t.ContentID == task.ContentID &&
			(t.Status == domain.TaskPending || t.Status == domain.TaskRunning) {
			return t.TaskID, false, nil
		}
	}
	cp := *task
	m.tasks = append(m.tasks, &cp)
	return cp.TaskID, true, nil
}

func (m *mockTaskStore) ClaimTask(_ context.Context, types []domain.TaskType, workerID string, now time.Time) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	if len(types) == 0 {
		types = domain.AllTaskTypes()
	}
	for _, t := range m.tasks {
		if t.Status != domain.TaskPending || t.NextAttemptAt.After(now) || !hasType(types, t.Type) {
			continue
		}
		t.Status = domain.TaskRunning
		t.ClaimedBy = workerID
		t.ClaimedAt = now
		t.UpdatedAt = now
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func hasType(types []domain.TaskType, t domain.TaskType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func (m *mockTaskStore) FinishAttempt(_ context.Context, taskID string, u driven.TaskUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.find(taskID)
	if t == nil || t.Status != domain.TaskRunning {
		return domain.ErrTaskNotRunning
	}
	if u.ClaimedBy != "" && u.ClaimedBy != t.ClaimedBy {
		return domain.ErrTaskNotRunning
	}
	if !u.ClaimedAt.IsZero() && !u.ClaimedAt.Equal(t.ClaimedAt) {
		return domain.ErrTaskNotRunning
	}
	t.Status = u.Status
	t.AttemptCount++
	t.LastError = u.LastError
	if !u.NextAttemptAt.IsZero() {
		t.NextAttemptAt = u.NextAttemptAt
	}
	t.ClaimedBy = ""
	t.ClaimedAt = time.Time{}
	t.UpdatedAt = u.Now
	return nil
}

func (m *mockTaskStore) GetTask(_ context.Context, taskID string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.find(taskID)
	if t == nil {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockTaskStore) ListTasks(_ context.Context, f domain.TaskFilter) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Task
	for _, t := range m.tasks {
		if (f.Status == "" || t.Status == f.Status) && (f.Type == "" || t.Type == f.Type) &&
			(f.ContentID == "" || t.ContentID == f.ContentID) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *mockTaskStore) ListStale(_ context.Context, before time.Time) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Task
	for _, t := range m.tasks {
		if t.Status == domain.TaskRunning && t.ClaimedAt.Before(before) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *mockTaskStore) Stats(_ context.Context) (domain.QueueStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := domain.QueueStats{}
	for _, t := range m.tasks {
		if stats[t.Type] == nil {
			stats[t.Type] = map[domain.TaskStatus]int{}
		}
		stats[t.Type][t.Status]++
	}
	return stats, nil
}

func (m *mockTaskStore) ResetTask(_ context.Context, taskID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.find(taskID)
	if t == nil {
		return domain.ErrNotFound
	}
	if t.Status != domain.TaskFailed {
		return domain.ErrInvalidInput
	}
	t.Status = domain.TaskPending
	t.AttemptCount = 0
	t.LastError = ""
	t.NextAttemptAt = now
	return nil
}

func (m *mockTaskStore) PurgeTasks(_ context.Context, status domain.TaskStatus, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*domain.Task
	var n int64
	for _, t := range m.tasks {
		if t.Status == status && t.UpdatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, t)
	}
	m.tasks = kept
	return n, nil
}

func (m *mockTaskStore) snapshot(taskID string) domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.find(taskID)
}

// --- Queue recording enqueues ---

type enqueued struct {
	Type      domain.TaskType
	ContentID string
	Payload   map[string]string
}

type mockQueue struct {
	driving.TaskQueue

	mu       sync.Mutex
	enqueued []enqueued
	err      error
}

func (m *mockQueue) Enqueue(_ context.Context, t domain.TaskType, contentID string, payload map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.enqueued = append(m.enqueued, enqueued{t, contentID, payload})
	return "task-" + string(t), nil
}

// --- Indexer collaborators ---

type mockTextExtractor struct {
	pages []string
	err   error
}

func (m *mockTextExtractor) ExtractText(context.Context, *domain.ContentItem, []byte) (*driven.NormaliseResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &driven.NormaliseResult{Pages: m.pages}, nil
}

// lineChunker emits one chunk per non-empty line.
type lineChunker struct{}

func (lineChunker) Name() string { return "lines" }

func (lineChunker) Chunk(_ context.Context, contentID string, pages []string) ([]domain.TextChunk, error) {
	var out []domain.TextChunk
	for p, page := range pages {
		for _, line := range strings.Split(page, "\n") {
			if line = strings.TrimSpace(line); line == "" {
				continue
			}
			out = append(out, domain.TextChunk{
				ContentID:  contentID,
				ChunkIndex: len(out),
				Page:       p + 1,
				Text:       line,
				TokenCount: len(strings.Fields(line)),
				TextHash:   domain.HashContent([]byte(line)),
			})
		}
	}
	return out, nil
}

type mockEmbedder struct {
	mu      sync.Mutex
	batches [][]string
	err     error
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.batches = append(m.batches, texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int            { return 2 }
func (m *mockEmbedder) ModelName() string          { return "mock-embed" }
func (m *mockEmbedder) Ping(context.Context) error { return nil }
func (m *mockEmbedder) Close() error               { return nil }

type mockChunkStore struct {
	mu         sync.Mutex
	chunks     map[string][]domain.TextChunk
	embeddings map[string][]domain.Embedding
	err        error
	searchErr  error
}

func newMockChunkStore() *mockChunkStore {
	return &mockChunkStore{
		chunks:     make(map[string][]domain.TextChunk),
		embeddings: make(map[string][]domain.Embedding),
	}
}

func (m *mockChunkStore) ReplaceChunks(_ context.Context, contentID string, chunks []domain.TextChunk, embeddings []domain.Embedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.chunks[contentID] = chunks
	m.embeddings[contentID] = embeddings
	return nil
}

func (m *mockChunkStore) GetChunks(_ context.Context, contentID string) ([]domain.TextChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chunks[contentID], nil
}

func (m *mockChunkStore) GetChunk(_ context.Context, contentID string, chunkIndex int) (*domain.TextChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.chunks[contentID] {
		if c.ChunkIndex == chunkIndex {
			c := c
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockChunkStore) GetEmbeddings(_ context.Context, contentID string) ([]domain.Embedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.embeddings[contentID], nil
}

func (m *mockChunkStore) ListEmbeddings(_ context.Context, model string) ([]domain.Embedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Embedding
	for _, id := range m.contentIDs() {
		for _, e := range m.embeddings[id] {
			if e.Model == model {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (m *mockChunkStore) SearchChunks(_ context.Context, query string, limit int) ([]domain.TextChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	var out []domain.TextChunk
	for _, id := range m.contentIDs() {
		for _, c := range m.chunks[id] {
			if strings.Contains(strings.ToLower(c.Text), strings.ToLower(query)) {
				out = append(out, c)
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// contentIDs returns the stored content ids in sorted order. Callers hold mu.
func (m *mockChunkStore) contentIDs() []string {
	ids := make([]string, 0, len(m.chunks))
	for id := range m.chunks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// --- Extraction collaborators ---

type mockBackend struct {
	name       string
	mu         sync.Mutex
	candidates map[int][]domain.MentionCandidate
	scanned    []int
	err        error
}

func (m *mockBackend) Name() string { return m.name }

func (m *mockBackend) Scan(_ context.Context, chunk domain.TextChunk) ([]domain.MentionCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanned = append(m.scanned, chunk.ChunkIndex)
	if m.err != nil {
		return nil, m.err
	}
	return m.candidates[chunk.ChunkIndex], nil
}

type mockMentionStore struct {
	mu       sync.Mutex
	pending  []domain.TextChunk
	saved    []driven.ChunkExtraction
	mentions []domain.EntityMention
	purged   []string
	saveErr  error
}

func (m *mockMentionStore) PendingChunks(context.Context, string, string) ([]domain.TextChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending, nil
}

func (m *mockMentionStore) SaveChunkExtraction(_ context.Context, ex driven.ChunkExtraction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, ex)
	return nil
}

func (m *mockMentionStore) ListMentions(_ context.Context, contentID, backend string) ([]domain.EntityMention, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.EntityMention
	for _, mention := range m.mentions {
		if mention.ContentID == contentID && (backend == "" || mention.Backend == backend) {
			out = append(out, mention)
		}
	}
	return out, nil
}

func (m *mockMentionStore) PurgeBackend(_ context.Context, backend string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purged = append(m.purged, backend)
	return 3, nil
}

// --- Facts collaborators ---

type stubBuilder struct {
	taskType domain.TaskType
	rows     []domain.FactRow
	inputs   []domain.FactInput
}

func (b *stubBuilder) TaskType() domain.TaskType { return b.taskType }
func (b *stubBuilder) Labels() []string          { return nil }

func (b *stubBuilder) Build(_ context.Context, in domain.FactInput) ([]domain.FactRow, error) {
	b.inputs = append(b.inputs, in)
	return b.rows, nil
}

type replaceCall struct {
	Domain    domain.FactDomain
	ContentID string
	Backend   string
	Rows      []domain.FactRow
}

type mockFactStore struct {
	driven.FactStore

	calls []replaceCall
	lab   []domain.LabResult
}

func (m *mockFactStore) ListLabResults(_ context.Context, contentID string) ([]domain.LabResult, error) {
	var out []domain.LabResult
	for _, r := range m.lab {
		if contentID == "" || r.Provenance.ContentID == contentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockFactStore) ReplaceFacts(_ context.Context, d domain.FactDomain, contentID, backend string, rows []domain.FactRow) error {
	m.calls = append(m.calls, replaceCall{d, contentID, backend, rows})
	return nil
}

// --- Graph export (testify mocks) ---

type mockGraphStore struct{ mock.Mock }

func (m *mockGraphStore) ListEntities(ctx context.Context) ([]domain.GraphEntity, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.GraphEntity), args.Error(1)
}

func (m *mockGraphStore) ListRelations(ctx context.Context) ([]domain.GraphRelation, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.GraphRelation), args.Error(1)
}

type mockExporter struct{ mock.Mock }

func (m *mockExporter) ExportEntities(ctx context.Context, e []domain.GraphEntity) (int, error) {
	args := m.Called(ctx, e)
	return args.Int(0), args.Error(1)
}

func (m *mockExporter) ExportRelations(ctx context.Context, r []domain.GraphRelation) (int, error) {
	args := m.Called(ctx, r)
	return args.Int(0), args.Error(1)
}

func (m *mockExporter) Close(context.Context) error { return nil }

// --- File source ---

type mockFileSource struct {
	docs    []domain.RawDocument
	changes chan domain.RawDocumentChange
	walkErr error
}

func (m *mockFileSource) Walk(_ context.Context, _ string, fn func(domain.RawDocument) error) error {
	if m.walkErr != nil {
		return m.walkErr
	}
	for _, d := range m.docs {
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockFileSource) Watch(context.Context, []string) (<-chan domain.RawDocumentChange, error) {
	return m.changes, nil
}

// --- Scheduler store ---

type mockSchedulerStore struct {
	mu      sync.RWMutex
	tasks   map[string]*domain.ScheduledTask
	results map[string][]domain.TaskResult
	pruned  int
	listErr error
}

func newMockSchedulerStore() *mockSchedulerStore {
	return &mockSchedulerStore{
		tasks:   make(map[string]*domain.ScheduledTask),
		results: make(map[string][]domain.TaskResult),
	}
}

func (m *mockSchedulerStore) GetTask(_ context.Context, taskID string) (*domain.ScheduledTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, exists := m.tasks[taskID]
	if !exists {
		return nil, nil
	}
	taskCopy := *task
	return &taskCopy, nil
}

func (m *mockSchedulerStore) ListTasks(_ context.Context) ([]domain.ScheduledTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	tasks := make([]domain.ScheduledTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, *t)
	}
	return tasks, nil
}

func (m *mockSchedulerStore) SaveTask(_ context.Context, task *domain.ScheduledTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	taskCopy := *task
	m.tasks[task.ID] = &taskCopy
	return nil
}

func (m *mockSchedulerStore) DeleteTask(_ context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, taskID)
	return nil
}

func (m *mockSchedulerStore) RecordResult(_ context.Context, result *domain.TaskResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[result.TaskID] = append(m.results[result.TaskID], *result)
	return nil
}

func (m *mockSchedulerStore) GetTaskHistory(_ context.Context, taskID string, limit int) ([]domain.TaskResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := m.results[taskID]
	if len(results) > limit {
		results = results[len(results)-limit:]
	}
	return results, nil
}

func (m *mockSchedulerStore) PruneHistory(_ context.Context, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruned = keep
	return nil
}

func (m *mockSchedulerStore) history(taskID string) []domain.TaskResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.TaskResult(nil), m.results[taskID]...)
}

// Ensure mocks implement interfaces.
var (
	_ driven.ContentStore     = (*mockContentStore)(nil)
	_ driven.TaskStore        = (*mockTaskStore)(nil)
	_ driven.ChunkStore       = (*mockChunkStore)(nil)
	_ driven.MentionStore     = (*mockMentionStore)(nil)
	_ driven.TextExtractor    = (*mockTextExtractor)(nil)
	_ driven.Chunker          = lineChunker{}
	_ driven.EmbeddingService = (*mockEmbedder)(nil)
	_ driven.EntityBackend    = (*mockBackend)(nil)
	_ driven.FactBuilder      = (*stubBuilder)(nil)
	_ driven.FactStore        = (*mockFactStore)(nil)
	_ driven.GraphStore       = (*mockGraphStore)(nil)
	_ driven.GraphExporter    = (*mockExporter)(nil)
	_ driven.FileSource       = (*mockFileSource)(nil)
	_ driven.SchedulerStore   = (*mockSchedulerStore)(nil)
)
