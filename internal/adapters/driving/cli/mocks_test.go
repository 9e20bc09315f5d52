package cli

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driving"
)

type registerCall struct {
	raw  []byte
	kind domain.ContentKind
	prov domain.Provenance
}

type mockRegistry struct {
	calls []registerCall
	err   error
}

func (m *mockRegistry) Register(_ context.Context, raw []byte, kind domain.ContentKind, prov domain.Provenance) (string, error) {
	m.calls = append(m.calls, registerCall{raw: raw, kind: kind, prov: prov})
	if m.err != nil {
		return "", m.err
	}
	id, err := domain.BuildContentID(kind, prov, domain.HashContent(raw))
	if err != nil {
		return "", &domain.RegistrationError{Err: err}
	}
	return id, nil
}

func (m *mockRegistry) Get(_ context.Context, contentID string) (*domain.ContentItem, error) {
	return &domain.ContentItem{ContentID: contentID}, nil
}

func (m *mockRegistry) List(context.Context, domain.ContentFilter) ([]domain.ContentItem, error) {
	return nil, nil
}

type mockQueue struct {
	stats     domain.QueueStats
	tasks     []domain.Task
	filter    domain.TaskFilter
	retried   []string
	reclaimed time.Duration
	purged    domain.TaskStatus
	err       error
}

func (m *mockQueue) Enqueue(context.Context, domain.TaskType, string, map[string]string) (string, error) {
	return "task-new", m.err
}

func (m *mockQueue) Claim(context.Context, []domain.TaskType, time.Time) (*domain.Task, bool, error) {
	return nil, false, m.err
}

func (m *mockQueue) Complete(context.Context, *domain.Task, time.Time) error { return m.err }

func (m *mockQueue) Fail(context.Context, *domain.Task, error, time.Time) (*domain.Task, error) {
	return nil, m.err
}

func (m *mockQueue) ReclaimStale(_ context.Context, lockTimeout time.Duration, _ time.Time) (int, error) {
	m.reclaimed = lockTimeout
	return 2, m.err
}

func (m *mockQueue) Stats(context.Context) (domain.QueueStats, error) {
	return m.stats, m.err
}

func (m *mockQueue) List(_ context.Context, filter domain.TaskFilter) ([]domain.Task, error) {
	m.filter = filter
	return m.tasks, m.err
}

func (m *mockQueue) Retry(_ context.Context, taskID string, _ time.Time) error {
	if m.err != nil {
		return m.err
	}
	m.retried = append(m.retried, taskID)
	return nil
}

func (m *mockQueue) Purge(_ context.Context, status domain.TaskStatus, _ time.Duration, _ time.Time) (int64, error) {
	m.purged = status
	return 3, m.err
}

type mockIngestor struct {
	paths    []string
	messages []driving.Message
	watched  []string
}

func (m *mockIngestor) IngestPath(_ context.Context, root string) (driving.IngestSummary, error) {
	m.paths = append(m.paths, root)
	return driving.IngestSummary{Seen: 3, Registered: 2, Duplicates: 1}, nil
}

func (m *mockIngestor) IngestMessage(_ context.Context, msg driving.Message) (driving.IngestSummary, error) {
	m.messages = append(m.messages, msg)
	n := 1 + len(msg.Attachments)
	return driving.IngestSummary{Seen: n, Registered: n}, nil
}

func (m *mockIngestor) Watch(_ context.Context, roots []string) error {
	m.watched = roots
	return nil
}

func (m *mockIngestor) IngestRaw(context.Context, domain.RawDocument) (string, error) {
	return "file:test", nil
}

type mockExtractor struct {
	backend string
	purged  string
}

func (m *mockExtractor) Handle(context.Context, *domain.Task) error { return nil }

func (m *mockExtractor) Extract(context.Context, string) ([]domain.EntityMention, error) {
	return nil, nil
}

func (m *mockExtractor) Backend() string { return m.backend }

func (m *mockExtractor) PurgeBackend(_ context.Context, backend string) (int64, error) {
	m.purged = backend
	return 7, nil
}

type mockFacts struct {
	rows map[domain.FactDomain][]domain.FactRow
}

func (m *mockFacts) Handle(context.Context, *domain.Task) error { return nil }

func (m *mockFacts) Build(context.Context, domain.TaskType, string, string) ([]domain.FactRow, error) {
	return nil, nil
}

func (m *mockFacts) List(_ context.Context, factDomain domain.FactDomain, contentID string) ([]domain.FactRow, error) {
	var out []domain.FactRow
	for _, r := range m.rows[factDomain] {
		if contentID == "" || r.Source().ContentID == contentID {
			out = append(out, r)
		}
	}
	return out, nil
}

type mockSearch struct {
	query   string
	opts    domain.SearchOptions
	results []domain.SearchResult
}

func (m *mockSearch) Search(_ context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, domain.SearchMode, error) {
	m.query = query
	m.opts = opts
	mode := domain.SearchModeHybrid
	if opts.KeywordOnly {
		mode = domain.SearchModeKeyword
	}
	return m.results, mode, nil
}

type mockWorker struct {
	summary driving.WorkerSummary
	ranOnce bool
	ran     bool
}

func (m *mockWorker) RunOnce(context.Context) (driving.WorkerSummary, error) {
	m.ranOnce = true
	return m.summary, nil
}

func (m *mockWorker) Run(context.Context) error {
	m.ran = true
	return nil
}

type mockExporter struct {
	summary driving.ExportSummary
}

func (m *mockExporter) Export(context.Context) (driving.ExportSummary, error) {
	return m.summary, nil
}

// testServices holds the fakes installed by setupTestServices.
type testServices struct {
	registry   *mockRegistry
	queue      *mockQueue
	ingestor   *mockIngestor
	extractor  *mockExtractor
	facts      *mockFacts
	search     *mockSearch
	worker     *mockWorker
	workerOpts WorkerOptions
	exporter   *mockExporter
	closed     bool
	connectErr error
}

// setupTestServices installs fake services and resets command flags. The
// returned function restores the previous state.
func setupTestServices() (*testServices, func()) {
	value := 6.1
	ts := &testServices{
		registry: &mockRegistry{},
		queue: &mockQueue{
			stats: domain.QueueStats{
				domain.TaskSemanticIndex: {domain.TaskDone: 4, domain.TaskPending: 1},
				domain.TaskEntityExtract: {domain.TaskFailed: 1},
			},
			tasks: []domain.Task{{
				TaskID:       "task-1",
				Type:         domain.TaskEntityExtract,
				ContentID:    "file:/docs/report.pdf",
				Status:       domain.TaskFailed,
				AttemptCount: 5,
				LastError:    "backend timeout",
			}},
		},
		ingestor:  &mockIngestor{},
		extractor: &mockExtractor{backend: "rules:default"},
		facts: &mockFacts{rows: map[domain.FactDomain][]domain.FactRow{
			domain.TaskLabResults: {domain.LabResult{
				ResultID:         "lab-1",
				TestName:         "HbA1c",
				MeasurementText:  "6.1",
				MeasurementValue: &value,
				MeasurementUnits: "%",
				Provenance: domain.FactProvenance{
					ContentID:  "file:/docs/report.pdf",
					Filename:   "report.pdf",
					Backend:    "rules:default",
					MentionIDs: []string{"m1"},
				},
			}},
		}},
		search: &mockSearch{results: []domain.SearchResult{{
			Item: domain.ContentItem{
				ContentID:  "file:/docs/report.pdf",
				Provenance: domain.Provenance{Filename: "report.pdf"},
			},
			Chunk:      domain.TextChunk{ContentID: "file:/docs/report.pdf", ChunkIndex: 2},
			Score:      0.87,
			Highlights: []string{"HbA1c 6.1 %"},
		}}},
		worker:   &mockWorker{summary: driving.WorkerSummary{Claimed: 3, Completed: 2, Failed: 1}},
		exporter: &mockExporter{summary: driving.ExportSummary{Entities: 10, Relations: 14}},
	}

	previous := services
	resetFlags()
	SetServices(&Services{
		Registry:  ts.registry,
		Queue:     ts.queue,
		Ingestor:  ts.ingestor,
		Extractor: ts.extractor,
		Facts:     ts.facts,
		Search:    ts.search,
		NewWorker: func(opts WorkerOptions) driving.Worker {
			ts.workerOpts = opts
			return ts.worker
		},
		NewExporter: func(context.Context) (driving.GraphExportService, func(), error) {
			if ts.connectErr != nil {
				return nil, nil, ts.connectErr
			}
			return ts.exporter, func() { ts.closed = true }, nil
		},
		LocalDirs: []string{"/home/user/Documents"},
	})

	return ts, func() {
		services = previous
		resetFlags()
	}
}

// resetFlags restores flag variables, which outlive a single Execute.
func resetFlags() {
	searchLimit, searchOffset, searchKeyword, searchKinds, searchJSON = 10, 0, false, nil, false
	registerKind, registerMessageID, registerAttachmentID, registerMIME, registerSource = string(domain.KindFile), "", "", "", "local"
	ingestWatch, ingestEML, ingestSource = false, nil, "eml"
	workOnce, workConcurrency, workTypes, workFollow = false, 0, nil, false
	queueListStatus, queueListType, queueListContentID, queueListLimit = "", "", "", 50
	queueSweepTimeout = 15 * time.Minute
	queuePurgeStatus, queuePurgeOlderThan = string(domain.TaskDone), 7*24*time.Hour
	mentionsPurgeBackend = ""
	factsContentID, factsJSON = "", false
}

var errBoom = errors.New("boom")

// runCLI executes the root command with args and returns its output.
func runCLI(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}
