package main

import (
	"context"
	"fmt"
	"os"

	"github.com/custodia-labs/jarvis/internal/adapters/driven/ai"
	"github.com/custodia-labs/jarvis/internal/adapters/driven/config/file"
	"github.com/custodia-labs/jarvis/internal/adapters/driven/graph/neo4j"
	"github.com/custodia-labs/jarvis/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/jarvis/internal/adapters/driving/cli"
	"github.com/custodia-labs/jarvis/internal/config"
	"github.com/custodia-labs/jarvis/internal/connectors/filesystem"
	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driving"
	"github.com/custodia-labs/jarvis/internal/core/services"
	"github.com/custodia-labs/jarvis/internal/extractors"
	"github.com/custodia-labs/jarvis/internal/extractors/llm"
	"github.com/custodia-labs/jarvis/internal/factbuilders"
	"github.com/custodia-labs/jarvis/internal/logger"
	"github.com/custodia-labs/jarvis/internal/normalisers"
	"github.com/custodia-labs/jarvis/internal/postprocessors"
)

// bootstrap loads the configuration and builds every service the CLI drives.
func bootstrap(ctx context.Context, configPath string) (*cli.Services, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := logger.Configure(cfg.Log.Level, cfg.Log.Format == "json", os.Stderr); err != nil {
		return nil, nil, err
	}

	store, err := sqlite.NewStore(cfg.DatabasePath())
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	aiServices, err := ai.Init(ctx, cfg)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	files := filesystem.New(filesystem.WithLogger(logger.Component("filesystem")))
	release := func() {
		_ = files.Close()
		aiServices.Close()
		_ = store.Close()
	}

	s, err := build(cfg, store, aiServices, files)
	if err != nil {
		release()
		return nil, nil, err
	}
	return s, release, nil
}

// pipeline holds the queue, the registry and the stage handlers.
type pipeline struct {
	queue     *services.Queue
	registry  *services.Registry
	extractor *services.Extractor
	facts     *services.Facts
	ingestor  *services.Ingestor
	handlers  map[domain.TaskType]driving.TaskHandler
}

func newPipeline(cfg *config.Config, store *sqlite.Store, aiServices *ai.InitResult, files *filesystem.Source) (*pipeline, error) {
	factTypes, err := cfg.FactTaskTypes()
	if err != nil {
		return nil, err
	}

	prompts, err := file.NewPromptStore("", llm.DefaultPrompts())
	if err != nil {
		return nil, err
	}
	backend, err := extractors.New(extractors.Config{
		Backend:   cfg.Extraction.Backend,
		Ruleset:   cfg.Extraction.Ruleset,
		RateLimit: cfg.Extraction.RateLimit,
		MaxTokens: cfg.LLM.MaxTokens,
	}, aiServices.LLMService, prompts, logger.Component("extractor"))
	if err != nil {
		return nil, fmt.Errorf("create entity backend: %w", err)
	}

	builders, err := factbuilders.New(factTypes)
	if err != nil {
		return nil, err
	}

	textExtractors := normalisers.NewRegistry()
	normalisers.RegisterDefaults(textExtractors)

	chunkers := postprocessors.NewRegistry()
	postprocessors.RegisterDefaults(chunkers)
	chunker, err := chunkers.Build("chunker", map[string]any{
		"chunk_size": cfg.Indexer.ChunkSize,
		"overlap":    cfg.Indexer.Overlap,
	})
	if err != nil {
		return nil, fmt.Errorf("create chunker: %w", err)
	}

	queue := services.NewQueue(store.TaskStore(),
		services.WithRetryPolicy(cfg.RetryPolicy()),
		services.WithQueueLogger(logger.Component("queue")),
	)
	registry := services.NewRegistry(store.ContentStore(), logger.Component("registry"))

	indexer := services.NewIndexer(services.IndexerDeps{
		Content:   store.ContentStore(),
		Chunks:    store.ChunkStore(),
		Extractor: textExtractors,
		Chunker:   chunker,
		Embedder:  aiServices.EmbeddingService,
		Queue:     queue,
		Backend:   backend.Name(),
		BatchSize: cfg.Embedding.BatchSize,
		Logger:    logger.Component("indexer"),
	})
	extractor := services.NewExtractor(store.ContentStore(), store.MentionStore(), backend, queue,
		factTypes, logger.Component("extractor"))
	facts := services.NewFacts(store.ContentStore(), store.MentionStore(), store.FactStore(),
		builders, backend.Name(), logger.Component("facts"))

	handlers := map[domain.TaskType]driving.TaskHandler{
		domain.TaskSemanticIndex: indexer,
		domain.TaskEntityExtract: extractor,
	}
	for _, t := range facts.TaskTypes() {
		handlers[t] = facts
	}

	return &pipeline{
		queue:     queue,
		registry:  registry,
		extractor: extractor,
		facts:     facts,
		ingestor:  services.NewIngestor(registry, store.ContentStore(), files, logger.Component("ingest")),
		handlers:  handlers,
	}, nil
}

// workerOptions maps the configuration and per-run overrides to worker
// options.
func workerOptions(cfg *config.Config, handlers map[domain.TaskType]driving.TaskHandler, opts cli.WorkerOptions) []services.WorkerOption {
	concurrency := cfg.Worker.Concurrency
	if opts.Concurrency > 0 {
		concurrency = opts.Concurrency
	}
	types := opts.Types
	if len(types) == 0 {
		// Only claim stages with a handler; disabled fact types stay queued.
		types = handledTypes(handlers)
	}
	return []services.WorkerOption{
		services.WithConcurrency(concurrency),
		services.WithPollInterval(cfg.Worker.PollInterval.Std()),
		services.WithTaskTimeout(cfg.Worker.TaskTimeout.Std()),
		services.WithLeaseTimeout(cfg.Worker.LockTimeout.Std()),
		services.WithTaskTypes(types...),
		services.WithWorkerLogger(logger.Component("worker")),
	}
}

func build(cfg *config.Config, store *sqlite.Store, aiServices *ai.InitResult, files *filesystem.Source) (*cli.Services, error) {
	p, err := newPipeline(cfg, store, aiServices, files)
	if err != nil {
		return nil, err
	}

	newWorker := func(opts cli.WorkerOptions) driving.Worker {
		return services.NewWorker(p.queue, p.handlers, workerOptions(cfg, p.handlers, opts)...)
	}

	newExporter := func(ctx context.Context) (driving.GraphExportService, func(), error) {
		exporter, err := neo4j.NewExporter(ctx, neo4j.Config{
			URI:      cfg.Neo4j.URI,
			User:     cfg.Neo4j.User,
			Password: cfg.Neo4j.Password,
			Database: cfg.Neo4j.Database,
		})
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() { _ = exporter.Close(context.Background()) }
		return services.NewGraphExport(store.GraphStore(), exporter, logger.Component("export")), closeFn, nil
	}

	localDirs := cfg.LocalDirs()
	return &cli.Services{
		Registry:  p.registry,
		Queue:     p.queue,
		Ingestor:  p.ingestor,
		Extractor: p.extractor,
		Facts:     p.facts,
		Search:    services.NewSearchService(store.ContentStore(), store.ChunkStore(), aiServices.EmbeddingService),
		Scheduler: services.NewScheduler(cfg.SchedulerConfig(), store.SchedulerStore(), p.queue,
			cfg.Worker.LockTimeout.Std(), p.ingestor, localDirs, logger.Component("scheduler")),
		NewWorker:   newWorker,
		NewExporter: newExporter,
		LocalDirs:   localDirs,
	}, nil
}

// handledTypes returns the task types in handlers in pipeline order.
func handledTypes(handlers map[domain.TaskType]driving.TaskHandler) []domain.TaskType {
	var out []domain.TaskType
	for _, t := range domain.AllTaskTypes() {
		if _, ok := handlers[t]; ok {
			out = append(out, t)
		}
	}
	return out
}
