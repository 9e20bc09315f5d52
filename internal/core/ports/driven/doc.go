// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the pipeline to function:
//
//   - ContentStore: Content registry persistence (items and raw bytes)
//   - TaskStore: Durable task queue persistence with atomic claim
//   - ChunkStore: Text chunk and embedding persistence
//   - MentionStore: Entity mention and graph persistence
//   - FactStore: Domain fact persistence
//   - TextExtractor: MIME-aware text extraction
//   - EmbeddingService: Deterministic chunk embeddings
//   - EntityBackend: The active entity scanning implementation
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - LLMService: Language model transport. Only the llm backend needs it.
//   - GraphExporter: Graph database export.
//   - FileSource: Local file walking for ingestion.
//   - SchedulerStore: Maintenance job state.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter, connector, or normaliser package
package driven
