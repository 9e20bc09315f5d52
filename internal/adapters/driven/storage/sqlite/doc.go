// Package sqlite provides a unified SQLite-based implementation of driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements multiple store interfaces
// through a single database connection:
//
//   - ContentStore: Content registry and raw bytes
//   - TaskStore: Durable task queue with atomic claim
//   - ChunkStore: Text chunks, embeddings and full-text search
//   - MentionStore / GraphStore: Entity mentions, entities and relations
//   - FactStore: Lab, financial and medical fact rows
//   - SchedulerStore: Maintenance job state
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory and embedded at compile time.
//
// # Data Location
//
// By default, the database is stored at ~/.jarvis/data/jarvis.db
//
// # Thread Safety
//
// All operations are safe for concurrent use, including from several
// processes sharing one file. Claiming a task is a single UPDATE ... RETURNING
// statement, so two claimers can never receive the same row.
package sqlite
