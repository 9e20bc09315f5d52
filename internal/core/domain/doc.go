// Package domain defines the core business entities for jarvis.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - ContentItem: A deduplicated ingestible unit (message, attachment, file)
//   - Task: A queued unit of pipeline work tied to a content item
//   - TextChunk / Embedding: Indexed slices of extracted text
//   - EntityMention / GraphEntity / GraphRelation: Extraction output
//   - LabResult / FinancialRecord / MedicalEvent: Domain fact rows
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
