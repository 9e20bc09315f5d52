package domain

// SearchMode is the retrieval strategy a search actually used.
type SearchMode string

// Search modes.
const (
	// SearchModeKeyword uses the full-text index only.
	SearchModeKeyword SearchMode = "keyword"

	// SearchModeHybrid merges keyword and vector rankings.
	SearchModeHybrid SearchMode = "hybrid"
)

// Description returns a human-readable label for the mode.
func (m SearchMode) Description() string {
	switch m {
	case SearchModeKeyword:
		return "keyword (full-text)"
	case SearchModeHybrid:
		return "hybrid (full-text + vector)"
	default:
		return string(m)
	}
}

// SearchOptions configures a chunk search.
type SearchOptions struct {
	// Limit caps the number of results. Zero means 20.
	Limit int

	// Offset skips the first results for pagination.
	Offset int

	// KeywordOnly disables vector retrieval even when embeddings exist.
	KeywordOnly bool

	// Kinds restricts results to content of these kinds.
	Kinds []ContentKind
}

// SearchResult is one ranked chunk with its content item.
type SearchResult struct {
	Item       ContentItem
	Chunk      TextChunk
	Score      float64
	Highlights []string
}
