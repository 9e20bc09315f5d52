package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
	"github.com/custodia-labs/jarvis/internal/core/ports/driving"
	"github.com/custodia-labs/jarvis/internal/logger"
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

const (
	defaultSearchLimit = 20
	rrfK               = 60
	maxHighlights      = 3
	maxHighlightRunes  = 200
)

type chunkKey struct {
	contentID string
	index     int
}

// scoredChunk holds intermediate search results before hydration.
type scoredChunk struct {
	key    chunkKey
	score  float64
	source string // "keyword", "vector", or "merged"
}

// SearchService provides keyword and hybrid search over indexed chunks.
type SearchService struct {
	content  driven.ContentStore
	chunks   driven.ChunkStore
	embedder driven.EmbeddingService
}

// NewSearchService creates a new search service.
// The embedder is optional; without it every search is keyword only.
func NewSearchService(
	content driven.ContentStore,
	chunks driven.ChunkStore,
	embedder driven.EmbeddingService,
) *SearchService {
	return &SearchService{
		content:  content,
		chunks:   chunks,
		embedder: embedder,
	}
}

// Search ranks indexed chunks against query.
func (s *SearchService) Search(
	ctx context.Context, query string, opts domain.SearchOptions,
) ([]domain.SearchResult, domain.SearchMode, error) {
	logger.Section("Search Execution")
	logger.Debug("Query: %q", query)

	query = strings.TrimSpace(query)
	if query == "" {
		logger.Debug("Empty query, returning no results")
		return []domain.SearchResult{}, domain.SearchModeKeyword, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	logger.Debug("Limit: %d, Offset: %d", limit, opts.Offset)

	// Over-fetch so filtering and pagination still fill the page.
	internalLimit := (limit + opts.Offset) * 2
	if len(opts.Kinds) > 0 {
		internalLimit = (limit + opts.Offset) * 3
		logger.Debug("Kind filter: %v", opts.Kinds)
	}

	var (
		chunks []scoredChunk
		mode   domain.SearchMode
		err    error
	)
	if s.embedder != nil && !opts.KeywordOnly {
		chunks, mode, err = s.hybridSearch(ctx, query, internalLimit)
	} else {
		mode = domain.SearchModeKeyword
		chunks, err = s.keywordSearch(ctx, query, internalLimit)
	}
	if err != nil {
		logger.Warn("Search failed: %v", err)
		return nil, mode, fmt.Errorf("search: %w", err)
	}
	logger.Info("Effective search mode: %s", mode.Description())
	logger.Debug("Raw results: %d chunks", len(chunks))

	results, err := s.hydrateResults(ctx, chunks, query)
	if err != nil {
		return nil, mode, fmt.Errorf("hydrate results: %w", err)
	}

	if len(opts.Kinds) > 0 {
		results = filterByKinds(results, opts.Kinds)
		logger.Debug("After kind filter: %d results", len(results))
	}

	results = applyPagination(results, opts.Offset, limit)
	logger.Info("Final results: %d", len(results))
	return results, mode, nil
}

// keywordSearch ranks chunks through the full-text index.
func (s *SearchService) keywordSearch(ctx context.Context, query string, limit int) ([]scoredChunk, error) {
	logger.Debug("Keyword search: query=%q, limit=%d", query, limit)

	hits, err := s.chunks.SearchChunks(ctx, query, limit)
	if err != nil {
		logger.Warn("Keyword search error: %v", err)
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	logger.Debug("Keyword search: %d hits", len(hits))

	results := make([]scoredChunk, len(hits))
	for i, hit := range hits {
		results[i] = scoredChunk{
			key:    chunkKey{contentID: hit.ContentID, index: hit.ChunkIndex},
			score:  1.0 / float64(i+1),
			source: "keyword",
		}
	}
	return results, nil
}

// vectorSearch ranks chunks by cosine similarity to the query embedding.
// Only embeddings from the active model are compared.
func (s *SearchService) vectorSearch(ctx context.Context, query string, limit int) ([]scoredChunk, error) {
	if s.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	logger.Debug("Vector search: query=%q, limit=%d", query, limit)

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		logger.Warn("Query embedding failed: %v", err)
		return nil, fmt.Errorf("generate query embedding: %w", err)
	}
	logger.Debug("Query embedding: %d dimensions", len(vector))

	stored, err := s.chunks.ListEmbeddings(ctx, s.embedder.ModelName())
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}

	results := make([]scoredChunk, 0, len(stored))
	for _, e := range stored {
		sim := cosineSimilarity(vector, e.Vector)
		if sim <= 0 {
			continue
		}
		results = append(results, scoredChunk{
			key:    chunkKey{contentID: e.ContentID, index: e.ChunkIndex},
			score:  sim,
			source: "vector",
		})
	}
	sortScored(results)
	if len(results) > limit {
		results = results[:limit]
	}
	logger.Debug("Vector search: %d hits", len(results))
	return results, nil
}

// hybridSearch combines keyword and vector search using RRF. When one side
// fails the other side's ranking is used alone.
func (s *SearchService) hybridSearch(ctx context.Context, query string, limit int) ([]scoredChunk, domain.SearchMode, error) {
	logger.Debug("Hybrid search: running keyword and vector searches in parallel")

	var keywordResults, vectorResults []scoredChunk
	var keywordErr, vectorErr error

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		keywordResults, keywordErr = s.keywordSearch(ctx, query, limit)
	}()
	go func() {
		defer wg.Done()
		vectorResults, vectorErr = s.vectorSearch(ctx, query, limit)
	}()
	wg.Wait()

	switch {
	case keywordErr != nil && vectorErr != nil:
		logger.Warn("Hybrid search: both keyword and vector searches failed")
		return nil, domain.SearchModeHybrid, errors.Join(keywordErr, vectorErr)
	case keywordErr != nil:
		logger.Warn("Hybrid search: keyword search failed, using vector results only")
		return vectorResults, domain.SearchModeHybrid, nil
	case vectorErr != nil:
		logger.Warn("Hybrid search: vector search failed, using keyword results only")
		return keywordResults, domain.SearchModeKeyword, nil
	}

	logger.Debug("Hybrid search: merging %d keyword + %d vector results with RRF",
		len(keywordResults), len(vectorResults))
	merged := reciprocalRankFusion(keywordResults, vectorResults, rrfK)
	logger.Debug("Hybrid search: merged to %d results", len(merged))
	return merged, domain.SearchModeHybrid, nil
}

// reciprocalRankFusion merges ranked lists; k damps the weight of top ranks.
func reciprocalRankFusion(list1, list2 []scoredChunk, k int) []scoredChunk {
	scores := make(map[chunkKey]float64)
	for _, list := range [][]scoredChunk{list1, list2} {
		for rank, c := range list {
			scores[c.key] += 1.0 / float64(k+rank+1)
		}
	}

	results := make([]scoredChunk, 0, len(scores))
	for key, score := range scores {
		results = append(results, scoredChunk{key: key, score: score, source: "merged"})
	}
	sortScored(results)
	return results
}

// sortScored orders by score, then by position for stable output.
func sortScored(results []scoredChunk) {
	slices.SortFunc(results, func(a, b scoredChunk) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.key.contentID, b.key.contentID); c != 0 {
			return c
		}
		return cmp.Compare(a.key.index, b.key.index)
	})
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// hydrateResults loads chunk text and the owning content item.
// Chunks removed since ranking are skipped.
func (s *SearchService) hydrateResults(
	ctx context.Context, chunks []scoredChunk, query string,
) ([]domain.SearchResult, error) {
	results := make([]domain.SearchResult, 0, len(chunks))
	items := make(map[string]*domain.ContentItem)

	for _, sc := range chunks {
		chunk, err := s.chunks.GetChunk(ctx, sc.key.contentID, sc.key.index)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("get chunk %s#%d: %w", sc.key.contentID, sc.key.index, err)
		}

		item, ok := items[chunk.ContentID]
		if !ok {
			item, err = s.content.GetContent(ctx, chunk.ContentID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					continue
				}
				return nil, fmt.Errorf("get content %s: %w", chunk.ContentID, err)
			}
			items[chunk.ContentID] = item
		}

		results = append(results, domain.SearchResult{
			Item:       *item,
			Chunk:      *chunk,
			Score:      sc.score,
			Highlights: generateHighlights(chunk.Text, query),
		})
	}
	return results, nil
}

// generateHighlights returns up to three sentences containing a query term.
func generateHighlights(content, query string) []string {
	queryTerms := strings.Fields(strings.ToLower(query))
	if len(queryTerms) == 0 {
		return nil
	}

	var highlights []string
	for _, sentence := range splitSentences(content) {
		sentenceLower := strings.ToLower(sentence)
		for _, term := range queryTerms {
			if strings.Contains(sentenceLower, term) {
				highlights = append(highlights, truncateRunes(sentence, maxHighlightRunes))
				break
			}
		}
		if len(highlights) >= maxHighlights {
			break
		}
	}
	return highlights
}

// splitSentences splits content on sentence terminators and newlines.
func splitSentences(content string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range content {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func filterByKinds(results []domain.SearchResult, kinds []domain.ContentKind) []domain.SearchResult {
	filtered := make([]domain.SearchResult, 0, len(results))
	for i := range results {
		if slices.Contains(kinds, results[i].Item.Kind) {
			filtered = append(filtered, results[i])
		}
	}
	return filtered
}

func applyPagination(results []domain.SearchResult, offset, limit int) []domain.SearchResult {
	if offset >= len(results) {
		return []domain.SearchResult{}
	}
	end := min(offset+limit, len(results))
	return results[offset:end]
}
