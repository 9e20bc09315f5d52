package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
	"github.com/custodia-labs/jarvis/internal/core/ports/driving"
)

// Ensure Indexer implements the interface.
var _ driving.SemanticIndexer = (*Indexer)(nil)

// Indexer turns registered content into chunks and embeddings, then hands
// the content to entity extraction.
type Indexer struct {
	content   driven.ContentStore
	chunks    driven.ChunkStore
	extractor driven.TextExtractor
	chunker   driven.Chunker
	embedder  driven.EmbeddingService
	queue     driving.TaskQueue
	backend   string
	batchSize int
	logger    *slog.Logger
}

// IndexerDeps groups the collaborators of an Indexer.
type IndexerDeps struct {
	Content   driven.ContentStore
	Chunks    driven.ChunkStore
	Extractor driven.TextExtractor
	Chunker   driven.Chunker
	Embedder  driven.EmbeddingService
	Queue     driving.TaskQueue

	// Backend is the extraction backend recorded on follow-on tasks.
	Backend string

	// BatchSize bounds the texts per EmbedBatch call. Zero means all.
	BatchSize int

	Logger *slog.Logger
}

// NewIndexer creates a semantic indexer.
func NewIndexer(deps IndexerDeps) *Indexer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		content:   deps.Content,
		chunks:    deps.Chunks,
		extractor: deps.Extractor,
		chunker:   deps.Chunker,
		embedder:  deps.Embedder,
		queue:     deps.Queue,
		backend:   deps.Backend,
		batchSize: deps.BatchSize,
		logger:    logger.With("component", "indexer"),
	}
}

// Handle runs a semantic_index task.
func (x *Indexer) Handle(ctx context.Context, task *domain.Task) error {
	chunks, err := x.Index(ctx, task.ContentID)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	_, err = x.queue.Enqueue(ctx, domain.TaskEntityExtract, task.ContentID,
		map[string]string{domain.PayloadBackend: x.backend})
	return err
}

// Index chunks and embeds contentID. Content without extractable text yields
// zero chunks and no error.
func (x *Indexer) Index(ctx context.Context, contentID string) ([]domain.TextChunk, error) {
	if x.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	item, err := x.content.GetContent(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("load content: %w", err)
	}
	raw, err := x.content.GetRaw(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("load raw bytes: %w", err)
	}

	result, err := x.extractor.ExtractText(ctx, item, raw)
	if errors.Is(err, domain.ErrUnsupportedType) {
		x.logger.Info("no text extractor", "content_id", contentID, "mime_type", item.MIMEType)
		return nil, nil
	}
	if errors.Is(err, domain.ErrUnextractable) {
		x.logger.Warn("content could not be decoded", "content_id", contentID,
			"mime_type", item.MIMEType, "error", err)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	if strings.TrimSpace(result.Text()) == "" {
		x.logger.Info("no text extracted", "content_id", contentID)
		return nil, nil
	}

	chunks, err := x.chunker.Chunk(ctx, contentID, result.Pages)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", x.chunker.Name(), err)
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	vectors, err := x.embed(ctx, chunks)
	if err != nil {
		return nil, err
	}

	filename := item.Provenance.Filename
	if filename == "" && item.Provenance.Path != "" {
		filename = filepath.Base(item.Provenance.Path)
	}
	now := time.Now().UTC()
	embeddings := make([]domain.Embedding, len(chunks))
	for i, c := range chunks {
		embeddings[i] = domain.Embedding{
			ContentID:  contentID,
			ChunkIndex: c.ChunkIndex,
			Model:      x.embedder.ModelName(),
			Dimensions: len(vectors[i]),
			Vector:     vectors[i],
			Filename:   filename,
			CreatedAt:  now,
		}
	}

	if err := x.chunks.ReplaceChunks(ctx, contentID, chunks, embeddings); err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}
	x.logger.Info("content indexed", "content_id", contentID, "chunks", len(chunks),
		"model", x.embedder.ModelName())
	return chunks, nil
}

func (x *Indexer) embed(ctx context.Context, chunks []domain.TextChunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	size := x.batchSize
	if size <= 0 {
		size = len(texts)
	}
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		batch, err := x.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed chunks: %w", err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("embed chunks: got %d vectors for %d texts", len(batch), end-start)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}
