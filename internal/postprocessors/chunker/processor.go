// Package chunker provides a fixed-size, deterministic text chunker.
package chunker

import (
	"context"
	"strings"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
)

// DefaultChunkSize is the default number of runes per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping runes.
// Zero keeps chunk boundaries stable when text is re-indexed.
const DefaultChunkOverlap = 0

var _ driven.Chunker = (*Processor)(nil)

// Processor splits page text into fixed-size chunks.
// It implements the Chunker interface.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in runes.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in runes.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// ChunkSize returns the configured window in runes.
func (p *Processor) ChunkSize() int { return p.chunkSize }

// Overlap returns the configured overlap in runes.
func (p *Processor) Overlap() int { return p.overlap }

// Chunk normalises whitespace on each page and cuts it into windows of
// chunkSize runes. Chunks without words are skipped and indexes run across
// pages without gaps. Pages are numbered from 0.
func (p *Processor) Chunk(ctx context.Context, contentID string, pages []string) ([]domain.TextChunk, error) {
	var chunks []domain.TextChunk
	step := p.chunkSize - p.overlap

	for page, text := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		runes := []rune(strings.Join(strings.Fields(text), " "))
		for start := 0; start < len(runes); start += step {
			end := min(start+p.chunkSize, len(runes))
			chunkText := string(runes[start:end])

			words := len(strings.Fields(chunkText))
			if words > 0 {
				chunks = append(chunks, domain.TextChunk{
					ContentID:  contentID,
					ChunkIndex: len(chunks),
					Page:       page,
					Text:       chunkText,
					TokenCount: words,
					TextHash:   domain.HashContent([]byte(chunkText)),
				})
			}

			if end == len(runes) {
				break
			}
		}
	}

	return chunks, nil
}
