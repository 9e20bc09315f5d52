// Package hashed provides an offline embedding service based on a hashed
// bag of words. It needs no model server and is fully deterministic, which
// makes it the default for the semantic indexer.
package hashed

import (
	"context"
	"crypto/sha1" //nolint:gosec // bucket hashing, not security
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// DefaultDimensions is the vector size used when none is configured.
const DefaultDimensions = 128

// EmbeddingService hashes lower-cased whitespace tokens into a fixed number
// of buckets and L2-normalises the counts.
type EmbeddingService struct {
	dimensions int
	modulus    *big.Int
}

// NewEmbeddingService creates a hashed embedding service with dimensions
// buckets. Zero or negative means DefaultDimensions.
func NewEmbeddingService(dimensions int) *EmbeddingService {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &EmbeddingService{
		dimensions: dimensions,
		modulus:    big.NewInt(int64(dimensions)),
	}
}

// Embed returns the normalised bucket counts of text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float64, s.dimensions)
	n := new(big.Int)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		sum := sha1.Sum([]byte(token)) //nolint:gosec // see import
		n.SetBytes(sum[:])
		vec[n.Mod(n, s.modulus).Int64()]++
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, s.dimensions)
	for i, v := range vec {
		if norm > 0 {
			v /= norm
		}
		out[i] = float32(v)
	}
	return out, nil
}

// EmbedBatch embeds each text in order.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := s.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns "hashed-bow-<dimensions>".
func (s *EmbeddingService) ModelName() string {
	return fmt.Sprintf("hashed-bow-%d", s.dimensions)
}

// Ping always succeeds; there is nothing to reach.
func (s *EmbeddingService) Ping(context.Context) error {
	return nil
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	return nil
}
