package hashed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbeddingService_DefaultDimensions(t *testing.T) {
	svc := NewEmbeddingService(0)
	assert.Equal(t, DefaultDimensions, svc.Dimensions())
	assert.Equal(t, "hashed-bow-128", svc.ModelName())
}

func TestEmbed_Deterministic(t *testing.T) {
	svc := NewEmbeddingService(64)

	a, err := svc.Embed(context.Background(), "HbA1c 6.1% measured on 2024-01-10")
	require.NoError(t, err)
	b, err := svc.Embed(context.Background(), "HbA1c 6.1% measured on 2024-01-10")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestEmbed_CaseInsensitive(t *testing.T) {
	svc := NewEmbeddingService(32)

	a, err := svc.Embed(context.Background(), "Invoice Total")
	require.NoError(t, err)
	b, err := svc.Embed(context.Background(), "invoice   TOTAL")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestEmbed_UnitLength(t *testing.T) {
	svc := NewEmbeddingService(16)

	v, err := svc.Embed(context.Background(), "one two three two")
	require.NoError(t, err)

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestEmbed_EmptyTextIsZeroVector(t *testing.T) {
	svc := NewEmbeddingService(8)

	v, err := svc.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), v)
}

func TestEmbed_CancelledContext(t *testing.T) {
	svc := NewEmbeddingService(8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Embed(ctx, "text")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmbedBatch(t *testing.T) {
	svc := NewEmbeddingService(8)

	out, err := svc.EmbedBatch(context.Background(), []string{"a", "b", "a"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, out[0], out[2])
	assert.NoError(t, svc.Ping(context.Background()))
	assert.NoError(t, svc.Close())
}
