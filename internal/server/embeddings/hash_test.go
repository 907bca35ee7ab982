package embeddings

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestHashProvider_DeterministicAndNormalized(t *testing.T) {
	p, err := NewHashProvider(384)
	require.NoError(t, err)

	a, err := p.Embed(context.Background(), "Buy milk")
	require.NoError(t, err)
	b, err := p.Embed(context.Background(), "buy MILK!")
	require.NoError(t, err)

	assert.Len(t, a, 384)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, cosine(a, a), 1e-5)
}

func TestHashProvider_SimilarTextsAreCloser(t *testing.T) {
	p, err := NewHashProvider(384)
	require.NoError(t, err)
	ctx := context.Background()

	milk, _ := p.Embed(ctx, "Buy milk")
	groceries, _ := p.Embed(ctx, "Buy milk and bread at the grocery store")
	taxes, _ := p.Embed(ctx, "File tax return")

	assert.Greater(t, cosine(milk, groceries), cosine(milk, taxes))
}

func TestHashProvider_Errors(t *testing.T) {
	_, err := NewHashProvider(0)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	p, _ := NewHashProvider(8)
	_, err = p.Embed(context.Background(), " ,.; ")
	assert.ErrorIs(t, err, ErrEmptyInput)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Embed(ctx, "text")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(ProviderConfig{Provider: "hash", Dimension: 16})
	require.NoError(t, err)
	assert.Equal(t, 16, p.Dimension())

	p, err = NewProvider(ProviderConfig{Provider: "tei", URL: "http://localhost:1", Dimension: 16})
	require.NoError(t, err)
	assert.Equal(t, 16, p.Dimension())

	_, err = NewProvider(ProviderConfig{Provider: "tei", Dimension: 16})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewProvider(ProviderConfig{Provider: "openai"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
