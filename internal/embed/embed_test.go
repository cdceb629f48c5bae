package embed

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/catalogmatch/internal/config"
)

func TestStaticEmbedder_Embed_ReturnsNormalizedVector(t *testing.T) {
	// Given: static embedder
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	// When: I embed a product name
	embedding, err := embedder.Embed(context.Background(), "NVIDIA GeForce RTX 4080")

	// Then: a unit-length 256-dimension vector is returned
	require.NoError(t, err)
	assert.Len(t, embedding, StaticDimensions)
	assert.InDelta(t, 1.0, vectorMagnitude(embedding), 0.001)
}

func TestStaticEmbedder_Embed_IsDeterministic(t *testing.T) {
	embedder := NewStaticEmbedder()

	a, err := embedder.Embed(context.Background(), "Seasonic Focus GX-850")
	require.NoError(t, err)
	b, err := embedder.Embed(context.Background(), "Seasonic Focus GX-850")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestStaticEmbedder_Embed_FoldsWidthAndCase(t *testing.T) {
	embedder := NewStaticEmbedder()

	a, err := embedder.Embed(context.Background(), "RTX 4080")
	require.NoError(t, err)
	b, err := embedder.Embed(context.Background(), "ｒｔｘ　４０８０")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestStaticEmbedder_Embed_SimilarTextsCloser(t *testing.T) {
	// Given: a query and two products, one sharing its model number
	embedder := NewStaticEmbedder()
	ctx := context.Background()

	query, _ := embedder.Embed(ctx, "rtx 4080 graphics card")
	near, _ := embedder.Embed(ctx, "NVIDIA GeForce RTX 4080 graphics card")
	far, _ := embedder.Embed(ctx, "Samsung 980 PRO NVMe SSD")

	// Then: the matching product is more similar
	assert.Greater(t, cosineSimilarity(query, near), cosineSimilarity(query, far))
}

func TestStaticEmbedder_Embed_EmptyIsZeroVector(t *testing.T) {
	embedder := NewStaticEmbedder()

	embedding, err := embedder.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Len(t, embedding, StaticDimensions)
	assert.Equal(t, 0.0, vectorMagnitude(embedding))
}

func TestStaticEmbedder_EmbedBatch_PreservesOrder(t *testing.T) {
	embedder := NewStaticEmbedder()
	ctx := context.Background()
	texts := []string{"ddr5 memory", "atx case", "ddr5 memory"}

	batch, err := embedder.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	for i, text := range texts {
		single, err := embedder.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}
}

func TestStaticEmbedder_Closed(t *testing.T) {
	embedder := NewStaticEmbedder()
	require.NoError(t, embedder.Close())

	_, err := embedder.Embed(context.Background(), "x")
	assert.Error(t, err)
}

// countingEmbedder counts inner calls.
type countingEmbedder struct {
	StaticEmbedder
	calls int
	texts int
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	c.texts++
	if c.err != nil {
		return nil, c.err
	}
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	c.texts += len(texts)
	if c.err != nil {
		return nil, c.err
	}
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_Embed_CachesResult(t *testing.T) {
	// Given: a cached embedder over a counting inner embedder
	inner := &countingEmbedder{}
	cached := NewCachedEmbedder(inner, 10)

	// When: the same text is embedded twice
	a, err := cached.Embed(context.Background(), "rtx 4080")
	require.NoError(t, err)
	b, err := cached.Embed(context.Background(), "rtx 4080")
	require.NoError(t, err)

	// Then: the inner embedder is called once
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, a, b)
}

func TestCachedEmbedder_EmbedBatch_OnlyEmbedsMisses(t *testing.T) {
	inner := &countingEmbedder{}
	cached := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "b")
	require.NoError(t, err)

	vecs, err := cached.EmbedBatch(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	// One single call plus one batch of the two misses
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 3, inner.texts)

	direct, _ := inner.StaticEmbedder.Embed(ctx, "c")
	assert.Equal(t, direct, vecs[2])
}

func TestCachedEmbedder_ErrorNotCached(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("down")}
	cached := NewCachedEmbedder(inner, 10)

	_, err := cached.Embed(context.Background(), "x")
	require.Error(t, err)

	inner.err = nil
	_, err = cached.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestNewEmbedder_Static(t *testing.T) {
	cfg := config.NewConfig().Embeddings

	e, err := NewEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, "static", e.ModelName())
	assert.Equal(t, StaticDimensions, e.Dimensions())
	_, isCached := e.(*CachedEmbedder)
	assert.True(t, isCached)
}

func TestNewEmbedder_CacheDisabled(t *testing.T) {
	cfg := config.NewConfig().Embeddings
	cfg.CacheSize = -1

	e, err := NewEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	_, isStatic := e.(*StaticEmbedder)
	assert.True(t, isStatic)
}

func TestNewEmbedder_Errors(t *testing.T) {
	cfg := config.NewConfig().Embeddings
	cfg.Provider = "word2vec"
	_, err := NewEmbedder(context.Background(), cfg)
	assert.Error(t, err)

	cfg = config.NewConfig().Embeddings
	cfg.Dimensions = 768
	_, err = NewEmbedder(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "768")
}

func vectorMagnitude(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
