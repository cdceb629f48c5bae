package retrieval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/catalogmatch/internal/catalog"
	"github.com/Aman-CERP/catalogmatch/internal/embed"
	cmerrors "github.com/Aman-CERP/catalogmatch/internal/errors"
	"github.com/Aman-CERP/catalogmatch/internal/store"
)

// fakeVectorIndex returns scripted hits or an error.
type fakeVectorIndex struct {
	hits  []VectorHit
	err   error
	delay time.Duration

	mu     sync.Mutex
	limits []int
}

func (f *fakeVectorIndex) Retrieve(ctx context.Context, _ string, limit int) ([]VectorHit, error) {
	f.mu.Lock()
	f.limits = append(f.limits, limit)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.hits, f.err
}

// recordingTracer collects events.
type recordingTracer struct {
	mu       sync.Mutex
	recalled []string
	matched  []string
	scored   []CandidateTrace
	degraded []error
}

func (r *recordingTracer) VectorRecalled(_, id string, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recalled = append(r.recalled, id)
}

func (r *recordingTracer) LexicalMatched(_, id string, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matched = append(r.matched, id)
}

func (r *recordingTracer) CandidateScored(_ string, tr CandidateTrace) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scored = append(r.scored, tr)
}

func (r *recordingTracer) QueryDegraded(_ string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.degraded = append(r.degraded, err)
}

func newTestEngine(t *testing.T, c *catalog.Corpus, vector VectorIndex, opts ...EngineOption) *Engine {
	t.Helper()
	lexical, err := store.NewLexicalRanker(context.Background(), c, "bleve")
	require.NoError(t, err)
	t.Cleanup(func() { _ = lexical.Close() })

	e, err := NewEngine(c, vector, lexical, DefaultConfig(), opts...)
	require.NoError(t, err)
	return e
}

func TestEngine_Retrieve_FusesBothSources(t *testing.T) {
	// Given: a vector source that prefers the 4090 and a real lexical ranker
	c := testCorpus(t)
	vector := &fakeVectorIndex{hits: []VectorHit{
		vhit(t, c, "GPU-4090", 0.20),
		vhit(t, c, "GPU-4080", 0.22),
		vhit(t, c, "SSD-980", 0.80),
	}}
	tracer := &recordingTracer{}
	e := newTestEngine(t, c, vector, WithTracer(tracer))

	// When: retrieving "RTX 4080"
	res, err := e.Retrieve(context.Background(), "RTX 4080")
	require.NoError(t, err)

	// Then: the 4080 wins on lexical and numeric signals
	require.NotEmpty(t, res.Candidates)
	assert.Equal(t, "GPU-4080", res.Candidates[0].ProductID)
	assert.False(t, res.Degraded())
	assert.Equal(t, "RTX 4080", res.Query)

	// And: the vector source was asked for the recall size
	assert.Equal(t, []int{DefaultRecallSize}, vector.limits)

	// And: the tracer saw every stage
	assert.Len(t, tracer.recalled, 3)
	assert.NotEmpty(t, tracer.matched)
	require.Len(t, tracer.scored, len(res.Candidates))
	assert.Equal(t, 1, tracer.scored[0].Rank)
	assert.Empty(t, tracer.degraded)
}

func TestEngine_Retrieve_DegradesToLexicalOnly(t *testing.T) {
	// Given: an unreachable vector source
	c := testCorpus(t)
	tracer := &recordingTracer{}
	e := newTestEngine(t, c, &fakeVectorIndex{err: errors.New("connection refused")}, WithTracer(tracer))

	// When: retrieving
	res, err := e.Retrieve(context.Background(), "seasonic focus gx 850")

	// Then: the query still gets lexical candidates
	require.NoError(t, err)
	require.NotEmpty(t, res.Candidates)
	assert.Equal(t, "PSU-850", res.Candidates[0].ProductID)
	assert.Equal(t, LexicalOnlyDistance, res.Candidates[0].SemanticDistance)

	// And: the failure is a RetrievalUnavailable
	assert.True(t, res.Degraded())
	assert.True(t, cmerrors.IsRetrievalUnavailable(res.VectorErr))
	assert.Len(t, tracer.degraded, 1)
}

func TestEngine_Retrieve_VectorTimeoutDegrades(t *testing.T) {
	c := testCorpus(t)
	lexical, err := store.NewLexicalRanker(context.Background(), c, "sqlite")
	require.NoError(t, err)
	defer func() { _ = lexical.Close() }()

	cfg := DefaultConfig()
	cfg.VectorTimeout = 10 * time.Millisecond
	e, err := NewEngine(c, &fakeVectorIndex{delay: time.Second}, lexical, cfg)
	require.NoError(t, err)

	res, err := e.Retrieve(context.Background(), "samsung")
	require.NoError(t, err)
	assert.True(t, res.Degraded())
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "SSD-980", res.Candidates[0].ProductID)
}

func TestEngine_Retrieve_NoCandidates(t *testing.T) {
	c := testCorpus(t)
	e := newTestEngine(t, c, &fakeVectorIndex{})

	res, err := e.Retrieve(context.Background(), "mechanical keyboard")
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.NotNil(t, res.Candidates)
}

func TestEngine_Retrieve_DropsHitsOutsideCorpus(t *testing.T) {
	c := testCorpus(t)
	stale := VectorHit{Entry: catalog.Entry{ProductID: "GONE"}, Distance: 0.01}
	e := newTestEngine(t, c, &fakeVectorIndex{hits: []VectorHit{stale, vhit(t, c, "SSD-980", 0.3)}})

	res, err := e.Retrieve(context.Background(), "zzz")
	require.NoError(t, err)
	assert.Equal(t, []string{"SSD-980"}, ids(res.Candidates))
}

func TestEngine_Retrieve_Cancelled(t *testing.T) {
	c := testCorpus(t)
	e := newTestEngine(t, c, &fakeVectorIndex{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Retrieve(ctx, "rtx")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewEngine_RequiresDependencies(t *testing.T) {
	c := testCorpus(t)
	lexical, err := store.NewLexicalRanker(context.Background(), c, "")
	require.NoError(t, err)
	defer func() { _ = lexical.Close() }()

	_, err = NewEngine(nil, &fakeVectorIndex{}, lexical, Config{})
	assert.ErrorIs(t, err, cmerrors.ErrNilDependency)
	_, err = NewEngine(c, nil, lexical, Config{})
	assert.ErrorIs(t, err, cmerrors.ErrNilDependency)
	_, err = NewEngine(c, &fakeVectorIndex{}, nil, Config{})
	assert.ErrorIs(t, err, cmerrors.ErrNilDependency)

	// Zero config takes defaults
	e, err := NewEngine(c, &fakeVectorIndex{}, lexical, Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultRecallSize, e.Config().RecallSize)
	assert.Equal(t, DefaultTopK, e.Config().TopK)
	assert.Equal(t, DefaultWeights(), e.Config().Weights)
}

func TestLogTracer_WatchList(t *testing.T) {
	tr := NewLogTracer(nil, "PSU-850")
	assert.True(t, tr.watching("PSU-850"))
	assert.False(t, tr.watching("SSD-980"))

	all := NewLogTracer(nil)
	assert.True(t, all.watching("anything"))
}

func TestHNSWIndex_Retrieve(t *testing.T) {
	// Given: every corpus entry embedded into an HNSW store
	ctx := context.Background()
	c := testCorpus(t)
	embedder := embed.NewStaticEmbedder()

	vectors, err := store.NewHNSWStore(store.DefaultHNSWConfig(embedder.Dimensions()))
	require.NoError(t, err)
	defer func() { _ = vectors.Close() }()

	docs := c.Documents()
	vecs, err := embedder.EmbedBatch(ctx, docs)
	require.NoError(t, err)
	idList := make([]string, c.Len())
	for i := range idList {
		idList[i] = c.At(i).ProductID
	}
	require.NoError(t, vectors.Add(ctx, idList, vecs))

	index, err := NewHNSWIndex(c, vectors, embedder)
	require.NoError(t, err)

	// When: querying with an entry's own document text
	hits, err := index.Retrieve(ctx, docs[2], 3)
	require.NoError(t, err)

	// Then: that entry is the nearest hit
	require.NotEmpty(t, hits)
	assert.Equal(t, "PSU-850", hits[0].Entry.ProductID)
	assert.InDelta(t, 0, hits[0].Distance, 1e-4)
	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i-1].Distance, hits[i].Distance)
	}
}

func TestHNSWIndex_FailuresAreRetrievalUnavailable(t *testing.T) {
	c := testCorpus(t)
	embedder := embed.NewStaticEmbedder()
	vectors, err := store.NewHNSWStore(store.DefaultHNSWConfig(embedder.Dimensions()))
	require.NoError(t, err)

	index, err := NewHNSWIndex(c, vectors, embedder)
	require.NoError(t, err)

	require.NoError(t, embedder.Close())
	_, err = index.Retrieve(context.Background(), "rtx", 5)
	assert.True(t, cmerrors.IsRetrievalUnavailable(err))
}

func TestHNSWIndex_CancelledCallersKeepCircuitClosed(t *testing.T) {
	// Given: a populated index shared by every query
	ctx := context.Background()
	c := testCorpus(t)
	embedder := embed.NewStaticEmbedder()
	vectors, err := store.NewHNSWStore(store.DefaultHNSWConfig(embedder.Dimensions()))
	require.NoError(t, err)
	defer func() { _ = vectors.Close() }()
	vecs, err := embedder.EmbedBatch(ctx, c.Documents())
	require.NoError(t, err)
	idList := make([]string, c.Len())
	for i := range idList {
		idList[i] = c.At(i).ProductID
	}
	require.NoError(t, vectors.Add(ctx, idList, vecs))
	index, err := NewHNSWIndex(c, vectors, embedder)
	require.NoError(t, err)

	// When: more callers than the failure threshold cancel mid-query
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	for i := 0; i < 10; i++ {
		_, _ = index.Retrieve(cancelled, "rtx 4080", 3)
	}

	// Then: a live caller still gets vector hits
	hits, err := index.Retrieve(ctx, "rtx 4080", 3)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestNewHNSWIndex_DimensionMismatch(t *testing.T) {
	c := testCorpus(t)
	vectors, err := store.NewHNSWStore(store.DefaultHNSWConfig(8))
	require.NoError(t, err)

	_, err = NewHNSWIndex(c, vectors, embed.NewStaticEmbedder())
	require.Error(t, err)
	assert.Equal(t, cmerrors.ErrCodeDimensionMismatch, cmerrors.GetCode(err))
}
