package matcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/catalogmatch/internal/catalog"
	"github.com/Aman-CERP/catalogmatch/internal/embed"
	cmerrors "github.com/Aman-CERP/catalogmatch/internal/errors"
	"github.com/Aman-CERP/catalogmatch/internal/llm"
	"github.com/Aman-CERP/catalogmatch/internal/llm/mock"
	"github.com/Aman-CERP/catalogmatch/internal/normalize"
	"github.com/Aman-CERP/catalogmatch/internal/retrieval"
	"github.com/Aman-CERP/catalogmatch/internal/selection"
	"github.com/Aman-CERP/catalogmatch/internal/store"
)

// newEngine builds a real retrieval stack over a small hardware catalog
// with static embeddings and the Bleve ranker.
func newEngine(t *testing.T) *retrieval.Engine {
	t.Helper()
	ctx := context.Background()

	corpus, err := catalog.NewCorpus([]catalog.Entry{
		{ProductID: "GPU-4080", ProductName: "NVIDIA GeForce RTX 4080", Category: "Graphics Card", Brand: "NVIDIA"},
		{ProductID: "GPU-4090", ProductName: "NVIDIA GeForce RTX 4090", Category: "Graphics Card", Brand: "NVIDIA"},
		{ProductID: "PSU-850", ProductName: "Seasonic Focus GX-850", Description: "850W 80+ Gold modular power supply", Category: "Power Supply", Brand: "Seasonic"},
		{ProductID: "SSD-980", ProductName: "Samsung 980 PRO 1TB", Category: "Storage", Brand: "Samsung"},
		{ProductID: "CPU-13700", ProductName: "Intel Core i7-13700K", Category: "Processor", Brand: "Intel"},
	})
	require.NoError(t, err)

	embedder := embed.NewStaticEmbedder()
	vectors, err := store.NewHNSWStore(store.DefaultHNSWConfig(embedder.Dimensions()))
	require.NoError(t, err)
	docs, err := embedder.EmbedBatch(ctx, corpus.Documents())
	require.NoError(t, err)
	ids := make([]string, corpus.Len())
	for i := range ids {
		ids[i] = corpus.At(i).ProductID
	}
	require.NoError(t, vectors.Add(ctx, ids, docs))

	index, err := retrieval.NewHNSWIndex(corpus, vectors, embedder)
	require.NoError(t, err)
	lexical, err := store.NewLexicalRanker(ctx, corpus, "bleve")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = lexical.Close()
		_ = vectors.Close()
	})

	engine, err := retrieval.NewEngine(corpus, index, lexical, retrieval.DefaultConfig())
	require.NoError(t, err)
	return engine
}

func newOrchestrator(t *testing.T, normalized string, selector llm.LanguageModel, opts ...Option) *Orchestrator {
	t.Helper()
	n, err := normalize.New(mock.New(normalized))
	require.NoError(t, err)
	o, err := New(n, newEngine(t), selector, opts...)
	require.NoError(t, err)
	return o
}

const seasonicDecision = `[
  {"input_query": "Seasonic Focus GX-850 power supply", "selected_product_id": "PSU-850",
   "selected_product_name": "Seasonic Focus GX-850", "confidence": "high", "reason": "exact model and wattage"}
]`

func TestRunFile_SeasonicEndToEnd(t *testing.T) {
	// Given: an input file, a normalizer yielding one query and a selector
	// choosing the Seasonic PSU
	dir := t.TempDir()
	in := filepath.Join(dir, "input.txt")
	out := filepath.Join(dir, "output.txt")
	sidecar := filepath.Join(dir, "candidates.json")
	require.NoError(t, os.WriteFile(in, []byte("  need a seasonic gx 850 psu \n"), 0o644))

	selector := mock.New(seasonicDecision)
	o := newOrchestrator(t, "Seasonic Focus GX-850 power supply", selector)

	// When: running the batch
	report, err := o.RunFile(context.Background(), in, out, FileOptions{CandidatesPath: sidecar})

	// Then: the PSU ranks first and is the selection
	require.NoError(t, err)
	require.Len(t, report.Batch, 1)
	assert.Equal(t, "PSU-850", report.Batch[0].Candidates[0].ProductID)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 1, report.Matched())

	// And: the output is an indented JSON array of one decision
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  {\n    \"input_query\"")
	var decisions []selection.Decision
	require.NoError(t, json.Unmarshal(data, &decisions))
	require.Len(t, decisions, 1)
	assert.Equal(t, "PSU-850", *decisions[0].SelectedProductID)

	// And: the sidecar holds the candidate batch
	data, err = os.ReadFile(sidecar)
	require.NoError(t, err)
	var batch []selection.BatchItem
	require.NoError(t, json.Unmarshal(data, &batch))
	assert.Equal(t, "Seasonic Focus GX-850 power supply", batch[0].Query)

	// And: the selection prompt carried the candidate
	require.Equal(t, 1, selector.CallCount())
	assert.Contains(t, selector.Calls()[0].Prompt, "- Product ID: PSU-850")
}

func TestRunFile_UnsupportedQueryWritesNullLowDecision(t *testing.T) {
	// Given: a query nothing in the catalog supports and a selector that
	// declines every candidate
	dir := t.TempDir()
	in := filepath.Join(dir, "input.txt")
	out := filepath.Join(dir, "output.txt")
	require.NoError(t, os.WriteFile(in, []byte("we also need an unobtainium flux capacitor"), 0o644))

	selector := mock.New(`[
  {"input_query": "Unobtainium flux capacitor", "selected_product_id": null,
   "selected_product_name": null, "confidence": "low", "reason": "no candidate is a flux capacitor"}
]`)
	o := newOrchestrator(t, "Unobtainium flux capacitor", selector)

	// When: running the batch
	report, err := o.RunFile(context.Background(), in, out, FileOptions{})

	// Then: the run succeeds with nothing matched
	require.NoError(t, err)
	assert.Equal(t, 0, report.Matched())

	// And: the file holds explicit nulls with low confidence
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"selected_product_id": null`)
	assert.Contains(t, string(data), `"selected_product_name": null`)
	var decisions []selection.Decision
	require.NoError(t, json.Unmarshal(data, &decisions))
	require.Len(t, decisions, 1)
	assert.Equal(t, "Unobtainium flux capacitor", decisions[0].InputQuery)
	assert.Nil(t, decisions[0].SelectedProductID)
	assert.Nil(t, decisions[0].SelectedProductName)
	assert.Equal(t, selection.ConfidenceLow, decisions[0].Confidence)
}

func TestRunFile_ContractViolationWritesNothing(t *testing.T) {
	// Given: three normalized queries and a selector answering only two
	dir := t.TempDir()
	in := filepath.Join(dir, "input.txt")
	out := filepath.Join(dir, "output.txt")
	sidecar := filepath.Join(dir, "candidates.json")
	require.NoError(t, os.WriteFile(in, []byte("psu, 4080, ssd"), 0o644))

	selector := mock.New(`[
  {"input_query": "a", "selected_product_id": null, "selected_product_name": null, "confidence": "low", "reason": "r"},
  {"input_query": "b", "selected_product_id": null, "selected_product_name": null, "confidence": "low", "reason": "r"}
]`)
	o := newOrchestrator(t,
		"Seasonic Focus GX-850 power supply\nNVIDIA GeForce RTX 4080\nSamsung 980 PRO 1TB", selector)

	// When: running the batch
	_, err := o.RunFile(context.Background(), in, out, FileOptions{CandidatesPath: sidecar})

	// Then: the run fails with a contract violation and no file exists
	require.Error(t, err)
	assert.True(t, cmerrors.IsContractViolation(err))
	assert.True(t, cmerrors.IsFatal(err))
	assert.NoFileExists(t, out)
	assert.NoFileExists(t, sidecar)
}

func TestRun_DecisionsFollowQueryOrder(t *testing.T) {
	// Given: three queries whose retrievals finish in reverse order
	retriever := &slowRetriever{delays: map[string]time.Duration{
		"first": 30 * time.Millisecond, "second": 15 * time.Millisecond, "third": 0,
	}}
	selector := llm.Func(func(_ context.Context, prompt string) (string, error) {
		return decisionsFor("first", "second", "third"), nil
	})
	n, err := normalize.New(mock.New("first\nsecond\nthird"))
	require.NoError(t, err)
	o, err := New(n, retriever, selector, WithParallelism(3))
	require.NoError(t, err)

	// When: running
	report, err := o.Run(context.Background(), "raw")

	// Then: the batch keeps normalization order
	require.NoError(t, err)
	require.Len(t, report.Batch, 3)
	for i, q := range []string{"first", "second", "third"} {
		assert.Equal(t, q, report.Batch[i].Query)
		assert.Equal(t, q, report.Decisions[i].InputQuery)
	}
	assert.Equal(t, []string{"first", "second", "third"}, report.Queries)
}

func TestRun_TagsSelectionCallWithRunID(t *testing.T) {
	var purpose, traceID string
	selector := llm.Func(func(ctx context.Context, _ string) (string, error) {
		purpose = llm.PurposeFrom(ctx)
		traceID = llm.TraceIDFrom(ctx)
		return seasonicDecision, nil
	})
	o := newOrchestrator(t, "Seasonic Focus GX-850 power supply", selector)

	report, err := o.Run(context.Background(), "gx 850")

	require.NoError(t, err)
	assert.Equal(t, llm.PurposeSelection, purpose)
	assert.Equal(t, report.RunID, traceID)
}

func TestRun_DegradedQueryStillAnswers(t *testing.T) {
	// Given: a vector source that is down
	engine := newEngine(t)
	broken, err := retrieval.NewEngine(engine.Corpus(), failingVectorIndex{}, mustLexical(t, engine.Corpus()), retrieval.DefaultConfig())
	require.NoError(t, err)
	n, err := normalize.New(mock.New("Seasonic Focus GX-850 power supply"))
	require.NoError(t, err)
	o, err := New(n, broken, mock.New(seasonicDecision))
	require.NoError(t, err)

	// When: running
	report, err := o.Run(context.Background(), "gx 850")

	// Then: the query is answered from lexical candidates and flagged
	require.NoError(t, err)
	assert.Equal(t, 1, report.Degraded())
	assert.Equal(t, "PSU-850", report.Batch[0].Candidates[0].ProductID)
	assert.Equal(t, retrieval.LexicalOnlyDistance, report.Batch[0].Candidates[0].Distance)
}

func TestRun_FailuresAreFatal(t *testing.T) {
	tests := []struct {
		name     string
		selector llm.LanguageModel
		strict   bool
		check    func(error) bool
	}{
		{"model error", mock.New().Then("", errors.New("connection refused")), false,
			func(err error) bool { return cmerrors.GetCode(err) == cmerrors.ErrCodeNetworkUnavailable }},
		{"prose response", mock.New("PSU-850 looks right"), false, cmerrors.IsParseFailure},
		{"foreign product with strict membership", mock.New(`[{"input_query":"Seasonic Focus GX-850 power supply","selected_product_id":"PSU-999",
			"selected_product_name":"Made Up","confidence":"high","reason":"r"}]`), true, cmerrors.IsContractViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrchestrator(t, "Seasonic Focus GX-850 power supply", tt.selector, WithStrictMembership(tt.strict))
			_, err := o.Run(context.Background(), "gx 850")
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
		})
	}
}

func TestRun_NormalizationFailureSkipsSelection(t *testing.T) {
	selector := mock.New(seasonicDecision)
	o := newOrchestrator(t, "\n\n", selector)

	_, err := o.Run(context.Background(), "something")

	require.Error(t, err)
	assert.True(t, cmerrors.IsNormalizationFailure(err))
	assert.Equal(t, 0, selector.CallCount())
}

func TestRun_CancellationAbortsRun(t *testing.T) {
	// Given: a retrieval that blocks until cancelled
	retriever := &slowRetriever{delays: map[string]time.Duration{"q": time.Minute}}
	selector := mock.New(decisionsFor("q"))
	n, err := normalize.New(mock.New("q"))
	require.NoError(t, err)
	o, err := New(n, retriever, selector)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// When: running past the deadline
	_, err = o.Run(ctx, "raw")

	// Then: the context error surfaces and selection never runs
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, selector.CallCount())
}

func TestNew_NilDependency(t *testing.T) {
	_, err := New(nil, &slowRetriever{}, mock.New())
	assert.ErrorIs(t, err, cmerrors.ErrNilDependency)
}

func TestWriteJSON_ReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "output.txt")
	require.NoError(t, WriteJSON(path, []int{1}))
	require.NoError(t, WriteJSON(path, []int{1, 2}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[\n  1,\n  2\n]\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

// slowRetriever answers each query with no candidates after a delay.
type slowRetriever struct {
	mu     sync.Mutex
	delays map[string]time.Duration
}

func (s *slowRetriever) Retrieve(ctx context.Context, query string) (*retrieval.Result, error) {
	s.mu.Lock()
	d := s.delays[query]
	s.mu.Unlock()

	select {
	case <-time.After(d):
		return &retrieval.Result{Query: query}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type failingVectorIndex struct{}

func (failingVectorIndex) Retrieve(context.Context, string, int) ([]retrieval.VectorHit, error) {
	return nil, cmerrors.RetrievalUnavailable("vector store offline", nil)
}

func mustLexical(t *testing.T, corpus *catalog.Corpus) store.LexicalRanker {
	t.Helper()
	r, err := store.NewLexicalRanker(context.Background(), corpus, "sqlite")
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func decisionsFor(queries ...string) string {
	out := make([]map[string]any, len(queries))
	for i, q := range queries {
		out[i] = map[string]any{
			"input_query":           q,
			"selected_product_id":   nil,
			"selected_product_name": nil,
			"confidence":            "low",
			"reason":                fmt.Sprintf("no candidates for query %d", i+1),
		}
	}
	data, _ := json.Marshal(out)
	return string(data)
}
