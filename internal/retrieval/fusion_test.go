package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/catalogmatch/internal/catalog"
	"github.com/Aman-CERP/catalogmatch/internal/store"
)

func testCorpus(t *testing.T) *catalog.Corpus {
	t.Helper()
	c, err := catalog.NewCorpus([]catalog.Entry{
		{ProductID: "GPU-4080", ProductName: "NVIDIA GeForce RTX 4080", Category: "Graphics Card"},
		{ProductID: "GPU-4090", ProductName: "NVIDIA GeForce RTX 4090", Category: "Graphics Card"},
		{ProductID: "PSU-850", ProductName: "Seasonic Focus GX-850", Category: "Power Supply"},
		{ProductID: "SSD-980", ProductName: "Samsung 980 PRO 1TB", Category: "Storage"},
		{ProductID: "CPU-13700", ProductName: "Intel Core i7-13700K", Category: "Processor"},
	})
	require.NoError(t, err)
	return c
}

func vhit(t *testing.T, c *catalog.Corpus, id string, distance float64) VectorHit {
	t.Helper()
	e, ok := c.Lookup(id)
	require.True(t, ok, id)
	return VectorHit{Entry: e, Distance: distance}
}

func lhit(t *testing.T, c *catalog.Corpus, id string, score float64) store.LexicalHit {
	t.Helper()
	pos, ok := c.Position(id)
	require.True(t, ok, id)
	return store.LexicalHit{Position: pos, ProductID: id, Score: score}
}

func ids(cands []*Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.ProductID
	}
	return out
}

func TestFuse_NumericBoostRanksMatchingModelFirst(t *testing.T) {
	// Given: two GPUs identical on both signals except the model number
	c := testCorpus(t)
	vector := []VectorHit{vhit(t, c, "GPU-4090", 0.2), vhit(t, c, "GPU-4080", 0.2)}
	lexical := []store.LexicalHit{lhit(t, c, "GPU-4080", 2.0), lhit(t, c, "GPU-4090", 2.0)}

	// When: fusing for a query containing "4080"
	got := Fuse("rtx 4080 graphics card", vector, lexical, c, DefaultConfig())

	// Then: the 4080 ranks first because of the numeric boost
	require.Len(t, got, 2)
	assert.Equal(t, "GPU-4080", got[0].ProductID)
	assert.Equal(t, 1, got[0].NumericIdentityMatch)
	assert.Equal(t, 0, got[1].NumericIdentityMatch)
	assert.Greater(t, got[0].HybridScore, got[1].HybridScore)
}

func TestFuse_HybridScoreFormula(t *testing.T) {
	// Given: three vector hits, two with lexical scores
	c := testCorpus(t)
	vector := []VectorHit{
		vhit(t, c, "PSU-850", 0.1),
		vhit(t, c, "SSD-980", 0.5),
		vhit(t, c, "GPU-4080", 0.9),
	}
	lexical := []store.LexicalHit{lhit(t, c, "PSU-850", 4.0), lhit(t, c, "SSD-980", 1.0)}

	got := Fuse("seasonic focus gx 850", vector, lexical, c, DefaultConfig())
	require.Len(t, got, 3)

	// semantic 1-d: 0.9, 0.5, 0.1 -> 1, 0.5, 0
	// lexical: 4, 1, 0 -> 1, 0.25, 0
	// numeric: 850 matches the PSU only
	assert.Equal(t, []string{"PSU-850", "SSD-980", "GPU-4080"}, ids(got))
	assert.InDelta(t, 0.5*1+0.3*1+0.2*1, got[0].HybridScore, 1e-9)
	assert.InDelta(t, 0.5*0.5+0.3*0.25, got[1].HybridScore, 1e-9)
	assert.InDelta(t, 0.0, got[2].HybridScore, 1e-9)
	assert.InDelta(t, 0.25, got[1].LexicalNorm(), 1e-9)
	assert.InDelta(t, 0.5, got[1].SemanticNorm(), 1e-9)
}

func TestFuse_LexicalOnlyCandidateGetsWorstDistance(t *testing.T) {
	// Given: the vector source missed an entry the lexical ranker found
	c := testCorpus(t)
	vector := []VectorHit{vhit(t, c, "GPU-4090", 0.3)}
	lexical := []store.LexicalHit{lhit(t, c, "CPU-13700", 3.0)}

	got := Fuse("i7 13700k", vector, lexical, c, DefaultConfig())

	// Then: it still surfaces, with distance 1.0
	require.Len(t, got, 2)
	var cpu *Candidate
	for _, cand := range got {
		if cand.ProductID == "CPU-13700" {
			cpu = cand
		}
	}
	require.NotNil(t, cpu)
	assert.Equal(t, LexicalOnlyDistance, cpu.SemanticDistance)
	assert.Equal(t, 3.0, cpu.LexicalScore)
	assert.Equal(t, "Intel Core i7-13700K", cpu.ProductName)
	assert.NotEmpty(t, cpu.DocumentText)
}

func TestFuse_MergesSourcesIntoOneCandidate(t *testing.T) {
	c := testCorpus(t)
	vector := []VectorHit{vhit(t, c, "PSU-850", 0.1), vhit(t, c, "PSU-850", 0.4)}
	lexical := []store.LexicalHit{lhit(t, c, "PSU-850", 5.0)}

	got := Fuse("psu", vector, lexical, c, DefaultConfig())

	require.Len(t, got, 1)
	assert.Equal(t, 0.1, got[0].SemanticDistance)
	assert.Equal(t, 5.0, got[0].LexicalScore)
}

func TestFuse_IgnoresNonPositiveLexicalScores(t *testing.T) {
	c := testCorpus(t)
	lexical := []store.LexicalHit{lhit(t, c, "PSU-850", 0), lhit(t, c, "SSD-980", -1)}

	got := Fuse("anything", nil, lexical, c, DefaultConfig())
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestFuse_DegenerateSignalsStayInRange(t *testing.T) {
	// Given: every candidate has the same distance and the same lexical score
	c := testCorpus(t)
	vector := []VectorHit{
		vhit(t, c, "GPU-4080", 0.4),
		vhit(t, c, "GPU-4090", 0.4),
		vhit(t, c, "SSD-980", 0.4),
	}
	lexical := []store.LexicalHit{
		lhit(t, c, "GPU-4080", 7.5),
		lhit(t, c, "GPU-4090", 7.5),
		lhit(t, c, "SSD-980", 7.5),
	}

	got := Fuse("rtx 4080", vector, lexical, c, DefaultConfig())

	// Then: normalized signals are equal and within [0,1]
	require.Len(t, got, 3)
	for _, cand := range got {
		assert.GreaterOrEqual(t, cand.SemanticNorm(), 0.0)
		assert.LessOrEqual(t, cand.SemanticNorm(), 1.0)
		assert.GreaterOrEqual(t, cand.LexicalNorm(), 0.0)
		assert.LessOrEqual(t, cand.LexicalNorm(), 1.0)
		assert.Equal(t, got[0].SemanticNorm(), cand.SemanticNorm())
		assert.Equal(t, got[0].LexicalNorm(), cand.LexicalNorm())
	}

	// And: the numeric boost still differentiates
	assert.Equal(t, "GPU-4080", got[0].ProductID)
	// And: ties keep insertion order
	assert.Equal(t, []string{"GPU-4080", "GPU-4090", "SSD-980"}, ids(got))
}

func TestFuse_IsDeterministic(t *testing.T) {
	c := testCorpus(t)
	vector := []VectorHit{
		vhit(t, c, "GPU-4080", 0.3),
		vhit(t, c, "GPU-4090", 0.3),
		vhit(t, c, "PSU-850", 0.6),
	}
	lexical := []store.LexicalHit{lhit(t, c, "SSD-980", 1.0), lhit(t, c, "CPU-13700", 1.0)}

	first := Fuse("storage", vector, lexical, c, DefaultConfig())
	for i := 0; i < 20; i++ {
		again := Fuse("storage", vector, lexical, c, DefaultConfig())
		require.Equal(t, ids(first), ids(again))
		for j := range first {
			assert.Equal(t, first[j].HybridScore, again[j].HybridScore)
		}
	}
}

func TestFuse_TruncatesToTopK(t *testing.T) {
	c := testCorpus(t)
	vector := []VectorHit{
		vhit(t, c, "GPU-4080", 0.1),
		vhit(t, c, "GPU-4090", 0.2),
		vhit(t, c, "PSU-850", 0.3),
		vhit(t, c, "SSD-980", 0.4),
	}
	cfg := DefaultConfig()
	cfg.TopK = 2

	got := Fuse("x", vector, nil, c, cfg)
	assert.Equal(t, []string{"GPU-4080", "GPU-4090"}, ids(got))
}

func TestMinMax(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want []float64
	}{
		{"spread", []float64{2, 4, 6}, []float64{0, 0.5, 1}},
		{"negative values", []float64{-1, 1}, []float64{0, 1}},
		{"constant in range", []float64{0.3, 0.3}, []float64{0.3, 0.3}},
		{"constant above one", []float64{7, 7}, []float64{1, 1}},
		{"constant below zero", []float64{-0.2}, []float64{0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := minMax(tt.in)
			require.Len(t, got, len(tt.want))
			for i := range got {
				assert.InDelta(t, tt.want[i], got[i], 1e-9)
			}
		})
	}
}

func TestDigitSet(t *testing.T) {
	assert.True(t, intersects(digitSet("rtx 4080"), digitSet("NVIDIA GeForce RTX 4080")))
	assert.False(t, intersects(digitSet("rtx 4080"), digitSet("NVIDIA GeForce RTX 4090")))
	assert.True(t, intersects(digitSet("ＲＴＸ４０８０"), digitSet("RTX 4080")))
	assert.False(t, intersects(digitSet("no digits"), digitSet("RTX 4080")))
	// "GX-850" yields "850"; "i7-13700K" yields "7" and "13700"
	assert.True(t, intersects(digitSet("13700"), digitSet("Intel Core i7-13700K")))
}
