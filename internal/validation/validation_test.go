package validation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/catalogmatch/internal/retrieval"
)

// fakeRetriever returns canned rankings by query.
type fakeRetriever struct {
	rankings map[string][]string
	err      error
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string) (*retrieval.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	res := &retrieval.Result{Query: query}
	for _, id := range f.rankings[query] {
		res.Candidates = append(res.Candidates, &retrieval.Candidate{ProductID: id})
	}
	return res, nil
}

func TestLoadQueries_SetsTiers(t *testing.T) {
	// Given/When: loading the bundled query set
	cfg, err := LoadQueries(filepath.Join("testdata", "queries.yaml"))

	// Then: tiers are assigned by section
	require.NoError(t, err)
	require.Len(t, cfg.Tier1, 2)
	require.Len(t, cfg.Tier2, 1)
	require.Len(t, cfg.Negative, 1)
	assert.Equal(t, 1, cfg.Tier1[0].Tier)
	assert.Equal(t, 2, cfg.Tier2[0].Tier)
	assert.Equal(t, []string{"PSU-850"}, cfg.Tier1[0].Expected)
}

func TestLoadQueries_RejectsMissingExpected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tier1:\n  - id: T1\n    query: foo\n"), 0o644))

	_, err := LoadQueries(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected is empty")
}

func TestValidator_RunAll(t *testing.T) {
	// Given: one tier 1 hit at rank 1, one tier 1 miss at rank 2 and a
	// tier 2 hit at rank 3
	cfg, err := LoadQueries(filepath.Join("testdata", "queries.yaml"))
	require.NoError(t, err)
	r := &fakeRetriever{rankings: map[string][]string{
		"seasonic focus gx 850": {"PSU-850", "GPU-4080"},
		"samsung 980 pro 1tb":   {"SSD-970", "SSD-980"},
		"nvidia 4080 graphics":  {"GPU-3080", "GPU-4070", "GPU-4080"},
	}}
	v, err := NewValidator(r, 5)
	require.NoError(t, err)

	// When: running every query
	res := v.RunAll(context.Background(), cfg)

	// Then: pass counts and MRR reflect the ranks
	assert.Equal(t, 1, res.Tier1Pass)
	assert.Equal(t, 2, res.Tier1Total)
	assert.Equal(t, 1, res.Tier2Pass)
	assert.Equal(t, 1, res.NegPass)
	assert.Equal(t, 1, res.Tier1[1].MatchedAt)
	assert.Equal(t, 2, res.Tier2[0].MatchedAt)
	assert.InDelta(t, (1.0+0.5+1.0/3)/3, res.MRR, 1e-9)
	assert.True(t, res.Failed())
}

func TestValidator_TopKLimitsTier2(t *testing.T) {
	// Given: the expected product at rank 3 and k = 2
	r := &fakeRetriever{rankings: map[string][]string{"q": {"A", "B", "C"}}}
	v, err := NewValidator(r, 2)
	require.NoError(t, err)

	// When: running a tier 2 query
	tr := v.RunQuery(context.Background(), QuerySpec{ID: "T2", Query: "q", Expected: []string{"C"}, Tier: 2})

	// Then: it fails and only k results are reported
	assert.False(t, tr.Passed)
	assert.Equal(t, -1, tr.MatchedAt)
	assert.Equal(t, []string{"A", "B"}, tr.TopResults)
}

func TestValidator_RetrievalErrorFailsEveryTier(t *testing.T) {
	v, err := NewValidator(&fakeRetriever{err: errors.New("lexical index closed")}, 0)
	require.NoError(t, err)

	tr := v.RunQuery(context.Background(), QuerySpec{ID: "N", Query: "x"})

	assert.False(t, tr.Passed)
	assert.Equal(t, "lexical index closed", tr.Error)
}

func TestNewValidator_NilRetriever(t *testing.T) {
	_, err := NewValidator(nil, 5)
	assert.Error(t, err)
}
