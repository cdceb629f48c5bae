// Package validation measures retrieval quality against a golden query set.
//
// Query sets are data-driven YAML files, so a catalog owner can grow them
// without rebuilding:
//
//	tier1:     # exact requests; the expected product must rank first
//	  - id: T1-PSU
//	    query: seasonic focus gx 850
//	    expected: [PSU-850]
//	tier2:     # fuzzy requests; an expected product must be in the top k
//	  - id: T2-GPU
//	    query: nvidia 4080 graphics
//	    expected: [GPU-4080, GPU-4080S]
//	negative:  # items absent from the catalog; retrieval must not fail
//	  - id: N-FLUX
//	    query: flux capacitor
package validation

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/catalogmatch/internal/retrieval"
)

// DefaultTopK is how deep Tier 2 queries may match.
const DefaultTopK = 5

// QuerySpec defines a test query with expected results.
type QuerySpec struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name,omitempty"`
	Query    string   `yaml:"query" json:"query"`
	Expected []string `yaml:"expected" json:"expected,omitempty"` // product IDs
	Notes    string   `yaml:"notes" json:"notes,omitempty"`
	Tier     int      `yaml:"-" json:"tier"` // 1, 2, or 0 for negative
}

// QueryConfig holds all validation queries loaded from YAML.
type QueryConfig struct {
	Tier1    []QuerySpec `yaml:"tier1"`
	Tier2    []QuerySpec `yaml:"tier2"`
	Negative []QuerySpec `yaml:"negative"`
}

// LoadQueries reads a query set and checks that every positive query
// names at least one expected product.
func LoadQueries(path string) (*QueryConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read queries file %s: %w", path, err)
	}

	var cfg QueryConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse queries YAML: %w", err)
	}

	for i := range cfg.Tier1 {
		cfg.Tier1[i].Tier = 1
	}
	for i := range cfg.Tier2 {
		cfg.Tier2[i].Tier = 2
	}
	for _, spec := range append(append([]QuerySpec{}, cfg.Tier1...), cfg.Tier2...) {
		if spec.Query == "" {
			return nil, fmt.Errorf("query %s: query is empty", spec.ID)
		}
		if len(spec.Expected) == 0 {
			return nil, fmt.Errorf("query %s: expected is empty", spec.ID)
		}
	}
	return &cfg, nil
}

// Retriever returns fused candidates for one query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (*retrieval.Result, error)
}

// TestResult captures the outcome of a single query test.
type TestResult struct {
	Spec       QuerySpec     `json:"spec"`
	Passed     bool          `json:"passed"`
	Duration   time.Duration `json:"duration_ns"`
	TopResults []string      `json:"top_results"`
	MatchedAt  int           `json:"matched_at"` // 0-based rank of the first expected product, -1 if absent
	Degraded   bool          `json:"degraded,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// ValidationResult captures results of a full validation run.
type ValidationResult struct {
	Timestamp  time.Time    `json:"timestamp"`
	TopK       int          `json:"top_k"`
	Tier1      []TestResult `json:"tier1"`
	Tier2      []TestResult `json:"tier2"`
	Negative   []TestResult `json:"negative"`
	Tier1Pass  int          `json:"tier1_pass"`
	Tier1Total int          `json:"tier1_total"`
	Tier2Pass  int          `json:"tier2_pass"`
	Tier2Total int          `json:"tier2_total"`
	NegPass    int          `json:"negative_pass"`
	NegTotal   int          `json:"negative_total"`

	// MRR is the mean reciprocal rank over Tier 1 and Tier 2 queries.
	MRR float64 `json:"mrr"`
}

// Failed reports whether any query failed.
func (r *ValidationResult) Failed() bool {
	return r.Tier1Pass < r.Tier1Total || r.Tier2Pass < r.Tier2Total || r.NegPass < r.NegTotal
}

// Validator runs validation queries against a retriever.
type Validator struct {
	retriever Retriever
	topK      int
}

// NewValidator creates a validator. topK <= 0 uses DefaultTopK.
func NewValidator(r Retriever, topK int) (*Validator, error) {
	if r == nil {
		return nil, fmt.Errorf("validation: nil retriever")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Validator{retriever: r, topK: topK}, nil
}

// RunQuery executes a single query and returns the result.
func (v *Validator) RunQuery(ctx context.Context, spec QuerySpec) TestResult {
	start := time.Now()
	result := TestResult{Spec: spec, MatchedAt: -1}

	res, err := v.retriever.Retrieve(ctx, spec.Query)
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Degraded = res.Degraded()

	for i, c := range res.Candidates {
		if i == v.topK {
			break
		}
		result.TopResults = append(result.TopResults, c.ProductID)
	}
	result.MatchedAt = rankOf(result.TopResults, spec.Expected)

	switch spec.Tier {
	case 1:
		result.Passed = result.MatchedAt == 0
	case 2:
		result.Passed = result.MatchedAt >= 0
	default:
		result.Passed = true
	}
	return result
}

// RunAll executes every query in cfg.
func (v *Validator) RunAll(ctx context.Context, cfg *QueryConfig) *ValidationResult {
	result := &ValidationResult{Timestamp: time.Now(), TopK: v.topK}

	var reciprocal float64
	for _, spec := range cfg.Tier1 {
		tr := v.RunQuery(ctx, spec)
		result.Tier1 = append(result.Tier1, tr)
		result.Tier1Total++
		if tr.Passed {
			result.Tier1Pass++
		}
		reciprocal += reciprocalRank(tr.MatchedAt)
	}
	for _, spec := range cfg.Tier2 {
		tr := v.RunQuery(ctx, spec)
		result.Tier2 = append(result.Tier2, tr)
		result.Tier2Total++
		if tr.Passed {
			result.Tier2Pass++
		}
		reciprocal += reciprocalRank(tr.MatchedAt)
	}
	for _, spec := range cfg.Negative {
		spec.Tier = 0
		tr := v.RunQuery(ctx, spec)
		result.Negative = append(result.Negative, tr)
		result.NegTotal++
		if tr.Passed {
			result.NegPass++
		}
	}

	if n := result.Tier1Total + result.Tier2Total; n > 0 {
		result.MRR = reciprocal / float64(n)
	}
	return result
}

func rankOf(results, expected []string) int {
	for i, id := range results {
		for _, exp := range expected {
			if id == exp {
				return i
			}
		}
	}
	return -1
}

func reciprocalRank(matchedAt int) float64 {
	if matchedAt < 0 {
		return 0
	}
	return 1 / float64(matchedAt+1)
}
