package retrieval

import (
	"regexp"
	"sort"

	"golang.org/x/text/unicode/norm"

	"github.com/Aman-CERP/catalogmatch/internal/catalog"
	"github.com/Aman-CERP/catalogmatch/internal/store"
)

var digitsRegex = regexp.MustCompile(`[0-9]+`)

// Fuse merges vector and lexical hits for one query into at most
// cfg.TopK candidates ordered by descending hybrid score.
//
// Candidates are keyed by product ID in insertion order: vector hits
// first, then lexical-only hits in corpus order. Ties keep that order.
// Lexical hits must have positive scores and positions valid in corpus.
// Fuse is deterministic and does not modify its inputs.
func Fuse(query string, vectorHits []VectorHit, lexicalHits []store.LexicalHit, corpus *catalog.Corpus, cfg Config) []*Candidate {
	candidates := make([]*Candidate, 0, len(vectorHits)+len(lexicalHits))
	byID := make(map[string]*Candidate, cap(candidates))

	for _, hit := range vectorHits {
		if _, seen := byID[hit.Entry.ProductID]; seen {
			continue
		}
		c := newCandidate(hit.Entry, hit.Distance)
		byID[c.ProductID] = c
		candidates = append(candidates, c)
	}

	for _, hit := range lexicalHits {
		if hit.Score <= 0 || hit.Position < 0 || hit.Position >= corpus.Len() {
			continue
		}
		entry := corpus.At(hit.Position)
		if c, ok := byID[entry.ProductID]; ok {
			c.LexicalScore = hit.Score
			continue
		}
		c := newCandidate(entry, LexicalOnlyDistance)
		c.LexicalScore = hit.Score
		byID[c.ProductID] = c
		candidates = append(candidates, c)
	}

	if len(candidates) == 0 {
		return []*Candidate{}
	}

	queryDigits := digitSet(query)
	for _, c := range candidates {
		if intersects(queryDigits, digitSet(c.ProductName)) {
			c.NumericIdentityMatch = 1
		}
	}

	semantic := make([]float64, len(candidates))
	lexical := make([]float64, len(candidates))
	for i, c := range candidates {
		semantic[i] = 1 - c.SemanticDistance
		lexical[i] = c.LexicalScore
	}
	semantic = minMax(semantic)
	lexical = minMax(lexical)

	w := cfg.Weights
	for i, c := range candidates {
		c.semanticNorm = semantic[i]
		c.lexicalNorm = lexical[i]
		c.HybridScore = w.Semantic*semantic[i] + w.Lexical*lexical[i] + w.Numeric*float64(c.NumericIdentityMatch)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].HybridScore > candidates[j].HybridScore
	})

	if cfg.TopK > 0 && len(candidates) > cfg.TopK {
		candidates = candidates[:cfg.TopK]
	}
	return candidates
}

func newCandidate(e catalog.Entry, distance float64) *Candidate {
	return &Candidate{
		ProductID:        e.ProductID,
		ProductName:      e.ProductName,
		Category:         e.Category,
		DocumentText:     e.DocumentText,
		SemanticDistance: distance,
	}
}

// minMax rescales xs to [0,1]. When every value is equal the values are
// kept as they are, clamped to [0,1].
func minMax(xs []float64) []float64 {
	out := make([]float64, len(xs))
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}

	if hi == lo {
		for i, x := range xs {
			out[i] = clamp01(x)
		}
		return out
	}

	span := hi - lo
	for i, x := range xs {
		out[i] = (x - lo) / span
	}
	return out
}

func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}

// digitSet returns the digit runs in s. Full-width digits fold first.
func digitSet(s string) map[string]struct{} {
	runs := digitsRegex.FindAllString(norm.NFKC.String(s), -1)
	set := make(map[string]struct{}, len(runs))
	for _, r := range runs {
		set[r] = struct{}{}
	}
	return set
}

func intersects(a, b map[string]struct{}) bool {
	if len(b) < len(a) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}
