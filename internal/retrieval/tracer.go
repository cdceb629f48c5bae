package retrieval

import (
	"log/slog"

	cmerrors "github.com/Aman-CERP/catalogmatch/internal/errors"
)

// CandidateTrace is the scoring breakdown of one fused candidate.
type CandidateTrace struct {
	Rank             int
	ProductID        string
	SemanticDistance float64
	SemanticNorm     float64
	LexicalScore     float64
	LexicalNorm      float64
	NumericMatch     int
	HybridScore      float64
}

// Tracer observes the stages of a retrieval. Implementations must be safe
// for concurrent use; queries are retrieved in parallel.
type Tracer interface {
	VectorRecalled(query, productID string, distance float64)
	LexicalMatched(query, productID string, score float64)
	CandidateScored(query string, trace CandidateTrace)
	QueryDegraded(query string, err error)
}

// NoopTracer discards everything.
type NoopTracer struct{}

func (NoopTracer) VectorRecalled(string, string, float64) {}
func (NoopTracer) LexicalMatched(string, string, float64) {}
func (NoopTracer) CandidateScored(string, CandidateTrace) {}
func (NoopTracer) QueryDegraded(string, error)            {}

// LogTracer writes trace events at debug level. With a watch list it only
// reports those product IDs; degraded queries are always reported.
type LogTracer struct {
	logger  *slog.Logger
	watched map[string]struct{}
}

// NewLogTracer creates a tracer logging to logger (slog.Default when nil).
func NewLogTracer(logger *slog.Logger, watchedIDs ...string) *LogTracer {
	if logger == nil {
		logger = slog.Default()
	}
	t := &LogTracer{logger: logger.With("component", "retrieval_trace")}
	if len(watchedIDs) > 0 {
		t.watched = make(map[string]struct{}, len(watchedIDs))
		for _, id := range watchedIDs {
			t.watched[id] = struct{}{}
		}
	}
	return t
}

func (t *LogTracer) watching(productID string) bool {
	if t.watched == nil {
		return true
	}
	_, ok := t.watched[productID]
	return ok
}

func (t *LogTracer) VectorRecalled(query, productID string, distance float64) {
	if !t.watching(productID) {
		return
	}
	t.logger.Debug("vector_recalled",
		slog.String("query", query),
		slog.String("product_id", productID),
		slog.Float64("distance", distance))
}

func (t *LogTracer) LexicalMatched(query, productID string, score float64) {
	if !t.watching(productID) {
		return
	}
	t.logger.Debug("lexical_matched",
		slog.String("query", query),
		slog.String("product_id", productID),
		slog.Float64("score", score))
}

func (t *LogTracer) CandidateScored(query string, tr CandidateTrace) {
	if !t.watching(tr.ProductID) {
		return
	}
	t.logger.Debug("candidate_scored",
		slog.String("query", query),
		slog.String("product_id", tr.ProductID),
		slog.Int("rank", tr.Rank),
		slog.Float64("semantic_distance", tr.SemanticDistance),
		slog.Float64("semantic_norm", tr.SemanticNorm),
		slog.Float64("lexical_score", tr.LexicalScore),
		slog.Float64("lexical_norm", tr.LexicalNorm),
		slog.Int("numeric_match", tr.NumericMatch),
		slog.Float64("hybrid_score", tr.HybridScore))
}

func (t *LogTracer) QueryDegraded(query string, err error) {
	attrs := append([]any{slog.String("query", query)}, cmerrors.LogAttrs(err)...)
	t.logger.Debug("query_degraded", attrs...)
}
