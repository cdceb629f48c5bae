package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/catalogmatch/internal/catalog"
	cmerrors "github.com/Aman-CERP/catalogmatch/internal/errors"
	"github.com/Aman-CERP/catalogmatch/internal/store"
)

// Engine retrieves fused candidates for single queries over one corpus
// snapshot. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	corpus  *catalog.Corpus
	vector  VectorIndex
	lexical store.LexicalRanker
	config  Config
	tracer  Tracer
	logger  *slog.Logger
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithTracer sets the tracing hook.
func WithTracer(t Tracer) EngineOption {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine. The lexical ranker must have been built
// over corpus. Zero config values take their defaults.
func NewEngine(corpus *catalog.Corpus, vector VectorIndex, lexical store.LexicalRanker, cfg Config, opts ...EngineOption) (*Engine, error) {
	if corpus == nil {
		return nil, fmt.Errorf("%w: corpus is required", cmerrors.ErrNilDependency)
	}
	if vector == nil {
		return nil, fmt.Errorf("%w: vector index is required", cmerrors.ErrNilDependency)
	}
	if lexical == nil {
		return nil, fmt.Errorf("%w: lexical ranker is required", cmerrors.ErrNilDependency)
	}

	defaults := DefaultConfig()
	if cfg.RecallSize <= 0 {
		cfg.RecallSize = defaults.RecallSize
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaults.TopK
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = defaults.Weights
	}

	e := &Engine{
		corpus:  corpus,
		vector:  vector,
		lexical: lexical,
		config:  cfg,
		tracer:  NoopTracer{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "retrieval")
	return e, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Corpus returns the snapshot the engine reads.
func (e *Engine) Corpus() *catalog.Corpus {
	return e.corpus
}

// Retrieve runs vector recall and lexical ranking for query, in parallel,
// and fuses them.
//
// A failing vector source does not fail the call: the result is
// lexical-only and VectorErr carries a RetrievalUnavailable error.
// Lexical failures and context cancellation are returned.
func (e *Engine) Retrieve(ctx context.Context, query string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		vectorHits  []VectorHit
		vectorErr   error
		lexicalHits []store.LexicalHit
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vectorHits, vectorErr = e.recall(gctx, query)
		return nil // Degrade instead of failing the group
	})
	g.Go(func() error {
		hits, err := e.lexical.Score(gctx, query)
		if err != nil {
			return fmt.Errorf("lexical ranking failed: %w", err)
		}
		lexicalHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if vectorErr != nil {
		vectorHits = nil
		e.logger.Warn("retrieval_degraded",
			append([]any{slog.String("query", query)}, cmerrors.LogAttrs(vectorErr)...)...)
		e.tracer.QueryDegraded(query, vectorErr)
	}

	for _, h := range vectorHits {
		e.tracer.VectorRecalled(query, h.Entry.ProductID, h.Distance)
	}
	for _, h := range lexicalHits {
		e.tracer.LexicalMatched(query, h.ProductID, h.Score)
	}

	candidates := Fuse(query, vectorHits, lexicalHits, e.corpus, e.config)

	for i, c := range candidates {
		e.tracer.CandidateScored(query, CandidateTrace{
			Rank:             i + 1,
			ProductID:        c.ProductID,
			SemanticDistance: c.SemanticDistance,
			SemanticNorm:     c.semanticNorm,
			LexicalScore:     c.LexicalScore,
			LexicalNorm:      c.lexicalNorm,
			NumericMatch:     c.NumericIdentityMatch,
			HybridScore:      c.HybridScore,
		})
	}

	e.logger.Debug("query_retrieved",
		slog.String("query", query),
		slog.Int("vector_hits", len(vectorHits)),
		slog.Int("lexical_hits", len(lexicalHits)),
		slog.Int("candidates", len(candidates)),
		slog.Bool("degraded", vectorErr != nil))

	return &Result{Query: query, Candidates: candidates, VectorErr: vectorErr}, nil
}

// recall queries the vector index under the configured timeout and drops
// hits whose product is not in the corpus snapshot.
func (e *Engine) recall(ctx context.Context, query string) ([]VectorHit, error) {
	if e.config.VectorTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.VectorTimeout)
		defer cancel()
	}

	hits, err := e.vector.Retrieve(ctx, query, e.config.RecallSize)
	if err != nil {
		if !cmerrors.IsRetrievalUnavailable(err) {
			err = cmerrors.RetrievalUnavailable("vector recall failed", err)
		}
		return nil, err
	}

	valid := make([]VectorHit, 0, len(hits))
	for _, h := range hits {
		entry, ok := e.corpus.Lookup(h.Entry.ProductID)
		if !ok {
			e.logger.Debug("vector_hit_not_in_corpus", slog.String("product_id", h.Entry.ProductID))
			continue
		}
		valid = append(valid, VectorHit{Entry: entry, Distance: h.Distance})
	}
	return valid, nil
}
