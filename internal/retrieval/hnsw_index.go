package retrieval

import (
	"context"
	"fmt"

	"github.com/Aman-CERP/catalogmatch/internal/catalog"
	"github.com/Aman-CERP/catalogmatch/internal/embed"
	cmerrors "github.com/Aman-CERP/catalogmatch/internal/errors"
	"github.com/Aman-CERP/catalogmatch/internal/store"
)

// HNSWIndex is a VectorIndex over an in-process HNSW store. Queries are
// embedded with the same embedder used at ingestion.
type HNSWIndex struct {
	corpus   *catalog.Corpus
	vectors  *store.HNSWStore
	embedder embed.Embedder
	breaker  *cmerrors.CircuitBreaker
}

var _ VectorIndex = (*HNSWIndex)(nil)

// NewHNSWIndex creates the index. The embedder's dimension must match the
// store's.
func NewHNSWIndex(corpus *catalog.Corpus, vectors *store.HNSWStore, embedder embed.Embedder) (*HNSWIndex, error) {
	if corpus == nil || vectors == nil || embedder == nil {
		return nil, fmt.Errorf("%w: corpus, vector store and embedder are required", cmerrors.ErrNilDependency)
	}
	if embedder.Dimensions() != vectors.Dimensions() {
		return nil, cmerrors.New(cmerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("embedder %s produces %d dimensions, index has %d",
				embedder.ModelName(), embedder.Dimensions(), vectors.Dimensions()), nil).
			WithSuggestion("re-run 'catalogmatch ingest' with the current embedder")
	}

	return &HNSWIndex{
		corpus:   corpus,
		vectors:  vectors,
		embedder: embedder,
		breaker:  cmerrors.NewCircuitBreaker("vector_recall"),
	}, nil
}

// Retrieve embeds query and returns its nearest catalog entries.
// Every failure, including an open circuit, is a RetrievalUnavailable.
func (h *HNSWIndex) Retrieve(ctx context.Context, query string, limit int) ([]VectorHit, error) {
	hits, err := cmerrors.CircuitExecuteContext(ctx, h.breaker, func() ([]VectorHit, error) {
		return h.search(ctx, query, limit)
	})
	if err != nil {
		return nil, cmerrors.RetrievalUnavailable("vector recall unavailable", err).
			WithDetail("breaker", h.breaker.State().String())
	}
	return hits, nil
}

func (h *HNSWIndex) search(ctx context.Context, query string, limit int) ([]VectorHit, error) {
	vec, err := h.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := h.vectors.Search(ctx, vec, limit)
	if err != nil {
		return nil, err
	}

	hits := make([]VectorHit, 0, len(results))
	for _, r := range results {
		entry, ok := h.corpus.Lookup(r.ID)
		if !ok {
			continue
		}
		hits = append(hits, VectorHit{Entry: entry, Distance: float64(r.Distance)})
	}
	return hits, nil
}
