// Package store provides the lexical rankers (Bleve, SQLite FTS5), the HNSW
// vector store and SQLite persistence for ingested catalogs.
package store

import (
	"context"
	"fmt"
)

// State keys recorded by ingestion and checked when a snapshot is opened.
const (
	// StateKeyEmbeddingDimension stores the embedding dimension used for the vectors.
	StateKeyEmbeddingDimension = "embedding_dimension"
	// StateKeyEmbeddingModel stores the embedding model name used for the vectors.
	StateKeyEmbeddingModel = "embedding_model"
	// StateKeyIngestedAt stores the RFC3339 time of the last ingestion.
	StateKeyIngestedAt = "ingested_at"
	// StateKeyEntryCount stores the number of ingested entries.
	StateKeyEntryCount = "entry_count"
)

// LexicalHit is one corpus entry with a positive lexical score.
type LexicalHit struct {
	// Position is the entry's index in the corpus.
	Position  int
	ProductID string
	Score     float64
}

// LexicalRanker scores a query against every entry of a fixed corpus.
//
// Score returns only entries with a score greater than zero, ordered by
// ascending corpus position. Implementations are safe for concurrent use.
type LexicalRanker interface {
	Score(ctx context.Context, query string) ([]LexicalHit, error)
	Close() error
}

// VectorResult is a single nearest-neighbour hit.
type VectorResult struct {
	ID       string
	Distance float32 // Lower is more similar (0-2 for cosine)
}

// HNSWConfig configures the HNSW vector store.
type HNSWConfig struct {
	// Dimensions is the vector dimension.
	Dimensions int
	// Metric is "cos" or "l2".
	Metric string
	// M is the max connections per layer.
	M int
	// EfSearch is the search beam width. It should be at least the recall size.
	EfSearch int
}

// DefaultHNSWConfig returns defaults for the given dimension.
func DefaultHNSWConfig(dimensions int) HNSWConfig {
	return HNSWConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   64,
	}
}

// ErrDimensionMismatch reports a vector whose length differs from the store's.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
