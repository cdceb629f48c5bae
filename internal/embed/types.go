// Package embed turns catalog documents and queries into vectors for the
// HNSW vector index.
package embed

import (
	"context"
	"math"
)

const (
	// DefaultBatchSize is the default number of texts per EmbedBatch call
	// during ingestion.
	DefaultBatchSize = 32

	// MaxBatchSize caps the batch size.
	MaxBatchSize = 256

	// StaticDimensions is the embedding dimension of the static embedder.
	StaticDimensions = 256
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in input order
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension
	Dimensions() int

	// ModelName returns the model identifier recorded at ingestion
	ModelName() string

	// Close releases resources
	Close() error
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = float32(float64(val) / magnitude)
	}
	return result
}
