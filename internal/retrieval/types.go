// Package retrieval fuses vector recall and lexical relevance into one
// ranked candidate list per query.
//
// Scoring follows the reference pipeline: vector hits seed the candidate
// set, lexical hits with a positive score update or extend it, candidates
// sharing a digit sequence with the query get a numeric boost, and the
// min-max normalized signals are blended 0.5/0.3/0.2.
package retrieval

import (
	"context"
	"time"

	"github.com/Aman-CERP/catalogmatch/internal/catalog"
	"github.com/Aman-CERP/catalogmatch/internal/config"
)

// Defaults of the reference pipeline.
const (
	DefaultRecallSize    = 25
	DefaultTopK          = 10
	DefaultVectorTimeout = 30 * time.Second

	// LexicalOnlyDistance is the semantic distance given to candidates the
	// vector source did not return.
	LexicalOnlyDistance = 1.0
)

// Candidate is one catalog entry scored against one query.
type Candidate struct {
	ProductID            string  `json:"product_id"`
	ProductName          string  `json:"product_name"`
	Category             string  `json:"category"`
	DocumentText         string  `json:"document_text"`
	SemanticDistance     float64 `json:"semantic_distance"`
	LexicalScore         float64 `json:"lexical_score"`
	NumericIdentityMatch int     `json:"numeric_identity_match"`
	HybridScore          float64 `json:"hybrid_score"`

	// Normalized signals, kept for tracing.
	semanticNorm float64
	lexicalNorm  float64
}

// SemanticNorm returns the min-max normalized semantic signal.
func (c *Candidate) SemanticNorm() float64 { return c.semanticNorm }

// LexicalNorm returns the min-max normalized lexical signal.
func (c *Candidate) LexicalNorm() float64 { return c.lexicalNorm }

// VectorHit is one nearest neighbour returned by a VectorIndex.
type VectorHit struct {
	Entry    catalog.Entry
	Distance float64
}

// VectorIndex is the semantic recall source.
//
// Retrieve returns up to limit hits ordered by ascending distance, with
// distances comparable across calls. An unreachable source should return
// an error; the engine degrades that query to lexical-only.
type VectorIndex interface {
	Retrieve(ctx context.Context, query string, limit int) ([]VectorHit, error)
}

// Weights are the blend coefficients of the hybrid score.
type Weights struct {
	Semantic float64 `json:"semantic"`
	Lexical  float64 `json:"lexical"`
	Numeric  float64 `json:"numeric"`
}

// DefaultWeights returns 0.5/0.3/0.2.
func DefaultWeights() Weights {
	return Weights{Semantic: 0.5, Lexical: 0.3, Numeric: 0.2}
}

// Config controls recall size, truncation and blending.
type Config struct {
	RecallSize    int
	TopK          int
	Weights       Weights
	VectorTimeout time.Duration
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		RecallSize:    DefaultRecallSize,
		TopK:          DefaultTopK,
		Weights:       DefaultWeights(),
		VectorTimeout: DefaultVectorTimeout,
	}
}

// ConfigFrom maps the retrieval section of the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		RecallSize: cfg.Retrieval.RecallSize,
		TopK:       cfg.Retrieval.TopK,
		Weights: Weights{
			Semantic: cfg.Retrieval.SemanticWeight,
			Lexical:  cfg.Retrieval.LexicalWeight,
			Numeric:  cfg.Retrieval.NumericWeight,
		},
		VectorTimeout: cfg.VectorTimeout(),
	}
}

// Result is the fused candidate list for one query.
type Result struct {
	Query      string       `json:"query"`
	Candidates []*Candidate `json:"candidates"`

	// VectorErr is set when the vector source failed and Candidates are
	// lexical-only.
	VectorErr error `json:"-"`
}

// Degraded reports whether the vector signal was missing.
func (r *Result) Degraded() bool {
	return r.VectorErr != nil
}
