// Package selection builds the final canonical-selection prompt and
// strictly parses and validates the model's decisions.
package selection

import (
	"math"

	"github.com/Aman-CERP/catalogmatch/internal/retrieval"
)

// DefaultDescriptionChars is how much document text each candidate shows.
const DefaultDescriptionChars = 300

// Confidence is the model's confidence in a decision.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Valid reports whether c is one of high, medium or low.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

// Candidate is a fused candidate as shown to the selection model.
type Candidate struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Category    string  `json:"category"`
	Distance    float64 `json:"distance"`
	HybridScore float64 `json:"hybrid_score"`
	Description string  `json:"description"`
}

// BatchItem is one query with its candidates, in normalization order.
type BatchItem struct {
	Query      string      `json:"query"`
	Candidates []Candidate `json:"candidates"`
	Degraded   bool        `json:"degraded,omitempty"`
}

// Decision is the selection for one query. Both selected fields are nil
// when nothing fits.
type Decision struct {
	InputQuery          string     `json:"input_query"`
	SelectedProductID   *string    `json:"selected_product_id"`
	SelectedProductName *string    `json:"selected_product_name"`
	Confidence          Confidence `json:"confidence"`
	Reason              string     `json:"reason"`
}

// Selected reports whether the decision picked a product.
func (d Decision) Selected() bool {
	return d.SelectedProductID != nil
}

// NewBatchItem converts a retrieval result. Distances and scores are
// rounded to four places and descriptions cut to descriptionChars runes.
func NewBatchItem(res *retrieval.Result, descriptionChars int) BatchItem {
	if descriptionChars <= 0 {
		descriptionChars = DefaultDescriptionChars
	}

	item := BatchItem{
		Query:      res.Query,
		Candidates: make([]Candidate, 0, len(res.Candidates)),
		Degraded:   res.Degraded(),
	}
	for _, c := range res.Candidates {
		item.Candidates = append(item.Candidates, Candidate{
			ProductID:   c.ProductID,
			ProductName: c.ProductName,
			Category:    c.Category,
			Distance:    round4(c.SemanticDistance),
			HybridScore: round4(c.HybridScore),
			Description: truncateRunes(c.DocumentText, descriptionChars),
		})
	}
	return item
}

func round4(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
