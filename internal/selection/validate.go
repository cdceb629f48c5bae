package selection

import (
	"fmt"
	"strings"

	cmerrors "github.com/Aman-CERP/catalogmatch/internal/errors"
)

// Validate checks decisions against the batch they answer. A count
// mismatch, or a decision whose input_query is not its query's text, is
// always a ContractViolation. With strict set, every selected product must
// be one of that query's own candidates.
func Validate(batch []BatchItem, decisions []Decision, strict bool) error {
	if len(decisions) != len(batch) {
		return cmerrors.ContractViolation(
			fmt.Sprintf("selection returned %d decisions for %d queries", len(decisions), len(batch))).
			WithDetail("expected", fmt.Sprint(len(batch))).
			WithDetail("got", fmt.Sprint(len(decisions)))
	}

	for i, d := range decisions {
		if !sameQuery(d.InputQuery, batch[i].Query) {
			return cmerrors.ContractViolation(
				fmt.Sprintf("decision %d answers %q, expected query %q", i+1, d.InputQuery, batch[i].Query)).
				WithDetail("index", fmt.Sprint(i)).
				WithDetail("expected", batch[i].Query).
				WithDetail("got", d.InputQuery)
		}
	}

	if !strict {
		return nil
	}

	for i, d := range decisions {
		if !d.Selected() {
			continue
		}
		if !hasCandidate(batch[i], *d.SelectedProductID) {
			return cmerrors.ContractViolation(
				fmt.Sprintf("decision %d selects %s, which is not a candidate of query %q",
					i+1, *d.SelectedProductID, batch[i].Query)).
				WithDetail("index", fmt.Sprint(i)).
				WithDetail("product_id", *d.SelectedProductID)
		}
	}
	return nil
}

// sameQuery compares query texts ignoring case and whitespace runs.
func sameQuery(a, b string) bool {
	return strings.EqualFold(strings.Join(strings.Fields(a), " "), strings.Join(strings.Fields(b), " "))
}

func hasCandidate(item BatchItem, productID string) bool {
	for _, c := range item.Candidates {
		if c.ProductID == productID {
			return true
		}
	}
	return false
}
