// Package catalog holds the immutable product catalog snapshot that every
// retrieval stage reads from.
package catalog

import (
	"fmt"
	"strings"

	cmerrors "github.com/Aman-CERP/catalogmatch/internal/errors"
)

// Entry is one catalog product. Entries are values and never mutated
// after a Corpus is built.
type Entry struct {
	ProductID    string `json:"product_id" db:"product_id"`
	ProductName  string `json:"product_name" db:"product_name"`
	Category     string `json:"category" db:"category"`
	DocumentText string `json:"document_text" db:"document_text"`

	Description     string `json:"description,omitempty" db:"description"`
	SubCategory     string `json:"sub_category,omitempty" db:"sub_category"`
	Brand           string `json:"brand,omitempty" db:"brand"`
	IndustryUse     string `json:"industry_use,omitempty" db:"industry_use"`
	FormFactor      string `json:"form_factor,omitempty" db:"form_factor"`
	Interface       string `json:"interface,omitempty" db:"interface_type"`
	LifecycleStatus string `json:"lifecycle_status,omitempty" db:"lifecycle_status"`
}

// BuildDocumentText renders the text that is embedded and lexically
// indexed for an entry. Empty fields keep their label.
func BuildDocumentText(e Entry) string {
	lines := []string{
		"Product Name: " + e.ProductName,
		"Description: " + e.Description,
		"Category: " + e.Category,
		"Sub Category: " + e.SubCategory,
		"Brand: " + e.Brand,
		"Industry Use: " + e.IndustryUse,
		"Form Factor: " + e.FormFactor,
		"Interface: " + e.Interface,
	}
	return strings.Join(lines, "\n")
}

// Corpus is an ordered, immutable set of entries keyed by product ID.
// Positions are stable for the lifetime of the Corpus and are what the
// lexical ranker reports.
type Corpus struct {
	entries []Entry
	index   map[string]int
}

// NewCorpus validates entries and builds a Corpus over a private copy.
// Entries without document text get one from BuildDocumentText.
// An empty or duplicate product ID is an invalid catalog.
func NewCorpus(entries []Entry) (*Corpus, error) {
	c := &Corpus{
		entries: make([]Entry, len(entries)),
		index:   make(map[string]int, len(entries)),
	}

	for i, e := range entries {
		e.ProductID = strings.TrimSpace(e.ProductID)
		if e.ProductID == "" {
			return nil, cmerrors.New(cmerrors.ErrCodeInvalidCatalog,
				fmt.Sprintf("entry %d has no product_id", i), nil)
		}
		if prev, dup := c.index[e.ProductID]; dup {
			return nil, cmerrors.New(cmerrors.ErrCodeInvalidCatalog,
				fmt.Sprintf("duplicate product_id %q at entries %d and %d", e.ProductID, prev, i), nil).
				WithDetail("product_id", e.ProductID)
		}
		if e.DocumentText == "" {
			e.DocumentText = BuildDocumentText(e)
		}
		c.entries[i] = e
		c.index[e.ProductID] = i
	}

	return c, nil
}

// Len returns the number of entries.
func (c *Corpus) Len() int {
	return len(c.entries)
}

// At returns the entry at position i. It panics when i is out of range,
// like a slice index.
func (c *Corpus) At(i int) Entry {
	return c.entries[i]
}

// Lookup returns the entry with the given product ID.
func (c *Corpus) Lookup(productID string) (Entry, bool) {
	i, ok := c.index[productID]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Position returns the corpus position of productID.
func (c *Corpus) Position(productID string) (int, bool) {
	i, ok := c.index[productID]
	return i, ok
}

// Entries returns a copy of all entries in corpus order.
func (c *Corpus) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Documents returns the document text of every entry in corpus order.
func (c *Corpus) Documents() []string {
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.DocumentText
	}
	return out
}
