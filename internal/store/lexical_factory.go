package store

import (
	"context"
	"fmt"

	"github.com/Aman-CERP/catalogmatch/internal/catalog"
)

// LexicalBackend selects the lexical ranker implementation.
type LexicalBackend string

const (
	// LexicalBackendBleve uses Bleve's BM25 scoring (default).
	LexicalBackendBleve LexicalBackend = "bleve"

	// LexicalBackendSQLite uses SQLite FTS5 Okapi BM25 scoring.
	LexicalBackendSQLite LexicalBackend = "sqlite"
)

// NewLexicalRanker builds an in-memory lexical ranker over corpus.
// An empty backend selects Bleve.
func NewLexicalRanker(ctx context.Context, corpus *catalog.Corpus, backend string) (LexicalRanker, error) {
	if corpus == nil {
		return nil, fmt.Errorf("lexical ranker: nil corpus")
	}

	switch LexicalBackend(backend) {
	case LexicalBackendBleve, "":
		return NewBleveLexicalIndex(ctx, corpus)
	case LexicalBackendSQLite:
		return NewSQLiteLexicalIndex(ctx, corpus)
	default:
		return nil, fmt.Errorf("unknown lexical backend: %s (valid options: bleve, sqlite)", backend)
	}
}
