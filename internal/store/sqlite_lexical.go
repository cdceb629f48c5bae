package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/Aman-CERP/catalogmatch/internal/catalog"
)

// SQLiteLexicalIndex ranks catalog entries with SQLite FTS5's Okapi BM25
// over an in-memory database. The FTS rowid is the corpus position.
type SQLiteLexicalIndex struct {
	mu     sync.RWMutex
	db     *sqlx.DB
	closed bool
}

var _ LexicalRanker = (*SQLiteLexicalIndex)(nil)

// Content is pre-tokenized with Tokenize, so unicode61 only has to split
// on spaces. tokenchars keeps underscores inside tokens and diacritics are
// left alone, matching Tokenize.
const lexicalSchema = `
CREATE VIRTUAL TABLE lexical USING fts5(
	product_id UNINDEXED,
	content,
	tokenize = "unicode61 remove_diacritics 0 tokenchars '_'"
);`

type lexicalRow struct {
	Position  int     `db:"position"`
	ProductID string  `db:"product_id"`
	Score     float64 `db:"score"`
}

// NewSQLiteLexicalIndex indexes the document text of every corpus entry.
func NewSQLiteLexicalIndex(ctx context.Context, corpus *catalog.Corpus) (*SQLiteLexicalIndex, error) {
	db, err := sqlx.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, lexicalSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := insertCorpus(ctx, db, corpus); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteLexicalIndex{db: db}, nil
}

func insertCorpus(ctx context.Context, db *sqlx.DB, corpus *catalog.Corpus) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx, `INSERT INTO lexical(rowid, product_id, content) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := 0; i < corpus.Len(); i++ {
		e := corpus.At(i)
		content := strings.Join(Tokenize(e.DocumentText), " ")
		if _, err := stmt.ExecContext(ctx, i, e.ProductID, content); err != nil {
			return fmt.Errorf("failed to index entry %s: %w", e.ProductID, err)
		}
	}

	return tx.Commit()
}

// Score matches any query token and returns negated bm25() scores.
func (s *SQLiteLexicalIndex) Score(ctx context.Context, query string) ([]LexicalHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}

	match := matchExpression(Tokenize(query))
	if match == "" {
		return []LexicalHit{}, nil
	}

	// bm25() is negative, lower is better.
	var rows []lexicalRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT rowid AS position, product_id, -bm25(lexical) AS score
		FROM lexical
		WHERE lexical MATCH ?
		ORDER BY rowid`, match)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]LexicalHit, 0, len(rows))
	for _, r := range rows {
		if r.Score > 0 {
			hits = append(hits, LexicalHit{Position: r.Position, ProductID: r.ProductID, Score: r.Score})
		}
	}
	return hits, nil
}

// matchExpression quotes every token so FTS5 never parses it as syntax
// and ORs them together.
func matchExpression(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}

// Close closes the database.
func (s *SQLiteLexicalIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
