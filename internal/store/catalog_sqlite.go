package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/Aman-CERP/catalogmatch/internal/catalog"
)

// CatalogStore persists an ingested catalog: entries in corpus order,
// their embeddings and ingestion state.
type CatalogStore struct {
	mu     sync.RWMutex
	db     *sqlx.DB
	path   string
	closed bool
}

// Embedding is a stored document vector.
type Embedding struct {
	ProductID string
	Model     string
	Vector    []float32
}

type entryRow struct {
	Position int `db:"position"`
	catalog.Entry
}

type embeddingRow struct {
	ProductID string `db:"product_id"`
	Model     string `db:"model"`
	Dims      int    `db:"dims"`
	Vector    []byte `db:"vector"`
}

const catalogSchema = `
CREATE TABLE IF NOT EXISTS entries (
	position         INTEGER PRIMARY KEY,
	product_id       TEXT NOT NULL UNIQUE,
	product_name     TEXT NOT NULL,
	category         TEXT NOT NULL,
	document_text    TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	sub_category     TEXT NOT NULL DEFAULT '',
	brand            TEXT NOT NULL DEFAULT '',
	industry_use     TEXT NOT NULL DEFAULT '',
	form_factor      TEXT NOT NULL DEFAULT '',
	interface_type   TEXT NOT NULL DEFAULT '',
	lifecycle_status TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS embeddings (
	product_id TEXT PRIMARY KEY,
	model      TEXT NOT NULL,
	dims       INTEGER NOT NULL,
	vector     BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// OpenCatalogStore opens or creates the catalog database at path.
// An empty path opens an in-memory database.
func OpenCatalogStore(ctx context.Context, path string) (*CatalogStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = path
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if path != "" {
		pragmas := []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA busy_timeout = 5000",
			"PRAGMA synchronous = NORMAL",
		}
		for _, pragma := range pragmas {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to set pragma: %w", err)
			}
		}
	}

	if _, err := db.ExecContext(ctx, catalogSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &CatalogStore{db: db, path: path}, nil
}

// SaveEntries replaces all stored entries with the corpus, in order.
func (s *CatalogStore) SaveEntries(ctx context.Context, corpus *catalog.Corpus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return fmt.Errorf("failed to clear entries: %w", err)
	}

	stmt, err := tx.PrepareNamedContext(ctx, `
		INSERT INTO entries (position, product_id, product_name, category, document_text,
			description, sub_category, brand, industry_use, form_factor, interface_type, lifecycle_status)
		VALUES (:position, :product_id, :product_name, :category, :document_text,
			:description, :sub_category, :brand, :industry_use, :form_factor, :interface_type, :lifecycle_status)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := 0; i < corpus.Len(); i++ {
		if _, err := stmt.ExecContext(ctx, entryRow{Position: i, Entry: corpus.At(i)}); err != nil {
			return fmt.Errorf("failed to save entry %s: %w", corpus.At(i).ProductID, err)
		}
	}

	return tx.Commit()
}

// LoadEntries returns stored entries in corpus order.
func (s *CatalogStore) LoadEntries(ctx context.Context) ([]catalog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	var rows []entryRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM entries ORDER BY position`); err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}

	entries := make([]catalog.Entry, len(rows))
	for i, r := range rows {
		entries[i] = r.Entry
	}
	return entries, nil
}

// SaveEmbeddings upserts document vectors.
func (s *CatalogStore) SaveEmbeddings(ctx context.Context, embeddings []Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareNamedContext(ctx, `
		INSERT OR REPLACE INTO embeddings (product_id, model, dims, vector)
		VALUES (:product_id, :model, :dims, :vector)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range embeddings {
		row := embeddingRow{
			ProductID: e.ProductID,
			Model:     e.Model,
			Dims:      len(e.Vector),
			Vector:    encodeVector(e.Vector),
		}
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			return fmt.Errorf("failed to save embedding %s: %w", e.ProductID, err)
		}
	}

	return tx.Commit()
}

// LoadEmbeddings returns every stored vector ordered by product ID.
func (s *CatalogStore) LoadEmbeddings(ctx context.Context) ([]Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	var rows []embeddingRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT product_id, model, dims, vector FROM embeddings ORDER BY product_id`); err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}

	out := make([]Embedding, len(rows))
	for i, r := range rows {
		vec, err := decodeVector(r.Vector, r.Dims)
		if err != nil {
			return nil, fmt.Errorf("embedding %s: %w", r.ProductID, err)
		}
		out[i] = Embedding{ProductID: r.ProductID, Model: r.Model, Vector: vec}
	}
	return out, nil
}

// GetState returns the value for key, or "" when unset.
func (s *CatalogStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", fmt.Errorf("store is closed")
	}

	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM state WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read state %s: %w", key, err)
	}
	return value, nil
}

// SetState stores a key/value pair.
func (s *CatalogStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write state %s: %w", key, err)
	}
	return nil
}

// Close checkpoints the WAL and closes the database.
func (s *CatalogStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.path != "" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte, dims int) ([]float32, error) {
	if len(b) != 4*dims {
		return nil, fmt.Errorf("vector blob has %d bytes, want %d", len(b), 4*dims)
	}
	v := make([]float32, dims)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
