package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// HistoryName is the history database file inside the data directory.
const HistoryName = "history.db"

// MaxUnmatched bounds the stored unmatched query buffer.
const MaxUnmatched = 100

// Timestamps are Unix milliseconds.
const historySchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	started_at  INTEGER NOT NULL,
	queries     INTEGER NOT NULL,
	matched     INTEGER NOT NULL,
	degraded    INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL
);

-- Unmatched queries (circular buffer, newest MaxUnmatched kept)
CREATE TABLE IF NOT EXISTS unmatched_queries (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id    TEXT NOT NULL,
	query     TEXT NOT NULL,
	timestamp INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS unmatched_terms (
	term      TEXT PRIMARY KEY,
	count     INTEGER NOT NULL DEFAULT 1,
	last_seen INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_unmatched_terms_count ON unmatched_terms(count DESC);

CREATE TABLE IF NOT EXISTS run_latency_stats (
	date   TEXT NOT NULL,
	bucket TEXT NOT NULL,
	count  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, bucket)
);`

// History records match runs in SQLite.
type History struct {
	mu     sync.Mutex
	db     *sqlx.DB
	closed bool
}

// OpenHistory opens or creates the history database in dataDir.
func OpenHistory(ctx context.Context, dataDir string) (*History, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sqlx.Open("sqlite", filepath.Join(dataDir, HistoryName))
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA busy_timeout = 5000", historySchema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create history schema: %w", err)
		}
	}
	return &History{db: db}, nil
}

// Record stores one run. Recording the same run ID twice is a no-op.
func (h *History) Record(ctx context.Context, ev RunEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return fmt.Errorf("history is closed")
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	tx, err := h.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO runs (run_id, started_at, queries, matched, degraded, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.RunID, ev.Timestamp.UnixMilli(), ev.Queries, ev.Matched, ev.Degraded, ev.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO run_latency_stats (date, bucket, count) VALUES (?, ?, 1)
		ON CONFLICT(date, bucket) DO UPDATE SET count = count + 1`,
		ev.Timestamp.UTC().Format("2006-01-02"), string(LatencyToBucket(ev.Duration))); err != nil {
		return fmt.Errorf("insert latency count: %w", err)
	}

	terms := make(map[string]int64)
	for _, q := range ev.Unmatched {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO unmatched_queries (run_id, query, timestamp) VALUES (?, ?, ?)`,
			ev.RunID, q, ev.Timestamp.UnixMilli()); err != nil {
			return fmt.Errorf("insert unmatched query: %w", err)
		}
		for _, t := range ExtractTerms(q) {
			terms[t]++
		}
	}
	for term, count := range terms {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO unmatched_terms (term, count, last_seen) VALUES (?, ?, ?)
			ON CONFLICT(term) DO UPDATE SET count = count + excluded.count, last_seen = excluded.last_seen`,
			term, count, ev.Timestamp.UnixMilli()); err != nil {
			return fmt.Errorf("upsert term count: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM unmatched_queries
		WHERE id NOT IN (SELECT id FROM unmatched_queries ORDER BY id DESC LIMIT ?)`, MaxUnmatched); err != nil {
		return fmt.Errorf("trim unmatched queries: %w", err)
	}

	return tx.Commit()
}

// Snapshot aggregates runs since the given time (zero means all) and
// returns up to limit top terms and recent unmatched queries.
func (h *History) Snapshot(ctx context.Context, since time.Time, limit int) (*Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, fmt.Errorf("history is closed")
	}
	if limit <= 0 {
		limit = 10
	}

	snap := &Snapshot{
		LatencyDistribution: make(map[LatencyBucket]int64, len(Buckets)),
		Since:               since,
	}

	var totals struct {
		Runs     int64         `db:"runs"`
		Queries  sql.NullInt64 `db:"queries"`
		Matched  sql.NullInt64 `db:"matched"`
		Degraded sql.NullInt64 `db:"degraded"`
		First    sql.NullInt64 `db:"first"`
	}
	err := h.db.GetContext(ctx, &totals, `
		SELECT COUNT(*) AS runs, SUM(queries) AS queries, SUM(matched) AS matched,
		       SUM(degraded) AS degraded, MIN(started_at) AS first
		FROM runs WHERE started_at >= ?`, since.UnixMilli())
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query run totals: %w", err)
	}
	snap.Runs = totals.Runs
	snap.Queries = totals.Queries.Int64
	snap.Matched = totals.Matched.Int64
	snap.Degraded = totals.Degraded.Int64
	if since.IsZero() && totals.First.Valid {
		snap.Since = time.UnixMilli(totals.First.Int64)
	}

	var buckets []struct {
		Bucket string `db:"bucket"`
		Total  int64  `db:"total"`
	}
	if err := h.db.SelectContext(ctx, &buckets, `
		SELECT bucket, SUM(count) AS total FROM run_latency_stats
		WHERE date >= ? GROUP BY bucket`, since.UTC().Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("query latency counts: %w", err)
	}
	for _, b := range buckets {
		snap.LatencyDistribution[LatencyBucket(b.Bucket)] = b.Total
	}

	if err := h.db.SelectContext(ctx, &snap.TopUnmatchedTerms, `
		SELECT term, count FROM unmatched_terms ORDER BY count DESC, term LIMIT ?`, limit); err != nil {
		return nil, fmt.Errorf("query top terms: %w", err)
	}

	if err := h.db.SelectContext(ctx, &snap.RecentUnmatched, `
		SELECT query FROM unmatched_queries ORDER BY id DESC LIMIT ?`, limit); err != nil {
		return nil, fmt.Errorf("query unmatched queries: %w", err)
	}

	return snap, nil
}

// Close closes the database.
func (h *History) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	return h.db.Close()
}
