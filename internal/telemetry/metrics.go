// Package telemetry keeps a local history of match runs: outcome counts,
// latency and the queries that found no catalog product. All data stays
// in the catalog data directory; nothing is reported anywhere.
package telemetry

import (
	"strings"
	"sync"
	"time"

	"github.com/Aman-CERP/catalogmatch/internal/matcher"
)

// LatencyBucket is a run latency histogram bucket. Runs include two
// language model round trips, so buckets are in seconds.
type LatencyBucket string

const (
	BucketLT1s  LatencyBucket = "lt1s"
	BucketLT5s  LatencyBucket = "lt5s"
	BucketLT15s LatencyBucket = "lt15s"
	BucketLT60s LatencyBucket = "lt60s"
	BucketGE60s LatencyBucket = "ge60s"
)

// Buckets lists the histogram buckets in ascending order.
var Buckets = []LatencyBucket{BucketLT1s, BucketLT5s, BucketLT15s, BucketLT60s, BucketGE60s}

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	switch {
	case d < time.Second:
		return BucketLT1s
	case d < 5*time.Second:
		return BucketLT5s
	case d < 15*time.Second:
		return BucketLT15s
	case d < time.Minute:
		return BucketLT60s
	default:
		return BucketGE60s
	}
}

// RunEvent is one validated match run.
type RunEvent struct {
	RunID     string
	Queries   int
	Matched   int
	Degraded  int
	Duration  time.Duration
	Timestamp time.Time

	// Unmatched holds the queries with no selected product, in batch order.
	Unmatched []string
}

// FromReport summarises a run report.
func FromReport(report *matcher.Report, at time.Time) RunEvent {
	ev := RunEvent{
		RunID:     report.RunID,
		Queries:   len(report.Decisions),
		Matched:   report.Matched(),
		Degraded:  report.Degraded(),
		Duration:  report.Duration,
		Timestamp: at,
	}
	for _, d := range report.Decisions {
		if !d.Selected() {
			ev.Unmatched = append(ev.Unmatched, d.InputQuery)
		}
	}
	return ev
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	head     int
	size     int
	capacity int
}

// NewCircularBuffer creates a buffer; capacity <= 0 means 100.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{items: make([]T, capacity), capacity: capacity}
}

// Add appends an item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns the buffered items oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]T, b.size)
	if b.size < b.capacity {
		copy(out, b.items[:b.size])
		return out
	}
	copy(out, b.items[b.head:])
	copy(out[b.capacity-b.head:], b.items[:b.head])
	return out
}

// Size returns the number of buffered items.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// ExtractTerms lowercases a query and keeps words of three or more bytes.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount is a term and how often it appeared.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot aggregates the recorded history.
type Snapshot struct {
	Runs                int64                   `json:"runs"`
	Queries             int64                   `json:"queries"`
	Matched             int64                   `json:"matched"`
	Degraded            int64                   `json:"degraded"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TopUnmatchedTerms   []TermCount             `json:"top_unmatched_terms"`
	RecentUnmatched     []string                `json:"recent_unmatched"`
	Since               time.Time               `json:"since"`
}

// MatchRate returns matched queries as a percentage of all queries.
func (s *Snapshot) MatchRate() float64 {
	if s.Queries == 0 {
		return 0
	}
	return float64(s.Matched) / float64(s.Queries) * 100
}
