package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer outputs one line per progress event (for CI/pipes).
type PlainRenderer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error { return nil }

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error { return nil }

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Total > 0 {
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d - %s\n", event.Stage.Icon(), event.Current, event.Total, event.Message)
	} else if event.Message != "" {
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), event.Message)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	writeSummary(r.out, stats, NoColorStyles())
}

func writeSummary(out io.Writer, stats CompletionStats, styles Styles) {
	_, _ = fmt.Fprintf(out, "%s %d catalog entries ingested in %s\n",
		styles.Success.Render("Complete:"), stats.Entries, stats.Duration.Round(100*time.Millisecond))

	if stats.Embed > 0 && stats.Entries > 0 {
		perSec := float64(stats.Entries) / stats.Embed.Seconds()
		_, _ = fmt.Fprintf(out, "  %s %s (%.1f entries/sec)\n",
			styles.Label.Render("Embed:"), stats.Embed.Round(100*time.Millisecond), perSec)
	}
	if stats.Embedder.Backend != "" {
		_, _ = fmt.Fprintf(out, "  %s %s (%s, %d dims)\n", styles.Label.Render("Backend:"),
			stats.Embedder.Backend, stats.Embedder.Model, stats.Embedder.Dimensions)
	}
}
