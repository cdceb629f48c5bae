package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

const barWidth = 30

// BarRenderer redraws a single progress line in place.
type BarRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	styles Styles
	stage  Stage
	open   bool
}

// NewBarRenderer creates an in-place progress renderer.
func NewBarRenderer(cfg Config) *BarRenderer {
	return &BarRenderer{out: cfg.Output, styles: GetStyles(cfg.NoColor)}
}

// Start implements Renderer.
func (r *BarRenderer) Start(context.Context) error { return nil }

// Stop implements Renderer.
func (r *BarRenderer) Stop() error { return nil }

// UpdateProgress implements Renderer.
func (r *BarRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.open && event.Stage != r.stage {
		_, _ = fmt.Fprintln(r.out)
		r.open = false
	}
	r.stage = event.Stage

	label := r.styles.Stage.Render(fmt.Sprintf("%-9s", event.Stage.String()))
	if event.Total <= 0 {
		_, _ = fmt.Fprintf(r.out, "\r%s %s", label, event.Message)
		r.open = true
		return
	}

	pct := float64(event.Current) / float64(event.Total) * 100
	bar := r.styles.Progress.Render(RenderProgressBar(event.Current, event.Total, barWidth))
	_, _ = fmt.Fprintf(r.out, "\r%s [%s] %3.0f%% %d/%d", label, bar, pct, event.Current, event.Total)
	r.open = true
	if event.Current >= event.Total {
		_, _ = fmt.Fprintln(r.out)
		r.open = false
	}
}

// Complete implements Renderer.
func (r *BarRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.open {
		_, _ = fmt.Fprintln(r.out)
		r.open = false
	}
	writeSummary(r.out, stats, r.styles)
}

// RenderProgressBar creates a text progress bar.
func RenderProgressBar(current, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}

	filled := int(float64(current) / float64(total) * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
