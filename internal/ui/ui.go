// Package ui renders ingestion progress to the terminal.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage is an ingestion stage.
type Stage int

const (
	// StageLoading reads and validates the catalog file.
	StageLoading Stage = iota
	// StageEmbedding embeds document text.
	StageEmbedding
	// StageIndexing writes the catalog database and vector index.
	StageIndexing
	// StageComplete indicates ingestion is complete.
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageLoading:
		return "Loading"
	case StageEmbedding:
		return "Embedding"
	case StageIndexing:
		return "Indexing"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage tag for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageLoading:
		return "LOAD"
	case StageEmbedding:
		return "EMBED"
	case StageIndexing:
		return "INDEX"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent represents a progress update.
type ProgressEvent struct {
	Stage   Stage
	Current int
	Total   int
	Message string
}

// EmbedderInfo describes the embedder used for a run.
type EmbedderInfo struct {
	Backend    string // "static", "ollama" or "openai"
	Model      string
	Dimensions int
}

// CompletionStats contains final ingestion statistics.
type CompletionStats struct {
	Entries  int
	Duration time.Duration
	Embed    time.Duration
	Embedder EmbedderInfo
}

// Renderer displays ingestion progress. Start must be called before the
// first update and Stop after Complete.
type Renderer interface {
	Start(ctx context.Context) error
	UpdateProgress(event ProgressEvent)
	Complete(stats CompletionStats)
	Stop() error
}

// Config configures the renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	NoTUI      bool
	Title      string

	// OnInterrupt is called when the user quits the TUI.
	OnInterrupt func()
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithNoTUI uses the single-line bar instead of the full-screen view.
func WithNoTUI(noTUI bool) ConfigOption {
	return func(c *Config) {
		c.NoTUI = noTUI
	}
}

// WithTitle sets the TUI panel title.
func WithTitle(title string) ConfigOption {
	return func(c *Config) {
		c.Title = title
	}
}

// WithInterrupt registers a callback for when the user quits the TUI.
func WithInterrupt(fn func()) ConfigOption {
	return func(c *Config) {
		c.OnInterrupt = fn
	}
}

// NewConfig creates a new Config with the given output and options.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer returns the TUI for interactive terminals, the bar renderer
// when the TUI is disabled, and a plain line renderer for CI, pipes, or
// when plain output is forced.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	if DetectNoColor() {
		cfg.NoColor = true
	}
	if !cfg.NoTUI {
		if r, err := NewTUIRenderer(cfg); err == nil {
			return r
		}
	}
	return NewBarRenderer(cfg)
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
