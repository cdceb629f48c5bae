package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/catalogmatch/internal/config"
	"github.com/Aman-CERP/catalogmatch/internal/embed"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status by name in JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker performs preflight validation checks.
type Checker struct {
	cfg       *config.Config
	embedder  embed.Embedder
	skipModel bool
	verbose   bool
	output    io.Writer
}

// Option configures a Checker.
type Option func(*Checker)

// WithEmbedder probes embedder instead of building one from config.
func WithEmbedder(e embed.Embedder) Option {
	return func(c *Checker) {
		c.embedder = e
	}
}

// WithRetrievalOnly skips the language model checks.
func WithRetrievalOnly(skip bool) Option {
	return func(c *Checker) {
		c.skipModel = skip
	}
}

// WithVerbose enables verbose output.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// New creates a new Checker for cfg.
func New(cfg *config.Config, opts ...Option) *Checker {
	c := &Checker{
		cfg:    cfg,
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs all preflight checks and returns the results.
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	dataDir := c.cfg.Catalog.DataDir

	results := []CheckResult{
		c.CheckConfig(),
		c.CheckDiskSpace(dataDir),
		c.CheckWritePermissions(dataDir),
		c.CheckFileDescriptors(),
	}

	state, catalogResult := c.CheckCatalog(ctx, dataDir)
	results = append(results, catalogResult)

	if hosts, _ := OllamaModels(c.cfg, c.skipModel); len(hosts) > 0 {
		results = append(results, c.CheckOllama(ctx))
	}
	results = append(results, c.CheckEmbedder(ctx, state))

	if !c.skipModel {
		results = append(results, c.CheckLLMCredentials())
		results = append(results, c.CheckCache(ctx))
	}

	return results
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns a summary status string for the results.
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	hasCriticalFailure := false

	for _, r := range results {
		if r.IsCritical() {
			hasCriticalFailure = true
		}
		if r.Status == StatusWarn || (r.Status == StatusFail && !r.Required) {
			hasWarnings = true
		}
	}

	if hasCriticalFailure {
		return "failed"
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	_, _ = fmt.Fprintln(c.output, "catalogmatch system check")
	_, _ = fmt.Fprintln(c.output, "=========================")
	_, _ = fmt.Fprintln(c.output)

	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			_, _ = fmt.Fprintf(c.output, "      %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(c.output)
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(c.SummaryStatus(results)))

	var warnings, errors []string
	for _, r := range results {
		if r.IsCritical() {
			errors = append(errors, r.Name+": "+r.Message)
		} else if r.Status != StatusPass {
			warnings = append(warnings, r.Name+": "+r.Message)
		}
	}

	if len(errors) > 0 {
		_, _ = fmt.Fprintln(c.output)
		_, _ = fmt.Fprintf(c.output, "%d error(s):\n", len(errors))
		for _, e := range errors {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", e)
		}
	}

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(c.output)
		_, _ = fmt.Fprintf(c.output, "%d warning(s):\n", len(warnings))
		for _, w := range warnings {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", w)
		}
	}
}

// CheckConfig validates the effective configuration.
func (c *Checker) CheckConfig() CheckResult {
	result := CheckResult{Name: "config", Required: true}

	if err := c.cfg.Validate(); err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("valid (lexical=%s, embeddings=%s, llm=%s)",
		c.cfg.Retrieval.LexicalBackend, c.cfg.Embeddings.Provider, c.cfg.LLM.Provider)
	return result
}

// CheckWritePermissions checks that the data directory, or its nearest
// existing parent, is writable.
func (c *Checker) CheckWritePermissions(dataDir string) CheckResult {
	result := CheckResult{
		Name:     "write_permissions",
		Required: true,
	}

	dir := existingDir(dataDir)
	f, err := os.CreateTemp(dir, ".catalogmatch-preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	result.Status = StatusPass
	result.Message = "OK"
	result.Details = dir
	return result
}

// existingDir walks up from path to the first directory that exists.
func existingDir(path string) string {
	dir := filepath.Clean(path)
	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
