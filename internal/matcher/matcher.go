// Package matcher runs the batch pipeline: normalize the raw request,
// retrieve fused candidates for every query in parallel, ask the language
// model for one decision per query, then validate the decisions against
// the batch before anything is written.
package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/catalogmatch/internal/config"
	cmerrors "github.com/Aman-CERP/catalogmatch/internal/errors"
	"github.com/Aman-CERP/catalogmatch/internal/llm"
	"github.com/Aman-CERP/catalogmatch/internal/retrieval"
	"github.com/Aman-CERP/catalogmatch/internal/selection"
)

// DefaultParallelism caps concurrent per-query retrievals when unset.
const DefaultParallelism = 4

// Normalizer turns raw text into ordered queries.
type Normalizer interface {
	Normalize(ctx context.Context, raw string) ([]string, error)
}

// Retriever returns fused candidates for one query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (*retrieval.Result, error)
}

// Report is the outcome of one validated run.
type Report struct {
	RunID     string                `json:"run_id"`
	Queries   []string              `json:"queries"`
	Batch     []selection.BatchItem `json:"batch"`
	Decisions []selection.Decision  `json:"decisions"`
	Duration  time.Duration         `json:"duration_ns"`
}

// Degraded returns how many queries were answered without vector recall.
func (r *Report) Degraded() int {
	n := 0
	for _, item := range r.Batch {
		if item.Degraded {
			n++
		}
	}
	return n
}

// Matched returns how many decisions selected a product.
func (r *Report) Matched() int {
	n := 0
	for _, d := range r.Decisions {
		if d.Selected() {
			n++
		}
	}
	return n
}

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	normalizer Normalizer
	retriever  Retriever
	model      llm.LanguageModel

	parallelism      int
	strict           bool
	descriptionChars int
	logger           *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithParallelism caps concurrent retrievals.
func WithParallelism(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.parallelism = n
		}
	}
}

// WithStrictMembership rejects selections outside a query's candidates.
func WithStrictMembership(strict bool) Option {
	return func(o *Orchestrator) { o.strict = strict }
}

// WithDescriptionChars sets how much document text the prompt shows.
func WithDescriptionChars(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.descriptionChars = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// OptionsFrom maps the application config.
func OptionsFrom(cfg *config.Config) []Option {
	return []Option{
		WithParallelism(cfg.Retrieval.Parallelism),
		WithStrictMembership(cfg.Selection.StrictMembership),
		WithDescriptionChars(cfg.Selection.DescriptionChars),
	}
}

// New creates an Orchestrator. model is the selection model.
func New(normalizer Normalizer, retriever Retriever, model llm.LanguageModel, opts ...Option) (*Orchestrator, error) {
	if normalizer == nil || retriever == nil || model == nil {
		return nil, fmt.Errorf("matcher: %w", cmerrors.ErrNilDependency)
	}

	o := &Orchestrator{
		normalizer:       normalizer,
		retriever:        retriever,
		model:            model,
		parallelism:      DefaultParallelism,
		descriptionChars: selection.DefaultDescriptionChars,
		logger:           slog.Default().With("component", "matcher"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run executes the pipeline for raw. The report is returned only when
// every decision validated against the batch.
func (o *Orchestrator) Run(ctx context.Context, raw string) (*Report, error) {
	start := time.Now()
	runID := uuid.NewString()
	ctx = llm.WithTraceID(ctx, runID)
	logger := o.logger.With(slog.String("run_id", runID))

	queries, err := o.normalizer.Normalize(ctx, raw)
	if err != nil {
		return nil, err
	}
	logger.Info("run_started", slog.Int("queries", len(queries)))

	results, err := o.retrieveAll(ctx, queries)
	if err != nil {
		return nil, err
	}

	batch := make([]selection.BatchItem, len(results))
	for i, res := range results {
		batch[i] = selection.NewBatchItem(res, o.descriptionChars)
	}

	decisions, err := o.Select(ctx, batch)
	if err != nil {
		logger.Error("run_failed", cmerrors.LogAttrs(err)...)
		return nil, err
	}

	report := &Report{
		RunID:     runID,
		Queries:   queries,
		Batch:     batch,
		Decisions: decisions,
		Duration:  time.Since(start),
	}
	logger.Info("batch_validated",
		slog.Int("decisions", len(decisions)),
		slog.Int("matched", report.Matched()),
		slog.Int("degraded", report.Degraded()),
		slog.Duration("duration", report.Duration))
	return report, nil
}

// retrieveAll runs one retrieval per query. Results land in the slot of
// their query, so completion order does not matter.
func (o *Orchestrator) retrieveAll(ctx context.Context, queries []string) ([]*retrieval.Result, error) {
	results := make([]*retrieval.Result, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallelism)
	for i, q := range queries {
		g.Go(func() error {
			res, err := o.retriever.Retrieve(gctx, q)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return results, nil
}

// Select makes the single selection call for batch and returns decisions
// that passed parsing and validation.
func (o *Orchestrator) Select(ctx context.Context, batch []selection.BatchItem) ([]selection.Decision, error) {
	prompt := selection.BuildPrompt(batch)

	resp, err := o.model.Complete(llm.WithPurpose(ctx, llm.PurposeSelection), prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, cmerrors.NetworkError("selection model call failed", err).
			WithSuggestion("Check the language model endpoint and API key")
	}

	decisions, err := selection.ParseDecisions(resp)
	if err != nil {
		return nil, err
	}
	if err := selection.Validate(batch, decisions, o.strict); err != nil {
		return nil, err
	}
	return decisions, nil
}
