// Package app assembles the query-time stack from configuration: the
// ingested snapshot, lexical ranker, vector index, retrieval engine and,
// when matching, the language model pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/catalogmatch/internal/config"
	"github.com/Aman-CERP/catalogmatch/internal/embed"
	"github.com/Aman-CERP/catalogmatch/internal/ingest"
	"github.com/Aman-CERP/catalogmatch/internal/llm"
	"github.com/Aman-CERP/catalogmatch/internal/matcher"
	"github.com/Aman-CERP/catalogmatch/internal/normalize"
	"github.com/Aman-CERP/catalogmatch/internal/retrieval"
	"github.com/Aman-CERP/catalogmatch/internal/store"
)

// App holds the assembled components. Orchestrator is nil when the app
// was opened for retrieval only.
type App struct {
	Config       *config.Config
	Snapshot     *ingest.Snapshot
	Embedder     embed.Embedder
	Engine       *retrieval.Engine
	Model        llm.LanguageModel
	Orchestrator *matcher.Orchestrator

	lexical   store.LexicalRanker
	ownsModel bool
}

type options struct {
	retrievalOnly bool
	model         llm.LanguageModel
	embedder      embed.Embedder
	tracer        retrieval.Tracer
	logger        *slog.Logger
}

// Option configures Open.
type Option func(*options)

// RetrievalOnly skips the language model, so no API key is needed.
func RetrievalOnly() Option {
	return func(o *options) { o.retrievalOnly = true }
}

// WithModel uses model instead of the configured provider.
func WithModel(model llm.LanguageModel) Option {
	return func(o *options) { o.model = model }
}

// WithEmbedder uses embedder instead of the configured provider.
func WithEmbedder(embedder embed.Embedder) Option {
	return func(o *options) { o.embedder = embedder }
}

// WithTracer attaches a retrieval tracer.
func WithTracer(t retrieval.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithLogger sets the logger passed to components.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Open builds the stack for cfg. Close the App when done.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.Embedder = o.embedder
	if a.Embedder == nil {
		a.Embedder, err = embed.NewEmbedder(ctx, cfg.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
	}

	a.Snapshot, err = ingest.Open(ctx, cfg.Catalog.DataDir, a.Embedder)
	if err != nil {
		return nil, err
	}

	a.lexical, err = store.NewLexicalRanker(ctx, a.Snapshot.Corpus, cfg.Retrieval.LexicalBackend)
	if err != nil {
		return nil, fmt.Errorf("failed to build lexical index: %w", err)
	}

	index, err := retrieval.NewHNSWIndex(a.Snapshot.Corpus, a.Snapshot.Vectors, a.Embedder)
	if err != nil {
		return nil, err
	}

	engineOpts := []retrieval.EngineOption{retrieval.WithLogger(o.logger)}
	if o.tracer != nil {
		engineOpts = append(engineOpts, retrieval.WithTracer(o.tracer))
	}
	a.Engine, err = retrieval.NewEngine(a.Snapshot.Corpus, index, a.lexical, retrieval.ConfigFrom(cfg), engineOpts...)
	if err != nil {
		return nil, err
	}

	if o.retrievalOnly {
		return a, nil
	}

	a.Model = o.model
	if a.Model == nil {
		a.Model, err = llm.NewFromConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create language model: %w", err)
		}
		a.ownsModel = true
	}

	normalizer, err := normalize.New(a.Model)
	if err != nil {
		return nil, err
	}
	a.Orchestrator, err = matcher.New(normalizer, a.Engine, a.Model,
		append(matcher.OptionsFrom(cfg), matcher.WithLogger(o.logger.With("component", "matcher")))...)
	if err != nil {
		return nil, err
	}

	slog.Debug("app_opened",
		slog.Int("entries", a.Snapshot.Corpus.Len()),
		slog.String("embedder", a.Embedder.ModelName()),
		slog.String("lexical_backend", cfg.Retrieval.LexicalBackend),
		slog.Bool("retrieval_only", o.retrievalOnly))
	return a, nil
}

// Close releases everything Open created. A model passed with WithModel
// is left open.
func (a *App) Close() error {
	var errs []error
	if a.Model != nil && a.ownsModel {
		errs = append(errs, llm.Close(a.Model))
	}
	if a.lexical != nil {
		errs = append(errs, a.lexical.Close())
	}
	if a.Snapshot != nil {
		errs = append(errs, a.Snapshot.Close())
	}
	if a.Embedder != nil {
		errs = append(errs, a.Embedder.Close())
	}
	return errors.Join(errs...)
}
