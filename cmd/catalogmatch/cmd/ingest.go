package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/catalogmatch/internal/config"
	"github.com/Aman-CERP/catalogmatch/internal/embed"
	"github.com/Aman-CERP/catalogmatch/internal/ingest"
	"github.com/Aman-CERP/catalogmatch/internal/output"
	"github.com/Aman-CERP/catalogmatch/internal/ui"
	"github.com/Aman-CERP/catalogmatch/internal/watcher"
)

type ingestOptions struct {
	workers   int
	batchSize int
	plain     bool
	noColor   bool
	noTUI     bool
	watch     bool
}

func newIngestCmd(g *globalOptions) *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <catalog-file>",
		Short: "Embed a catalog and build the local snapshot",
		Long: `Ingest reads a catalog file (.csv, .json, .yaml), embeds the document
text of every entry and writes the catalog database and vector index to
the configured data directory.

Re-running ingest replaces the previous snapshot. With --watch, ingest
stays running and re-ingests whenever the catalog file changes.`,
		Example: `  catalogmatch ingest products.csv
  catalogmatch ingest products.json --workers 4 --plain
  catalogmatch ingest products.csv --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("batch-size") {
				opts.batchSize = cfg.Embeddings.BatchSize
			}

			embedder, err := embed.NewEmbedder(ctx, cfg.Embeddings)
			if err != nil {
				return fmt.Errorf("failed to create embedder: %w", err)
			}
			defer func() { _ = embedder.Close() }()

			run := func(interactive bool) error {
				return runIngest(ctx, cancel, cmd.OutOrStdout(), cfg, embedder, args[0], opts, interactive)
			}
			if !opts.watch {
				return run(true)
			}

			// The TUI would fight the watch loop for the terminal.
			if err := run(false); err != nil {
				return err
			}
			return watchCatalog(ctx, cmd.OutOrStdout(), args[0], func() error { return run(false) })
		},
	}

	defaultWorkers := runtime.NumCPU() / 2
	if defaultWorkers < 1 {
		defaultWorkers = 1
	}
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", defaultWorkers, "Concurrent embedding batches")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", embed.DefaultBatchSize, "Documents per embedding request (default from config)")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain progress output (no progress bar)")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "Single-line progress bar instead of the full view")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Re-ingest when the catalog file changes")

	return cmd
}

func runIngest(ctx context.Context, cancel context.CancelFunc, out io.Writer, cfg *config.Config,
	embedder embed.Embedder, catalogPath string, opts ingestOptions, interactive bool) error {
	renderer := ui.NewRenderer(ui.NewConfig(out,
		ui.WithForcePlain(opts.plain),
		ui.WithNoColor(opts.noColor || ui.DetectNoColor()),
		ui.WithNoTUI(opts.noTUI || !interactive),
		ui.WithTitle("catalogmatch ingest • "+catalogPath),
		ui.WithInterrupt(cancel),
	))
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = renderer.Stop() }()

	pipeline, err := ingest.NewPipeline(embedder,
		ingest.WithPoolSize(opts.workers),
		ingest.WithBatchSize(opts.batchSize),
		ingest.WithProgress(renderer.UpdateProgress),
		ingest.WithLogger(slog.Default().With("component", "ingest")),
	)
	if err != nil {
		return err
	}
	defer pipeline.Release()

	result, err := pipeline.Run(ctx, catalogPath, cfg.Catalog.DataDir)
	if err != nil {
		return err
	}

	provider := cfg.Embeddings.Provider
	if provider == "" {
		provider = string(embed.ProviderStatic)
	}
	renderer.Complete(ui.CompletionStats{
		Entries:  result.Entries,
		Duration: result.Duration,
		Embed:    result.Embed,
		Embedder: ui.EmbedderInfo{
			Backend:    provider,
			Model:      result.Model,
			Dimensions: result.Dimensions,
		},
	})
	return nil
}

// watchCatalog calls reingest after each change to path until ctx is done.
// A failed re-ingest is reported and the previous snapshot stays in place.
func watchCatalog(ctx context.Context, out io.Writer, path string, reingest func() error) error {
	w, err := watcher.New(path, watcher.Options{})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	o := output.New(out)
	mode := "fsnotify"
	if w.Polling() {
		mode = "polling"
	}
	o.Statusf("", "Watching %s for changes (%s, Ctrl+C to stop)", w.Path(), mode)

	for {
		select {
		case <-ctx.Done():
			<-errCh
			return nil
		case err := <-w.Errors():
			slog.Warn("catalog watcher error", slog.String("error", err.Error()))
		case event, ok := <-w.Events():
			if !ok {
				if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			}
			if event.Operation.Gone() {
				o.Warningf("%s was removed; keeping the previous snapshot", path)
				continue
			}
			slog.Info("catalog changed", slog.String("path", event.Path), slog.String("op", event.Operation.String()))
			if err := reingest(); err != nil {
				if ctx.Err() != nil {
					<-errCh
					return nil
				}
				o.Errorf("re-ingest failed: %v", err)
			}
		}
	}
}
