package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/catalogmatch/internal/app"
	"github.com/Aman-CERP/catalogmatch/internal/mcpserver"
	"github.com/Aman-CERP/catalogmatch/internal/output"
	"github.com/Aman-CERP/catalogmatch/internal/retrieval"
)

func newSearchCmd(g *globalOptions) *cobra.Command {
	var (
		format string
		limit  int
		trace  bool
		watch  []string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Rank catalog candidates for one query",
		Long: `Search runs hybrid retrieval for a single query and prints the fused
candidates with their semantic distance, keyword score and model-number
match. No language model is called.

Use --trace to log every recall and scoring step to stderr.`,
		Example: `  catalogmatch search "seasonic focus 750w psu"
  catalogmatch search "ryzen 7 7800x3d" --format json --limit 5
  catalogmatch search "rtx 4070" --trace --watch GPU-0042`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			query := strings.Join(args, " ")

			if format != "text" && format != "json" {
				return fmt.Errorf("invalid format %q: must be text or json", format)
			}

			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}

			opts := []app.Option{app.RetrievalOnly()}
			if trace || len(watch) > 0 {
				traceLogger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
				opts = append(opts, app.WithTracer(retrieval.NewLogTracer(traceLogger, watch...)))
			}

			a, err := app.Open(ctx, cfg, opts...)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			res, err := a.Engine.Retrieve(ctx, query)
			if err != nil {
				return err
			}

			if format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(mcpserver.ToSearchOutput(res, limit))
			}

			output.New(cmd.OutOrStdout()).Candidates(res, limit)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text or json")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum candidates to print (0 = top_k)")
	cmd.Flags().BoolVar(&trace, "trace", false, "Log retrieval steps to stderr")
	cmd.Flags().StringSliceVar(&watch, "watch", nil, "Trace only these product IDs (implies --trace)")

	return cmd
}
