package cmd

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/catalogmatch/internal/app"
	"github.com/Aman-CERP/catalogmatch/internal/matcher"
	"github.com/Aman-CERP/catalogmatch/internal/output"
	"github.com/Aman-CERP/catalogmatch/internal/telemetry"
)

func newMatchCmd(g *globalOptions) *cobra.Command {
	var (
		inPath         string
		outPath        string
		candidatesPath string
		showCandidates bool
		quiet          bool
		noHistory      bool
	)

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match a free-text request file against the catalog",
		Long: `Match reads raw request text, splits it into one query per product,
retrieves ranked catalog candidates for every query and asks the language
model to select at most one product per query.

Decisions are written to the output file as a JSON array in input order.
Nothing is written when the model's answer fails validation.`,
		Example: `  catalogmatch match
  catalogmatch match -i request.txt -o decisions.json --candidates batch.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}

			a, err := app.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			report, err := a.Orchestrator.RunFile(ctx, inPath, outPath, matcher.FileOptions{
				CandidatesPath: candidatesPath,
			})
			if err != nil {
				return err
			}

			if !noHistory {
				recordRun(cmd, cfg.Catalog.DataDir, report)
			}

			out := output.New(cmd.OutOrStdout())
			if !quiet {
				out.Decisions(report, showCandidates)
				out.Newline()
			}
			out.Summary(report)
			out.Successf("Decisions written to %s", outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&inPath, "input", "i", "input.txt", "Raw request text file")
	cmd.Flags().StringVarP(&outPath, "output", "o", "output.txt", "Decision JSON output file")
	cmd.Flags().StringVar(&candidatesPath, "candidates", "", "Also write the candidate batch as JSON")
	cmd.Flags().BoolVar(&showCandidates, "show-candidates", false, "Print candidates under each decision")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print only the summary")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record this run in the local history")

	return cmd
}

// recordRun adds the run to the history database. Failures are logged
// and never fail the run.
func recordRun(cmd *cobra.Command, dataDir string, report *matcher.Report) {
	ctx := cmd.Context()
	history, err := telemetry.OpenHistory(ctx, dataDir)
	if err != nil {
		slog.Warn("history_unavailable", slog.String("error", err.Error()))
		return
	}
	defer func() { _ = history.Close() }()

	if err := history.Record(ctx, telemetry.FromReport(report, time.Now())); err != nil {
		slog.Warn("history_record_failed", slog.String("run_id", report.RunID), slog.String("error", err.Error()))
	}
}
