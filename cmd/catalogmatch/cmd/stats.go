package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/catalogmatch/internal/output"
	"github.com/Aman-CERP/catalogmatch/internal/telemetry"
	"github.com/Aman-CERP/catalogmatch/internal/ui"
)

func newStatsCmd(g *globalOptions) *cobra.Command {
	var (
		jsonOutput bool
		since      time.Duration
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show match run history",
		Long: `Stats summarises the match runs recorded in the data directory: how many
queries found a catalog product, run latency, and the terms that most
often found nothing. Frequent unmatched terms usually point at products
missing from the catalog.`,
		Example: `  catalogmatch stats
  catalogmatch stats --since 168h --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if _, err := os.Stat(filepath.Join(cfg.Catalog.DataDir, telemetry.HistoryName)); err != nil {
				out.Warning("No match runs recorded yet")
				return nil
			}

			history, err := telemetry.OpenHistory(cmd.Context(), cfg.Catalog.DataDir)
			if err != nil {
				return err
			}
			defer func() { _ = history.Close() }()

			var from time.Time
			if since > 0 {
				from = time.Now().Add(-since)
			}
			snap, err := history.Snapshot(cmd.Context(), from, limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			printStats(cmd, snap)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().DurationVar(&since, "since", 0, "Only runs within this window (e.g. 24h)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Unmatched terms and queries to list")

	return cmd
}

func printStats(cmd *cobra.Command, snap *telemetry.Snapshot) {
	w := cmd.OutOrStdout()
	styles := ui.GetStyles(!ui.IsTTY(w) || ui.DetectNoColor())

	_, _ = fmt.Fprintln(w, styles.Header.Render("Match history"))
	if !snap.Since.IsZero() {
		_, _ = fmt.Fprintf(w, "  %s %s\n", styles.Label.Render("Since:"), snap.Since.Format(time.RFC3339))
	}
	_, _ = fmt.Fprintf(w, "  %s %d\n", styles.Label.Render("Runs:"), snap.Runs)
	_, _ = fmt.Fprintf(w, "  %s %d/%d (%.1f%%)\n", styles.Label.Render("Matched:"), snap.Matched, snap.Queries, snap.MatchRate())
	if snap.Degraded > 0 {
		_, _ = fmt.Fprintf(w, "  %s %s\n", styles.Label.Render("Degraded:"),
			styles.Warning.Render(fmt.Sprintf("%d queries without vector recall", snap.Degraded)))
	}

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, styles.Header.Render("Run latency"))
	for _, b := range telemetry.Buckets {
		count := snap.LatencyDistribution[b]
		bar := ui.RenderProgressBar(int(count), int(snap.Runs), 20)
		_, _ = fmt.Fprintf(w, "  %-6s %s %d\n", b, bar, count)
	}

	if len(snap.TopUnmatchedTerms) > 0 {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, styles.Header.Render("Top unmatched terms"))
		for _, tc := range snap.TopUnmatchedTerms {
			_, _ = fmt.Fprintf(w, "  %5d  %s\n", tc.Count, tc.Term)
		}
	}
	if len(snap.RecentUnmatched) > 0 {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, styles.Header.Render("Recent unmatched queries"))
		for _, q := range snap.RecentUnmatched {
			_, _ = fmt.Fprintf(w, "  %s %s\n", styles.Dim.Render("-"), q)
		}
	}
}
