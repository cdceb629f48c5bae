package cmd

import (
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/catalogmatch/internal/logging"
)

type logsOptions struct {
	follow    bool
	lines     int
	level     string
	filter    string
	productID string
	noColor   bool
	logFile   string
}

func newLogsCmd() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View catalogmatch logs",
		Long: `View and tail the catalogmatch debug log (~/.catalogmatch/logs/catalogmatch.log).

Logs are written when a command runs with --debug, and by 'serve' over stdio.`,
		Example: `  catalogmatch logs                      # last 50 lines
  catalogmatch logs -f                   # follow in real time
  catalogmatch logs --level warn         # warnings and errors only
  catalogmatch logs --product PSU-0007   # one product's retrieval trace`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum log level (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Filter by keyword/pattern (regex)")
	cmd.Flags().StringVar(&opts.productID, "product", "", "Only entries for this product_id")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&opts.logFile, "file", "", "Path to log file")

	return cmd
}

func runLogs(cmd *cobra.Command, opts logsOptions) error {
	path, err := logging.FindLogFile(opts.logFile)
	if err != nil {
		return err
	}

	var pattern *regexp.Regexp
	if opts.filter != "" {
		pattern, err = regexp.Compile(opts.filter)
		if err != nil {
			return fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:     opts.level,
		Pattern:   pattern,
		ProductID: opts.productID,
		NoColor:   opts.noColor,
	}, out)

	stderr := cmd.ErrOrStderr()
	_, _ = fmt.Fprintf(stderr, "Log file: %s\n", path)
	if opts.follow {
		_, _ = fmt.Fprintln(stderr, "Following... (Ctrl+C to stop)")
	}
	_, _ = fmt.Fprintln(stderr, "---")

	if !opts.follow {
		entries, err := viewer.Tail(path, opts.lines)
		if err != nil {
			return err
		}
		viewer.Print(entries)
		return nil
	}

	ctx := cmd.Context()
	entries := make(chan logging.LogEntry, 100)
	errCh := make(chan error, 1)
	go func() {
		errCh <- viewer.Follow(ctx, path, entries)
	}()

	for {
		select {
		case entry := <-entries:
			_, _ = fmt.Fprintln(out, viewer.FormatEntry(entry))
		case err := <-errCh:
			return err
		case <-ctx.Done():
			_, _ = fmt.Fprintln(stderr, "\n---")
			_, _ = fmt.Fprintln(stderr, "Stopped.")
			return nil
		}
	}
}
