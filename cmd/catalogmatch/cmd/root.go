// Package cmd provides the CLI commands for catalogmatch.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/catalogmatch/internal/config"
	cmerrors "github.com/Aman-CERP/catalogmatch/internal/errors"
	"github.com/Aman-CERP/catalogmatch/internal/logging"
	"github.com/Aman-CERP/catalogmatch/internal/profiling"
	"github.com/Aman-CERP/catalogmatch/pkg/version"
)

// globalOptions holds the persistent flags and the state they start.
type globalOptions struct {
	debug     bool
	configDir string
	profile   profiling.Options

	session        *profiling.Session
	loggingCleanup func()
}

// NewRootCmd creates the root command for the catalogmatch CLI.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "catalogmatch",
		Short: "Match free-text product requests to a canonical catalog",
		Long: `catalogmatch maps noisy, multi-item product requests onto a canonical
product catalog.

Requests are split into one query per product by a language model, each
query is ranked against the catalog with hybrid semantic, keyword and
model-number scoring, and the language model then picks at most one
catalog product per query.

Start with 'catalogmatch ingest catalog.csv', then 'catalogmatch match'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("catalogmatch version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging to ~/.catalogmatch/logs/")
	cmd.PersistentFlags().StringVarP(&g.configDir, "config", "C", ".", "Project directory holding .catalogmatch.yaml and .env")
	cmd.PersistentFlags().StringVar(&g.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&g.profile.Mem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&g.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return g.start(cmd)
	}
	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		return g.stop()
	}

	cmd.AddCommand(newIngestCmd(g))
	cmd.AddCommand(newMatchCmd(g))
	cmd.AddCommand(newSearchCmd(g))
	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newStatsCmd(g))
	cmd.AddCommand(newValidateCmd(g))
	cmd.AddCommand(newDoctorCmd(g))
	cmd.AddCommand(newPullCmd(g))
	cmd.AddCommand(newConfigCmd(g))
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// start configures logging and profiling.
func (g *globalOptions) start(cmd *cobra.Command) error {
	logCfg := logging.DefaultConfig()
	if g.debug {
		logCfg = logging.DebugConfig()
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	g.loggingCleanup = cleanup
	slog.SetDefault(logger)
	if g.debug {
		slog.Info("debug_logging_enabled",
			slog.String("log_file", logCfg.FilePath),
			slog.String("version", version.Version),
			slog.String("command", cmd.CommandPath()))
	}

	if g.profile.Enabled() {
		session, err := profiling.Start(g.profile)
		if err != nil {
			return err
		}
		g.session = session
	}
	return nil
}

// stop flushes profiles and the log file.
func (g *globalOptions) stop() error {
	err := g.session.Stop()
	g.session = nil

	if g.loggingCleanup != nil {
		g.loggingCleanup()
		g.loggingCleanup = nil
	}
	if err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	return nil
}

// loadConfig loads configuration for the --config directory.
func (g *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.configDir)
	if err != nil {
		return nil, cmerrors.ConfigError("failed to load configuration", err).
			WithSuggestion("Run 'catalogmatch config show' to inspect the effective configuration")
	}
	return cfg, nil
}

// Execute runs the root command with Ctrl+C cancelling the context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	if err != nil {
		_, _ = fmt.Fprint(os.Stderr, cmerrors.FormatForCLI(err))
	}
	return err
}
