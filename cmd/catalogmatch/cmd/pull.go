package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/catalogmatch/internal/lifecycle"
	"github.com/Aman-CERP/catalogmatch/internal/output"
	"github.com/Aman-CERP/catalogmatch/internal/preflight"
)

func newPullCmd(g *globalOptions) *cobra.Command {
	var retrievalOnly bool
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Pull the Ollama models the configuration uses",
		Long: `Pull downloads every model the configured Ollama embedder and language
model need. Models that are already installed are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			hosts, models := preflight.OllamaModels(cfg, retrievalOnly)
			if len(hosts) == 0 {
				out.Status("", "No Ollama models configured")
				return nil
			}

			for _, host := range hosts {
				mgr := lifecycle.NewOllamaManager(host)
				if err := mgr.WaitForReady(cmd.Context(), wait); err != nil {
					return fmt.Errorf("ollama is not running at %s (start it with `ollama serve`): %w", host, err)
				}
				for _, model := range models[host] {
					out.Statusf("", "Pulling %s from %s", model, host)
					if err := mgr.PullModel(cmd.Context(), model, lifecycle.PullProgressPrinter(cmd.ErrOrStderr())); err != nil {
						return err
					}
					out.Successf("%s ready", model)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&retrievalOnly, "retrieval-only", false, "Only pull the embedding model")
	cmd.Flags().DurationVar(&wait, "wait", 5*time.Second, "How long to wait for Ollama to respond")

	return cmd
}
