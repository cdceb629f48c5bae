package cmd

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/catalogmatch/internal/preflight"
)

// errChecksFailed is returned after the report has been printed.
var errChecksFailed = errors.New("system check failed")

type doctorReport struct {
	Status string                  `json:"status"`
	Checks []preflight.CheckResult `json:"checks"`
}

func newDoctorCmd(g *globalOptions) *cobra.Command {
	var verbose, jsonOutput, retrievalOnly bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that catalogmatch is ready to run",
		Long: `Doctor validates the configuration, the data directory, the ingested
catalog, the embedder and, unless --retrieval-only, the language model
credentials and response cache.

Exits non-zero when a required check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}

			checker := preflight.New(cfg,
				preflight.WithRetrievalOnly(retrievalOnly),
				preflight.WithVerbose(verbose),
				preflight.WithOutput(cmd.OutOrStdout()),
			)
			results := checker.RunAll(cmd.Context())

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(doctorReport{Status: checker.SummaryStatus(results), Checks: results}); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}

			if checker.HasCriticalFailures(results) {
				return errChecksFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show check details")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVar(&retrievalOnly, "retrieval-only", false, "Skip language model and cache checks")

	return cmd
}
