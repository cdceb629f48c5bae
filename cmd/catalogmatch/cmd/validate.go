package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/catalogmatch/internal/app"
	"github.com/Aman-CERP/catalogmatch/internal/output"
	"github.com/Aman-CERP/catalogmatch/internal/validation"
)

var errValidationFailed = errors.New("validation failed")

func newValidateCmd(g *globalOptions) *cobra.Command {
	var (
		topK       int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "validate <queries.yaml>",
		Short: "Check retrieval quality against a golden query set",
		Long: `Validate runs every query in a golden set through hybrid retrieval and
checks where the expected products rank.

  tier1     the expected product must rank first
  tier2     an expected product must be within --top-k
  negative  retrieval must succeed (the product is absent from the catalog)

No language model is called. Exits non-zero when any query fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			queries, err := validation.LoadQueries(args[0])
			if err != nil {
				return err
			}

			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			a, err := app.Open(ctx, cfg, app.RetrievalOnly())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			v, err := validation.NewValidator(a.Engine, topK)
			if err != nil {
				return err
			}
			res := v.RunAll(ctx, queries)

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else {
				printValidation(output.New(cmd.OutOrStdout()), res)
			}

			if res.Failed() {
				return errValidationFailed
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", validation.DefaultTopK, "Rank depth for tier 2 queries")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

func printValidation(out *output.Writer, res *validation.ValidationResult) {
	sections := []struct {
		name    string
		results []validation.TestResult
	}{
		{"Tier 1", res.Tier1},
		{"Tier 2", res.Tier2},
		{"Negative", res.Negative},
	}
	for _, s := range sections {
		if len(s.results) == 0 {
			continue
		}
		out.Status("", s.name)
		for _, tr := range s.results {
			label := fmt.Sprintf("%-10s %s", tr.Spec.ID, tr.Spec.Query)
			switch {
			case tr.Error != "":
				out.Errorf("%s: %s", label, tr.Error)
			case !tr.Passed:
				out.Errorf("%s: expected %v, got %v", label, tr.Spec.Expected, tr.TopResults)
			case tr.MatchedAt >= 0:
				out.Successf("%s (rank %d)", label, tr.MatchedAt+1)
			default:
				out.Success(label)
			}
		}
		out.Newline()
	}

	summary := fmt.Sprintf("tier1 %d/%d, tier2 %d/%d, negative %d/%d, MRR %.3f",
		res.Tier1Pass, res.Tier1Total, res.Tier2Pass, res.Tier2Total, res.NegPass, res.NegTotal, res.MRR)
	if res.Failed() {
		out.Warning(summary)
		return
	}
	out.Success(summary)
}
