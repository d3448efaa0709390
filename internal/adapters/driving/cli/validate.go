package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-crawl/internal/core/domain"
)

func newValidateCmd(a *app) *cobra.Command {
	var (
		k      int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "validate <query>",
		Short: "Check retrieval quality end to end",
		Long: `Connects to the collection, embeds the query, searches for the top k
results and checks each one has a source URL and usable text.

Exits non-zero unless every stage succeeds and every result is valid.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := a.services(cmd.Context(), BuildOptions{})
			if err != nil {
				return err
			}
			defer release()

			report, err := svc.Retrieval.Validate(cmd.Context(), args[0], k)
			if err != nil {
				return err
			}

			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			} else {
				printReport(cmd, report)
			}

			if !report.Passed() {
				if report.FailedStage != "" {
					return fmt.Errorf("%s: %s", report.FailedStage, report.Error)
				}
				return fmt.Errorf("validation failed: %s", report.Outcome)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "k", "k", domain.DefaultSearchK, "number of results to check")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the report as JSON")
	return cmd
}

func printReport(cmd *cobra.Command, r *domain.ValidationReport) {
	out := cmd.OutOrStdout()

	if r.Collection != nil {
		fmt.Fprintf(out, "Collection %s: %d points, %d dims, %s\n",
			r.Collection.Name, r.Collection.PointCount, r.Collection.VectorSize, r.Collection.Distance)
	}
	fmt.Fprintf(out, "Query: %q (k=%d)\n\n", r.Query, r.K)

	for _, c := range r.Checks {
		mark := "ok"
		if !c.Valid {
			mark = "INVALID"
		}
		fmt.Fprintf(out, "  [%d] %.4f %s %s\n", c.Rank, c.Result.Score, mark, c.Result.SourceURL())
		if text := c.Result.Text(); text != "" {
			fmt.Fprintf(out, "      %s\n", truncate(text, 100))
		}
		for _, issue := range c.Issues {
			fmt.Fprintf(out, "      - %s\n", issue)
		}
	}

	fmt.Fprintf(out, "\nOutcome: %s (%d results, %d invalid) in %s\n",
		r.Outcome, r.ResultCount, r.InvalidCount(), r.Elapsed)
}
