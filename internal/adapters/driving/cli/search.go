package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-crawl/internal/core/domain"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		k      int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search stored chunks",
		Long:  `Embeds the query and returns the k nearest chunks with their scores and sources.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := a.services(cmd.Context(), BuildOptions{})
			if err != nil {
				return err
			}
			defer release()

			resp, err := svc.Retrieval.Search(cmd.Context(), args[0], k)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			printResults(cmd, resp)
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "k", "k", domain.DefaultSearchK, "maximum number of results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output results as JSON")
	return cmd
}

func printResults(cmd *cobra.Command, resp *domain.SearchResponse) {
	out := cmd.OutOrStdout()
	if len(resp.Results) == 0 {
		fmt.Fprintln(out, "No results found.")
		return
	}

	fmt.Fprintln(out, "Results:")
	fmt.Fprintln(out)
	for i, r := range resp.Results {
		title := r.Title()
		if title == "" {
			title = r.ID
		}
		fmt.Fprintf(out, "  [%d] %s (%.4f)\n", i+1, title, r.Score)
		if src := r.SourceURL(); src != "" {
			fmt.Fprintf(out, "      Source: %s\n", src)
		}
		if text := r.Text(); text != "" {
			fmt.Fprintf(out, "      %s\n", truncate(text, 160))
		}
		fmt.Fprintln(out)
	}
}
