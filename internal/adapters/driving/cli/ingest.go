package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-crawl/internal/core/domain"
	"github.com/custodia-labs/sercha-crawl/internal/core/ports/driving"
)

func newIngestCmd(a *app) *cobra.Command {
	var (
		maxPages int
		dryRun   bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <url>",
		Short: "Crawl a site and store its chunks",
		Long: `Crawls same-origin pages breadth-first from the seed URL, normalises
and chunks each page, embeds the chunks and upserts them into the
configured collection.

With --dry-run the crawl and chunking run but nothing is embedded or stored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("max-pages") {
				if err := validatePositiveInt(maxPages, "max-pages"); err != nil {
					return err
				}
			}

			svc, release, err := a.services(cmd.Context(), BuildOptions{CrawlOnly: dryRun})
			if err != nil {
				return err
			}
			defer release()

			result, err := svc.Ingest.Ingest(cmd.Context(), args[0], driving.IngestOptions{
				MaxPages: maxPages,
				DryRun:   dryRun,
			})
			if result != nil {
				if asJSON {
					if jerr := writeJSON(cmd.OutOrStdout(), result); jerr != nil {
						return jerr
					}
				} else {
					printIngestResult(cmd, result)
				}
			}
			return err
		},
	}

	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "maximum pages to visit (default from config)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "crawl and chunk without embedding or storing")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the run summary as JSON")
	return cmd
}

func printIngestResult(cmd *cobra.Command, r *domain.IngestResult) {
	out := cmd.OutOrStdout()
	for _, p := range r.Pages {
		switch p.Status {
		case domain.PageIndexed:
			fmt.Fprintf(out, "  [%s] %s (%d chunks)\n", p.Status, p.URL, p.Chunks)
		default:
			fmt.Fprintf(out, "  [%s] %s: %s\n", p.Status, p.URL, p.Reason)
		}
	}

	mode := "stored"
	if r.DryRun {
		mode = "chunked (dry run)"
	}
	fmt.Fprintf(out, "\nVisited %d pages: %d indexed, %d skipped, %d failed\n",
		len(r.Visited), r.Count(domain.PageIndexed), r.Count(domain.PageSkipped), r.Count(domain.PageFailed))
	fmt.Fprintf(out, "%d chunks %s in %s\n", r.Chunks, mode, r.Took)
	if !r.DryRun && !r.Complete {
		fmt.Fprintln(out, "Ingestion incomplete: not every chunk was stored")
	}
}
