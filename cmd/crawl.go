package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/prospector/internal/crawler"
)

func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl [domains...]",
		Short: "Crawl domains without running discovery",
		Long: `Crawl fetches the given domains into the page corpus. With no
arguments it crawls every approved domain whose crawl has not completed,
resuming interrupted crawls from their persisted state.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := buildDeps(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			stats, err := crawlStats(cmd, args, d)
			if err != nil {
				return err
			}
			fmt.Printf("crawled %d domains (%d already complete, %d failed)\n",
				stats.Crawled, stats.Skipped, stats.Failed)
			return nil
		},
	}
}

func crawlStats(cmd *cobra.Command, args []string, d *deps) (crawler.FleetStats, error) {
	if len(args) > 0 {
		return d.pipeline.CrawlDomains(cmd.Context(), args)
	}
	return d.pipeline.CrawlPending(cmd.Context())
}
