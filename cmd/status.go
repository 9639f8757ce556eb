package cmd

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pipeline progress",
		Long: `Status reports per-stage counts from the persisted pipeline state:
discovered domains, vetting outcomes, alias skips, and crawl progress.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			d, err := buildDeps(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			counts, err := d.pipeline.Counts(ctx)
			if err != nil {
				return fmt.Errorf("collect counts: %w", err)
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"Stage", "Count"})
			t.AppendRows([]table.Row{
				{"Discovered", counts.Discovered},
				{"Approved", counts.Approved},
				{"Rejected", counts.Rejected},
				{"Aliased", counts.Aliased},
			})
			t.AppendSeparator()
			t.AppendRows([]table.Row{
				{"Crawl complete", counts.CrawlComplete},
				{"Crawl in progress", counts.CrawlInProgress},
				{"Crawl not started", counts.CrawlNotStarted},
			})
			t.AppendFooter(table.Row{"Crawled", fmt.Sprintf("%.1f%%", counts.CrawledPercent())})
			t.Render()

			if stats := d.pipeline.ProxyStats(); stats.Total > 0 {
				fmt.Printf("proxies: %d/%d healthy\n", stats.Healthy, stats.Total)
				for _, u := range stats.Unhealthy {
					fmt.Printf("  unhealthy: %s\n", u)
				}
			}
			return nil
		},
	}
}
