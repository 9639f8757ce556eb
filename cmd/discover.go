package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/prospector/internal/pipeline"
)

func newDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover [keywords...]",
		Short: "Run a full discovery pipeline for the given keywords",
		Long: `Discover generates search queries from the keywords, collects and
deduplicates results across engines, vets every new domain, and crawls
the approved ones. Rerunning with the same keywords only does the
remaining work.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := buildDeps(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			summary, err := d.pipeline.Run(ctx, pipeline.Job{Keywords: args})
			if err != nil {
				return fmt.Errorf("discovery run: %w", err)
			}

			fmt.Printf("run %s finished in %s\n", summary.RunID, summary.Elapsed.Round(0))
			fmt.Printf("  queries:    %d\n", summary.Queries)
			fmt.Printf("  results:    %d\n", summary.Results)
			fmt.Printf("  discovered: %d (+%d brand duplicates, %d aliases)\n",
				summary.Discovered, summary.Duplicates, summary.Aliased)
			fmt.Printf("  vetted:     %d approved, %d rejected, %d unclear\n",
				summary.Approved, summary.Rejected, summary.Unclear)
			fmt.Printf("  crawled:    %d\n", summary.Crawled)
			return nil
		},
	}
}
