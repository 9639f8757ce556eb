package cmd

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/prospector/internal/pipeline"
)

func newScheduleCmd() *cobra.Command {
	var cronSpec string

	cmd := &cobra.Command{
		Use:   "schedule [keywords...]",
		Short: "Run discovery on a recurring schedule",
		Long: `Schedule runs the discovery pipeline for the given keywords on a
cron schedule until interrupted. Each run picks up where the previous one
left off: cached vetting decisions are reused and completed crawls are
skipped, so recurring runs only pay for what changed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := buildDeps(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			spec := cronSpec
			if spec == "" {
				spec = d.cfg.Schedule.Cron
			}

			c := cron.New()
			_, err = c.AddFunc(spec, func() {
				summary, runErr := d.pipeline.Run(ctx, pipeline.Job{Keywords: args})
				if runErr != nil {
					d.log.Error("scheduled run failed", "error", runErr)
					return
				}
				d.log.Info("scheduled run finished",
					"run_id", summary.RunID,
					"discovered", summary.Discovered,
					"approved", summary.Approved,
					"crawled", summary.Crawled)
			})
			if err != nil {
				return fmt.Errorf("invalid cron spec %q: %w", spec, err)
			}

			d.log.Info("scheduler started", "cron", spec, "keywords", args)
			c.Start()
			<-ctx.Done()

			stopCtx := c.Stop()
			<-stopCtx.Done()
			d.log.Info("scheduler stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&cronSpec, "cron", "", "cron schedule (overrides config)")
	return cmd
}
