package crawler

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/prospector/internal/logger"
)

// FleetStats summarizes one fleet run.
type FleetStats struct {
	Crawled int
	Skipped int
	Failed  int
}

// Fleet crawls many domains with a bounded number of in-flight crawls.
// A failed domain is logged and counted; it never stops the others.
type Fleet struct {
	crawler  *Crawler
	parallel int
	log      logger.Interface
}

// NewFleet returns a Fleet running at most parallel domain crawls at once.
func NewFleet(crawler *Crawler, parallel int, log logger.Interface) *Fleet {
	if parallel <= 0 {
		parallel = 3
	}
	return &Fleet{crawler: crawler, parallel: parallel, log: log}
}

// Run crawls every domain in domains and reports aggregate counts.
// It returns an error only when the context is cancelled.
func (f *Fleet) Run(ctx context.Context, domains []string) (FleetStats, error) {
	var crawled, skipped, failed atomic.Int64
	runStart := time.Now().UTC()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.parallel)
	for _, domainName := range domains {
		g.Go(func() error {
			state, err := f.crawler.CrawlDomain(gctx, domainName)
			switch {
			case gctx.Err() != nil:
				return gctx.Err()
			case err != nil:
				failed.Add(1)
				f.log.Error("domain crawl failed", "domain", domainName, "error", err)
				return nil
			case state.CompletedAt != nil && state.CompletedAt.Before(runStart):
				// Completed on an earlier run; nothing was fetched now.
				skipped.Add(1)
				return nil
			default:
				crawled.Add(1)
				return nil
			}
		})
	}
	err := g.Wait()

	stats := FleetStats{
		Crawled: int(crawled.Load()),
		Skipped: int(skipped.Load()),
		Failed:  int(failed.Load()),
	}
	f.log.Info("crawl fleet finished",
		"crawled", stats.Crawled,
		"skipped", stats.Skipped,
		"failed", stats.Failed)
	return stats, err
}
