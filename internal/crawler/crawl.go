package crawler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/prospector/internal/dedup"
	"github.com/jonesrussell/prospector/internal/domain"
	"github.com/jonesrussell/prospector/internal/fetch"
	"github.com/jonesrussell/prospector/internal/logger"
	"github.com/jonesrussell/prospector/internal/store"
)

// Config bounds a per-domain crawl.
type Config struct {
	MaxPages    int
	MaxDepth    int
	Concurrency int
}

// DefaultConfig returns the crawl budget defaults.
func DefaultConfig() Config {
	return Config{
		MaxPages:    200,
		MaxDepth:    2,
		Concurrency: 5,
	}
}

// Polite delay between page batches on the same domain.
const (
	batchDelayMin = 200 * time.Millisecond
	batchDelayMax = 500 * time.Millisecond
)

// Crawler walks one domain at a time breadth-first. Crawl state is
// persisted after every batch; a crawl that stops mid-way resumes from the
// visited set instead of refetching.
type Crawler struct {
	cfg          Config
	client       *fetch.Client
	robots       *Robots
	states       *store.CrawlStateRepo
	pages        store.PageStore
	fingerprints *store.FingerprintRepo
	log          logger.Interface

	// pace is swapped out in tests to avoid real sleeps.
	pace func(ctx context.Context, d time.Duration) error
}

// New returns a Crawler.
func New(cfg Config, client *fetch.Client, robots *Robots, states *store.CrawlStateRepo, pages store.PageStore, fingerprints *store.FingerprintRepo, log logger.Interface) *Crawler {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 200
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 2
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	return &Crawler{
		cfg:          cfg,
		client:       client,
		robots:       robots,
		states:       states,
		pages:        pages,
		fingerprints: fingerprints,
		log:          log,
		pace:         sleepCtx,
	}
}

type frontierEntry struct {
	url   string
	depth int
}

// CrawlDomain crawls domainName up to the page and depth budgets. It is
// idempotent: completed domains return immediately, interrupted domains
// resume from persisted state.
func (c *Crawler) CrawlDomain(ctx context.Context, domainName string) (*domain.CrawlState, error) {
	state, err := c.loadState(ctx, domainName)
	if err != nil {
		return nil, err
	}
	if state.Complete {
		c.log.Debug("domain already crawled", "domain", domainName)
		return state, nil
	}
	if state.StartedAt == nil {
		now := time.Now().UTC()
		state.StartedAt = &now
	}

	visited := toSet(state.VisitedURLs)
	hashes := toSet(state.ContentHashes)

	rootURL := "https://" + domainName + "/"
	var queue []frontierEntry
	if canonical, err := Canonicalize(rootURL); err == nil {
		if _, seen := visited[canonical]; !seen {
			queue = append(queue, frontierEntry{url: canonical, depth: 0})
		}
	}

	var homepageHTML []byte
	for len(queue) > 0 && len(visited) < c.cfg.MaxPages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, rest := c.takeBatch(ctx, queue, visited, len(visited))
		queue = rest
		if len(batch) == 0 {
			break
		}

		results := c.fetchBatch(ctx, batch)
		for i, entry := range batch {
			res := results[i]
			if res == nil || res.Kind != fetch.KindOK {
				continue
			}
			if entry.depth == 0 && homepageHTML == nil {
				homepageHTML = res.Body
			}

			page, err := ExtractPage(entry.url, res.Body, entry.depth)
			if err != nil {
				c.log.Warn("page extraction failed", "url", entry.url, "error", err)
				continue
			}

			if _, dup := hashes[page.ContentHash]; !dup {
				hashes[page.ContentHash] = struct{}{}
				if err := c.indexPage(ctx, domainName, page, entry.depth); err != nil {
					return nil, err
				}
			}

			if entry.depth < c.cfg.MaxDepth {
				queue = append(queue, c.expandLinks(page.Links, domainName, entry.depth+1, visited)...)
			}
		}

		if err := c.persistState(ctx, state, visited, hashes, false); err != nil {
			return nil, err
		}
		if err := c.pace(ctx, batchDelayMin+time.Duration(rand.Int63n(int64(batchDelayMax-batchDelayMin)))); err != nil {
			return nil, err
		}
	}

	if err := c.persistState(ctx, state, visited, hashes, true); err != nil {
		return nil, err
	}
	c.log.Info("crawl complete",
		"domain", domainName,
		"visited", len(visited),
		"pages", len(hashes))

	c.storeFingerprint(ctx, domainName, homepageHTML)
	return state, nil
}

func (c *Crawler) loadState(ctx context.Context, domainName string) (*domain.CrawlState, error) {
	state, err := c.states.Get(ctx, domainName)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return &domain.CrawlState{Domain: domainName}, nil
}

// takeBatch pops up to Concurrency crawlable URLs off the frontier,
// marking them visited. Robots-disallowed and asset URLs are dropped.
func (c *Crawler) takeBatch(ctx context.Context, queue []frontierEntry, visited map[string]struct{}, visitedCount int) (batch, rest []frontierEntry) {
	rest = queue
	for len(rest) > 0 && len(batch) < c.cfg.Concurrency &&
		visitedCount+len(batch) < c.cfg.MaxPages {
		entry := rest[0]
		rest = rest[1:]

		if _, seen := visited[entry.url]; seen {
			continue
		}
		if SkippablePath(entry.url) {
			continue
		}
		if allowed, err := c.robots.Allowed(ctx, entry.url); err != nil || !allowed {
			continue
		}
		visited[entry.url] = struct{}{}
		batch = append(batch, entry)
	}
	return batch, rest
}

func (c *Crawler) fetchBatch(ctx context.Context, batch []frontierEntry) []*fetch.Result {
	results := make([]*fetch.Result, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	for i, entry := range batch {
		g.Go(func() error {
			err := fetch.Retry(gctx, func() (fetch.Kind, error) {
				req, reqErr := http.NewRequestWithContext(gctx, http.MethodGet, entry.url, nil)
				if reqErr != nil {
					return fetch.KindParseFailure, reqErr
				}
				res, fetchErr := c.client.Get(req, "")
				if fetchErr != nil {
					return res.Kind, fetchErr
				}
				results[i] = res
				return res.Kind, nil
			})
			if err != nil {
				c.log.Debug("page fetch failed", "url", entry.url, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Crawler) expandLinks(links []string, domainName string, depth int, visited map[string]struct{}) []frontierEntry {
	var entries []frontierEntry
	for _, link := range links {
		if !SameSite(link, domainName) {
			continue
		}
		canonical, err := Canonicalize(link)
		if err != nil {
			continue
		}
		if _, seen := visited[canonical]; seen {
			continue
		}
		entries = append(entries, frontierEntry{url: canonical, depth: depth})
	}
	return entries
}

func (c *Crawler) indexPage(ctx context.Context, domainName string, page *Page, depth int) error {
	id, err := PageID(page.URL)
	if err != nil {
		return err
	}
	record := &domain.PageRecord{
		ID:          id,
		URL:         page.URL,
		Domain:      domainName,
		Title:       page.Title,
		Content:     page.Text,
		ContentHash: page.ContentHash,
		Depth:       depth,
		CrawledAt:   time.Now().UTC(),
	}
	if err := c.pages.Index(ctx, record); err != nil {
		return fmt.Errorf("index page %s: %w", page.URL, err)
	}
	return nil
}

func (c *Crawler) persistState(ctx context.Context, state *domain.CrawlState, visited, hashes map[string]struct{}, complete bool) error {
	state.VisitedURLs = setToSlice(visited)
	state.ContentHashes = setToSlice(hashes)
	state.PageCount = len(hashes)
	state.Complete = complete
	if complete {
		now := time.Now().UTC()
		state.CompletedAt = &now
	}
	if err := c.states.Put(ctx, state); err != nil {
		return fmt.Errorf("persist crawl state for %s: %w", state.Domain, err)
	}
	return nil
}

// storeFingerprint caches the homepage identity for later alias detection.
// Failures are logged, not fatal: the crawl itself succeeded.
func (c *Crawler) storeFingerprint(ctx context.Context, domainName string, homepageHTML []byte) {
	if len(homepageHTML) == 0 {
		return
	}
	fp, err := dedup.ExtractFingerprint(homepageHTML, domainName)
	if err != nil {
		c.log.Warn("homepage fingerprint extraction failed", "domain", domainName, "error", err)
		return
	}
	if err := c.fingerprints.Put(ctx, fp); err != nil {
		c.log.Warn("homepage fingerprint store failed", "domain", domainName, "error", err)
	}
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for item := range set {
		out = append(out, item)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
