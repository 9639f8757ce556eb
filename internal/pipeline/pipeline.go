// Package pipeline sequences the acquisition stages: query generation,
// search, deduplication, vetting, and crawling. Every stage reads and
// writes persisted state, so a rerun with the same keywords only does the
// remaining work.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/prospector/internal/ai"
	"github.com/jonesrussell/prospector/internal/config"
	"github.com/jonesrussell/prospector/internal/crawler"
	"github.com/jonesrussell/prospector/internal/dedup"
	"github.com/jonesrussell/prospector/internal/domain"
	"github.com/jonesrussell/prospector/internal/fetch"
	"github.com/jonesrussell/prospector/internal/logger"
	"github.com/jonesrussell/prospector/internal/proxy"
	"github.com/jonesrussell/prospector/internal/queries"
	"github.com/jonesrussell/prospector/internal/search"
	"github.com/jonesrussell/prospector/internal/store"
	"github.com/jonesrussell/prospector/internal/vetting"
)

// httpTimeout bounds every outbound request made by the pipeline.
const httpTimeout = 30 * time.Second

// Job is one discovery run request.
type Job struct {
	Keywords []string
}

// RunSummary reports what one discovery run did.
type RunSummary struct {
	RunID      string
	Queries    int
	Results    int
	Discovered int
	Duplicates int
	Aliased    int
	Approved   int
	Rejected   int
	Unclear    int
	Crawled    int
	Elapsed    time.Duration
}

// Pipeline wires the acquisition stages together. It owns the single
// http.Client whose connection pool is shared by every component.
type Pipeline struct {
	cfg *config.Config
	log logger.Interface

	httpClient *http.Client

	domains      *store.DomainLog
	vettingCache *store.VettingCache
	crawlStates  *store.CrawlStateRepo
	aliases      *store.AliasRepo

	proxies   *proxy.Manager
	generator *queries.Generator
	chain     *search.Chain
	vetter    *vetting.Vetter
	detector  *dedup.AliasDetector
	fleet     *crawler.Fleet
}

// New builds a Pipeline from configuration and the two stores. kv holds
// pipeline state (Redis in production, memory in tests); pages holds the
// crawled corpus.
func New(cfg *config.Config, kv store.KV, pages store.PageStore, log logger.Interface) *Pipeline {
	httpClient := &http.Client{
		Timeout: httpTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	fetcher := fetch.NewClient(httpClient)

	domainLog := store.NewDomainLog(kv)
	vettingCache := store.NewVettingCache(kv)
	variantCache := store.NewVariantCache(kv)
	crawlStates := store.NewCrawlStateRepo(kv)
	aliasRepo := store.NewAliasRepo(kv)
	fingerprintRepo := store.NewFingerprintRepo(kv)

	proxies := proxy.NewManager(cfg.Proxy.URLs, log)

	aiClient := ai.NewClient(ai.Config{
		APIKey:  cfg.AI.APIKey,
		Model:   cfg.AI.Model,
		BaseURL: cfg.AI.BaseURL,
	}, httpClient, log)

	generator := queries.NewGenerator(queries.Config{
		UseAIVariants:    cfg.Discovery.UseAIVariants,
		MaxQueries:       cfg.Discovery.MaxQueries,
		PerFamilyCap:     cfg.Discovery.PerFamilyCap,
		Intents:          cfg.Discovery.Intents,
		PlatformHints:    cfg.Discovery.PlatformHints,
		GeoTLDs:          cfg.Discovery.GeoTLDs,
		Regions:          cfg.Discovery.Regions,
		NegativeKeywords: cfg.Discovery.NegativeKeywords,
		Seed:             cfg.Discovery.Seed,
	}, aiClient, variantCache, log)

	chain := search.NewChain(buildEngines(cfg, fetcher, proxies, log), cfg.Search.MinDelay, log)

	vetter := vetting.NewVetter(vetting.Config{
		MinEcommerceKeywords: cfg.Vetting.MinEcommerceKeywords,
		MinRelevanceScore:    cfg.Vetting.MinRelevanceScore,
		MaxConcurrent:        cfg.Vetting.MaxConcurrent,
		Stagger:              cfg.Vetting.Stagger,
	}, fetcher, vettingCache, aiClient, log)

	detector := dedup.NewAliasDetector(fetcher, fingerprintRepo, aliasRepo, log)

	robots := crawler.NewRobots(httpClient, cfg.Crawl.UserAgent)
	crawl := crawler.New(crawler.Config{
		MaxPages:    cfg.Crawl.MaxPages,
		MaxDepth:    cfg.Crawl.MaxDepth,
		Concurrency: cfg.Crawl.Concurrency,
	}, fetcher, robots, crawlStates, pages, fingerprintRepo, log)
	fleet := crawler.NewFleet(crawl, cfg.Crawl.ParallelDomains, log)

	return &Pipeline{
		cfg:          cfg,
		log:          log,
		httpClient:   httpClient,
		domains:      domainLog,
		vettingCache: vettingCache,
		crawlStates:  crawlStates,
		aliases:      aliasRepo,
		proxies:      proxies,
		generator:    generator,
		chain:        chain,
		vetter:       vetter,
		detector:     detector,
		fleet:        fleet,
	}
}

// buildEngines assembles the engine fallback order from the configured
// credentials: paid APIs first, scrapers last.
func buildEngines(cfg *config.Config, fetcher *fetch.Client, proxies *proxy.Manager, log logger.Interface) []search.Engine {
	var engines []search.Engine
	if cfg.Search.GoogleAPIKey != "" && cfg.Search.GoogleCSEID != "" {
		engines = append(engines,
			search.NewGoogleAPI(fetcher, cfg.Search.GoogleAPIKey, cfg.Search.GoogleCSEID, cfg.Search.Region, log))
	}
	if cfg.Search.BingAPIKey != "" {
		engines = append(engines,
			search.NewBingAPI(fetcher, cfg.Search.BingAPIKey, cfg.Search.Region, log))
	}
	if cfg.Search.EnableScrape {
		engines = append(engines,
			search.NewGoogleScrape(fetcher, cfg.Search.Region, proxies, log),
			search.NewBingScrape(fetcher, proxies, log))
	}
	return engines
}

// Run executes one full discovery run for the job's keywords.
func (p *Pipeline) Run(ctx context.Context, job Job) (*RunSummary, error) {
	if len(job.Keywords) == 0 {
		return nil, errors.New("pipeline: no keywords")
	}
	start := time.Now()
	summary := &RunSummary{RunID: uuid.NewString()}
	p.log.Info("discovery run starting", "run_id", summary.RunID, "keywords", job.Keywords)

	if p.proxies.Enabled() {
		proberCtx, stopProber := context.WithCancel(ctx)
		defer stopProber()
		go p.proxies.RunProber(proberCtx)
	}

	queryList, variants, err := p.generator.Generate(ctx, job.Keywords)
	if err != nil {
		return nil, fmt.Errorf("generate queries: %w", err)
	}
	summary.Queries = len(queryList)

	candidates, err := p.discover(ctx, queryList, summary)
	if err != nil {
		return nil, err
	}

	fresh, err := p.filterAliases(ctx, candidates, summary)
	if err != nil {
		return nil, err
	}

	approved, err := p.vet(ctx, fresh, job.Keywords, variants, summary)
	if err != nil {
		return nil, err
	}

	stats, err := p.fleet.Run(ctx, approved)
	if err != nil {
		return nil, fmt.Errorf("crawl fleet: %w", err)
	}
	summary.Crawled = stats.Crawled

	summary.Elapsed = time.Since(start)
	p.log.Info("discovery run finished",
		"run_id", summary.RunID,
		"queries", summary.Queries,
		"discovered", summary.Discovered,
		"approved", summary.Approved,
		"crawled", summary.Crawled,
		"elapsed", summary.Elapsed)
	return summary, nil
}

// discover runs every query through the engine chain and collapses the
// results to one candidate per brand. Engine exhaustion is fatal; a single
// failed query is logged and skipped.
func (p *Pipeline) discover(ctx context.Context, queryList []string, summary *RunSummary) ([]string, error) {
	deduper := dedup.NewRunDeduper()
	var candidates []string

	for _, query := range queryList {
		results, engineName, err := p.chain.Search(ctx, query, p.cfg.Search.MaxResults)
		if err != nil {
			if errors.Is(err, search.ErrNoEngines) || ctx.Err() != nil {
				return nil, fmt.Errorf("search %q: %w", query, err)
			}
			p.log.Warn("query failed on every engine", "query", query, "error", err)
		}
		summary.Results += len(results)

		for _, result := range results {
			admitted, first := deduper.Admit(result.Domain)
			if !admitted {
				if first != result.Domain {
					summary.Duplicates++
				}
				continue
			}
			created, err := p.domains.Record(ctx, &domain.DiscoveredDomain{
				Domain:       result.Domain,
				Query:        query,
				Engine:       engineName,
				DiscoveredAt: time.Now().UTC(),
			})
			if err != nil {
				return nil, fmt.Errorf("record domain %s: %w", result.Domain, err)
			}
			if created {
				summary.Discovered++
			}
			candidates = append(candidates, result.Domain)
		}
	}
	return candidates, nil
}

// filterAliases drops candidates that are brand aliases of domains already
// crawled in earlier runs.
func (p *Pipeline) filterAliases(ctx context.Context, candidates []string, summary *RunSummary) ([]string, error) {
	states, err := p.crawlStates.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load crawl states: %w", err)
	}
	var crawled []string
	for _, state := range states {
		if state.Complete {
			crawled = append(crawled, state.Domain)
		}
	}

	var fresh []string
	for _, candidate := range candidates {
		aliased, err := p.aliases.IsAliased(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("alias lookup %s: %w", candidate, err)
		}
		others := excluding(crawled, candidate)
		if !aliased && len(others) > 0 {
			verdict, err := p.detector.Check(ctx, candidate, others)
			if err != nil {
				p.log.Warn("alias check failed", "domain", candidate, "error", err)
			} else if verdict.Duplicate {
				aliased = true
			}
		}
		if aliased {
			summary.Aliased++
			continue
		}
		fresh = append(fresh, candidate)
	}
	return fresh, nil
}

// excluding returns items without self, so a domain crawled in an earlier
// run is never alias-checked against itself.
func excluding(items []string, self string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item != self {
			out = append(out, item)
		}
	}
	return out
}

// vet scores every fresh candidate and returns the approved domains.
func (p *Pipeline) vet(ctx context.Context, domains, keywords, variants []string, summary *RunSummary) ([]string, error) {
	records, err := p.vetter.VetBatch(ctx, domains, keywords, variants)
	if err != nil {
		return nil, fmt.Errorf("vet batch: %w", err)
	}

	var approved []string
	for _, rec := range records {
		switch rec.Decision {
		case domain.DecisionApproved:
			summary.Approved++
			approved = append(approved, rec.Domain)
		case domain.DecisionRejected:
			summary.Rejected++
		default:
			summary.Unclear++
		}
	}
	return approved, nil
}

// CrawlDomains crawls the given domains through the fleet, skipping any
// that already completed.
func (p *Pipeline) CrawlDomains(ctx context.Context, domains []string) (crawler.FleetStats, error) {
	return p.fleet.Run(ctx, domains)
}

// CrawlPending crawls every approved domain whose crawl has not completed.
func (p *Pipeline) CrawlPending(ctx context.Context) (crawler.FleetStats, error) {
	records, err := p.vettingCache.All(ctx)
	if err != nil {
		return crawler.FleetStats{}, fmt.Errorf("load vetting records: %w", err)
	}

	done := make(map[string]struct{})
	states, err := p.crawlStates.All(ctx)
	if err != nil {
		return crawler.FleetStats{}, fmt.Errorf("load crawl states: %w", err)
	}
	for _, state := range states {
		if state.Complete {
			done[state.Domain] = struct{}{}
		}
	}

	seen := make(map[string]struct{})
	var pending []string
	for _, rec := range records {
		if !rec.Approved() {
			continue
		}
		if _, ok := done[rec.Domain]; ok {
			continue
		}
		if _, ok := seen[rec.Domain]; ok {
			continue
		}
		seen[rec.Domain] = struct{}{}
		pending = append(pending, rec.Domain)
	}
	if len(pending) == 0 {
		p.log.Info("no pending crawls")
		return crawler.FleetStats{}, nil
	}
	return p.fleet.Run(ctx, pending)
}

// Counts snapshots per-stage progress from the persisted state.
func (p *Pipeline) Counts(ctx context.Context) (domain.StageCounts, error) {
	var counts domain.StageCounts

	discovered, err := p.domains.All(ctx)
	if err != nil {
		return counts, fmt.Errorf("count discovered: %w", err)
	}
	counts.Discovered = len(discovered)

	aliases, err := p.aliases.All(ctx)
	if err != nil {
		return counts, fmt.Errorf("count aliases: %w", err)
	}
	counts.Aliased = len(aliases)

	records, err := p.vettingCache.All(ctx)
	if err != nil {
		return counts, fmt.Errorf("count vetting records: %w", err)
	}
	approvedDomains := make(map[string]struct{})
	for _, rec := range records {
		switch rec.Decision {
		case domain.DecisionApproved:
			counts.Approved++
			approvedDomains[rec.Domain] = struct{}{}
		case domain.DecisionRejected:
			counts.Rejected++
		}
	}

	states, err := p.crawlStates.All(ctx)
	if err != nil {
		return counts, fmt.Errorf("count crawl states: %w", err)
	}
	tracked := make(map[string]struct{}, len(states))
	for _, state := range states {
		tracked[state.Domain] = struct{}{}
		switch state.Status() {
		case domain.CrawlComplete:
			counts.CrawlComplete++
		case domain.CrawlInProgress:
			counts.CrawlInProgress++
		default:
			counts.CrawlNotStarted++
		}
	}
	for d := range approvedDomains {
		if _, ok := tracked[d]; !ok {
			counts.CrawlNotStarted++
		}
	}
	return counts, nil
}

// ProxyStats exposes the proxy pool health for the status command.
func (p *Pipeline) ProxyStats() proxy.Stats {
	return p.proxies.Stats()
}
