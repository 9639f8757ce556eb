package vetting

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/prospector/internal/domain"
	"github.com/jonesrussell/prospector/internal/fetch"
	"github.com/jonesrussell/prospector/internal/logger"
	"github.com/jonesrussell/prospector/internal/store"
)

// fallbackPaths are tried in order until one returns a usable page.
var fallbackPaths = []string{"", "/products", "/shop", "/about"}

const (
	maxFetchAttempts = 3

	// After this many 429 or 403 responses on one page the domain is
	// likely rate limiting or bot blocking; keep pushing and it gets
	// worse, so abandon the page.
	abandonAfterBlocks = 2

	staggerMin = 2 * time.Second
	staggerMax = 5 * time.Second

	betweenPagesDelay = 5 * time.Second
)

// Config controls vetting thresholds and pacing.
type Config struct {
	MinEcommerceKeywords int
	MinRelevanceScore    float64
	MaxConcurrent        int
	Stagger              bool
}

// DefaultConfig returns the vetting defaults.
func DefaultConfig() Config {
	return Config{
		MinEcommerceKeywords: 1,
		MinRelevanceScore:    0.2,
		MaxConcurrent:        5,
		Stagger:              true,
	}
}

// Classifier is the AI fallback for domains the rules and scores could not
// decide, normally the Gemini client.
type Classifier interface {
	Available() bool
	ClassifyRelevance(ctx context.Context, domainName, pageText string, keywords []string) (bool, error)
}

// Vetter fetches and scores domains, caching decisions between runs.
type Vetter struct {
	cfg        Config
	client     *fetch.Client
	cache      *store.VettingCache
	classifier Classifier
	log        logger.Interface

	// pace is swapped out in tests to avoid real sleeps.
	pace func(ctx context.Context, d time.Duration) error
}

// NewVetter returns a Vetter. classifier may be nil; unclear domains then
// fall back to the scored decision alone.
func NewVetter(cfg Config, client *fetch.Client, cache *store.VettingCache, classifier Classifier, log logger.Interface) *Vetter {
	if cfg.MinEcommerceKeywords <= 0 {
		cfg.MinEcommerceKeywords = 1
	}
	if cfg.MinRelevanceScore <= 0 {
		cfg.MinRelevanceScore = 0.2
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	return &Vetter{
		cfg:        cfg,
		client:     client,
		cache:      cache,
		classifier: classifier,
		log:        log,
		pace:       sleepCtx,
	}
}

// CacheKey identifies a vetting decision by domain and the keyword set it
// was made against, so changing keywords re-vets the domain.
func CacheKey(domainName string, keywords []string) string {
	normalized := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(kw)))
	}
	sort.Strings(normalized)
	sum := sha256.Sum256([]byte(strings.Join(normalized, "\n")))
	return domainName + ":" + hex.EncodeToString(sum[:8])
}

// Vet fetches and scores one domain against the keyword variants, without
// touching the cache. The decision is deterministic for identical inputs.
func (v *Vetter) Vet(ctx context.Context, domainName string, keywords, variants []string) *domain.VettingRecord {
	rec := &domain.VettingRecord{
		Domain:    domainName,
		DecidedAt: time.Now().UTC(),
	}

	domainScore := DomainNameRelevance(domainName, variants)

	html, pageURL, err := v.fetchContent(ctx, domainName)
	if err != nil {
		if domainScore >= v.cfg.MinRelevanceScore {
			rec.Decision = domain.DecisionApproved
			rec.Reason = fmt.Sprintf("fetch failed but domain name relevant (score %.2f)", domainScore)
			rec.HasEcommerce = true
			rec.EcommerceKeywords = []string{"domain-name-match"}
			rec.RelevanceScore = domainScore
			rec.KeywordMatches = map[string]int{"domain_name": 1}
			rec.TotalMentions = 1
			return rec
		}
		rec.Decision = domain.DecisionRejected
		rec.Reason = fmt.Sprintf("could not fetch any page and domain name not relevant (score %.2f)", domainScore)
		rec.RelevanceScore = domainScore
		return rec
	}

	hasEcom, found := EcommerceIndicators(html)
	rel := ScoreContent(html, variants)
	combined := max(rel.Score, domainScore)

	rec.HasEcommerce = hasEcom
	rec.EcommerceKeywords = found
	rec.RelevanceScore = combined
	rec.KeywordMatches = rel.Matches
	rec.TotalMentions = rel.TotalMentions

	approved := hasEcom &&
		len(found) >= v.cfg.MinEcommerceKeywords &&
		combined >= v.cfg.MinRelevanceScore

	switch {
	case approved:
		rec.Decision = domain.DecisionApproved
		boost := ""
		if domainScore > rel.Score {
			boost = " (domain name boost)"
		}
		rec.Reason = fmt.Sprintf("e-commerce indicators (%d) and relevant content (score %.2f)%s",
			len(found), combined, boost)
	case !hasEcom:
		rec.Decision = domain.DecisionRejected
		rec.Reason = fmt.Sprintf("no e-commerce indicators (need %d, found %d)",
			v.cfg.MinEcommerceKeywords, len(found))
	default:
		rec.Decision = domain.DecisionRejected
		rec.Reason = fmt.Sprintf("low keyword relevance (content %.2f, domain %.2f)",
			rel.Score, domainScore)
	}

	// Rule-unclear pages get one AI opinion before the reject stands.
	if rec.Decision == domain.DecisionRejected &&
		RuleVet(html, pageURL) == domain.DecisionUnclear &&
		v.classifier != nil && v.classifier.Available() {
		relevant, err := v.classifier.ClassifyRelevance(ctx, domainName, visibleText(html), keywords)
		if err != nil {
			v.log.Warn("ai classification failed", "domain", domainName, "error", err)
		} else if relevant {
			rec.Decision = domain.DecisionApproved
			rec.Reason = "approved by ai classification after unclear rule vet"
		} else {
			rec.Reason += "; ai classification confirmed reject"
		}
	}
	return rec
}

// VetCached returns the cached decision for the domain and keyword set, or
// vets it and stores the result.
func (v *Vetter) VetCached(ctx context.Context, domainName string, keywords, variants []string) (*domain.VettingRecord, error) {
	key := CacheKey(domainName, keywords)
	if cached, err := v.cache.Get(ctx, key); err == nil {
		return cached, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	rec := v.Vet(ctx, domainName, keywords, variants)
	if err := v.cache.Put(ctx, key, rec); err != nil {
		return nil, fmt.Errorf("cache vetting decision for %s: %w", domainName, err)
	}
	v.log.Info("vetted domain",
		"domain", domainName,
		"decision", rec.Decision,
		"score", rec.RelevanceScore)
	return rec, nil
}

// VetBatch vets domains concurrently with a bounded worker count and
// returns the records in input order.
func (v *Vetter) VetBatch(ctx context.Context, domains []string, keywords, variants []string) ([]*domain.VettingRecord, error) {
	records := make([]*domain.VettingRecord, len(domains))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.cfg.MaxConcurrent)
	for i, d := range domains {
		g.Go(func() error {
			rec, err := v.VetCached(gctx, d, keywords, variants)
			if err != nil {
				return err
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

// fetchContent fetches the first usable page for a domain, walking the
// fallback paths with bounded escalating backoff on rate limits and
// blocks.
func (v *Vetter) fetchContent(ctx context.Context, domainName string) ([]byte, string, error) {
	if v.cfg.Stagger {
		if err := v.pace(ctx, staggerMin+time.Duration(rand.Int63n(int64(staggerMax-staggerMin)))); err != nil {
			return nil, "", err
		}
	}

	for pathIdx, path := range fallbackPaths {
		pageURL := "https://" + domainName + path
		blocks := 0

		for attempt := 0; attempt < maxFetchAttempts; attempt++ {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
			if err != nil {
				return nil, "", fmt.Errorf("build request for %s: %w", pageURL, err)
			}
			res, err := v.client.Get(req, "")
			if err != nil {
				if ctx.Err() != nil {
					return nil, "", ctx.Err()
				}
				if err := v.pace(ctx, backoffDelay(attempt, fetch.KindNetwork)); err != nil {
					return nil, "", err
				}
				continue
			}

			switch res.Kind {
			case fetch.KindOK:
				return res.Body, res.FinalURL, nil
			case fetch.KindRateLimited, fetch.KindBlocked:
				blocks++
				if blocks >= abandonAfterBlocks {
					v.log.Warn("abandoning page after repeated blocks",
						"url", pageURL, "status", res.StatusCode)
					goto nextPage
				}
				if err := v.pace(ctx, backoffDelay(attempt, res.Kind)); err != nil {
					return nil, "", err
				}
			case fetch.KindTimeout, fetch.KindNetwork:
				if err := v.pace(ctx, backoffDelay(attempt, res.Kind)); err != nil {
					return nil, "", err
				}
			default:
				// Other 4xx/5xx: this path will not recover, try the next.
				goto nextPage
			}
		}

	nextPage:
		if pathIdx < len(fallbackPaths)-1 {
			if err := v.pace(ctx, betweenPagesDelay); err != nil {
				return nil, "", err
			}
		}
	}
	return nil, "", fmt.Errorf("all fetch attempts failed for %s", domainName)
}

// backoffDelay escalates per attempt; rate limits wait longest.
func backoffDelay(attempt int, kind fetch.Kind) time.Duration {
	base := time.Duration(1<<attempt) * time.Second
	switch kind {
	case fetch.KindRateLimited:
		return 10*time.Second + base*5
	case fetch.KindBlocked:
		return 5*time.Second + base*3
	default:
		return base
	}
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
