package dedup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jonesrussell/prospector/internal/domain"
	"github.com/jonesrussell/prospector/internal/fetch"
	"github.com/jonesrussell/prospector/internal/logger"
	"github.com/jonesrussell/prospector/internal/store"
)

// duplicateThreshold is the combined pattern+fingerprint score at which a
// candidate is declared an alias of an existing domain.
const duplicateThreshold = 0.70

// Verdict is the outcome of an alias check.
type Verdict struct {
	Duplicate     bool
	Primary       string
	PatternScore  float64
	HomepageScore float64
	TotalScore    float64
}

// AliasDetector decides whether a newly approved domain is a second front
// for a business that was already crawled. Pattern matching against crawled
// domains runs first; candidates above the pattern floor get a homepage
// fingerprint comparison.
type AliasDetector struct {
	client       *fetch.Client
	fingerprints *store.FingerprintRepo
	aliases      *store.AliasRepo
	log          logger.Interface
}

// NewAliasDetector returns an AliasDetector.
func NewAliasDetector(client *fetch.Client, fingerprints *store.FingerprintRepo, aliases *store.AliasRepo, log logger.Interface) *AliasDetector {
	return &AliasDetector{
		client:       client,
		fingerprints: fingerprints,
		aliases:      aliases,
		log:          log,
	}
}

// Check compares candidate against crawledDomains. A duplicate verdict is
// recorded in the alias store so the candidate is skipped from crawling.
func (d *AliasDetector) Check(ctx context.Context, candidate string, crawledDomains []string) (*Verdict, error) {
	patternMatches := make(map[string]float64)
	for _, existing := range crawledDomains {
		if existing == candidate {
			continue
		}
		if score := PatternScore(candidate, existing); score >= patternCandidateMin {
			patternMatches[existing] = score
		}
	}
	if len(patternMatches) == 0 {
		return &Verdict{}, nil
	}

	candidateFP, err := d.fetchFingerprint(ctx, candidate)
	if err != nil {
		// Unreachable homepage: treat as unique rather than guessing.
		d.log.Warn("alias check skipped, homepage unreachable",
			"domain", candidate, "error", err)
		return &Verdict{}, nil
	}

	best := &Verdict{}
	for existing, patternScore := range patternMatches {
		existingFP, err := d.lookupFingerprint(ctx, existing)
		if err != nil {
			continue
		}
		homepageScore := CompareFingerprints(candidateFP, existingFP)
		total := patternScore + homepageScore
		if total > best.TotalScore {
			best = &Verdict{
				Primary:       existing,
				PatternScore:  patternScore,
				HomepageScore: homepageScore,
				TotalScore:    total,
			}
		}
	}

	if best.TotalScore >= duplicateThreshold {
		best.Duplicate = true
		if err := d.aliases.Put(ctx, &domain.DomainAlias{
			Primary:    best.Primary,
			Alias:      candidate,
			Confidence: best.TotalScore,
			Source:     "pattern+fingerprint",
			CreatedAt:  time.Now().UTC(),
		}); err != nil {
			return nil, fmt.Errorf("record alias %s -> %s: %w", candidate, best.Primary, err)
		}
		d.log.Info("duplicate domain detected",
			"alias", candidate,
			"primary", best.Primary,
			"score", best.TotalScore)
		return best, nil
	}

	// Unique: keep the fingerprint around for future comparisons.
	if err := d.fingerprints.Put(ctx, candidateFP); err != nil {
		d.log.Warn("fingerprint cache write failed", "domain", candidate, "error", err)
	}
	return best, nil
}

// lookupFingerprint returns the stored fingerprint for a domain, fetching
// and caching it when absent.
func (d *AliasDetector) lookupFingerprint(ctx context.Context, domainName string) (*domain.HomepageFingerprint, error) {
	fp, err := d.fingerprints.Get(ctx, domainName)
	if err == nil {
		return fp, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	fp, err = d.fetchFingerprint(ctx, domainName)
	if err != nil {
		return nil, err
	}
	if err := d.fingerprints.Put(ctx, fp); err != nil {
		d.log.Warn("fingerprint cache write failed", "domain", domainName, "error", err)
	}
	return fp, nil
}

func (d *AliasDetector) fetchFingerprint(ctx context.Context, domainName string) (*domain.HomepageFingerprint, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://"+domainName+"/", nil)
	if err != nil {
		return nil, fmt.Errorf("build homepage request: %w", err)
	}
	res, err := d.client.Get(req, "")
	if err != nil {
		return nil, fmt.Errorf("fetch homepage %s: %w", domainName, err)
	}
	if res.Kind != fetch.KindOK {
		return nil, fmt.Errorf("fetch homepage %s: status %d (%s)", domainName, res.StatusCode, res.Kind)
	}
	return ExtractFingerprint(res.Body, domainName)
}
