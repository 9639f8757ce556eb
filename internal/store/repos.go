package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jonesrussell/prospector/internal/domain"
)

// getJSON reads and decodes a JSON value from kv.
func getJSON[T any](ctx context.Context, kv KV, collection, key string) (*T, error) {
	raw, err := kv.Get(ctx, collection, key)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, key, err)
	}
	return &out, nil
}

// putJSON encodes and writes a JSON value into kv.
func putJSON(ctx context.Context, kv KV, collection, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, key, err)
	}
	return kv.Put(ctx, collection, key, raw)
}

// DomainLog records every discovered domain with the query and engine that
// surfaced it. A domain is written once; later sightings are ignored so the
// first discovery context is preserved.
type DomainLog struct {
	kv KV
}

// NewDomainLog returns a DomainLog backed by kv.
func NewDomainLog(kv KV) *DomainLog {
	return &DomainLog{kv: kv}
}

// Record writes the discovery record for d.Domain unless one already exists.
// It reports whether the domain was newly recorded.
func (l *DomainLog) Record(ctx context.Context, d *domain.DiscoveredDomain) (bool, error) {
	_, err := l.kv.Get(ctx, CollectionDomainLog, d.Domain)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, err
	}
	if err := putJSON(ctx, l.kv, CollectionDomainLog, d.Domain, d); err != nil {
		return false, err
	}
	return true, nil
}

// Get returns the discovery record for a domain.
func (l *DomainLog) Get(ctx context.Context, domainName string) (*domain.DiscoveredDomain, error) {
	return getJSON[domain.DiscoveredDomain](ctx, l.kv, CollectionDomainLog, domainName)
}

// All returns every recorded domain name.
func (l *DomainLog) All(ctx context.Context) ([]string, error) {
	return l.kv.Keys(ctx, CollectionDomainLog)
}

// VettingCache persists vetting decisions so a domain is never vetted twice.
type VettingCache struct {
	kv KV
}

// NewVettingCache returns a VettingCache backed by kv.
func NewVettingCache(kv KV) *VettingCache {
	return &VettingCache{kv: kv}
}

// Get returns the cached decision under key, or ErrNotFound. Keys combine
// the domain with a digest of the keyword set so changed keywords re-vet.
func (c *VettingCache) Get(ctx context.Context, key string) (*domain.VettingRecord, error) {
	return getJSON[domain.VettingRecord](ctx, c.kv, CollectionVetting, key)
}

// Put records a vetting decision under key.
func (c *VettingCache) Put(ctx context.Context, key string, rec *domain.VettingRecord) error {
	return putJSON(ctx, c.kv, CollectionVetting, key, rec)
}

// All returns every vetting record.
func (c *VettingCache) All(ctx context.Context) ([]*domain.VettingRecord, error) {
	keys, err := c.kv.Keys(ctx, CollectionVetting)
	if err != nil {
		return nil, err
	}
	records := make([]*domain.VettingRecord, 0, len(keys))
	for _, k := range keys {
		rec, err := c.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// VariantCache stores AI keyword expansions keyed by the seed keyword, so
// repeated runs reuse prior expansions instead of re-querying the model.
type VariantCache struct {
	kv KV
}

// NewVariantCache returns a VariantCache backed by kv.
func NewVariantCache(kv KV) *VariantCache {
	return &VariantCache{kv: kv}
}

// Get returns the cached variants for a keyword, or ErrNotFound.
func (c *VariantCache) Get(ctx context.Context, keyword string) ([]string, error) {
	out, err := getJSON[[]string](ctx, c.kv, CollectionVariants, keyword)
	if err != nil {
		return nil, err
	}
	return *out, nil
}

// Put stores the variants for a keyword.
func (c *VariantCache) Put(ctx context.Context, keyword string, variants []string) error {
	return putJSON(ctx, c.kv, CollectionVariants, keyword, variants)
}

// CrawlStateRepo persists per-domain crawl progress. State is written after
// every page batch so an interrupted crawl can resume without refetching.
type CrawlStateRepo struct {
	kv KV
}

// NewCrawlStateRepo returns a CrawlStateRepo backed by kv.
func NewCrawlStateRepo(kv KV) *CrawlStateRepo {
	return &CrawlStateRepo{kv: kv}
}

// Get returns the crawl state for a domain, or ErrNotFound when the domain
// has never been crawled.
func (r *CrawlStateRepo) Get(ctx context.Context, domainName string) (*domain.CrawlState, error) {
	return getJSON[domain.CrawlState](ctx, r.kv, CollectionCrawlState, domainName)
}

// Put persists the crawl state for a domain.
func (r *CrawlStateRepo) Put(ctx context.Context, state *domain.CrawlState) error {
	return putJSON(ctx, r.kv, CollectionCrawlState, state.Domain, state)
}

// All returns every stored crawl state.
func (r *CrawlStateRepo) All(ctx context.Context) ([]*domain.CrawlState, error) {
	keys, err := r.kv.Keys(ctx, CollectionCrawlState)
	if err != nil {
		return nil, err
	}
	states := make([]*domain.CrawlState, 0, len(keys))
	for _, k := range keys {
		state, err := r.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, nil
}

// AliasRepo records duplicate-domain relationships. Aliased domains are
// excluded from crawling; their primary carries the crawl.
type AliasRepo struct {
	kv KV
}

// NewAliasRepo returns an AliasRepo backed by kv.
func NewAliasRepo(kv KV) *AliasRepo {
	return &AliasRepo{kv: kv}
}

// Put records an alias. A later record for the same alias replaces the
// earlier one.
func (r *AliasRepo) Put(ctx context.Context, alias *domain.DomainAlias) error {
	return putJSON(ctx, r.kv, CollectionAliases, alias.Alias, alias)
}

// Get returns the alias record for a domain, or ErrNotFound when the domain
// is not aliased.
func (r *AliasRepo) Get(ctx context.Context, domainName string) (*domain.DomainAlias, error) {
	return getJSON[domain.DomainAlias](ctx, r.kv, CollectionAliases, domainName)
}

// IsAliased reports whether a domain has been recorded as someone's alias.
func (r *AliasRepo) IsAliased(ctx context.Context, domainName string) (bool, error) {
	_, err := r.Get(ctx, domainName)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// All returns every alias record.
func (r *AliasRepo) All(ctx context.Context) ([]*domain.DomainAlias, error) {
	keys, err := r.kv.Keys(ctx, CollectionAliases)
	if err != nil {
		return nil, err
	}
	aliases := make([]*domain.DomainAlias, 0, len(keys))
	for _, k := range keys {
		alias, err := r.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		aliases = append(aliases, alias)
	}
	return aliases, nil
}

// FingerprintRepo stores homepage fingerprints extracted at crawl completion,
// used later for duplicate detection across runs.
type FingerprintRepo struct {
	kv KV
}

// NewFingerprintRepo returns a FingerprintRepo backed by kv.
func NewFingerprintRepo(kv KV) *FingerprintRepo {
	return &FingerprintRepo{kv: kv}
}

// Put stores the fingerprint for a domain.
func (r *FingerprintRepo) Put(ctx context.Context, fp *domain.HomepageFingerprint) error {
	return putJSON(ctx, r.kv, CollectionFingerprints, fp.Domain, fp)
}

// Get returns the fingerprint for a domain, or ErrNotFound.
func (r *FingerprintRepo) Get(ctx context.Context, domainName string) (*domain.HomepageFingerprint, error) {
	return getJSON[domain.HomepageFingerprint](ctx, r.kv, CollectionFingerprints, domainName)
}
