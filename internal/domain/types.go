// Package domain provides domain models used across the pipeline.
package domain

import "time"

// Query is a generated search query bound for one engine.
// Queries are ephemeral; they are never persisted.
type Query struct {
	Text   string `json:"text"`
	Family string `json:"family"`
	Engine string `json:"engine,omitempty"`
}

// SearchResult is a single normalized result from a search engine.
// Consumed immediately by the deduplicator; never persisted.
type SearchResult struct {
	Domain  string `json:"domain"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// DiscoveredDomain is one entry in the append-only discovery log.
type DiscoveredDomain struct {
	Domain       string    `json:"domain"`
	Query        string    `json:"query"`
	Engine       string    `json:"engine"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Vetting decision constants.
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
	DecisionUnclear  = "unclear"
)

// VettingRecord is the cached outcome of vetting one domain against one
// keyword context. Deterministic for identical inputs.
type VettingRecord struct {
	Domain            string         `json:"domain"`
	Decision          string         `json:"decision"`
	Reason            string         `json:"reason"`
	HasEcommerce      bool           `json:"has_ecommerce"`
	EcommerceKeywords []string       `json:"ecommerce_keywords,omitempty"`
	RelevanceScore    float64        `json:"relevance_score"`
	KeywordMatches    map[string]int `json:"keyword_matches,omitempty"`
	TotalMentions     int            `json:"total_mentions"`
	DecidedAt         time.Time      `json:"decided_at"`
}

// Approved reports whether the record's decision is approved.
func (r *VettingRecord) Approved() bool {
	return r.Decision == DecisionApproved
}

// Crawl status constants.
const (
	CrawlNotStarted = "not_started"
	CrawlInProgress = "in_progress"
	CrawlComplete   = "complete"
)

// CrawlState is the persisted per-domain crawl state. VisitedURLs and
// ContentHashes make resumed crawls idempotent; Complete is terminal.
type CrawlState struct {
	Domain        string     `json:"domain"`
	VisitedURLs   []string   `json:"visited_urls"`
	ContentHashes []string   `json:"content_hashes"`
	Complete      bool       `json:"complete"`
	PageCount     int        `json:"page_count"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Status returns the crawl status string for this state.
func (s *CrawlState) Status() string {
	switch {
	case s == nil || s.StartedAt == nil:
		return CrawlNotStarted
	case s.Complete:
		return CrawlComplete
	default:
		return CrawlInProgress
	}
}

// PageRecord is one crawled page appended to the corpus.
type PageRecord struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Domain      string    `json:"domain"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	Depth       int       `json:"depth"`
	CrawledAt   time.Time `json:"crawled_at"`
}

// DomainAlias records that Alias is brand-equivalent to Primary.
// Inserts are last-write-wins; concurrent discovery runs racing to insert
// the same alias is tolerated.
type DomainAlias struct {
	Primary    string    `json:"primary"`
	Alias      string    `json:"alias"`
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

// HomepageFingerprint holds features extracted from a domain's homepage,
// used to confirm brand matches across runs.
type HomepageFingerprint struct {
	Domain      string            `json:"domain"`
	CompanyName string            `json:"company_name"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Emails      []string          `json:"emails,omitempty"`
	Social      map[string]string `json:"social,omitempty"`
	ExtractedAt time.Time         `json:"extracted_at"`
}

// StageCounts exposes per-stage progress for external observability.
type StageCounts struct {
	Discovered      int `json:"discovered"`
	Approved        int `json:"approved"`
	Rejected        int `json:"rejected"`
	Aliased         int `json:"aliased"`
	CrawlComplete   int `json:"crawl_complete"`
	CrawlInProgress int `json:"crawl_in_progress"`
	CrawlNotStarted int `json:"crawl_not_started"`
}

// CrawledPercent returns the share of approved domains fully crawled,
// as a percentage.
func (c StageCounts) CrawledPercent() float64 {
	total := c.CrawlComplete + c.CrawlInProgress + c.CrawlNotStarted
	if total == 0 {
		return 0
	}
	return float64(c.CrawlComplete) / float64(total) * 100
}
