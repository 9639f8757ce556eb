// Package search turns queries into discovered domains. Four engines are
// supported: the Google Custom Search and Bing Web Search APIs, and HTML
// scraping fallbacks for both. A Chain sequences them with per-engine rate
// limiting and escalates past engines that block or rate-limit.
package search

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/jonesrussell/prospector/internal/domain"
)

// Engine names, recorded on each discovery for provenance.
const (
	EngineGoogleAPI    = "google_api"
	EngineGoogleScrape = "google_scrape"
	EngineBingAPI      = "bing_api"
	EngineBingScrape   = "bing_scrape"
)

// ErrBlocked is returned when an engine refuses the request outright, via
// a 403 or a captcha interstitial. The chain escalates to the next engine.
var ErrBlocked = errors.New("search: engine blocked request")

// ErrRateLimited is returned on a 429. The chain backs the engine off and
// escalates for the current query.
var ErrRateLimited = errors.New("search: engine rate limited")

// ErrNoEngines is returned when no engine is configured or every engine
// has been exhausted. It is fatal to the discovery run.
var ErrNoEngines = errors.New("search: no usable engines")

// Engine executes one search query and returns per-result domains.
type Engine interface {
	// Name identifies the engine in logs and discovery records.
	Name() string

	// Search runs query and returns up to maxResults results. Blocked and
	// rate-limited responses surface as ErrBlocked and ErrRateLimited.
	Search(ctx context.Context, query string, maxResults int) ([]domain.SearchResult, error)
}

// extractDomain pulls a registrable host out of a result URL. Scheme-less
// links and fragments yield an empty string.
func extractDomain(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if host == "" || !strings.Contains(host, ".") {
		return ""
	}
	return host
}
