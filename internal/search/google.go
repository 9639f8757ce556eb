package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/prospector/internal/domain"
	"github.com/jonesrussell/prospector/internal/fetch"
	"github.com/jonesrussell/prospector/internal/logger"
)

const (
	googleAPIURL    = "https://www.googleapis.com/customsearch/v1"
	googleSearchURL = "https://www.google.com/search"
	googlePageSize  = 10
)

// GoogleAPI searches via the Google Custom Search JSON API.
type GoogleAPI struct {
	client *fetch.Client
	apiKey string
	cx     string
	region string
	log    logger.Interface
}

// NewGoogleAPI returns a Google Custom Search engine. apiKey and cx are the
// API key and programmable search engine ID.
func NewGoogleAPI(client *fetch.Client, apiKey, cx, region string, log logger.Interface) *GoogleAPI {
	return &GoogleAPI{client: client, apiKey: apiKey, cx: cx, region: region, log: log}
}

// Name implements Engine.
func (g *GoogleAPI) Name() string { return EngineGoogleAPI }

type googleAPIResponse struct {
	Items []struct {
		Link    string `json:"link"`
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
	} `json:"items"`
	Queries struct {
		NextPage []struct {
			StartIndex int `json:"startIndex"`
		} `json:"nextPage"`
	} `json:"queries"`
}

// Search implements Engine, paging through the API ten results at a time.
func (g *GoogleAPI) Search(ctx context.Context, query string, maxResults int) ([]domain.SearchResult, error) {
	var results []domain.SearchResult
	start := 1
	for len(results) < maxResults {
		params := url.Values{}
		params.Set("key", g.apiKey)
		params.Set("cx", g.cx)
		params.Set("q", query)
		params.Set("start", strconv.Itoa(start))
		params.Set("num", strconv.Itoa(min(googlePageSize, maxResults-len(results))))
		if g.region != "" {
			params.Set("gl", strings.ToLower(g.region))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleAPIURL+"?"+params.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("build google api request: %w", err)
		}
		res, err := g.client.Get(req, "")
		if err != nil {
			return nil, fmt.Errorf("google api request: %w", err)
		}
		if err := classifyEngineOutcome(res); err != nil {
			return results, err
		}

		var page googleAPIResponse
		if err := json.Unmarshal(res.Body, &page); err != nil {
			return nil, fmt.Errorf("decode google api response: %w", err)
		}
		for _, item := range page.Items {
			host := extractDomain(item.Link)
			if host == "" {
				continue
			}
			results = append(results, domain.SearchResult{
				Domain:  host,
				URL:     item.Link,
				Title:   item.Title,
				Snippet: item.Snippet,
				Source:  g.Name(),
			})
		}
		if len(page.Queries.NextPage) == 0 {
			break
		}
		start = page.Queries.NextPage[0].StartIndex
	}
	return capResults(results, maxResults), nil
}

// GoogleScrape searches by fetching and parsing Google result pages. It is
// the fallback when no API key is configured; responses are parsed with
// several selector strategies because the markup shifts frequently.
type GoogleScrape struct {
	client *fetch.Client
	region string
	proxy  ProxySource
	log    logger.Interface
}

// ProxySource supplies outbound proxies for scrape engines. A nil source
// or an exhausted pool means direct connections.
type ProxySource interface {
	Next() (string, error)
	MarkSuccess(proxyURL string)
	MarkFailure(proxyURL string)
}

// NewGoogleScrape returns a scraping Google engine. proxy may be nil.
func NewGoogleScrape(client *fetch.Client, region string, proxy ProxySource, log logger.Interface) *GoogleScrape {
	return &GoogleScrape{client: client, region: region, proxy: proxy, log: log}
}

// Name implements Engine.
func (g *GoogleScrape) Name() string { return EngineGoogleScrape }

// Search implements Engine.
func (g *GoogleScrape) Search(ctx context.Context, query string, maxResults int) ([]domain.SearchResult, error) {
	var results []domain.SearchResult
	pages := (maxResults + googlePageSize - 1) / googlePageSize
	for page := 0; page < pages && len(results) < maxResults; page++ {
		params := url.Values{}
		params.Set("q", query)
		params.Set("start", strconv.Itoa(page*googlePageSize))
		params.Set("num", strconv.Itoa(googlePageSize))
		if g.region != "" {
			params.Set("gl", strings.ToLower(g.region))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleSearchURL+"?"+params.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("build google scrape request: %w", err)
		}
		res, err := fetchThroughProxy(g.client, g.proxy, req)
		if err != nil {
			return results, fmt.Errorf("google scrape request: %w", err)
		}
		if err := classifyEngineOutcome(res); err != nil {
			return results, err
		}

		parsed, err := parseGoogleResults(res.Body, g.Name())
		if err != nil {
			return results, err
		}
		if len(parsed) == 0 {
			break
		}
		results = append(results, parsed...)
	}
	return capResults(results, maxResults), nil
}

func parseGoogleResults(body []byte, source string) ([]domain.SearchResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse google results: %w", err)
	}

	blocks := doc.Find("div.g")
	if blocks.Length() == 0 {
		blocks = doc.Find("div[data-sokoban-container]")
	}
	if blocks.Length() == 0 {
		blocks = doc.Find("div").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return s.ChildrenFiltered("h3").Length() > 0 || s.Find("h3").Length() > 0
		})
	}

	var results []domain.SearchResult
	blocks.Each(func(_ int, block *goquery.Selection) {
		link, ok := block.Find("a[href]").First().Attr("href")
		if !ok {
			return
		}
		if strings.HasPrefix(link, "/search") || strings.HasPrefix(link, "#") ||
			strings.Contains(link, "google.com") {
			return
		}
		host := extractDomain(link)
		if host == "" {
			return
		}

		title := strings.TrimSpace(block.Find("h3").First().Text())
		snippet := firstText(block, "div.VwiC3b", "div.IsZvec", "span.aCOpRe")

		results = append(results, domain.SearchResult{
			Domain:  host,
			URL:     link,
			Title:   title,
			Snippet: snippet,
			Source:  source,
		})
	})
	return results, nil
}

// firstText returns the trimmed text of the first selector that matches.
func firstText(s *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		if found := s.Find(sel).First(); found.Length() > 0 {
			return strings.TrimSpace(found.Text())
		}
	}
	return ""
}

// fetchThroughProxy routes a request through the next healthy proxy when a
// source is available, reporting the outcome back for health tracking.
func fetchThroughProxy(client *fetch.Client, proxy ProxySource, req *http.Request) (*fetch.Result, error) {
	proxyURL := ""
	if proxy != nil {
		if next, err := proxy.Next(); err == nil {
			proxyURL = next
		}
	}
	res, err := client.Get(req, proxyURL)
	if proxyURL != "" {
		if err != nil || res.Kind == fetch.KindTimeout || res.Kind == fetch.KindNetwork {
			proxy.MarkFailure(proxyURL)
		} else {
			proxy.MarkSuccess(proxyURL)
		}
	}
	return res, err
}

// classifyEngineOutcome maps a fetch outcome onto the engine sentinels.
func classifyEngineOutcome(res *fetch.Result) error {
	switch res.Kind {
	case fetch.KindOK:
		return nil
	case fetch.KindRateLimited:
		return ErrRateLimited
	case fetch.KindBlocked:
		return ErrBlocked
	default:
		return fmt.Errorf("search: status %d (%s)", res.StatusCode, res.Kind)
	}
}

func capResults(results []domain.SearchResult, maxResults int) []domain.SearchResult {
	if len(results) > maxResults {
		return results[:maxResults]
	}
	return results
}
