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
	bingAPIURL     = "https://api.bing.microsoft.com/v7.0/search"
	bingSearchURL  = "https://www.bing.com/search"
	bingAPIPage    = 50
	bingScrapePage = 10
)

// BingAPI searches via the Bing Web Search API.
type BingAPI struct {
	client *fetch.Client
	apiKey string
	region string
	log    logger.Interface
}

// NewBingAPI returns a Bing Web Search engine.
func NewBingAPI(client *fetch.Client, apiKey, region string, log logger.Interface) *BingAPI {
	return &BingAPI{client: client, apiKey: apiKey, region: region, log: log}
}

// Name implements Engine.
func (b *BingAPI) Name() string { return EngineBingAPI }

type bingAPIResponse struct {
	WebPages struct {
		TotalEstimatedMatches int `json:"totalEstimatedMatches"`
		Value                 []struct {
			URL     string `json:"url"`
			Name    string `json:"name"`
			Snippet string `json:"snippet"`
		} `json:"value"`
	} `json:"webPages"`
}

// Search implements Engine, paging fifty results at a time.
func (b *BingAPI) Search(ctx context.Context, query string, maxResults int) ([]domain.SearchResult, error) {
	var results []domain.SearchResult
	for offset := 0; len(results) < maxResults; offset += bingAPIPage {
		params := url.Values{}
		params.Set("q", query)
		params.Set("count", strconv.Itoa(min(bingAPIPage, maxResults-len(results))))
		params.Set("offset", strconv.Itoa(offset))
		params.Set("responseFilter", "Webpages")
		if b.region != "" {
			params.Set("mkt", strings.ToLower(b.region)+"-"+strings.ToUpper(b.region))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, bingAPIURL+"?"+params.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("build bing api request: %w", err)
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", b.apiKey)

		res, err := b.client.Get(req, "")
		if err != nil {
			return nil, fmt.Errorf("bing api request: %w", err)
		}
		if err := classifyEngineOutcome(res); err != nil {
			return results, err
		}

		var page bingAPIResponse
		if err := json.Unmarshal(res.Body, &page); err != nil {
			return nil, fmt.Errorf("decode bing api response: %w", err)
		}
		if len(page.WebPages.Value) == 0 {
			break
		}
		for _, item := range page.WebPages.Value {
			host := extractDomain(item.URL)
			if host == "" {
				continue
			}
			results = append(results, domain.SearchResult{
				Domain:  host,
				URL:     item.URL,
				Title:   item.Name,
				Snippet: item.Snippet,
				Source:  b.Name(),
			})
		}
		if len(results) >= page.WebPages.TotalEstimatedMatches {
			break
		}
	}
	return capResults(results, maxResults), nil
}

// BingScrape searches by parsing Bing result pages; used when no API key
// is configured. Bing's markup is stabler than Google's, so a single
// selector set suffices.
type BingScrape struct {
	client *fetch.Client
	proxy  ProxySource
	log    logger.Interface
}

// NewBingScrape returns a scraping Bing engine. proxy may be nil.
func NewBingScrape(client *fetch.Client, proxy ProxySource, log logger.Interface) *BingScrape {
	return &BingScrape{client: client, proxy: proxy, log: log}
}

// Name implements Engine.
func (b *BingScrape) Name() string { return EngineBingScrape }

// Search implements Engine.
func (b *BingScrape) Search(ctx context.Context, query string, maxResults int) ([]domain.SearchResult, error) {
	var results []domain.SearchResult
	pages := (maxResults + bingScrapePage - 1) / bingScrapePage
	for page := 0; page < pages && len(results) < maxResults; page++ {
		params := url.Values{}
		params.Set("q", query)
		params.Set("first", strconv.Itoa(page*bingScrapePage+1))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, bingSearchURL+"?"+params.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("build bing scrape request: %w", err)
		}
		res, err := fetchThroughProxy(b.client, b.proxy, req)
		if err != nil {
			return results, fmt.Errorf("bing scrape request: %w", err)
		}
		if err := classifyEngineOutcome(res); err != nil {
			return results, err
		}

		parsed, err := parseBingResults(res.Body, b.Name())
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

func parseBingResults(body []byte, source string) ([]domain.SearchResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse bing results: %w", err)
	}

	var results []domain.SearchResult
	doc.Find("li.b_algo").Each(func(_ int, block *goquery.Selection) {
		link, ok := block.Find("h2 a").First().Attr("href")
		if !ok {
			return
		}
		host := extractDomain(link)
		if host == "" || strings.Contains(host, "bing.com") {
			return
		}
		results = append(results, domain.SearchResult{
			Domain:  host,
			URL:     link,
			Title:   strings.TrimSpace(block.Find("h2").First().Text()),
			Snippet: strings.TrimSpace(block.Find("p").First().Text()),
			Source:  source,
		})
	})
	return results, nil
}
