package fetch

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"
)

// maxResponseBodyBytes limits the size of fetched responses.
const maxResponseBodyBytes = 10 * 1024 * 1024 // 10 MB

// defaultRequestTimeout is used when the caller provides no timeout.
const defaultRequestTimeout = 30 * time.Second

// userAgents is the rotation pool presented to fetched sites.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// Result is the outcome of one fetch.
type Result struct {
	Body       []byte
	StatusCode int
	FinalURL   string
	Kind       Kind
}

// Client wraps a shared *http.Client with user-agent rotation and optional
// per-request proxying. The underlying client (and its connection pool) is
// created once by the orchestrator and passed down.
type Client struct {
	httpClient *http.Client
	uaIndex    atomic.Uint64
}

// NewClient creates a fetch client on top of the given http.Client.
// A nil client gets a default with a conservative timeout.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &Client{httpClient: httpClient}
}

// Get fetches rawURL, rotating the user agent per call. When proxyURL is
// non-empty the request is routed through it via a derived transport.
func (c *Client) Get(req *http.Request, proxyURL string) (*Result, error) {
	req.Header.Set("User-Agent", c.nextUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	client := c.httpClient
	if proxyURL != "" {
		proxied, err := c.proxiedClient(proxyURL)
		if err != nil {
			return nil, err
		}
		client = proxied
	}

	resp, doErr := client.Do(req)
	if doErr != nil {
		return &Result{Kind: ClassifyErr(doErr)}, fmt.Errorf("http fetch: %w", doErr)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxResponseBodyBytes)
	body, readErr := io.ReadAll(limited)
	if readErr != nil {
		return &Result{StatusCode: resp.StatusCode, Kind: KindNetwork},
			fmt.Errorf("read response body: %w", readErr)
	}

	finalURL := req.URL.String()
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Result{
		Body:       body,
		StatusCode: resp.StatusCode,
		FinalURL:   finalURL,
		Kind:       ClassifyStatus(resp.StatusCode, body),
	}, nil
}

// nextUserAgent returns the next user agent in the rotation.
func (c *Client) nextUserAgent() string {
	n := c.uaIndex.Add(1)
	return userAgents[int(n)%len(userAgents)]
}

// proxiedClient clones the base client with a proxy-bound transport.
func (c *Client) proxiedClient(proxyURL string) (*http.Client, error) {
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url %q: %w", proxyURL, err)
	}

	transport, ok := c.httpClient.Transport.(*http.Transport)
	if !ok || transport == nil {
		transport = http.DefaultTransport.(*http.Transport)
	}

	proxied := transport.Clone()
	proxied.Proxy = http.ProxyURL(parsed)

	return &http.Client{
		Timeout:       c.httpClient.Timeout,
		Transport:     proxied,
		CheckRedirect: c.httpClient.CheckRedirect,
	}, nil
}
