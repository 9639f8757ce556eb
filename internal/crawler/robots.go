package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

const (
	robotsPath        = "/robots.txt"
	robotsCacheTTL    = 24 * time.Hour
	maxRobotsBodySize = 512 * 1024
)

// Robots checks and caches robots.txt rules per host. Missing, errored or
// non-2xx robots.txt means allow-all, the standard crawling posture.
type Robots struct {
	httpClient *http.Client
	userAgent  string

	mu    sync.RWMutex
	cache map[string]*robotsEntry
}

type robotsEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
	allowAll  bool
}

// NewRobots returns a robots.txt checker identifying as userAgent.
func NewRobots(httpClient *http.Client, userAgent string) *Robots {
	return &Robots{
		httpClient: httpClient,
		userAgent:  userAgent,
		cache:      make(map[string]*robotsEntry),
	}
}

// Allowed reports whether rawURL may be fetched under its host's
// robots.txt, fetching and caching the rules on first contact.
func (r *Robots) Allowed(ctx context.Context, rawURL string) (bool, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("robots: parse url: %w", err)
	}
	host := strings.ToLower(parsed.Host)
	if host == "" {
		return false, fmt.Errorf("robots: no host in %q", rawURL)
	}

	entry := r.lookup(host)
	if entry == nil {
		entry = r.fetch(ctx, host, parsed.Scheme)
	}
	if entry.allowAll {
		return true, nil
	}
	return entry.data.TestAgent(parsed.Path, r.userAgent), nil
}

// Delay returns the crawl-delay robots.txt declares for the host, if any.
func (r *Robots) Delay(host string) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[strings.ToLower(host)]
	if !ok || entry.allowAll || entry.data == nil {
		return 0
	}
	group := entry.data.FindGroup(r.userAgent)
	if group == nil {
		return 0
	}
	return group.CrawlDelay
}

func (r *Robots) lookup(host string) *robotsEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[host]
	if !ok || time.Since(entry.fetchedAt) > robotsCacheTTL {
		return nil
	}
	return entry
}

func (r *Robots) fetch(ctx context.Context, host, scheme string) *robotsEntry {
	if scheme == "" {
		scheme = "https"
	}
	entry := &robotsEntry{fetchedAt: time.Now(), allowAll: true}

	if body, status, err := r.get(ctx, scheme+"://"+host+robotsPath); err == nil &&
		status >= 200 && status < 300 {
		if data, parseErr := robotstxt.FromBytes(body); parseErr == nil {
			entry.data = data
			entry.allowAll = false
		}
	}

	r.mu.Lock()
	r.cache[host] = entry
	r.mu.Unlock()
	return entry
}

func (r *Robots) get(ctx context.Context, robotsURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, http.NoBody)
	if err != nil {
		return nil, 0, fmt.Errorf("robots: build request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("robots: fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBodySize))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("robots: read body: %w", err)
	}
	return body, resp.StatusCode, nil
}
