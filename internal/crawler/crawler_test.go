package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/prospector/internal/domain"
	"github.com/jonesrussell/prospector/internal/fetch"
	"github.com/jonesrussell/prospector/internal/logger"
	"github.com/jonesrussell/prospector/internal/store"
)

func TestCanonicalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases host and upgrades scheme", "http://Example.COM/Path", "https://example.com/Path"},
		{"drops default port", "http://example.com:80/a", "https://example.com/a"},
		{"keeps custom port", "https://example.com:8443/a", "https://example.com:8443/a"},
		{"drops fragment", "https://example.com/a#section", "https://example.com/a"},
		{"strips trackers and sorts query", "https://example.com/p?utm_source=x&b=2&a=1", "https://example.com/p?a=1&b=2"},
		{"resolves dot segments", "https://example.com/a/../b", "https://example.com/b"},
		{"trims trailing slash", "https://example.com/shop/", "https://example.com/shop"},
		{"empty path becomes root", "https://example.com", "https://example.com/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Canonicalize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalizeRejectsRelativeURLs(t *testing.T) {
	t.Parallel()

	_, err := Canonicalize("")
	assert.Error(t, err)
	_, err = Canonicalize("example.com/no-scheme")
	assert.Error(t, err)
}

func TestPageIDStableAcrossEquivalentURLs(t *testing.T) {
	t.Parallel()

	a, err := PageID("http://EXAMPLE.com/shop/?utm_source=news")
	require.NoError(t, err)
	b, err := PageID("https://example.com/shop")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := PageID("https://example.com/other")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestSameSite(t *testing.T) {
	t.Parallel()

	assert.True(t, SameSite("https://example.com/x", "example.com"))
	assert.True(t, SameSite("https://www.example.com/x", "example.com"))
	assert.True(t, SameSite("https://example.com/x", "www.example.com"))
	assert.False(t, SameSite("https://shop.example.com/x", "example.com"))
	assert.False(t, SameSite("https://other.com/x", "example.com"))
}

func TestSkippablePath(t *testing.T) {
	t.Parallel()

	assert.True(t, SkippablePath("https://example.com/img/logo.PNG"))
	assert.True(t, SkippablePath("https://example.com/catalog.pdf?v=2"))
	assert.True(t, SkippablePath("https://example.com/archive.tar"))
	assert.False(t, SkippablePath("https://example.com/products"))
	assert.False(t, SkippablePath("https://example.com/"))
}

func TestRobotsDisallow(t *testing.T) {
	t.Parallel()

	var robotsFetches int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			mu.Lock()
			robotsFetches++
			mu.Unlock()
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\nCrawl-delay: 2\n"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	robots := NewRobots(srv.Client(), "prospector-test")

	allowed, err := robots.Allowed(t.Context(), srv.URL+"/public")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = robots.Allowed(t.Context(), srv.URL+"/private/page")
	require.NoError(t, err)
	assert.False(t, allowed)

	mu.Lock()
	assert.Equal(t, 1, robotsFetches, "rules should be cached per host")
	mu.Unlock()

	host := strings.TrimPrefix(srv.URL, "http://")
	assert.Equal(t, 2*time.Second, robots.Delay(host))
}

func TestRobotsMissingMeansAllowAll(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	robots := NewRobots(srv.Client(), "prospector-test")
	allowed, err := robots.Allowed(t.Context(), srv.URL+"/anything")
	require.NoError(t, err)
	assert.True(t, allowed)
}

const extractorHTML = `<html>
<head><title> Acme Widgets </title></head>
<body>
<nav><a href="/products">Products</a> site menu</nav>
<p>Industrial widgets for every need.</p>
<a href="/about">About</a>
<a href="/about">About again</a>
<a href="relative/page">Relative</a>
<a href="#top">Top</a>
<a href="mailto:sales@acme.com">Mail</a>
<a href="tel:+15550100">Call</a>
<a href="javascript:void(0)">JS</a>
<footer>Acme Widgets Ltd, Sudbury</footer>
</body>
</html>`

func TestExtractPage(t *testing.T) {
	t.Parallel()

	page, err := ExtractPage("https://acme.com/catalog/", []byte(extractorHTML), 1)
	require.NoError(t, err)

	assert.Equal(t, "Acme Widgets", page.Title)
	assert.Contains(t, page.Text, "Industrial widgets")
	assert.NotContains(t, page.Text, "site menu")
	assert.NotContains(t, page.Text, "Sudbury")
	assert.Equal(t, []string{
		"https://acme.com/products",
		"https://acme.com/about",
		"https://acme.com/catalog/relative/page",
	}, page.Links)
	assert.Len(t, page.ContentHash, 64)
}

func TestExtractPageHomepageKeepsChrome(t *testing.T) {
	t.Parallel()

	page, err := ExtractPage("https://acme.com/", []byte(extractorHTML), 0)
	require.NoError(t, err)
	assert.Contains(t, page.Text, "Sudbury")
	assert.Contains(t, page.Text, "site menu")
}

func TestExtractPageTitleFallback(t *testing.T) {
	t.Parallel()

	html := `<html><head><meta property="og:title" content="Fallback Title"></head><body>x</body></html>`
	page, err := ExtractPage("https://acme.com/", []byte(html), 0)
	require.NoError(t, err)
	assert.Equal(t, "Fallback Title", page.Title)
}

// stubSite serves a small storefront and records every requested path.
type stubSite struct {
	srv *httptest.Server

	mu    sync.Mutex
	paths []string
}

const stubHomeHTML = `<html>
<head><title>Widget Store</title><meta property="og:site_name" content="Widget Store"></head>
<body>
<p>Buy widgets online. Add to cart today.</p>
<a href="/products">Products</a>
<a href="/about">About</a>
<a href="/dup">Catalog mirror</a>
<a href="/admin/panel">Admin</a>
<a href="/img/logo.png">Logo</a>
<a href="https://other-site.example/page">Partner</a>
</body>
</html>`

const stubProductsHTML = `<html><head><title>Products</title></head>
<body><p>Our full widget range.</p><a href="/products/widget">Widget</a></body></html>`

const stubWidgetHTML = `<html><head><title>Widget</title></head>
<body><p>The flagship widget.</p><a href="/products/widget/specs">Specs</a></body></html>`

func newStubSite(t *testing.T) *stubSite {
	t.Helper()
	site := &stubSite{}
	site.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		site.mu.Lock()
		site.paths = append(site.paths, r.URL.Path)
		site.mu.Unlock()

		switch r.URL.Path {
		case "/robots.txt":
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /admin\n"))
		case "/":
			_, _ = w.Write([]byte(stubHomeHTML))
		case "/products", "/dup":
			_, _ = w.Write([]byte(stubProductsHTML))
		case "/about":
			_, _ = w.Write([]byte(`<html><head><title>About</title></head><body><p>Family business since 1987.</p></body></html>`))
		case "/products/widget":
			_, _ = w.Write([]byte(stubWidgetHTML))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(site.srv.Close)
	return site
}

func (s *stubSite) requested() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

func (s *stubSite) hits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}

type crawlHarness struct {
	crawler      *Crawler
	states       *store.CrawlStateRepo
	pages        *store.MemPageStore
	fingerprints *store.FingerprintRepo
}

func newCrawlHarness(t *testing.T, site *stubSite, cfg Config) *crawlHarness {
	t.Helper()

	client := site.srv.Client()
	client.Transport = rewriteHost(client.Transport, site.srv.URL)

	kv := store.NewMemStore()
	h := &crawlHarness{
		states:       store.NewCrawlStateRepo(kv),
		pages:        store.NewMemPageStore(),
		fingerprints: store.NewFingerprintRepo(kv),
	}
	h.crawler = New(cfg, fetch.NewClient(client), NewRobots(client, "prospector-test"),
		h.states, h.pages, h.fingerprints, logger.NewNoOp())
	h.crawler.pace = func(context.Context, time.Duration) error { return nil }
	return h
}

func TestCrawlDomain(t *testing.T) {
	t.Parallel()

	site := newStubSite(t)
	h := newCrawlHarness(t, site, DefaultConfig())

	state, err := h.crawler.CrawlDomain(t.Context(), "widget-store.com")
	require.NoError(t, err)

	assert.True(t, state.Complete)
	require.NotNil(t, state.CompletedAt)
	require.NotNil(t, state.StartedAt)

	// /dup mirrors /products, so it is visited but not indexed twice.
	pages := h.pages.Pages()
	urls := make(map[string]int, len(pages))
	for _, p := range pages {
		urls[p.URL]++
		assert.Equal(t, "widget-store.com", p.Domain)
		assert.NotEmpty(t, p.ID)
		assert.NotEmpty(t, p.ContentHash)
	}
	assert.Len(t, pages, 4)
	assert.Contains(t, urls, "https://widget-store.com/")
	assert.Contains(t, urls, "https://widget-store.com/products")
	assert.Contains(t, urls, "https://widget-store.com/about")
	assert.Contains(t, urls, "https://widget-store.com/products/widget")
	assert.Equal(t, 4, state.PageCount)

	for _, p := range site.requested() {
		assert.NotContains(t, p, "/admin", "robots disallow must be honored")
		assert.False(t, strings.HasSuffix(p, ".png"), "asset URLs must be skipped")
		// /products/widget/specs sits at depth 3 with MaxDepth 2.
		assert.NotContains(t, p, "/specs")
	}
}

func TestCrawlDomainCompletedIsIdempotent(t *testing.T) {
	t.Parallel()

	site := newStubSite(t)
	h := newCrawlHarness(t, site, DefaultConfig())

	_, err := h.crawler.CrawlDomain(t.Context(), "widget-store.com")
	require.NoError(t, err)
	hitsAfterFirst := site.hits()

	state, err := h.crawler.CrawlDomain(t.Context(), "widget-store.com")
	require.NoError(t, err)
	assert.True(t, state.Complete)
	assert.Equal(t, hitsAfterFirst, site.hits(), "completed domain must not be refetched")
}

func TestCrawlDomainHonorsPageBudget(t *testing.T) {
	t.Parallel()

	site := newStubSite(t)
	cfg := DefaultConfig()
	cfg.MaxPages = 2
	cfg.Concurrency = 1
	h := newCrawlHarness(t, site, cfg)

	state, err := h.crawler.CrawlDomain(t.Context(), "widget-store.com")
	require.NoError(t, err)
	assert.True(t, state.Complete)
	assert.LessOrEqual(t, len(state.VisitedURLs), 2)
}

func TestCrawlDomainStoresHomepageFingerprint(t *testing.T) {
	t.Parallel()

	site := newStubSite(t)
	h := newCrawlHarness(t, site, DefaultConfig())

	_, err := h.crawler.CrawlDomain(t.Context(), "widget-store.com")
	require.NoError(t, err)

	fp, err := h.fingerprints.Get(t.Context(), "widget-store.com")
	require.NoError(t, err)
	assert.Equal(t, "Widget Store", fp.CompanyName)
}

func TestCrawlDomainResumesFromPersistedState(t *testing.T) {
	t.Parallel()

	site := newStubSite(t)
	h := newCrawlHarness(t, site, DefaultConfig())

	// An earlier interrupted run already visited the homepage; resuming
	// must not refetch it.
	started := time.Now().UTC()
	require.NoError(t, h.states.Put(t.Context(), &domain.CrawlState{
		Domain:        "widget-store.com",
		VisitedURLs:   []string{"https://widget-store.com/"},
		ContentHashes: []string{"deadbeef"},
		PageCount:     1,
		StartedAt:     &started,
	}))

	state, err := h.crawler.CrawlDomain(t.Context(), "widget-store.com")
	require.NoError(t, err)
	assert.True(t, state.Complete)
	assert.NotContains(t, site.requested(), "/", "visited homepage must not be refetched")
	assert.Contains(t, state.ContentHashes, "deadbeef")
}

func TestCrawlDomainStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	site := newStubSite(t)
	h := newCrawlHarness(t, site, DefaultConfig())

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := h.crawler.CrawlDomain(ctx, "widget-store.com")
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, site.hits())
}

func TestFleetRun(t *testing.T) {
	t.Parallel()

	site := newStubSite(t)
	h := newCrawlHarness(t, site, DefaultConfig())
	fleet := NewFleet(h.crawler, 2, logger.NewNoOp())

	stats, err := fleet.Run(t.Context(), []string{"widget-store.com", "gadget-store.com"})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Crawled)
	assert.Zero(t, stats.Failed)

	stats, err = fleet.Run(t.Context(), []string{"widget-store.com", "gadget-store.com"})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Skipped)
	assert.Zero(t, stats.Crawled)
}

func rewriteHost(base http.RoundTripper, target string) http.RoundTripper {
	parsed, _ := url.Parse(target)
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		req.URL.Scheme = parsed.Scheme
		req.URL.Host = parsed.Host
		return base.RoundTrip(req)
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }
