package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/prospector/internal/domain"
	"github.com/jonesrussell/prospector/internal/fetch"
	"github.com/jonesrussell/prospector/internal/logger"
)

func TestExtractDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want string
	}{
		{"https://www.acme.com/products", "acme.com"},
		{"http://shop.acme.co.uk/", "shop.acme.co.uk"},
		{"https://ACME.com", "acme.com"},
		{"/search?q=foo", ""},
		{"#fragment", ""},
		{"not a url at all://", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractDomain(tt.raw), "input %q", tt.raw)
	}
}

func TestParseBingResults(t *testing.T) {
	t.Parallel()

	html := `<html><body><ol>
		<li class="b_algo">
			<h2><a href="https://www.acme.com/widgets">Acme Widgets</a></h2>
			<p>Buy widgets in bulk.</p>
		</li>
		<li class="b_algo">
			<h2><a href="https://www.bing.com/images">Images</a></h2>
		</li>
		<li class="b_algo">
			<h2><a href="https://other.io/">Other</a></h2>
			<p>Another seller.</p>
		</li>
	</ol></body></html>`

	results, err := parseBingResults([]byte(html), EngineBingScrape)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "acme.com", results[0].Domain)
	assert.Equal(t, "Acme Widgets", results[0].Title)
	assert.Equal(t, "Buy widgets in bulk.", results[0].Snippet)
	assert.Equal(t, "other.io", results[1].Domain)
}

func TestParseGoogleResults(t *testing.T) {
	t.Parallel()

	html := `<html><body>
		<div class="g">
			<a href="https://www.acme.com/shop"><h3>Acme Shop</h3></a>
			<div class="VwiC3b">Widgets for sale.</div>
		</div>
		<div class="g">
			<a href="/search?q=more"><h3>More results</h3></a>
		</div>
	</body></html>`

	results, err := parseGoogleResults([]byte(html), EngineGoogleScrape)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "acme.com", results[0].Domain)
	assert.Equal(t, "Acme Shop", results[0].Title)
	assert.Equal(t, "Widgets for sale.", results[0].Snippet)
}

func TestBingAPISearch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"webPages":{"totalEstimatedMatches":2,"value":[
			{"url":"https://www.acme.com/","name":"Acme","snippet":"Widgets."},
			{"url":"https://other.io/","name":"Other","snippet":"More widgets."}
		]}}`))
	}))
	defer srv.Close()

	// Point the engine at the stub by rewriting requests through the
	// test server's transport.
	client := srv.Client()
	client.Transport = rewriteHost(client.Transport, srv.URL)
	engine := NewBingAPI(fetch.NewClient(client), "test-key", "us", logger.NewNoOp())

	results, err := engine.Search(t.Context(), "widgets", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "acme.com", results[0].Domain)
	assert.Equal(t, EngineBingAPI, results[0].Source)
}

type stubEngine struct {
	name    string
	results []domain.SearchResult
	err     error
	calls   int
}

func (s *stubEngine) Name() string { return s.name }

func (s *stubEngine) Search(context.Context, string, int) ([]domain.SearchResult, error) {
	s.calls++
	return s.results, s.err
}

func TestChainFallsBackOnBlock(t *testing.T) {
	t.Parallel()

	blocked := &stubEngine{name: "a", err: ErrBlocked}
	healthy := &stubEngine{name: "b", results: []domain.SearchResult{{Domain: "acme.com"}}}

	chain := NewChain([]Engine{blocked, healthy}, 0, logger.NewNoOp())
	results, engine, err := chain.Search(t.Context(), "widgets", 10)
	require.NoError(t, err)
	assert.Equal(t, "b", engine)
	assert.Len(t, results, 1)
}

func TestChainRetiresEngineAfterStrikes(t *testing.T) {
	t.Parallel()

	blocked := &stubEngine{name: "a", err: ErrRateLimited}
	healthy := &stubEngine{name: "b", results: []domain.SearchResult{{Domain: "acme.com"}}}
	chain := NewChain([]Engine{blocked, healthy}, 0, logger.NewNoOp())

	for range 5 {
		_, _, err := chain.Search(t.Context(), "widgets", 10)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, blocked.calls, "retired engines must not be called again")
}

func TestChainNoEngines(t *testing.T) {
	t.Parallel()

	chain := NewChain(nil, 0, logger.NewNoOp())
	_, _, err := chain.Search(t.Context(), "widgets", 10)
	assert.ErrorIs(t, err, ErrNoEngines)
	assert.False(t, chain.Usable())
}

func TestChainAllEnginesFail(t *testing.T) {
	t.Parallel()

	chain := NewChain([]Engine{
		&stubEngine{name: "a", err: ErrBlocked},
		&stubEngine{name: "b", err: ErrBlocked},
	}, 0, logger.NewNoOp())

	_, _, err := chain.Search(t.Context(), "widgets", 10)
	assert.ErrorIs(t, err, ErrNoEngines)
}

func TestChainPacesQueries(t *testing.T) {
	t.Parallel()

	engine := &stubEngine{name: "a", results: []domain.SearchResult{{Domain: "acme.com"}}}
	chain := NewChain([]Engine{engine}, 50*time.Millisecond, logger.NewNoOp())

	start := time.Now()
	for range 3 {
		_, _, err := chain.Search(t.Context(), "widgets", 10)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

// rewriteHost redirects every request to the test server regardless of the
// URL the engine builds.
func rewriteHost(base http.RoundTripper, target string) http.RoundTripper {
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		req.URL.Scheme = "http"
		req.URL.Host = target[len("http://"):]
		return base.RoundTrip(req)
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }
