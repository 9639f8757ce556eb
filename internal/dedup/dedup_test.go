package dedup

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/prospector/internal/domain"
	"github.com/jonesrussell/prospector/internal/fetch"
	"github.com/jonesrussell/prospector/internal/logger"
	"github.com/jonesrussell/prospector/internal/store"
)

func TestBrandToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		domain string
		want   string
	}{
		{"theoneglove.com", "theoneglove"},
		{"theoneglove.com.au", "theoneglove"},
		{"www.theoneglove.com", "theoneglove"},
		{"shop.theoneglove.co.uk", "theoneglove"},
		{"example.co.uk", "example"},
		{"nike.com", "nike"},
		{"localhost", "localhost"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BrandToken(tt.domain), "input %q", tt.domain)
	}
}

func TestBrandTokenIdempotent(t *testing.T) {
	t.Parallel()

	for _, d := range []string{"theoneglove.com.au", "www.example.co.uk", "nike.com"} {
		once := BrandToken(d)
		assert.Equal(t, once, BrandToken(once), "input %q", d)
	}
}

func TestRunDeduperCollapsesTLDFamily(t *testing.T) {
	t.Parallel()

	d := NewRunDeduper()

	ok, _ := d.Admit("example.com")
	assert.True(t, ok)

	ok, first := d.Admit("example.co.uk")
	assert.False(t, ok)
	assert.Equal(t, "example.com", first)

	ok, first = d.Admit("www.example.com.au")
	assert.False(t, ok)
	assert.Equal(t, "example.com", first)

	ok, _ = d.Admit("other.com")
	assert.True(t, ok)
	assert.Equal(t, 2, d.Seen())
}

func TestPatternScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"same base different tld", "theoneglove.com", "theoneglove.com.au", patternExactBase},
		{"separator normalized", "renegade-gk.com", "renegadegk.com", patternNormalized},
		{"one edit apart", "acmeco.com", "acmecos.com", patternEditOne},
		{"containment", "acme.com", "acmewidgets.com", patternContainment},
		{"unrelated", "nike.com", "adidas.com", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, PatternScore(tt.a, tt.b), 1e-9)
		})
	}
}

func TestLevenshtein(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, levenshtein("kitten", "kitten"))
	assert.Equal(t, 3, levenshtein("kitten", "sitting"))
	assert.Equal(t, 5, levenshtein("", "acmeo"))
}

const fingerprintHTML = `<html><head>
	<title>Acme Widgets - Industrial Supply</title>
	<meta property="og:site_name" content="Acme Widgets Inc">
	<meta name="description" content="Bulk industrial widgets and fasteners for manufacturers.">
</head><body>
	<a href="mailto:sales@acmewidgets.com">Contact sales</a>
	<p>support@acmewidgets.com</p>
	<p>noise: tracker@sentry.io</p>
	<a href="https://instagram.com/acmewidgets">Instagram</a>
	<a href="https://facebook.com/sharer/share.php">Share</a>
	<a href="https://facebook.com/acmewidgetsinc">Facebook</a>
</body></html>`

func TestExtractFingerprint(t *testing.T) {
	t.Parallel()

	fp, err := ExtractFingerprint([]byte(fingerprintHTML), "acmewidgets.com")
	require.NoError(t, err)
	assert.Equal(t, "Acme Widgets Inc", fp.CompanyName)
	assert.Equal(t, "Acme Widgets - Industrial Supply", fp.Title)
	assert.Contains(t, fp.Description, "industrial widgets")
	assert.ElementsMatch(t, []string{"sales@acmewidgets.com", "support@acmewidgets.com"}, fp.Emails)
	assert.Equal(t, "acmewidgets", fp.Social["instagram"])
	assert.Equal(t, "acmewidgetsinc", fp.Social["facebook"], "share links must not win over real handles")
}

func TestExtractFingerprintCompanyFromTitle(t *testing.T) {
	t.Parallel()

	fp, err := ExtractFingerprint([]byte(`<html><head><title>Acme | Home</title></head></html>`), "acme.com")
	require.NoError(t, err)
	assert.Equal(t, "Acme", fp.CompanyName)
}

func TestCompareFingerprintsIdentical(t *testing.T) {
	t.Parallel()

	fp, err := ExtractFingerprint([]byte(fingerprintHTML), "acmewidgets.com")
	require.NoError(t, err)
	other := *fp
	other.Domain = "acmewidgets.co.uk"

	score := CompareFingerprints(fp, &other)
	assert.InDelta(t, 0.5833, score, 0.001, "two of three social platforms match")
}

func TestCompareFingerprintsDisjoint(t *testing.T) {
	t.Parallel()

	a := &domain.HomepageFingerprint{CompanyName: "Acme", Title: "Acme", Description: "widgets"}
	b := &domain.HomepageFingerprint{CompanyName: "Zenith Corp", Title: "Zenith", Description: "software consulting"}
	assert.Less(t, CompareFingerprints(a, b), 0.20)
}

func TestAliasDetectorDuplicate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(fingerprintHTML))
	}))
	defer srv.Close()

	kv := store.NewMemStore()
	fingerprints := store.NewFingerprintRepo(kv)
	aliases := store.NewAliasRepo(kv)
	ctx := t.Context()

	existing, err := ExtractFingerprint([]byte(fingerprintHTML), "acmewidgets.com")
	require.NoError(t, err)
	require.NoError(t, fingerprints.Put(ctx, existing))

	client := srv.Client()
	client.Transport = rewriteHost(client.Transport, srv.URL)
	detector := NewAliasDetector(fetch.NewClient(client), fingerprints, aliases, logger.NewNoOp())

	verdict, err := detector.Check(ctx, "acmewidgets.com.au", []string{"acmewidgets.com"})
	require.NoError(t, err)
	assert.True(t, verdict.Duplicate)
	assert.Equal(t, "acmewidgets.com", verdict.Primary)
	assert.GreaterOrEqual(t, verdict.TotalScore, 0.70)

	aliased, err := aliases.IsAliased(ctx, "acmewidgets.com.au")
	require.NoError(t, err)
	assert.True(t, aliased)
}

func TestAliasDetectorNoPatternMatch(t *testing.T) {
	t.Parallel()

	kv := store.NewMemStore()
	detector := NewAliasDetector(fetch.NewClient(nil),
		store.NewFingerprintRepo(kv), store.NewAliasRepo(kv), logger.NewNoOp())

	verdict, err := detector.Check(t.Context(), "zenith.com", []string{"acmewidgets.com"})
	require.NoError(t, err)
	assert.False(t, verdict.Duplicate, "no pattern candidates must not trigger a homepage fetch")
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
