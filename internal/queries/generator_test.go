package queries_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/prospector/internal/logger"
	"github.com/jonesrussell/prospector/internal/queries"
	"github.com/jonesrussell/prospector/internal/store"
)

type stubVariants struct {
	variants []string
	err      error
	calls    int
}

func (s *stubVariants) ExpandKeywords(_ context.Context, _ string, _ int) ([]string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.variants, nil
}

func TestGenerateReproducible(t *testing.T) {
	t.Parallel()

	cfg := queries.DefaultConfig()
	cfg.PlatformHints = []string{"shopify", "online store"}
	cfg.Regions = []string{"us", "uk"}

	build := func() []string {
		gen := queries.NewGenerator(cfg,
			&stubVariants{variants: []string{"goalkeeper gloves", "gk gloves", "goalie gloves"}},
			nil, logger.NewNoOp())
		out, _, err := gen.Generate(t.Context(), []string{"Goalkeeper Gloves"})
		require.NoError(t, err)
		return out
	}

	first := build()
	second := build()
	assert.Equal(t, first, second, "same seed must produce the same query list")
}

func TestGenerateBaseKeywordsLead(t *testing.T) {
	t.Parallel()

	gen := queries.NewGenerator(queries.DefaultConfig(),
		&stubVariants{variants: []string{"widgets", "bulk widgets"}},
		nil, logger.NewNoOp())

	out, _, err := gen.Generate(t.Context(), []string{"industrial widgets"})
	require.NoError(t, err)
	require.NotEmpty(t, out)
	assert.Equal(t, "industrial widgets", out[0])
}

func TestGenerateRespectsMaxQueries(t *testing.T) {
	t.Parallel()

	cfg := queries.DefaultConfig()
	cfg.MaxQueries = 20
	cfg.PlatformHints = []string{"shopify", "woocommerce", "bigcommerce"}
	cfg.GeoTLDs = []string{".com", ".co.uk"}
	cfg.Regions = []string{"us", "uk", "ca"}

	many := make([]string, 0, 30)
	for _, base := range []string{"alpha", "beta", "gamma", "delta", "epsilon"} {
		for _, suffix := range []string{"one", "two", "three", "four", "five", "six"} {
			many = append(many, base+" "+suffix)
		}
	}
	gen := queries.NewGenerator(cfg, &stubVariants{variants: many}, nil, logger.NewNoOp())

	out, _, err := gen.Generate(t.Context(), []string{"widgets"})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), cfg.MaxQueries+1, "cap plus the leading base keyword")
}

func TestGenerateNoDuplicates(t *testing.T) {
	t.Parallel()

	gen := queries.NewGenerator(queries.DefaultConfig(),
		&stubVariants{variants: []string{"widgets", "Widgets", "widgets "}},
		nil, logger.NewNoOp())

	out, _, err := gen.Generate(t.Context(), []string{"widgets"})
	require.NoError(t, err)

	seen := make(map[string]struct{}, len(out))
	for _, q := range out {
		key := strings.ToLower(q)
		_, dup := seen[key]
		assert.False(t, dup, "duplicate query %q", q)
		seen[key] = struct{}{}
	}
}

func TestGenerateNegativeKeywords(t *testing.T) {
	t.Parallel()

	cfg := queries.DefaultConfig()
	cfg.NegativeKeywords = []string{"amazon", "ebay"}
	gen := queries.NewGenerator(cfg,
		&stubVariants{variants: []string{"widgets"}}, nil, logger.NewNoOp())

	out, _, err := gen.Generate(t.Context(), []string{"widgets"})
	require.NoError(t, err)
	require.Greater(t, len(out), 1)
	assert.Contains(t, out[1], "-amazon -ebay")
}

func TestGenerateFallsBackToTokens(t *testing.T) {
	t.Parallel()

	gen := queries.NewGenerator(queries.DefaultConfig(),
		&stubVariants{err: errors.New("model unavailable")}, nil, logger.NewNoOp())

	out, variants, err := gen.Generate(t.Context(), []string{"the goalkeeper gloves"})
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.Contains(t, variants, "goalkeeper")
	assert.Contains(t, variants, "gloves")
	assert.NotContains(t, variants, "the")
}

func TestGenerateUsesVariantCache(t *testing.T) {
	t.Parallel()

	cache := store.NewVariantCache(store.NewMemStore())
	require.NoError(t, cache.Put(t.Context(), "widgets", []string{"bulk widgets"}))

	src := &stubVariants{variants: []string{"should not be used"}}
	gen := queries.NewGenerator(queries.DefaultConfig(), src, cache, logger.NewNoOp())

	_, variants, err := gen.Generate(t.Context(), []string{"widgets"})
	require.NoError(t, err)
	assert.Zero(t, src.calls, "cached keywords must not hit the model")
	assert.Contains(t, variants, "bulk widgets")
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	got := queries.Tokenize("The Goalkeeper's Gloves, for sale!")
	assert.Contains(t, got, "gloves")
	assert.NotContains(t, got, "the")
	assert.NotContains(t, got, "for")
}
