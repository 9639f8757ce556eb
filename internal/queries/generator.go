// Package queries expands seed keywords into a bounded, reproducible set of
// search queries. Variants come from the AI client when available, falling
// back to simple tokenization; queries are built from template families and
// sampled with a fixed seed so repeated runs issue identical queries.
package queries

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/jonesrussell/prospector/internal/logger"
)

// Query family names, recorded on each discovered domain for provenance.
const (
	FamilyIntent   = "intent"
	FamilyPlatform = "platform"
	FamilyReverse  = "reverse"
	FamilyGeoTLD   = "geo_tld"
	FamilyRegion   = "region"
)

// Narrower families only combine with the leading intents to keep the
// query count from exploding.
const (
	reverseFamilyIntents = 5
	narrowFamilyIntents  = 3
)

const defaultVariantCount = 15

var defaultIntents = []string{"buy", "price", "shop", "supplier", "wholesale"}

// stopWords is the filter applied when tokenizing keywords as the variant
// fallback.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
	"from": {}, "as": {}, "is": {}, "was": {}, "are": {}, "been": {},
	"be": {}, "have": {}, "has": {}, "had": {}, "do": {}, "does": {},
	"did": {}, "will": {}, "would": {}, "could": {}, "should": {},
	"may": {}, "might": {}, "can": {}, "this": {}, "that": {},
	"these": {}, "those": {},
}

// VariantSource produces keyword variants, normally the Gemini client.
type VariantSource interface {
	ExpandKeywords(ctx context.Context, keyword string, count int) ([]string, error)
}

// VariantCache stores expansions between runs.
type VariantCache interface {
	Get(ctx context.Context, keyword string) ([]string, error)
	Put(ctx context.Context, keyword string, variants []string) error
}

// Config controls query generation.
type Config struct {
	UseAIVariants    bool
	MaxQueries       int
	PerFamilyCap     int
	Intents          []string
	PlatformHints    []string
	GeoTLDs          []string
	Regions          []string
	NegativeKeywords []string
	Seed             int64
}

// DefaultConfig returns the generation defaults.
func DefaultConfig() Config {
	return Config{
		UseAIVariants: true,
		MaxQueries:    400,
		PerFamilyCap:  50,
		Intents:       defaultIntents,
		Seed:          42,
	}
}

// Generator builds the query set for a discovery run.
type Generator struct {
	cfg      Config
	variants VariantSource
	cache    VariantCache
	log      logger.Interface
}

// NewGenerator returns a Generator. variants and cache may be nil; the
// generator then tokenizes the base keywords instead.
func NewGenerator(cfg Config, variants VariantSource, cache VariantCache, log logger.Interface) *Generator {
	if cfg.MaxQueries <= 0 {
		cfg.MaxQueries = 400
	}
	if cfg.PerFamilyCap <= 0 {
		cfg.PerFamilyCap = 50
	}
	if len(cfg.Intents) == 0 {
		cfg.Intents = defaultIntents
	}
	return &Generator{cfg: cfg, variants: variants, cache: cache, log: log}
}

// Generate expands baseKeywords into search queries. It returns the query
// list and the keyword variants used to build it; the variants are reused
// later for vetting relevance scoring.
func (g *Generator) Generate(ctx context.Context, baseKeywords []string) ([]string, []string, error) {
	if len(baseKeywords) == 0 {
		return nil, nil, fmt.Errorf("no keywords to expand")
	}

	variants := g.expandVariants(ctx, baseKeywords)
	families := g.buildFamilies(variants)

	rnd := rand.New(rand.NewSource(g.cfg.Seed))

	var sampled []string
	for _, family := range families {
		rnd.Shuffle(len(family), func(i, j int) {
			family[i], family[j] = family[j], family[i]
		})
		if len(family) > g.cfg.PerFamilyCap {
			family = family[:g.cfg.PerFamilyCap]
		}
		sampled = append(sampled, family...)
	}

	seen := make(map[string]struct{}, len(sampled))
	unique := make([]string, 0, len(sampled))
	for _, q := range sampled {
		normalized := strings.Join(strings.Fields(q), " ")
		if normalized == "" {
			continue
		}
		key := strings.ToLower(normalized)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, normalized)
	}

	if len(unique) > g.cfg.MaxQueries {
		rnd.Shuffle(len(unique), func(i, j int) {
			unique[i], unique[j] = unique[j], unique[i]
		})
		unique = unique[:g.cfg.MaxQueries]
	}

	// Base keywords always lead the run, even past the cap.
	for i := len(baseKeywords) - 1; i >= 0; i-- {
		kw := strings.Join(strings.Fields(baseKeywords[i]), " ")
		if _, dup := seen[strings.ToLower(kw)]; dup {
			continue
		}
		seen[strings.ToLower(kw)] = struct{}{}
		unique = append([]string{kw}, unique...)
	}

	g.log.Info("generated queries",
		"keywords", len(baseKeywords),
		"variants", len(variants),
		"queries", len(unique))
	return unique, variants, nil
}

// expandVariants gathers keyword variants from the cache, then the AI
// client, then plain tokenization. It never fails: worst case the base
// keywords themselves come back.
func (g *Generator) expandVariants(ctx context.Context, baseKeywords []string) []string {
	seen := make(map[string]struct{})
	var variants []string
	add := func(v string) {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			return
		}
		if _, dup := seen[v]; dup {
			return
		}
		seen[v] = struct{}{}
		variants = append(variants, v)
	}

	for _, kw := range baseKeywords {
		add(kw)
		if !g.cfg.UseAIVariants || g.variants == nil {
			for _, tok := range Tokenize(kw) {
				add(tok)
			}
			continue
		}

		if g.cache != nil {
			if cached, err := g.cache.Get(ctx, strings.ToLower(kw)); err == nil {
				for _, v := range cached {
					add(v)
				}
				continue
			}
		}

		expanded, err := g.variants.ExpandKeywords(ctx, kw, defaultVariantCount)
		if err != nil {
			g.log.Warn("variant expansion failed, tokenizing keyword",
				"keyword", kw, "error", err)
			for _, tok := range Tokenize(kw) {
				add(tok)
			}
			continue
		}
		if g.cache != nil {
			if err := g.cache.Put(ctx, strings.ToLower(kw), expanded); err != nil {
				g.log.Warn("variant cache write failed", "keyword", kw, "error", err)
			}
		}
		for _, v := range expanded {
			add(v)
		}
	}
	return variants
}

// buildFamilies constructs the template families in a fixed order so the
// seeded sampling is reproducible.
func (g *Generator) buildFamilies(variants []string) [][]string {
	negatives := g.negativeSuffix()
	intents := g.cfg.Intents

	var families [][]string

	var intent []string
	for _, v := range variants {
		for _, in := range intents {
			intent = append(intent, v+" "+in+negatives)
		}
	}
	if len(intent) > 0 {
		families = append(families, intent)
	}

	if len(g.cfg.PlatformHints) > 0 {
		var platform []string
		for _, v := range variants {
			for _, hint := range g.cfg.PlatformHints {
				platform = append(platform, v+" "+hint+negatives)
			}
		}
		families = append(families, platform)
	}

	var reverse []string
	for _, v := range variants {
		for _, in := range headOf(intents, reverseFamilyIntents) {
			reverse = append(reverse, in+" "+v+negatives)
		}
	}
	if len(reverse) > 0 {
		families = append(families, reverse)
	}

	if len(g.cfg.GeoTLDs) > 0 {
		var geo []string
		for _, v := range variants {
			for _, in := range headOf(intents, narrowFamilyIntents) {
				for _, tld := range g.cfg.GeoTLDs {
					geo = append(geo, v+" "+in+" site:"+tld+negatives)
				}
			}
		}
		families = append(families, geo)
	}

	if len(g.cfg.Regions) > 0 {
		var region []string
		for _, v := range variants {
			for _, in := range headOf(intents, narrowFamilyIntents) {
				for _, r := range g.cfg.Regions {
					region = append(region, v+" "+in+" "+r+negatives)
				}
			}
		}
		families = append(families, region)
	}

	return families
}

func (g *Generator) negativeSuffix() string {
	if len(g.cfg.NegativeKeywords) == 0 {
		return ""
	}
	parts := make([]string, len(g.cfg.NegativeKeywords))
	for i, kw := range g.cfg.NegativeKeywords {
		parts[i] = "-" + kw
	}
	return " " + strings.Join(parts, " ")
}

func headOf(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// Tokenize splits a keyword phrase into lowercase word tokens, dropping
// stop words and tokens of two characters or fewer.
func Tokenize(phrase string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(phrase)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if len(w) <= 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}
