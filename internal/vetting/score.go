// Package vetting decides whether a discovered domain is a relevant
// business storefront. A cheap rule pass classifies obvious cases from
// platform fingerprints; everything else gets a scored content pass, with
// an optional AI yes/no for domains the rules could not decide.
package vetting

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ecommerceKeywords are the storefront indicators counted on a page.
var ecommerceKeywords = []string{
	"product", "cart", "checkout", "shop", "store", "buy", "price", "add to cart",
}

// Content relevance blends variant coverage with mention frequency.
const (
	coverageWeight   = 0.6
	frequencyWeight  = 0.4
	frequencyCeiling = 10.0
)

// Domain-name relevance tiers by number of matching variants.
const (
	domainScoreOneMatch   = 0.3
	domainScoreTwoMatches = 0.5
	domainScoreThreePlus  = 0.7
)

var domainSeparators = regexp.MustCompile(`[-_.]`)

// EcommerceIndicators reports whether html contains storefront vocabulary
// and which indicator keywords were found.
func EcommerceIndicators(html []byte) (bool, []string) {
	if len(html) == 0 {
		return false, nil
	}
	low := strings.ToLower(string(html))
	var found []string
	for _, kw := range ecommerceKeywords {
		if strings.Contains(low, kw) {
			found = append(found, kw)
		}
	}
	return len(found) >= 1, found
}

// ContentRelevance is the outcome of scoring page text against keyword
// variants.
type ContentRelevance struct {
	Score         float64
	Matches       map[string]int
	TotalMentions int
}

// ScoreContent measures how relevant page text is to the keyword variants.
// Script, style, nav and footer elements are stripped before matching;
// each variant is counted on word boundaries.
func ScoreContent(html []byte, variants []string) ContentRelevance {
	rel := ContentRelevance{Matches: make(map[string]int)}
	if len(html) == 0 || len(variants) == 0 {
		return rel
	}

	text := visibleText(html)
	distinct := 0
	for _, variant := range variants {
		v := strings.ToLower(strings.TrimSpace(variant))
		if v == "" {
			continue
		}
		count := countWordBoundary(text, v)
		if count > 0 {
			rel.Matches[v] = count
			rel.TotalMentions += count
			distinct++
		}
	}

	coverage := min(float64(distinct)/float64(len(variants)), 1)
	frequency := min(float64(rel.TotalMentions)/frequencyCeiling, 1)
	rel.Score = coverageWeight*coverage + frequencyWeight*frequency
	return rel
}

// DomainNameRelevance scores a domain by how many variants appear in its
// name alone. It catches obviously relevant domains whose pages cannot be
// fetched.
func DomainNameRelevance(domainName string, variants []string) float64 {
	if domainName == "" || len(variants) == 0 {
		return 0
	}
	low := strings.ToLower(domainName)
	words := domainSeparators.Split(low, -1)

	matches := 0
	for _, variant := range variants {
		v := strings.ToLower(variant)
		if v == "" {
			continue
		}
		if strings.Contains(low, v) || anyContains(words, v) {
			matches++
		}
	}
	switch {
	case matches == 0:
		return 0
	case matches == 1:
		return domainScoreOneMatch
	case matches == 2:
		return domainScoreTwoMatches
	default:
		return domainScoreThreePlus
	}
}

func anyContains(words []string, sub string) bool {
	for _, w := range words {
		if strings.Contains(w, sub) {
			return true
		}
	}
	return false
}

// visibleText extracts lowercase page text with non-content elements
// removed.
func visibleText(html []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return strings.ToLower(string(html))
	}
	doc.Find("script, style, nav, footer").Remove()
	return strings.ToLower(strings.Join(strings.Fields(doc.Text()), " "))
}

// countWordBoundary counts phrase occurrences in text on word boundaries.
func countWordBoundary(text, phrase string) int {
	pattern, err := regexp.Compile(`\b` + regexp.QuoteMeta(phrase) + `\b`)
	if err != nil {
		return 0
	}
	return len(pattern.FindAllStringIndex(text, -1))
}
