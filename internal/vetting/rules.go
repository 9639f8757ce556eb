package vetting

import (
	"strings"

	"github.com/jonesrussell/prospector/internal/domain"
)

// platformFingerprints identify hosted commerce platforms in page markup.
var platformFingerprints = []string{
	"cdn.shopify.com",
	"woocommerce",
	"/wp-json/wc/",
	"wp-content/plugins/woocommerce",
	"bigcommerce",
}

// shopPathHints are URL path fragments that mark a storefront.
var shopPathHints = []string{
	"/cart", "/checkout", "/product", "/products", "/collections", "/shop",
}

// commerceVocabulary is the minimal token set a storefront page mentions
// somewhere; a page with none of these is an automatic reject.
var commerceVocabulary = []string{"product", "cart", "checkout", "shop", "store"}

// RuleVet classifies a page without scoring: platform fingerprints, shop
// paths, or Product structured data approve outright; a page with no
// commerce vocabulary at all rejects; everything in between is unclear and
// goes to the scored or AI path.
func RuleVet(html []byte, pageURL string) string {
	low := strings.ToLower(string(html))

	for _, fp := range platformFingerprints {
		if strings.Contains(low, fp) {
			return domain.DecisionApproved
		}
	}
	lowURL := strings.ToLower(pageURL)
	for _, hint := range shopPathHints {
		if strings.Contains(lowURL, hint) {
			return domain.DecisionApproved
		}
	}
	if strings.Contains(low, `"@type":"product"`) || strings.Contains(low, `\"@type\":\"product\"`) {
		return domain.DecisionApproved
	}

	for _, tok := range commerceVocabulary {
		if strings.Contains(low, tok) {
			return domain.DecisionUnclear
		}
	}
	return domain.DecisionRejected
}
