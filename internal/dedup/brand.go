// Package dedup collapses discovered domains that point at the same
// business. Run-level dedup keys results by brand token so theoneglove.com
// and theoneglove.com.au count once; cross-run alias detection combines
// domain-name pattern scoring with homepage fingerprint comparison.
package dedup

import "strings"

// commonSubdomains are storefront prefixes stripped before comparing
// domain names.
var commonSubdomains = map[string]struct{}{
	"www": {}, "shop": {}, "store": {}, "web": {},
	"online": {}, "buy": {}, "get": {},
}

// multiPartSecondLevels mark two-part public suffixes like co.uk and
// com.au.
var multiPartSecondLevels = map[string]struct{}{
	"co": {}, "com": {}, "net": {}, "org": {},
	"ac": {}, "gov": {}, "edu": {},
}

// BrandToken reduces a domain to the bare name that identifies the brand:
// subdomain prefixes and the TLD are stripped, so theoneglove.com,
// theoneglove.com.au and www.theoneglove.us all map to "theoneglove".
// The function is idempotent: BrandToken(BrandToken(d)) == BrandToken(d).
func BrandToken(domainName string) string {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(domainName)), ".")
	for len(parts) > 2 {
		if _, common := commonSubdomains[parts[0]]; !common {
			break
		}
		parts = parts[1:]
	}
	if len(parts) >= 3 {
		if _, multi := multiPartSecondLevels[parts[len(parts)-2]]; multi {
			return parts[len(parts)-3]
		}
	}
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return domainName
}

// RunDeduper keeps the first domain seen for each brand token within a
// single discovery run.
type RunDeduper struct {
	seen map[string]string
}

// NewRunDeduper returns an empty deduper.
func NewRunDeduper() *RunDeduper {
	return &RunDeduper{seen: make(map[string]string)}
}

// Admit reports whether domainName introduces a new brand. The first
// domain for a token is admitted; later domains with the same token return
// false along with the domain that claimed the token.
func (d *RunDeduper) Admit(domainName string) (bool, string) {
	token := BrandToken(domainName)
	if first, dup := d.seen[token]; dup {
		return false, first
	}
	d.seen[token] = domainName
	return true, ""
}

// Seen reports how many distinct brands have been admitted.
func (d *RunDeduper) Seen() int {
	return len(d.seen)
}
