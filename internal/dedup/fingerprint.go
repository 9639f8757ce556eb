package dedup

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/prospector/internal/domain"
)

const maxFingerprintEmails = 5

var (
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

	socialPatterns = map[string]*regexp.Regexp{
		"instagram": regexp.MustCompile(`instagram\.com/([a-zA-Z0-9_.]+)`),
		"facebook":  regexp.MustCompile(`facebook\.com/([a-zA-Z0-9_.]+)`),
		"twitter":   regexp.MustCompile(`twitter\.com/([a-zA-Z0-9_]+)`),
		"linkedin":  regexp.MustCompile(`linkedin\.com/company/([a-zA-Z0-9_-]+)`),
		"youtube":   regexp.MustCompile(`youtube\.com/(@?[a-zA-Z0-9_-]+)`),
	}

	// Share-button paths and tracker addresses that regex extraction
	// would otherwise pick up as identities.
	genericSocialHandles = map[string]struct{}{
		"share": {}, "sharer": {}, "intent": {}, "plugins": {},
	}
	noiseEmailHosts = []string{"example.com", "sentry.io", "google", "facebook.com"}

	titleSeparators = []string{" - ", " | ", " – "}
)

// ExtractFingerprint pulls identity features out of a homepage: company
// name, title, meta description, contact emails, and social handles. The
// fingerprint is stored at crawl completion and compared during alias
// detection.
func ExtractFingerprint(html []byte, domainName string) (*domain.HomepageFingerprint, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse homepage for %s: %w", domainName, err)
	}

	fp := &domain.HomepageFingerprint{
		Domain:      domainName,
		Title:       strings.TrimSpace(doc.Find("title").First().Text()),
		Social:      make(map[string]string),
		ExtractedAt: time.Now().UTC(),
	}

	if content, ok := doc.Find(`meta[property="og:site_name"]`).Attr("content"); ok {
		fp.CompanyName = strings.TrimSpace(content)
	}
	if fp.CompanyName == "" && fp.Title != "" {
		fp.CompanyName = companyFromTitle(fp.Title)
	}

	if content, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		fp.Description = strings.TrimSpace(content)
	}

	fp.Emails = extractEmails(html)

	for platform, pattern := range socialPatterns {
		for _, match := range pattern.FindAllSubmatch(html, -1) {
			handle := string(match[1])
			if _, generic := genericSocialHandles[strings.ToLower(handle)]; generic {
				continue
			}
			fp.Social[platform] = handle
			break
		}
	}

	return fp, nil
}

func companyFromTitle(title string) string {
	for _, sep := range titleSeparators {
		if head, _, found := strings.Cut(title, sep); found {
			return strings.TrimSpace(head)
		}
	}
	return title
}

func extractEmails(html []byte) []string {
	seen := make(map[string]struct{})
	var emails []string
	for _, raw := range emailPattern.FindAll(html, -1) {
		email := string(raw)
		lower := strings.ToLower(email)
		if isNoiseEmail(lower) {
			continue
		}
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		emails = append(emails, email)
		if len(emails) == maxFingerprintEmails {
			break
		}
	}
	return emails
}

func isNoiseEmail(email string) bool {
	for _, host := range noiseEmailHosts {
		if strings.Contains(email, host) {
			return true
		}
	}
	return false
}

// Fingerprint comparison weights; they sum to the 0.60 homepage share of
// the duplicate total.
const (
	weightCompanyName = 0.25
	weightEmailDomain = 0.15
	weightDescription = 0.10
	weightTitle       = 0.05
	weightSocial      = 0.05

	socialPlatformsForFull = 3.0
)

// CompareFingerprints scores two homepage fingerprints in [0, 0.60].
func CompareFingerprints(a, b *domain.HomepageFingerprint) float64 {
	if a == nil || b == nil {
		return 0
	}
	score := weightCompanyName * fuzzyMatch(a.CompanyName, b.CompanyName)
	if emailDomainsOverlap(a.Emails, b.Emails) {
		score += weightEmailDomain
	}
	score += weightDescription * jaccard(a.Description, b.Description)
	score += weightTitle * fuzzyMatch(a.Title, b.Title)
	score += weightSocial * min(float64(matchingSocials(a.Social, b.Social))/socialPlatformsForFull, 1)
	return score
}

func emailDomainsOverlap(a, b []string) bool {
	hostsA := emailHosts(a)
	if len(hostsA) == 0 {
		return false
	}
	for host := range emailHosts(b) {
		if _, ok := hostsA[host]; ok {
			return true
		}
	}
	return false
}

func emailHosts(emails []string) map[string]struct{} {
	hosts := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if _, host, found := strings.Cut(e, "@"); found {
			hosts[strings.ToLower(host)] = struct{}{}
		}
	}
	return hosts
}

func matchingSocials(a, b map[string]string) int {
	count := 0
	for platform, handleA := range a {
		handleB, ok := b[platform]
		if !ok {
			continue
		}
		if normalizeHandle(handleA) == normalizeHandle(handleB) {
			count++
		}
	}
	return count
}

func normalizeHandle(h string) string {
	return strings.TrimPrefix(strings.TrimSpace(strings.ToLower(h)), "@")
}
