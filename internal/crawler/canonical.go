// Package crawler walks approved domains breadth-first, persisting page
// documents and crawl state after every batch so interrupted crawls resume
// without refetching. Crawls honor robots.txt and stay within the domain.
package crawler

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
)

// trackingParams are stripped during canonicalization; they never change
// page content.
var trackingParams = map[string]struct{}{
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {},
	"utm_term": {}, "utm_content": {},
	"fbclid": {}, "gclid": {}, "gclsrc": {}, "dclid": {}, "msclkid": {},
}

var defaultPorts = map[string]string{"http": "80", "https": "443"}

// skipExtensions are binary and media paths the crawler never fetches.
var skipExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".bmp": {},
	".webp": {}, ".tiff": {}, ".svg": {}, ".ico": {},
	".zip": {}, ".rar": {}, ".7z": {}, ".tar": {}, ".gz": {}, ".pdf": {},
}

var (
	errEmptyURL    = errors.New("canonicalize: empty url")
	errNoSchemeURL = errors.New("canonicalize: missing scheme or host")
)

// Canonicalize reduces a URL to a stable form so the same page expressed
// differently dedupes to one frontier entry: https upgrade, lowercased
// host, default ports and fragments dropped, dot-segments resolved,
// trailing slashes trimmed, query keys sorted with trackers removed.
func Canonicalize(rawURL string) (string, error) {
	if rawURL == "" {
		return "", errEmptyURL
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("canonicalize %q: %w", rawURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", errNoSchemeURL
	}

	originalScheme := strings.ToLower(parsed.Scheme)
	parsed.Scheme = "https"
	parsed.Host = canonicalHost(parsed, originalScheme)
	parsed.Fragment = ""
	parsed.RawQuery = cleanQuery(parsed.Query())
	parsed.Path = cleanPath(parsed.Path)
	return parsed.String(), nil
}

// PageID returns the SHA-256 hex digest of a canonicalized URL, used as
// the page document ID.
func PageID(rawURL string) (string, error) {
	canonical, err := Canonicalize(rawURL)
	if err != nil {
		return "", fmt.Errorf("page id: %w", err)
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}

// Host returns the lowercased hostname of a URL without the port.
func Host(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("extract host: %w", err)
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return "", fmt.Errorf("extract host: no host in %q", rawURL)
	}
	return host, nil
}

// SameSite reports whether a URL belongs to the crawl domain, treating the
// bare domain and its www form as one site.
func SameSite(rawURL, domainName string) bool {
	host, err := Host(rawURL)
	if err != nil {
		return false
	}
	domainName = strings.ToLower(domainName)
	return host == domainName ||
		host == "www."+domainName ||
		"www."+host == domainName
}

// SkippablePath reports whether a URL path points at a binary asset.
func SkippablePath(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	ext := strings.ToLower(path.Ext(parsed.Path))
	_, skip := skipExtensions[ext]
	return skip
}

func canonicalHost(u *url.URL, originalScheme string) string {
	hostname := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" {
		return hostname
	}
	for _, scheme := range []string{originalScheme, u.Scheme} {
		if defaultPort, ok := defaultPorts[scheme]; ok && port == defaultPort {
			return hostname
		}
	}
	return hostname + ":" + port
}

func cleanQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		if _, tracker := trackingParams[key]; !tracker {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, key := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		for j, val := range values[key] {
			if j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(val))
		}
	}
	return b.String()
}

func cleanPath(p string) string {
	if p == "" || p == "/" {
		return "/"
	}
	return strings.TrimRight(path.Clean(p), "/")
}
