package crawler

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Page is the content extracted from one fetched HTML page.
type Page struct {
	URL         string
	Title       string
	Text        string
	ContentHash string
	Links       []string
}

// nonContentSelectors are stripped before extracting page text.
const nonContentSelectors = "script, style, nav, header, footer, form"

// ExtractPage parses HTML into title, visible text, outbound same-site
// links, and a content hash used for near-duplicate suppression. The
// homepage keeps header and footer text since storefront identity often
// lives there; deeper pages drop chrome entirely.
func ExtractPage(pageURL string, body []byte, depth int) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse page %s: %w", pageURL, err)
	}

	page := &Page{URL: pageURL}
	page.Title = pageTitle(doc)
	// Links first: extracting text strips nav and footer nodes from the
	// document, and most internal links live there.
	page.Links = pageLinks(doc, pageURL)
	page.Text = pageText(doc, depth)
	page.ContentHash = hashText(page.Text)
	return page, nil
}

func pageTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if ogTitle, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		return strings.TrimSpace(ogTitle)
	}
	return ""
}

func pageText(doc *goquery.Document, depth int) string {
	body := doc.Find("body").First()
	if body.Length() == 0 {
		return ""
	}
	if depth == 0 {
		body.Find("script, style").Remove()
	} else {
		body.Find(nonContentSelectors).Remove()
	}
	return strings.Join(strings.Fields(body.Text()), " ")
}

func pageLinks(doc *goquery.Document, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") ||
			strings.HasPrefix(href, "javascript:") {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil {
			return
		}
		abs := resolved.String()
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})
	return links
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
