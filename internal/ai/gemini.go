// Package ai wraps the Gemini generateContent REST API for the two narrow
// uses the pipeline has: expanding seed keywords into search variants, and
// giving a yes/no relevance call on domains rule-based vetting could not
// decide.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jonesrussell/prospector/internal/logger"
)

const (
	defaultModel   = "gemini-2.0-flash"
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	requestTimeout = 60 * time.Second
)

// ErrNoAPIKey is returned when the client is constructed without a key.
// Callers treat this as "AI unavailable" and use their fallbacks.
var ErrNoAPIKey = errors.New("ai: no api key configured")

// ErrEmptyResponse is returned when the model answers with no usable text.
var ErrEmptyResponse = errors.New("ai: empty model response")

// Client calls the Gemini generateContent endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiKey     string
	log        logger.Interface
}

// Config holds Gemini client settings.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewClient returns a Gemini client. The key may be empty; every call then
// fails fast with ErrNoAPIKey so callers can branch to their fallbacks.
func NewClient(cfg Config, httpClient *http.Client, log logger.Interface) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		model:      model,
		apiKey:     cfg.APIKey,
		log:        log,
	}
}

// Available reports whether the client has a key and can be called.
func (c *Client) Available() bool {
	return c.apiKey != ""
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Generate sends a single-turn prompt and returns the model's text reply.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if !c.Available() {
		return "", ErrNoAPIKey
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("encode gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("gemini status %d: %s", resp.StatusCode, string(raw))
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}
	return decoded.Candidates[0].Content.Parts[0].Text, nil
}

// ExpandKeywords asks the model for search-phrase variants of a seed
// keyword. The reply is parsed as a JSON string array, tolerating markdown
// code fences around it.
func (c *Client) ExpandKeywords(ctx context.Context, keyword string, count int) ([]string, error) {
	prompt := fmt.Sprintf(
		"Generate %d alternative search phrases a buyer would type when looking "+
			"for businesses selling %q. Include synonyms, category names, and "+
			"common misspellings. Respond with only a JSON array of strings.",
		count, keyword)

	text, err := c.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var variants []string
	if err := json.Unmarshal([]byte(stripCodeFences(text)), &variants); err != nil {
		return nil, fmt.Errorf("parse variants for %q: %w", keyword, err)
	}

	out := make([]string, 0, len(variants))
	for _, v := range variants {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, strings.ToLower(v))
		}
	}
	if len(out) == 0 {
		return nil, ErrEmptyResponse
	}
	return out, nil
}

// ClassifyRelevance asks the model whether a domain looks like a business
// selling products related to the keywords. Only a reply starting with YES
// counts as relevant.
func (c *Client) ClassifyRelevance(ctx context.Context, domainName, pageText string, keywords []string) (bool, error) {
	const maxExcerpt = 2000
	if len(pageText) > maxExcerpt {
		pageText = pageText[:maxExcerpt]
	}
	prompt := fmt.Sprintf(
		"Does the website %s appear to be a business selling products related to "+
			"any of these keywords: %s?\n\nPage excerpt:\n%s\n\n"+
			"Answer with exactly YES or NO.",
		domainName, strings.Join(keywords, ", "), pageText)

	text, err := c.Generate(ctx, prompt)
	if err != nil {
		return false, err
	}
	answer := strings.ToUpper(strings.TrimSpace(stripCodeFences(text)))
	return strings.HasPrefix(answer, "YES"), nil
}

// stripCodeFences removes a surrounding markdown code fence, with or
// without a language tag, from a model reply.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// Drop the language tag line.
		if !strings.ContainsAny(s[:idx], "[{\"") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
