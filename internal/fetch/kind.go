// Package fetch provides shared HTTP fetch plumbing: a pooled client with
// rotating user agents and proxy support, structured outcome classification,
// and bounded retry with exponential backoff.
package fetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
)

// Kind classifies a fetch outcome so callers branch on structured values
// instead of matching error strings.
type Kind int

const (
	// KindOK means the fetch succeeded with a usable body.
	KindOK Kind = iota

	// KindTimeout means the request timed out.
	KindTimeout

	// KindNetwork means a transient network failure (connection refused,
	// DNS, reset).
	KindNetwork

	// KindRateLimited means the target signalled rate limiting (HTTP 429).
	KindRateLimited

	// KindBlocked means the target signalled a block (HTTP 403 or
	// CAPTCHA markers in the body).
	KindBlocked

	// KindNotFound means the target returned HTTP 404 or 410.
	KindNotFound

	// KindParseFailure means the response body could not be parsed.
	KindParseFailure

	// KindHTTPError means any other non-2xx status.
	KindHTTPError
)

// String returns the string representation of a kind.
func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindRateLimited:
		return "rate_limited"
	case KindBlocked:
		return "blocked"
	case KindNotFound:
		return "not_found"
	case KindParseFailure:
		return "parse_failure"
	case KindHTTPError:
		return "http_error"
	default:
		return "unknown"
	}
}

// Retryable reports whether an outcome of this kind is worth a bounded
// retry against the same target. Rate limits and blocks are excluded:
// those escalate to a different engine or proxy instead.
func (k Kind) Retryable() bool {
	return k == KindTimeout || k == KindNetwork
}

// captchaMarkers are body substrings that indicate a bot challenge page.
var captchaMarkers = []string{
	"captcha",
	"unusual traffic",
	"are you a robot",
	"cf-challenge",
}

// ClassifyStatus maps an HTTP status code and response body to a kind.
func ClassifyStatus(statusCode int, body []byte) Kind {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return KindRateLimited
	case statusCode == http.StatusForbidden:
		return KindBlocked
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		return KindNotFound
	case statusCode >= 200 && statusCode < 300:
		if hasCaptchaMarker(body) {
			return KindBlocked
		}
		return KindOK
	default:
		return KindHTTPError
	}
}

// ClassifyErr maps a transport-level error to a kind.
func ClassifyErr(err error) Kind {
	if err == nil {
		return KindOK
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	return KindNetwork
}

func hasCaptchaMarker(body []byte) bool {
	if len(body) == 0 {
		return false
	}

	low := strings.ToLower(string(body))
	for _, marker := range captchaMarkers {
		if strings.Contains(low, marker) {
			return true
		}
	}
	return false
}
