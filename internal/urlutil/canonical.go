// Package urlutil provides URL canonicalization and admission filtering.
package urlutil

import (
	"errors"
	"net/url"
	"strings"
)

// ErrSkip marks a URL that is well-formed but never crawlable
// (fragments, foreign schemes, hostless results).
var ErrSkip = errors.New("url skipped")

// ErrInvalidURL marks input the parser could not resolve against the base.
var ErrInvalidURL = errors.New("invalid url")

// Canonicalizer normalizes discovered URLs to their canonical absolute form.
type Canonicalizer struct {
	// Lowercased query parameter names removed during canonicalization
	trackingParams map[string]struct{}
}

// NewCanonicalizer creates a canonicalizer that strips the given
// tracking parameters (matched case-insensitively, exact names).
func NewCanonicalizer(trackingParams []string) *Canonicalizer {
	params := make(map[string]struct{}, len(trackingParams))
	for _, p := range trackingParams {
		params[strings.ToLower(p)] = struct{}{}
	}
	return &Canonicalizer{trackingParams: params}
}

// Canonicalize resolves raw against base and normalizes the result.
// Returns ErrSkip for URLs that must never be queued and ErrInvalidURL
// when parsing fails before resolution.
func (c *Canonicalizer) Canonicalize(raw string, base *url.URL) (string, error) {
	raw = strings.TrimSpace(raw)

	if raw == "" || strings.HasPrefix(raw, "#") {
		return "", ErrSkip
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidURL
	}

	// Foreign schemes (javascript:, mailto:, tel:, ftp:...) are never crawlable.
	if ref.IsAbs() && ref.Scheme != "http" && ref.Scheme != "https" {
		return "", ErrSkip
	}

	// ResolveReference covers absolute, root-relative, protocol-relative
	// and plain relative references in one pass.
	u := base.ResolveReference(ref)

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		u.RawQuery = c.stripTracking(u.RawQuery)
	}

	u.Path = normalizePath(u.Path)

	if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", ErrSkip
	}

	return u.String(), nil
}

// stripTracking removes tracking parameters while preserving the order
// of the remaining pairs. url.Values would lose the order, so the raw
// query is filtered pair by pair.
func (c *Canonicalizer) stripTracking(rawQuery string) string {
	pairs := strings.Split(rawQuery, "&")
	kept := pairs[:0]

	for _, pair := range pairs {
		key := pair
		if idx := strings.Index(pair, "="); idx != -1 {
			key = pair[:idx]
		}
		if _, tracked := c.trackingParams[strings.ToLower(key)]; tracked {
			continue
		}
		kept = append(kept, pair)
	}

	return strings.Join(kept, "&")
}

// normalizePath collapses duplicate slashes and "/./" segments and
// removes the trailing slash unless the path is exactly "/".
func normalizePath(path string) string {
	if path == "" {
		return ""
	}

	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	for strings.Contains(path, "/./") {
		path = strings.ReplaceAll(path, "/./", "/")
	}

	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}

// URLDepth returns the number of path segments in a URL, 0 on parse failure.
func URLDepth(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	depth := 0
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			depth++
		}
	}
	return depth
}

// ExtractHost returns the lowercased host of a URL.
func ExtractHost(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return strings.ToLower(u.Host), nil
}
