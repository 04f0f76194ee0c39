package urlutil

import (
	"net/url"
	"strings"
)

// Filter decides whether a canonical URL may be queued for the crawl.
type Filter struct {
	// Path suffixes that disqualify a URL from queueing
	excludedExtensions []string

	// Substrings that disqualify a URL (auth/commerce surfaces, pseudo-schemes)
	blacklist []string

	maxURLLength       int
	maxQuerySeparators int
}

// NewFilter creates an admission filter with the given blacklists and caps.
func NewFilter(excludedExtensions, blacklist []string, maxURLLength, maxQuerySeparators int) *Filter {
	exts := make([]string, len(excludedExtensions))
	for i, e := range excludedExtensions {
		exts[i] = strings.ToLower(e)
	}
	bl := make([]string, len(blacklist))
	for i, b := range blacklist {
		bl[i] = strings.ToLower(b)
	}
	return &Filter{
		excludedExtensions: exts,
		blacklist:          bl,
		maxURLLength:       maxURLLength,
		maxQuerySeparators: maxQuerySeparators,
	}
}

// Admit reports whether the canonical URL belongs to this crawl.
// The URL must already be canonical; a fragment here indicates a bug upstream.
func (f *Filter) Admit(canonical string, base *url.URL) bool {
	if len(canonical) > f.maxURLLength {
		return false
	}
	if strings.Contains(canonical, "#") {
		return false
	}

	u, err := url.Parse(canonical)
	if err != nil {
		return false
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	if !sameSite(u.Hostname(), base.Hostname()) {
		return false
	}

	if strings.Count(u.RawQuery, "&") > f.maxQuerySeparators {
		return false
	}

	lowerPath := strings.ToLower(u.Path)
	for _, ext := range f.excludedExtensions {
		if strings.HasSuffix(lowerPath, ext) {
			return false
		}
	}

	lowerURL := strings.ToLower(canonical)
	for _, pattern := range f.blacklist {
		if strings.Contains(lowerURL, pattern) {
			return false
		}
	}

	return true
}

// sameSite reports whether host is the base host or a true subdomain of it.
// Suffix matching alone would admit lookalikes such as "evil-example.com"
// against "example.com", so the boundary must be a dot.
func sameSite(host, baseHost string) bool {
	host = strings.ToLower(host)
	baseHost = strings.ToLower(baseHost)

	if host == baseHost {
		return true
	}
	return strings.HasSuffix(host, "."+baseHost)
}
