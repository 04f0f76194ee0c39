// Package fetcher performs static HTTP fetches with retry-aware backoff
// and manual redirect tracing.
package fetcher

import (
	"net/http"
	"strings"
	"time"
)

// Response is the result of a single HTTP request (one hop, no redirects
// followed).
type Response struct {
	// URL this response was served for
	URL string

	// HTTP status code
	StatusCode int

	// Status text (e.g. "200 OK")
	Status string

	// Response headers
	Headers http.Header

	// Cookies set by this response
	Cookies []*http.Cookie

	// Content-Type header value without parameters
	ContentType string

	// Content-Length from the header, or body size when absent
	ContentLength int64

	// Response body
	Body []byte

	// Attempts made before this response was accepted
	Attempts int
}

// RedirectHop is a single entry in a redirect chain.
type RedirectHop struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
}

// TraceResult is the outcome of following a redirect chain to its end.
type TraceResult struct {
	// Final response; for a detected loop this is the last 3xx response
	Response *Response

	// URL that produced the final response
	FinalURL string

	// Ordered chain including the final hop
	Chain []RedirectHop

	// Wall time accumulated across all hops
	Elapsed time.Duration

	HadRedirect     bool
	RedirectCount   int
	RedirectionType int
	LoopDetected    bool
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsRedirect reports a 3xx status.
func (r *Response) IsRedirect() bool {
	return r.StatusCode >= 300 && r.StatusCode < 400
}

// Location returns the Location header, if any.
func (r *Response) Location() string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers.Get("Location")
}

// IsPDF reports whether the response carries a PDF body, by header or
// by the URL's extension.
func (r *Response) IsPDF() bool {
	if strings.Contains(strings.ToLower(r.ContentType), "application/pdf") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(strings.SplitN(r.URL, "?", 2)[0]), ".pdf")
}

// extractContentType strips parameters such as charset.
func extractContentType(contentType string) string {
	if idx := strings.Index(contentType, ";"); idx != -1 {
		return strings.TrimSpace(contentType[:idx])
	}
	return strings.TrimSpace(contentType)
}
