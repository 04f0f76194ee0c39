package fetcher

import (
	"bytes"
	"strings"
)

// Content types whose bodies are treated as HTML documents.
var htmlContentTypes = []string{
	"text/html",
	"application/xhtml+xml",
	"application/xml",
	"text/xml",
	"text/plain",
}

// Markers that identify an HTML body regardless of the declared type.
var htmlMarkers = [][]byte{
	[]byte("<html"),
	[]byte("<body"),
	[]byte("<div"),
	[]byte("<p"),
	[]byte("<a "),
	[]byte("<script"),
	[]byte("<title"),
	[]byte("<!doctype html"),
}

// IsHTML classifies a response body as HTML. The header is trusted when
// it names an HTML-ish type; otherwise the body is sniffed for common
// markup. Bodies under 10 bytes are never HTML.
func IsHTML(contentType string, body []byte) bool {
	if len(body) < 10 {
		return false
	}

	ct := strings.ToLower(contentType)
	for _, htmlType := range htmlContentTypes {
		if strings.Contains(ct, htmlType) {
			return true
		}
	}

	lower := bytes.ToLower(body)
	for _, marker := range htmlMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return false
}
