package urlutil

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTrackingParams = []string{
	"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
	"fbclid", "gclid", "msclkid",
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestCanonicalize(t *testing.T) {
	base := mustParse(t, "https://example.com/blog/post")
	c := NewCanonicalizer(testTrackingParams)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"absolute", "https://example.com/about", "https://example.com/about"},
		{"relative", "next", "https://example.com/blog/next"},
		{"root relative", "/contact", "https://example.com/contact"},
		{"protocol relative", "//cdn.example.com/a.html", "https://cdn.example.com/a.html"},
		{"uppercase host", "HTTPS://EXAMPLE.COM/About", "https://example.com/About"},
		{"fragment dropped", "/page#section", "https://example.com/page"},
		{"trailing slash trimmed", "/dir/", "https://example.com/dir"},
		{"root slash kept", "https://example.com/", "https://example.com/"},
		{"double slashes collapsed", "/a//b///c", "https://example.com/a/b/c"},
		{"dot segments collapsed", "/a/./b", "https://example.com/a/b"},
		{"tracking stripped keeps rest", "/page?utm_source=x&id=42", "https://example.com/page?id=42"},
		{"tracking order preserved", "/p?b=2&gclid=9&a=1", "https://example.com/p?b=2&a=1"},
		{"all tracking removed", "/p?utm_medium=m&fbclid=f", "https://example.com/p"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Canonicalize(tt.raw, base)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalizeSkips(t *testing.T) {
	base := mustParse(t, "https://example.com/")
	c := NewCanonicalizer(testTrackingParams)

	for _, raw := range []string{
		"",
		"   ",
		"#top",
		"#",
		"javascript:void(0)",
		"mailto:a@example.com",
		"tel:+1234567",
		"ftp://example.com/file",
	} {
		t.Run(raw, func(t *testing.T) {
			_, err := c.Canonicalize(raw, base)
			assert.ErrorIs(t, err, ErrSkip)
		})
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	base := mustParse(t, "https://example.com/")
	c := NewCanonicalizer(testTrackingParams)

	inputs := []string{
		"https://Example.COM/A//B/?utm_source=x&id=1#frag",
		"/products/./shoes/",
		"https://example.com/page?b=2&a=1",
	}

	for _, raw := range inputs {
		once, err := c.Canonicalize(raw, base)
		require.NoError(t, err)
		twice, err := c.Canonicalize(once, base)
		require.NoError(t, err)
		assert.Equal(t, once, twice, "canonical form must be a fixed point")
	}
}

func TestURLDepth(t *testing.T) {
	tests := []struct {
		url  string
		want int
	}{
		{"https://example.com", 0},
		{"https://example.com/", 0},
		{"https://example.com/a", 1},
		{"https://example.com/a/b/c", 3},
		{"https://example.com/a/b?q=1", 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, URLDepth(tt.url), tt.url)
	}
}

func TestExtractHost(t *testing.T) {
	host, err := ExtractHost("https://Sub.Example.COM/page")
	require.NoError(t, err)
	assert.Equal(t, "sub.example.com", host)
}
