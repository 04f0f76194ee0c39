// Package robots fetches and parses robots.txt as an advisory surface.
// Disallow rules are reported, never enforced: admission filtering does
// not consult this package.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

const fetchTimeout = 15 * time.Second

// Advisory holds the parsed robots.txt for one host.
type Advisory struct {
	group    *robotstxt.Group
	sitemaps []string
	fetched  bool
	raw      string
}

// Fetch retrieves and parses robots.txt for the base URL's host. A
// missing or unreadable robots.txt yields an empty advisory, not an
// error: robots data is optional by design.
func Fetch(ctx context.Context, base *url.URL, userAgent string, logger *zap.Logger) *Advisory {
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", base.Scheme, base.Host)

	reqCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return &Advisory{}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		logger.Debug("robots.txt fetch failed", zap.String("url", robotsURL), zap.Error(err))
		return &Advisory{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &Advisory{}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return &Advisory{}
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		logger.Debug("robots.txt parse failed", zap.String("url", robotsURL), zap.Error(err))
		return &Advisory{}
	}

	return &Advisory{
		group:    data.FindGroup(userAgent),
		sitemaps: data.Sitemaps,
		fetched:  true,
		raw:      string(body),
	}
}

// Fetched reports whether a robots.txt was retrieved and parsed.
func (a *Advisory) Fetched() bool {
	return a.fetched
}

// WouldBlock reports whether the path would be disallowed for the
// crawl's user agent. Informational only.
func (a *Advisory) WouldBlock(rawURL string) bool {
	if a.group == nil {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return !a.group.Test(path)
}

// Sitemaps returns sitemap URLs listed in robots.txt.
func (a *Advisory) Sitemaps() []string {
	return a.sitemaps
}

// Raw returns the robots.txt body for display.
func (a *Advisory) Raw() string {
	return a.raw
}
