package extract

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seo-audit/crawler/internal/storage"
)

// Bounds for the per-page discovered-link status checks.
const (
	linkCheckConcurrency = 50
	linkCheckTimeout     = 10 * time.Second
)

// LinkChecker resolves status codes for discovered links with bounded
// HEAD requests. One checker is shared by all pages of a crawl so the
// concurrency bound is global.
type LinkChecker struct {
	client    *http.Client
	userAgent string
	sem       chan struct{}
	logger    *zap.Logger
}

// NewLinkChecker creates a checker using the crawl's user agent.
func NewLinkChecker(userAgent string, logger *zap.Logger) *LinkChecker {
	return &LinkChecker{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userAgent: userAgent,
		sem:       make(chan struct{}, linkCheckConcurrency),
		logger:    logger,
	}
}

// CheckLinks fills StatusCode on each link in place. Unreachable links
// keep status 0. No goroutine outlives the call: the record is handed
// to the writer right after, so late writes would race the flush.
func (c *LinkChecker) CheckLinks(ctx context.Context, links []storage.Link) {
	var wg sync.WaitGroup
	for i := range links {
		if !c.acquire(ctx) {
			break
		}

		wg.Add(1)
		go func(link *storage.Link) {
			defer wg.Done()
			defer func() { <-c.sem }()
			link.StatusCode, _ = c.headDetails(ctx, link.URL)
		}(&links[i])
	}
	wg.Wait()
}

// CheckImages resolves status and byte size for image resources under
// the same concurrency bound as the link checks. Unreached images keep
// status 0 and size -1.
func (c *LinkChecker) CheckImages(ctx context.Context, urls []string) []storage.ImageDetail {
	if len(urls) == 0 {
		return nil
	}

	details := make([]storage.ImageDetail, len(urls))
	for i, u := range urls {
		details[i] = storage.ImageDetail{URL: u, SizeBytes: -1}
	}

	var wg sync.WaitGroup
	for i := range details {
		if !c.acquire(ctx) {
			break
		}

		wg.Add(1)
		go func(d *storage.ImageDetail) {
			defer wg.Done()
			defer func() { <-c.sem }()
			d.StatusCode, d.SizeBytes = c.headDetails(ctx, d.URL)
		}(&details[i])
	}
	wg.Wait()
	return details
}

// acquire takes a semaphore permit, false when the context ends first.
func (c *LinkChecker) acquire(ctx context.Context) bool {
	select {
	case c.sem <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *LinkChecker) headDetails(ctx context.Context, rawURL string) (int, int64) {
	reqCtx, cancel := context.WithTimeout(ctx, linkCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, -1
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("link check failed", zap.String("url", rawURL), zap.Error(err))
		return 0, -1
	}
	resp.Body.Close()
	return resp.StatusCode, resp.ContentLength
}
