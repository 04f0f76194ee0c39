package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seo-audit/crawler/internal/storage"
)

// PageSpeed Insights timing bounds: each strategy call gets its own HTTP
// timeout and the mobile+desktop pair shares an outer cap.
const (
	psiEndpoint    = "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"
	psiCallTimeout = 45 * time.Second
	psiTotalCap    = 60 * time.Second
)

// PageSpeedClient calls the PageSpeed Insights API for both strategies.
type PageSpeedClient struct {
	apiKey string
	client *http.Client
	logger *zap.Logger
}

// NewPageSpeedClient creates a client; a nil client is returned when the
// key is empty so callers can skip PSI entirely.
func NewPageSpeedClient(apiKey string, logger *zap.Logger) *PageSpeedClient {
	if apiKey == "" {
		return nil
	}
	return &PageSpeedClient{
		apiKey: apiKey,
		client: &http.Client{Timeout: psiCallTimeout},
		logger: logger,
	}
}

// Analyze fetches mobile and desktop reports in parallel. A failed
// strategy leaves its payload nil; both failing returns an error.
func (c *PageSpeedClient) Analyze(ctx context.Context, targetURL string) (*storage.PageSpeedResults, error) {
	ctx, cancel := context.WithTimeout(ctx, psiTotalCap)
	defer cancel()

	results := &storage.PageSpeedResults{}
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, strategy := range []string{"mobile", "desktop"} {
		wg.Add(1)
		go func(strategy string) {
			defer wg.Done()
			payload, err := c.run(ctx, targetURL, strategy)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.logger.Debug("pagespeed strategy failed",
					zap.String("url", targetURL),
					zap.String("strategy", strategy),
					zap.Error(err))
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			if strategy == "mobile" {
				results.Mobile = payload
			} else {
				results.Desktop = payload
			}
		}(strategy)
	}
	wg.Wait()

	if results.Mobile == nil && results.Desktop == nil {
		return nil, firstErr
	}
	return results, nil
}

func (c *PageSpeedClient) run(ctx context.Context, targetURL, strategy string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("url", targetURL)
	params.Set("strategy", strategy)
	params.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, psiEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pagespeed api returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("pagespeed api returned invalid json")
	}
	return json.RawMessage(body), nil
}
