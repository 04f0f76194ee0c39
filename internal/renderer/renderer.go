// Package renderer fetches pages through a headless Chromium so
// client-rendered markup is visible to the extraction pipeline.
package renderer

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// settleWait gives client-side hydration and late XHRs time to finish
// after navigation completes.
const settleWait = 3 * time.Second

// Renderer renders URLs under a tight concurrency bound, independent of
// and much smaller than the main fetch concurrency.
type Renderer struct {
	allocator context.Context
	cancel    context.CancelFunc
	sem       chan struct{}
	timeout   time.Duration
	logger    *zap.Logger
}

// New creates a renderer allowing up to concurrency simultaneous
// headless instances.
func New(concurrency int, userAgent string, timeout time.Duration, logger *zap.Logger) *Renderer {
	if concurrency < 1 {
		concurrency = 1
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("window-size", "1920,1080"),
		chromedp.UserAgent(userAgent),
	)

	allocator, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Renderer{
		allocator: allocator,
		cancel:    cancel,
		sem:       make(chan struct{}, concurrency),
		timeout:   timeout,
		logger:    logger,
	}
}

// Render navigates to the URL, waits for the page to settle, and returns
// the serialized post-render DOM. The browser runs on its own OS-backed
// goroutine inside chromedp; Render only blocks the calling goroutine.
func (r *Renderer) Render(ctx context.Context, rawURL string) (string, error) {
	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-r.sem }()

	start := time.Now()

	tabCtx, cancelTab := chromedp.NewContext(r.allocator)
	defer cancelTab()

	runCtx, cancelRun := context.WithTimeout(tabCtx, r.timeout)
	defer cancelRun()

	// Propagate caller cancellation into the browser context.
	go func() {
		select {
		case <-ctx.Done():
			cancelRun()
		case <-runCtx.Done():
		}
	}()

	var rendered string
	err := chromedp.Run(runCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": "en-US,en;q=0.5",
		}),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settleWait),
		chromedp.OuterHTML("html", &rendered, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("render failed: %w", err)
	}

	r.logger.Debug("rendered page",
		zap.String("url", rawURL),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("bytes", len(rendered)))

	return rendered, nil
}

// Close shuts the allocator down. Pending renders are aborted.
func (r *Renderer) Close() {
	r.cancel()
}
