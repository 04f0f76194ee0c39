package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seo-audit/crawler/internal/config"
	"github.com/seo-audit/crawler/internal/events"
	"github.com/seo-audit/crawler/internal/extract"
	"github.com/seo-audit/crawler/internal/fetcher"
	"github.com/seo-audit/crawler/internal/frontier"
	"github.com/seo-audit/crawler/internal/renderer"
	"github.com/seo-audit/crawler/internal/robots"
	"github.com/seo-audit/crawler/internal/storage"
	"github.com/seo-audit/crawler/internal/urlutil"
)

// Per-page processing deadlines. Rendering adds its own budget on top of
// the static fetch.
const (
	staticPageTimeout = 30 * time.Second
	renderPageTimeout = 90 * time.Second

	dispatchIdleWait = 100 * time.Millisecond
	failedURLsCap    = 100
)

// ErrInvalidBaseURL is returned when the seed cannot start a crawl.
var ErrInvalidBaseURL = errors.New("invalid base url")

// Summary describes a finished crawl.
type Summary struct {
	CrawlID       string
	Domain        string
	Pages         int
	Errors        int
	Status        string
	TotalLinks    int
	InternalLinks int
	ExternalLinks int
	Indexable     int
	NotIndexable  int
	Sitemaps      []string
	Elapsed       time.Duration
}

// Crawler is the crawl core. It exclusively owns the mutable crawl state
// through the frontier; workers touch that state only via the frontier's
// serialized transitions.
type Crawler struct {
	settings *config.Settings
	baseURL  *url.URL
	crawlID  string

	frontier *frontier.Frontier
	canon    *urlutil.Canonicalizer
	filter   *urlutil.Filter
	fetcher  *fetcher.Fetcher
	tracer   *fetcher.Tracer
	renderer *renderer.Renderer
	pipeline *extract.Pipeline
	limiter  *HostRateLimiter
	advisory *robots.Advisory

	db     *storage.Database
	writer *storage.BatchWriter
	sink   events.Sink
	logger *zap.Logger

	// Counters. crawled/failed mirror the frontier's visited/failed sets
	// but are kept as atomics so progress math never takes the state lock.
	activeTasks   atomic.Int32
	crawled       atomic.Int64
	robotsBlocked atomic.Int64
	lastActivity  atomic.Int64

	totalLinks    atomic.Int64
	internalLinks atomic.Int64
	externalLinks atomic.Int64
	indexable     atomic.Int64
	notIndexable  atomic.Int64

	// Completions since the last progress emission; progress is batched
	// so a fast crawl does not flood the consumer.
	sinceProgress atomic.Int32

	wg sync.WaitGroup
}

// New builds a crawler for one run. The store must be reachable and the
// base URL valid; both are fatal before any worker starts.
func New(rawBaseURL string, settings *config.Settings, db *storage.Database, sink events.Sink, logger *zap.Logger) (*Crawler, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	base, err := url.Parse(rawBaseURL)
	if err != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, rawBaseURL)
	}

	if err := db.Initialize(); err != nil {
		return nil, fmt.Errorf("store initialization failed: %w", err)
	}

	f := fetcher.New(settings, logger)

	var rend *renderer.Renderer
	if settings.JavaScriptRendering {
		rend = renderer.New(settings.JSConcurrency, f.UserAgent(), renderPageTimeout, logger)
	}

	customSearch, err := db.GetCustomSearch()
	if err != nil {
		logger.Warn("custom search config unavailable", zap.Error(err))
	}

	pipeline := extract.New(
		settings,
		extract.NewLinkChecker(f.UserAgent(), logger),
		extract.NewPageSpeedClient(settings.PageSpeedAPIKey, logger),
		customSearch,
		logger,
	)

	return &Crawler{
		settings: settings.Clone(),
		baseURL:  base,
		crawlID:  uuid.NewString(),
		frontier: frontier.New(settings.MaxDepth, settings.MaxURLsPerDomain),
		canon:    urlutil.NewCanonicalizer(settings.TrackingParams),
		filter: urlutil.NewFilter(settings.ExcludedExtensions, settings.BlacklistSubstrings,
			settings.MaxURLLength, settings.MaxQuerySeparators),
		fetcher:  f,
		tracer:   fetcher.NewTracer(f, logger),
		renderer: rend,
		pipeline: pipeline,
		limiter:  NewHostRateLimiter(settings.CrawlDelay(), settings.RequestsPerSecond),
		db:       db,
		writer:   storage.NewBatchWriter(db, settings.DBBatchSize, logger),
		sink:     sink,
		logger:   logger,
	}, nil
}

// CrawlID returns the identifier recorded in the history table.
func (c *Crawler) CrawlID() string {
	return c.crawlID
}

// Run executes the crawl to completion and returns its summary. The
// caller cancels by cancelling ctx; in-flight pages then run to their
// per-page deadlines and the loop drains.
func (c *Crawler) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	c.lastActivity.Store(start.UnixNano())

	ctx, cancel := context.WithTimeout(ctx, c.settings.CrawlTimeout())
	defer cancel()

	c.advisory = robots.Fetch(ctx, c.baseURL, c.fetcher.UserAgent(), c.logger)

	seed, err := c.canon.Canonicalize(c.baseURL.String(), c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	c.frontier.Enqueue(seed, 0)

	sweeperDone := make(chan struct{})
	go c.runSweeper(ctx, sweeperDone)

	c.dispatch(ctx)
	c.wg.Wait()
	close(sweeperDone)

	c.writer.Flush()
	c.emitProgress()

	status := "completed"
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		status = "timeout"
	case ctx.Err() != nil:
		status = "cancelled"
	}

	summary := c.buildSummary(status, time.Since(start))
	if _, err := c.db.AddHistory(c.historyRow(summary)); err != nil {
		c.logger.Error("failed to record crawl history", zap.Error(err))
	}

	if c.renderer != nil {
		c.renderer.Close()
	}
	c.fetcher.Close()

	c.logger.Info("crawl finished",
		zap.String("crawl_id", c.crawlID),
		zap.String("status", status),
		zap.Int("pages", summary.Pages),
		zap.Int("errors", summary.Errors),
		zap.Duration("elapsed", summary.Elapsed))

	return summary, nil
}

// dispatch spawns workers, one per popped URL, up to the concurrency
// bound minus what is already running. It returns when the crawl is done
// or the context ends.
func (c *Crawler) dispatch(ctx context.Context) {
	bound := int32(c.settings.ConcurrentRequests)

	for {
		if ctx.Err() != nil {
			return
		}

		stats := c.frontier.Stats()
		active := c.activeTasks.Load()

		// All termination conditions require no running tasks.
		if active == 0 {
			if stats.Queued == 0 && stats.InFlight == 0 {
				return
			}
			if stats.TotalDiscovered >= c.settings.MaxURLsPerDomain {
				return
			}
		}

		if active >= bound {
			sleepBriefly(ctx, dispatchIdleWait)
			continue
		}

		item, ok := c.frontier.Pop()
		if !ok {
			sleepBriefly(ctx, dispatchIdleWait)
			continue
		}

		c.activeTasks.Add(1)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			defer c.activeTasks.Add(-1)
			c.process(ctx, item)
		}()
	}
}

// process handles one URL end to end: fetch, trace, render, extract,
// discover, persist, emit. Per-URL errors never abort the crawl.
func (c *Crawler) process(ctx context.Context, item *frontier.URLItem) {
	defer c.touch()

	if c.advisory != nil && c.advisory.WouldBlock(item.URL) {
		c.robotsBlocked.Add(1)
	}

	if err := c.limiter.Wait(ctx, hostOf(item.URL)); err != nil {
		c.frontier.MarkFailed(item.URL, "cancelled before fetch", 0, item.Depth)
		return
	}

	timeout := staticPageTimeout
	if c.renderer != nil {
		timeout = renderPageTimeout
	}
	// Detached from the crawl context: cancellation stops new pops while
	// pages already in flight run to their own deadline and persist.
	pageCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	trace, err := c.tracer.Trace(pageCtx, item.URL)
	c.limiter.RecordAccess(hostOf(item.URL))
	if err != nil {
		c.fail(item, err.Error(), c.settings.MaxRetries)
		return
	}

	resp := trace.Response

	if trace.LoopDetected {
		c.fail(item, fmt.Sprintf("redirect loop after %d hops", trace.RedirectCount), resp.Attempts)
		return
	}

	if resp.IsRedirect() {
		// Chain ended on a 3xx (hop limit or missing Location).
		c.fail(item, fmt.Sprintf("unresolved redirect (%d)", resp.StatusCode), resp.Attempts)
		return
	}

	rendered := ""
	if c.renderer != nil && fetcher.IsHTML(resp.ContentType, resp.Body) {
		rendered, err = c.renderer.Render(pageCtx, trace.FinalURL)
		if err != nil {
			// Render failures fall back to the static body.
			c.logger.Warn("render failed, using static body",
				zap.String("url", trace.FinalURL), zap.Error(err))
			rendered = ""
		}
	}

	rec := c.pipeline.Run(pageCtx, &extract.Input{
		OriginalURL:  item.URL,
		BaseURL:      c.baseURL,
		Trace:        trace,
		RenderedHTML: rendered,
	})

	c.discover(rec, item.Depth)

	c.writer.Add(rec)
	c.frontier.MarkVisited(item.URL)
	c.crawled.Add(1)
	c.accumulate(rec)

	c.sink.Send(events.NewResultEvent(rec))

	if int(c.sinceProgress.Add(1)) >= c.settings.BatchSize {
		c.sinceProgress.Store(0)
		c.emitProgress()
	}
}

// discover runs every internal link through canonicalize → admit →
// enqueue. The frontier applies depth, domain-cap, dedup and pattern
// suppression atomically.
func (c *Crawler) discover(rec *storage.PageRecord, depth int) {
	if depth >= c.settings.MaxDepth {
		return
	}

	for _, link := range rec.InternalLinks {
		canonical, err := c.canon.Canonicalize(link.URL, c.baseURL)
		if err != nil {
			continue
		}
		if !c.filter.Admit(canonical, c.baseURL) {
			continue
		}
		c.frontier.Enqueue(canonical, depth+1)
	}
}

// fail records a terminal failure and reports progress.
func (c *Crawler) fail(item *frontier.URLItem, msg string, retries int) {
	c.frontier.MarkFailed(item.URL, msg, retries, item.Depth)
	c.logger.Debug("url failed", zap.String("url", item.URL), zap.String("error", msg))
	c.emitProgress()
}

// runSweeper periodically evicts in-flight entries that exceeded the max
// pending time, so a stalled crawl always drains.
func (c *Crawler) runSweeper(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(c.settings.StallCheckInterval())
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := c.frontier.SweepStale(c.settings.MaxPendingTime())
			if len(evicted) > 0 {
				c.logger.Warn("evicted stale in-flight urls", zap.Int("count", len(evicted)))
				c.touch()
				c.emitProgress()
			}
		}
	}
}

// emitProgress publishes a progress_update unless the computed values
// would be invalid.
func (c *Crawler) emitProgress() {
	stats := c.frontier.Stats()

	progress, ok := computeProgress(
		int(c.crawled.Load()),
		stats.Failed,
		stats.InFlight,
		int(c.activeTasks.Load()),
		stats.TotalDiscovered,
	)
	if !ok {
		return
	}

	progress.FailedURLs = c.frontier.FailedURLs(failedURLsCap)
	progress.RobotsBlocked = int(c.robotsBlocked.Load())

	c.sink.Send(events.NewProgressEvent(progress))
}

// accumulate folds a page into the crawl summary counters.
func (c *Crawler) accumulate(rec *storage.PageRecord) {
	c.totalLinks.Add(int64(len(rec.InternalLinks) + len(rec.ExternalLinks)))
	c.internalLinks.Add(int64(len(rec.InternalLinks)))
	c.externalLinks.Add(int64(len(rec.ExternalLinks)))
	if rec.Indexable {
		c.indexable.Add(1)
	} else {
		c.notIndexable.Add(1)
	}
}

func (c *Crawler) buildSummary(status string, elapsed time.Duration) *Summary {
	stats := c.frontier.Stats()
	var sitemaps []string
	if c.advisory != nil {
		sitemaps = c.advisory.Sitemaps()
	}
	return &Summary{
		CrawlID:       c.crawlID,
		Domain:        c.baseURL.Hostname(),
		Pages:         int(c.crawled.Load()),
		Errors:        stats.Failed,
		Status:        status,
		TotalLinks:    int(c.totalLinks.Load()),
		InternalLinks: int(c.internalLinks.Load()),
		ExternalLinks: int(c.externalLinks.Load()),
		Indexable:     int(c.indexable.Load()),
		NotIndexable:  int(c.notIndexable.Load()),
		Sitemaps:      sitemaps,
		Elapsed:       elapsed,
	}
}

func (c *Crawler) historyRow(s *Summary) *storage.CrawlSummary {
	return &storage.CrawlSummary{
		CrawlID:            s.CrawlID,
		Domain:             s.Domain,
		Date:               time.Now(),
		Pages:              s.Pages,
		Errors:             s.Errors,
		Status:             s.Status,
		TotalLinks:         s.TotalLinks,
		TotalInternalLinks: s.InternalLinks,
		TotalExternalLinks: s.ExternalLinks,
		IndexablePages:     s.Indexable,
		NotIndexablePages:  s.NotIndexable,
	}
}

// touch records activity for stall diagnostics.
func (c *Crawler) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity returns when the crawler last made progress.
func (c *Crawler) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func sleepBriefly(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
