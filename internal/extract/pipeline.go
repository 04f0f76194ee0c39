// Package extract turns a fetched response into a PageRecord. The body
// is parsed once; extractors fan out synchronously over the parsed DOM,
// and only the plain PageRecord crosses into any concurrent follow-up
// work (link checks, PageSpeed calls).
package extract

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/seo-audit/crawler/internal/config"
	"github.com/seo-audit/crawler/internal/fetcher"
	"github.com/seo-audit/crawler/internal/storage"
	"github.com/seo-audit/crawler/internal/urlutil"
)

// Extractor is one pure extraction pass over the parsed document.
// Extractors must not retain doc; everything they produce goes onto rec.
type Extractor interface {
	Name() string
	Extract(doc *goquery.Document, pageURL, baseURL *url.URL, rec *storage.PageRecord) error
}

// Input carries everything the pipeline needs for one page.
type Input struct {
	OriginalURL string
	BaseURL     *url.URL
	Trace       *fetcher.TraceResult

	// Post-render DOM; empty means the static body is used.
	RenderedHTML string
}

// Pipeline orchestrates extraction for every crawled page.
type Pipeline struct {
	settings   *config.Settings
	extractors []Extractor
	checker    *LinkChecker
	pagespeed  *PageSpeedClient
	logger     *zap.Logger
}

// New builds a pipeline with the fixed extractor registry. The custom
// search extractor is included only when cs is non-nil.
func New(settings *config.Settings, checker *LinkChecker, psi *PageSpeedClient, cs *storage.CustomSearch, logger *zap.Logger) *Pipeline {
	extractors := []Extractor{
		&MetaExtractor{},
		&HeadingsExtractor{},
		&LinksExtractor{},
		&ImagesExtractor{},
		&IndexabilityExtractor{},
		&SchemaExtractor{},
		NewContentExtractor(settings.StopWords, settings.ExtractNgrams),
	}
	if cs != nil && (cs.Selector != "" || cs.SearchText != "") {
		extractors = append(extractors, &CustomSearchExtractor{Config: cs})
	}

	return &Pipeline{
		settings:   settings,
		extractors: extractors,
		checker:    checker,
		pagespeed:  psi,
		logger:     logger,
	}
}

// Run produces the PageRecord for one traced fetch. Extractor failures
// are isolated: a failing extractor leaves its fields at their zero
// values and the page is still emitted.
func (p *Pipeline) Run(ctx context.Context, in *Input) *storage.PageRecord {
	resp := in.Trace.Response

	rec := &storage.PageRecord{
		OriginalURL:     in.OriginalURL,
		FinalURL:        in.Trace.FinalURL,
		RedirectChain:   convertChain(in.Trace.Chain),
		HadRedirect:     in.Trace.HadRedirect,
		RedirectCount:   in.Trace.RedirectCount,
		RedirectionType: in.Trace.RedirectionType,
		StatusCode:      resp.StatusCode,
		ContentType:     resp.ContentType,
		ContentLength:   resp.ContentLength,
		ResponseTimeMS:  in.Trace.Elapsed.Milliseconds(),
		HTTPHeaders:     flattenHeaders(resp),
		Cookies:         cookieNames(resp),
		URLDepth:        urlutil.URLDepth(in.Trace.FinalURL),
		IsHTTPS:         strings.HasPrefix(strings.ToLower(in.Trace.FinalURL), "https://"),
		CrawledAt:       time.Now(),
	}

	body := resp.Body
	if in.RenderedHTML != "" {
		body = []byte(in.RenderedHTML)
	}

	rec.HTMLSizeBytes = int64(len(body))
	rec.HTMLSizeKB = float64(len(body)) / 1024.0

	if !fetcher.IsHTML(resp.ContentType, body) {
		if resp.IsPDF() {
			rec.PDFFiles = []string{in.OriginalURL}
		}
		return rec
	}

	pageURL, err := url.Parse(in.Trace.FinalURL)
	if err != nil {
		p.logger.Warn("unparseable final url", zap.String("url", in.Trace.FinalURL), zap.Error(err))
		return rec
	}

	// Parse once. The document stays inside this scope; after the fan-out
	// only rec survives.
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		p.logger.Warn("html parse failed", zap.String("url", in.Trace.FinalURL), zap.Error(err))
		return rec
	}
	doc := goquery.NewDocumentFromNode(root)

	for _, ex := range p.extractors {
		if err := ex.Extract(doc, pageURL, in.BaseURL, rec); err != nil {
			p.logger.Warn("extractor failed",
				zap.String("extractor", ex.Name()),
				zap.String("url", in.Trace.FinalURL),
				zap.Error(err))
		}
	}

	// Network follow-ups run only on the plain record.
	p.followUps(ctx, rec)

	return rec
}

// followUps performs the concurrent per-page network work: status checks
// of discovered links, image detail resolution, and optional PageSpeed
// calls. Failures here never fail the page.
func (p *Pipeline) followUps(ctx context.Context, rec *storage.PageRecord) {
	if p.checker != nil {
		p.checker.CheckLinks(ctx, rec.InternalLinks)
		rec.ImageDetails = p.checker.CheckImages(ctx, rec.ImageURLs)
	}

	if p.pagespeed != nil && p.settings.PageSpeedBulk {
		results, err := p.pagespeed.Analyze(ctx, rec.FinalURL)
		if err != nil {
			p.logger.Warn("pagespeed call failed", zap.String("url", rec.FinalURL), zap.Error(err))
		} else {
			rec.PSIResults = results
		}
	}
}

func convertChain(chain []fetcher.RedirectHop) []storage.RedirectHop {
	if len(chain) == 0 {
		return nil
	}
	out := make([]storage.RedirectHop, len(chain))
	for i, hop := range chain {
		out[i] = storage.RedirectHop{URL: hop.URL, StatusCode: hop.StatusCode}
	}
	return out
}

func flattenHeaders(resp *fetcher.Response) map[string]string {
	if resp.Headers == nil {
		return nil
	}
	out := make(map[string]string, len(resp.Headers))
	for k, v := range resp.Headers {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func cookieNames(resp *fetcher.Response) []string {
	if len(resp.Cookies) == 0 {
		return nil
	}
	out := make([]string, len(resp.Cookies))
	for i, c := range resp.Cookies {
		out[i] = c.Name
	}
	return out
}
