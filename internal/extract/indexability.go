package extract

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/seo-audit/crawler/internal/storage"
)

// IndexabilityExtractor collects canonical and hreflang declarations and
// derives the page's indexability verdict.
type IndexabilityExtractor struct{}

func (e *IndexabilityExtractor) Name() string { return "indexability" }

func (e *IndexabilityExtractor) Extract(doc *goquery.Document, pageURL, baseURL *url.URL, rec *storage.PageRecord) error {
	doc.Find(`head link[rel="canonical"]`).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		rec.Canonicals = append(rec.Canonicals, pageURL.ResolveReference(ref).String())
	})

	doc.Find(`head link[rel="alternate"][hreflang]`).Each(func(_ int, s *goquery.Selection) {
		lang, _ := s.Attr("hreflang")
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		rec.Hreflangs = append(rec.Hreflangs, storage.Hreflang{
			Lang: strings.TrimSpace(lang),
			URL:  pageURL.ResolveReference(ref).String(),
		})
	})

	rec.Indexable, rec.Indexability = verdict(rec, pageURL)
	return nil
}

// verdict derives the indexability of a page from its status code,
// robots directives and canonical target.
func verdict(rec *storage.PageRecord, pageURL *url.URL) (bool, string) {
	if rec.StatusCode >= 300 {
		return false, "Non-Indexable: status code"
	}
	if strings.Contains(rec.MetaRobots, "noindex") {
		return false, "Non-Indexable: noindex"
	}
	if xr, ok := rec.HTTPHeaders["X-Robots-Tag"]; ok && strings.Contains(strings.ToLower(xr), "noindex") {
		return false, "Non-Indexable: x-robots-tag"
	}
	for _, canonical := range rec.Canonicals {
		cu, err := url.Parse(canonical)
		if err != nil {
			continue
		}
		if cu.Hostname() != pageURL.Hostname() || cu.Path != pageURL.Path {
			return false, "Non-Indexable: canonicalised"
		}
	}
	return true, "Indexable"
}

// SchemaExtractor collects JSON-LD structured data blocks verbatim,
// keeping only blocks that are valid JSON.
type SchemaExtractor struct{}

func (e *SchemaExtractor) Name() string { return "schema" }

func (e *SchemaExtractor) Extract(doc *goquery.Document, pageURL, baseURL *url.URL, rec *storage.PageRecord) error {
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		blob := strings.TrimSpace(s.Text())
		if blob == "" || !json.Valid([]byte(blob)) {
			return
		}
		rec.SchemaJSONLD = append(rec.SchemaJSONLD, blob)
	})
	return nil
}

// CustomSearchExtractor matches the stored bespoke selector or text
// against the document and records the match count.
type CustomSearchExtractor struct {
	Config *storage.CustomSearch
}

func (e *CustomSearchExtractor) Name() string { return "custom_search" }

func (e *CustomSearchExtractor) Extract(doc *goquery.Document, pageURL, baseURL *url.URL, rec *storage.PageRecord) error {
	switch e.Config.Type {
	case "selector":
		rec.CustomSearchMatches = doc.Find(e.Config.Selector).Length()
	case "text":
		if e.Config.SearchText != "" {
			rec.CustomSearchMatches = strings.Count(
				strings.ToLower(doc.Text()),
				strings.ToLower(e.Config.SearchText))
		}
	}
	return nil
}
