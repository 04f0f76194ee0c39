package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/seo-audit/crawler/internal/storage"
)

// MetaExtractor pulls title, description, robots, language and viewport.
type MetaExtractor struct{}

func (e *MetaExtractor) Name() string { return "meta" }

func (e *MetaExtractor) Extract(doc *goquery.Document, pageURL, baseURL *url.URL, rec *storage.PageRecord) error {
	rec.Title = strings.TrimSpace(doc.Find("head title").First().Text())

	doc.Find("head meta").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		content, _ := s.Attr("content")
		switch strings.ToLower(name) {
		case "description":
			if rec.Description == "" {
				rec.Description = strings.TrimSpace(content)
			}
		case "robots":
			if rec.MetaRobots == "" {
				rec.MetaRobots = strings.TrimSpace(strings.ToLower(content))
			}
		case "viewport":
			rec.MobileViewport = strings.Contains(strings.ToLower(content), "width=device-width")
		}
	})

	if lang, ok := doc.Find("html").Attr("lang"); ok {
		rec.Language = strings.TrimSpace(lang)
	}

	return nil
}

// HeadingsExtractor collects h1 through h6 text in document order.
type HeadingsExtractor struct{}

func (e *HeadingsExtractor) Name() string { return "headings" }

func (e *HeadingsExtractor) Extract(doc *goquery.Document, pageURL, baseURL *url.URL, rec *storage.PageRecord) error {
	headings := make(map[string][]string)
	for _, level := range []string{"h1", "h2", "h3", "h4", "h5", "h6"} {
		doc.Find(level).Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if text != "" {
				headings[level] = append(headings[level], text)
			}
		})
	}
	if len(headings) > 0 {
		rec.Headings = headings
	}
	return nil
}
