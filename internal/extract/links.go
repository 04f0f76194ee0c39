package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/seo-audit/crawler/internal/storage"
)

// LinksExtractor collects anchors and classifies them as internal or
// external relative to the crawl's base host.
type LinksExtractor struct{}

func (e *LinksExtractor) Name() string { return "links" }

func (e *LinksExtractor) Extract(doc *goquery.Document, pageURL, baseURL *url.URL, rec *storage.PageRecord) error {
	seen := make(map[string]struct{})

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		lower := strings.ToLower(href)
		if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := pageURL.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		resolved.Fragment = ""

		target := resolved.String()
		if _, dup := seen[target]; dup {
			return
		}
		seen[target] = struct{}{}

		link := storage.Link{
			URL:    target,
			Anchor: strings.TrimSpace(s.Text()),
		}
		if rel, ok := s.Attr("rel"); ok {
			link.Rel = rel
		}
		if title, ok := s.Attr("title"); ok {
			link.Title = title
		}
		if tgt, ok := s.Attr("target"); ok {
			link.Target = tgt
		}

		if isInternalHost(resolved.Hostname(), baseURL.Hostname()) {
			rec.InternalLinks = append(rec.InternalLinks, link)
		} else {
			rec.ExternalLinks = append(rec.ExternalLinks, link)
		}
	})

	return nil
}

// isInternalHost treats the base host and its true subdomains as internal.
func isInternalHost(host, baseHost string) bool {
	host = strings.ToLower(host)
	baseHost = strings.ToLower(baseHost)
	return host == baseHost || strings.HasSuffix(host, "."+baseHost)
}

// ImagesExtractor inventories images and their alt text.
type ImagesExtractor struct{}

func (e *ImagesExtractor) Name() string { return "images" }

func (e *ImagesExtractor) Extract(doc *goquery.Document, pageURL, baseURL *url.URL, rec *storage.PageRecord) error {
	alts := make(map[string]string)

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok || strings.TrimSpace(src) == "" {
			// Lazy-loaded images keep the real source in data-src.
			src, ok = s.Attr("data-src")
			if !ok || strings.TrimSpace(src) == "" {
				return
			}
		}

		ref, err := url.Parse(strings.TrimSpace(src))
		if err != nil {
			return
		}
		resolved := pageURL.ResolveReference(ref).String()

		if _, dup := alts[resolved]; dup {
			return
		}
		alt, _ := s.Attr("alt")
		alts[resolved] = alt
		rec.ImageURLs = append(rec.ImageURLs, resolved)
	})

	if len(alts) > 0 {
		rec.AltTags = alts
	}
	return nil
}
