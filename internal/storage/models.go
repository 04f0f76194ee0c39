// Package storage persists crawl results to an embedded SQLite store.
package storage

import (
	"encoding/json"
	"time"
)

// RedirectHop is one entry of a page's redirect chain.
type RedirectHop struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
}

// Link is a classified outgoing link with its presentation attributes.
type Link struct {
	URL        string `json:"url"`
	Anchor     string `json:"anchor,omitempty"`
	Rel        string `json:"rel,omitempty"`
	Title      string `json:"title,omitempty"`
	Target     string `json:"target,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}

// Image is one image reference found on a page.
type Image struct {
	URL   string `json:"url"`
	Alt   string `json:"alt"`
	Title string `json:"title,omitempty"`
}

// ImageDetail is the resolved status and size of one image resource.
// SizeBytes is -1 when the server reported no length.
type ImageDetail struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
	SizeBytes  int64  `json:"size_bytes"`
}

// Hreflang is one hreflang alternate declaration.
type Hreflang struct {
	Lang string `json:"lang"`
	URL  string `json:"url"`
}

// KeywordCount is one row of the keyword frequency table.
type KeywordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// PageSpeedResults holds the raw PageSpeed Insights payloads for both
// strategies. Payloads stay opaque; the UI renders them.
type PageSpeedResults struct {
	Mobile  json.RawMessage `json:"mobile,omitempty"`
	Desktop json.RawMessage `json:"desktop,omitempty"`
}

// PageRecord is the full extraction result for one URL. It is created by
// the extraction pipeline, persisted once, and immutable after emit.
type PageRecord struct {
	// === Identity & redirects ===

	OriginalURL     string        `json:"original_url"`
	FinalURL        string        `json:"final_url"`
	RedirectChain   []RedirectHop `json:"redirect_chain,omitempty"`
	HadRedirect     bool          `json:"had_redirect"`
	RedirectCount   int           `json:"redirect_count"`
	RedirectionType int           `json:"redirection_type,omitempty"`

	// === Response metadata ===

	StatusCode     int               `json:"status_code"`
	ContentType    string            `json:"content_type"`
	ContentLength  int64             `json:"content_length"`
	ResponseTimeMS int64             `json:"response_time_ms"`
	HTTPHeaders    map[string]string `json:"http_headers,omitempty"`
	Cookies        []string          `json:"cookies,omitempty"`

	// === On-page extractions ===

	Title         string              `json:"title,omitempty"`
	Description   string              `json:"description,omitempty"`
	Headings      map[string][]string `json:"headings,omitempty"`
	InternalLinks []Link              `json:"internal_links,omitempty"`
	ExternalLinks []Link              `json:"external_links,omitempty"`
	ImageURLs     []string            `json:"image_urls,omitempty"`
	AltTags       map[string]string   `json:"alt_tags,omitempty"`
	ImageDetails  []ImageDetail       `json:"image_details,omitempty"`

	// === Indexing signals ===

	Canonicals   []string   `json:"canonicals,omitempty"`
	Hreflangs    []Hreflang `json:"hreflangs,omitempty"`
	MetaRobots   string     `json:"meta_robots,omitempty"`
	Indexability string     `json:"indexability,omitempty"`
	Indexable    bool       `json:"indexable"`
	SchemaJSONLD []string   `json:"schema_jsonld,omitempty"`

	// === Content metrics ===

	Language    string         `json:"language,omitempty"`
	WordCount   int            `json:"word_count,omitempty"`
	TextRatio   float64        `json:"text_ratio,omitempty"`
	FleschScore float64        `json:"flesch_score,omitempty"`
	Keywords    []KeywordCount `json:"keywords,omitempty"`
	Ngrams      map[string]int `json:"ngrams,omitempty"`

	// === Page quality ===

	MobileViewport bool `json:"mobile_viewport"`
	IsHTTPS        bool `json:"is_https"`

	// === Derived ===

	URLDepth      int      `json:"url_depth"`
	HTMLSizeBytes int64    `json:"html_size_bytes,omitempty"`
	HTMLSizeKB    float64  `json:"html_size_kb,omitempty"`
	PDFFiles      []string `json:"pdf_files,omitempty"`

	// === Optional follow-ups ===

	PSIResults          *PageSpeedResults `json:"psi_results,omitempty"`
	CustomSearchMatches int               `json:"custom_search_matches,omitempty"`

	CrawledAt time.Time `json:"crawled_at"`
}

// CrawlSummary is one row of the crawl history table.
type CrawlSummary struct {
	ID                 int64     `json:"id"`
	CrawlID            string    `json:"crawl_id"`
	Domain             string    `json:"domain"`
	Date               time.Time `json:"date"`
	Pages              int       `json:"pages"`
	Errors             int       `json:"errors"`
	Status             string    `json:"status"`
	TotalLinks         int       `json:"total_links"`
	TotalInternalLinks int       `json:"total_internal_links"`
	TotalExternalLinks int       `json:"total_external_links"`
	IndexablePages     int       `json:"indexable_pages"`
	NotIndexablePages  int       `json:"not_indexable_pages"`
}

// CustomSearch is the single-row bespoke-selector configuration.
type CustomSearch struct {
	Type       string `json:"type"`
	Selector   string `json:"selector"`
	SearchText string `json:"search_text"`
}
