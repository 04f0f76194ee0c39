// Package config defines the per-crawl settings snapshot.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
)

// Settings holds all configuration for a crawl. A Settings value is
// snapshotted when a crawl starts and never mutated while it runs.
type Settings struct {
	// === Retry & Backoff ===

	// Maximum fetch attempts per request
	MaxRetries int `json:"max_retries" validate:"gte=0"`

	// Base delay for exponential backoff, in milliseconds
	BaseDelayMS int `json:"base_delay_ms" validate:"gte=0"`

	// Ceiling for exponential backoff, in milliseconds
	MaxDelayMS int `json:"max_delay_ms" validate:"gte=0"`

	// === Concurrency & Limits ===

	// Simultaneous in-flight pages
	ConcurrentRequests int `json:"concurrent_requests" validate:"gte=1"`

	// Overall crawl wall-clock budget, in seconds
	CrawlTimeoutS int `json:"crawl_timeout_s" validate:"gte=1"`

	// Pages accumulated before a progress emission batch
	BatchSize int `json:"batch_size" validate:"gte=1"`

	// PageRecords accumulated before a transactional flush
	DBBatchSize int `json:"db_batch_size" validate:"gte=1"`

	// Hard cap on URLs discovered for one domain
	MaxURLsPerDomain int `json:"max_urls_per_domain" validate:"gte=1"`

	// Maximum BFS depth; the seed is depth 0
	MaxDepth int `json:"max_depth" validate:"gte=0"`

	// Age at which an in-flight URL is swept to failed, in seconds
	MaxPendingTimeS int `json:"max_pending_time_s" validate:"gte=1"`

	// How often the stale sweeper runs, in seconds
	StallCheckIntervalS int `json:"stall_check_interval_s" validate:"gte=1"`

	// === Rendering ===

	// Simultaneous headless browser instances
	JSConcurrency int `json:"js_concurrency" validate:"gte=1"`

	// Render pages through the headless browser after the static fetch
	JavaScriptRendering bool `json:"javascript_rendering"`

	// === Extraction ===

	// Compute bigram/trigram tables for HTML pages
	ExtractNgrams bool `json:"extract_ngrams"`

	// Call the PageSpeed API for every crawled page
	PageSpeedBulk bool `json:"page_speed_bulk"`

	// API key for PageSpeed calls; empty disables them
	PageSpeedAPIKey string `json:"page_speed_api_key"`

	// Words excluded from keyword and n-gram tables
	StopWords []string `json:"stop_words"`

	// === Politeness ===

	// User-agent pool; one entry is picked per crawl start
	UserAgentRotation []string `json:"user_agent_rotation" validate:"min=1"`

	// Minimum delay between requests to the same host, in milliseconds
	CrawlDelayMS int `json:"crawl_delay_ms" validate:"gte=0"`

	// Global request rate across all hosts (0 = unlimited)
	RequestsPerSecond float64 `json:"requests_per_second" validate:"gte=0"`

	// === URL Admission ===

	// Path suffixes never queued (assets, archives, documents)
	ExcludedExtensions []string `json:"excluded_extensions"`

	// Substrings that disqualify a URL (auth/commerce surfaces)
	BlacklistSubstrings []string `json:"blacklist_substrings"`

	// Reject URLs longer than this
	MaxURLLength int `json:"max_url_length" validate:"gte=1"`

	// Reject URLs whose query has more '&' separators than this
	MaxQuerySeparators int `json:"max_query_separators" validate:"gte=0"`

	// Query parameters stripped during canonicalization
	TrackingParams []string `json:"tracking_params"`
}

// DefaultSettings returns a Settings with the documented defaults.
func DefaultSettings() *Settings {
	return &Settings{
		MaxRetries:  5,
		BaseDelayMS: 1000,
		MaxDelayMS:  60000,

		ConcurrentRequests:  150,
		CrawlTimeoutS:       8 * 60 * 60,
		BatchSize:           50,
		DBBatchSize:         100,
		MaxURLsPerDomain:    50000,
		MaxDepth:            50,
		MaxPendingTimeS:     15 * 60,
		StallCheckIntervalS: 30,

		JSConcurrency:       2,
		JavaScriptRendering: false,

		ExtractNgrams: false,
		PageSpeedBulk: false,
		StopWords: []string{
			"a", "an", "and", "are", "as", "at", "be", "but", "by", "for",
			"if", "in", "into", "is", "it", "no", "not", "of", "on", "or",
			"such", "that", "the", "their", "then", "there", "these",
			"they", "this", "to", "was", "will", "with",
		},

		UserAgentRotation: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
		},
		CrawlDelayMS:      0,
		RequestsPerSecond: 0,

		ExcludedExtensions: []string{
			".jpg", ".jpeg", ".png", ".gif", ".bmp", ".ico", ".svg", ".webp",
			".css", ".js", ".woff", ".woff2", ".ttf", ".eot",
			".zip", ".rar", ".tar", ".gz", ".7z",
			".mp3", ".mp4", ".avi", ".mov", ".wmv",
			".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
		},
		BlacklistSubstrings: []string{
			"login", "logout", "signin", "admin", "dashboard",
			"cart", "checkout", "payment", "wp-admin", "wp-login",
			"javascript:", "mailto:", "tel:",
		},
		MaxURLLength:       500,
		MaxQuerySeparators: 8,

		TrackingParams: []string{
			"utm_source", "utm_medium", "utm_campaign", "utm_term",
			"utm_content", "fbclid", "gclid", "msclkid",
		},
	}
}

var validate = validator.New()

// Validate checks the settings for internal consistency.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	if s.MaxDelayMS < s.BaseDelayMS {
		return fmt.Errorf("invalid settings: max_delay_ms (%d) < base_delay_ms (%d)", s.MaxDelayMS, s.BaseDelayMS)
	}
	return nil
}

// Duration accessors. JSON keeps integer units; callers work in time.Duration.

func (s *Settings) BaseDelay() time.Duration      { return time.Duration(s.BaseDelayMS) * time.Millisecond }
func (s *Settings) MaxDelay() time.Duration       { return time.Duration(s.MaxDelayMS) * time.Millisecond }
func (s *Settings) CrawlTimeout() time.Duration   { return time.Duration(s.CrawlTimeoutS) * time.Second }
func (s *Settings) MaxPendingTime() time.Duration { return time.Duration(s.MaxPendingTimeS) * time.Second }
func (s *Settings) StallCheckInterval() time.Duration {
	return time.Duration(s.StallCheckIntervalS) * time.Second
}
func (s *Settings) CrawlDelay() time.Duration { return time.Duration(s.CrawlDelayMS) * time.Millisecond }

// Save writes the settings to a JSON file.
func (s *Settings) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}

// Load reads settings from a JSON file, starting from defaults so absent
// keys keep their documented values.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	s := DefaultSettings()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Clone creates a deep copy of the settings.
func (s *Settings) Clone() *Settings {
	clone := *s

	clone.StopWords = append([]string(nil), s.StopWords...)
	clone.UserAgentRotation = append([]string(nil), s.UserAgentRotation...)
	clone.ExcludedExtensions = append([]string(nil), s.ExcludedExtensions...)
	clone.BlacklistSubstrings = append([]string(nil), s.BlacklistSubstrings...)
	clone.TrackingParams = append([]string(nil), s.TrackingParams...)

	return &clone
}
