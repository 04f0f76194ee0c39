// Package events carries the one-way stream from the crawler to its
// consumer (the desktop shell, or the CLI in this repo).
package events

import (
	"time"

	"github.com/seo-audit/crawler/internal/frontier"
	"github.com/seo-audit/crawler/internal/storage"
)

// Event kinds.
const (
	KindProgressUpdate = "progress_update"
	KindCrawlResult    = "crawl_result"
)

// Progress is one progress_update payload. Values are always finite and
// the percentage is always within [0, 100]; the scheduler suppresses
// emissions that would violate that.
type Progress struct {
	TotalURLs       int                   `json:"total_urls"`
	CrawledURLs     int                   `json:"crawled_urls"`
	Percentage      float64               `json:"percentage"`
	FailedURLsCount int                   `json:"failed_urls_count"`
	FailedURLs      []*frontier.FailedURL `json:"failed_urls,omitempty"`
	DiscoveredURLs  int                   `json:"discovered_urls"`
	RobotsBlocked   int                   `json:"robots_blocked,omitempty"`
}

// Event is one element of the stream. Exactly one payload field is set,
// matching Kind.
type Event struct {
	Kind      string              `json:"kind"`
	Timestamp time.Time           `json:"timestamp"`
	Progress  *Progress           `json:"progress,omitempty"`
	Result    *storage.PageRecord `json:"result,omitempty"`
}

// Sink receives events. Implementations must not block for long; the
// bus drops progress updates when the consumer falls behind.
type Sink interface {
	Send(Event)
}

// Bus is a buffered channel-backed Sink. Crawl results are delivered
// reliably (blocking); progress updates are best-effort.
type Bus struct {
	ch chan Event
}

// NewBus creates a bus with the given buffer size.
func NewBus(buffer int) *Bus {
	if buffer < 1 {
		buffer = 64
	}
	return &Bus{ch: make(chan Event, buffer)}
}

// Send delivers an event. Progress updates are dropped when the buffer
// is full; results always land.
func (b *Bus) Send(ev Event) {
	if ev.Kind == KindProgressUpdate {
		select {
		case b.ch <- ev:
		default:
		}
		return
	}
	b.ch <- ev
}

// Events returns the receive side of the stream.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Close ends the stream. Only the scheduler closes the bus, and only
// after all workers have stopped.
func (b *Bus) Close() {
	close(b.ch)
}

// NewProgressEvent wraps a Progress payload.
func NewProgressEvent(p *Progress) Event {
	return Event{Kind: KindProgressUpdate, Timestamp: time.Now(), Progress: p}
}

// NewResultEvent wraps a PageRecord payload.
func NewResultEvent(rec *storage.PageRecord) Event {
	return Event{Kind: KindCrawlResult, Timestamp: time.Now(), Result: rec}
}
