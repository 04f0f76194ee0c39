package scheduler

import (
	"math"

	"github.com/seo-audit/crawler/internal/events"
)

// Clamp ceilings for the reported percentage. While work remains in
// flight the bar never claims more than 95%.
const (
	activeClamp = 95.0
	idleClamp   = 100.0
)

// computeProgress derives a progress payload from the crawl counters.
// It returns false when no valid payload can be produced: a zero
// denominator or a non-finite percentage must never reach a consumer.
func computeProgress(crawled, failed, inFlight, activeTasks, totalDiscovered int) (*events.Progress, bool) {
	completed := crawled + failed
	active := inFlight + activeTasks
	denominator := totalDiscovered + active

	if denominator <= 0 {
		return nil, false
	}

	percentage := float64(completed) / float64(denominator) * 100

	if math.IsNaN(percentage) || math.IsInf(percentage, 0) {
		return nil, false
	}

	if active > 0 && percentage > activeClamp {
		percentage = activeClamp
	}
	if percentage > idleClamp {
		percentage = idleClamp
	}
	if percentage < 0 {
		percentage = 0
	}

	return &events.Progress{
		TotalURLs:       totalDiscovered,
		CrawledURLs:     crawled,
		Percentage:      percentage,
		FailedURLsCount: failed,
		DiscoveredURLs:  totalDiscovered,
	}, true
}
