// Package frontier owns the mutable crawl state: the FIFO queue and the
// queued / in-flight / visited / failed sets, plus the pattern deduper.
// Every URL is in at most one of the four sets at any moment, and all
// transitions happen under a single mutex.
package frontier

import (
	"container/list"
	"sync"
	"time"
)

// URLItem is one queued URL with its BFS depth.
type URLItem struct {
	URL     string
	Depth   int
	AddedAt time.Time
}

// FailedURL records a URL that terminally failed for this crawl.
type FailedURL struct {
	URL          string    `json:"url"`
	Error        string    `json:"error"`
	RetryCount   int       `json:"retry_count"`
	Depth        int       `json:"depth"`
	FirstFailure time.Time `json:"first_failure_time"`
}

// Stats is a point-in-time snapshot of the frontier.
type Stats struct {
	Queued          int
	InFlight        int
	Visited         int
	Failed          int
	TotalDiscovered int
}

// Frontier is the in-memory crawl state. All methods are safe for
// concurrent use; each is a single atomic state transition.
type Frontier struct {
	mu sync.Mutex

	queue    *list.List
	queued   map[string]struct{}
	inFlight map[string]inFlightEntry
	visited  map[string]struct{}
	failed   map[string]*FailedURL

	patterns *PatternSet

	maxDepth        int
	maxURLs         int
	totalDiscovered int
}

type inFlightEntry struct {
	depth      int
	enqueuedAt time.Time
}

// New creates an empty frontier with the given depth and URL caps.
func New(maxDepth, maxURLs int) *Frontier {
	return &Frontier{
		queue:    list.New(),
		queued:   make(map[string]struct{}),
		inFlight: make(map[string]inFlightEntry),
		visited:  make(map[string]struct{}),
		failed:   make(map[string]*FailedURL),
		patterns: NewPatternSet(),
		maxDepth: maxDepth,
		maxURLs:  maxURLs,
	}
}

// Enqueue adds a canonical URL at the given depth. It returns false when
// the URL is over the depth or domain cap, already known in any set, or
// suppressed by the pattern deduper.
func (f *Frontier) Enqueue(url string, depth int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if depth > f.maxDepth {
		return false
	}
	if f.totalDiscovered >= f.maxURLs {
		return false
	}
	if f.known(url) {
		return false
	}
	if !f.patterns.Admit(url) {
		return false
	}

	f.queue.PushBack(&URLItem{URL: url, Depth: depth, AddedAt: time.Now()})
	f.queued[url] = struct{}{}
	f.totalDiscovered++
	return true
}

// known reports membership in any of the four sets. Caller holds the lock.
func (f *Frontier) known(url string) bool {
	if _, ok := f.queued[url]; ok {
		return true
	}
	if _, ok := f.inFlight[url]; ok {
		return true
	}
	if _, ok := f.visited[url]; ok {
		return true
	}
	_, ok := f.failed[url]
	return ok
}

// Pop transfers the head of the queue into the in-flight set and returns
// it. The transfer is atomic: two racing workers cannot pop the same URL.
func (f *Frontier) Pop() (*URLItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	elem := f.queue.Front()
	if elem == nil {
		return nil, false
	}
	item := f.queue.Remove(elem).(*URLItem)

	delete(f.queued, item.URL)
	f.inFlight[item.URL] = inFlightEntry{depth: item.Depth, enqueuedAt: time.Now()}
	return item, true
}

// MarkVisited moves an in-flight URL into the visited set.
func (f *Frontier) MarkVisited(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.inFlight, url)
	f.visited[url] = struct{}{}
}

// MarkFailed moves an in-flight URL into the failed set. Failure is
// terminal for this run.
func (f *Frontier) MarkFailed(url, errMsg string, retryCount, depth int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.inFlight, url)
	if _, ok := f.failed[url]; ok {
		return
	}
	f.failed[url] = &FailedURL{
		URL:          url,
		Error:        errMsg,
		RetryCount:   retryCount,
		Depth:        depth,
		FirstFailure: time.Now(),
	}
}

// SweepStale evicts in-flight entries older than maxAge into the failed
// set and returns the evicted URLs.
func (f *Frontier) SweepStale(maxAge time.Duration) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	var evicted []string
	for url, entry := range f.inFlight {
		if now.Sub(entry.enqueuedAt) <= maxAge {
			continue
		}
		delete(f.inFlight, url)
		if _, ok := f.failed[url]; !ok {
			f.failed[url] = &FailedURL{
				URL:          url,
				Error:        "evicted: in-flight longer than max pending time",
				Depth:        entry.depth,
				FirstFailure: now,
			}
		}
		evicted = append(evicted, url)
	}
	return evicted
}

// Stats returns a snapshot of the frontier counters.
func (f *Frontier) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()

	return Stats{
		Queued:          f.queue.Len(),
		InFlight:        len(f.inFlight),
		Visited:         len(f.visited),
		Failed:          len(f.failed),
		TotalDiscovered: f.totalDiscovered,
	}
}

// IsEmpty reports whether both the queue and the in-flight set are empty.
func (f *Frontier) IsEmpty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue.Len() == 0 && len(f.inFlight) == 0
}

// TotalDiscovered returns the count of URLs ever admitted to the queue.
func (f *Frontier) TotalDiscovered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.totalDiscovered
}

// FailedURLs returns up to limit failure records (0 = all).
func (f *Frontier) FailedURLs(limit int) []*FailedURL {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*FailedURL, 0, len(f.failed))
	for _, fu := range f.failed {
		out = append(out, fu)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
