package frontier

import (
	"regexp"
	"strconv"
	"strings"
)

// digitRun matches runs of four or more consecutive digits.
var digitRun = regexp.MustCompile(`\d{4,}`)

// Tier thresholds for the per-pattern cap. The cap loosens early in the
// crawl, tightens once the site's shape is known, and relaxes again for
// very large sets.
const (
	smallSetMax = 1000
	midSetMax   = 5000

	smallSetCap = 20
	midSetCap   = 5
	largeSetCap = 10
)

// PatternSet caps how often structurally identical URLs (session ids,
// faceted navigation, numeric product ids) may enter the queue.
// It is owned by the Frontier and accessed under the Frontier's mutex.
type PatternSet struct {
	counts map[string]int
	size   int
}

// NewPatternSet creates an empty pattern multiset.
func NewPatternSet() *PatternSet {
	return &PatternSet{counts: make(map[string]int)}
}

// Pattern reduces a URL to its structural pattern: long numeric runs
// collapse to "N" and busy query strings are dropped entirely.
func Pattern(rawURL string) string {
	pattern := digitRun.ReplaceAllStringFunc(rawURL, func(run string) string {
		v, err := strconv.ParseInt(run, 10, 64)
		if err != nil {
			// Longer than int64: certainly not a year.
			return "N"
		}
		if v <= 999 {
			// Leading zeros; small values stay literal.
			return run
		}
		if v >= 1900 && v <= 2099 {
			// Year guard: plausible years are structural, not ids.
			return run
		}
		return "N"
	})

	if idx := strings.Index(pattern, "?"); idx != -1 {
		if strings.Count(pattern[idx+1:], "&") > 2 {
			pattern = pattern[:idx]
		}
	}
	return pattern
}

// Admit records the URL's pattern and reports whether the URL may be
// queued. A URL is rejected once its pattern has been emitted more than
// the cap for the current multiset size.
func (p *PatternSet) Admit(rawURL string) bool {
	pattern := Pattern(rawURL)

	limit := smallSetCap
	switch {
	case p.size > midSetMax:
		limit = largeSetCap
	case p.size > smallSetMax:
		limit = midSetCap
	}

	if p.counts[pattern] > limit {
		return false
	}

	p.counts[pattern]++
	p.size++
	return true
}

// Size returns the multiset size (total patterns emitted).
func (p *PatternSet) Size() int {
	return p.size
}

// Reset clears the multiset. Called only when a crawl ends.
func (p *PatternSet) Reset() {
	p.counts = make(map[string]int)
	p.size = 0
}
