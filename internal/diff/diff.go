// Package diff compares two persisted crawls by canonical URL.
package diff

import (
	"sort"

	"github.com/seo-audit/crawler/internal/storage"
)

// FieldDelta is one tracked before/after pair on a changed page.
type FieldDelta struct {
	StatusCodeBefore int `json:"status_code_before"`
	StatusCodeAfter  int `json:"status_code_after"`

	TitleBefore string `json:"title_before"`
	TitleAfter  string `json:"title_after"`

	InternalLinksBefore int `json:"internal_links_before"`
	InternalLinksAfter  int `json:"internal_links_after"`

	IndexabilityBefore string `json:"indexability_before"`
	IndexabilityAfter  string `json:"indexability_after"`
}

// Change pairs a URL with its delta sketch.
type Change struct {
	URL   string     `json:"url"`
	Delta FieldDelta `json:"delta"`
}

// Result classifies every URL of two crawls.
type Result struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Changed []Change `json:"changed"`
}

// Compare classifies current against previous: missing from previous is
// added, missing from current is removed, present in both with any
// tracked field changed is changed. Output slices are sorted by URL.
func Compare(previous, current map[string]*storage.PageRecord) *Result {
	result := &Result{}

	for url, cur := range current {
		prev, ok := previous[url]
		if !ok {
			result.Added = append(result.Added, url)
			continue
		}
		if delta, changed := compareRecords(prev, cur); changed {
			result.Changed = append(result.Changed, Change{URL: url, Delta: delta})
		}
	}

	for url := range previous {
		if _, ok := current[url]; !ok {
			result.Removed = append(result.Removed, url)
		}
	}

	sort.Strings(result.Added)
	sort.Strings(result.Removed)
	sort.Slice(result.Changed, func(i, j int) bool {
		return result.Changed[i].URL < result.Changed[j].URL
	})

	return result
}

// Stores compares two crawl stores directly.
func Stores(previous, current *storage.Database) (*Result, error) {
	prevPages, err := previous.AllPages()
	if err != nil {
		return nil, err
	}
	curPages, err := current.AllPages()
	if err != nil {
		return nil, err
	}
	return Compare(prevPages, curPages), nil
}

func compareRecords(prev, cur *storage.PageRecord) (FieldDelta, bool) {
	delta := FieldDelta{
		StatusCodeBefore:    prev.StatusCode,
		StatusCodeAfter:     cur.StatusCode,
		TitleBefore:         prev.Title,
		TitleAfter:          cur.Title,
		InternalLinksBefore: len(prev.InternalLinks),
		InternalLinksAfter:  len(cur.InternalLinks),
		IndexabilityBefore:  prev.Indexability,
		IndexabilityAfter:   cur.Indexability,
	}

	changed := delta.StatusCodeBefore != delta.StatusCodeAfter ||
		delta.TitleBefore != delta.TitleAfter ||
		delta.InternalLinksBefore != delta.InternalLinksAfter ||
		delta.IndexabilityBefore != delta.IndexabilityAfter

	return delta, changed
}
