package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seo-audit/crawler/internal/storage"
)

func page(url, title string, status, links int) *storage.PageRecord {
	rec := &storage.PageRecord{
		OriginalURL:  url,
		Title:        title,
		StatusCode:   status,
		Indexability: "Indexable",
	}
	for i := 0; i < links; i++ {
		rec.InternalLinks = append(rec.InternalLinks, storage.Link{URL: url + "/child"})
	}
	return rec
}

func TestCompareSelfIsEmpty(t *testing.T) {
	crawl := map[string]*storage.PageRecord{
		"https://example.com/":  page("https://example.com/", "Home", 200, 3),
		"https://example.com/a": page("https://example.com/a", "A", 200, 1),
	}

	result := Compare(crawl, crawl)
	assert.Empty(t, result.Added)
	assert.Empty(t, result.Removed)
	assert.Empty(t, result.Changed)
}

func TestCompare(t *testing.T) {
	previous := map[string]*storage.PageRecord{
		"https://example.com/":     page("https://example.com/", "Home", 200, 3),
		"https://example.com/old":  page("https://example.com/old", "Old", 200, 1),
		"https://example.com/same": page("https://example.com/same", "Same", 200, 2),
		"https://example.com/gone": page("https://example.com/gone", "Gone", 200, 0),
	}
	current := map[string]*storage.PageRecord{
		"https://example.com/":     page("https://example.com/", "Home v2", 200, 3),
		"https://example.com/old":  page("https://example.com/old", "Old", 404, 1),
		"https://example.com/same": page("https://example.com/same", "Same", 200, 2),
		"https://example.com/new":  page("https://example.com/new", "New", 200, 0),
	}

	result := Compare(previous, current)

	assert.Equal(t, []string{"https://example.com/new"}, result.Added)
	assert.Equal(t, []string{"https://example.com/gone"}, result.Removed)

	require.Len(t, result.Changed, 2)
	assert.Equal(t, "https://example.com/", result.Changed[0].URL)
	assert.Equal(t, "Home", result.Changed[0].Delta.TitleBefore)
	assert.Equal(t, "Home v2", result.Changed[0].Delta.TitleAfter)

	assert.Equal(t, "https://example.com/old", result.Changed[1].URL)
	assert.Equal(t, 200, result.Changed[1].Delta.StatusCodeBefore)
	assert.Equal(t, 404, result.Changed[1].Delta.StatusCodeAfter)
}

func TestCompareIndexabilityAndLinkCount(t *testing.T) {
	prev := page("https://example.com/p", "P", 200, 2)
	cur := page("https://example.com/p", "P", 200, 5)

	_, changed := compareRecords(prev, cur)
	assert.True(t, changed, "internal link count is tracked")

	cur = page("https://example.com/p", "P", 200, 2)
	cur.Indexability = "Non-Indexable: noindex"
	_, changed = compareRecords(prev, cur)
	assert.True(t, changed, "indexability is tracked")

	_, changed = compareRecords(prev, page("https://example.com/p", "P", 200, 2))
	assert.False(t, changed)
}

func TestCompareEmptyCrawls(t *testing.T) {
	result := Compare(nil, nil)
	assert.Empty(t, result.Added)
	assert.Empty(t, result.Removed)
	assert.Empty(t, result.Changed)

	result = Compare(nil, map[string]*storage.PageRecord{
		"https://example.com/x": page("https://example.com/x", "X", 200, 0),
	})
	assert.Equal(t, []string{"https://example.com/x"}, result.Added)
}
