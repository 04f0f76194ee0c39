package storage

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "crawl.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Initialize())
	return db
}

func sampleRecord(url string) *PageRecord {
	return &PageRecord{
		OriginalURL:    url,
		FinalURL:       url,
		StatusCode:     200,
		ContentType:    "text/html",
		ContentLength:  1234,
		ResponseTimeMS: 87,
		Title:          "Sample Page",
		Description:    "A sample",
		Headings:       map[string][]string{"h1": {"Sample"}},
		InternalLinks:  []Link{{URL: url + "/child", Anchor: "child"}},
		Indexability:   "Indexable",
		Indexable:      true,
		IsHTTPS:        true,
		URLDepth:       1,
		WordCount:      42,
		CrawledAt:      time.Now().UTC().Truncate(time.Second),
	}
}

func TestUpsertAndGetPage(t *testing.T) {
	db := testDB(t)
	rec := sampleRecord("https://example.com/page")

	require.NoError(t, db.UpsertPage(rec))

	got, err := db.GetPage(rec.OriginalURL)
	require.NoError(t, err)
	assert.Equal(t, rec.OriginalURL, got.OriginalURL)
	assert.Equal(t, rec.Title, got.Title)
	assert.Equal(t, rec.Headings, got.Headings)
	assert.Equal(t, rec.InternalLinks, got.InternalLinks)
	assert.True(t, got.Indexable)
	assert.True(t, got.CrawledAt.Equal(rec.CrawledAt))
}

func TestUpsertIsIdempotentByURL(t *testing.T) {
	db := testDB(t)

	rec := sampleRecord("https://example.com/page")
	require.NoError(t, db.UpsertPage(rec))

	rec.Title = "Updated Title"
	require.NoError(t, db.UpsertPage(rec))

	count, err := db.CountPages()
	require.NoError(t, err)
	assert.Equal(t, 1, count, "same URL must not create a second row")

	got, err := db.GetPage(rec.OriginalURL)
	require.NoError(t, err)
	assert.Equal(t, "Updated Title", got.Title)
}

func TestGetPageNotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.GetPage("https://example.com/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRequiresInitialize(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "raw.db"), zap.NewNop())
	require.NoError(t, err)
	defer db.Close()

	assert.ErrorIs(t, db.Clear(), ErrNotInitialized)
	assert.ErrorIs(t, db.UpsertPage(sampleRecord("https://example.com/")), ErrNotInitialized)
	_, err = db.AllPages()
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestClear(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.UpsertPage(sampleRecord("https://example.com/a")))
	require.NoError(t, db.Clear())

	count, err := db.CountPages()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestUpsertPagesBatch(t *testing.T) {
	db := testDB(t)

	var records []*PageRecord
	for i := 0; i < 25; i++ {
		records = append(records, sampleRecord(fmt.Sprintf("https://example.com/p%d", i)))
	}
	require.NoError(t, db.UpsertPages(records))

	count, err := db.CountPages()
	require.NoError(t, err)
	assert.Equal(t, 25, count)

	pages, err := db.AllPages()
	require.NoError(t, err)
	assert.Len(t, pages, 25)
	assert.Contains(t, pages, "https://example.com/p13")
}

func TestAggregateBy(t *testing.T) {
	db := testDB(t)

	ok := sampleRecord("https://example.com/ok")
	missing := sampleRecord("https://example.com/missing")
	missing.StatusCode = 404
	gone := sampleRecord("https://example.com/gone")
	gone.StatusCode = 404
	require.NoError(t, db.UpsertPages([]*PageRecord{ok, missing, gone}))

	byStatus, err := db.AggregateBy(func(r *PageRecord) string {
		return fmt.Sprintf("%d", r.StatusCode)
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"200": 1, "404": 2}, byStatus)
}

func TestCloneInto(t *testing.T) {
	src := testDB(t)
	dst := testDB(t)

	for i := 0; i < 7; i++ {
		require.NoError(t, src.UpsertPage(sampleRecord(fmt.Sprintf("https://example.com/c%d", i))))
	}

	copied, err := src.CloneInto(dst, 3)
	require.NoError(t, err)
	assert.Equal(t, 7, copied)

	count, err := dst.CountPages()
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestHistory(t *testing.T) {
	db := testDB(t)

	for i := 0; i < 3; i++ {
		_, err := db.AddHistory(&CrawlSummary{
			CrawlID: fmt.Sprintf("crawl-%d", i),
			Domain:  "example.com",
			Date:    time.Now().UTC(),
			Pages:   100 + i,
			Status:  "completed",
		})
		require.NoError(t, err)
	}

	rows, err := db.History(2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "crawl-2", rows[0].CrawlID, "newest first")

	all, err := db.History(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCustomSearchRoundTrip(t *testing.T) {
	db := testDB(t)

	got, err := db.GetCustomSearch()
	require.NoError(t, err)
	assert.Nil(t, got, "unset config reads back as nil")

	cs := &CustomSearch{Type: "css", Selector: ".price", SearchText: ""}
	require.NoError(t, db.SetCustomSearch(cs))

	got, err = db.GetCustomSearch()
	require.NoError(t, err)
	assert.Equal(t, cs, got)

	cs.Selector = ".amount"
	require.NoError(t, db.SetCustomSearch(cs))
	got, err = db.GetCustomSearch()
	require.NoError(t, err)
	assert.Equal(t, ".amount", got.Selector)
}
