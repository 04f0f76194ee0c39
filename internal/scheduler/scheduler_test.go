package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seo-audit/crawler/internal/config"
	"github.com/seo-audit/crawler/internal/events"
	"github.com/seo-audit/crawler/internal/storage"
)

func testSettings() *config.Settings {
	s := config.DefaultSettings()
	s.MaxRetries = 1
	s.ConcurrentRequests = 8
	s.BatchSize = 1
	s.DBBatchSize = 2
	s.CrawlTimeoutS = 60
	return s
}

func testSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Home</title></head><body>
			<a href="/products">Products</a>
			<a href="/contact">Contact</a>
			<a href="/loop-a">Loop</a>
			<a href="https://external.example/press">Press</a>
		</body></html>`))
	})
	mux.HandleFunc("/products", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Products</title></head><body>
			<a href="/">Home</a>
			<a href="/products/widget">Widget</a>
		</body></html>`))
	})
	mux.HandleFunc("/products/widget", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Widget</title></head><body>reliable widget text here</body></html>`))
	})
	mux.HandleFunc("/contact", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/contact-us", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/contact-us", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Contact</title></head><body>write to us anytime</body></html>`))
	})
	mux.HandleFunc("/loop-a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop-b", http.StatusFound)
	})
	mux.HandleFunc("/loop-b", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop-a", http.StatusFound)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestDB(t *testing.T) *storage.Database {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "crawl.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCrawlEndToEnd(t *testing.T) {
	srv := testSite(t)
	db := newTestDB(t)
	bus := events.NewBus(1024)

	c, err := New(srv.URL, testSettings(), db, bus, zap.NewNop())
	require.NoError(t, err)

	summary, err := c.Run(context.Background())
	require.NoError(t, err)
	bus.Close()

	assert.Equal(t, "completed", summary.Status)
	// Seed, /products, /products/widget, /contact (via redirect).
	assert.Equal(t, 4, summary.Pages)
	// The redirect loop is the one terminal failure.
	assert.Equal(t, 1, summary.Errors)
	assert.Greater(t, summary.TotalLinks, 0)
	assert.Greater(t, summary.ExternalLinks, 0)

	count, err := db.CountPages()
	require.NoError(t, err)
	assert.Equal(t, 4, count, "every crawled page is flushed")

	contact, err := db.GetPage(srv.URL + "/contact")
	require.NoError(t, err)
	assert.True(t, contact.HadRedirect)
	assert.Equal(t, http.StatusMovedPermanently, contact.RedirectionType)
	assert.Equal(t, srv.URL+"/contact-us", contact.FinalURL)
	assert.Equal(t, "Contact", contact.Title)

	history, err := db.History(0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, c.CrawlID(), history[0].CrawlID)
	assert.Equal(t, "completed", history[0].Status)
	assert.Equal(t, 4, history[0].Pages)

	var results, progress int
	var lastProgress *events.Progress
	for ev := range bus.Events() {
		switch ev.Kind {
		case events.KindCrawlResult:
			results++
		case events.KindProgressUpdate:
			progress++
			lastProgress = ev.Progress
		}
	}
	assert.Equal(t, 4, results, "one crawl_result per visited page")
	require.Greater(t, progress, 0)
	assert.InDelta(t, 100.0, lastProgress.Percentage, 0.001, "final emission reports completion")
	require.Len(t, lastProgress.FailedURLs, 1)
	assert.Contains(t, lastProgress.FailedURLs[0].Error, "redirect loop")
}

func TestCrawlRespectsMaxDepth(t *testing.T) {
	srv := testSite(t)
	db := newTestDB(t)
	bus := events.NewBus(1024)
	defer bus.Close()

	settings := testSettings()
	settings.MaxDepth = 0

	c, err := New(srv.URL, settings, db, bus, zap.NewNop())
	require.NoError(t, err)

	summary, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Pages, "depth 0 crawls only the seed")
}

func TestCrawlRespectsMaxURLs(t *testing.T) {
	srv := testSite(t)
	db := newTestDB(t)
	bus := events.NewBus(1024)
	defer bus.Close()

	settings := testSettings()
	settings.MaxURLsPerDomain = 2
	settings.ConcurrentRequests = 1

	c, err := New(srv.URL, settings, db, bus, zap.NewNop())
	require.NoError(t, err)

	summary, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.LessOrEqual(t, summary.Pages+summary.Errors, 2)
}

func TestCrawlCancellation(t *testing.T) {
	srv := testSite(t)
	db := newTestDB(t)
	bus := events.NewBus(1024)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, err := New(srv.URL, testSettings(), db, bus, zap.NewNop())
	require.NoError(t, err)

	summary, err := c.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", summary.Status)
}

// Cancellation stops new pops but lets pages already in flight finish
// and persist rather than abandoning them mid-extraction.
func TestCrawlDrainsInFlightOnCancel(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case started <- struct{}{}:
		default:
		}
		time.Sleep(150 * time.Millisecond)
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Slow Home</title></head><body>
			<a href="/next">Next</a>
		</body></html>`))
	}))
	t.Cleanup(srv.Close)

	db := newTestDB(t)
	bus := events.NewBus(1024)
	defer bus.Close()

	c, err := New(srv.URL, testSettings(), db, bus, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	summary, err := c.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, "cancelled", summary.Status)
	assert.Equal(t, 1, summary.Pages, "the in-flight seed runs to completion")

	count, err := db.CountPages()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	seed, err := db.GetPage(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Slow Home", seed.Title)
}

func TestNewRejectsBadInput(t *testing.T) {
	db := newTestDB(t)
	bus := events.NewBus(16)
	defer bus.Close()

	_, err := New("not a url", testSettings(), db, bus, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidBaseURL)

	_, err = New("ftp://example.com/", testSettings(), db, bus, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidBaseURL)

	bad := testSettings()
	bad.ConcurrentRequests = 0
	_, err = New("https://example.com/", bad, db, bus, zap.NewNop())
	assert.Error(t, err)
}
