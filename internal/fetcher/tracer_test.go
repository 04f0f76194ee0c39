package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testTracer(t *testing.T) *Tracer {
	t.Helper()
	f, _ := testFetcher(t)
	return NewTracer(f, zap.NewNop())
}

func TestTraceNoRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("plain"))
	}))
	defer srv.Close()

	tr := testTracer(t)
	result, err := tr.Trace(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.False(t, result.HadRedirect)
	assert.Equal(t, 0, result.RedirectCount)
	assert.Equal(t, 0, result.RedirectionType)
	assert.Equal(t, srv.URL, result.FinalURL)
	require.Len(t, result.Chain, 1)
	assert.Equal(t, http.StatusOK, result.Chain[0].StatusCode)
}

func TestTraceChain(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/c", http.StatusFound)
	})
	mux.HandleFunc("/c", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("landed"))
	})

	tr := testTracer(t)
	result, err := tr.Trace(context.Background(), srv.URL+"/a")
	require.NoError(t, err)

	assert.True(t, result.HadRedirect)
	assert.Equal(t, 2, result.RedirectCount)
	assert.Equal(t, http.StatusMovedPermanently, result.RedirectionType,
		"redirection type is the first hop's status")
	assert.Equal(t, srv.URL+"/c", result.FinalURL)
	assert.Equal(t, http.StatusOK, result.Response.StatusCode)

	require.Len(t, result.Chain, 3)
	assert.Equal(t, http.StatusMovedPermanently, result.Chain[0].StatusCode)
	assert.Equal(t, http.StatusFound, result.Chain[1].StatusCode)
	assert.Equal(t, http.StatusOK, result.Chain[2].StatusCode)
}

func TestTraceLoop(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/a", http.StatusFound)
	})

	tr := testTracer(t)
	result, err := tr.Trace(context.Background(), srv.URL+"/a")
	require.NoError(t, err)

	assert.True(t, result.LoopDetected)
	assert.True(t, result.HadRedirect)
	assert.Equal(t, 2, result.RedirectCount)
	assert.Equal(t, http.StatusMovedPermanently, result.RedirectionType)
	// The walk stops at the hop that would re-enter the chain.
	assert.Equal(t, http.StatusFound, result.Response.StatusCode)
	require.Len(t, result.Chain, 2)
}

func TestTraceHopLimit(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	for i := 0; i < 15; i++ {
		next := fmt.Sprintf("/hop%d", i+1)
		mux.HandleFunc(fmt.Sprintf("/hop%d", i), func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, next, http.StatusFound)
		})
	}

	tr := testTracer(t)
	result, err := tr.Trace(context.Background(), srv.URL+"/hop0")
	require.NoError(t, err)

	assert.Len(t, result.Chain, maxRedirectHops)
	assert.True(t, result.HadRedirect)
	assert.False(t, result.LoopDetected)
	assert.True(t, result.Response.IsRedirect(), "the chain ends on an unfollowed 3xx")
}

func TestTraceRelativeLocation(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/dir/old", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "new")
		w.WriteHeader(http.StatusMovedPermanently)
	})
	mux.HandleFunc("/dir/new", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("resolved"))
	})

	tr := testTracer(t)
	result, err := tr.Trace(context.Background(), srv.URL+"/dir/old")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/dir/new", result.FinalURL)
}
