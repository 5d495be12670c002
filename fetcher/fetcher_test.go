package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pevans/archscraper/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestFetcher builds a fetcher whose waits are recorded instead of slept
func newTestFetcher(t *testing.T, cfg Config) (*Fetcher, *[]time.Duration) {
	t.Helper()

	f, err := New(cfg, ratelimit.New(0), nil)
	require.NoError(t, err)

	var waits []time.Duration
	f.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return f, &waits
}

// TestFetch_Success verifies body, status and browser-like headers
func TestFetch_Success(t *testing.T) {
	var gotUA, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body><h1>Hello</h1></body></html>"))
	}))
	defer server.Close()

	f, waits := newTestFetcher(t, Config{})

	page, err := f.Fetch(context.Background(), server.URL+"/article")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Contains(t, string(page.Body), "<h1>Hello</h1>")
	assert.Equal(t, DefaultUserAgent, gotUA)
	assert.Contains(t, gotAccept, "text/html")
	assert.Empty(t, *waits)
}

// TestFetch_RetriesAfter429 verifies exponential backoff then success
func TestFetch_RetriesAfter429(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("<p>ok</p>"))
	}))
	defer server.Close()

	f, waits := newTestFetcher(t, Config{BackoffBase: 10 * time.Millisecond})

	page, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, "<p>ok</p>", string(page.Body))
	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, *waits)
}

// TestFetch_ExhaustsOnServerError verifies the attempt ceiling and fixed delay
func TestFetch_ExhaustsOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	f, waits := newTestFetcher(t, Config{RetryDelay: 5 * time.Millisecond})

	page, err := f.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.Nil(t, page)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusServiceUnavailable, fetchErr.StatusCode)
	assert.Equal(t, DefaultMaxAttempts, fetchErr.Attempts)
	assert.ErrorIs(t, err, ErrHTTPStatus)
	assert.EqualValues(t, DefaultMaxAttempts, calls.Load())
	assert.Equal(t, []time.Duration{5 * time.Millisecond, 5 * time.Millisecond}, *waits)
}

// TestFetch_Persistent429 verifies rate limiting surfaces as ErrRateLimited
func TestFetch_Persistent429(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	f, _ := newTestFetcher(t, Config{MaxAttempts: 2})

	_, err := f.Fetch(context.Background(), server.URL)
	assert.ErrorIs(t, err, ErrRateLimited)
}

// TestFetch_NetworkError verifies transport failures are retried then
// reported
func TestFetch_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	f, waits := newTestFetcher(t, Config{RetryDelay: time.Millisecond})

	_, err := f.Fetch(context.Background(), addr)
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Zero(t, fetchErr.StatusCode)
	assert.Len(t, *waits, DefaultMaxAttempts-1)
}

// TestFetch_Timeout verifies a slow response is treated as a failure
func TestFetch_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	f, _ := newTestFetcher(t, Config{Timeout: 20 * time.Millisecond, MaxAttempts: 1})

	_, err := f.Fetch(context.Background(), server.URL)
	assert.Error(t, err)
}

// TestFetch_BlockedResource verifies asset URLs are refused without retries
func TestFetch_BlockedResource(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	f, waits := newTestFetcher(t, Config{})

	_, err := f.Fetch(context.Background(), server.URL+"/wp-content/uploads/roof.JPG?ver=2")
	assert.ErrorIs(t, err, ErrBlockedResource)
	assert.Zero(t, calls.Load())
	assert.Empty(t, *waits)
}

// TestFetch_InvalidURL verifies malformed URLs fail immediately
func TestFetch_InvalidURL(t *testing.T) {
	f, _ := newTestFetcher(t, Config{})

	_, err := f.Fetch(context.Background(), "not a url")
	assert.Error(t, err)
}

// TestFetch_ContextCancelled verifies a cancelled context stops retrying
func TestFetch_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f, err := New(Config{RetryDelay: time.Hour}, ratelimit.New(0), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = f.Fetch(ctx, server.URL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

// TestFetchDocument verifies the body is parsed and the document URL is set
func TestFetchDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>T</title></head><body><div class="entry-content"><p>One</p></div></body></html>`))
	}))
	defer server.Close()

	f, _ := newTestFetcher(t, Config{})

	doc, err := f.FetchDocument(context.Background(), server.URL+"/a/")
	require.NoError(t, err)

	assert.Equal(t, "One", doc.Find(".entry-content p").Text())
	require.NotNil(t, doc.Url)
	assert.Equal(t, "/a/", doc.Url.Path)
}

// TestBlockedResourcePattern verifies extension matching
func TestBlockedResourcePattern(t *testing.T) {
	assert.Empty(t, blockedResourcePattern(nil))
	assert.Equal(t, `(?i)\.(png|woff2)(\?.*)?$`, blockedResourcePattern([]string{".png", " woff2 ", ""}))
}
