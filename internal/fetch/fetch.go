// Package fetch retrieves playlist and guide documents over HTTP with
// conditional-GET caching, transparent gzip/brotli decoding, and per-host
// rate limiting.
package fetch

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"

	"github.com/gridcast/grid-cast/internal/httpclient"
	"github.com/gridcast/grid-cast/internal/safeurl"
)

// UserAgent is sent on all feed requests.
const UserAgent = "GridCast/1.0"

// ErrNotModified is returned when the upstream responds 304 to a conditional
// GET; the caller keeps its previous parse result.
var ErrNotModified = errors.New("fetch: 304 not modified")

// Fetcher fetches one feed URL repeatedly, remembering the upstream's cache
// validators between calls. Safe for use from a single refresh loop; the
// validator state is guarded for the odd concurrent probe.
type Fetcher struct {
	URL    string
	Client *http.Client

	mu           sync.Mutex
	etag         string
	lastModified string
}

// New returns a Fetcher for url using the shared default client.
func New(url string) *Fetcher {
	return &Fetcher{URL: url}
}

// Fetch performs a conditional GET of the feed and returns the full decoded
// body. Returns ErrNotModified when the document has not changed since the
// last successful fetch.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	if !safeurl.IsHTTPOrHTTPS(f.URL) {
		return nil, fmt.Errorf("fetch: unsupported URL scheme in %s", safeurl.RedactURL(f.URL))
	}
	release, err := httpclient.FeedHostLimiter.Acquire(ctx, f.URL)
	if err != nil {
		return nil, err
	}
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept-Encoding", "gzip, br")
	f.mu.Lock()
	if f.etag != "" {
		req.Header.Set("If-None-Match", f.etag)
	}
	if f.lastModified != "" {
		req.Header.Set("If-Modified-Since", f.lastModified)
	}
	f.mu.Unlock()

	client := f.Client
	if client == nil {
		client = httpclient.Default()
	}
	resp, err := httpclient.DoWithRetry(ctx, client, req, httpclient.FeedRetryPolicy)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", safeurl.RedactURL(f.URL), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return nil, ErrNotModified
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch %s: unexpected status %d", safeurl.RedactURL(f.URL), resp.StatusCode)
	}

	body, err := decodeBody(resp)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", safeurl.RedactURL(f.URL), err)
	}

	f.mu.Lock()
	f.etag = resp.Header.Get("ETag")
	f.lastModified = resp.Header.Get("Last-Modified")
	f.mu.Unlock()
	return body, nil
}

// Reset clears the cache validators so the next Fetch is unconditional.
func (f *Fetcher) Reset() {
	f.mu.Lock()
	f.etag = ""
	f.lastModified = ""
	f.mu.Unlock()
}

// decodeBody unwraps the response body according to Content-Encoding.
// net/http only auto-decodes gzip when it added the header itself, and never
// decodes brotli.
func decodeBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	case "br":
		r = brotli.NewReader(resp.Body)
	}
	return io.ReadAll(r)
}
