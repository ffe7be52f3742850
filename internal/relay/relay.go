// Package relay is the pass-through proxy between playback clients and live
// stream origins. Each relay is one independent request/response cycle; the
// package holds no cross-request state beyond the shared HTTP client.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gridcast/grid-cast/internal/httpclient"
	"github.com/gridcast/grid-cast/internal/metrics"
	"github.com/gridcast/grid-cast/internal/safeurl"
)

// MaxRedirects bounds redirect following; exceeding it fails the relay
// instead of looping.
const MaxRedirects = 5

// browserUserAgent is sent to origins in place of the client's own UA. Many
// live-media origins reject requests without a plausible browser UA.
const browserUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// ErrTooManyRedirects is returned when the origin redirects more than
// MaxRedirects times.
var ErrTooManyRedirects = errors.New("relay: too many redirects")

// forwardedRequestHeaders is the constrained set copied from the inbound
// request to the origin.
var forwardedRequestHeaders = []string{"Range", "Accept"}

// passthroughResponseHeaders are copied from the origin response unmodified.
var passthroughResponseHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Accept-Ranges",
	"Content-Range",
}

// Relay forwards playback requests to stream origins.
type Relay struct {
	// Client is used for origin requests. When nil a streaming client with
	// Timeout as the response-header bound is built on first use.
	Client *http.Client
	// Timeout bounds connect + response headers; the body itself is unbounded
	// (live streams run for the duration of playback).
	Timeout time.Duration

	reqSeq atomic.Uint64
}

// New returns a relay with the given origin response timeout.
func New(timeout time.Duration) *Relay {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Relay{
		Client:  newStreamClient(timeout),
		Timeout: timeout,
	}
}

// newStreamClient builds the origin client: no overall deadline, bounded
// response-header timeout, and a redirect cap of MaxRedirects.
func newStreamClient(timeout time.Duration) *http.Client {
	c := httpclient.ForStreaming(timeout)
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= MaxRedirects {
			return ErrTooManyRedirects
		}
		return nil
	}
	return c
}

// Serve relays the inbound request r to originURL and streams the origin's
// response to w. Origin failures (unreachable, redirect loop, timeout) yield
// 502 Bad Gateway; the playback client is expected to re-resolve and retry.
func (rl *Relay) Serve(w http.ResponseWriter, r *http.Request, originURL string) {
	reqID := fmt.Sprintf("r%06d", rl.reqSeq.Add(1))
	if !safeurl.IsHTTPOrHTTPS(originURL) {
		log.Printf("relay: req=%s reject non-http origin=%s", reqID, safeurl.RedactURL(originURL))
		metrics.RelayUpstreamFailures.Inc()
		http.Error(w, "unsupported origin URL", http.StatusBadGateway)
		return
	}

	start := time.Now()
	out, err := rl.buildOriginRequest(r, originURL)
	if err != nil {
		log.Printf("relay: req=%s bad origin request origin=%s err=%v", reqID, safeurl.RedactURL(originURL), err)
		metrics.RelayUpstreamFailures.Inc()
		http.Error(w, "bad origin URL", http.StatusBadGateway)
		return
	}

	client := rl.Client
	if client == nil {
		client = newStreamClient(rl.Timeout)
	}
	resp, err := client.Do(out)
	if err != nil {
		metrics.RelayUpstreamFailures.Inc()
		if errors.Is(err, ErrTooManyRedirects) {
			log.Printf("relay: req=%s redirect-loop origin=%s", reqID, safeurl.RedactURL(originURL))
			http.Error(w, "origin redirect loop", http.StatusBadGateway)
			return
		}
		log.Printf("relay: req=%s origin-unreachable origin=%s err=%v", reqID, safeurl.RedactURL(originURL), err)
		http.Error(w, "origin unreachable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		metrics.RelayUpstreamFailures.Inc()
	}
	for _, h := range passthroughResponseHeaders {
		if v := resp.Header.Get(h); v != "" {
			w.Header().Set(h, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	metrics.ActiveRelays.Inc()
	defer metrics.ActiveRelays.Dec()
	written, copyErr := streamBody(r.Context(), w, resp.Body)
	metrics.RelayBytes.Add(float64(written))
	switch {
	case copyErr == nil:
		log.Printf("relay: req=%s done status=%d bytes=%d dur=%s", reqID, resp.StatusCode, written, time.Since(start).Round(time.Millisecond))
	case isClientDisconnect(copyErr):
		log.Printf("relay: req=%s client-disconnect bytes=%d dur=%s", reqID, written, time.Since(start).Round(time.Millisecond))
	default:
		// Origin dropped mid-stream; headers are already sent, nothing to do
		// but log. The player will re-resolve.
		log.Printf("relay: req=%s origin-stream-error bytes=%d err=%v", reqID, written, copyErr)
	}
}

// buildOriginRequest clones method + constrained headers onto a new origin
// request, substituting identity headers with values acceptable to typical
// live-media origins.
func (rl *Relay) buildOriginRequest(r *http.Request, originURL string) (*http.Request, error) {
	out, err := http.NewRequestWithContext(r.Context(), r.Method, originURL, nil)
	if err != nil {
		return nil, err
	}
	for _, h := range forwardedRequestHeaders {
		if v := r.Header.Get(h); v != "" {
			out.Header.Set(h, v)
		}
	}
	if out.Header.Get("Accept") == "" {
		out.Header.Set("Accept", "*/*")
	}
	out.Header.Set("User-Agent", browserUserAgent)
	if u, err := url.Parse(originURL); err == nil && u.Host != "" {
		root := u.Scheme + "://" + u.Host
		out.Header.Set("Referer", root+"/")
		out.Header.Set("Origin", root)
	}
	return out, nil
}

// streamBody copies src to w incrementally, flushing after each chunk so live
// segments reach the player without buffering, and stops promptly when the
// client context ends.
func streamBody(ctx context.Context, w http.ResponseWriter, src io.Reader) (int64, error) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 64<<10)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			wn, werr := w.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				return written, werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return written, nil
			}
			return written, rerr
		}
	}
}

// isClientDisconnect reports whether err is the client going away rather than
// an origin-side failure.
func isClientDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "use of closed network connection")
}
