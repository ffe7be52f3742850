package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestServeRangePassThrough(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Range"); got != "bytes=100-" {
			t.Errorf("origin saw Range %q, want bytes=100-", got)
		}
		w.Header().Set("Content-Type", "video/mp2t")
		w.Header().Set("Content-Range", "bytes 100-199/200")
		w.Header().Set("Accept-Ranges", "bytes")
		w.WriteHeader(http.StatusPartialContent)
		w.Write(make([]byte, 100))
	}))
	defer origin.Close()

	rl := New(5 * time.Second)
	req := httptest.NewRequest(http.MethodGet, "/stream/ch1", nil)
	req.Header.Set("Range", "bytes=100-")
	rec := httptest.NewRecorder()
	rl.Serve(rec, req, origin.URL)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 100-199/200" {
		t.Errorf("Content-Range = %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "video/mp2t" {
		t.Errorf("Content-Type = %q", got)
	}
	if rec.Body.Len() != 100 {
		t.Errorf("body length = %d, want 100", rec.Body.Len())
	}
}

func TestServeRedirectLoopFails(t *testing.T) {
	hops := 0
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hops++
		http.Redirect(w, r, fmt.Sprintf("/hop/%d", hops), http.StatusFound)
	}))
	defer origin.Close()

	rl := New(5 * time.Second)
	rec := httptest.NewRecorder()
	rl.Serve(rec, httptest.NewRequest(http.MethodGet, "/stream/ch1", nil), origin.URL)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if hops > MaxRedirects+1 {
		t.Errorf("origin served %d hops, want at most %d", hops, MaxRedirects+1)
	}
}

func TestServeSubstitutesIdentityHeaders(t *testing.T) {
	var ua, ref, orig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		ref = r.Header.Get("Referer")
		orig = r.Header.Get("Origin")
	}))
	defer srv.Close()

	rl := New(5 * time.Second)
	req := httptest.NewRequest(http.MethodGet, "/stream/ch1", nil)
	req.Header.Set("User-Agent", "MyTVApp/2.3")
	rl.Serve(httptest.NewRecorder(), req, srv.URL)

	if ua == "MyTVApp/2.3" || !strings.Contains(ua, "Mozilla") {
		t.Errorf("User-Agent = %q, want browser-like substitute", ua)
	}
	if ref != srv.URL+"/" {
		t.Errorf("Referer = %q, want %q", ref, srv.URL+"/")
	}
	if orig != srv.URL {
		t.Errorf("Origin = %q, want %q", orig, srv.URL)
	}
}

func TestServeRejectsNonHTTPOrigin(t *testing.T) {
	rl := New(5 * time.Second)
	rec := httptest.NewRecorder()
	rl.Serve(rec, httptest.NewRequest(http.MethodGet, "/stream/ch1", nil), "file:///etc/passwd")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestServeStopsOnClientDisconnect(t *testing.T) {
	originDone := make(chan struct{})
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(originDone)
		f := w.(http.Flusher)
		for {
			if _, err := w.Write(make([]byte, 1024)); err != nil {
				return
			}
			f.Flush()
			select {
			case <-r.Context().Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}))
	defer origin.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/stream/ch1", nil).WithContext(ctx)
	rl := New(5 * time.Second)

	served := make(chan struct{})
	go func() {
		defer close(served)
		rl.Serve(httptest.NewRecorder(), req, origin.URL)
	}()

	// Let some body flow, then the client goes away.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("relay kept streaming after the client disconnected")
	}
	// The origin request is cancelled too, releasing the upstream connection.
	select {
	case <-originDone:
	case <-time.After(2 * time.Second):
		t.Fatal("origin handler not released after client disconnect")
	}
}

func TestStreamBodyReturnsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pr, pw := io.Pipe()
	defer pw.Close()
	written, err := streamBody(ctx, httptest.NewRecorder(), pr)
	if written != 0 {
		t.Errorf("written = %d", written)
	}
	if !isClientDisconnect(err) {
		t.Fatalf("err = %v, want a disconnect-classified error", err)
	}
}

func TestIsClientDisconnect(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, true},
		{io.ErrClosedPipe, true},
		{syscall.EPIPE, true},
		{syscall.ECONNRESET, true},
		{errors.New("write tcp 127.0.0.1:80: broken pipe"), true},
		{errors.New("unexpected EOF"), false},
		{io.ErrUnexpectedEOF, false},
	}
	for _, c := range cases {
		if got := isClientDisconnect(c.err); got != c.want {
			t.Errorf("isClientDisconnect(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestServeOriginUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	rl := New(2 * time.Second)
	rec := httptest.NewRecorder()
	rl.Serve(rec, httptest.NewRequest(http.MethodGet, "/stream/ch1", nil), srv.URL)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}
