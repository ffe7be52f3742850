package httpclient

import (
	"context"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestHostLimiterConcurrency(t *testing.T) {
	h := NewHostLimiter(1, rate.Inf, 1)
	ctx := context.Background()

	release, err := h.Acquire(ctx, "http://feed.example/a.m3u")
	if err != nil {
		t.Fatal(err)
	}

	// Second acquire on the same host blocks until release.
	blocked, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := h.Acquire(blocked, "http://feed.example/b.m3u"); err == nil {
		t.Fatal("same-host acquire should block while the slot is held")
	}

	// A different host is independent.
	release2, err := h.Acquire(ctx, "http://other.example/c.m3u")
	if err != nil {
		t.Fatalf("different host should not block: %v", err)
	}
	release2()

	release()
	release3, err := h.Acquire(ctx, "http://feed.example/b.m3u")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	release3()
}

func TestHostLimiterContextCancelled(t *testing.T) {
	h := NewHostLimiter(1, rate.Inf, 1)
	release, err := h.Acquire(context.Background(), "http://feed.example/a")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.Acquire(ctx, "http://feed.example/b"); err == nil {
		t.Fatal("cancelled acquire should fail")
	}
}

func TestHostLimiterKeysByScheme(t *testing.T) {
	h := NewHostLimiter(1, rate.Inf, 1)
	ctx := context.Background()
	r1, err := h.Acquire(ctx, "http://feed.example/a")
	if err != nil {
		t.Fatal(err)
	}
	defer r1()
	// https counts as a separate upstream.
	r2, err := h.Acquire(ctx, "https://feed.example/a")
	if err != nil {
		t.Fatalf("https should use its own slot: %v", err)
	}
	r2()
}
