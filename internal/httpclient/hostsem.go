package httpclient

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter is a process-global per-host request governor: a concurrency
// semaphore plus a token-bucket rate limit. All feed refresh loops share the
// same limiter for a given host, so independent playlist and guide schedules
// cannot pile on to one upstream at once.
//
// Usage:
//
//	release, err := FeedHostLimiter.Acquire(ctx, feedURL)
//	if err != nil { ... }
//	defer release()
type HostLimiter struct {
	mu          sync.Mutex
	hosts       map[string]*hostSlot
	concurrency int
	rps         rate.Limit
	burst       int
}

type hostSlot struct {
	sem     chan struct{}
	limiter *rate.Limiter
}

// FeedHostLimiter is the shared feed-fetch governor: at most 2 concurrent
// fetches and 1 request/sec sustained per upstream host.
var FeedHostLimiter = NewHostLimiter(2, rate.Limit(1), 2)

func NewHostLimiter(concurrency int, rps rate.Limit, burst int) *HostLimiter {
	if concurrency < 1 {
		concurrency = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &HostLimiter{
		hosts:       make(map[string]*hostSlot),
		concurrency: concurrency,
		rps:         rps,
		burst:       burst,
	}
}

// Acquire blocks until a slot and a rate token are available for rawURL's
// host, or ctx is done. On success it returns a release func.
func (h *HostLimiter) Acquire(ctx context.Context, rawURL string) (func(), error) {
	slot := h.slotFor(rawURL)
	select {
	case slot.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := slot.limiter.Wait(ctx); err != nil {
		<-slot.sem
		return nil, err
	}
	return func() { <-slot.sem }, nil
}

func (h *HostLimiter) slotFor(rawURL string) *hostSlot {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Scheme + "://" + u.Host
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.hosts[host]
	if !ok {
		s = &hostSlot{
			sem:     make(chan struct{}, h.concurrency),
			limiter: rate.NewLimiter(h.rps, h.burst),
		}
		h.hosts[host] = s
	}
	return s
}
