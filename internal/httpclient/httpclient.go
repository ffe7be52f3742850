// Package httpclient provides the shared tuned HTTP clients used by the feed
// fetcher, the stream relay, and the health checks.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	MaxIdleConnsPerHost    = 16
	DialTimeout            = 10 * time.Second
	TLSHandshakeTimeout    = 10 * time.Second
)

var defaultClient *http.Client

func init() {
	defaultClient = &http.Client{
		Timeout: DefaultTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: MaxIdleConnsPerHost,
			IdleConnTimeout:     DefaultIdleConnTimeout,
		},
	}
}

// Default returns the shared tuned HTTP client for feed fetches and health checks.
func Default() *http.Client {
	return defaultClient
}

// WithTimeout returns a client with the given timeout and the same transport as Default.
func WithTimeout(timeout time.Duration) *http.Client {
	t, ok := defaultClient.Transport.(*http.Transport)
	if !ok {
		return &http.Client{Timeout: timeout}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: t.Clone(),
	}
}

// ForStreaming returns a client for long-lived relay streams: no overall
// timeout (live streams are unbounded), but bounded connect, TLS handshake,
// and response-header timeouts so a dead origin fails fast instead of hanging
// the client. ResponseHeaderTimeout only starts after the request is written,
// so the connect phase needs its own dial bound.
func ForStreaming(responseTimeout time.Duration) *http.Client {
	if responseTimeout <= 0 {
		responseTimeout = 30 * time.Second
	}
	t, ok := defaultClient.Transport.(*http.Transport)
	var tr *http.Transport
	if ok {
		tr = t.Clone()
	} else {
		tr = &http.Transport{}
	}
	tr.DialContext = (&net.Dialer{Timeout: DialTimeout, KeepAlive: 30 * time.Second}).DialContext
	tr.TLSHandshakeTimeout = TLSHandshakeTimeout
	tr.ResponseHeaderTimeout = responseTimeout
	return &http.Client{Transport: tr}
}
