package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCheckSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U\n"))
	}))
	defer srv.Close()
	if err := CheckSource(context.Background(), srv.URL); err != nil {
		t.Errorf("CheckSource: %v", err)
	}
}

func TestCheckSourceErrors(t *testing.T) {
	if err := CheckSource(context.Background(), ""); err == nil {
		t.Error("empty URL should fail")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()
	if err := CheckSource(context.Background(), srv.URL); err == nil {
		t.Error("403 should fail")
	}
}

func TestCheckEndpoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz", "/catalog":
			w.Write([]byte("{}"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	if err := CheckEndpoints(context.Background(), srv.URL); err != nil {
		t.Errorf("CheckEndpoints: %v", err)
	}
}

func TestCheckEndpointsLoading(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":"loading"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	if err := CheckEndpoints(context.Background(), srv.URL); err == nil {
		t.Error("503 should fail the probe")
	}
}
