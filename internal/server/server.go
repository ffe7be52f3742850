// Package server is the HTTP surface: catalog browsing, playback resolution,
// now/next lookups, the stream relay mount, health, and metrics.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gridcast/grid-cast/internal/catalog"
	"github.com/gridcast/grid-cast/internal/guide"
	"github.com/gridcast/grid-cast/internal/metrics"
	"github.com/gridcast/grid-cast/internal/refresh"
	"github.com/gridcast/grid-cast/internal/relay"
)

// DefaultDescription is shown for a channel with no current programme.
const DefaultDescription = "No programme information available"

// Server serves the catalog API. All fields are set before Run.
type Server struct {
	Addr    string
	BaseURL string // external base URL for relay playback targets; "" = direct origin URLs
	Store   *catalog.Store
	Sched   *refresh.Scheduler
	Relay   *relay.Relay

	// Now is the clock for now/next resolution; nil = time.Now. Tests
	// override it.
	Now func() time.Time
}

// requestKind is the closed set of request shapes this server answers.
// Dispatch is an exhaustive switch over these, not string matching spread
// across handlers.
type requestKind int

const (
	kindUnknown requestKind = iota
	kindCatalogList
	kindCatalogDetail
	kindPlay
	kindStream
	kindGuideNow
	kindHealth
	kindMetrics
)

// classify maps a URL path to a request kind and its path argument
// (channel ID or guide ID).
func classify(path string) (requestKind, string) {
	switch {
	case path == "/catalog":
		return kindCatalogList, ""
	case strings.HasPrefix(path, "/catalog/"):
		return kindCatalogDetail, strings.TrimPrefix(path, "/catalog/")
	case strings.HasPrefix(path, "/play/"):
		return kindPlay, strings.TrimPrefix(path, "/play/")
	case strings.HasPrefix(path, "/stream/"):
		return kindStream, strings.TrimPrefix(path, "/stream/")
	case strings.HasPrefix(path, "/guide/") && strings.HasSuffix(path, "/now"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/guide/"), "/now")
		id = strings.TrimSuffix(id, "/")
		if id == "" || strings.Contains(id, "/") {
			return kindUnknown, ""
		}
		return kindGuideNow, id
	case path == "/healthz":
		return kindHealth, ""
	case path == "/metrics":
		return kindMetrics, ""
	}
	return kindUnknown, ""
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	kind, arg := classify(r.URL.Path)
	switch kind {
	case kindCatalogList:
		s.serveCatalogList(w, r)
	case kindCatalogDetail:
		s.serveCatalogDetail(w, r, arg)
	case kindPlay:
		s.servePlay(w, r, arg)
	case kindStream:
		s.serveStream(w, r, arg)
	case kindGuideNow:
		s.serveGuideNow(w, r, arg)
	case kindHealth:
		s.serveHealth(w, r)
	case kindMetrics:
		metrics.Handler().ServeHTTP(w, r)
	case kindUnknown:
		http.NotFound(w, r)
	}
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// catalogListResponse is the /catalog payload.
type catalogListResponse struct {
	Channels   []catalog.Channel `json:"channels"`
	Categories []string          `json:"categories"`
	Total      int               `json:"total"`
	BuiltAt    time.Time         `json:"built_at"`
}

// serveCatalogList answers GET /catalog with optional ?category= and ?q=
// filters. Channels keep playlist document order.
func (s *Server) serveCatalogList(w http.ResponseWriter, r *http.Request) {
	snap := s.Store.Current()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "catalog not loaded yet"})
		return
	}
	f := catalog.Filter{
		Category: r.URL.Query().Get("category"),
		Search:   r.URL.Query().Get("q"),
	}
	chs := snap.List(f)
	writeJSON(w, http.StatusOK, catalogListResponse{
		Channels:   chs,
		Categories: snap.Categories,
		Total:      len(chs),
		BuiltAt:    snap.BuiltAt,
	})
}

// channelDetail is the /catalog/{id} payload: the channel plus its resolved
// now/next programmes and a display description.
type channelDetail struct {
	catalog.Channel
	Description string             `json:"description"`
	NowPlaying  *catalog.Programme `json:"now_playing,omitempty"`
	UpNext      *catalog.Programme `json:"up_next,omitempty"`
	PlayURL     string             `json:"play_url"`
}

func (s *Server) serveCatalogDetail(w http.ResponseWriter, r *http.Request, id string) {
	snap := s.Store.Current()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "catalog not loaded yet"})
		return
	}
	ch := snap.ChannelByID(id)
	if ch == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown channel: " + id})
		return
	}
	// A detail view needs programme data; kick the first guide fetch if it
	// was deferred. The response uses whatever the current snapshot holds.
	if s.Sched != nil {
		s.Sched.EnsureGuide()
	}
	d := channelDetail{
		Channel:     *ch,
		Description: DefaultDescription,
		PlayURL:     s.playURL(ch),
	}
	cur, next := s.resolveNowNextAt(snap, ch.GuideID, s.now())
	d.NowPlaying, d.UpNext = cur, next
	if cur != nil {
		d.Description = cur.Title
		if cur.Desc != "" {
			d.Description = cur.Title + " - " + cur.Desc
		}
	}
	writeJSON(w, http.StatusOK, d)
}

// playTarget is the /play/{id} payload: where the client should point its
// player.
type playTarget struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (s *Server) servePlay(w http.ResponseWriter, r *http.Request, id string) {
	snap := s.Store.Current()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "catalog not loaded yet"})
		return
	}
	ch := snap.ChannelByID(id)
	if ch == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown channel: " + id})
		return
	}
	writeJSON(w, http.StatusOK, playTarget{ID: ch.ID, Name: ch.Name, URL: s.playURL(ch)})
}

// playURL returns the relay-wrapped stream URL when BaseURL is configured,
// otherwise the direct origin URL.
func (s *Server) playURL(ch *catalog.Channel) string {
	if s.BaseURL == "" {
		return ch.StreamURL
	}
	return s.BaseURL + "/stream/" + url.PathEscape(ch.ID)
}

func (s *Server) serveStream(w http.ResponseWriter, r *http.Request, id string) {
	snap := s.Store.Current()
	if snap == nil {
		http.Error(w, "catalog not loaded yet", http.StatusServiceUnavailable)
		return
	}
	ch := snap.ChannelByID(id)
	if ch == nil {
		http.NotFound(w, r)
		return
	}
	s.Relay.Serve(w, r, ch.StreamURL)
}

// nowNextResponse is the /guide/{guideID}/now payload. Absent entries are
// null, never fabricated.
type nowNextResponse struct {
	GuideID string             `json:"guide_id"`
	AsOf    time.Time          `json:"as_of"`
	Now     *catalog.Programme `json:"now"`
	Next    *catalog.Programme `json:"next"`
}

func (s *Server) serveGuideNow(w http.ResponseWriter, r *http.Request, guideID string) {
	snap := s.Store.Current()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "catalog not loaded yet"})
		return
	}
	if s.Sched != nil {
		s.Sched.EnsureGuide()
	}
	asOf := s.now()
	if at := r.URL.Query().Get("at"); at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad at timestamp, want RFC3339"})
			return
		}
		asOf = t
	}
	cur, next := s.resolveNowNextAt(snap, guideID, asOf)
	writeJSON(w, http.StatusOK, nowNextResponse{GuideID: guideID, AsOf: asOf, Now: cur, Next: next})
}

func (s *Server) resolveNowNextAt(snap *catalog.Snapshot, guideID string, asOf time.Time) (*catalog.Programme, *catalog.Programme) {
	return guide.Resolve(snap, guideID, asOf)
}

// serveHealth answers GET /healthz: 503 {"status":"loading"} until the first
// playlist refresh lands, 200 with snapshot counts after.
func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.Store.Current()
	w.Header().Set("Content-Type", "application/json")
	if snap == nil || len(snap.Channels) == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"loading"}`))
		return
	}
	programmes := 0
	for _, ps := range snap.Guide {
		programmes += len(ps)
	}
	body, _ := json.Marshal(map[string]any{
		"status":     "ok",
		"state":      s.Store.State().String(),
		"channels":   len(snap.Channels),
		"programmes": programmes,
		"built_at":   snap.BuiltAt.Format(time.RFC3339),
	})
	_, _ = w.Write(body)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := s.Addr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{Addr: addr, Handler: logRequests(s)}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("server: listening on %s (base_url=%q)", addr, s.BaseURL)
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		log.Print("server: shutting down ...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("server: shutdown: %v", err)
		}
		<-serverErr
		return nil
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *loggingResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingResponseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

func (w *loggingResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w}
		next.ServeHTTP(lw, r)
		status := lw.status
		if status == 0 {
			status = http.StatusOK
		}
		log.Printf(
			"http: %s %s status=%d bytes=%d dur=%s remote=%s",
			r.Method, r.URL.Path, status, lw.bytes, time.Since(start).Round(time.Millisecond), r.RemoteAddr,
		)
	})
}
