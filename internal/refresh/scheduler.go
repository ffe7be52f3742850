// Package refresh runs the periodic playlist and guide refresh loops and
// publishes catalog snapshots.
package refresh

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gridcast/grid-cast/internal/catalog"
	"github.com/gridcast/grid-cast/internal/fetch"
	"github.com/gridcast/grid-cast/internal/guide"
	"github.com/gridcast/grid-cast/internal/metrics"
	"github.com/gridcast/grid-cast/internal/playlist"
	"github.com/gridcast/grid-cast/internal/safeurl"
)

const (
	DefaultPlaylistInterval = 6 * time.Hour
	DefaultGuideInterval    = 12 * time.Hour
	// DefaultRetryWindow is the fixed wait after a failed refresh before the
	// next attempt. Deliberately a flat window, not exponential backoff: the
	// data is non-critical and the prior snapshot stays published.
	DefaultRetryWindow = 5 * time.Minute
)

// Options configures a Scheduler. Zero intervals get defaults.
type Options struct {
	PlaylistURL      string
	GuideURL         string // empty disables guide refresh entirely
	PlaylistInterval time.Duration
	GuideInterval    time.Duration
	RetryWindow      time.Duration
	// GuideLazy delays the first guide fetch until EnsureGuide is called
	// (typically by the first detail query) instead of fetching at startup.
	GuideLazy bool
}

func (o *Options) applyDefaults() {
	if o.PlaylistInterval <= 0 {
		o.PlaylistInterval = DefaultPlaylistInterval
	}
	if o.GuideInterval <= 0 {
		o.GuideInterval = DefaultGuideInterval
	}
	if o.RetryWindow <= 0 {
		o.RetryWindow = DefaultRetryWindow
	}
}

// Scheduler owns the two feed loops. Each feed refreshes on its own schedule;
// either may fail without affecting the other, and a failed attempt leaves
// the published snapshot untouched.
type Scheduler struct {
	store *catalog.Store
	opts  Options

	playlistFetch *fetch.Fetcher
	guideFetch    *fetch.Fetcher

	playlistFlight singleFlight
	guideFlight    singleFlight

	guideKick chan struct{} // EnsureGuide -> guide loop wakeup
	guideOnce sync.Once
}

// New returns a scheduler publishing into store.
func New(store *catalog.Store, opts Options) *Scheduler {
	opts.applyDefaults()
	s := &Scheduler{
		store:     store,
		opts:      opts,
		guideKick: make(chan struct{}, 1),
	}
	if opts.PlaylistURL != "" {
		s.playlistFetch = fetch.New(opts.PlaylistURL)
	}
	if opts.GuideURL != "" {
		s.guideFetch = fetch.New(opts.GuideURL)
	}
	return s
}

// Run starts both feed loops and blocks until ctx is cancelled. The playlist
// is refreshed immediately; the guide is refreshed immediately unless
// GuideLazy is set, in which case the first EnsureGuide call triggers it.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	if s.playlistFetch != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.feedLoop(ctx, "playlist", s.opts.PlaylistInterval, true, nil, s.RefreshPlaylist)
		}()
	} else {
		log.Printf("refresh: no playlist URL configured; catalog stays empty")
	}
	if s.guideFetch != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.feedLoop(ctx, "guide", s.opts.GuideInterval, !s.opts.GuideLazy, s.guideKick, s.RefreshGuide)
		}()
	}
	wg.Wait()
}

// feedLoop runs one feed's schedule: an optional immediate refresh, then
// ticks at interval, shortened to the retry window after a failure. kick, when
// non-nil, forces an immediate attempt (used for lazy guide loading).
func (s *Scheduler) feedLoop(ctx context.Context, name string, interval time.Duration, eager bool, kick <-chan struct{}, refreshFn func(context.Context) error) {
	next := time.Duration(0)
	if !eager {
		// Park until kicked or the first scheduled tick.
		next = interval
	}
	timer := time.NewTimer(next)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-kickOrNever(kick):
		}
		wait := interval
		if err := refreshFn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("refresh: %s refresh failed (next attempt in %s): %v", name, s.opts.RetryWindow, err)
			wait = s.opts.RetryWindow
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)
	}
}

func kickOrNever(kick <-chan struct{}) <-chan struct{} {
	if kick == nil {
		return nil // nil channel: blocks forever
	}
	return kick
}

// RefreshPlaylist fetches and parses the playlist once and publishes the
// resulting channel set. A 304 counts as success and publishes nothing.
// Single-flight: a call overlapping an in-progress playlist refresh returns
// immediately without fetching.
func (s *Scheduler) RefreshPlaylist(ctx context.Context) error {
	if s.playlistFetch == nil {
		return nil
	}
	if !s.playlistFlight.begin() {
		return nil
	}
	defer s.playlistFlight.end()
	done := s.store.BeginRefresh()
	defer done()

	start := time.Now()
	body, err := s.playlistFetch.Fetch(ctx)
	if err != nil {
		if errors.Is(err, fetch.ErrNotModified) {
			metrics.RefreshTotal.WithLabelValues("playlist", "not_modified").Inc()
			log.Printf("refresh: playlist unchanged (304); keeping snapshot")
			return nil
		}
		metrics.RefreshTotal.WithLabelValues("playlist", "fetch_error").Inc()
		return err
	}
	channels, err := playlist.ParseBytes(body)
	if err != nil {
		metrics.RefreshTotal.WithLabelValues("playlist", "parse_error").Inc()
		return err
	}
	snap := s.store.PublishChannels(channels, time.Now())
	metrics.RefreshTotal.WithLabelValues("playlist", "ok").Inc()
	metrics.SnapshotChannels.Set(float64(len(snap.Channels)))
	log.Printf("refresh: playlist ok channels=%d categories=%d bytes=%d dur=%s src=%s",
		len(snap.Channels), len(snap.Categories), len(body), time.Since(start).Round(time.Millisecond), safeurl.RedactURL(s.opts.PlaylistURL))
	return nil
}

// RefreshGuide fetches and parses the guide once and publishes the resulting
// programme mapping. Guide data is best-effort: a top-level parse failure is
// reported to the schedule for retry but never clears published guide data.
func (s *Scheduler) RefreshGuide(ctx context.Context) error {
	if s.guideFetch == nil {
		return nil
	}
	if !s.guideFlight.begin() {
		return nil
	}
	defer s.guideFlight.end()
	done := s.store.BeginRefresh()
	defer done()

	start := time.Now()
	body, err := s.guideFetch.Fetch(ctx)
	if err != nil {
		if errors.Is(err, fetch.ErrNotModified) {
			metrics.RefreshTotal.WithLabelValues("guide", "not_modified").Inc()
			log.Printf("refresh: guide unchanged (304); keeping snapshot")
			return nil
		}
		metrics.RefreshTotal.WithLabelValues("guide", "fetch_error").Inc()
		return err
	}
	programmes, err := guide.ParseBytes(body)
	if err != nil {
		metrics.RefreshTotal.WithLabelValues("guide", "parse_error").Inc()
		return err
	}
	snap := s.store.PublishGuide(programmes, time.Now())
	metrics.RefreshTotal.WithLabelValues("guide", "ok").Inc()
	total := 0
	for _, progs := range snap.Guide {
		total += len(progs)
	}
	metrics.SnapshotProgrammes.Set(float64(total))
	log.Printf("refresh: guide ok guide_channels=%d programmes=%d bytes=%d dur=%s src=%s",
		len(snap.Guide), total, len(body), time.Since(start).Round(time.Millisecond), safeurl.RedactURL(s.opts.GuideURL))
	return nil
}

// EnsureGuide triggers the first guide refresh when GuideLazy is set. Called
// by read paths that want programme data; cheap no-op after the first call.
func (s *Scheduler) EnsureGuide() {
	if s.guideFetch == nil || !s.opts.GuideLazy {
		return
	}
	s.guideOnce.Do(func() {
		select {
		case s.guideKick <- struct{}{}:
		default:
		}
	})
}

// singleFlight is a non-blocking mutual exclusion flag: begin reports whether
// the caller won the slot. Overlapping refreshes of one feed are skipped, not
// queued, so two in-flight snapshots can never race to publish.
type singleFlight struct {
	mu   sync.Mutex
	busy bool
}

func (f *singleFlight) begin() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return false
	}
	f.busy = true
	return true
}

func (f *singleFlight) end() {
	f.mu.Lock()
	f.busy = false
	f.mu.Unlock()
}
