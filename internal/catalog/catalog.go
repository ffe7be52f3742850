// Package catalog holds the live-TV channel catalog: the channel and
// programme data model, the immutable snapshot combining them, and the
// store that publishes snapshots atomically to concurrent readers.
package catalog

import (
	"fmt"
	"hash/fnv"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// GroupUncategorized is the group label assigned to channels whose playlist
// entry carries no group-title attribute.
const GroupUncategorized = "Uncategorized"

// Channel is one live channel parsed from the playlist.
// Immutable once constructed; a newer snapshot replaces it wholesale.
type Channel struct {
	ID        string `json:"id"` // content-derived stable ID for /stream/{ID}
	Name      string `json:"name"`
	LogoURL   string `json:"logo_url,omitempty"`
	Group     string `json:"group"`      // group-title attribute; GroupUncategorized when absent
	StreamURL string `json:"stream_url"` // origin playback URL
	GuideID   string `json:"guide_id"`   // tvg-id join key; falls back to Name when absent
}

// Programme is one scheduled programme from the guide feed.
// Start/Stop are tz-aware; entries for one GuideID are kept sorted by Start.
type Programme struct {
	GuideID string    `json:"guide_id"`
	Title   string    `json:"title"`
	Desc    string    `json:"desc,omitempty"`
	Start   time.Time `json:"start"`
	Stop    time.Time `json:"stop"`
}

// Snapshot is one complete, internally consistent catalog view: the channel
// sequence, the derived category set, and the joined guide mapping. Snapshots
// are never mutated after publish; a refresh builds a new one.
type Snapshot struct {
	Channels   []Channel
	Categories []string               // distinct Group labels, sorted
	Guide      map[string][]Programme // guide-channel-id -> programmes ordered by Start
	BuiltAt    time.Time
	PlaylistAt time.Time // zero until the first successful playlist refresh
	GuideAt    time.Time // zero until the first successful guide refresh
}

// ChannelByID returns the channel with the given catalog ID, or nil.
func (s *Snapshot) ChannelByID(id string) *Channel {
	if s == nil {
		return nil
	}
	for i := range s.Channels {
		if s.Channels[i].ID == id {
			return &s.Channels[i]
		}
	}
	return nil
}

// ProgrammesFor returns the programme sequence for guideID (nil when the
// guide has no data for it).
func (s *Snapshot) ProgrammesFor(guideID string) []Programme {
	if s == nil || s.Guide == nil {
		return nil
	}
	return s.Guide[guideID]
}

// State describes the lifecycle of the published snapshot.
type State int

const (
	StateUnloaded State = iota // no successful playlist refresh yet
	StateLoaded                // a snapshot is published and no refresh is running
	StateStale                 // a snapshot is published and a refresh is in flight
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoaded:
		return "loaded"
	case StateStale:
		return "stale"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Store publishes catalog snapshots. The published reference is written only
// by the refresh scheduler (single writer, serialized by mu) and read by any
// number of concurrent callers without locking.
type Store struct {
	mu         sync.Mutex // serializes writers; readers never take it
	snap       atomic.Pointer[Snapshot]
	refreshing atomic.Int32 // feeds currently mid-refresh
}

// NewStore returns a store with no published snapshot.
func NewStore() *Store {
	return &Store{}
}

// Current returns the published snapshot, or nil before the first publish.
// The returned snapshot is immutable; a caller may hold it across a refresh
// and keeps observing a consistent view.
func (st *Store) Current() *Snapshot {
	return st.snap.Load()
}

// State reports the snapshot lifecycle state.
func (st *Store) State() State {
	snap := st.snap.Load()
	if snap == nil || snap.PlaylistAt.IsZero() {
		return StateUnloaded
	}
	if st.refreshing.Load() > 0 {
		return StateStale
	}
	return StateLoaded
}

// BeginRefresh marks a feed refresh in flight. The returned func must be
// called when the refresh finishes, success or not.
func (st *Store) BeginRefresh() func() {
	st.refreshing.Add(1)
	var once sync.Once
	return func() { once.Do(func() { st.refreshing.Add(-1) }) }
}

// PublishChannels publishes a new snapshot with the given channel sequence,
// carrying the guide mapping over from the previous snapshot. Categories are
// re-derived. Readers see either the full old snapshot or the full new one.
func (st *Store) PublishChannels(channels []Channel, at time.Time) *Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	prev := st.snap.Load()
	next := &Snapshot{
		Channels:   channels,
		Categories: deriveCategories(channels),
		BuiltAt:    at,
		PlaylistAt: at,
	}
	if prev != nil {
		next.Guide = prev.Guide
		next.GuideAt = prev.GuideAt
	}
	st.snap.Store(next)
	return next
}

// PublishGuide publishes a new snapshot with the given guide mapping,
// carrying channels and categories over from the previous snapshot.
func (st *Store) PublishGuide(guide map[string][]Programme, at time.Time) *Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	prev := st.snap.Load()
	next := &Snapshot{
		Guide:   guide,
		BuiltAt: at,
		GuideAt: at,
	}
	if prev != nil {
		next.Channels = prev.Channels
		next.Categories = prev.Categories
		next.PlaylistAt = prev.PlaylistAt
	}
	st.snap.Store(next)
	return next
}

func deriveCategories(channels []Channel) []string {
	seen := make(map[string]struct{}, 16)
	for _, ch := range channels {
		seen[ch.Group] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for g := range seen {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Filter selects channels from a catalog listing. The zero value matches all.
type Filter struct {
	Category string // exact Group match when non-empty
	Search   string // case-insensitive substring of Name when non-empty
}

// List returns the channels matching f, in playlist document order.
// A nil snapshot (no refresh yet) yields an empty list, never an error.
func (s *Snapshot) List(f Filter) []Channel {
	if s == nil {
		return nil
	}
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]Channel, 0, len(s.Channels))
	for _, ch := range s.Channels {
		if f.Category != "" && ch.Group != f.Category {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(ch.Name), search) {
			continue
		}
		out = append(out, ch)
	}
	return out
}

// ChannelID derives a channel's catalog ID from its origin URL. dup is the
// zero-based count of earlier playlist entries sharing the same URL, so
// duplicate entries still get distinct, reproducible IDs. IDs stay stable
// across refreshes as long as the origin URL does not change.
func ChannelID(originURL string, dup int) string {
	h := fnv.New64a()
	_, _ = io.WriteString(h, originURL)
	if dup > 0 {
		_, _ = fmt.Fprintf(h, "#%d", dup)
	}
	return "ch" + strconv.FormatUint(h.Sum64(), 36)
}
