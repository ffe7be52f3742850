// Package metrics exposes Prometheus collectors for the refresh scheduler,
// the catalog store, and the stream relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RefreshTotal counts refresh attempts per feed and result
	// (ok | not_modified | fetch_error | parse_error).
	RefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridcast",
		Subsystem: "refresh",
		Name:      "attempts_total",
		Help:      "Feed refresh attempts by feed and result.",
	}, []string{"feed", "result"})

	// SnapshotChannels is the channel count of the published snapshot.
	SnapshotChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gridcast",
		Subsystem: "catalog",
		Name:      "channels",
		Help:      "Channels in the currently published snapshot.",
	})

	// SnapshotProgrammes is the total programme count of the published snapshot.
	SnapshotProgrammes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gridcast",
		Subsystem: "catalog",
		Name:      "programmes",
		Help:      "Programmes in the currently published snapshot.",
	})

	// ActiveRelays is the number of relay streams currently being served.
	ActiveRelays = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gridcast",
		Subsystem: "relay",
		Name:      "active_streams",
		Help:      "Relay streams currently in flight.",
	})

	// RelayUpstreamFailures counts relays that failed before or during
	// streaming because of the origin (unreachable, error status, redirect loop).
	RelayUpstreamFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gridcast",
		Subsystem: "relay",
		Name:      "upstream_failures_total",
		Help:      "Relay attempts that failed at the origin.",
	})

	// RelayBytes counts bytes streamed to clients.
	RelayBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gridcast",
		Subsystem: "relay",
		Name:      "bytes_total",
		Help:      "Bytes relayed to clients.",
	})
)

// Handler returns the HTTP handler for GET /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
