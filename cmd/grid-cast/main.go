// Command grid-cast: live-TV channel catalog with an XMLTV programme guide
// and a pass-through stream relay.
//
//	run      Refresh feeds on a schedule and serve the catalog API. For systemd.
//	refresh  Fetch + parse both feeds once, print counts, exit non-zero on failure
//	probe    Check feed reachability, or a running instance via -base-url
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gridcast/grid-cast/internal/catalog"
	"github.com/gridcast/grid-cast/internal/config"
	"github.com/gridcast/grid-cast/internal/health"
	"github.com/gridcast/grid-cast/internal/refresh"
	"github.com/gridcast/grid-cast/internal/relay"
	"github.com/gridcast/grid-cast/internal/safeurl"
	"github.com/gridcast/grid-cast/internal/server"
)

func main() {
	_ = config.LoadEnvFile(".env")
	log.SetFlags(log.LstdFlags)
	log.SetPrefix("[grid-cast] ")

	runCmd := flag.NewFlagSet("run", flag.ExitOnError)
	runAddr := runCmd.String("addr", "", "Listen address (default: GRIDCAST_LISTEN_ADDR or :8080)")
	runBaseURL := runCmd.String("base-url", "", "External base URL for relay playback targets (default: GRIDCAST_BASE_URL; empty = direct origin URLs)")

	refreshCmd := flag.NewFlagSet("refresh", flag.ExitOnError)
	refreshPlaylist := refreshCmd.String("playlist", "", "M3U playlist URL (default: GRIDCAST_PLAYLIST_URL)")
	refreshGuide := refreshCmd.String("guide", "", "XMLTV guide URL (default: GRIDCAST_GUIDE_URL)")

	probeCmd := flag.NewFlagSet("probe", flag.ExitOnError)
	probeBaseURL := probeCmd.String("base-url", "", "Probe a running instance at this base URL instead of the feeds")
	probeTimeout := probeCmd.Duration("timeout", 30*time.Second, "Timeout for the whole probe")

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <run|refresh|probe> [flags]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  run      Refresh feeds on a schedule and serve the catalog API\n")
		fmt.Fprintf(os.Stderr, "  refresh  Fetch + parse both feeds once and print counts\n")
		fmt.Fprintf(os.Stderr, "  probe    Check feed reachability (or -base-url for a running instance)\n")
		os.Exit(1)
	}

	cfg := config.Load()

	switch os.Args[1] {
	case "run":
		_ = runCmd.Parse(os.Args[2:])
		if *runAddr != "" {
			cfg.ListenAddr = *runAddr
		}
		if *runBaseURL != "" {
			cfg.BaseURL = *runBaseURL
		}
		if err := cfg.Validate(); err != nil {
			log.Printf("Config invalid: %v", err)
			os.Exit(1)
		}
		if err := runServe(cfg); err != nil {
			log.Printf("Serve failed: %v", err)
			os.Exit(1)
		}

	case "refresh":
		_ = refreshCmd.Parse(os.Args[2:])
		if *refreshPlaylist != "" {
			cfg.PlaylistURL = *refreshPlaylist
		}
		if *refreshGuide != "" {
			cfg.GuideURL = *refreshGuide
		}
		if err := cfg.Validate(); err != nil {
			log.Printf("Config invalid: %v", err)
			os.Exit(1)
		}
		if err := refreshOnce(cfg); err != nil {
			log.Printf("Refresh failed: %v", err)
			os.Exit(1)
		}

	case "probe":
		_ = probeCmd.Parse(os.Args[2:])
		ctx, cancel := context.WithTimeout(context.Background(), *probeTimeout)
		defer cancel()
		if err := probe(ctx, cfg, *probeBaseURL); err != nil {
			log.Printf("Probe failed: %v", err)
			os.Exit(1)
		}
		log.Print("Probe OK")

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(1)
	}
}

// runServe starts the refresh scheduler and the HTTP server, and runs until
// SIGINT/SIGTERM.
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := catalog.NewStore()
	sched := refresh.New(store, refresh.Options{
		PlaylistURL:      cfg.PlaylistURL,
		GuideURL:         cfg.GuideURL,
		PlaylistInterval: cfg.PlaylistInterval,
		GuideInterval:    cfg.GuideInterval,
		RetryWindow:      cfg.RetryWindow,
		GuideLazy:        cfg.GuideLazy,
	})
	go sched.Run(ctx)

	srv := &server.Server{
		Addr:    cfg.ListenAddr,
		BaseURL: cfg.BaseURL,
		Store:   store,
		Sched:   sched,
		Relay:   relay.New(cfg.RelayTimeout),
	}
	return srv.Run(ctx)
}

// refreshOnce fetches and parses both feeds once, logging counts. Exit status
// reflects whether the playlist loaded; a guide failure is logged but not
// fatal (the catalog serves without programme data).
func refreshOnce(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := catalog.NewStore()
	sched := refresh.New(store, refresh.Options{
		PlaylistURL: cfg.PlaylistURL,
		GuideURL:    cfg.GuideURL,
	})
	if err := sched.RefreshPlaylist(ctx); err != nil {
		return fmt.Errorf("playlist %s: %w", safeurl.RedactURL(cfg.PlaylistURL), err)
	}
	if cfg.GuideURL != "" {
		if err := sched.RefreshGuide(ctx); err != nil {
			log.Printf("Guide refresh failed (continuing without programme data): %v", err)
		}
	}
	snap := store.Current()
	if snap == nil {
		return fmt.Errorf("no snapshot published")
	}
	programmes := 0
	for _, ps := range snap.Guide {
		programmes += len(ps)
	}
	log.Printf("Refreshed: %d channels, %d categories, %d programmes across %d guide channels",
		len(snap.Channels), len(snap.Categories), programmes, len(snap.Guide))
	return nil
}

// probe checks a running instance when baseURL is set, otherwise the
// configured feed origins.
func probe(ctx context.Context, cfg *config.Config, baseURL string) error {
	if baseURL != "" {
		return health.CheckEndpoints(ctx, baseURL)
	}
	if err := health.CheckSource(ctx, cfg.PlaylistURL); err != nil {
		return fmt.Errorf("playlist: %w", err)
	}
	if cfg.GuideURL != "" {
		if err := health.CheckSource(ctx, cfg.GuideURL); err != nil {
			return fmt.Errorf("guide: %w", err)
		}
	}
	return nil
}
