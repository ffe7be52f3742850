package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gridcast/grid-cast/internal/safeurl"
)

// Config holds catalog, scheduler, and relay settings.
// Load from env and/or a .env file.
type Config struct {
	// Feeds
	PlaylistURL string // M3U playlist source (required)
	GuideURL    string // XMLTV guide source; "" = no guide, now/next always absent

	// Scheduler
	PlaylistInterval time.Duration // refresh interval for the playlist feed
	GuideInterval    time.Duration // refresh interval for the guide feed
	RetryWindow      time.Duration // fixed re-attempt delay after a failed refresh
	GuideLazy        bool          // defer the first guide fetch until a client asks for programme data

	// HTTP
	ListenAddr string // e.g. :8080
	BaseURL    string // external base URL used to build relay playback targets; "" = direct origin URLs

	// Relay
	RelayTimeout time.Duration // origin connect + response-header bound per relay request
}

// Load reads config from environment. Call LoadEnvFile(".env") before Load()
// to use a .env file.
func Load() *Config {
	c := &Config{
		PlaylistURL:      os.Getenv("GRIDCAST_PLAYLIST_URL"),
		GuideURL:         os.Getenv("GRIDCAST_GUIDE_URL"),
		PlaylistInterval: getEnvDuration("GRIDCAST_PLAYLIST_INTERVAL", 6*time.Hour),
		GuideInterval:    getEnvDuration("GRIDCAST_GUIDE_INTERVAL", 12*time.Hour),
		RetryWindow:      getEnvDuration("GRIDCAST_RETRY_WINDOW", 5*time.Minute),
		GuideLazy:        getEnvBool("GRIDCAST_GUIDE_LAZY", false),
		ListenAddr:       getEnv("GRIDCAST_LISTEN_ADDR", ":8080"),
		BaseURL:          strings.TrimSuffix(os.Getenv("GRIDCAST_BASE_URL"), "/"),
		RelayTimeout:     getEnvDuration("GRIDCAST_RELAY_TIMEOUT", 30*time.Second),
	}
	if c.PlaylistInterval <= 0 {
		c.PlaylistInterval = 6 * time.Hour
	}
	if c.GuideInterval <= 0 {
		c.GuideInterval = 12 * time.Hour
	}
	if c.RetryWindow <= 0 {
		c.RetryWindow = 5 * time.Minute
	}
	if c.RelayTimeout <= 0 {
		c.RelayTimeout = 30 * time.Second
	}
	return c
}

// Validate checks the settings a serving process cannot run without.
func (c *Config) Validate() error {
	if c.PlaylistURL == "" {
		return fmt.Errorf("config: GRIDCAST_PLAYLIST_URL is required")
	}
	if !safeurl.IsHTTPOrHTTPS(c.PlaylistURL) {
		return fmt.Errorf("config: playlist URL must be http or https: %s", safeurl.RedactURL(c.PlaylistURL))
	}
	if c.GuideURL != "" && !safeurl.IsHTTPOrHTTPS(c.GuideURL) {
		return fmt.Errorf("config: guide URL must be http or https: %s", safeurl.RedactURL(c.GuideURL))
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
