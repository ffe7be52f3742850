package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gridcast/grid-cast/internal/fetch"
)

// CheckSource fetches the feed URL with a short deadline. Returns nil if the
// origin answers 200, an error with the reason if not.
func CheckSource(ctx context.Context, feedURL string) error {
	if feedURL == "" {
		return fmt.Errorf("no feed URL configured")
	}
	// Some origins reject HEAD; use GET and discard the body.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", fetch.UserAgent)
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("feed unreachable: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("feed returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// CheckEndpoints hits catalog and healthz at baseURL and returns the first
// error or nil. Used by the probe subcommand against a running instance.
func CheckEndpoints(ctx context.Context, baseURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	for _, path := range []string{"/healthz", "/catalog"} {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path, nil)
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: HTTP %d", path, resp.StatusCode)
		}
	}
	return nil
}
