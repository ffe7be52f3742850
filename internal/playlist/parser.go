// Package playlist parses extended-M3U playlist documents into channel records.
package playlist

import (
	"bufio"
	"bytes"
	"io"
	"log"
	"strings"

	"github.com/gridcast/grid-cast/internal/catalog"
)

const maxLineSize = 1 << 20 // 1 MiB per line

// Parse reads an extended-M3U document and returns its channels in document
// order. An #EXTINF line whose next non-comment line is not a URL is dropped
// with a logged warning; malformed attributes degrade to defaults. The only
// fatal condition is a read error on r.
func Parse(r io.Reader) ([]catalog.Channel, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(nil, maxLineSize)

	var channels []catalog.Channel
	urlSeen := make(map[string]int)
	var extinf string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#EXTINF:") {
			if extinf != "" {
				log.Printf("playlist: dropping entry without URL name=%q", nameFromEXTINF(extinf))
			}
			extinf = line
			continue
		}
		if strings.HasPrefix(line, "#") {
			// Other directives (#EXTM3U, #EXTGRP, ...) do not terminate an entry.
			continue
		}
		if extinf == "" {
			continue
		}
		if !looksLikeStreamURL(line) {
			log.Printf("playlist: dropping entry with invalid URL name=%q", nameFromEXTINF(extinf))
			extinf = ""
			continue
		}
		channels = append(channels, buildChannel(extinf, line, urlSeen))
		extinf = ""
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if extinf != "" {
		log.Printf("playlist: dropping trailing entry without URL name=%q", nameFromEXTINF(extinf))
	}
	return channels, nil
}

// ParseBytes parses a playlist held fully in memory. Used by tests and the
// refresh path, which fetches the whole document before parsing.
func ParseBytes(data []byte) ([]catalog.Channel, error) {
	return Parse(bytes.NewReader(data))
}

func looksLikeStreamURL(line string) bool {
	return strings.HasPrefix(line, "http://") ||
		strings.HasPrefix(line, "https://") ||
		strings.HasPrefix(line, "rtsp://") ||
		strings.HasPrefix(line, "udp://") ||
		strings.HasPrefix(line, "/")
}

func buildChannel(extinf, url string, urlSeen map[string]int) catalog.Channel {
	name := nameFromEXTINF(extinf)
	group := attr(extinf, "group-title")
	if group == "" {
		group = catalog.GroupUncategorized
	}
	guideID := attr(extinf, "tvg-id")
	if guideID == "" {
		guideID = name
	}
	dup := urlSeen[url]
	urlSeen[url] = dup + 1
	return catalog.Channel{
		ID:        catalog.ChannelID(url, dup),
		Name:      name,
		LogoURL:   attr(extinf, "tvg-logo"),
		Group:     group,
		StreamURL: url,
		GuideID:   guideID,
	}
}

// nameFromEXTINF returns the free-text channel name: everything after the
// last comma on the EXTINF line.
func nameFromEXTINF(extinf string) string {
	if i := strings.LastIndex(extinf, ","); i >= 0 {
		return strings.TrimSpace(extinf[i+1:])
	}
	return ""
}

// attr extracts a key="value" attribute from an EXTINF line. Attributes are
// order-independent; a missing or unterminated attribute yields "".
func attr(extinf, key string) string {
	prefix := key + `="`
	i := strings.Index(extinf, prefix)
	if i < 0 {
		return ""
	}
	i += len(prefix)
	j := strings.Index(extinf[i:], `"`)
	if j < 0 {
		return ""
	}
	return extinf[i : i+j]
}
