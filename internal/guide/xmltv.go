// Package guide parses XMLTV programme guide documents and resolves the
// currently-airing and next programme for a channel.
package guide

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"log"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/gridcast/grid-cast/internal/catalog"
)

// xmltvTimeLayouts cover the XMLTV start/stop attribute: fourteen digits plus
// an explicit offset, with truncated variants seen in the wild.
var xmltvTimeLayouts = []string{
	"20060102150405 -0700",
	"20060102150405 Z07:00",
	"20060102150405",
	"200601021504 -0700",
	"200601021504",
}

// ErrNoRoot is returned when the document has no <tv> root element.
var ErrNoRoot = errors.New("guide: xmltv root <tv> not found")

// Parse reads an XMLTV document and returns programmes grouped by their
// channel attribute, each group sorted by start time. A programme with an
// unparsable timestamp is skipped with a logged warning; only a document-level
// decode failure is an error.
func Parse(r io.Reader) (map[string][]catalog.Programme, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	type progNode struct {
		Channel string `xml:"channel,attr"`
		Start   string `xml:"start,attr"`
		Stop    string `xml:"stop,attr"`
		Title   string `xml:"title"`
		Desc    string `xml:"desc"`
	}

	out := make(map[string][]catalog.Programme)
	sawRoot := false
	skipped := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "tv":
			sawRoot = true
		case "programme":
			var node progNode
			if err := dec.DecodeElement(&node, &se); err != nil {
				return nil, err
			}
			start, serr := parseXMLTVTime(node.Start)
			stop, perr := parseXMLTVTime(node.Stop)
			if serr != nil || perr != nil {
				skipped++
				if skipped <= 10 {
					log.Printf("guide: skipping programme with bad timestamp channel=%q start=%q stop=%q", node.Channel, node.Start, node.Stop)
				}
				continue
			}
			id := strings.TrimSpace(node.Channel)
			if id == "" {
				skipped++
				continue
			}
			out[id] = append(out[id], catalog.Programme{
				GuideID: id,
				Title:   strings.TrimSpace(node.Title),
				Desc:    strings.TrimSpace(node.Desc),
				Start:   start,
				Stop:    stop,
			})
		default:
			// <channel> and anything else: not needed for the join.
			if sawRoot && se.Name.Local != "channel" {
				_ = dec.Skip()
			}
		}
	}
	if !sawRoot {
		return nil, ErrNoRoot
	}
	if skipped > 0 {
		log.Printf("guide: skipped %d malformed programme(s)", skipped)
	}
	// Feeds are supposed to emit programmes in chronological order per
	// channel, but the resolver's ordering invariant should not rest on that.
	for id := range out {
		progs := out[id]
		sort.SliceStable(progs, func(i, j int) bool { return progs[i].Start.Before(progs[j].Start) })
		out[id] = progs
	}
	return out, nil
}

// ParseBytes parses an XMLTV document held fully in memory.
func ParseBytes(data []byte) (map[string][]catalog.Programme, error) {
	return Parse(bytes.NewReader(data))
}

func parseXMLTVTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range xmltvTimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
