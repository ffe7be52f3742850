package guide

import (
	"errors"
	"testing"
	"time"
)

const sampleXMLTV = `<?xml version="1.0" encoding="UTF-8"?>
<tv generator-info-name="test">
  <channel id="news.example">
    <display-name>World News HD</display-name>
  </channel>
  <programme start="20260310080000 +0000" stop="20260310100000 +0000" channel="news.example">
    <title>Morning Report</title>
    <desc>Headlines and weather.</desc>
  </programme>
  <programme start="20260310100000 +0000" stop="20260310120000 +0000" channel="news.example">
    <title>Noon Briefing</title>
  </programme>
  <programme start="20260310090000 +0000" stop="20260310110000 +0000" channel="sports.example">
    <title>Match of the Day</title>
  </programme>
</tv>`

func TestParse(t *testing.T) {
	guide, err := ParseBytes([]byte(sampleXMLTV))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	news := guide["news.example"]
	if len(news) != 2 {
		t.Fatalf("news programmes = %d, want 2", len(news))
	}
	p := news[0]
	if p.Title != "Morning Report" || p.Desc != "Headlines and weather." {
		t.Errorf("programme = %+v", p)
	}
	want := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	if !p.Start.Equal(want) {
		t.Errorf("start = %v, want %v", p.Start, want)
	}
	if !p.Stop.Equal(want.Add(2 * time.Hour)) {
		t.Errorf("stop = %v", p.Stop)
	}
	if len(guide["sports.example"]) != 1 {
		t.Errorf("sports programmes = %v", guide["sports.example"])
	}
}

func TestParseSortsOutOfOrderProgrammes(t *testing.T) {
	doc := `<tv>
  <programme start="20260310100000 +0000" stop="20260310120000 +0000" channel="c"><title>Second</title></programme>
  <programme start="20260310080000 +0000" stop="20260310100000 +0000" channel="c"><title>First</title></programme>
</tv>`
	guide, err := ParseBytes([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	progs := guide["c"]
	if len(progs) != 2 || progs[0].Title != "First" || progs[1].Title != "Second" {
		t.Fatalf("programmes not start-ordered: %v", progs)
	}
}

func TestParseSkipsBadTimestamps(t *testing.T) {
	doc := `<tv>
  <programme start="not-a-time" stop="20260310100000 +0000" channel="c"><title>Broken</title></programme>
  <programme start="20260310080000 +0000" stop="20260310100000 +0000" channel="c"><title>Good</title></programme>
  <programme start="20260310100000 +0000" stop="" channel="c"><title>No Stop</title></programme>
</tv>`
	guide, err := ParseBytes([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	progs := guide["c"]
	if len(progs) != 1 || progs[0].Title != "Good" {
		t.Fatalf("programmes = %v, want only Good", progs)
	}
}

func TestParseSkipsMissingChannel(t *testing.T) {
	doc := `<tv>
  <programme start="20260310080000 +0000" stop="20260310100000 +0000" channel=""><title>Nowhere</title></programme>
</tv>`
	guide, err := ParseBytes([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if len(guide) != 0 {
		t.Fatalf("guide = %v, want empty", guide)
	}
}

func TestParseNoRoot(t *testing.T) {
	if _, err := ParseBytes([]byte(`<guide></guide>`)); !errors.Is(err, ErrNoRoot) {
		t.Fatalf("err = %v, want ErrNoRoot", err)
	}
}

func TestParseTruncatedDocument(t *testing.T) {
	if _, err := ParseBytes([]byte(`<tv><programme start="20260310080000 +0000"`)); err == nil {
		t.Fatal("truncated document should fail")
	}
}

func TestParseTimeLayouts(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"20260310080000 +0100", time.Date(2026, 3, 10, 8, 0, 0, 0, time.FixedZone("", 3600))},
		{"20260310080000", time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)},
		{"202603100800 +0000", time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)},
		{"202603100800", time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		got, err := parseXMLTVTime(c.in)
		if err != nil {
			t.Errorf("parse %q: %v", c.in, err)
			continue
		}
		if !got.Equal(c.want) {
			t.Errorf("parse %q = %v, want %v", c.in, got, c.want)
		}
	}
	if _, err := parseXMLTVTime("sometime tuesday"); err == nil {
		t.Error("garbage timestamp should fail")
	}
}

func TestParseDeclaredCharset(t *testing.T) {
	// ISO-8859-1 document with an 0xE9 (e-acute) byte in the title.
	doc := append([]byte(`<?xml version="1.0" encoding="ISO-8859-1"?><tv><programme start="20260310080000 +0000" stop="20260310100000 +0000" channel="c"><title>Cin`), 0xE9)
	doc = append(doc, []byte(`ma</title></programme></tv>`)...)
	guide, err := ParseBytes(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := guide["c"][0].Title; got != "Cinéma" {
		t.Errorf("title = %q, want decoded Cinéma", got)
	}
}
