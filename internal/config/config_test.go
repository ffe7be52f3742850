package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GRIDCAST_PLAYLIST_URL", "http://example.com/list.m3u")
	c := Load()
	if c.PlaylistInterval != 6*time.Hour {
		t.Errorf("PlaylistInterval = %v, want 6h", c.PlaylistInterval)
	}
	if c.GuideInterval != 12*time.Hour {
		t.Errorf("GuideInterval = %v, want 12h", c.GuideInterval)
	}
	if c.RetryWindow != 5*time.Minute {
		t.Errorf("RetryWindow = %v, want 5m", c.RetryWindow)
	}
	if c.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", c.ListenAddr)
	}
	if c.GuideLazy {
		t.Error("GuideLazy should default to false")
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GRIDCAST_PLAYLIST_URL", "https://example.com/list.m3u")
	t.Setenv("GRIDCAST_GUIDE_URL", "https://example.com/guide.xml")
	t.Setenv("GRIDCAST_PLAYLIST_INTERVAL", "30m")
	t.Setenv("GRIDCAST_RETRY_WINDOW", "90s")
	t.Setenv("GRIDCAST_GUIDE_LAZY", "true")
	t.Setenv("GRIDCAST_BASE_URL", "http://tv.local:8080/")
	c := Load()
	if c.PlaylistInterval != 30*time.Minute {
		t.Errorf("PlaylistInterval = %v, want 30m", c.PlaylistInterval)
	}
	if c.RetryWindow != 90*time.Second {
		t.Errorf("RetryWindow = %v, want 90s", c.RetryWindow)
	}
	if !c.GuideLazy {
		t.Error("GuideLazy should be true")
	}
	if c.BaseURL != "http://tv.local:8080" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", c.BaseURL)
	}
}

func TestValidate(t *testing.T) {
	c := &Config{}
	if err := c.Validate(); err == nil {
		t.Error("empty playlist URL should fail validation")
	}
	c = &Config{PlaylistURL: "ftp://example.com/list.m3u"}
	if err := c.Validate(); err == nil {
		t.Error("non-http playlist URL should fail validation")
	}
	c = &Config{PlaylistURL: "http://example.com/list.m3u", GuideURL: "file:///guide.xml"}
	if err := c.Validate(); err == nil {
		t.Error("non-http guide URL should fail validation")
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nGRIDCAST_TEST_PLAIN=hello\nGRIDCAST_TEST_QUOTED=\"a b\"\n\nnot-a-pair\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GRIDCAST_TEST_PLAIN", "")
	t.Setenv("GRIDCAST_TEST_QUOTED", "")
	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if got := os.Getenv("GRIDCAST_TEST_PLAIN"); got != "hello" {
		t.Errorf("plain = %q", got)
	}
	if got := os.Getenv("GRIDCAST_TEST_QUOTED"); got != "a b" {
		t.Errorf("quoted = %q", got)
	}
}

func TestLoadEnvFileMissing(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("missing file should not error, got %v", err)
	}
}
