// Package safeurl validates and redacts URLs before they reach the relay or
// the logs.
package safeurl

import (
	"net/url"
	"strings"
)

// IsHTTPOrHTTPS returns true if u is a valid URL with scheme http or https.
// Used to reject file://, ftp://, and other schemes that could lead to SSRF
// or local file access.
func IsHTTPOrHTTPS(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	s := parsed.Scheme
	return s == "http" || s == "https"
}

// RedactURL returns u with userinfo and credential-looking query parameters
// replaced, for logging. IPTV playlist URLs routinely embed username/password
// in the query string.
func RedactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return "<unparsable-url>"
	}
	if parsed.User != nil {
		parsed.User = url.User("redacted")
	}
	q := parsed.Query()
	changed := false
	for k := range q {
		switch strings.ToLower(k) {
		case "username", "user", "password", "pass", "token", "auth":
			q.Set(k, "redacted")
			changed = true
		}
	}
	if changed {
		parsed.RawQuery = q.Encode()
	}
	return parsed.String()
}
