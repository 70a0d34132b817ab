package icon

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

// secondLevelRe captures the last two dot-separated labels of a hostname that
// has at least three. It is not public-suffix aware: "foo.example.co.uk"
// yields "co.uk".
var secondLevelRe = regexp.MustCompile(`(?i)\.([^.\s]+?\.[^.\s]+?)$`)

// RootIconURL returns "{scheme}://{host}/favicon.ico" for an absolute URL, or
// "" when raw cannot be parsed as one. A non-default port is kept.
func RootIconURL(raw string) string {
	u, ok := parseAbsolute(raw)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s://%s/favicon.ico", u.Scheme, u.Host)
}

// SecondLevelDomainURL returns "{scheme}://{lastTwoLabels}" for the hostname
// of raw. It reports false when the hostname has fewer than three labels, is
// an IP address, or raw is not an absolute URL.
func SecondLevelDomainURL(raw string) (string, bool) {
	u, ok := parseAbsolute(raw)
	if !ok {
		return "", false
	}
	hostname := u.Hostname()
	if net.ParseIP(hostname) != nil {
		return "", false
	}
	m := secondLevelRe.FindStringSubmatch(hostname)
	if len(m) < 2 || m[1] == "" {
		return "", false
	}
	host := m[1]
	if port := u.Port(); port != "" {
		host = net.JoinHostPort(host, port)
	}
	return fmt.Sprintf("%s://%s", u.Scheme, host), true
}

// ResolveRelativeURL resolves ref against base. Either argument being empty,
// or ref being a data URI, returns ref unchanged.
func ResolveRelativeURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if base == "" || ref == "" || IsDataURI(ref) {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// ValidateRequestedURL checks that raw is an absolute http(s) URL.
func ValidateRequestedURL(raw string) error {
	u, ok := parseAbsolute(strings.TrimSpace(raw))
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	return nil
}

func parseAbsolute(raw string) (*url.URL, bool) {
	if raw == "" {
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, false
	}
	return u, true
}
