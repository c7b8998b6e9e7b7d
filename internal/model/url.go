package model

import (
	"net/url"
	"strings"
)

// ExtractDomain pulls the lowercased hostname from a URL string and strips a
// leading "www.". It returns "" when the URL cannot be parsed.
func ExtractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// IsTrackable reports whether a URL is a regular web page. Browser-internal
// pages (chrome://, about:, extension pages) are never recorded.
func IsTrackable(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
