package urlutil

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ExtractHost extracts and lowercases the hostname (without port) from a URL string.
// Returns empty string if URL is invalid or has no host.
func ExtractHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

// RegistrableDomain returns the eTLD+1 of a URL's host, which is the name a
// Cloudflare zone is registered under: "https://blog.example.co.uk/x" -> "example.co.uk".
func RegistrableDomain(rawURL string) (string, error) {
	host := ExtractHost(rawURL)
	if host == "" {
		return "", fmt.Errorf("no host in URL %q", rawURL)
	}
	if net.ParseIP(host) != nil {
		return "", fmt.Errorf("host %q is an IP address", host)
	}

	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", fmt.Errorf("cannot derive registrable domain from %q: %w", host, err)
	}
	return domain, nil
}

// JoinPath appends slash-separated segments to a base URL, keeping a trailing slash.
// JoinPath("https://example.com/", "category", "news") -> "https://example.com/category/news/"
func JoinPath(base string, segments ...string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(base, "/"))
	for _, segment := range segments {
		segment = strings.Trim(segment, "/")
		if segment == "" {
			continue
		}
		b.WriteByte('/')
		b.WriteString(segment)
	}
	b.WriteByte('/')
	return b.String()
}
