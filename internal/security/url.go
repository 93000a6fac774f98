// Package security provides shared security validation functions.
package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// blockedSchemes can execute script or smuggle content when rendered as a link.
var blockedSchemes = map[string]bool{
	"javascript": true,
	"vbscript":   true,
	"data":       true,
	"file":       true,
}

// ValidateLinkURL checks a URL an editor attaches to a button or link.
// Fragments, relative paths, mailto: and tel: are accepted as-is. Absolute
// http(s) URLs must not point at internal networks.
func ValidateLinkURL(rawURL string) error {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return fmt.Errorf("URL must not be empty")
	}
	// Browsers drop control characters and whitespace inside schemes, so
	// "java\tscript:" must be judged as "javascript:".
	compact := strings.Map(func(r rune) rune {
		if r <= ' ' {
			return -1
		}
		return r
	}, raw)

	parsed, err := url.Parse(compact)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	switch {
	case blockedSchemes[scheme]:
		return fmt.Errorf("URL scheme %q is not allowed", scheme)
	case scheme == "":
		if strings.HasPrefix(compact, "//") {
			return ValidateHTTPURL("https:" + compact)
		}
		return nil
	case scheme == "mailto" || scheme == "tel":
		if parsed.Opaque == "" {
			return fmt.Errorf("%s URL must have a target", scheme)
		}
		return nil
	default:
		return ValidateHTTPURL(compact)
	}
}

// ValidateHTTPURL checks for SSRF vulnerabilities by blocking requests to internal networks.
// It rejects localhost, private IP ranges, link-local addresses, and cloud metadata endpoints.
func ValidateHTTPURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("URL must have a host")
	}

	hostLower := strings.ToLower(host)
	if hostLower == "localhost" || hostLower == "localhost.localdomain" {
		return fmt.Errorf("links to localhost are not allowed")
	}

	ip := net.ParseIP(host)
	if ip == nil {
		// Hostnames are not resolved; a published page resolves them client side.
		return nil
	}

	if ip.IsLoopback() {
		return fmt.Errorf("links to loopback addresses are not allowed")
	}
	if ip.IsPrivate() {
		return fmt.Errorf("links to private network addresses are not allowed")
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return fmt.Errorf("links to link-local addresses are not allowed")
	}
	if ip.IsUnspecified() {
		return fmt.Errorf("links to unspecified addresses are not allowed")
	}
	return nil
}
