// Package security validates URLs that end up in served pages.
package security

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateScriptURL checks a URL used as a <script src>. Absolute http(s) URLs
// and root-relative paths are accepted; anything else, such as javascript: or
// data: URLs, is rejected.
func ValidateScriptURL(rawURL string) error {
	if strings.HasPrefix(rawURL, "/") && !strings.HasPrefix(rawURL, "//") {
		if _, err := url.Parse(rawURL); err != nil {
			return fmt.Errorf("invalid URL: %w", err)
		}
		return nil
	}
	return ValidateHTTPURL(rawURL)
}

// ValidateHTTPURL checks that rawURL is an absolute http or https URL with a host.
func ValidateHTTPURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}

	if parsed.Hostname() == "" {
		return fmt.Errorf("URL must have a host")
	}

	if parsed.User != nil {
		return fmt.Errorf("URL must not contain credentials")
	}

	return nil
}
