package parse

import (
	"fmt"
	"net/url"
	"strings"

	"tg-scraper/pkg/utils"
)

// ParsePageURL parses a page link using the stricter url.ParseRequestURI
// (requiring a scheme) so garbage never reaches the HTTP client.
func ParsePageURL(rawURL string) (*url.URL, error) {
	parsed, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing page URL '%s': %w", utils.ErrParsing, rawURL, err)
	}
	return parsed, nil
}

// ResolveImageURL resolves an image src attribute against the page it was
// extracted from. Root-relative srcs ("/file/a.jpg") resolve against the
// page's domain root, protocol-relative srcs inherit the page scheme.
// Non-http(s) results (data:, javascript:) are rejected.
func ResolveImageURL(pageURL *url.URL, src string) (string, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return "", utils.WrapErrorf(utils.ErrParsing, "empty image URL")
	}

	ref, err := url.Parse(src)
	if err != nil {
		return "", fmt.Errorf("%w: parsing image URL '%s': %w", utils.ErrParsing, src, err)
	}

	resolved := pageURL.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", utils.WrapErrorf(utils.ErrParsing, "unsupported scheme '%s' in image URL '%s'", resolved.Scheme, src)
	}

	resolved.Fragment = "" // Fragments are never sent to the server
	return resolved.String(), nil
}
