package parse

import (
	"net/url"
	"strings"
)

// StripFragment removes everything from the first '#' on. Two URLs that differ only by
// fragment map to the same string; nothing else about the URL is changed.
func StripFragment(rawURL string) string {
	before, _, _ := strings.Cut(rawURL, "#")
	return before
}

// Hostname returns the lowercased host of u without any port.
func Hostname(u *url.URL) string {
	if u == nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// PathSegments splits a URL path on '/' after trimming the leading slash. Interior and
// trailing empty segments are kept so that "//" still adds depth.
func PathSegments(path string) []string {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// ResolveReference resolves href against base and strips the fragment of the result.
func ResolveReference(base *url.URL, href string) (string, error) {
	ref, err := base.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	ref.Fragment = ""
	ref.RawFragment = ""
	return ref.String(), nil
}
