package utils

import (
	"regexp"
	"strings"
)

var (
	unsafeStateChars = regexp.MustCompile(`[^a-z0-9.-]+`)
	repeatedSep      = regexp.MustCompile(`[_.-]{2,}`)
)

const maxStateNameLength = 64

// StateName turns a crawl root domain into a directory name for per-domain state.
// Ports, schemes and anything outside [a-z0-9.-] collapse to underscores.
func StateName(domain string) string {
	name := strings.ToLower(strings.TrimSpace(domain))
	name = unsafeStateChars.ReplaceAllString(name, "_")
	name = repeatedSep.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_.-")
	if len(name) > maxStateNameLength {
		name = strings.TrimRight(name[:maxStateNameLength], "_.-")
	}
	if name == "" {
		return "crawl"
	}
	return name
}
