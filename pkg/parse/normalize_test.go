package parse

import (
	"net/url"
	"testing"
)

func TestStripFragment(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"NoFragment", "http://www.ics.uci.edu/a", "http://www.ics.uci.edu/a"},
		{"Fragment", "http://www.ics.uci.edu/a#top", "http://www.ics.uci.edu/a"},
		{"EmptyFragment", "http://www.ics.uci.edu/a#", "http://www.ics.uci.edu/a"},
		{"QueryKept", "http://www.ics.uci.edu/a?x=1#sec", "http://www.ics.uci.edu/a?x=1"},
		{"SecondHashIgnored", "http://www.ics.uci.edu/a#b#c", "http://www.ics.uci.edu/a"},
		{"Empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := StripFragment(tt.input)
			if result != tt.expected {
				t.Errorf("StripFragment(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestHostname(t *testing.T) {
	u, _ := url.Parse("http://WWW.ICS.UCI.EDU:8080/x")
	if got := Hostname(u); got != "www.ics.uci.edu" {
		t.Errorf("Hostname() = %q, want %q", got, "www.ics.uci.edu")
	}
	if got := Hostname(nil); got != "" {
		t.Errorf("Hostname(nil) = %q, want empty", got)
	}
}

func TestPathSegments(t *testing.T) {
	tests := []struct {
		path  string
		count int
	}{
		{"", 0},
		{"/", 0},
		{"/a/b/c", 3},
		{"/a/b/c/", 4},
		{"/a//b", 3},
		{"/a/b/c/d/e/f/g/h/i/j/k", 11},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := len(PathSegments(tt.path)); got != tt.count {
				t.Errorf("len(PathSegments(%q)) = %d, want %d", tt.path, got, tt.count)
			}
		})
	}
}

func TestResolveReference(t *testing.T) {
	base, _ := url.Parse("http://www.ics.uci.edu/dir/page.html")

	tests := []struct {
		name     string
		href     string
		expected string
	}{
		{"Relative", "other.html", "http://www.ics.uci.edu/dir/other.html"},
		{"Rooted", "/top#frag", "http://www.ics.uci.edu/top"},
		{"Absolute", "https://cs.uci.edu/x", "https://cs.uci.edu/x"},
		{"ParentDir", "../up.html", "http://www.ics.uci.edu/up.html"},
		{"Whitespace", "  next.html ", "http://www.ics.uci.edu/dir/next.html"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ResolveReference(base, tt.href)
			if err != nil {
				t.Fatalf("ResolveReference(%q) unexpected error: %v", tt.href, err)
			}
			if result != tt.expected {
				t.Errorf("ResolveReference(%q) = %q, want %q", tt.href, result, tt.expected)
			}
		})
	}
}

func TestResolveReference_Invalid(t *testing.T) {
	base, _ := url.Parse("http://www.ics.uci.edu/")
	if _, err := ResolveReference(base, "http://[::1"); err == nil {
		t.Error("ResolveReference() expected error for malformed host, got nil")
	}
}
