// Package trap holds the shared state used to keep the crawler out of traps: the set of
// URLs already seen, the fingerprints of admitted page content, and heuristics over URL
// path shape.
package trap

import (
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/trapcrawl/pkg/fingerprint"
	"github.com/Sriram-PR/trapcrawl/pkg/parse"
)

const (
	maxPathSegments   = 10
	bloomFalsePosRate = 0.01
)

var (
	longDigitRun = regexp.MustCompile(`\d{5,}`)
	datePattern  = regexp.MustCompile(`\d{4}[-/]\d{2}([-/]\d{2})?`)
	digitRun     = regexp.MustCompile(`\d+`)
)

// Reason names the heuristic that classified a URL as a trap.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonDepth           Reason = "path_depth"
	ReasonLongNumber      Reason = "long_number"
	ReasonRepeatedSegment Reason = "repeated_segment"
	ReasonEventDate       Reason = "event_date"
	ReasonUnparseable     Reason = "unparseable"
)

// Detector is safe for concurrent use. Every check-and-insert runs under one mutex, so two
// workers can never both see the same URL or fingerprint as new.
type Detector struct {
	mu            sync.Mutex
	threshold     int
	seen          *bloom.BloomFilter  // Negative fast path for seen
	visited       map[string]struct{} // Exact membership; only grows
	fingerprints  []fingerprint.Fingerprint
	patternCounts map[string]int // URL shape -> count; informational only
	log           *logrus.Entry
}

// NewDetector creates a Detector. threshold is the maximum Hamming distance at which two
// content fingerprints are near-duplicates; expectedURLs sizes the bloom filter.
func NewDetector(threshold int, expectedURLs uint, log *logrus.Entry) *Detector {
	if expectedURLs == 0 {
		expectedURLs = 1
	}
	return &Detector{
		threshold:     threshold,
		seen:          bloom.NewWithEstimates(expectedURLs, bloomFalsePosRate),
		visited:       make(map[string]struct{}),
		patternCounts: make(map[string]int),
		log:           log.WithField("component", "trap_detector"),
	}
}

// IsDuplicateURL reports whether rawURL (fragment ignored) was seen before. The first call
// for a URL records it and returns false; every later call returns true.
func (d *Detector) IsDuplicateURL(rawURL string) bool {
	key := parse.StripFragment(rawURL)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.seen.TestString(key) {
		if _, ok := d.visited[key]; ok {
			return true
		}
	}
	d.seen.AddString(key)
	d.visited[key] = struct{}{}
	d.patternCounts[urlShape(key)]++
	return false
}

// IsTrapURL reports whether rawURL matches any path-shape trap heuristic.
// It does not touch detector state.
func (d *Detector) IsTrapURL(rawURL string) bool {
	reason := TrapReason(rawURL)
	if reason != ReasonNone {
		d.log.WithFields(logrus.Fields{"url": rawURL, "reason": reason}).Debug("URL classified as trap")
		return true
	}
	return false
}

// TrapReason returns the first path-shape heuristic rawURL trips, or ReasonNone.
// URLs that cannot be parsed are traps.
func TrapReason(rawURL string) Reason {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ReasonUnparseable
	}
	path := u.Path

	segments := parse.PathSegments(path)
	if len(segments) > maxPathSegments {
		return ReasonDepth
	}
	if longDigitRun.MatchString(path) {
		return ReasonLongNumber
	}
	seen := make(map[string]struct{}, len(segments))
	for _, s := range segments {
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			return ReasonRepeatedSegment
		}
		seen[s] = struct{}{}
	}
	if isEventDateTrap(path) {
		return ReasonEventDate
	}
	return ReasonNone
}

func isEventDateTrap(path string) bool {
	if !strings.HasPrefix(path, "/event/") && !strings.HasPrefix(path, "/events/") {
		return false
	}
	switch path {
	case "/event", "/event/", "/events", "/events/":
		return false
	}
	return datePattern.MatchString(path)
}

// IsDuplicateContent extracts the visible text of an HTML body and checks it with
// IsDuplicateText.
func (d *Detector) IsDuplicateContent(body []byte) bool {
	return d.IsDuplicateText(parse.BodyText(body, ""))
}

// IsDuplicateText reports whether text is within the near-duplicate threshold of any
// previously admitted text. A text that is not a duplicate has its fingerprint stored.
func (d *Detector) IsDuplicateText(text string) bool {
	fp := fingerprint.Compute(text)

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, known := range d.fingerprints {
		if fingerprint.Near(known, fp, d.threshold) {
			return true
		}
	}
	d.fingerprints = append(d.fingerprints, fp)
	return false
}

// VisitedCount returns the number of distinct URLs recorded.
func (d *Detector) VisitedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.visited)
}

// FingerprintCount returns the number of stored content fingerprints.
func (d *Detector) FingerprintCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.fingerprints)
}

// PatternCounts returns a copy of the URL shape counters. No decision depends on them.
func (d *Detector) PatternCounts() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int, len(d.patternCounts))
	for k, v := range d.patternCounts {
		out[k] = v
	}
	return out
}

// urlShape reduces a URL to host and path with digit runs collapsed to N.
func urlShape(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return digitRun.ReplaceAllString(rawURL, "N")
	}
	return strings.ToLower(u.Host) + digitRun.ReplaceAllString(u.Path, "N")
}
