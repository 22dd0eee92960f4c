// Package validate decides whether a discovered link belongs in the crawl frontier.
package validate

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"runtime/debug"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"

	"github.com/Sriram-PR/trapcrawl/pkg/parse"
)

var paginationParam = regexp.MustCompile(`page=\d{4,}`)

// RobotsChecker answers robots-exclusion questions for a domain.
type RobotsChecker interface {
	IsAllowed(ctx context.Context, rawURL, domain string) bool
}

// Rules is the static part of link validation.
type Rules struct {
	AllowedDomains         []string         // Hosts equal to or below these domains are in scope
	BlockedExtensions      []string         // Path suffixes, without the dot, never crawled
	DisallowedPathPatterns []*regexp.Regexp // Paths matching any pattern are skipped
}

// Validator applies Rules and robots policy to candidate links. It is safe for concurrent
// use as long as the RobotsChecker is.
type Validator struct {
	allowed     []string
	registrable map[string]struct{} // eTLD+1 of every allowed domain
	blocked     map[string]struct{}
	disallowed  []*regexp.Regexp
	robots      RobotsChecker
	log         *logrus.Entry
}

// NewValidator creates a Validator. robots may be nil to skip robots checks.
func NewValidator(rules Rules, robots RobotsChecker, log *logrus.Entry) *Validator {
	v := &Validator{
		registrable: make(map[string]struct{}),
		blocked:     make(map[string]struct{}, len(rules.BlockedExtensions)),
		disallowed:  rules.DisallowedPathPatterns,
		robots:      robots,
		log:         log.WithField("component", "validator"),
	}
	for _, d := range rules.AllowedDomains {
		d = strings.ToLower(strings.TrimPrefix(d, "."))
		if d == "" {
			continue
		}
		v.allowed = append(v.allowed, d)
		if reg, err := publicsuffix.EffectiveTLDPlusOne(d); err == nil {
			v.registrable[reg] = struct{}{}
		} else {
			v.registrable[d] = struct{}{}
		}
	}
	for _, ext := range rules.BlockedExtensions {
		v.blocked[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	return v
}

// IsValid reports whether rawURL may be enqueued. Checks run in order: scheme, domain,
// extension, ASCII, query guards, path patterns, robots. The ASCII check also looks at the
// percent-decoded path, since resolved links arrive escaped. Malformed URLs and any panic
// inside a check are treated as invalid.
func (v *Validator) IsValid(ctx context.Context, rawURL string) (valid bool) {
	defer func() {
		if r := recover(); r != nil {
			v.log.WithFields(logrus.Fields{
				"url":         rawURL,
				"panic":       fmt.Sprintf("%v", r),
				"stack_trace": string(debug.Stack()),
			}).Error("Recovered panic while validating link")
			valid = false
		}
	}()

	u, err := url.Parse(rawURL)
	if err != nil {
		v.log.WithField("url", rawURL).Debugf("Unparseable link: %v", err)
		return false
	}

	reason := v.rejectReason(u, rawURL)
	if reason == "" && v.robots != nil && !v.robots.IsAllowed(ctx, rawURL, strings.ToLower(u.Host)) {
		reason = "robots"
	}
	if reason != "" {
		v.log.WithFields(logrus.Fields{"url": rawURL, "reason": reason}).Trace("Link rejected")
		return false
	}
	return true
}

// rejectReason applies every rule except robots and names the first one that fails.
func (v *Validator) rejectReason(u *url.URL, rawURL string) string {
	if u.Scheme != "http" && u.Scheme != "https" {
		return "scheme"
	}
	if !v.inScope(parse.Hostname(u)) {
		return "domain"
	}
	if v.hasBlockedExtension(u.Path) {
		return "extension"
	}
	if !isASCII(rawURL) || !isASCII(u.Path) || !isASCII(u.Host) {
		return "non_ascii"
	}
	if u.RawQuery != "" {
		q := strings.ToLower(u.RawQuery)
		if paginationParam.MatchString(q) {
			return "pagination"
		}
		if strings.Contains(q, "sessionid") {
			return "session_id"
		}
	}
	for _, re := range v.disallowed {
		if re.MatchString(u.Path) {
			return "path_pattern"
		}
	}
	return ""
}

func (v *Validator) inScope(host string) bool {
	if host == "" {
		return false
	}
	reg, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		reg = host
	}
	if _, ok := v.registrable[reg]; !ok {
		return false
	}
	for _, d := range v.allowed {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func (v *Validator) hasBlockedExtension(path string) bool {
	lower := strings.ToLower(path)
	idx := strings.LastIndexByte(lower, '.')
	if idx < 0 || strings.IndexByte(lower[idx:], '/') >= 0 {
		return false
	}
	_, blocked := v.blocked[lower[idx+1:]]
	return blocked
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7f {
			return false
		}
	}
	return true
}
