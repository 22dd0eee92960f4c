// Package process runs a fetched page through admission, trap and duplicate checks and
// turns an admitted page into its list of crawlable outbound links.
package process

import (
	"context"
	"net/url"
	"regexp"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/trapcrawl/pkg/config"
	"github.com/Sriram-PR/trapcrawl/pkg/models"
	"github.com/Sriram-PR/trapcrawl/pkg/parse"
)

var htmlContentType = regexp.MustCompile(`^text/html(;\s*charset=.*)?$`)

// RejectReason names the check that stopped a page.
type RejectReason string

const (
	Accepted               RejectReason = ""
	RejectDeadPage         RejectReason = "dead_page"
	RejectTooLarge         RejectReason = "too_large"
	RejectNotHTML          RejectReason = "not_html"
	RejectDuplicateURL     RejectReason = "duplicate_url"
	RejectTrapURL          RejectReason = "trap_url"
	RejectDuplicateContent RejectReason = "duplicate_content"
	RejectUnparseable      RejectReason = "unparseable"
)

// TrapChecker is the trap and duplicate state shared by all workers.
type TrapChecker interface {
	IsDuplicateURL(rawURL string) bool
	IsTrapURL(rawURL string) bool
	IsDuplicateText(text string) bool
}

// LinkValidator decides whether a link may enter the frontier.
type LinkValidator interface {
	IsValid(ctx context.Context, rawURL string) bool
}

// Result is the outcome of processing one page.
type Result struct {
	URL      string       // Effective URL without fragment
	Links    []string     // Valid outbound links, in document order
	Text     string       // Visible text; set only for accepted pages
	Accepted bool         // Every admission and trap check passed
	Reason   RejectReason // Set when Accepted is false
}

// Pipeline is safe for concurrent use.
type Pipeline struct {
	traps      TrapChecker
	validator  LinkValidator
	thresholds config.Thresholds
	log        *logrus.Entry

	mu         sync.Mutex
	rejections map[RejectReason]int
}

// NewPipeline creates a Pipeline.
func NewPipeline(traps TrapChecker, validator LinkValidator, thresholds config.Thresholds, log *logrus.Entry) *Pipeline {
	return &Pipeline{
		traps:      traps,
		validator:  validator,
		thresholds: thresholds,
		log:        log.WithField("component", "pipeline"),
		rejections: make(map[RejectReason]int),
	}
}

// ProcessPage checks page, fetched for requestedURL, and returns the links to enqueue.
// The duplicate-URL check records the effective URL, so each page must be processed once.
func (p *Pipeline) ProcessPage(ctx context.Context, requestedURL string, page *models.Page) Result {
	effective := requestedURL
	if page.FinalURL != "" {
		effective = page.FinalURL
	}
	res := Result{URL: parse.StripFragment(effective)}
	pageLog := p.log.WithFields(logrus.Fields{"url": res.URL, "status_code": page.StatusCode})

	if reason := p.admit(page); reason != Accepted {
		return p.reject(res, reason, pageLog)
	}
	if p.traps.IsDuplicateURL(res.URL) {
		return p.reject(res, RejectDuplicateURL, pageLog)
	}
	if p.traps.IsTrapURL(res.URL) {
		return p.reject(res, RejectTrapURL, pageLog)
	}

	doc, err := parse.ParseDocument(page.Body, page.ContentType)
	if err != nil {
		pageLog.Warnf("Could not parse page: %v", err)
		return p.reject(res, RejectUnparseable, pageLog)
	}
	text := parse.VisibleText(doc)
	if p.traps.IsDuplicateText(text) {
		return p.reject(res, RejectDuplicateContent, pageLog)
	}

	res.Accepted = true
	res.Text = text
	if page.StatusCode != 200 {
		pageLog.Debug("Non-200 page, no links extracted")
		return res
	}

	base, err := url.Parse(effective)
	if err != nil {
		pageLog.Warnf("Could not parse base URL: %v", err)
		return res
	}
	for _, link := range parse.ExtractLinks(doc, base, pageLog) {
		if p.validator.IsValid(ctx, link) {
			res.Links = append(res.Links, link)
		}
	}
	pageLog.WithField("links", len(res.Links)).Debug("Page accepted")
	return res
}

// admit applies the size and content-type checks that need no shared state.
func (p *Pipeline) admit(page *models.Page) RejectReason {
	size := len(page.Body)
	if page.StatusCode == 200 && size < p.thresholds.DeadPageBytes {
		return RejectDeadPage
	}
	if p.thresholds.MaxBodyBytes > 0 && int64(size) > p.thresholds.MaxBodyBytes {
		return RejectTooLarge
	}
	if !htmlContentType.MatchString(page.ContentType) {
		return RejectNotHTML
	}
	return Accepted
}

func (p *Pipeline) reject(res Result, reason RejectReason, log *logrus.Entry) Result {
	res.Reason = reason
	p.mu.Lock()
	p.rejections[reason]++
	p.mu.Unlock()
	log.WithField("reason", reason).Debug("Page rejected")
	return res
}

// Rejections returns a copy of the rejection counters keyed by reason.
func (p *Pipeline) Rejections() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int, len(p.rejections))
	for reason, n := range p.rejections {
		out[string(reason)] = n
	}
	return out
}
