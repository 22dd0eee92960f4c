// Package sitemap expands crawl seeds with the URLs listed in the sitemaps a site
// advertises in its robots.txt.
package sitemap

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/beevik/etree"
	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"

	"github.com/Sriram-PR/trapcrawl/pkg/models"
	"github.com/Sriram-PR/trapcrawl/pkg/utils"
)

// maxDecompressedBytes caps a gzip-compressed sitemap after decompression.
const maxDecompressedBytes = 50 * 1024 * 1024

// Downloader fetches a URL into a page.
type Downloader interface {
	Download(ctx context.Context, rawURL string) (*models.Page, error)
}

// LinkValidator decides whether a listed URL may enter the frontier.
type LinkValidator interface {
	IsValid(ctx context.Context, rawURL string) bool
}

// Enqueuer accepts URLs into the frontier.
type Enqueuer interface {
	Enqueue(rawURL string, depth int) bool
}

// Processor fetches sitemaps and sitemap indexes and enqueues the page URLs they list.
type Processor struct {
	downloader  Downloader
	validator   LinkValidator
	frontier    Enqueuer
	maxSitemaps int
	log         *logrus.Entry

	processedMu sync.Mutex
	processed   map[string]bool
}

// NewProcessor creates a Processor that fetches at most maxSitemaps sitemap documents
// over its lifetime.
func NewProcessor(downloader Downloader, validator LinkValidator, frontier Enqueuer, maxSitemaps int, log *logrus.Entry) *Processor {
	return &Processor{
		downloader:  downloader,
		validator:   validator,
		frontier:    frontier,
		maxSitemaps: maxSitemaps,
		log:         log.WithField("component", "sitemap_processor"),
		processed:   make(map[string]bool),
	}
}

// MarkSitemapProcessed records that a sitemap URL has been scheduled.
// Returns true if it was newly marked, false if already marked
func (sp *Processor) MarkSitemapProcessed(sitemapURL string) bool {
	sp.processedMu.Lock()
	defer sp.processedMu.Unlock()
	if sp.processed[sitemapURL] {
		return false
	}
	sp.processed[sitemapURL] = true
	return true
}

func (sp *Processor) processedCount() int {
	sp.processedMu.Lock()
	defer sp.processedMu.Unlock()
	return len(sp.processed)
}

// Process walks the given sitemaps breadth first, following sitemap indexes, and
// enqueues every valid page URL at depth. Returns the number of URLs enqueued.
func (sp *Processor) Process(ctx context.Context, sitemapURLs []string, depth int) int {
	var pending []string
	for _, u := range sitemapURLs {
		if sp.MarkSitemapProcessed(u) {
			pending = append(pending, u)
		}
	}

	queued := 0
	fetched := 0
	for len(pending) > 0 && ctx.Err() == nil {
		if sp.maxSitemaps > 0 && fetched >= sp.maxSitemaps {
			sp.log.Warnf("Sitemap limit of %d reached, skipping %d remaining", sp.maxSitemaps, len(pending))
			break
		}
		smURL := pending[0]
		pending = pending[1:]
		fetched++

		nested, n := sp.processOne(ctx, smURL, depth)
		queued += n
		for _, child := range nested {
			if sp.MarkSitemapProcessed(child) {
				pending = append(pending, child)
			}
		}
	}
	sp.log.WithFields(logrus.Fields{
		"fetched": fetched,
		"known":   sp.processedCount(),
		"queued":  queued,
	}).Debug("Sitemap walk finished")
	return queued
}

// processOne handles a single sitemap document and returns the nested sitemaps it
// references along with the number of page URLs enqueued.
func (sp *Processor) processOne(ctx context.Context, smURL string, depth int) (nested []string, queued int) {
	sitemapLog := sp.log.WithField("sitemap_url", smURL)
	defer func() {
		if r := recover(); r != nil {
			sitemapLog.WithFields(logrus.Fields{
				"panic_info":  r,
				"stack_trace": string(debug.Stack()),
			}).Error("PANIC recovered while processing sitemap")
			nested, queued = nil, 0
		}
	}()

	page, err := sp.downloader.Download(ctx, smURL)
	if err != nil {
		sitemapLog.WithField("error_type", utils.CategorizeError(err)).Warnf("Fetch failed: %v", err)
		return nil, 0
	}
	if page.StatusCode != 200 {
		sitemapLog.WithField("status_code", page.StatusCode).Warn("Sitemap not available")
		return nil, 0
	}

	doc, err := ParseDocument(page.Body)
	if err != nil {
		sitemapLog.Warnf("Failed to parse sitemap: %v", err)
		return nil, 0
	}

	for _, child := range doc.Sitemaps {
		if _, err := url.ParseRequestURI(child); err != nil {
			sitemapLog.WithField("nested_sitemap", child).Debugf("Invalid nested sitemap URL: %v", err)
			continue
		}
		nested = append(nested, child)
	}
	for _, pageURL := range doc.URLs {
		if !sp.validator.IsValid(ctx, pageURL) {
			continue
		}
		if sp.frontier.Enqueue(pageURL, depth) {
			queued++
		}
	}
	sitemapLog.WithFields(logrus.Fields{
		"nested": len(nested),
		"listed": len(doc.URLs),
		"queued": queued,
	}).Info("Processed sitemap")
	return nested, queued
}

// Document holds the <loc> entries of a sitemap index (Sitemaps) or URL set (URLs).
type Document struct {
	Sitemaps []string
	URLs     []string
}

// ParseDocument extracts <loc> entries from a sitemap, decompressing gzip bodies first.
// Truncated documents yield the entries read before the truncation.
func ParseDocument(body []byte) (Document, error) {
	body, err := decompress(body)
	if err != nil {
		return Document{}, err
	}

	tree := etree.NewDocument()
	tree.ReadSettings.Permissive = true
	tree.ReadSettings.CharsetReader = charset.NewReaderLabel
	if err := tree.ReadFromBytes(body); err != nil {
		if doc := salvage(body); len(doc.Sitemaps)+len(doc.URLs) > 0 {
			return doc, nil
		}
		return Document{}, fmt.Errorf("%w: sitemap XML: %v", utils.ErrParsing, err)
	}

	var doc Document
	root := tree.Root()
	if root == nil {
		return doc, nil
	}
	if root.Tag == "sitemapindex" {
		doc.Sitemaps = childLocs(root, "sitemap")
	} else {
		doc.URLs = childLocs(root, "url")
	}
	return doc, nil
}

func decompress(body []byte) ([]byte, error) {
	if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
		return body, nil
	}
	gz, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: gzip sitemap: %v", utils.ErrParsing, err)
	}
	defer gz.Close()
	out, err := io.ReadAll(io.LimitReader(gz, maxDecompressedBytes))
	if err != nil && len(out) == 0 {
		return nil, fmt.Errorf("%w: gzip sitemap: %v", utils.ErrParsing, err)
	}
	return out, nil
}

func childLocs(root *etree.Element, tag string) []string {
	var locs []string
	for _, entry := range root.SelectElements(tag) {
		loc := entry.SelectElement("loc")
		if loc == nil {
			continue
		}
		if u := strings.TrimSpace(loc.Text()); u != "" {
			locs = append(locs, u)
		}
	}
	return locs
}

// salvage streams through a malformed or truncated document and keeps every <loc>
// that was closed before the first error.
func salvage(body []byte) Document {
	var doc Document
	decoder := xml.NewDecoder(bytes.NewReader(body))
	decoder.Strict = false
	decoder.CharsetReader = charset.NewReaderLabel

	var parent string
	for {
		tok, err := decoder.Token()
		if err != nil {
			return doc
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "sitemap", "url":
			parent = start.Name.Local
		case "loc":
			var loc string
			if err := decoder.DecodeElement(&loc, &start); err != nil {
				return doc
			}
			loc = strings.TrimSpace(loc)
			if loc == "" {
				continue
			}
			if parent == "sitemap" {
				doc.Sitemaps = append(doc.Sitemaps, loc)
			} else {
				doc.URLs = append(doc.URLs, loc)
			}
		}
	}
}
