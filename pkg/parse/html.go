package parse

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/Sriram-PR/trapcrawl/pkg/utils"
)

// NewUTF8Reader wraps body in a reader that transcodes it to UTF-8, using the charset
// declared in contentType or sniffed from the document. Undecodable input falls back to
// the raw bytes.
func NewUTF8Reader(body []byte, contentType string) io.Reader {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return bytes.NewReader(body)
	}
	return r
}

// ParseDocument builds a goquery document from a page body.
func ParseDocument(body []byte, contentType string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(NewUTF8Reader(body, contentType))
	if err != nil {
		return nil, fmt.Errorf("%w: HTML document: %v", utils.ErrParsing, err)
	}
	return doc, nil
}

// VisibleText returns the document's text nodes, trimmed and joined by single spaces.
// Script, style, template and noscript contents are skipped.
func VisibleText(doc *goquery.Document) string {
	if doc == nil {
		return ""
	}
	var parts []string
	for _, n := range doc.Nodes {
		collectText(n, &parts)
	}
	return strings.Join(parts, " ")
}

func collectText(n *html.Node, parts *[]string) {
	switch n.Type {
	case html.TextNode:
		if s := strings.TrimSpace(n.Data); s != "" {
			*parts = append(*parts, s)
		}
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "template", "noscript":
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}

// BodyText parses body and returns its visible text. Unparseable bodies yield "".
func BodyText(body []byte, contentType string) string {
	doc, err := ParseDocument(body, contentType)
	if err != nil {
		return ""
	}
	return VisibleText(doc)
}

// ExtractLinks resolves every a[href] of doc against base and strips fragments.
// Duplicates are dropped, first occurrence order is kept. Unresolvable hrefs are logged
// and skipped.
func ExtractLinks(doc *goquery.Document, base *url.URL, log *logrus.Entry) []string {
	if doc == nil || base == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if strings.TrimSpace(href) == "" {
			return
		}
		abs, err := ResolveReference(base, href)
		if err != nil {
			if log != nil {
				log.Debugf("Skipping unresolvable href '%s': %v", href, err)
			}
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})
	return links
}
