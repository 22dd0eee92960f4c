// Package stats accumulates corpus statistics from pages admitted by the crawler: unique
// pages, the longest page, word frequencies and per-subdomain page counts.
package stats

import (
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/Sriram-PR/trapcrawl/pkg/fingerprint"
	"github.com/Sriram-PR/trapcrawl/pkg/models"
	"github.com/Sriram-PR/trapcrawl/pkg/parse"
)

// ReportTopWords is the number of words listed in the final report.
const ReportTopWords = 50

// LongestPage is the page with the most whitespace-delimited words seen so far.
type LongestPage struct {
	URL          string
	RawWordCount int
}

// PageCounts are the two word metrics of a single page. RawWordCount splits on whitespace;
// SignificantTokenCount counts word tokens left after stop-word removal.
type PageCounts struct {
	RawWordCount          int
	SignificantTokenCount int
}

// Snapshot is a consistent view of every statistic at one instant.
type Snapshot struct {
	UniquePages            int
	Longest                *LongestPage
	TopWords               []models.WordCount
	Subdomains             []models.SubdomainCount
	TotalSignificantTokens int
}

type wordEntry struct {
	count int
	order int // first-seen position, breaks count ties
}

// Aggregator is safe for concurrent use. Each RecordPage applies all of its updates under
// one write lock, so readers never observe a partially recorded page.
type Aggregator struct {
	rootDomain string

	mu          sync.RWMutex
	pages       map[string]struct{}
	longest     *LongestPage
	words       map[string]*wordEntry
	totalTokens int
	subdomains  map[string]map[string]struct{}
}

// NewAggregator creates an Aggregator reporting subdomains of rootDomain.
func NewAggregator(rootDomain string) *Aggregator {
	return &Aggregator{
		rootDomain: strings.ToLower(rootDomain),
		pages:      make(map[string]struct{}),
		words:      make(map[string]*wordEntry),
		subdomains: make(map[string]map[string]struct{}),
	}
}

// RecordPage folds one admitted page into the statistics. Recording the same URL twice
// keeps it unique in the page set and subdomain sets, but its words are counted again and
// it may replace the longest page; callers gate submissions on duplicate-URL detection.
func (a *Aggregator) RecordPage(rawURL, text string) PageCounts {
	pageURL := parse.StripFragment(rawURL)
	counts := PageCounts{RawWordCount: len(strings.Fields(text))}

	var significant []string
	for _, tok := range fingerprint.Tokenize(text) {
		if !IsStopWord(tok) {
			significant = append(significant, tok)
		}
	}
	counts.SignificantTokenCount = len(significant)
	subdomain := a.subdomainOf(pageURL)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.pages[pageURL] = struct{}{}
	if a.longest == nil || counts.RawWordCount > a.longest.RawWordCount {
		a.longest = &LongestPage{URL: pageURL, RawWordCount: counts.RawWordCount}
	}
	for _, tok := range significant {
		if e, ok := a.words[tok]; ok {
			e.count++
		} else {
			a.words[tok] = &wordEntry{count: 1, order: len(a.words)}
		}
	}
	a.totalTokens += len(significant)
	if subdomain != "" {
		set, ok := a.subdomains[subdomain]
		if !ok {
			set = make(map[string]struct{})
			a.subdomains[subdomain] = set
		}
		set[pageURL] = struct{}{}
	}
	return counts
}

// subdomainOf returns the leftmost host label when the host is the root domain or lies
// below it on a label boundary.
func (a *Aggregator) subdomainOf(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	host := parse.Hostname(u)
	if a.rootDomain == "" || (host != a.rootDomain && !strings.HasSuffix(host, "."+a.rootDomain)) {
		return ""
	}
	label, _, _ := strings.Cut(host, ".")
	return label
}

// UniquePageCount returns the number of distinct pages recorded.
func (a *Aggregator) UniquePageCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.pages)
}

// LongestPage returns the longest page, or false if nothing was recorded.
func (a *Aggregator) LongestPage() (LongestPage, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.longest == nil {
		return LongestPage{}, false
	}
	return *a.longest, true
}

// TopWords returns up to n words by descending count, ties in first-seen order.
func (a *Aggregator) TopWords(n int) []models.WordCount {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.topWordsLocked(n)
}

func (a *Aggregator) topWordsLocked(n int) []models.WordCount {
	type ranked struct {
		word string
		*wordEntry
	}
	all := make([]ranked, 0, len(a.words))
	for w, e := range a.words {
		all = append(all, ranked{w, e})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].count != all[j].count {
			return all[i].count > all[j].count
		}
		return all[i].order < all[j].order
	})
	if n >= 0 && n < len(all) {
		all = all[:n]
	}
	out := make([]models.WordCount, len(all))
	for i, r := range all {
		out[i] = models.WordCount{Word: r.word, Count: r.count}
	}
	return out
}

// SubdomainReport returns the unique page count of every subdomain, alphabetically.
func (a *Aggregator) SubdomainReport() []models.SubdomainCount {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.subdomainReportLocked()
}

func (a *Aggregator) subdomainReportLocked() []models.SubdomainCount {
	out := make([]models.SubdomainCount, 0, len(a.subdomains))
	for name, set := range a.subdomains {
		out = append(out, models.SubdomainCount{Subdomain: name, Pages: len(set)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subdomain < out[j].Subdomain })
	return out
}

// Snapshot returns every statistic under a single read lock.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	snap := Snapshot{
		UniquePages:            len(a.pages),
		TopWords:               a.topWordsLocked(ReportTopWords),
		Subdomains:             a.subdomainReportLocked(),
		TotalSignificantTokens: a.totalTokens,
	}
	if a.longest != nil {
		l := *a.longest
		snap.Longest = &l
	}
	return snap
}

// RootDomain returns the domain whose subdomains are reported.
func (a *Aggregator) RootDomain() string {
	return a.rootDomain
}
