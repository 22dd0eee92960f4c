package models

import (
	"net/http"
	"time"
)

// WorkItem represents a URL and its depth to be processed by a worker
type WorkItem struct {
	URL   string
	Depth int
}

// Page is a fetched resource as handed to the processing pipeline. It is read-only
// once produced by the downloader.
type Page struct {
	URL         string      // URL that was requested
	FinalURL    string      // URL after redirects; empty when unknown
	StatusCode  int         // HTTP status code
	ContentType string      // Raw Content-Type header value
	Body        []byte      // Response body, possibly truncated one byte past the size cap
	Headers     http.Header // Response headers
}

// EffectiveURL returns the redirect-aware URL of the page.
func (p *Page) EffectiveURL() string {
	if p.FinalURL != "" {
		return p.FinalURL
	}
	return p.URL
}

// URLEntry stores the frontier record of a URL in the database
type URLEntry struct {
	Status      URLStatus `json:"status"`
	Reason      string    `json:"reason,omitempty"`     // Pipeline rejection reason (status rejected)
	ErrorType   string    `json:"error_type,omitempty"` // Error category (status failed)
	Depth       int       `json:"depth"`                // Link distance from a seed URL
	LastAttempt time.Time `json:"last_attempt"`         // Timestamp of the last state change
}

// RunSummary is the machine-readable end-of-run summary written next to the text report.
type RunSummary struct {
	RunID            string            `yaml:"run_id"`
	StartedAt        time.Time         `yaml:"started_at"`
	FinishedAt       time.Time         `yaml:"finished_at"`
	UniquePages      int               `yaml:"unique_pages"`
	LongestPageURL   string            `yaml:"longest_page_url,omitempty"`
	LongestPageWords int               `yaml:"longest_page_words,omitempty"`
	TopWords         []WordCount       `yaml:"top_words"`
	Subdomains       []SubdomainCount  `yaml:"subdomains"`
	Rejections       map[string]int    `yaml:"rejections,omitempty"`
	URLPatterns      int               `yaml:"url_patterns,omitempty"` // Distinct URL shapes seen by the trap detector
	Frontier         map[URLStatus]int `yaml:"frontier,omitempty"`     // Recorded URLs by final status
}

// WordCount is one entry of the word frequency ranking.
type WordCount struct {
	Word  string `yaml:"word"`
	Count int    `yaml:"count"`
}

// SubdomainCount is the unique page count of one subdomain of the root domain.
type SubdomainCount struct {
	Subdomain string `yaml:"subdomain"`
	Pages     int    `yaml:"pages"`
}
