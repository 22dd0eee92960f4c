package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Sriram-PR/trapcrawl/pkg/utils"
)

const (
	defaultRootDomain        = "ics.uci.edu"
	defaultNearDuplicateBits = 5
	defaultDeadPageBytes     = 512
	defaultMaxBodyBytes      = 2 * 1024 * 1024
	defaultTimeDelay         = 500 * time.Millisecond
	defaultUserAgent         = "trapcrawl/1.0"
	defaultExpectedPages     = 50000
	defaultMaxSitemaps       = 20
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// Required: SeedURLs
	if len(c.SeedURLs) == 0 {
		return nil, fmt.Errorf("%w: no seed_urls configured", utils.ErrConfigValidation)
	}
	for _, seed := range c.SeedURLs {
		u, parseErr := url.Parse(seed)
		if parseErr != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("%w: invalid seed URL '%s'", utils.ErrConfigValidation, seed)
		}
	}

	// Crawl scope
	if len(c.AllowedDomains) == 0 {
		warnings = append(warnings, fmt.Sprintf("allowed_domains is empty, defaulting to %v", DefaultAllowedDomains))
		c.AllowedDomains = append([]string(nil), DefaultAllowedDomains...)
	}
	for i, d := range c.AllowedDomains {
		c.AllowedDomains[i] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "."))
	}
	if c.RootDomain == "" {
		c.RootDomain = defaultRootDomain
	}
	c.RootDomain = strings.ToLower(c.RootDomain)
	if len(c.BlockedExtensions) == 0 {
		c.BlockedExtensions = append([]string(nil), DefaultBlockedExtensions...)
	}
	if _, reErr := utils.CompilePathPatterns(c.DisallowedPathPatterns); reErr != nil {
		return warnings, reErr
	}

	// Admission thresholds
	if c.NearDuplicateThreshold <= 0 {
		c.NearDuplicateThreshold = defaultNearDuplicateBits
	} else if c.NearDuplicateThreshold > 64 {
		warnings = append(warnings, "near_duplicate_threshold above 64 bits treats every page as duplicate, clamping to 64")
		c.NearDuplicateThreshold = 64
	}
	if c.DeadPageBytes < 0 {
		warnings = append(warnings, "dead_page_bytes cannot be negative, setting to 0 (disabled)")
		c.DeadPageBytes = 0
	} else if c.DeadPageBytes == 0 {
		c.DeadPageBytes = defaultDeadPageBytes
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}

	// Politeness
	if c.TimeDelay < 0 {
		warnings = append(warnings, "time_delay cannot be negative, setting to 0")
		c.TimeDelay = 0
	} else if c.TimeDelay == 0 {
		c.TimeDelay = defaultTimeDelay
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.RobotsTimeout <= 0 {
		c.RobotsTimeout = 10 * time.Second
	}
	if c.CacheServer != "" {
		if u, parseErr := url.Parse(c.CacheServer); parseErr != nil || u.Host == "" {
			return warnings, fmt.Errorf("%w: invalid cache_server '%s'", utils.ErrConfigValidation, c.CacheServer)
		}
	}

	// NumWorkers
	if c.NumWorkers <= 0 {
		warnings = append(warnings, "num_workers should be > 0, defaulting to 4")
		c.NumWorkers = 4
	}

	// MaxRequests
	if c.MaxRequests <= 0 {
		warnings = append(warnings, fmt.Sprintf(
			"max_requests not specified or invalid, defaulting to num_workers (%d)", c.NumWorkers))
		c.MaxRequests = c.NumWorkers
	}

	// StateDir
	if c.StateDir == "" {
		warnings = append(warnings, "state_dir is empty, defaulting to './crawler_state'")
		c.StateDir = "./crawler_state"
	}
	if c.ReportPath == "" {
		c.ReportPath = "crawler_output.txt"
	}
	if c.ExpectedPages == 0 {
		c.ExpectedPages = defaultExpectedPages
	}
	if c.MaxSitemaps < 0 {
		warnings = append(warnings, "max_sitemaps cannot be negative, using default")
		c.MaxSitemaps = 0
	}
	if c.MaxSitemaps == 0 {
		c.MaxSitemaps = defaultMaxSitemaps
	}

	// MaxRetries
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 && c.InitialRetryDelay == 0 {
		c.MaxRetries = 3
	}

	// Retry delays (only if retries enabled)
	if c.MaxRetries > 0 {
		if c.InitialRetryDelay <= 0 {
			c.InitialRetryDelay = 1 * time.Second
		}
		if c.MaxRetryDelay <= 0 {
			c.MaxRetryDelay = 30 * time.Second
		}
	}
	if c.InitialRetryDelay > c.MaxRetryDelay && c.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	c.validateHTTPClientSettings()

	return warnings, nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 45 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}
