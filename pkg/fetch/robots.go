package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"

	"github.com/Sriram-PR/trapcrawl/pkg/utils"
)

const maxRobotsBytes = 512 * 1024

// CrawlDelaySetter receives Crawl-delay directives found in robots.txt files.
type CrawlDelaySetter interface {
	SetHostInterval(host string, interval time.Duration)
}

// RobotsOptions configures a RobotsCache.
type RobotsOptions struct {
	UserAgent      string
	Timeout        time.Duration // Bound on the single fetch per domain
	AllowOnFailure bool          // Decision for domains whose robots.txt is unavailable
}

// RobotsCache is a read-through cache of robots.txt rules keyed by domain. Each domain is
// fetched at most once per process; concurrent first lookups share one fetch.
type RobotsCache struct {
	fetcher *Fetcher
	opts    RobotsOptions
	delays  CrawlDelaySetter
	group   singleflight.Group
	mu      sync.RWMutex
	rules   map[string]*robotstxt.RobotsData // domain -> rules; nil value means no policy
	log     *logrus.Entry
}

// NewRobotsCache creates a RobotsCache. delays may be nil.
func NewRobotsCache(fetcher *Fetcher, opts RobotsOptions, delays CrawlDelaySetter, log *logrus.Entry) *RobotsCache {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &RobotsCache{
		fetcher: fetcher,
		opts:    opts,
		delays:  delays,
		rules:   make(map[string]*robotstxt.RobotsData),
		log:     log.WithField("component", "robots"),
	}
}

// IsAllowed reports whether the configured user agent may fetch rawURL under the rules
// published for domain. Unparseable URLs are not allowed.
func (rc *RobotsCache) IsAllowed(ctx context.Context, rawURL, domain string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	scheme := u.Scheme
	if scheme != "http" && scheme != "https" {
		scheme = "https"
	}

	data := rc.rulesFor(ctx, scheme, domain)
	if data == nil {
		return rc.opts.AllowOnFailure
	}
	return data.TestAgent(u.RequestURI(), rc.opts.UserAgent)
}

func (rc *RobotsCache) rulesFor(ctx context.Context, scheme, domain string) *robotstxt.RobotsData {
	rc.mu.RLock()
	data, found := rc.rules[domain]
	rc.mu.RUnlock()
	if found {
		return data
	}

	v, _, _ := rc.group.Do(domain, func() (interface{}, error) {
		rc.mu.RLock()
		cached, ok := rc.rules[domain]
		rc.mu.RUnlock()
		if ok {
			return cached, nil
		}
		fetched := rc.fetch(ctx, scheme, domain)
		rc.mu.Lock()
		rc.rules[domain] = fetched
		rc.mu.Unlock()
		return fetched, nil
	})
	return v.(*robotstxt.RobotsData)
}

// fetch retrieves and parses robots.txt for domain. Any failure yields nil.
func (rc *RobotsCache) fetch(ctx context.Context, scheme, domain string) *robotstxt.RobotsData {
	robotsURL := (&url.URL{Scheme: scheme, Host: domain, Path: "/robots.txt"}).String()
	robotsLog := rc.log.WithFields(logrus.Fields{"host": domain, "robots_url": robotsURL})
	robotsLog.Info("Fetching robots.txt...")

	// The flight is shared, so it must not inherit one caller's cancellation.
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rc.opts.Timeout)
	defer cancel()

	data, err := rc.download(fetchCtx, robotsURL)
	if err != nil {
		robotsLog.WithField("error_type", utils.CategorizeError(err)).Warnf("robots.txt unavailable, caching no policy: %v", err)
		return nil
	}

	if rc.delays != nil {
		if group := data.FindGroup(rc.opts.UserAgent); group != nil && group.CrawlDelay > 0 {
			rc.delays.SetHostInterval(domain, group.CrawlDelay)
		}
	}
	robotsLog.Info("Successfully fetched and parsed robots.txt")
	return data
}

func (rc *RobotsCache) download(ctx context.Context, robotsURL string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrRequestCreation, err)
	}
	req.Header.Set("User-Agent", rc.opts.UserAgent)

	resp, err := rc.fetcher.FetchWithRetry(req, ctx)
	if err != nil {
		drain(resp)
		return nil, fmt.Errorf("%w: %w", utils.ErrRobotsUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", utils.ErrRobotsUnavailable, utils.ErrResponseBodyRead, err)
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", utils.ErrRobotsUnavailable, utils.ErrParsing, err)
	}
	return data, nil
}

// Len returns the number of domains with a cached decision.
func (rc *RobotsCache) Len() int {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return len(rc.rules)
}

// Sitemaps returns the Sitemap directives published in domain's robots.txt, fetching it
// on first reference. Domains without a policy have none.
func (rc *RobotsCache) Sitemaps(ctx context.Context, scheme, domain string) []string {
	data := rc.rulesFor(ctx, scheme, domain)
	if data == nil {
		return nil
	}
	return append([]string(nil), data.Sitemaps...)
}
