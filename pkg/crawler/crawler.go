// Package crawler runs the worker pool that drains the frontier: each worker downloads a
// page, runs it through the processing pipeline, records corpus statistics and enqueues
// the page's valid links.
package crawler

import (
	"context"
	"fmt"
	"net/url"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Sriram-PR/trapcrawl/pkg/config"
	"github.com/Sriram-PR/trapcrawl/pkg/fetch"
	"github.com/Sriram-PR/trapcrawl/pkg/frontier"
	"github.com/Sriram-PR/trapcrawl/pkg/models"
	"github.com/Sriram-PR/trapcrawl/pkg/process"
	"github.com/Sriram-PR/trapcrawl/pkg/sitemap"
	"github.com/Sriram-PR/trapcrawl/pkg/stats"
	"github.com/Sriram-PR/trapcrawl/pkg/storage"
	"github.com/Sriram-PR/trapcrawl/pkg/trap"
	"github.com/Sriram-PR/trapcrawl/pkg/utils"
	"github.com/Sriram-PR/trapcrawl/pkg/validate"
)

const (
	progressInterval = 30 * time.Second
	gcInterval       = 10 * time.Minute
)

// PageDownloader fetches a URL into a page.
type PageDownloader interface {
	Download(ctx context.Context, rawURL string) (*models.Page, error)
}

// Crawler owns the components shared by its workers. All of them are built explicitly
// by New; nothing is process-global.
type Crawler struct {
	cfg *config.AppConfig
	log *logrus.Entry

	store      storage.FrontierStore
	frontier   *frontier.Frontier
	downloader PageDownloader
	robots     *fetch.RobotsCache
	detector   *trap.Detector
	pipeline   *process.Pipeline
	stats      *stats.Aggregator
	sitemaps   *sitemap.Processor // nil unless use_sitemaps is set

	processed atomic.Int64
	accepted  atomic.Int64
	failed    atomic.Int64
}

// New builds a Crawler and all of its components from a validated config.
func New(cfg *config.AppConfig, store storage.FrontierStore, log *logrus.Entry) (*Crawler, error) {
	client, err := fetch.NewClient(cfg.HTTPClientSettings, cfg.CacheServer, log)
	if err != nil {
		return nil, err
	}
	fetcher := fetch.NewFetcher(client, fetch.RetryPolicy{
		MaxRetries:   cfg.MaxRetries,
		InitialDelay: cfg.InitialRetryDelay,
		MaxDelay:     cfg.MaxRetryDelay,
	}, log)
	limiter := fetch.NewRateLimiter(cfg.TimeDelay, log)

	robots := fetch.NewRobotsCache(fetcher, fetch.RobotsOptions{
		UserAgent:      cfg.UserAgent,
		Timeout:        cfg.RobotsTimeout,
		AllowOnFailure: cfg.GetEffectiveAllowOnRobotsFailure(),
	}, limiter, log)

	patterns, err := utils.CompilePathPatterns(cfg.DisallowedPathPatterns)
	if err != nil {
		return nil, err
	}
	validator := validate.NewValidator(validate.Rules{
		AllowedDomains:         cfg.AllowedDomains,
		BlockedExtensions:      cfg.BlockedExtensions,
		DisallowedPathPatterns: patterns,
	}, robots, log)

	detector := trap.NewDetector(cfg.NearDuplicateThreshold, cfg.ExpectedPages, log)
	downloader := fetch.NewDownloader(fetcher, limiter, cfg.MaxRequests, cfg.UserAgent, cfg.MaxBodyBytes, log.WithField("component", "downloader"))
	front := frontier.New(store, log.WithField("component", "frontier"))

	c := &Crawler{
		cfg:        cfg,
		log:        log,
		store:      store,
		frontier:   front,
		downloader: downloader,
		robots:     robots,
		detector:   detector,
		pipeline:   process.NewPipeline(detector, validator, cfg.Thresholds(), log),
		stats:      stats.NewAggregator(cfg.RootDomain),
	}
	if cfg.UseSitemaps {
		c.sitemaps = sitemap.NewProcessor(downloader, validator, front, cfg.MaxSitemaps, log)
	}
	return c, nil
}

// Run seeds the frontier (and, when resuming, requeues unfinished URLs) and blocks until
// the frontier is exhausted or ctx is cancelled. A worker that panics exits after
// recording the failure; the others keep going and Run reports the first such error.
func (c *Crawler) Run(ctx context.Context, resume bool) error {
	runLog := c.log.WithFields(logrus.Fields{"workers": c.cfg.NumWorkers, "resume": resume})
	start := time.Now()

	if resume {
		n, err := c.frontier.Resume(ctx)
		if err != nil {
			return fmt.Errorf("resume failed after requeueing %d URLs: %w", n, err)
		}
	}
	c.frontier.Seed(c.cfg.SeedURLs)
	if c.sitemaps != nil {
		c.seedFromSitemaps(ctx)
	}
	if c.frontier.Len() == 0 {
		runLog.Warn("Frontier is empty; nothing to crawl")
		return nil
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	go c.store.RunGC(runCtx, gcInterval)
	go func() {
		<-runCtx.Done()
		c.frontier.Close()
	}()
	go c.reportProgress(runCtx, progressInterval)

	runLog.Infof("Crawl starting with %d queued URL(s)", c.frontier.Len())

	var g errgroup.Group
	for i := 1; i <= c.cfg.NumWorkers; i++ {
		workerLog := c.log.WithField("worker_id", i)
		g.Go(func() error {
			return c.worker(runCtx, workerLog)
		})
	}
	workerErr := g.Wait()

	snap := c.stats.Snapshot()
	runLog.WithFields(logrus.Fields{
		"duration":     time.Since(start).String(),
		"processed":    c.processed.Load(),
		"accepted":     c.accepted.Load(),
		"failed":       c.failed.Load(),
		"unique_pages": snap.UniquePages,
		"queued":       c.frontier.Len(),
	}).Info("Crawl finished")

	if workerErr != nil {
		return workerErr
	}
	return ctx.Err()
}

// seedFromSitemaps enqueues, one level below the seeds, the URLs listed in the sitemaps
// advertised by each seed host's robots.txt.
func (c *Crawler) seedFromSitemaps(ctx context.Context) {
	seen := make(map[string]bool)
	for _, seed := range c.cfg.SeedURLs {
		u, err := url.Parse(seed)
		if err != nil || u.Host == "" {
			continue
		}
		host := strings.ToLower(u.Host)
		key := u.Scheme + "://" + host
		if seen[key] {
			continue
		}
		seen[key] = true

		listed := c.robots.Sitemaps(ctx, u.Scheme, host)
		if len(listed) == 0 {
			continue
		}
		n := c.sitemaps.Process(ctx, listed, 1)
		c.log.WithFields(logrus.Fields{"host": host, "sitemaps": len(listed), "queued": n}).Info("Seeded from sitemaps")
	}
}

// worker drains the frontier until it is exhausted or closed.
func (c *Crawler) worker(ctx context.Context, workerLog *logrus.Entry) error {
	workerLog.Debug("Worker starting")
	defer workerLog.Debug("Worker finished")

	for {
		item, ok := c.frontier.Dequeue()
		if !ok {
			return nil
		}
		if err := c.processItem(ctx, item, workerLog); err != nil {
			return err
		}
		if !c.politenessDelay(ctx) {
			return nil
		}
	}
}

// politenessDelay sleeps for the configured time_delay. It returns false if ctx ended first.
func (c *Crawler) politenessDelay(ctx context.Context) bool {
	if c.cfg.TimeDelay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(c.cfg.TimeDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// processItem handles one dequeued URL and always marks it complete in the frontier.
// A panic is recovered, logged with its stack and returned as ErrWorkerPanic.
func (c *Crawler) processItem(ctx context.Context, item models.WorkItem, workerLog *logrus.Entry) (err error) {
	taskLog := workerLog.WithFields(logrus.Fields{"url": item.URL, "depth": item.Depth})
	startTime := time.Now()
	entry := models.URLEntry{Depth: item.Depth}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", utils.ErrWorkerPanic, r)
			taskLog.WithFields(logrus.Fields{
				"panic_info":  r,
				"stack_trace": string(debug.Stack()),
			}).Error("PANIC recovered while processing page")
			entry.Status = models.URLStatusFailure
			entry.ErrorType = utils.CategorizeError(err)
			entry.Reason = ""
		}
		if entry.Status == models.URLStatusFailure {
			c.failed.Add(1)
		}
		entry.LastAttempt = time.Now()
		c.frontier.MarkComplete(item.URL, entry)
		c.processed.Add(1)
		taskLog.WithFields(logrus.Fields{
			"status":   entry.Status,
			"duration": time.Since(startTime).String(),
		}).Debug("Task complete")
	}()

	page, dlErr := c.downloader.Download(ctx, item.URL)
	if dlErr != nil {
		entry.Status = models.URLStatusFailure
		entry.ErrorType = utils.CategorizeError(dlErr)
		taskLog.WithField("category", entry.ErrorType).Warnf("Download failed: %v", dlErr)
		return nil
	}

	res := c.pipeline.ProcessPage(ctx, item.URL, page)
	switch {
	case !res.Accepted:
		entry.Status = models.URLStatusRejected
		entry.Reason = string(res.Reason)
	case page.StatusCode != 200:
		entry.Status = models.URLStatusRejected
		entry.Reason = fmt.Sprintf("http_status_%d", page.StatusCode)
	default:
		entry.Status = models.URLStatusAccepted
		c.stats.RecordPage(res.URL, res.Text)
		c.accepted.Add(1)
	}

	enqueued := 0
	for _, link := range res.Links {
		if c.frontier.Enqueue(link, item.Depth+1) {
			enqueued++
		}
	}
	if enqueued > 0 {
		taskLog.WithField("new_links", enqueued).Debug("Enqueued links")
	}
	return nil
}

// reportProgress logs crawl counters on every tick until ctx is done.
func (c *Crawler) reportProgress(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			visited, _ := c.store.GetVisitedCount()
			c.log.WithFields(logrus.Fields{
				"visited_db":     visited,
				"queue_len":      c.frontier.Len(),
				"in_flight":      c.frontier.InFlight(),
				"processed":      c.processed.Load(),
				"unique_pages":   c.stats.UniquePageCount(),
				"fingerprints":   c.detector.FingerprintCount(),
				"robots_domains": c.robots.Len(),
			}).Info("Crawl Progress")
		}
	}
}

// Stats returns a consistent snapshot of the corpus statistics.
func (c *Crawler) Stats() stats.Snapshot {
	return c.stats.Snapshot()
}
