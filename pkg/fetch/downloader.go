package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/Sriram-PR/trapcrawl/pkg/models"
	"github.com/Sriram-PR/trapcrawl/pkg/parse"
	"github.com/Sriram-PR/trapcrawl/pkg/utils"
)

// Downloader resolves a URL to a models.Page. It bounds the number of requests in flight
// across all workers and spaces requests per host.
type Downloader struct {
	fetcher      *Fetcher
	limiter      *RateLimiter
	inflight     *semaphore.Weighted
	userAgent    string
	maxBodyBytes int64
	log          *logrus.Entry
}

// NewDownloader creates a Downloader allowing maxInflight concurrent requests. Bodies are
// read up to maxBodyBytes+1 bytes so that oversized pages remain detectable downstream.
func NewDownloader(fetcher *Fetcher, limiter *RateLimiter, maxInflight int, userAgent string, maxBodyBytes int64, log *logrus.Entry) *Downloader {
	if maxInflight <= 0 {
		maxInflight = 1
	}
	return &Downloader{
		fetcher:      fetcher,
		limiter:      limiter,
		inflight:     semaphore.NewWeighted(int64(maxInflight)),
		userAgent:    userAgent,
		maxBodyBytes: maxBodyBytes,
		log:          log,
	}
}

// Download fetches rawURL. Responses with a client or unexpected status still produce a
// Page carrying that status; only transport failures and exhausted retries return an error.
func (d *Downloader) Download(ctx context.Context, rawURL string) (*models.Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL '%s': %v", utils.ErrParsing, rawURL, err)
	}
	host := parse.Hostname(u)
	dlLog := d.log.WithFields(logrus.Fields{"url": rawURL, "host": host})

	if err := d.inflight.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrSemaphoreTimeout, err)
	}
	defer d.inflight.Release(1)

	if err := d.limiter.Wait(ctx, host); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrRequestCreation, err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, fetchErr := d.fetcher.FetchWithRetry(req, ctx)
	if resp == nil {
		return nil, fetchErr
	}
	defer resp.Body.Close()
	if fetchErr != nil {
		dlLog.WithField("error_type", utils.CategorizeError(fetchErr)).Debugf("Non-success status: %v", fetchErr)
	}

	reader := io.Reader(resp.Body)
	if d.maxBodyBytes > 0 {
		reader = io.LimitReader(resp.Body, d.maxBodyBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrResponseBodyRead, err)
	}

	page := &models.Page{
		URL:         rawURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		Headers:     resp.Header,
	}
	if resp.Request != nil && resp.Request.URL != nil {
		page.FinalURL = resp.Request.URL.String()
	}
	dlLog.WithFields(logrus.Fields{"status_code": page.StatusCode, "bytes": len(body)}).Debug("Downloaded")
	return page, nil
}
