package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimiter spaces requests to each host by at least a minimum interval. Hosts get their
// own token bucket with a burst of one, created on first use.
type RateLimiter struct {
	mu              sync.Mutex
	limiters        map[string]*rate.Limiter
	defaultInterval time.Duration
	log             *logrus.Entry
}

// NewRateLimiter creates a RateLimiter. A non-positive interval disables limiting.
func NewRateLimiter(defaultInterval time.Duration, log *logrus.Entry) *RateLimiter {
	return &RateLimiter{
		limiters:        make(map[string]*rate.Limiter),
		defaultInterval: defaultInterval,
		log:             log,
	}
}

func limitFor(interval time.Duration) rate.Limit {
	if interval <= 0 {
		return rate.Inf
	}
	return rate.Every(interval)
}

func (rl *RateLimiter) limiter(host string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	lim, ok := rl.limiters[host]
	if !ok {
		lim = rate.NewLimiter(limitFor(rl.defaultInterval), 1)
		rl.limiters[host] = lim
	}
	return lim
}

// Wait blocks until a request to host may proceed or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, host string) error {
	lim := rl.limiter(host)
	if r := lim.Reserve(); r.OK() {
		delay := r.Delay()
		if delay == 0 {
			return nil
		}
		rl.log.WithFields(logrus.Fields{"host": host, "sleep": delay}).Debug("Rate limit applying sleep")
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			r.Cancel()
			return ctx.Err()
		}
	}
	return lim.Wait(ctx)
}

// SetHostInterval raises the spacing for host, e.g. to honour a robots.txt Crawl-delay.
// Intervals shorter than the current one are ignored.
func (rl *RateLimiter) SetHostInterval(host string, interval time.Duration) {
	lim := rl.limiter(host)
	if limitFor(interval) < lim.Limit() {
		lim.SetLimit(limitFor(interval))
		rl.log.WithFields(logrus.Fields{"host": host, "interval": interval}).Info("Per-host request interval raised")
	}
}
