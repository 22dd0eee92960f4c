// Package frontier schedules URLs for the crawl workers. Pending URLs are served
// shallowest first, and every scheduled URL is persisted so an interrupted crawl can
// resume where it stopped.
package frontier

import (
	"container/heap"
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Sriram-PR/trapcrawl/pkg/models"
	"github.com/Sriram-PR/trapcrawl/pkg/parse"
	"github.com/Sriram-PR/trapcrawl/pkg/storage"
)

// item is one entry of the depth-ordered heap
type item struct {
	work  models.WorkItem
	seq   uint64 // insertion order, keeps equal depths FIFO
	index int
}

// depthQueue implements heap.Interface; lower depth pops first
type depthQueue []*item

func (q depthQueue) Len() int { return len(q) }

func (q depthQueue) Less(i, j int) bool {
	if q[i].work.Depth != q[j].work.Depth {
		return q[i].work.Depth < q[j].work.Depth
	}
	return q[i].seq < q[j].seq
}

func (q depthQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *depthQueue) Push(x any) {
	it := x.(*item)
	it.index = len(*q)
	*q = append(*q, it)
}

func (q *depthQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*q = old[:n-1]
	return it
}

// Frontier is a thread-safe, persistent work queue.
//
// Dequeue blocks while the queue is empty but other URLs are still in flight, since
// finishing them may discover new links. It reports exhaustion once the queue is empty
// and nothing is in flight, which is how workers learn the crawl is over.
type Frontier struct {
	store storage.FrontierStore
	log   *logrus.Entry

	mu       sync.Mutex
	cond     *sync.Cond
	queue    depthQueue
	seq      uint64
	inFlight int
	closed   bool
}

// New creates a Frontier persisting URL state in store.
func New(store storage.FrontierStore, log *logrus.Entry) *Frontier {
	f := &Frontier{store: store, log: log}
	f.cond = sync.NewCond(&f.mu)
	heap.Init(&f.queue)
	return f
}

// Enqueue schedules rawURL at depth if it was never scheduled before. It returns false
// for URLs already known to the store, when the store fails, or after Close.
func (f *Frontier) Enqueue(rawURL string, depth int) bool {
	u := parse.StripFragment(rawURL)

	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return false
	}

	added, err := f.store.AddURL(u, depth)
	if err != nil {
		f.log.WithField("url", u).Errorf("Failed to record URL in frontier: %v", err)
		return false
	}
	if !added {
		return false
	}
	f.push(models.WorkItem{URL: u, Depth: depth})
	return true
}

func (f *Frontier) push(w models.WorkItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.seq++
	heap.Push(&f.queue, &item{work: w, seq: f.seq})
	f.cond.Signal()
}

// Seed schedules the seed URLs at depth 0 and returns how many were new.
func (f *Frontier) Seed(urls []string) int {
	added := 0
	for _, u := range urls {
		if f.Enqueue(u, 0) {
			added++
		}
	}
	f.log.Infof("Seeded frontier with %d of %d URLs", added, len(urls))
	return added
}

// Resume requeues every URL the store holds as pending or failed.
func (f *Frontier) Resume(ctx context.Context) (int, error) {
	ch := make(chan models.WorkItem, 256)
	g, gctx := errgroup.WithContext(ctx)

	var requeued int
	g.Go(func() error {
		defer close(ch)
		n, scanErrors, err := f.store.RequeueIncomplete(gctx, ch)
		requeued = n
		if scanErrors > 0 {
			f.log.Warnf("Resume skipped %d undecodable frontier records", scanErrors)
		}
		return err
	})
	g.Go(func() error {
		for w := range ch {
			f.push(w)
		}
		return nil
	})

	err := g.Wait()
	return requeued, err
}

// Dequeue returns the next URL to crawl, shallowest first. It returns false once the
// queue is empty with nothing in flight, or after Close. Every URL returned must be
// passed to MarkComplete.
func (f *Frontier) Dequeue() (models.WorkItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for len(f.queue) == 0 {
		if f.closed || f.inFlight == 0 {
			return models.WorkItem{}, false
		}
		f.cond.Wait()
	}
	if f.closed {
		return models.WorkItem{}, false
	}

	it := heap.Pop(&f.queue).(*item)
	f.inFlight++
	return it.work, true
}

// MarkComplete records the final state of a dequeued URL and releases its in-flight slot.
func (f *Frontier) MarkComplete(rawURL string, entry models.URLEntry) {
	u := parse.StripFragment(rawURL)
	if err := f.store.MarkComplete(u, entry); err != nil {
		f.log.WithField("url", u).Errorf("Failed to persist completion: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight > 0 {
		f.inFlight--
	}
	// Waiters re-check; the last completion on an empty queue ends the crawl.
	f.cond.Broadcast()
}

// Len returns the number of queued URLs.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// InFlight returns the number of dequeued URLs not yet marked complete.
func (f *Frontier) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

// Close stops the frontier; blocked and future Dequeue calls return false.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		f.cond.Broadcast()
	}
}
