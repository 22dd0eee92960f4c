package frontier

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/trapcrawl/pkg/models"
	"github.com/Sriram-PR/trapcrawl/pkg/storage"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestStore(t *testing.T, dir string, resume bool) *storage.BadgerStore {
	t.Helper()
	store, err := storage.NewBadgerStore(dir, "ics.uci.edu", resume, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestFrontier(t *testing.T) *Frontier {
	t.Helper()
	return New(newTestStore(t, t.TempDir(), false), testLogger())
}

func TestEnqueue_Deduplicates(t *testing.T) {
	f := newTestFrontier(t)

	assert.True(t, f.Enqueue("http://www.ics.uci.edu/a", 0))
	assert.False(t, f.Enqueue("http://www.ics.uci.edu/a", 1))
	assert.False(t, f.Enqueue("http://www.ics.uci.edu/a#section", 2), "fragment is stripped before dedup")
	assert.True(t, f.Enqueue("http://www.ics.uci.edu/b", 1))
	assert.Equal(t, 2, f.Len())
}

func TestDequeue_DepthOrderThenFIFO(t *testing.T) {
	f := newTestFrontier(t)
	f.Enqueue("http://www.ics.uci.edu/d2", 2)
	f.Enqueue("http://www.ics.uci.edu/d0", 0)
	f.Enqueue("http://www.ics.uci.edu/d1-first", 1)
	f.Enqueue("http://www.ics.uci.edu/d1-second", 1)

	var order []string
	for i := 0; i < 4; i++ {
		w, ok := f.Dequeue()
		require.True(t, ok)
		order = append(order, w.URL)
	}
	assert.Equal(t, []string{
		"http://www.ics.uci.edu/d0",
		"http://www.ics.uci.edu/d1-first",
		"http://www.ics.uci.edu/d1-second",
		"http://www.ics.uci.edu/d2",
	}, order)
	assert.Equal(t, 4, f.InFlight())
}

func TestDequeue_EmptyWithNothingInFlight(t *testing.T) {
	f := newTestFrontier(t)
	_, ok := f.Dequeue()
	assert.False(t, ok)
}

func TestDequeue_WaitsForInFlightWork(t *testing.T) {
	f := newTestFrontier(t)
	f.Enqueue("http://www.ics.uci.edu/root", 0)

	w, ok := f.Dequeue()
	require.True(t, ok)

	result := make(chan models.WorkItem, 1)
	done := make(chan bool, 1)
	go func() {
		next, ok := f.Dequeue()
		result <- next
		done <- ok
	}()

	select {
	case <-done:
		t.Fatal("Dequeue returned while work was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	f.Enqueue("http://www.ics.uci.edu/child", 1)
	f.MarkComplete(w.URL, models.URLEntry{Status: models.URLStatusAccepted})

	select {
	case ok := <-done:
		assert.True(t, ok)
		assert.Equal(t, "http://www.ics.uci.edu/child", (<-result).URL)
	case <-time.After(2 * time.Second):
		t.Fatal("Dequeue did not wake for new work")
	}
}

func TestDequeue_LastCompletionReleasesWaiters(t *testing.T) {
	f := newTestFrontier(t)
	f.Enqueue("http://www.ics.uci.edu/only", 0)
	w, ok := f.Dequeue()
	require.True(t, ok)

	const waiters = 4
	var wg sync.WaitGroup
	results := make(chan bool, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := f.Dequeue()
			results <- ok
		}()
	}

	time.Sleep(20 * time.Millisecond)
	f.MarkComplete(w.URL, models.URLEntry{Status: models.URLStatusRejected, Reason: "dead_page"})
	wg.Wait()
	close(results)
	for ok := range results {
		assert.False(t, ok)
	}
	assert.Equal(t, 0, f.InFlight())
}

func TestClose_UnblocksAndRejects(t *testing.T) {
	f := newTestFrontier(t)
	f.Enqueue("http://www.ics.uci.edu/a", 0)
	_, ok := f.Dequeue()
	require.True(t, ok)

	done := make(chan bool, 1)
	go func() {
		_, ok := f.Dequeue()
		done <- ok
	}()
	time.Sleep(20 * time.Millisecond)
	f.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not release the blocked Dequeue")
	}
	assert.False(t, f.Enqueue("http://www.ics.uci.edu/late", 0))
}

func TestMarkComplete_Persists(t *testing.T) {
	store := newTestStore(t, t.TempDir(), false)
	f := New(store, testLogger())
	f.Enqueue("http://www.ics.uci.edu/a", 3)
	w, _ := f.Dequeue()

	f.MarkComplete(w.URL+"#frag", models.URLEntry{Status: models.URLStatusFailure, ErrorType: "HTTP_5xx", Depth: w.Depth})

	status, entry, err := store.Status("http://www.ics.uci.edu/a")
	require.NoError(t, err)
	assert.Equal(t, models.URLStatusFailure, status)
	require.NotNil(t, entry)
	assert.Equal(t, "HTTP_5xx", entry.ErrorType)
	assert.Equal(t, 3, entry.Depth)
}

func TestSeedAndResume(t *testing.T) {
	dir := t.TempDir()

	store1, err := storage.NewBadgerStore(dir, "ics.uci.edu", false, testLogger())
	require.NoError(t, err)
	f1 := New(store1, testLogger())
	assert.Equal(t, 2, f1.Seed([]string{"http://www.ics.uci.edu/", "http://www.ics.uci.edu/", "http://vision.ics.uci.edu/"}))

	w, ok := f1.Dequeue()
	require.True(t, ok)
	f1.Enqueue("http://www.ics.uci.edu/deeper", 1)
	f1.MarkComplete(w.URL, models.URLEntry{Status: models.URLStatusAccepted})
	f1.Close()
	require.NoError(t, store1.Close())

	store2 := newTestStore(t, dir, true)
	f2 := New(store2, testLogger())
	assert.Equal(t, 0, f2.Seed([]string{"http://www.ics.uci.edu/"}), "seeds already recorded are not re-added")

	n, err := f2.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, f2.Len())

	got := map[string]int{}
	for i := 0; i < 2; i++ {
		w, ok := f2.Dequeue()
		require.True(t, ok)
		got[w.URL] = w.Depth
	}
	assert.Equal(t, map[string]int{
		"http://vision.ics.uci.edu/":    0,
		"http://www.ics.uci.edu/deeper": 1,
	}, got)
}

func TestConcurrentWorkersDrainFrontier(t *testing.T) {
	f := newTestFrontier(t)
	f.Seed([]string{"http://www.ics.uci.edu/0"})

	// Each page at depth < 3 links to three children, giving 1+3+9+27 pages.
	const workers = 6
	var mu sync.Mutex
	seen := map[string]bool{}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				w, ok := f.Dequeue()
				if !ok {
					return
				}
				mu.Lock()
				seen[w.URL] = true
				mu.Unlock()
				if w.Depth < 3 {
					for c := 0; c < 3; c++ {
						f.Enqueue(fmt.Sprintf("%s/%d", w.URL, c), w.Depth+1)
					}
				}
				f.MarkComplete(w.URL, models.URLEntry{Status: models.URLStatusAccepted, Depth: w.Depth})
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 40)
	assert.Equal(t, 0, f.Len())
	assert.Equal(t, 0, f.InFlight())
}
