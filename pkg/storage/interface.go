package storage

import (
	"context"
	"time"

	"github.com/Sriram-PR/trapcrawl/pkg/models"
)

// URLStore records the frontier state of every URL the crawler has scheduled
type URLStore interface {
	// AddURL records a URL as pending at the given depth.
	// Returns true if the URL was newly added, false if it already existed
	AddURL(normalizedURL string, depth int) (bool, error)

	// MarkComplete overwrites the record of a URL with its final state
	MarkComplete(normalizedURL string, entry models.URLEntry) error

	// Status retrieves the status and record of a URL.
	// Returns URLStatusNotFound with a nil entry if the URL was never added
	Status(normalizedURL string) (models.URLStatus, *models.URLEntry, error)
}

// StoreAdmin handles lifecycle and administrative operations
type StoreAdmin interface {
	// GetVisitedCount returns the number of URLs recorded in the store
	GetVisitedCount() (int, error)

	// RequeueIncomplete scans the DB and sends pending and failed URLs to the provided channel.
	// Should be called only during resume
	RequeueIncomplete(ctx context.Context, workChan chan<- models.WorkItem) (requeuedCount int, scanErrors int, err error)

	// StatusCounts tallies the recorded URLs by status. Undecodable records count as pending
	StatusCounts(ctx context.Context) (map[models.URLStatus]int, error)

	// RunGC runs periodic garbage collection. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database connection
	Close() error
}

// FrontierStore combines all store interfaces for components that need full access
type FrontierStore interface {
	URLStore
	StoreAdmin
}
