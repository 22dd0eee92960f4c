package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/trapcrawl/pkg/log"
	"github.com/Sriram-PR/trapcrawl/pkg/models"
	"github.com/Sriram-PR/trapcrawl/pkg/utils"
)

const (
	urlKeyPrefix  = "url:"        // Prefix for URL keys in DB
	frontierDBDir = "frontier_db" // Subdirectory name within stateDir for Badger DB files
)

// BadgerStore implements the FrontierStore interface using BadgerDB
type BadgerStore struct {
	db       *badger.DB
	log      *logrus.Entry
	keyCount atomic.Int64 // Cached key count for O(1) GetVisitedCount
}

// NewBadgerStore opens the frontier database for rootDomain under stateDir. Without
// resume, any existing database for the domain is removed first.
func NewBadgerStore(stateDir, rootDomain string, resume bool, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{log: logger}

	dbPath := filepath.Join(stateDir, utils.StateName(rootDomain)+"_"+frontierDBDir)

	if !resume {
		logger.Warnf("Resume flag is false. REMOVING existing state directory: %s", dbPath)
		if err := os.RemoveAll(dbPath); err != nil {
			logger.Errorf("Failed to remove existing state directory %s: %v", dbPath, err)
		}
	}

	logger.Infof("Initializing frontier database at: %s (Resume: %v)", dbPath, resume)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("cannot create state directory %s: %w", dbPath, err)
	}

	opts := badger.DefaultOptions(dbPath).
		WithLogger(log.NewBadgerLogrusAdapter(logger)).
		WithNumVersionsToKeep(1)

	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}

	if resume {
		count, err := store.countKeys()
		if err != nil {
			logger.Warnf("Failed to count existing keys on resume: %v", err)
		} else {
			store.keyCount.Store(int64(count))
			logger.Infof("Loaded existing key count on resume: %d", count)
		}
	}

	return store, nil
}

// countKeys performs a one-time full key scan (used only during initialization on resume).
func (s *BadgerStore) countKeys() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(urlKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Concurrent MVCC transactions on overlapping keys can return badger.ErrConflict.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := 0; i < maxConflictRetries; i++ {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// AddURL implements the URLStore interface
func (s *BadgerStore) AddURL(normalizedURL string, depth int) (bool, error) {
	key := []byte(urlKeyPrefix + normalizedURL)
	entryBytes, err := json.Marshal(models.URLEntry{
		Status:      models.URLStatusPending,
		Depth:       depth,
		LastAttempt: time.Now(),
	})
	if err != nil {
		return false, fmt.Errorf("%w: failed to marshal URLEntry for key '%s': %w", utils.ErrParsing, string(key), err)
	}

	added := false
	err = s.dbUpdate(func(txn *badger.Txn) error {
		added = false
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			if errSet := txn.SetEntry(badger.NewEntry(key, entryBytes)); errSet != nil {
				return errSet
			}
			added = true
			return nil
		}
		return errGet
	})
	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in AddURL: %v", err)
		return false, fmt.Errorf("%w: adding URL key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if added {
		s.keyCount.Add(1)
	}
	return added, nil
}

// MarkComplete implements the URLStore interface
func (s *BadgerStore) MarkComplete(normalizedURL string, entry models.URLEntry) error {
	key := []byte(urlKeyPrefix + normalizedURL)
	if entry.LastAttempt.IsZero() {
		entry.LastAttempt = time.Now()
	}

	entryBytes, errJson := json.Marshal(entry)
	if errJson != nil {
		wrappedErr := fmt.Errorf("%w: failed to marshal URLEntry for key '%s': %w", utils.ErrParsing, string(key), errJson)
		s.log.Error(wrappedErr)
		return wrappedErr
	}

	isNew := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		isNew = errors.Is(errGet, badger.ErrKeyNotFound)
		return txn.SetEntry(badger.NewEntry(key, entryBytes))
	})
	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in MarkComplete: %v", err)
		return fmt.Errorf("%w: failed setting status for key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if isNew {
		s.keyCount.Add(1)
	}

	s.log.Debugf("Updated status for key '%s' to '%s'", string(key), entry.Status)
	return nil
}

// Status implements the URLStore interface
func (s *BadgerStore) Status(normalizedURL string) (models.URLStatus, *models.URLEntry, error) {
	status := models.URLStatusNotFound
	var entry *models.URLEntry
	key := []byte(urlKeyPrefix + normalizedURL)

	errView := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting URL key '%s': %w", utils.ErrDatabase, string(key), errGet)
		}
		return item.Value(func(val []byte) error {
			var decoded models.URLEntry
			if errJson := json.Unmarshal(val, &decoded); errJson != nil || !decoded.Status.IsValid() {
				s.log.Warnf("Undecodable URLEntry for key '%s'. Treating as 'pending'.", string(key))
				status = models.URLStatusPending
				return nil
			}
			entry = &decoded
			status = decoded.Status
			return nil
		})
	})
	if errView != nil {
		s.log.Errorf("DB View error in Status for key '%s': %v", string(key), errView)
		return models.URLStatusDBError, nil, errView
	}
	return status, entry, nil
}

// GetVisitedCount implements the StoreAdmin interface.
// Returns the cached key count maintained by atomic increments on writes.
func (s *BadgerStore) GetVisitedCount() (int, error) {
	return int(s.keyCount.Load()), nil
}

// StatusCounts implements the StoreAdmin interface
func (s *BadgerStore) StatusCounts(ctx context.Context) (map[models.URLStatus]int, error) {
	counts := make(map[models.URLStatus]int)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(urlKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var entry models.URLEntry
			errValue := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if errValue != nil || !entry.Status.IsValid() {
				counts[models.URLStatusPending]++
				continue
			}
			counts[entry.Status]++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: counting statuses: %w", utils.ErrDatabase, err)
	}
	return counts, nil
}

// RunGC runs BadgerDB's value log garbage collection periodically until ctx is done
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				continue
			}
			var err error
			for err == nil {
				err = s.db.RunValueLogGC(0.5)
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}
		case <-ctx.Done():
			s.log.Debugf("Stopping BadgerDB garbage collection: %v", ctx.Err())
			return
		}
	}
}

// RequeueIncomplete implements the StoreAdmin interface
func (s *BadgerStore) RequeueIncomplete(ctx context.Context, workChan chan<- models.WorkItem) (int, int, error) {
	s.log.Info("Resume Mode: Scanning database for incomplete URLs to requeue...")
	requeuedCount := 0
	scanErrors := 0
	scanStartTime := time.Now()

	scanErr := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(urlKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()
			urlToRequeue := string(item.KeyCopy(nil)[len(prefix):])

			var entry models.URLEntry
			errValue := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if errValue != nil {
				s.log.Errorf("Resume Scan: Failed to decode URLEntry for '%s': %v. Skipping.", urlToRequeue, errValue)
				scanErrors++
				continue
			}
			if entry.Status != models.URLStatusPending && entry.Status != models.URLStatusFailure {
				continue
			}

			select {
			case workChan <- models.WorkItem{URL: urlToRequeue, Depth: entry.Depth}:
				requeuedCount++
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	if scanErr != nil && !errors.Is(scanErr, context.Canceled) && !errors.Is(scanErr, context.DeadlineExceeded) {
		s.log.Errorf("Error during DB scan for resume: %v.", scanErr)
		scanErr = fmt.Errorf("%w: resume scan: %w", utils.ErrDatabase, scanErr)
	}
	s.log.Infof("Resume Scan Complete: Requeued %d URLs in %v. Errors: %d.", requeuedCount, time.Since(scanStartTime), scanErrors)
	return requeuedCount, scanErrors, scanErr
}

// Close implements the StoreAdmin interface
func (s *BadgerStore) Close() error {
	if s.db == nil || s.db.IsClosed() {
		return nil
	}
	s.log.Info("Closing frontier DB...")
	if err := s.db.Close(); err != nil {
		s.log.Errorf("Error closing frontier DB: %v", err)
		return err
	}
	return nil
}
