package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"tg-scraper/pkg/log"
	"tg-scraper/pkg/models"
	"tg-scraper/pkg/utils"
)

const (
	linkKeyPrefix    = "link:"               // Prefix for processed link keys in DB
	schemaVersionKey = "meta:schema_version" // Key holding the store layout version
	schemaVersion    = "2"                   // Current layout: values carry a kind field
)

// BadgerStore implements the Ledger interface using BadgerDB
type BadgerStore struct {
	db       *badger.DB
	log      *logrus.Entry
	keyCount atomic.Int64 // Cached link count for O(1) ProcessedCount
}

// NewBadgerStore opens (or creates) the ledger database at dbPath, upgrades
// records written by older store layouts, and loads the link count.
func NewBadgerStore(dbPath string, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{log: logger}

	logger.Infof("Opening processed-links ledger at: %s", dbPath)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create ledger directory '%s': %w", utils.ErrFilesystem, dbPath, err)
	}

	// Configure Badger options
	badgerLogger := log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))
	opts := badger.DefaultOptions(dbPath).
		WithLogger(badgerLogger). // Use custom logrus adapter
		WithNumVersionsToKeep(1)  // Only the latest record per link matters

	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open ledger database at '%s': %w", utils.ErrDatabase, dbPath, err)
	}

	if err := store.ensureSchema(); err != nil {
		store.db.Close()
		return nil, err
	}

	count, err := store.countLinks()
	if err != nil {
		logger.Warnf("Failed to count existing ledger records: %v", err)
	} else {
		store.keyCount.Store(int64(count))
		if count > 0 {
			logger.Infof("Ledger loaded with %d previously processed links.", count)
		}
	}

	return store, nil
}

// ensureSchema upgrades records written before the kind field existed.
// Legacy values get kind defaulted to "page" without touching their
// timestamps; existing records are never deleted.
func (s *BadgerStore) ensureSchema() error {
	var version string
	err := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get([]byte(schemaVersionKey))
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return errGet
		}
		return item.Value(func(val []byte) error {
			version = string(val)
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("%w: reading ledger schema version: %w", utils.ErrDatabase, err)
	}
	if version == schemaVersion {
		return nil
	}

	// Collect upgrades in a read pass, then write them in a batch that
	// splits transparently when it outgrows a single transaction.
	type upgrade struct {
		key   []byte
		value []byte
	}
	var upgrades []upgrade

	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(linkKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)

			errVal := item.Value(func(val []byte) error {
				var entry models.LedgerEntry
				if len(val) > 0 {
					if errJson := json.Unmarshal(val, &entry); errJson != nil {
						// Leave undecodable records as they are; key presence
						// still answers IsProcessed
						s.log.Warnf("Ledger upgrade: cannot decode record '%s', leaving untouched: %v", string(key), errJson)
						return nil
					}
				}
				if entry.Kind != "" {
					return nil // Already has a kind, nothing to do
				}
				entry.Kind = models.StoreKindPage // Default for pre-kind records
				newVal, errJson := json.Marshal(&entry)
				if errJson != nil {
					return errJson
				}
				upgrades = append(upgrades, upgrade{key: key, value: newVal})
				return nil
			})
			if errVal != nil {
				return errVal
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: scanning ledger for upgrade: %w", utils.ErrDatabase, err)
	}

	if len(upgrades) > 0 {
		s.log.Infof("Upgrading %d ledger records to layout v%s...", len(upgrades), schemaVersion)
		wb := s.db.NewWriteBatch()
		defer wb.Cancel()
		for _, up := range upgrades {
			if err := wb.Set(up.key, up.value); err != nil {
				return fmt.Errorf("%w: staging ledger upgrade for '%s': %w", utils.ErrDatabase, string(up.key), err)
			}
		}
		if err := wb.Flush(); err != nil {
			return fmt.Errorf("%w: writing ledger upgrades: %w", utils.ErrDatabase, err)
		}
	}

	err = s.dbUpdate(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(schemaVersionKey), []byte(schemaVersion)))
	})
	if err != nil {
		return fmt.Errorf("%w: recording ledger schema version: %w", utils.ErrDatabase, err)
	}
	return nil
}

// countLinks performs a one-time key scan (used only during initialization).
func (s *BadgerStore) countLinks() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(linkKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Concurrent MVCC transactions on overlapping keys can return badger.ErrConflict;
// these resolve in microseconds, so a tight retry loop is sufficient.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// IsProcessed implements the Ledger interface
func (s *BadgerStore) IsProcessed(link string) (bool, error) {
	if s.db == nil {
		return false, errors.New("ledger not initialized")
	}
	processed := false
	key := []byte(linkKeyPrefix + link)

	errView := s.db.View(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil // Not found is a normal answer, not an error
		}
		if errGet != nil {
			return errGet
		}
		processed = true
		return nil
	})

	if errView != nil {
		s.log.WithField("key", string(key)).Errorf("DB View error in IsProcessed: %v", errView)
		return false, fmt.Errorf("%w: checking link '%s': %w", utils.ErrDatabase, link, errView)
	}
	return processed, nil
}

// MarkProcessed implements the Ledger interface. The write is insert-or-ignore:
// the first caller records the link, every later caller succeeds without
// touching the stored record.
func (s *BadgerStore) MarkProcessed(link string, kind models.StoreKind) error {
	if s.db == nil {
		return errors.New("ledger not initialized")
	}
	key := []byte(linkKeyPrefix + link)

	entry := models.LedgerEntry{Kind: kind, DownloadedAt: time.Now().UTC()}
	entryBytes, errJson := json.Marshal(&entry)
	if errJson != nil {
		return fmt.Errorf("%w: marshaling ledger record for '%s': %w", utils.ErrParsing, link, errJson)
	}

	added := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			errSet := txn.SetEntry(badger.NewEntry(key, entryBytes))
			if errSet == nil {
				added = true
			}
			return errSet
		}
		// Existing record wins; duplicate marks are no-ops
		return errGet
	})

	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in MarkProcessed: %v", err)
		return fmt.Errorf("%w: marking link '%s': %w", utils.ErrDatabase, link, err)
	}
	if added {
		s.keyCount.Add(1)
		s.log.Debugf("Ledger: recorded '%s' (%s)", link, kind)
	} else {
		s.log.Debugf("Ledger: '%s' already recorded, ignoring duplicate mark", link)
	}
	return nil
}

// Entry implements the Ledger interface
func (s *BadgerStore) Entry(link string) (*models.LedgerEntry, bool, error) {
	if s.db == nil {
		return nil, false, errors.New("ledger not initialized")
	}
	var entry *models.LedgerEntry
	found := false
	key := []byte(linkKeyPrefix + link)

	errView := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return errGet
		}
		found = true
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return nil // Legacy record with no payload; found, but no details
			}
			var decoded models.LedgerEntry
			if errJson := json.Unmarshal(val, &decoded); errJson != nil {
				s.log.Warnf("Failed to unmarshal ledger record for '%s': %v", link, errJson)
				return nil
			}
			entry = &decoded
			return nil
		})
	})

	if errView != nil {
		s.log.WithField("key", string(key)).Errorf("DB View error in Entry: %v", errView)
		return nil, false, fmt.Errorf("%w: reading ledger record for '%s': %w", utils.ErrDatabase, link, errView)
	}
	return entry, found, nil
}

// ProcessedCount implements the Ledger interface.
// Returns the cached link count (O(1)) maintained by atomic increments on writes.
func (s *BadgerStore) ProcessedCount() (int, error) {
	return int(s.keyCount.Load()), nil
}

// RunGC runs BadgerDB's value log garbage collection periodically
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute // Default interval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Debug("Ledger GC goroutine started.")

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				s.log.Debug("Ledger GC: database is nil or closed, skipping cycle.")
				continue
			}

			var err error
			// Loop GC until it returns ErrNoRewrite or another error
			for {
				// Run GC if log is at least 50% reclaimable space
				err = s.db.RunValueLogGC(0.5)
				if err != nil {
					break
				}
			}
			if errors.Is(err, badger.ErrNoRewrite) {
				s.log.Debug("Ledger GC finished (no rewrite needed).")
			} else {
				s.log.Errorf("Ledger GC error: %v", err)
			}

		case <-ctx.Done():
			s.log.Debugf("Stopping ledger GC goroutine: %v", ctx.Err())
			return
		}
	}
}

// Close implements the Ledger interface
func (s *BadgerStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		s.log.Info("Closing ledger...")
		if err := s.db.Close(); err != nil {
			s.log.Errorf("Error closing ledger: %v", err)
			return err
		}
		s.log.Info("Ledger closed.")
		return nil
	}
	s.log.Info("Ledger already closed or was not initialized.")
	return nil
}
