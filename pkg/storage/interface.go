package storage

import (
	"context"
	"time"

	"tg-scraper/pkg/models"
)

// LinkLedger is the durable record of links that have been fully processed.
// It is the only persisted dedup state in the system; everything else is
// transient per run.
type LinkLedger interface {
	// IsProcessed reports whether a ledger record exists for the link.
	// Safe to call concurrently with MarkProcessed from other fetch tasks.
	IsProcessed(link string) (bool, error)

	// MarkProcessed inserts a record with the current timestamp. If a record
	// already exists for the link the call succeeds silently; duplicate
	// marking is expected under races and is never an error.
	MarkProcessed(link string, kind models.StoreKind) error

	// Entry retrieves the stored record for a link, reporting whether one
	// exists. The entry may carry a zero timestamp for records written by
	// older store layouts.
	Entry(link string) (*models.LedgerEntry, bool, error)
}

// LedgerAdmin handles lifecycle and administrative operations
type LedgerAdmin interface {
	// ProcessedCount returns the number of ledger records
	ProcessedCount() (int, error)

	// RunGC runs periodic garbage collection. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database
	Close() error
}

// Ledger combines both interfaces for components that need full access
type Ledger interface {
	LinkLedger
	LedgerAdmin
}
