package models

import "time"

// ClassifiedLink is a raw link string tagged with its recognized kind.
// Produced by the classifier, consumed once by the orchestrator; never persisted.
type ClassifiedLink struct {
	RawURL string
	Kind   LinkKind
}

// FetchTarget pairs a classified link with the save root its artifacts go
// under. The concrete folder is derived deterministically from the link, so
// re-runs target the same place.
type FetchTarget struct {
	Link     ClassifiedLink
	SaveRoot string
}

// LedgerEntry stores the completion record for a processed link in the database.
// The link string itself is the database key; at most one entry per link ever
// exists and entries are never updated or deleted.
type LedgerEntry struct {
	Kind         StoreKind `json:"kind"`          // "page" or "channel-post"
	DownloadedAt time.Time `json:"downloaded_at"` // Timestamp of terminal completion
}

// RunReport holds the summary for a single run, written to the save root.
type RunReport struct {
	RunID      string        `yaml:"run_id"`
	StartedAt  time.Time     `yaml:"started_at"`
	FinishedAt time.Time     `yaml:"finished_at"`
	SaveRoot   string        `yaml:"save_root"`
	FullCrawl  bool          `yaml:"full_crawl"`
	Entries    []EntryReport `yaml:"entries"`
	Totals     ReportTotals  `yaml:"totals"`
}

// EntryReport holds the outcome for a single input entry (link, channel
// reference, or channel discovered via "all").
type EntryReport struct {
	Input    string        `yaml:"input"`
	Kind     string        `yaml:"kind"`                     // classified kind or "channel"
	Status   OutcomeStatus `yaml:"status"`
	Category string        `yaml:"error_category,omitempty"` // CategorizeError value (on failure)
	Files    int           `yaml:"files_saved,omitempty"`
	Links    int           `yaml:"links_dispatched,omitempty"` // For channel walks
}

// ReportTotals aggregates entry outcomes for the run.
type ReportTotals struct {
	Fetched int `yaml:"fetched"`
	Empty   int `yaml:"empty"`
	Skipped int `yaml:"skipped"`
	Failed  int `yaml:"failed"`
}
