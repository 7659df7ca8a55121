package process

import "tg-scraper/pkg/models"

// Result is the settled outcome of one link's fetch. Failures are logged
// where they happen; the Result carries only what callers aggregate, so
// nothing is double-handled upstream.
type Result struct {
	Link     models.ClassifiedLink
	Status   models.OutcomeStatus
	Category string // Error category, set when the outcome was caused by an error
	Files    int    // Media files written for this link
}
