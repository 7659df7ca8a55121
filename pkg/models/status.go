package models

// OutcomeStatus represents the terminal outcome of one input entry in a run
type OutcomeStatus string

const (
	OutcomeUnset   OutcomeStatus = ""        // Zero value = not yet settled
	OutcomeFetched OutcomeStatus = "fetched" // Content retrieved and saved
	OutcomeEmpty   OutcomeStatus = "empty"   // Terminal success with zero artifacts (no images / no media)
	OutcomeSkipped OutcomeStatus = "skipped" // Already processed, or inaccessible and passed over
	OutcomeFailed  OutcomeStatus = "failed"  // Fetch aborted for this entry (transport/storage error)
)

// String implements fmt.Stringer for logging
func (s OutcomeStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known terminal value
func (s OutcomeStatus) IsValid() bool {
	switch s {
	case OutcomeFetched, OutcomeEmpty, OutcomeSkipped, OutcomeFailed:
		return true
	}
	return false
}

// IsSuccess returns true for outcomes that mark the link processed
func (s OutcomeStatus) IsSuccess() bool {
	return s == OutcomeFetched || s == OutcomeEmpty
}
