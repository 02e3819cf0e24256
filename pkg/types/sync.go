package types

// MaxRetriesExceeded is the error text reported for a mutation the queue
// gave up on.
const MaxRetriesExceeded = "max retries exceeded"

// SyncResult summarizes one drain of the sync queue.
type SyncResult struct {
	Success     bool        `json:"success"`
	SyncedCount int         `json:"synced_count"`
	FailedCount int         `json:"failed_count"`
	Errors      []SyncError `json:"errors"`
}

// SyncError records why one mutation did not apply during a drain.
type SyncError struct {
	// ID is the pending mutation id.
	ID string `json:"id"`

	// Table is the mutation's target table.
	Table string `json:"table"`

	// Error is the failure message, or MaxRetriesExceeded when the mutation
	// was discarded.
	Error string `json:"error"`

	// Cause is the last remote error for a discarded mutation.
	Cause string `json:"cause,omitempty"`

	// Discarded is true when the mutation was removed from the queue.
	Discarded bool `json:"discarded"`
}

// DiscardedErrors returns the entries for mutations that were dropped.
func (r SyncResult) DiscardedErrors() []SyncError {
	var out []SyncError
	for _, e := range r.Errors {
		if e.Discarded {
			out = append(out, e)
		}
	}
	return out
}

// Skipped reports whether the drain was refused because another drain was
// already running.
func (r SyncResult) Skipped() bool {
	return !r.Success && r.SyncedCount == 0 && r.FailedCount == 0
}
