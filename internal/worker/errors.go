package worker

import "fmt"

// ProviderError means the search provider exhausted its retry budget for one
// (location, page) call. It aborts the whole job; the caller must resubmit.
type ProviderError struct {
	Location string
	Page     int
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("search provider failed for %q page %d: %v", e.Location, e.Page, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// PersistenceError means a store write failed after its retry budget. Writes
// already committed for earlier locations in the same job are retained.
type PersistenceError struct {
	Op       string
	Location string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s for %q: %v", e.Op, e.Location, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
