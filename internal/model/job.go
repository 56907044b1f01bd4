package model

import (
	"fmt"
	"time"
)

// JobStatus represents the current state of a scrape job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// MaxLocations caps how many locations a single scrape job may target.
const MaxLocations = 25

// ScrapeRequest is the payload accepted by the enqueue endpoint.
type ScrapeRequest struct {
	Category  string   `json:"category"`
	Locations []string `json:"locations"`
	Pages     []int    `json:"pages"`
}

// Validate checks the request before any persistence happens.
func (r ScrapeRequest) Validate() error {
	if r.Category == "" {
		return &ValidationError{Field: "category", Reason: "required"}
	}
	if len(r.Locations) == 0 {
		return &ValidationError{Field: "locations", Reason: "required"}
	}
	if len(r.Locations) > MaxLocations {
		return &ValidationError{Field: "locations", Reason: fmt.Sprintf("at most %d entries allowed, got %d", MaxLocations, len(r.Locations))}
	}
	for i, loc := range r.Locations {
		if loc == "" {
			return &ValidationError{Field: "locations", Reason: fmt.Sprintf("entry %d is empty", i)}
		}
	}
	if len(r.Pages) == 0 {
		return &ValidationError{Field: "pages", Reason: "required"}
	}
	for i, p := range r.Pages {
		if p < 1 {
			return &ValidationError{Field: "pages", Reason: fmt.Sprintf("entry %d must be a positive page number, got %d", i, p)}
		}
	}
	return nil
}

// ValidationError rejects a malformed enqueue request. It is caller-visible
// and never retryable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
}

// Job is a durable unit of work representing one scrape request across
// multiple locations and pages. Status transitions are one-directional:
// pending → processing → completed|failed.
type Job struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Category  string     `json:"category"`
	Locations []string   `json:"cities"`
	Pages     []int      `json:"pages"`
	Status    JobStatus  `json:"status"`
	Error     string     `json:"error,omitempty"`
	Result    *JobResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// JobResult summarizes the output of a completed job.
type JobResult struct {
	BatchIDs  []string `json:"batches"`
	LeadCount int      `json:"leads"`
}
