// Package store persists jobs, batches, leads, and user credit balances.
// Postgres is the production backend; SQLite serves single-node deployments
// and local development.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen/internal/model"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = eris.New("store: not found")

// ErrAlreadyClaimed is returned when a claim loses the race for a pending
// job: some other worker moved it out of pending first.
var ErrAlreadyClaimed = eris.New("store: job already claimed")

// ErrInsufficientCredits is returned when a deduction would push a user's
// balance below zero.
var ErrInsufficientCredits = eris.New("store: insufficient credits")

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	Status model.JobStatus `json:"status,omitempty"`
	UserID string          `json:"user_id,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the scrape pipeline.
//
// ClaimNextJob and ClaimJob must be atomic at the data-store level:
// concurrent claimers for the same pending job must yield exactly one
// winner. DeductCredits must be a single conditional decrement, never a
// read-modify-write at the application layer.
type Store interface {
	// Jobs
	EnqueueJob(ctx context.Context, userID string, req model.ScrapeRequest) (*model.Job, error)
	ClaimNextJob(ctx context.Context) (*model.Job, error)
	ClaimJob(ctx context.Context, jobID string) error
	CompleteJob(ctx context.Context, jobID string, result *model.JobResult) error
	FailJob(ctx context.Context, jobID string, errMsg string) error
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error)

	// Batches and leads
	CreateBatch(ctx context.Context, batch model.Batch) error
	InsertLeads(ctx context.Context, leads []model.Lead) error
	GetLead(ctx context.Context, leadID string) (*model.Lead, error)
	SetLeadEnrichmentStatus(ctx context.Context, leadID string, status model.EnrichmentStatus) error
	UpdateLeadEnrichment(ctx context.Context, lead *model.Lead) error
	MarkLeadsExported(ctx context.Context, leadIDs []string) (int, error)

	// Users and credits
	EnsureUser(ctx context.Context, userID, email string) error
	GetCreditBalance(ctx context.Context, userID string) (int, error)
	GrantCredits(ctx context.Context, userID string, amount int) error
	DeductCredits(ctx context.Context, userID string, amount int) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
