// Package worker runs the background job loop: claim one pending scrape
// job at a time, execute it location by location, and drive it to a
// terminal status. Multiple worker processes may run against the same
// queue; the store's claim operation guarantees at-most-one executor per
// job.
package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen/internal/address"
	"github.com/sells-group/leadgen/internal/dedupe"
	"github.com/sells-group/leadgen/internal/model"
	"github.com/sells-group/leadgen/internal/resilience"
	"github.com/sells-group/leadgen/internal/store"
	"github.com/sells-group/leadgen/pkg/serper"
)

// Config tunes the worker loop.
type Config struct {
	// PollInterval is the idle sleep between empty-queue checks, and also
	// the backoff after a failed claim attempt.
	PollInterval time.Duration
	// SearchRetry is the retry budget passed to each provider call.
	SearchRetry resilience.RetryConfig
	// PersistRetry is the retry budget for batch and lead writes.
	PersistRetry resilience.RetryConfig
}

// Worker claims and executes scrape jobs.
type Worker struct {
	store  store.Store
	search serper.Client
	cfg    Config
	now    func() time.Time
	newID  func() string
}

// New creates a worker. Zero-value config fields get defaults: a 5s poll
// interval and 3-attempt exponential retries for search and persistence.
func New(st store.Store, search serper.Client, cfg Config) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.SearchRetry.MaxAttempts == 0 {
		cfg.SearchRetry = resilience.Exponential(3, 500*time.Millisecond)
	}
	if cfg.PersistRetry.MaxAttempts == 0 {
		cfg.PersistRetry = resilience.Exponential(3, 250*time.Millisecond)
	}
	return &Worker{
		store:  st,
		search: search,
		cfg:    cfg,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// Run polls the queue until ctx is cancelled. An empty queue or a claim
// error is not fatal; both just sleep one poll interval.
func (w *Worker) Run(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "worker"))
	log.Info("worker started", zap.Duration("poll_interval", w.cfg.PollInterval))

	for {
		processed, err := w.ProcessNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker stopped")
				return ctx.Err()
			}
			log.Error("poll failed", zap.Error(err))
		}
		if processed {
			continue
		}

		select {
		case <-ctx.Done():
			log.Info("worker stopped")
			return ctx.Err()
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

// ProcessNext claims the oldest pending job and executes it to a terminal
// status. Returns false when the queue is empty.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	log := zap.L().With(
		zap.String("component", "worker"),
		zap.String("job_id", job.ID),
		zap.String("category", job.Category),
	)
	log.Info("job claimed",
		zap.Int("locations", len(job.Locations)),
		zap.Int("pages", len(job.Pages)),
	)

	start := time.Now()
	result, execErr := w.execute(ctx, job)
	if execErr != nil {
		log.Error("job failed", zap.Error(execErr), zap.Duration("elapsed", time.Since(start)))
		if failErr := w.store.FailJob(ctx, job.ID, execErr.Error()); failErr != nil {
			log.Error("failed to record job failure", zap.Error(failErr))
			return true, failErr
		}
		return true, nil
	}

	if err := w.store.CompleteJob(ctx, job.ID, result); err != nil {
		log.Error("failed to record job completion", zap.Error(err))
		return true, err
	}
	log.Info("job completed",
		zap.Int("batches", len(result.BatchIDs)),
		zap.Int("leads", result.LeadCount),
		zap.Duration("elapsed", time.Since(start)),
	)
	return true, nil
}

// execute walks locations strictly in order. The first provider or
// persistence failure aborts the whole job; batches already committed for
// earlier locations stay in place as valid partial output.
func (w *Worker) execute(ctx context.Context, job *model.Job) (*model.JobResult, error) {
	result := &model.JobResult{}

	for _, location := range job.Locations {
		var records []model.CanonicalRecord
		for _, page := range job.Pages {
			recs, err := w.search.Search(ctx, serper.Query{
				Category: job.Category,
				Location: location,
				Page:     page,
				JobID:    job.ID,
			}, w.cfg.SearchRetry)
			if err != nil {
				return nil, &ProviderError{Location: location, Page: page, Err: err}
			}
			records = append(records, recs...)
		}

		unique := dedupe.Records(records)

		batch := model.Batch{
			ID:               w.newID(),
			UserID:           job.UserID,
			BusinessCategory: job.Category,
			Location:         location,
			LeadCount:        len(unique),
			CreatedAt:        w.now().UTC(),
		}
		err := resilience.Do(ctx, w.cfg.PersistRetry, func(ctx context.Context) error {
			return w.store.CreateBatch(ctx, batch)
		})
		if err != nil {
			return nil, &PersistenceError{Op: "batch", Location: location, Err: err}
		}

		leads := make([]model.Lead, len(unique))
		for i, rec := range unique {
			lead := model.NewLeadFromRecord(rec, w.newID(), job.UserID, batch.ID, batch.CreatedAt)
			comps := address.Parse(rec.Address)
			lead.Street = comps.Street
			lead.Unit = comps.Unit
			lead.City = comps.City
			lead.State = comps.State
			lead.Zip = comps.Zip
			leads[i] = lead
		}
		err = resilience.Do(ctx, w.cfg.PersistRetry, func(ctx context.Context) error {
			return w.store.InsertLeads(ctx, leads)
		})
		if err != nil {
			return nil, &PersistenceError{Op: "leads", Location: location, Err: err}
		}

		result.BatchIDs = append(result.BatchIDs, batch.ID)
		result.LeadCount += len(unique)
	}

	return result, nil
}
