// Package scrape runs one-off interactive scrapes. Unlike the queued
// worker path, nothing is persisted and all (location, page) calls fan
// out concurrently; any single failure fails the whole request.
package scrape

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadgen/internal/dedupe"
	"github.com/sells-group/leadgen/internal/model"
	"github.com/sells-group/leadgen/internal/resilience"
	"github.com/sells-group/leadgen/pkg/serper"
)

// LocationResult holds the deduplicated records for one location, in
// first-seen page order.
type LocationResult struct {
	Location string                  `json:"location"`
	Records  []model.CanonicalRecord `json:"records"`
}

// Service fans scrape requests out to the search provider.
type Service struct {
	search      serper.Client
	retry       resilience.RetryConfig
	concurrency int
}

// Option configures a Service.
type Option func(*Service)

// WithRetry overrides the per-call retry budget. The default is 3 attempts
// with a fixed 1s delay.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(s *Service) { s.retry = cfg }
}

// WithConcurrency caps in-flight provider calls.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewService creates an interactive scrape service.
func NewService(search serper.Client, opts ...Option) *Service {
	s := &Service{
		search:      search,
		retry:       resilience.Fixed(3, 0),
		concurrency: 8,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run validates the request, queries every (location, page) pair
// concurrently, and returns per-location deduplicated records in the
// request's location order. The first provider error cancels the
// remaining calls and fails the whole run.
func (s *Service) Run(ctx context.Context, req model.ScrapeRequest) ([]LocationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	log := zap.L().With(
		zap.String("component", "scrape"),
		zap.String("category", req.Category),
	)
	log.Info("interactive scrape",
		zap.Int("locations", len(req.Locations)),
		zap.Int("pages", len(req.Pages)),
	)

	// One slot per (location, page) pair; each goroutine writes only its
	// own slot, so no lock is needed.
	slots := make([][]model.CanonicalRecord, len(req.Locations)*len(req.Pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for li, location := range req.Locations {
		for pi, page := range req.Pages {
			slot := li*len(req.Pages) + pi
			q := serper.Query{Category: req.Category, Location: location, Page: page}
			g.Go(func() error {
				recs, err := s.search.Search(gctx, q, s.retry)
				if err != nil {
					return err
				}
				slots[slot] = recs
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]LocationResult, len(req.Locations))
	for li, location := range req.Locations {
		var records []model.CanonicalRecord
		for pi := range req.Pages {
			records = append(records, slots[li*len(req.Pages)+pi]...)
		}
		results[li] = LocationResult{
			Location: location,
			Records:  dedupe.Records(records),
		}
	}

	total := 0
	for _, r := range results {
		total += len(r.Records)
	}
	log.Info("interactive scrape complete", zap.Int("records", total))
	return results, nil
}
