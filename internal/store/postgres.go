package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen/internal/db"
	"github.com/sells-group/leadgen/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// the hot paths: the worker's claim cycle and status updates.
var preparedStatements = map[string]string{
	"insert_job":   `INSERT INTO scrape_jobs (id, user_id, category, cities, pages, status, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"claim_job":    `UPDATE scrape_jobs SET status = 'processing' WHERE id = $1 AND status = 'pending'`,
	"fail_job":     `UPDATE scrape_jobs SET status = 'failed', error = $1 WHERE id = $2 AND status = 'processing'`,
	"complete_job": `UPDATE scrape_jobs SET status = 'completed', result = $1 WHERE id = $2 AND status = 'processing'`,
	"get_job":      `SELECT id, user_id, category, cities, pages, status, error, result, created_at FROM scrape_jobs WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	email      TEXT,
	credits    INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scrape_jobs (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users(id),
	category   TEXT NOT NULL,
	cities     JSONB NOT NULL,
	pages      JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	error      TEXT,
	result     JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_scrape_jobs_status_created ON scrape_jobs(status, created_at);
CREATE INDEX IF NOT EXISTS idx_scrape_jobs_user ON scrape_jobs(user_id);

CREATE TABLE IF NOT EXISTS batches (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL REFERENCES users(id),
	business_category TEXT NOT NULL,
	location          TEXT NOT NULL,
	lead_count        INTEGER NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_batches_user ON batches(user_id);

CREATE TABLE IF NOT EXISTS leads (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL REFERENCES users(id),
	batch_id          TEXT NOT NULL REFERENCES batches(id),
	business_name     TEXT NOT NULL,
	address           TEXT NOT NULL DEFAULT '',
	street            TEXT NOT NULL DEFAULT '',
	unit              TEXT NOT NULL DEFAULT '',
	city              TEXT NOT NULL DEFAULT '',
	state             TEXT NOT NULL DEFAULT '',
	zip               TEXT NOT NULL DEFAULT '',
	phone             TEXT NOT NULL DEFAULT '',
	website           TEXT NOT NULL DEFAULT '',
	category          TEXT NOT NULL DEFAULT '',
	average_rating    DOUBLE PRECISION,
	number_of_reviews INTEGER,
	google_maps_url   TEXT NOT NULL DEFAULT '',
	latitude          DOUBLE PRECISION,
	longitude         DOUBLE PRECISION,
	enrichment_status TEXT NOT NULL DEFAULT 'pending',
	owner_name        TEXT NOT NULL DEFAULT '',
	owner_confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
	owner_reasoning   TEXT NOT NULL DEFAULT '',
	owner_steps       JSONB,
	owner_source      TEXT NOT NULL DEFAULT '',
	email             TEXT NOT NULL DEFAULT '',
	email_verified    BOOLEAN NOT NULL DEFAULT false,
	linkedin_url      TEXT NOT NULL DEFAULT '',
	facebook_url      TEXT NOT NULL DEFAULT '',
	instagram_url     TEXT NOT NULL DEFAULT '',
	sync_status       TEXT NOT NULL DEFAULT 'pending',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	exported_at       TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_leads_batch ON leads(batch_id);
CREATE INDEX IF NOT EXISTS idx_leads_user ON leads(user_id);
CREATE INDEX IF NOT EXISTS idx_leads_enrichment_status ON leads(enrichment_status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) EnqueueJob(ctx context.Context, userID string, req model.ScrapeRequest) (*model.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	citiesJSON, err := json.Marshal(req.Locations)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal cities")
	}
	pagesJSON, err := json.Marshal(req.Pages)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal pages")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO scrape_jobs (id, user_id, category, cities, pages, status, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, userID, req.Category, citiesJSON, pagesJSON, string(model.JobStatusPending), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}

	return &model.Job{
		ID:        id,
		UserID:    userID,
		Category:  req.Category,
		Locations: req.Locations,
		Pages:     req.Pages,
		Status:    model.JobStatusPending,
		CreatedAt: now,
	}, nil
}

// ClaimNextJob moves the oldest pending job to processing and returns it.
// SKIP LOCKED keeps concurrent workers from blocking on or double-claiming
// the same row. Returns (nil, nil) when the queue is empty.
func (s *PostgresStore) ClaimNextJob(ctx context.Context) (*model.Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE scrape_jobs SET status = 'processing'
		WHERE id = (
			SELECT id FROM scrape_jobs
			WHERE status = 'pending'
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, user_id, category, cities, pages, status, error, result, created_at`,
	)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: claim next job")
	}
	return job, nil
}

// ClaimJob transitions one job from pending to processing. Exactly one
// concurrent claimer succeeds; the rest get ErrAlreadyClaimed.
func (s *PostgresStore) ClaimJob(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE scrape_jobs SET status = 'processing' WHERE id = $1 AND status = 'pending'`,
		jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: claim job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyClaimed
	}
	return nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, jobID string, result *model.JobResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE scrape_jobs SET status = 'completed', result = $1 WHERE id = $2 AND status = 'processing'`,
		resultJSON, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FailJob(ctx context.Context, jobID string, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE scrape_jobs SET status = 'failed', error = $1 WHERE id = $2 AND status = 'processing'`,
		errMsg, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, category, cities, pages, status, error, result, created_at FROM scrape_jobs WHERE id = $1`,
		jobID,
	)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}
	return job, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT id, user_id, category, cities, pages, status, error, result, created_at FROM scrape_jobs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.UserID != "" {
		query += fmt.Sprintf(` AND user_id = $%d`, argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs rows")
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var citiesJSON, pagesJSON []byte
	var errMsg *string
	var resultJSON *[]byte

	if err := row.Scan(&j.ID, &j.UserID, &j.Category, &citiesJSON, &pagesJSON, &j.Status, &errMsg, &resultJSON, &j.CreatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(citiesJSON, &j.Locations); err != nil {
		return nil, eris.Wrap(err, "unmarshal cities")
	}
	if err := json.Unmarshal(pagesJSON, &j.Pages); err != nil {
		return nil, eris.Wrap(err, "unmarshal pages")
	}
	if errMsg != nil {
		j.Error = *errMsg
	}
	if resultJSON != nil {
		j.Result = &model.JobResult{}
		if err := json.Unmarshal(*resultJSON, j.Result); err != nil {
			return nil, eris.Wrap(err, "unmarshal result")
		}
	}
	return &j, nil
}

func (s *PostgresStore) CreateBatch(ctx context.Context, batch model.Batch) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO batches (id, user_id, business_category, location, lead_count, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		batch.ID, batch.UserID, batch.BusinessCategory, batch.Location, batch.LeadCount, batch.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert batch %s", batch.ID)
}

var leadColumns = []string{
	"id", "user_id", "batch_id", "business_name", "address", "street", "unit",
	"city", "state", "zip", "phone", "website", "category", "average_rating",
	"number_of_reviews", "google_maps_url", "latitude", "longitude",
	"enrichment_status", "sync_status", "created_at",
}

// InsertLeads bulk-inserts leads via the COPY protocol.
func (s *PostgresStore) InsertLeads(ctx context.Context, leads []model.Lead) error {
	rows := make([][]any, len(leads))
	for i, l := range leads {
		rows[i] = []any{
			l.ID, l.UserID, l.BatchID, l.BusinessName, l.Address, l.Street, l.Unit,
			l.City, l.State, l.Zip, l.Phone, l.Website, l.Category, l.AverageRating,
			l.NumberOfReviews, l.MapsURL, l.Latitude, l.Longitude,
			string(l.EnrichmentStatus), l.SyncStatus, l.CreatedAt,
		}
	}
	_, err := db.CopyFrom(ctx, s.pool, "leads", leadColumns, rows)
	return eris.Wrap(err, "postgres: insert leads")
}

const leadSelect = `SELECT id, user_id, batch_id, business_name, address, street, unit, city, state, zip,
	phone, website, category, average_rating, number_of_reviews, google_maps_url, latitude, longitude,
	enrichment_status, owner_name, owner_confidence, owner_reasoning, owner_steps, owner_source,
	email, email_verified, linkedin_url, facebook_url, instagram_url, sync_status, created_at, exported_at
	FROM leads WHERE id = $1`

func (s *PostgresStore) GetLead(ctx context.Context, leadID string) (*model.Lead, error) {
	var l model.Lead
	var stepsJSON *[]byte

	err := s.pool.QueryRow(ctx, leadSelect, leadID).Scan(
		&l.ID, &l.UserID, &l.BatchID, &l.BusinessName, &l.Address, &l.Street, &l.Unit,
		&l.City, &l.State, &l.Zip, &l.Phone, &l.Website, &l.Category,
		&l.AverageRating, &l.NumberOfReviews, &l.MapsURL, &l.Latitude, &l.Longitude,
		&l.EnrichmentStatus, &l.OwnerName, &l.OwnerConfidence, &l.OwnerReasoning, &stepsJSON, &l.OwnerSource,
		&l.Email, &l.EmailVerified, &l.LinkedInURL, &l.FacebookURL, &l.InstagramURL,
		&l.SyncStatus, &l.CreatedAt, &l.ExportedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lead %s", leadID)
	}

	if stepsJSON != nil {
		if err := json.Unmarshal(*stepsJSON, &l.OwnerSteps); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal owner steps")
		}
	}
	return &l, nil
}

func (s *PostgresStore) SetLeadEnrichmentStatus(ctx context.Context, leadID string, status model.EnrichmentStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET enrichment_status = $1 WHERE id = $2`,
		string(status), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set enrichment status %s", leadID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateLeadEnrichment(ctx context.Context, lead *model.Lead) error {
	stepsJSON, err := json.Marshal(lead.OwnerSteps)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal owner steps")
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE leads SET enrichment_status = $1, owner_name = $2, owner_confidence = $3,
			owner_reasoning = $4, owner_steps = $5, owner_source = $6,
			email = $7, email_verified = $8, linkedin_url = $9, facebook_url = $10, instagram_url = $11
		WHERE id = $12`,
		string(lead.EnrichmentStatus), lead.OwnerName, lead.OwnerConfidence,
		lead.OwnerReasoning, stepsJSON, lead.OwnerSource,
		lead.Email, lead.EmailVerified, lead.LinkedInURL, lead.FacebookURL, lead.InstagramURL,
		lead.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update lead enrichment %s", lead.ID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkLeadsExported(ctx context.Context, leadIDs []string) (int, error) {
	if len(leadIDs) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET exported_at = now() WHERE id = ANY($1) AND exported_at IS NULL`,
		leadIDs,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: mark leads exported")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) EnsureUser(ctx context.Context, userID, email string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email) VALUES ($1, $2) ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email`,
		userID, email,
	)
	return eris.Wrapf(err, "postgres: ensure user %s", userID)
}

func (s *PostgresStore) GetCreditBalance(ctx context.Context, userID string) (int, error) {
	var balance int
	err := s.pool.QueryRow(ctx, `SELECT credits FROM users WHERE id = $1`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: get credit balance %s", userID)
	}
	return balance, nil
}

func (s *PostgresStore) GrantCredits(ctx context.Context, userID string, amount int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET credits = credits + $1 WHERE id = $2`,
		amount, userID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: grant credits %s", userID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeductCredits decrements the balance in a single conditional UPDATE so
// concurrent enrichments for the same user cannot lose updates or drive the
// balance negative.
func (s *PostgresStore) DeductCredits(ctx context.Context, userID string, amount int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET credits = credits - $1 WHERE id = $2 AND credits >= $1`,
		amount, userID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: deduct credits %s", userID)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientCredits
	}
	return nil
}
