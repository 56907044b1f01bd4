package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadgen/internal/model"
)

// SQLiteStore implements Store on a local SQLite file. It is the default
// backend for single-machine setups and for tests that want a real database
// without a Postgres server.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (and creates if needed) a SQLite database at path.
// Use ":memory:" for an ephemeral database.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: open %s", path)
	}

	// The sqlite driver serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent claim attempts.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: %s", p)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	email      TEXT,
	credits    INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);

CREATE TABLE IF NOT EXISTS scrape_jobs (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users(id),
	category   TEXT NOT NULL,
	cities     TEXT NOT NULL,
	pages      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	error      TEXT,
	result     TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scrape_jobs_status_created ON scrape_jobs(status, created_at);

CREATE TABLE IF NOT EXISTS batches (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL REFERENCES users(id),
	business_category TEXT NOT NULL,
	location          TEXT NOT NULL,
	lead_count        INTEGER NOT NULL,
	created_at        TEXT NOT NULL
);

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
	average_rating    REAL,
	number_of_reviews INTEGER,
	google_maps_url   TEXT NOT NULL DEFAULT '',
	latitude          REAL,
	longitude         REAL,
	enrichment_status TEXT NOT NULL DEFAULT 'pending',
	owner_name        TEXT NOT NULL DEFAULT '',
	owner_confidence  REAL NOT NULL DEFAULT 0,
	owner_reasoning   TEXT NOT NULL DEFAULT '',
	owner_steps       TEXT,
	owner_source      TEXT NOT NULL DEFAULT '',
	email             TEXT NOT NULL DEFAULT '',
	email_verified    INTEGER NOT NULL DEFAULT 0,
	linkedin_url      TEXT NOT NULL DEFAULT '',
	facebook_url      TEXT NOT NULL DEFAULT '',
	instagram_url     TEXT NOT NULL DEFAULT '',
	sync_status       TEXT NOT NULL DEFAULT 'pending',
	created_at        TEXT NOT NULL,
	exported_at       TEXT
);

CREATE INDEX IF NOT EXISTS idx_leads_batch ON leads(batch_id);
CREATE INDEX IF NOT EXISTS idx_leads_enrichment_status ON leads(enrichment_status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, v)
}

func (s *SQLiteStore) EnqueueJob(ctx context.Context, userID string, req model.ScrapeRequest) (*model.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	citiesJSON, err := json.Marshal(req.Locations)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal cities")
	}
	pagesJSON, err := json.Marshal(req.Pages)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal pages")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scrape_jobs (id, user_id, category, cities, pages, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, userID, req.Category, string(citiesJSON), string(pagesJSON), string(model.JobStatusPending), formatTime(now),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
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

// ClaimNextJob selects the oldest pending job and flips it to processing
// inside one immediate transaction, so concurrent workers cannot claim the
// same job twice.
func (s *SQLiteStore) ClaimNextJob(ctx context.Context) (*model.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin claim tx")
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT id, user_id, category, cities, pages, status, error, result, created_at
		 FROM scrape_jobs WHERE status = 'pending' ORDER BY created_at ASC LIMIT 1`,
	)
	job, err := scanSQLiteJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: claim next job")
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE scrape_jobs SET status = 'processing' WHERE id = ? AND status = 'pending'`,
		job.ID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: claim next job update")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit claim")
	}

	job.Status = model.JobStatusProcessing
	return job, nil
}

func (s *SQLiteStore) ClaimJob(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scrape_jobs SET status = 'processing' WHERE id = ? AND status = 'pending'`,
		jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: claim job %s", jobID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlreadyClaimed
	}
	return nil
}

func (s *SQLiteStore) CompleteJob(ctx context.Context, jobID string, result *model.JobResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE scrape_jobs SET status = 'completed', result = ? WHERE id = ? AND status = 'processing'`,
		string(resultJSON), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete job %s", jobID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) FailJob(ctx context.Context, jobID string, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scrape_jobs SET status = 'failed', error = ? WHERE id = ? AND status = 'processing'`,
		errMsg, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail job %s", jobID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, category, cities, pages, status, error, result, created_at FROM scrape_jobs WHERE id = ?`,
		jobID,
	)
	job, err := scanSQLiteJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", jobID)
	}
	return job, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT id, user_id, category, cities, pages, status, error, result, created_at FROM scrape_jobs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		job, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs rows")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteJob(row rowScanner) (*model.Job, error) {
	var j model.Job
	var cities, pages, status, createdAt string
	var errMsg, result sql.NullString

	if err := row.Scan(&j.ID, &j.UserID, &j.Category, &cities, &pages, &status, &errMsg, &result, &createdAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(cities), &j.Locations); err != nil {
		return nil, eris.Wrap(err, "unmarshal cities")
	}
	if err := json.Unmarshal([]byte(pages), &j.Pages); err != nil {
		return nil, eris.Wrap(err, "unmarshal pages")
	}
	j.Status = model.JobStatus(status)
	if errMsg.Valid {
		j.Error = errMsg.String
	}
	if result.Valid && result.String != "" {
		j.Result = &model.JobResult{}
		if err := json.Unmarshal([]byte(result.String), j.Result); err != nil {
			return nil, eris.Wrap(err, "unmarshal result")
		}
	}

	t, err := parseTime(createdAt)
	if err != nil {
		return nil, eris.Wrap(err, "parse created_at")
	}
	j.CreatedAt = t
	return &j, nil
}

func (s *SQLiteStore) CreateBatch(ctx context.Context, batch model.Batch) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batches (id, user_id, business_category, location, lead_count, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		batch.ID, batch.UserID, batch.BusinessCategory, batch.Location, batch.LeadCount, formatTime(batch.CreatedAt),
	)
	return eris.Wrapf(err, "sqlite: insert batch %s", batch.ID)
}

func (s *SQLiteStore) InsertLeads(ctx context.Context, leads []model.Lead) error {
	if len(leads) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert leads")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO leads (
		id, user_id, batch_id, business_name, address, street, unit, city, state, zip,
		phone, website, category, average_rating, number_of_reviews, google_maps_url,
		latitude, longitude, enrichment_status, sync_status, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert lead")
	}
	defer stmt.Close()

	for _, l := range leads {
		_, err := stmt.ExecContext(ctx,
			l.ID, l.UserID, l.BatchID, l.BusinessName, l.Address, l.Street, l.Unit,
			l.City, l.State, l.Zip, l.Phone, l.Website, l.Category,
			l.AverageRating, l.NumberOfReviews, l.MapsURL, l.Latitude, l.Longitude,
			string(l.EnrichmentStatus), l.SyncStatus, formatTime(l.CreatedAt),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert lead %s", l.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit insert leads")
}

func (s *SQLiteStore) GetLead(ctx context.Context, leadID string) (*model.Lead, error) {
	var l model.Lead
	var status string
	var steps, exportedAt sql.NullString
	var createdAt string
	var emailVerified int

	err := s.db.QueryRowContext(ctx, `SELECT id, user_id, batch_id, business_name, address, street, unit, city, state, zip,
		phone, website, category, average_rating, number_of_reviews, google_maps_url, latitude, longitude,
		enrichment_status, owner_name, owner_confidence, owner_reasoning, owner_steps, owner_source,
		email, email_verified, linkedin_url, facebook_url, instagram_url, sync_status, created_at, exported_at
		FROM leads WHERE id = ?`, leadID).Scan(
		&l.ID, &l.UserID, &l.BatchID, &l.BusinessName, &l.Address, &l.Street, &l.Unit,
		&l.City, &l.State, &l.Zip, &l.Phone, &l.Website, &l.Category,
		&l.AverageRating, &l.NumberOfReviews, &l.MapsURL, &l.Latitude, &l.Longitude,
		&status, &l.OwnerName, &l.OwnerConfidence, &l.OwnerReasoning, &steps, &l.OwnerSource,
		&l.Email, &emailVerified, &l.LinkedInURL, &l.FacebookURL, &l.InstagramURL,
		&l.SyncStatus, &createdAt, &exportedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lead %s", leadID)
	}

	l.EnrichmentStatus = model.EnrichmentStatus(status)
	l.EmailVerified = emailVerified != 0
	if steps.Valid && steps.String != "" {
		if err := json.Unmarshal([]byte(steps.String), &l.OwnerSteps); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal owner steps")
		}
	}
	if l.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, eris.Wrap(err, "sqlite: parse created_at")
	}
	if exportedAt.Valid {
		t, err := parseTime(exportedAt.String)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: parse exported_at")
		}
		l.ExportedAt = &t
	}
	return &l, nil
}

func (s *SQLiteStore) SetLeadEnrichmentStatus(ctx context.Context, leadID string, status model.EnrichmentStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET enrichment_status = ? WHERE id = ?`,
		string(status), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set enrichment status %s", leadID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) UpdateLeadEnrichment(ctx context.Context, lead *model.Lead) error {
	stepsJSON, err := json.Marshal(lead.OwnerSteps)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal owner steps")
	}
	verified := 0
	if lead.EmailVerified {
		verified = 1
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE leads SET enrichment_status = ?, owner_name = ?, owner_confidence = ?,
			owner_reasoning = ?, owner_steps = ?, owner_source = ?,
			email = ?, email_verified = ?, linkedin_url = ?, facebook_url = ?, instagram_url = ?
		WHERE id = ?`,
		string(lead.EnrichmentStatus), lead.OwnerName, lead.OwnerConfidence,
		lead.OwnerReasoning, string(stepsJSON), lead.OwnerSource,
		lead.Email, verified, lead.LinkedInURL, lead.FacebookURL, lead.InstagramURL,
		lead.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update lead enrichment %s", lead.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) MarkLeadsExported(ctx context.Context, leadIDs []string) (int, error) {
	if len(leadIDs) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(leadIDs))
	args := make([]any, 0, len(leadIDs)+1)
	args = append(args, formatTime(time.Now().UTC()))
	for i, id := range leadIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := fmt.Sprintf(
		`UPDATE leads SET exported_at = ? WHERE id IN (%s) AND exported_at IS NULL`,
		strings.Join(placeholders, ", "),
	)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: mark leads exported")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) EnsureUser(ctx context.Context, userID, email string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, created_at) VALUES (?, ?, ?) ON CONFLICT (id) DO UPDATE SET email = excluded.email`,
		userID, email, formatTime(time.Now().UTC()),
	)
	return eris.Wrapf(err, "sqlite: ensure user %s", userID)
}

func (s *SQLiteStore) GetCreditBalance(ctx context.Context, userID string) (int, error) {
	var balance int
	err := s.db.QueryRowContext(ctx, `SELECT credits FROM users WHERE id = ?`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: get credit balance %s", userID)
	}
	return balance, nil
}

func (s *SQLiteStore) GrantCredits(ctx context.Context, userID string, amount int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET credits = credits + ? WHERE id = ?`,
		amount, userID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: grant credits %s", userID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeductCredits(ctx context.Context, userID string, amount int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET credits = credits - ? WHERE id = ? AND credits >= ?`,
		amount, userID, amount,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: deduct credits %s", userID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrInsufficientCredits
	}
	return nil
}
