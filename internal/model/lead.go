// Package model defines the entities shared across the scrape pipeline:
// jobs, batches, leads, and the canonical business record returned by the
// search provider.
package model

import "time"

// EnrichmentStatus tracks a lead through the enrichment waterfall.
type EnrichmentStatus string

const (
	EnrichmentPending    EnrichmentStatus = "pending"
	EnrichmentInProgress EnrichmentStatus = "in_progress"
	EnrichmentEnriched   EnrichmentStatus = "enriched"
	EnrichmentFailed     EnrichmentStatus = "failed"
)

// CanonicalRecord is a normalized business listing returned by the search
// provider, independent of the provider's native response shape. The
// location/page/query fields are carried for traceability back to the
// request that produced the record.
type CanonicalRecord struct {
	BusinessName    string   `json:"business_name"`
	Address         string   `json:"address"`
	Phone           string   `json:"phone"`
	Website         string   `json:"website"`
	Category        string   `json:"category"`
	AverageRating   *float64 `json:"average_rating"`
	NumberOfReviews *int     `json:"number_of_reviews"`
	MapsURL         string   `json:"google_maps_url"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`

	Location    string `json:"location"`
	Page        int    `json:"page"`
	QuerySource string `json:"query_source"`
	JobID       string `json:"job_id,omitempty"`
}

// Batch is the set of deduplicated leads produced for one location within
// one job. LeadCount is fixed at creation time, after deduplication, and is
// never updated afterwards.
type Batch struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	BusinessCategory string    `json:"business_category"`
	Location         string    `json:"location"`
	LeadCount        int       `json:"lead_count"`
	CreatedAt        time.Time `json:"created_at"`
}

// Lead is a single deduplicated business listing with derived address
// components and enrichment state.
type Lead struct {
	ID      string `json:"id"`
	UserID  string `json:"user_id"`
	BatchID string `json:"batch_id"`

	BusinessName    string   `json:"business_name"`
	Address         string   `json:"address"`
	Street          string   `json:"street"`
	Unit            string   `json:"unit,omitempty"`
	City            string   `json:"city"`
	State           string   `json:"state"`
	Zip             string   `json:"zip"`
	Phone           string   `json:"phone"`
	Website         string   `json:"website"`
	Category        string   `json:"category"`
	AverageRating   *float64 `json:"average_rating"`
	NumberOfReviews *int     `json:"number_of_reviews"`
	MapsURL         string   `json:"google_maps_url"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`

	EnrichmentStatus EnrichmentStatus `json:"enrichment_status"`
	OwnerName        string           `json:"owner_name,omitempty"`
	OwnerConfidence  float64          `json:"owner_confidence,omitempty"`
	OwnerReasoning   string           `json:"owner_reasoning,omitempty"`
	OwnerSteps       []string         `json:"owner_steps,omitempty"`
	OwnerSource      string           `json:"owner_source,omitempty"`
	Email            string           `json:"email,omitempty"`
	EmailVerified    bool             `json:"email_verified"`
	LinkedInURL      string           `json:"linkedin_url,omitempty"`
	FacebookURL      string           `json:"facebook_url,omitempty"`
	InstagramURL     string           `json:"instagram_url,omitempty"`

	SyncStatus string     `json:"sync_status"`
	CreatedAt  time.Time  `json:"created_at"`
	ExportedAt *time.Time `json:"exported_at,omitempty"`
}

// NewLeadFromRecord builds a Lead from a canonical record, tagged with the
// batch it belongs to. Enrichment and sync state start out pending.
func NewLeadFromRecord(rec CanonicalRecord, id, userID, batchID string, now time.Time) Lead {
	return Lead{
		ID:               id,
		UserID:           userID,
		BatchID:          batchID,
		BusinessName:     rec.BusinessName,
		Address:          rec.Address,
		Phone:            rec.Phone,
		Website:          rec.Website,
		Category:         rec.Category,
		AverageRating:    rec.AverageRating,
		NumberOfReviews:  rec.NumberOfReviews,
		MapsURL:          rec.MapsURL,
		Latitude:         rec.Latitude,
		Longitude:        rec.Longitude,
		EnrichmentStatus: EnrichmentPending,
		SyncStatus:       "pending",
		CreatedAt:        now,
	}
}
