// Package serper wraps the Serper.dev maps search API used to discover
// local businesses for a (category, location, page) query.
package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadgen/internal/model"
	"github.com/sells-group/leadgen/internal/resilience"
)

const defaultBaseURL = "https://google.serper.dev"

// Client performs maps searches against Serper.dev.
type Client interface {
	// Search fetches one page of business listings. The retry budget is
	// supplied by the caller so interactive and background paths can choose
	// different aggressiveness; retries are local to one Search call.
	Search(ctx context.Context, q Query, retry resilience.RetryConfig) ([]model.CanonicalRecord, error)
}

// Query identifies one page of a maps search.
type Query struct {
	Category string
	Location string
	Page     int
	JobID    string
}

// String renders the query text sent to the provider, e.g.
// "Coffee Shop in Austin, TX page 2".
func (q Query) String() string {
	s := fmt.Sprintf("%s in %s", q.Category, q.Location)
	if q.Page > 1 {
		s = fmt.Sprintf("%s page %d", s, q.Page)
	}
	return s
}

// APIError is returned when the provider responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("serper: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) { c.baseURL = url }
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithLimiter bounds the request rate against the provider. Each attempt
// waits for a token before sending.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *httpClient) { c.limiter = l }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Serper.dev client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// mapsRequest is the body for POST /maps.
type mapsRequest struct {
	Q     string `json:"q"`
	Limit int    `json:"limit"`
}

// mapsResponse mirrors the provider's native response shape. A missing or
// malformed places array is treated as zero results, not an error.
type mapsResponse struct {
	Places []place `json:"places"`
}

type place struct {
	Title       string   `json:"title"`
	Address     string   `json:"address"`
	PhoneNumber string   `json:"phoneNumber"`
	Website     string   `json:"website"`
	Type        string   `json:"type"`
	Types       []string `json:"types"`
	Rating      *float64 `json:"rating"`
	RatingCount *int     `json:"ratingCount"`
	PlaceID     string   `json:"placeId"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

func (c *httpClient) Search(ctx context.Context, q Query, retry resilience.RetryConfig) ([]model.CanonicalRecord, error) {
	query := q.String()
	body, err := json.Marshal(mapsRequest{Q: query, Limit: 10})
	if err != nil {
		return nil, eris.Wrap(err, "serper: marshal request")
	}

	resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*mapsResponse, error) {
		return c.attempt(ctx, body)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "serper: search %q", query)
	}

	records := make([]model.CanonicalRecord, 0, len(resp.Places))
	for _, p := range resp.Places {
		records = append(records, canonicalize(p, q, query))
	}
	return records, nil
}

// attempt performs a single network call. Any non-2xx response or transport
// error counts as one failed attempt against the retry budget.
func (c *httpClient) attempt(ctx context.Context, body []byte) (*mapsResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "wait for rate limiter")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/maps", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(apiErr, resp.StatusCode)
		}
		return nil, apiErr
	}

	var result mapsResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		// Provider sometimes returns bodies without a usable places array;
		// treat that the same as zero results.
		return &mapsResponse{}, nil
	}
	return &result, nil
}

func canonicalize(p place, q Query, query string) model.CanonicalRecord {
	category := p.Type
	if category == "" && len(p.Types) > 0 {
		category = p.Types[0]
	}
	mapsURL := ""
	if p.PlaceID != "" {
		mapsURL = "https://www.google.com/maps/place/?q=place_id=" + p.PlaceID
	}
	return model.CanonicalRecord{
		BusinessName:    p.Title,
		Address:         p.Address,
		Phone:           p.PhoneNumber,
		Website:         p.Website,
		Category:        category,
		AverageRating:   p.Rating,
		NumberOfReviews: p.RatingCount,
		MapsURL:         mapsURL,
		Latitude:        p.Latitude,
		Longitude:       p.Longitude,
		Location:        q.Location,
		Page:            q.Page,
		QuerySource:     query,
		JobID:           q.JobID,
	}
}
