// Package identity wraps the person-enrichment APIs (Kitt, Prospeo,
// LeadMagic, DropContact) that share a common request shape: look up the
// owner of a business by its website domain.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Client resolves a business domain to its owner's identity.
type Client interface {
	// Name returns the provider identifier, e.g. "prospeo".
	Name() string
	Lookup(ctx context.Context, req LookupRequest) (*Person, error)
}

// LookupRequest identifies the business to resolve.
type LookupRequest struct {
	Domain       string `json:"domain"`
	BusinessName string `json:"business_name,omitempty"`
	Location     string `json:"location,omitempty"`
}

// Person is a resolved owner identity. Confidence is the provider's own
// score in [0,1]; Email may be empty when only a name was found.
type Person struct {
	FullName     string  `json:"full_name"`
	Email        string  `json:"email"`
	Confidence   float64 `json:"confidence"`
	LinkedInURL  string  `json:"linkedin_url"`
	FacebookURL  string  `json:"facebook_url"`
	InstagramURL string  `json:"instagram_url"`
}

// APIError is returned on a non-2xx provider response.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	name    string
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a client for one named provider. The base URL and key
// come from per-provider config; all supported providers answer
// POST /v1/person/enrich with a bearer key.
func NewClient(name, baseURL, apiKey string, opts ...Option) Client {
	c := &httpClient{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Name() string { return c.name }

func (c *httpClient) Lookup(ctx context.Context, lr LookupRequest) (*Person, error) {
	body, err := json.Marshal(lr)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: marshal request", c.name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/person/enrich", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrapf(err, "%s: create request", c.name)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: send request", c.name)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: read response", c.name)
	}
	if resp.StatusCode == http.StatusNotFound {
		// No match for this domain; not an error.
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Provider: c.name, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var p Person
	if err := json.Unmarshal(respBody, &p); err != nil {
		return nil, eris.Wrapf(err, "%s: unmarshal response", c.name)
	}
	if p.FullName == "" && p.Email == "" {
		return nil, nil
	}
	return &p, nil
}
