// Package millionverifier wraps the MillionVerifier email verification API.
package millionverifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.millionverifier.com"

// Client verifies deliverability of email addresses.
type Client interface {
	Verify(ctx context.Context, email string) (bool, error)
	VerifyAll(ctx context.Context, emails []string) (map[string]bool, error)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a MillionVerifier client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type verifyResponse struct {
	Status string `json:"status"`
}

// Verify checks a single address. Only "ok" and "good" results count as
// verified; any other status, including unknown, is treated as unverified.
func (c *httpClient) Verify(ctx context.Context, email string) (bool, error) {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("email", email)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/v2/email/verify?%s", c.baseURL, q.Encode()), nil)
	if err != nil {
		return false, eris.Wrap(err, "millionverifier: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, eris.Wrap(err, "millionverifier: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, eris.Wrap(err, "millionverifier: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return false, eris.Errorf("millionverifier: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result verifyResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return false, eris.Wrap(err, "millionverifier: unmarshal response")
	}
	return result.Status == "ok" || result.Status == "good", nil
}

// VerifyAll verifies a set of addresses sequentially and returns the
// per-address outcome. The first request error aborts the sweep.
func (c *httpClient) VerifyAll(ctx context.Context, emails []string) (map[string]bool, error) {
	out := make(map[string]bool, len(emails))
	for _, email := range emails {
		ok, err := c.Verify(ctx, email)
		if err != nil {
			return out, eris.Wrapf(err, "millionverifier: bulk verify %s", email)
		}
		out[email] = ok
	}
	return out, nil
}
