package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/person/enrich", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req LookupRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "blueparrot.com", req.Domain)

		_ = json.NewEncoder(w).Encode(Person{
			FullName:    "Jane Smith",
			Email:       "jane@blueparrot.com",
			Confidence:  0.95,
			LinkedInURL: "https://linkedin.com/in/janesmith",
		})
	}))
	defer srv.Close()

	c := NewClient("prospeo", srv.URL, "test-key")
	assert.Equal(t, "prospeo", c.Name())

	p, err := c.Lookup(context.Background(), LookupRequest{Domain: "blueparrot.com", BusinessName: "Blue Parrot"})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Jane Smith", p.FullName)
	assert.Equal(t, 0.95, p.Confidence)
}

func TestLookup_NotFoundIsNilNoError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no match", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient("kitt", srv.URL, "test-key")
	p, err := c.Lookup(context.Background(), LookupRequest{Domain: "unknown.example"})
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestLookup_EmptyResultIsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient("leadmagic", srv.URL, "test-key")
	p, err := c.Lookup(context.Background(), LookupRequest{Domain: "blueparrot.com"})
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestLookup_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "out of credits", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	c := NewClient("dropcontact", srv.URL, "test-key")
	_, err := c.Lookup(context.Background(), LookupRequest{Domain: "blueparrot.com"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "dropcontact", apiErr.Provider)
	assert.Equal(t, http.StatusPaymentRequired, apiErr.StatusCode)
}
