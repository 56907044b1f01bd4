package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen/internal/enrich"
	"github.com/sells-group/leadgen/internal/model"
	"github.com/sells-group/leadgen/internal/resilience"
	"github.com/sells-group/leadgen/internal/scrape"
	"github.com/sells-group/leadgen/internal/store"
	"github.com/sells-group/leadgen/pkg/serper"
)

type stubSearch struct {
	records map[string][]model.CanonicalRecord
}

func (s *stubSearch) Search(ctx context.Context, q serper.Query, _ resilience.RetryConfig) ([]model.CanonicalRecord, error) {
	return s.records[q.Location], nil
}

func newTestAPI(t *testing.T) (*apiServer, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	search := &stubSearch{records: map[string][]model.CanonicalRecord{
		"Austin, TX": {
			{BusinessName: "Blue Cat Coffee", Website: "bluecatcoffee.com"},
			{BusinessName: "Houndstooth", Website: "houndstooth.com"},
		},
	}}

	api := &apiServer{
		store:        st,
		interactive:  scrape.NewService(search),
		orchestrator: enrich.NewOrchestrator(st, st, nil, nil),
		creditCost:   1,
	}
	return api, st
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealthEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := doJSON(t, api.router(), http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestEnqueueAcceptsJob(t *testing.T) {
	api, st := newTestAPI(t)
	rec := doJSON(t, api.router(), http.MethodPost, "/api/scrape", map[string]any{
		"user_id":   "user-1",
		"category":  "Coffee Shop",
		"locations": []string{"Austin, TX"},
		"pages":     []int{1},
	})

	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decode[map[string]string](t, rec)
	assert.NotEmpty(t, resp["job_id"])
	assert.Equal(t, "pending", resp["status"])

	job, err := st.GetJob(context.Background(), resp["job_id"])
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, job.Status)
	assert.Equal(t, "user-1", job.UserID)
}

func TestEnqueueRejectsTooManyLocations(t *testing.T) {
	api, st := newTestAPI(t)

	locations := make([]string, 26)
	for i := range locations {
		locations[i] = fmt.Sprintf("City %d, TX", i)
	}
	rec := doJSON(t, api.router(), http.MethodPost, "/api/scrape", map[string]any{
		"user_id":   "user-1",
		"category":  "Coffee Shop",
		"locations": locations,
		"pages":     []int{1},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "locations")

	// Rejected before any job row was written.
	jobs, err := st.ListJobs(context.Background(), store.JobFilter{})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestEnqueueRequiresUserID(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := doJSON(t, api.router(), http.MethodPost, "/api/scrape", map[string]any{
		"category":  "Coffee Shop",
		"locations": []string{"Austin, TX"},
		"pages":     []int{1},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "user_id")
}

func TestJobStatusLifecycle(t *testing.T) {
	api, st := newTestAPI(t)
	ctx := context.Background()
	require.NoError(t, st.EnsureUser(ctx, "user-1", ""))
	job, err := st.EnqueueJob(ctx, "user-1", model.ScrapeRequest{
		Category:  "Coffee Shop",
		Locations: []string{"Austin, TX"},
		Pages:     []int{1},
	})
	require.NoError(t, err)

	rec := doJSON(t, api.router(), http.MethodGet, "/api/job-status?jobId="+job.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[jobStatusResponse](t, rec)
	assert.Equal(t, model.JobStatusPending, resp.Status)
	assert.Nil(t, resp.Result)

	require.NoError(t, st.ClaimJob(ctx, job.ID))
	require.NoError(t, st.CompleteJob(ctx, job.ID, &model.JobResult{BatchIDs: []string{"b-1"}, LeadCount: 2}))

	rec = doJSON(t, api.router(), http.MethodGet, "/api/job-status?jobId="+job.ID, nil)
	resp = decode[jobStatusResponse](t, rec)
	assert.Equal(t, model.JobStatusCompleted, resp.Status)
	require.NotNil(t, resp.Result)
	assert.Equal(t, 2, resp.Result.LeadCount)
}

func TestJobStatusNotFound(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := doJSON(t, api.router(), http.MethodGet, "/api/job-status?jobId=missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInteractiveScrape(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := doJSON(t, api.router(), http.MethodPost, "/api/scrape/run", map[string]any{
		"category":  "Coffee Shop",
		"locations": []string{"Austin, TX"},
		"pages":     []int{1},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Results []scrape.LocationResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Len(t, resp.Results[0].Records, 2)
}

func TestCreditsEndpoint(t *testing.T) {
	api, st := newTestAPI(t)
	ctx := context.Background()
	require.NoError(t, st.EnsureUser(ctx, "user-1", ""))
	require.NoError(t, st.GrantCredits(ctx, "user-1", 7))

	rec := doJSON(t, api.router(), http.MethodGet, "/api/credits?userId=user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, decode[map[string]int](t, rec)["credits"])

	rec = doJSON(t, api.router(), http.MethodGet, "/api/credits?userId=nobody", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnrichEndpoint(t *testing.T) {
	api, st := newTestAPI(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, st.EnsureUser(ctx, "user-1", ""))
	require.NoError(t, st.CreateBatch(ctx, model.Batch{ID: "b-1", UserID: "user-1", BusinessCategory: "c", Location: "l", CreatedAt: now}))
	lead := model.NewLeadFromRecord(model.CanonicalRecord{BusinessName: "Blue Cat Coffee"}, "l-1", "user-1", "b-1", now)
	require.NoError(t, st.InsertLeads(ctx, []model.Lead{lead}))

	// No credits yet.
	rec := doJSON(t, api.router(), http.MethodPost, "/api/enrich", map[string]string{"lead_id": "l-1"})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	require.NoError(t, st.GrantCredits(ctx, "user-1", 5))
	rec = doJSON(t, api.router(), http.MethodPost, "/api/enrich", map[string]string{"lead_id": "l-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := st.GetLead(ctx, "l-1")
	require.NoError(t, err)
	assert.Equal(t, model.EnrichmentEnriched, got.EnrichmentStatus)

	balance, err := st.GetCreditBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 4, balance)
}

func TestEnrichLeadNotFound(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := doJSON(t, api.router(), http.MethodPost, "/api/enrich", map[string]string{"lead_id": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
