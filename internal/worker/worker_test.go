package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen/internal/model"
	"github.com/sells-group/leadgen/internal/resilience"
	"github.com/sells-group/leadgen/internal/store"
	"github.com/sells-group/leadgen/pkg/serper"
)

// fakeStore records the writes the worker performs. Unused Store methods
// panic so a test that strays gets a loud failure.
type fakeStore struct {
	store.Store

	pending []*model.Job

	batches   []model.Batch
	leads     []model.Lead
	completed map[string]*model.JobResult
	failed    map[string]string

	batchErr error
	leadErr  error
}

func newFakeStore(jobs ...*model.Job) *fakeStore {
	return &fakeStore{
		pending:   jobs,
		completed: map[string]*model.JobResult{},
		failed:    map[string]string{},
	}
}

func (f *fakeStore) ClaimNextJob(ctx context.Context) (*model.Job, error) {
	if len(f.pending) == 0 {
		return nil, nil
	}
	job := f.pending[0]
	f.pending = f.pending[1:]
	job.Status = model.JobStatusProcessing
	return job, nil
}

func (f *fakeStore) CreateBatch(ctx context.Context, batch model.Batch) error {
	if f.batchErr != nil {
		return f.batchErr
	}
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeStore) InsertLeads(ctx context.Context, leads []model.Lead) error {
	if f.leadErr != nil {
		return f.leadErr
	}
	f.leads = append(f.leads, leads...)
	return nil
}

func (f *fakeStore) CompleteJob(ctx context.Context, jobID string, result *model.JobResult) error {
	f.completed[jobID] = result
	return nil
}

func (f *fakeStore) FailJob(ctx context.Context, jobID string, errMsg string) error {
	f.failed[jobID] = errMsg
	return nil
}

// fakeSearch returns canned records per location and can fail a specific
// location. It records the queries it receives.
type fakeSearch struct {
	records map[string][]model.CanonicalRecord
	failOn  string
	queries []serper.Query
}

func (f *fakeSearch) Search(ctx context.Context, q serper.Query, _ resilience.RetryConfig) ([]model.CanonicalRecord, error) {
	f.queries = append(f.queries, q)
	if q.Location == f.failOn {
		return nil, eris.Errorf("serper: request failed for %q", q.String())
	}
	return f.records[q.Location], nil
}

func rec(name, website, addr string) model.CanonicalRecord {
	return model.CanonicalRecord{BusinessName: name, Website: website, Address: addr}
}

func testJob(locations []string, pages []int) *model.Job {
	return &model.Job{
		ID:        "job-1",
		UserID:    "user-1",
		Category:  "Coffee Shop",
		Locations: locations,
		Pages:     pages,
		Status:    model.JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

func fastRetries() Config {
	return Config{
		PollInterval: time.Millisecond,
		SearchRetry:  resilience.Fixed(1, time.Millisecond),
		PersistRetry: resilience.Fixed(1, time.Millisecond),
	}
}

func TestProcessNextEmptyQueue(t *testing.T) {
	st := newFakeStore()
	w := New(st, &fakeSearch{}, fastRetries())

	processed, err := w.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestExecuteCompletesJobAcrossLocations(t *testing.T) {
	search := &fakeSearch{records: map[string][]model.CanonicalRecord{
		"Austin, TX": {
			rec("Blue Cat Coffee", "bluecatcoffee.com", "1 Congress Ave, Austin, TX 78701"),
			rec("Blue Cat Coffee Shop", "www.bluecatcoffee.com", "1 Congress Ave, Austin, TX 78701"),
			rec("Houndstooth", "houndstooth.com", "4200 N Lamar Blvd, Austin, TX 78756"),
		},
		"Dallas, TX": {
			rec("Ascension", "ascension.com", "1621 Oak Lawn Ave, Dallas, TX 75207"),
			rec("Merit Coffee", "meritcoffee.com", "2639 Main St, Dallas, TX 75226"),
		},
	}}
	st := newFakeStore(testJob([]string{"Austin, TX", "Dallas, TX"}, []int{1}))
	w := New(st, search, fastRetries())

	processed, err := w.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)

	result := st.completed["job-1"]
	require.NotNil(t, result)
	assert.Len(t, result.BatchIDs, 2)
	assert.Equal(t, 4, result.LeadCount)
	assert.Empty(t, st.failed)

	require.Len(t, st.batches, 2)
	assert.Equal(t, "Austin, TX", st.batches[0].Location)
	assert.Equal(t, 2, st.batches[0].LeadCount)
	assert.Equal(t, "Dallas, TX", st.batches[1].Location)
	assert.Equal(t, 2, st.batches[1].LeadCount)

	require.Len(t, st.leads, 4)
	first := st.leads[0]
	assert.Equal(t, "Blue Cat Coffee", first.BusinessName)
	assert.Equal(t, st.batches[0].ID, first.BatchID)
	assert.Equal(t, "1 Congress Ave", first.Street)
	assert.Equal(t, "Austin", first.City)
	assert.Equal(t, "TX", first.State)
	assert.Equal(t, "78701", first.Zip)
	assert.Equal(t, model.EnrichmentPending, first.EnrichmentStatus)
}

func TestExecuteQueriesPagesInOrder(t *testing.T) {
	search := &fakeSearch{records: map[string][]model.CanonicalRecord{}}
	st := newFakeStore(testJob([]string{"Waco, TX"}, []int{1, 2, 3}))
	w := New(st, search, fastRetries())

	_, err := w.ProcessNext(context.Background())
	require.NoError(t, err)

	require.Len(t, search.queries, 3)
	for i, q := range search.queries {
		assert.Equal(t, i+1, q.Page)
		assert.Equal(t, "Waco, TX", q.Location)
		assert.Equal(t, "job-1", q.JobID)
	}
}

func TestExecuteProviderFailureAbortsJob(t *testing.T) {
	search := &fakeSearch{
		records: map[string][]model.CanonicalRecord{
			"Austin, TX": {rec("Blue Cat Coffee", "bluecatcoffee.com", "")},
		},
		failOn: "Dallas, TX",
	}
	st := newFakeStore(testJob([]string{"Austin, TX", "Dallas, TX", "Houston, TX"}, []int{1}))
	w := New(st, search, fastRetries())

	processed, err := w.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)

	// First location's output survives; the failing and later locations
	// produce nothing.
	require.Len(t, st.batches, 1)
	assert.Equal(t, "Austin, TX", st.batches[0].Location)
	assert.Len(t, st.leads, 1)

	errMsg := st.failed["job-1"]
	require.NotEmpty(t, errMsg)
	assert.Contains(t, errMsg, "Dallas, TX")
	assert.Contains(t, errMsg, "page 1")
	assert.Empty(t, st.completed)

	// Houston was never queried.
	for _, q := range search.queries {
		assert.NotEqual(t, "Houston, TX", q.Location)
	}
}

func TestExecuteProviderFailureFirstLocation(t *testing.T) {
	search := &fakeSearch{failOn: "Austin, TX"}
	st := newFakeStore(testJob([]string{"Austin, TX"}, []int{1}))
	w := New(st, search, fastRetries())

	_, err := w.ProcessNext(context.Background())
	require.NoError(t, err)

	assert.Empty(t, st.batches)
	assert.Empty(t, st.leads)
	assert.Contains(t, st.failed["job-1"], `"Austin, TX"`)
}

func TestExecutePersistenceFailureAbortsJob(t *testing.T) {
	search := &fakeSearch{records: map[string][]model.CanonicalRecord{
		"Austin, TX": {rec("Blue Cat Coffee", "bluecatcoffee.com", "")},
	}}
	st := newFakeStore(testJob([]string{"Austin, TX"}, []int{1}))
	st.batchErr = eris.New("pool exhausted")
	w := New(st, search, fastRetries())

	processed, err := w.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)

	errMsg := st.failed["job-1"]
	assert.Contains(t, errMsg, "persist batch")
	assert.Contains(t, errMsg, "Austin, TX")
	assert.Empty(t, st.leads)
}

func TestExecuteZeroResultsStillCompletes(t *testing.T) {
	search := &fakeSearch{records: map[string][]model.CanonicalRecord{}}
	st := newFakeStore(testJob([]string{"Nowhere, TX"}, []int{1}))
	w := New(st, search, fastRetries())

	_, err := w.ProcessNext(context.Background())
	require.NoError(t, err)

	result := st.completed["job-1"]
	require.NotNil(t, result)
	assert.Len(t, result.BatchIDs, 1)
	assert.Zero(t, result.LeadCount)
	require.Len(t, st.batches, 1)
	assert.Zero(t, st.batches[0].LeadCount)
}

func TestProviderErrorMessage(t *testing.T) {
	err := &ProviderError{Location: "Waco, TX", Page: 2, Err: fmt.Errorf("status 503")}
	assert.Equal(t, `search provider failed for "Waco, TX" page 2: status 503`, err.Error())
}

func TestProcessNextAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Migrate(ctx))
	require.NoError(t, st.EnsureUser(ctx, "user-1", "test@example.com"))

	job, err := st.EnqueueJob(ctx, "user-1", model.ScrapeRequest{
		Category:  "Coffee Shop",
		Locations: []string{"Austin, TX"},
		Pages:     []int{1},
	})
	require.NoError(t, err)

	search := &fakeSearch{records: map[string][]model.CanonicalRecord{
		"Austin, TX": {rec("Blue Cat Coffee", "bluecatcoffee.com", "1 Congress Ave, Austin, TX 78701")},
	}}
	w := New(st, search, fastRetries())

	processed, err := w.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, 1, got.Result.LeadCount)
}
