package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sitebrief/llmstxt-crawler/internal/controller"
	"github.com/sitebrief/llmstxt-crawler/internal/crawl"
	storagemem "github.com/sitebrief/llmstxt-crawler/internal/storage/memory"
	storemem "github.com/sitebrief/llmstxt-crawler/internal/store/memory"
)

type stubFetcher struct{}

func (stubFetcher) Fetch(_ context.Context, req crawl.FetchRequest) (crawl.FetchResponse, error) {
	body := `<html><head><title>Home</title></head><body><main><p>Hello.</p></main></body></html>`
	return crawl.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(body)}, nil
}

type stubGenClient struct{ valErr error }

func (c stubGenClient) GenerateJSON(context.Context, string) (string, error) {
	return `[{"title": "Home", "description": "The landing page."}]`, nil
}
func (c stubGenClient) Validate(context.Context) error { return c.valErr }
func (c stubGenClient) Close() error                   { return nil }

func newTestServer(t *testing.T, valErr error) (*Server, *storemem.JobStore) {
	t.Helper()
	store := storemem.NewJobStore()
	ctrl, err := controller.New(controller.Config{}, controller.Deps{
		Store:     store,
		Documents: storagemem.NewDocumentStore(),
		Fetcher:   stubFetcher{},
		Factory: func(context.Context, string) (crawl.GenerationClient, error) {
			return stubGenClient{valErr: valErr}, nil
		},
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)
	return NewServer(ctrl, zap.NewNop(), nil), store
}

func postJSON(t *testing.T, srv *Server, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func get(srv *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestSubmitCrawlAccepted(t *testing.T) {
	srv, store := newTestServer(t, nil)

	rec := postJSON(t, srv, "/v1/crawls", submitCrawlRequest{
		WebsiteURL:   "https://docs.example.com",
		GeminiAPIKey: "secret-key",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	jobID := resp["job_id"]
	require.NotEmpty(t, jobID)
	assert.NotContains(t, rec.Body.String(), "secret-key")

	require.Eventually(t, func() bool {
		job, err := store.GetJob(context.Background(), jobID)
		return err == nil && job.Status == crawl.JobStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	rec = get(srv, "/v1/crawls/"+jobID)
	require.Equal(t, http.StatusOK, rec.Code)
	var job crawl.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, crawl.JobStatusCompleted, job.Status)
	require.NotNil(t, job.Documents)
	assert.NotEmpty(t, job.Documents.SummaryURI)
}

func TestSubmitCrawlRejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := postJSON(t, srv, "/v1/crawls", submitCrawlRequest{WebsiteURL: "ftp://nope", GeminiAPIKey: "k"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/crawls", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitCrawlRejectsBadKeyWithoutLeakingIt(t *testing.T) {
	srv, _ := newTestServer(t, context.DeadlineExceeded)

	rec := postJSON(t, srv, "/v1/crawls", submitCrawlRequest{
		WebsiteURL:   "https://docs.example.com",
		GeminiAPIKey: "leaky-key-value",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotContains(t, rec.Body.String(), "leaky-key-value")
}

func TestGetCrawlNotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := get(srv, "/v1/crawls/does-not-exist")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListCrawlsWithTerm(t *testing.T) {
	srv, store := newTestServer(t, nil)

	rec := postJSON(t, srv, "/v1/crawls", submitCrawlRequest{
		WebsiteURL:   "https://docs.example.com",
		GeminiAPIKey: "k",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Eventually(t, func() bool {
		job, err := store.GetJob(context.Background(), resp["job_id"])
		return err == nil && job.Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)

	rec = get(srv, "/v1/crawls?term=docs.example")
	require.Equal(t, http.StatusOK, rec.Code)
	var list crawl.ListResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	rec = get(srv, "/v1/crawls?term=zzz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Zero(t, list.Count)
}

func TestCancelCrawlConflictsWhenTerminal(t *testing.T) {
	srv, store := newTestServer(t, nil)

	rec := postJSON(t, srv, "/v1/crawls", submitCrawlRequest{
		WebsiteURL:   "https://docs.example.com",
		GeminiAPIKey: "k",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	jobID := resp["job_id"]
	require.Eventually(t, func() bool {
		job, err := store.GetJob(context.Background(), jobID)
		return err == nil && job.Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)

	rec = postJSON(t, srv, "/v1/crawls/"+jobID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = postJSON(t, srv, "/v1/crawls/missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	assert.Equal(t, http.StatusOK, get(srv, "/healthz").Code)
	assert.Equal(t, http.StatusOK, get(srv, "/readyz").Code)
	assert.Equal(t, http.StatusOK, get(srv, "/metrics").Code)
}