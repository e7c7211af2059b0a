package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitebrief/llmstxt-crawler/internal/crawl"
)

func newJob(id, seed string, submitted time.Time) crawl.Job {
	return crawl.Job{
		ID:        id,
		SeedURL:   seed,
		Status:    crawl.JobStatusPending,
		Submitted: submitted,
	}
}

func TestJobStoreCreateAndGet(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()
	job := newJob("a", "https://docs.example.com", time.Now().UTC())

	require.NoError(t, store.CreateJob(ctx, job))
	require.Error(t, store.CreateJob(ctx, job), "duplicate id rejected")

	got, err := store.GetJob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, job, got)

	_, err = store.GetJob(ctx, "missing")
	require.ErrorIs(t, err, crawl.ErrNotFound)
}

func TestJobStoreStatusTransitions(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()
	require.NoError(t, store.CreateJob(ctx, newJob("a", "https://docs.example.com", time.Now().UTC())))

	require.NoError(t, store.UpdateJobStatus(ctx, "a", crawl.JobStatusInProgress, crawl.ReasonNone, 0))
	got, err := store.GetJob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, crawl.JobStatusInProgress, got.Status)
	require.NotNil(t, got.Started)
	assert.Nil(t, got.Finished)

	require.NoError(t, store.UpdateJobStatus(ctx, "a", crawl.JobStatusFailed, crawl.ReasonCancelled, 7))
	got, err = store.GetJob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, crawl.JobStatusFailed, got.Status)
	assert.Equal(t, crawl.ReasonCancelled, got.Reason)
	assert.Equal(t, 7, got.PageCount)
	require.NotNil(t, got.Finished)
	assert.Nil(t, got.Documents, "failed jobs never carry documents")
}

func TestJobStoreCompleteIsAtomic(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()
	require.NoError(t, store.CreateJob(ctx, newJob("a", "https://docs.example.com", time.Now().UTC())))

	docs := crawl.DocumentSet{
		SummaryURI:    "mem://a/llms.txt",
		SummaryDigest: "abc",
		FullURI:       "mem://a/llms-full.txt",
		FullDigest:    "def",
	}
	require.NoError(t, store.CompleteJob(ctx, "a", 12, docs))

	got, err := store.GetJob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, crawl.JobStatusCompleted, got.Status)
	assert.Equal(t, 12, got.PageCount)
	require.NotNil(t, got.Documents)
	assert.Equal(t, docs, *got.Documents)
	require.NotNil(t, got.Finished)
}

func TestJobStoreListNewestFirstWithSearch(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()
	base := time.Now().UTC()
	require.NoError(t, store.CreateJob(ctx, newJob("a", "https://docs.langchain.com", base.Add(-2*time.Hour))))
	require.NoError(t, store.CreateJob(ctx, newJob("b", "https://docs.example.com", base.Add(-time.Hour))))
	require.NoError(t, store.CreateJob(ctx, newJob("c", "https://blog.LangChain.dev", base)))

	all, err := store.ListJobs(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, all.Count)
	assert.Equal(t, []string{"c", "b", "a"}, ids(all.Jobs))

	filtered, err := store.ListJobs(ctx, "LANGCHAIN")
	require.NoError(t, err)
	assert.Equal(t, 2, filtered.Count)
	assert.Equal(t, []string{"c", "a"}, ids(filtered.Jobs))
}

func ids(jobs []crawl.Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID
	}
	return out
}
