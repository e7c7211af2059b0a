package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sitebrief/llmstxt-crawler/internal/crawl"
)

type fakeClient struct {
	calls   int
	replies []string
	errs    []error
	prompts []string
}

func (f *fakeClient) GenerateJSON(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	idx := f.calls
	f.calls++
	if idx < len(f.errs) && f.errs[idx] != nil {
		return "", f.errs[idx]
	}
	if idx < len(f.replies) {
		return f.replies[idx], nil
	}
	return "[]", nil
}

func (f *fakeClient) Validate(context.Context) error { return nil }
func (f *fakeClient) Close() error                   { return nil }

func digestsJSON(t *testing.T, n int, prefix string) string {
	t.Helper()
	entries := make([]crawl.PageDigest, n)
	for i := range entries {
		entries[i] = crawl.PageDigest{
			Title:       fmt.Sprintf("%s %d", prefix, i),
			Description: fmt.Sprintf("about %s %d", prefix, i),
		}
	}
	raw, err := json.Marshal(entries)
	require.NoError(t, err)
	return string(raw)
}

func page(i int) crawl.PageContent {
	return crawl.PageContent{
		Seq:   i,
		URL:   fmt.Sprintf("https://docs.example.com/guide/page-%d", i),
		Title: fmt.Sprintf("Page %d", i),
		Body:  fmt.Sprintf("Body of page %d.", i),
	}
}

func TestGeneratorBatchesAtConfiguredSize(t *testing.T) {
	client := &fakeClient{replies: []string{digestsJSON(t, 3, "A"), digestsJSON(t, 2, "B")}}
	gen := New(Config{BatchSize: 3}, client, zap.NewNop())

	for i := 0; i < 5; i++ {
		require.NoError(t, gen.Add(context.Background(), page(i)))
	}
	digests, pages, err := gen.Finish(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, client.calls, "five pages with batch size 3 need two calls")
	require.Len(t, digests, 5)
	require.Len(t, pages, 5)
	assert.Equal(t, "A 0", digests[0].Title)
	assert.Equal(t, "B 1", digests[4].Title)
	for i, p := range pages {
		assert.Equal(t, i, p.Seq, "digest order must follow crawl order")
	}
}

func TestGeneratorRetriesThenSucceeds(t *testing.T) {
	client := &fakeClient{
		errs:    []error{errors.New("503"), nil},
		replies: []string{"", digestsJSON(t, 1, "ok")},
	}
	gen := New(Config{BatchSize: 1, MaxAttempts: 3, BackoffBase: time.Millisecond}, client, zap.NewNop())

	require.NoError(t, gen.Add(context.Background(), page(0)))
	digests, _, err := gen.Finish(context.Background())
	require.NoError(t, err)
	require.Len(t, digests, 1)
	assert.Equal(t, "ok 0", digests[0].Title)
	assert.Equal(t, 2, client.calls)
}

func TestGeneratorExhaustedRetriesIsFatal(t *testing.T) {
	client := &fakeClient{errs: []error{errors.New("down"), errors.New("down"), errors.New("down")}}
	gen := New(Config{BatchSize: 1, MaxAttempts: 3, BackoffBase: time.Millisecond}, client, zap.NewNop())

	err := gen.Add(context.Background(), page(0))
	require.Error(t, err)
	fatal, ok := crawl.AsFatal(err)
	require.True(t, ok)
	assert.Equal(t, crawl.ReasonGenerationFailed, fatal.Reason)
	assert.Equal(t, 3, client.calls)
}

func TestGeneratorFallbackOnBadReply(t *testing.T) {
	client := &fakeClient{replies: []string{"this is not json"}}
	gen := New(Config{BatchSize: 2}, client, zap.NewNop())

	require.NoError(t, gen.Add(context.Background(), page(0)))
	require.NoError(t, gen.Add(context.Background(), page(1)))
	digests, _, err := gen.Finish(context.Background())
	require.NoError(t, err)

	require.Len(t, digests, 2)
	assert.Equal(t, "Page 0", digests[0].Title)
	assert.Contains(t, digests[0].Description, "docs.example.com")
}

func TestGeneratorCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &fakeClient{errs: []error{context.Canceled}}
	gen := New(Config{BatchSize: 1}, client, zap.NewNop())

	err := gen.Add(ctx, page(0))
	require.Error(t, err)
	fatal, ok := crawl.AsFatal(err)
	require.True(t, ok)
	assert.Equal(t, crawl.ReasonCancelled, fatal.Reason)
}

func TestPromptContainsEveryPage(t *testing.T) {
	client := &fakeClient{replies: []string{digestsJSON(t, 2, "x")}}
	gen := New(Config{BatchSize: 2}, client, zap.NewNop())

	require.NoError(t, gen.Add(context.Background(), page(0)))
	require.NoError(t, gen.Add(context.Background(), page(1)))
	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "page-0")
	assert.Contains(t, client.prompts[0], "page-1")
	assert.Contains(t, client.prompts[0], "JSON array")
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences(`{"a":1}`))
}

func TestFallbackDigestFromURL(t *testing.T) {
	d := FallbackDigest(crawl.PageContent{URL: "https://docs.example.com/guide/getting-started"})
	assert.Equal(t, "Getting Started", d.Title)
}

func TestAssembleFormats(t *testing.T) {
	pages := []crawl.PageContent{
		{URL: "https://www.langchain.com/docs/intro", Body: "Intro body."},
		{URL: "https://www.langchain.com/assets/logo.svg", Body: "binary"},
		{URL: "https://www.langchain.com/docs/agents", Body: "Agents body."},
	}
	digests := []crawl.PageDigest{
		{Title: "Introduction", Description: "Start here."},
		{Title: "Logo", Description: "An asset."},
		{Title: "Agents", Description: "Agent concepts."},
	}

	docs := Assemble("https://www.langchain.com/docs", pages, digests)

	assert.True(t, strings.HasPrefix(docs.Summary, "# Langchain\n\n> Documentation and content from www.langchain.com\n\n## Documentation\n\n"))
	assert.Contains(t, docs.Summary, "- [Introduction](https://www.langchain.com/docs/intro): Start here.")
	assert.NotContains(t, docs.Summary, "logo.svg", "asset paths stay out of the documents")

	assert.Contains(t, docs.Full, "### Agents\nSource: https://www.langchain.com/docs/agents\n\nAgents body.")
	assert.NotContains(t, docs.Full, "binary")

	again := Assemble("https://www.langchain.com/docs", pages, digests)
	assert.Equal(t, docs.SummaryDigest, again.SummaryDigest, "deterministic output")
	assert.Equal(t, docs.FullDigest, again.FullDigest)
	assert.Len(t, docs.SummaryDigest, 64)
}
