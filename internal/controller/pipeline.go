package controller

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sitebrief/llmstxt-crawler/internal/crawl"
	"github.com/sitebrief/llmstxt-crawler/internal/frontier"
	"github.com/sitebrief/llmstxt-crawler/internal/generator"
	"github.com/sitebrief/llmstxt-crawler/internal/progress"
)

// fetchResult carries one finished fetch back to the coordination loop.
// seq is assigned at dispatch so results can be re-sequenced regardless of
// fetch completion order.
type fetchResult struct {
	seq   int
	entry frontier.Entry
	resp  crawl.FetchResponse
	err   error
}

// runPipeline executes the crawl for one job: dispatch from the frontier
// to bounded fetch workers, re-sequence completions, extract, discover
// links, and feed pages to the digest generator in a fixed order. The
// returned pages and digests align index for index.
func (c *Controller) runPipeline(ctx context.Context, job crawl.Job, gen *generator.Generator) ([]crawl.PageContent, []crawl.PageDigest, int, error) {
	logger := c.deps.Logger.With(zap.String("job_id", job.ID))
	site := hostOf(job.SeedURL)
	gen.SetEmitter(c.deps.Emitter, job.ID, site)

	front, err := frontier.New(job.SeedURL, job.Filters, c.cfg.PageBudget)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("build frontier: %w", err)
	}

	// Buffered so workers can always deliver even after the loop bails
	// out on error.
	results := make(chan fetchResult, c.cfg.FetchConcurrency)
	var (
		pending    int
		nextSeq    int
		releaseSeq int
		ordered    int
		buffer     = make(map[int]fetchResult)
	)

	for {
		for pending < c.cfg.FetchConcurrency {
			entry, ok := front.Take()
			if !ok {
				break
			}
			seq := nextSeq
			nextSeq++
			pending++
			go c.fetchWorker(ctx, job.ID, seq, entry, results)
		}
		if pending == 0 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, nil, ordered, crawl.Fatal(crawl.ReasonCancelled, ctx.Err())
		case res := <-results:
			pending--
			buffer[res.seq] = res
		}

		// Release contiguous results in dispatch order. Links found on a
		// page are offered only at its release, so discovery order, and
		// with it the output, is deterministic for a stable site.
		for {
			res, ok := buffer[releaseSeq]
			if !ok {
				break
			}
			delete(buffer, releaseSeq)
			releaseSeq++

			page, ok := c.releasePage(ctx, job, site, res, ordered, front, logger)
			if !ok {
				continue
			}
			ordered++
			if err := c.deps.Store.UpdateJobStatus(ctx, job.ID, crawl.JobStatusInProgress, crawl.ReasonNone, ordered); err != nil {
				logger.Warn("update page count", zap.Error(err))
			}
			if err := gen.Add(ctx, page); err != nil {
				return nil, nil, ordered, err
			}
		}
	}

	digests, pages, err := gen.Finish(ctx)
	if err != nil {
		return nil, nil, ordered, err
	}
	return pages, digests, ordered, nil
}

// releasePage turns a fetch result into an ordered page. Failed or
// non-success fetches are skipped; the job continues without them.
func (c *Controller) releasePage(ctx context.Context, job crawl.Job, site string, res fetchResult, seq int, front *frontier.Frontier, logger *zap.Logger) (crawl.PageContent, bool) {
	if res.err != nil {
		pageErr := &crawl.PageError{URL: res.entry.URL, Stage: "fetch", Err: res.err}
		logger.Warn("page skipped", zap.String("url", res.entry.URL), zap.Error(pageErr))
		c.emit(progress.Event{
			JobID: job.ID,
			TS:    c.deps.Clock.Now(),
			Stage: progress.StagePageSkipped,
			Site:  site,
			URL:   res.entry.URL,
			Note:  "fetch failed",
		})
		return crawl.PageContent{}, false
	}
	if res.resp.StatusCode < 200 || res.resp.StatusCode >= 300 {
		logger.Debug("page skipped",
			zap.String("url", res.entry.URL),
			zap.Int("status", res.resp.StatusCode))
		c.emit(progress.Event{
			JobID:       job.ID,
			TS:          c.deps.Clock.Now(),
			Stage:       progress.StagePageSkipped,
			Site:        site,
			URL:         res.entry.URL,
			StatusClass: progress.ClassifyStatus(res.resp.StatusCode),
			Note:        "non-success status",
		})
		return crawl.PageContent{}, false
	}

	if !htmlContentType(res.resp.Headers.Get("Content-Type")) {
		logger.Debug("page skipped",
			zap.String("url", res.entry.URL),
			zap.String("content_type", res.resp.Headers.Get("Content-Type")))
		c.emit(progress.Event{
			JobID:       job.ID,
			TS:          c.deps.Clock.Now(),
			Stage:       progress.StagePageSkipped,
			Site:        site,
			URL:         res.entry.URL,
			StatusClass: progress.ClassifyStatus(res.resp.StatusCode),
			Note:        "non-html content",
		})
		return crawl.PageContent{}, false
	}

	page := c.deps.Extractor.Extract(res.resp.Body, res.entry.URL)
	page.Seq = seq
	for _, link := range page.Links {
		front.Offer(link, res.entry.Depth+1)
	}
	c.emit(progress.Event{
		JobID:       job.ID,
		TS:          c.deps.Clock.Now(),
		Stage:       progress.StagePageFetched,
		Site:        site,
		URL:         res.entry.URL,
		Bytes:       int64(len(res.resp.Body)),
		Pages:       int64(seq + 1),
		StatusClass: progress.ClassifyStatus(res.resp.StatusCode),
		Headless:    res.resp.UsedHeadless,
		Dur:         res.resp.Duration,
	})
	return page, true
}

// htmlContentType reports whether a Content-Type header names an HTML or
// XHTML document. A missing header is treated as HTML, matching servers
// that omit it on documentation pages.
func htmlContentType(ct string) bool {
	if ct == "" {
		return true
	}
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

// fetchWorker probes a URL over plain HTTP and escalates to the headless
// browser when the response looks like a script shell.
func (c *Controller) fetchWorker(ctx context.Context, jobID string, seq int, entry frontier.Entry, results chan<- fetchResult) {
	req := crawl.FetchRequest{JobID: jobID, URL: entry.URL, Depth: entry.Depth}
	resp, err := c.deps.Fetcher.Fetch(ctx, req)
	if err == nil && c.deps.Headless != nil && c.deps.Detector != nil && c.deps.Detector.ShouldPromote(resp) {
		req.UseHeadless = true
		if rendered, hErr := c.deps.Headless.Fetch(ctx, req); hErr == nil {
			resp = rendered
		}
		// On headless failure the probe response is kept.
	}
	results <- fetchResult{seq: seq, entry: entry, resp: resp, err: err}
}
