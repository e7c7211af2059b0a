// Package controller owns the crawl job lifecycle: admission, execution,
// cancellation, and terminal bookkeeping.
package controller

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sitebrief/llmstxt-crawler/internal/crawl"
	"github.com/sitebrief/llmstxt-crawler/internal/extractor"
	"github.com/sitebrief/llmstxt-crawler/internal/generator"
	"github.com/sitebrief/llmstxt-crawler/internal/progress"
)

// Config tunes job execution.
type Config struct {
	// FetchConcurrency bounds in-flight fetches per job.
	FetchConcurrency int
	// PageBudget caps pages crawled per job.
	PageBudget int
	// JobTimeout bounds total wall time per job.
	JobTimeout time.Duration
	// MaxConcurrentJobs bounds jobs crawling at once; excess jobs stay
	// pending until a slot frees up.
	MaxConcurrentJobs int64
	// EventTopic names the topic terminal job events are published to.
	EventTopic string
	// Generator tunes digest batching and rate limiting.
	Generator generator.Config
}

func (c *Config) applyDefaults() {
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = 8
	}
	if c.PageBudget <= 0 {
		c.PageBudget = 200
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 30 * time.Minute
	}
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = 4
	}
	if c.EventTopic == "" {
		c.EventTopic = "crawl-events"
	}
}

// Deps collects the collaborators a Controller needs.
type Deps struct {
	Store     crawl.JobStore
	Documents crawl.DocumentStore
	Publisher crawl.Publisher
	Fetcher   crawl.Fetcher
	Headless  crawl.Fetcher
	Detector  crawl.HeadlessDetector
	Extractor *extractor.Extractor
	Factory   crawl.GenerationClientFactory
	Emitter   progress.Emitter
	Clock     crawl.Clock
	IDs       crawl.IDGenerator
	Logger    *zap.Logger
}

// Controller runs crawl jobs as goroutines behind a global concurrency
// ceiling and tracks their cancel functions.
type Controller struct {
	cfg  Config
	deps Deps
	sem  *semaphore.Weighted

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	wg sync.WaitGroup
}

// New validates deps and builds a Controller.
func New(cfg Config, deps Deps) (*Controller, error) {
	cfg.applyDefaults()
	if deps.Store == nil {
		return nil, fmt.Errorf("job store is required")
	}
	if deps.Documents == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if deps.Extractor == nil {
		deps.Extractor = extractor.New()
	}
	if deps.Factory == nil {
		return nil, fmt.Errorf("generation client factory is required")
	}
	if deps.Clock == nil {
		deps.Clock = crawl.SystemClock{}
	}
	if deps.IDs == nil {
		deps.IDs = crawl.UUIDGenerator{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Controller{
		cfg:     cfg,
		deps:    deps,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrentJobs),
		cancels: make(map[string]context.CancelFunc),
	}, nil
}

// StartRequest carries the inputs for a new crawl job. APIKey is held in
// memory only for the duration of the job and must never be persisted or
// logged.
type StartRequest struct {
	SeedURL string
	Filters []string
	APIKey  string
}

// StartJob validates the request, verifies the credential with a probe
// call, persists a pending job, and launches the crawl in the background.
func (c *Controller) StartJob(ctx context.Context, req StartRequest) (crawl.Job, error) {
	seed, err := validateSeed(req.SeedURL)
	if err != nil {
		return crawl.Job{}, err
	}
	filters, err := validateFilters(req.Filters)
	if err != nil {
		return crawl.Job{}, err
	}
	if strings.TrimSpace(req.APIKey) == "" {
		return crawl.Job{}, crawl.InvalidInputf("api key is required")
	}

	// The client outlives this request; it is closed when the job ends.
	client, err := c.deps.Factory(context.Background(), req.APIKey)
	if err != nil {
		return crawl.Job{}, crawl.InvalidInputf("create generation client: %v", err)
	}
	if err := client.Validate(ctx); err != nil {
		closeQuietly(client)
		return crawl.Job{}, crawl.InvalidInputf("api key rejected: %v", err)
	}

	id, err := c.deps.IDs.NewID()
	if err != nil {
		closeQuietly(client)
		return crawl.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	job := crawl.Job{
		ID:        id,
		SeedURL:   seed,
		Filters:   filters,
		Status:    crawl.JobStatusPending,
		Submitted: c.deps.Clock.Now(),
	}
	if err := c.deps.Store.CreateJob(ctx, job); err != nil {
		closeQuietly(client)
		return crawl.Job{}, fmt.Errorf("persist job: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancels[job.ID] = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(runCtx, job, client)
	return job, nil
}

// GetJob returns the current job record.
func (c *Controller) GetJob(ctx context.Context, jobID string) (crawl.Job, error) {
	return c.deps.Store.GetJob(ctx, jobID)
}

// ListJobs lists jobs newest first, optionally filtered by a seed URL
// substring.
func (c *Controller) ListJobs(ctx context.Context, term string) (crawl.ListResult, error) {
	return c.deps.Store.ListJobs(ctx, term)
}

// CancelJob requests cooperative cancellation of a pending or in-progress
// job. The job lands in the failed state with reason cancelled.
func (c *Controller) CancelJob(ctx context.Context, jobID string) error {
	job, err := c.deps.Store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return crawl.InvalidInputf("job %s already %s", jobID, job.Status)
	}
	c.mu.Lock()
	cancel, ok := c.cancels[jobID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, crawl.ErrNotFound)
	}
	cancel()
	return nil
}

// Shutdown waits for running jobs to finish or ctx to expire. Jobs are not
// cancelled; callers wanting a hard stop cancel them first.
func (c *Controller) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("controller shutdown wait: %w", ctx.Err())
	}
}

func (c *Controller) run(runCtx context.Context, job crawl.Job, client crawl.GenerationClient) {
	defer c.wg.Done()
	defer closeQuietly(client)
	defer func() {
		c.mu.Lock()
		delete(c.cancels, job.ID)
		c.mu.Unlock()
	}()

	logger := c.deps.Logger.With(zap.String("job_id", job.ID), zap.String("seed", job.SeedURL))

	// The job stays pending until a crawl slot frees up. Cancellation
	// while queued is honored here.
	if err := c.sem.Acquire(runCtx, 1); err != nil {
		c.finishFailed(job, crawl.ReasonCancelled, 0, logger)
		return
	}
	defer c.sem.Release(1)

	ctx, cancel := context.WithTimeout(runCtx, c.cfg.JobTimeout)
	defer cancel()

	started := c.deps.Clock.Now()
	if err := c.deps.Store.UpdateJobStatus(ctx, job.ID, crawl.JobStatusInProgress, crawl.ReasonNone, 0); err != nil {
		logger.Error("mark job in progress", zap.Error(err))
	}
	c.emit(progress.Event{
		JobID: job.ID,
		TS:    started,
		Stage: progress.StageJobStart,
		Site:  hostOf(job.SeedURL),
	})
	logger.Info("job started")

	gen := generator.New(c.cfg.Generator, client, logger)
	pages, digests, pageCount, err := c.runPipeline(ctx, job, gen)
	elapsed := c.deps.Clock.Now().Sub(started)
	if err != nil {
		reason := failReason(runCtx, ctx, err)
		logger.Warn("job failed",
			zap.String("reason", string(reason)),
			zap.Int("pages", pageCount),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		c.finishFailed(job, reason, pageCount, logger)
		c.emit(progress.Event{
			JobID: job.ID,
			TS:    c.deps.Clock.Now(),
			Stage: progress.StageJobError,
			Site:  hostOf(job.SeedURL),
			Pages: int64(pageCount),
			Dur:   elapsed,
			Note:  string(reason),
		})
		return
	}

	docs, err := c.storeDocuments(ctx, job, pages, digests)
	if err != nil {
		logger.Error("store documents", zap.Error(err))
		c.finishFailed(job, crawl.ReasonGenerationFailed, pageCount, logger)
		return
	}
	if err := c.deps.Store.CompleteJob(ctx, job.ID, pageCount, docs); err != nil {
		logger.Error("complete job", zap.Error(err))
		return
	}
	logger.Info("job completed", zap.Int("pages", pageCount), zap.Duration("elapsed", elapsed))
	c.emit(progress.Event{
		JobID: job.ID,
		TS:    c.deps.Clock.Now(),
		Stage: progress.StageJobDone,
		Site:  hostOf(job.SeedURL),
		Pages: int64(pageCount),
		Dur:   elapsed,
	})
	c.publishTerminal(job.ID, crawl.JobStatusCompleted, crawl.ReasonNone, pageCount, &docs)
}

func (c *Controller) storeDocuments(ctx context.Context, job crawl.Job, pages []crawl.PageContent, digests []crawl.PageDigest) (crawl.DocumentSet, error) {
	rendered := generator.Assemble(job.SeedURL, pages, digests)

	summaryURI, err := c.deps.Documents.PutObject(ctx, job.ID+"/llms.txt", "text/plain; charset=utf-8", []byte(rendered.Summary))
	if err != nil {
		return crawl.DocumentSet{}, fmt.Errorf("store llms.txt: %w", err)
	}
	fullURI, err := c.deps.Documents.PutObject(ctx, job.ID+"/llms-full.txt", "text/plain; charset=utf-8", []byte(rendered.Full))
	if err != nil {
		return crawl.DocumentSet{}, fmt.Errorf("store llms-full.txt: %w", err)
	}
	return crawl.DocumentSet{
		SummaryURI:    summaryURI,
		SummaryDigest: rendered.SummaryDigest,
		FullURI:       fullURI,
		FullDigest:    rendered.FullDigest,
	}, nil
}

// finishFailed writes the terminal failed state. It uses a fresh context so
// the write succeeds even when the job context is already dead.
func (c *Controller) finishFailed(job crawl.Job, reason crawl.FailReason, pageCount int, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.deps.Store.UpdateJobStatus(ctx, job.ID, crawl.JobStatusFailed, reason, pageCount); err != nil {
		logger.Error("mark job failed", zap.Error(err))
	}
	c.publishTerminal(job.ID, crawl.JobStatusFailed, reason, pageCount, nil)
}

// terminalEvent is the payload published when a job reaches a terminal
// state.
type terminalEvent struct {
	JobID     string             `json:"job_id"`
	Status    crawl.JobStatus    `json:"status"`
	Reason    crawl.FailReason   `json:"reason,omitempty"`
	PageCount int                `json:"pages"`
	Documents *crawl.DocumentSet `json:"documents,omitempty"`
}

func (c *Controller) publishTerminal(jobID string, status crawl.JobStatus, reason crawl.FailReason, pageCount int, docs *crawl.DocumentSet) {
	if c.deps.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := c.deps.Publisher.Publish(ctx, c.cfg.EventTopic, terminalEvent{
		JobID:     jobID,
		Status:    status,
		Reason:    reason,
		PageCount: pageCount,
		Documents: docs,
	})
	if err != nil {
		c.deps.Logger.Warn("publish terminal event",
			zap.String("job_id", jobID), zap.Error(err))
	}
}

func (c *Controller) emit(evt progress.Event) {
	if c.deps.Emitter == nil {
		return
	}
	c.deps.Emitter.Emit(evt)
}

// failReason maps a pipeline error to the recorded failure reason. The
// parent context distinguishes an explicit cancel from the job timeout.
func failReason(runCtx, jobCtx context.Context, err error) crawl.FailReason {
	if runCtx.Err() != nil {
		return crawl.ReasonCancelled
	}
	if errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
		return crawl.ReasonTimeout
	}
	if fatal, ok := crawl.AsFatal(err); ok && fatal.Reason != crawl.ReasonNone {
		return fatal.Reason
	}
	return crawl.ReasonGenerationFailed
}

func validateSeed(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", crawl.InvalidInputf("website_url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", crawl.InvalidInputf("website_url is not a valid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", crawl.InvalidInputf("website_url must use http or https")
	}
	if u.Host == "" {
		return "", crawl.InvalidInputf("website_url must be absolute")
	}
	return raw, nil
}

func validateFilters(filters []string) ([]string, error) {
	out := make([]string, 0, len(filters))
	for _, f := range filters {
		f = strings.TrimSpace(f)
		if f == "" {
			return nil, crawl.InvalidInputf("url_filters must not contain empty entries")
		}
		out = append(out, f)
	}
	return out, nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func closeQuietly(client crawl.GenerationClient) {
	_ = client.Close()
}
