package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sitebrief/llmstxt-crawler/internal/crawl"
	"github.com/sitebrief/llmstxt-crawler/internal/progress"
)

// Config tunes batching, retries and rate limiting for digest generation.
type Config struct {
	BatchSize      int
	MaxAttempts    int
	BackoffBase    time.Duration
	CallsPerPause  int
	PauseDuration  time.Duration
	MaxBodyRunes   int
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.CallsPerPause <= 0 {
		c.CallsPerPause = 10
	}
	if c.PauseDuration <= 0 {
		c.PauseDuration = 80 * time.Second
	}
	if c.MaxBodyRunes <= 0 {
		c.MaxBodyRunes = 6000
	}
}

// Generator produces per-page digests in crawl order. Pages are buffered
// into fixed-size batches so one model call covers several pages.
type Generator struct {
	cfg    Config
	client crawl.GenerationClient
	logger *zap.Logger

	batch   []crawl.PageContent
	digests []pageDigest
	calls   int

	emitter progress.Emitter
	jobID   string
	site    string
}

// pageDigest pairs the digest with the page it came from so the assembler
// can render both documents.
type pageDigest struct {
	Page   crawl.PageContent
	Digest crawl.PageDigest
}

// New creates a Generator bound to a generation client. The client is
// owned by the caller.
func New(cfg Config, client crawl.GenerationClient, logger *zap.Logger) *Generator {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{cfg: cfg, client: client, logger: logger}
}

// SetEmitter attaches a progress emitter for batch milestones.
func (g *Generator) SetEmitter(emitter progress.Emitter, jobID, site string) {
	g.emitter = emitter
	g.jobID = jobID
	g.site = site
}

// Add buffers a page and flushes a model batch when the buffer is full.
// Pages must be offered in crawl order; digests keep that order.
func (g *Generator) Add(ctx context.Context, page crawl.PageContent) error {
	g.batch = append(g.batch, page)
	if len(g.batch) < g.cfg.BatchSize {
		return nil
	}
	return g.flush(ctx)
}

// Finish flushes any partial batch and returns all digests in order.
func (g *Generator) Finish(ctx context.Context) ([]crawl.PageDigest, []crawl.PageContent, error) {
	if len(g.batch) > 0 {
		if err := g.flush(ctx); err != nil {
			return nil, nil, err
		}
	}
	digests := make([]crawl.PageDigest, len(g.digests))
	pages := make([]crawl.PageContent, len(g.digests))
	for i, entry := range g.digests {
		digests[i] = entry.Digest
		pages[i] = entry.Page
	}
	return digests, pages, nil
}

func (g *Generator) flush(ctx context.Context) error {
	pages := g.batch
	g.batch = nil

	start := time.Now()
	digests, err := g.generateBatch(ctx, pages)
	if err != nil {
		return err
	}
	for i, page := range pages {
		g.digests = append(g.digests, pageDigest{Page: page, Digest: digests[i]})
	}
	if g.emitter != nil {
		g.emitter.Emit(progress.Event{
			JobID: g.jobID,
			TS:    time.Now().UTC(),
			Stage: progress.StageBatchGenerated,
			Site:  g.site,
			Pages: int64(len(pages)),
			Dur:   time.Since(start),
		})
	}
	return nil
}

// generateBatch asks the model for one digest per page. The whole batch is
// retried on failure; after the last attempt the job is considered
// unrecoverable.
func (g *Generator) generateBatch(ctx context.Context, pages []crawl.PageContent) ([]crawl.PageDigest, error) {
	prompt := g.buildPrompt(pages)

	var lastErr error
	for attempt := 0; attempt < g.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, g.cfg.BackoffBase*time.Duration(attempt)); err != nil {
				return nil, crawl.Fatal(crawl.ReasonCancelled, err)
			}
		}
		if err := g.pace(ctx); err != nil {
			return nil, crawl.Fatal(crawl.ReasonCancelled, err)
		}

		raw, err := g.client.GenerateJSON(ctx, prompt)
		g.calls++
		if err != nil {
			if ctx.Err() != nil {
				return nil, crawl.Fatal(crawl.ReasonCancelled, ctx.Err())
			}
			lastErr = err
			g.logger.Warn("digest batch failed",
				zap.Int("attempt", attempt+1),
				zap.Int("pages", len(pages)),
				zap.Error(err))
			continue
		}
		return g.parseBatch(raw, pages), nil
	}
	return nil, crawl.Fatal(crawl.ReasonGenerationFailed,
		fmt.Errorf("digest batch after %d attempts: %w", g.cfg.MaxAttempts, lastErr))
}

// pace inserts a cool-off pause after a fixed number of model calls so
// sustained crawls stay under free-tier rate limits.
func (g *Generator) pace(ctx context.Context) error {
	if g.calls == 0 || g.calls%g.cfg.CallsPerPause != 0 {
		return nil
	}
	g.logger.Info("pausing generation for rate limit",
		zap.Int("calls", g.calls),
		zap.Duration("pause", g.cfg.PauseDuration))
	return sleepCtx(ctx, g.cfg.PauseDuration)
}

func (g *Generator) buildPrompt(pages []crawl.PageContent) string {
	var sb strings.Builder
	sb.WriteString("You are indexing documentation pages for an llms.txt file.\n")
	sb.WriteString("For each page below, produce a concise title and a one-sentence ")
	sb.WriteString("description of what the page covers.\n")
	sb.WriteString("Respond with a JSON array, one object per page, in the same order:\n")
	sb.WriteString(`[{"title": "...", "description": "..."}]` + "\n")
	for i, page := range pages {
		fmt.Fprintf(&sb, "\n--- PAGE %d ---\nURL: %s\nTitle: %s\nContent:\n%s\n",
			i+1, page.URL, page.Title, truncate(page.Body, g.cfg.MaxBodyRunes))
	}
	return sb.String()
}

// parseBatch maps the model reply back onto pages. Any page the model
// skipped or mangled gets a digest derived from its URL so a bad reply
// never loses a crawled page.
func (g *Generator) parseBatch(raw string, pages []crawl.PageContent) []crawl.PageDigest {
	var parsed []crawl.PageDigest
	if err := json.Unmarshal([]byte(StripFences(raw)), &parsed); err != nil {
		g.logger.Warn("unparseable digest reply, using fallbacks",
			zap.Int("pages", len(pages)), zap.Error(err))
		parsed = nil
	}
	digests := make([]crawl.PageDigest, len(pages))
	for i, page := range pages {
		if i < len(parsed) && strings.TrimSpace(parsed[i].Title) != "" {
			digests[i] = parsed[i]
			continue
		}
		digests[i] = FallbackDigest(page)
	}
	return digests
}

// FallbackDigest builds a digest from what the crawl already knows about a
// page, for use when the model gives nothing usable for it.
func FallbackDigest(page crawl.PageContent) crawl.PageDigest {
	title := strings.TrimSpace(page.Title)
	if title == "" {
		title = titleFromURL(page.URL)
	}
	return crawl.PageDigest{
		Title:       title,
		Description: "Documentation page from " + page.URL,
	}
}

func titleFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return u.Hostname()
	}
	segments := strings.Split(path, "/")
	last := segments[len(segments)-1]
	last = strings.NewReplacer("-", " ", "_", " ").Replace(last)
	return capitalizeWords(last)
}

func capitalizeWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
