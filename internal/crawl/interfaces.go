package crawl

import (
	"context"
	"time"
)

// JobStore persists job metadata. Implementations must keep status reads
// consistent with the most recently committed page count.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, reason FailReason, pageCount int) error
	// CompleteJob atomically records the terminal completed status together
	// with both document handles. Partial output is never exposed.
	CompleteJob(ctx context.Context, jobID string, pageCount int, docs DocumentSet) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	// ListJobs returns jobs newest first. A non-empty term filters by
	// case-insensitive substring match against the seed URL.
	ListJobs(ctx context.Context, term string) (ListResult, error)
}

// DocumentStore writes produced artifacts and returns a URI.
type DocumentStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes terminal job events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a headless re-fetch is warranted.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// GenerationClient invokes the external text-generation service. The
// credential it carries lives only in memory for the duration of a job.
type GenerationClient interface {
	// GenerateJSON submits a prompt and returns the raw model reply,
	// expected to be a JSON object possibly wrapped in a code fence.
	GenerateJSON(ctx context.Context, prompt string) (string, error)
	// Validate performs a cheap probe call to verify the credential.
	Validate(ctx context.Context) error
	Close() error
}

// GenerationClientFactory builds a GenerationClient for a per-job
// credential. The key must never be persisted or logged.
type GenerationClientFactory func(ctx context.Context, apiKey string) (GenerationClient, error)

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
