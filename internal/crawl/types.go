// Package crawl defines core types shared across subsystems.
package crawl

import (
	"net/http"
	"time"
)

// JobStatus represents the lifecycle state of a crawl job.
type JobStatus string

// Job status values persisted in the job store. A job moves
// pending -> in_progress -> completed | failed and never leaves a
// terminal state.
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether the status permits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// FailReason records why a job reached the failed state.
type FailReason string

// Terminal failure reasons recorded on the job.
const (
	ReasonNone             FailReason = ""
	ReasonCancelled        FailReason = "cancelled"
	ReasonGenerationFailed FailReason = "generation_failed"
	ReasonTimeout          FailReason = "timeout"
)

// Job represents the metadata persisted for each submitted crawl request.
// The controller owns a job exclusively while it runs; once terminal the
// record is immutable apart from the document handles set at completion.
type Job struct {
	ID        string       `json:"id"`
	SeedURL   string       `json:"website_url"`
	Filters   []string     `json:"url_filters,omitempty"`
	Status    JobStatus    `json:"status"`
	Reason    FailReason   `json:"reason,omitempty"`
	PageCount int          `json:"pages"`
	Submitted time.Time    `json:"submitted_at"`
	Started   *time.Time   `json:"started_at,omitempty"`
	Finished  *time.Time   `json:"finished_at,omitempty"`
	Documents *DocumentSet `json:"documents,omitempty"`
}

// DocumentSet holds the handles for the two output artifacts. Both members
// are always populated together; a job never exposes only one of them.
type DocumentSet struct {
	SummaryURI    string `json:"summary_uri"`
	SummaryDigest string `json:"summary_digest"`
	FullURI       string `json:"full_uri"`
	FullDigest    string `json:"full_digest"`
}

// PageContent is one fetched-and-extracted page flowing from the
// extractor to the generator. Seq is assigned when the URL is dequeued
// from the frontier and fixes the page's position in both output
// documents.
type PageContent struct {
	Seq   int
	URL   string
	Title string
	Body  string
	Links []string
}

// PageDigest is the generated per-page summary entry.
type PageDigest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	JobID       string
	URL         string
	Depth       int
	UseHeadless bool
	Headers     http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// ListResult is returned by job listing queries.
type ListResult struct {
	Count int   `json:"count"`
	Jobs  []Job `json:"jobs"`
}
