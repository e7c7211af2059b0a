// Package memory provides in-process implementations of the persistence
// interfaces, used for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sitebrief/llmstxt-crawler/internal/crawl"
)

// JobStore keeps crawl jobs in a mutex-guarded map.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]crawl.Job
}

// NewJobStore returns an empty store.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]crawl.Job)}
}

// CreateJob inserts a new job record.
func (s *JobStore) CreateJob(_ context.Context, job crawl.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJobStatus transitions a job and refreshes its page count. Terminal
// states record the finish time; moving to in_progress records the start.
func (s *JobStore) UpdateJobStatus(_ context.Context, jobID string, status crawl.JobStatus, reason crawl.FailReason, pageCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s not found", jobID)
	}
	now := time.Now().UTC()
	job.Status = status
	job.Reason = reason
	job.PageCount = pageCount
	switch {
	case status == crawl.JobStatusInProgress && job.Started == nil:
		job.Started = &now
	case status.IsTerminal() && job.Finished == nil:
		job.Finished = &now
	}
	s.jobs[jobID] = job
	return nil
}

// CompleteJob marks a job completed and attaches both document handles in
// one step, so readers never observe a completed job without documents.
func (s *JobStore) CompleteJob(_ context.Context, jobID string, pageCount int, docs crawl.DocumentSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s not found", jobID)
	}
	now := time.Now().UTC()
	job.Status = crawl.JobStatusCompleted
	job.Reason = crawl.ReasonNone
	job.PageCount = pageCount
	job.Documents = &docs
	if job.Finished == nil {
		job.Finished = &now
	}
	s.jobs[jobID] = job
	return nil
}

// GetJob returns a copy of the stored job.
func (s *JobStore) GetJob(_ context.Context, jobID string) (crawl.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return crawl.Job{}, fmt.Errorf("job %s: %w", jobID, crawl.ErrNotFound)
	}
	return job, nil
}

// ListJobs returns jobs newest first. A non-empty term filters by
// case-insensitive substring match against the seed URL.
func (s *JobStore) ListJobs(_ context.Context, term string) (crawl.ListResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	term = strings.ToLower(strings.TrimSpace(term))
	jobs := make([]crawl.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if term != "" && !strings.Contains(strings.ToLower(job.SeedURL), term) {
			continue
		}
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].Submitted.Equal(jobs[j].Submitted) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].Submitted.After(jobs[j].Submitted)
	})
	return crawl.ListResult{Count: len(jobs), Jobs: jobs}, nil
}
