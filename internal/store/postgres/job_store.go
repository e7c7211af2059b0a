// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitebrief/llmstxt-crawler/internal/crawl"
)

// JobStoreConfig controls the Postgres connection pool used for job rows.
type JobStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// JobStore implements crawl.JobStore on Postgres. Document handles are
// columns on the job row, so CompleteJob is a single UPDATE and readers
// never see a completed job without its documents.
type JobStore struct {
	pool querier
}

// NewJobStore creates a Postgres-backed JobStore using the provided config.
func NewJobStore(ctx context.Context, cfg JobStoreConfig) (*JobStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &JobStore{pool: pool}, nil
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewJobStoreWithPool(pool querier) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	s.pool.Close()
}

// CreateJob inserts a new job row.
func (s *JobStore) CreateJob(ctx context.Context, job crawl.Job) error {
	query := `
		INSERT INTO crawl_jobs (id, seed_url, url_filters, status, reason, page_count, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	_, err := s.pool.Exec(ctx, query,
		job.ID, job.SeedURL, job.Filters, job.Status, string(job.Reason), job.PageCount, job.Submitted)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJobStatus transitions a job and refreshes its page count.
func (s *JobStore) UpdateJobStatus(ctx context.Context, jobID string, status crawl.JobStatus, reason crawl.FailReason, pageCount int) error {
	query := `
		UPDATE crawl_jobs
		SET status = $1,
		    reason = $2,
		    page_count = $3,
		    started_at = CASE WHEN $1 = 'in_progress' AND started_at IS NULL THEN now() ELSE started_at END,
		    finished_at = CASE WHEN $1 IN ('completed', 'failed') AND finished_at IS NULL THEN now() ELSE finished_at END
		WHERE id = $4;
	`
	tag, err := s.pool.Exec(ctx, query, status, string(reason), pageCount, jobID)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", jobID, crawl.ErrNotFound)
	}
	return nil
}

// CompleteJob marks a job completed and attaches both document handles in
// one statement.
func (s *JobStore) CompleteJob(ctx context.Context, jobID string, pageCount int, docs crawl.DocumentSet) error {
	query := `
		UPDATE crawl_jobs
		SET status = 'completed',
		    reason = '',
		    page_count = $1,
		    summary_uri = $2,
		    summary_digest = $3,
		    full_uri = $4,
		    full_digest = $5,
		    finished_at = COALESCE(finished_at, now())
		WHERE id = $6;
	`
	tag, err := s.pool.Exec(ctx, query,
		pageCount, docs.SummaryURI, docs.SummaryDigest, docs.FullURI, docs.FullDigest, jobID)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", jobID, crawl.ErrNotFound)
	}
	return nil
}

const jobColumns = `id, seed_url, url_filters, status, reason, page_count,
	submitted_at, started_at, finished_at,
	summary_uri, summary_digest, full_uri, full_digest`

// GetJob returns a single job by id.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (crawl.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM crawl_jobs WHERE id = $1;`
	job, err := scanJob(s.pool.QueryRow(ctx, query, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return crawl.Job{}, fmt.Errorf("job %s: %w", jobID, crawl.ErrNotFound)
	}
	if err != nil {
		return crawl.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs newest first, optionally filtered by a
// case-insensitive substring match on the seed URL.
func (s *JobStore) ListJobs(ctx context.Context, term string) (crawl.ListResult, error) {
	query := `SELECT ` + jobColumns + `
		FROM crawl_jobs
		WHERE $1 = '' OR seed_url ILIKE '%' || $1 || '%'
		ORDER BY submitted_at DESC, id DESC;`
	rows, err := s.pool.Query(ctx, query, term)
	if err != nil {
		return crawl.ListResult{}, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []crawl.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return crawl.ListResult{}, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return crawl.ListResult{}, fmt.Errorf("iterate job rows: %w", err)
	}
	return crawl.ListResult{Count: len(jobs), Jobs: jobs}, nil
}

func scanJob(row pgx.Row) (crawl.Job, error) {
	var (
		job           crawl.Job
		reason        string
		summaryURI    *string
		summaryDigest *string
		fullURI       *string
		fullDigest    *string
	)
	err := row.Scan(
		&job.ID, &job.SeedURL, &job.Filters, &job.Status, &reason, &job.PageCount,
		&job.Submitted, &job.Started, &job.Finished,
		&summaryURI, &summaryDigest, &fullURI, &fullDigest,
	)
	if err != nil {
		return crawl.Job{}, err
	}
	job.Reason = crawl.FailReason(reason)
	if summaryURI != nil && fullURI != nil {
		job.Documents = &crawl.DocumentSet{
			SummaryURI:    *summaryURI,
			SummaryDigest: deref(summaryDigest),
			FullURI:       *fullURI,
			FullDigest:    deref(fullDigest),
		}
	}
	return job, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
