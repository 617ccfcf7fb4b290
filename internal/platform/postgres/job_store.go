package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/finsight/analysis-orchestrator/internal/domain"
	"github.com/finsight/analysis-orchestrator/internal/platform/logger"
	"github.com/finsight/analysis-orchestrator/internal/store"
	"github.com/google/uuid"
)

// jobColumns is the stable column list shared by every SELECT in this store.
const jobColumns = `id, ticker, trade_date, status, priority, created_at,
	started_at, completed_at, result_id, error_message, retry_count, max_retries`

// JobStore implements the store.JobRepository interface using PostgreSQL.
type JobStore struct {
	db store.DBTX
}

// NewJobStore creates a new PostgreSQL-backed job store.
func NewJobStore(db store.DBTX) *JobStore {
	return &JobStore{
		db: db,
	}
}

// WithTx returns a new JobStore that uses the provided transaction, allowing
// multiple operations to be executed atomically. The transaction is created
// and managed by the caller.
func (s *JobStore) WithTx(tx *sql.Tx) *JobStore {
	return &JobStore{
		db: tx,
	}
}

// Save inserts or updates the job, keyed by its id.
func (s *JobStore) Save(ctx context.Context, job *domain.AnalysisJob) error {
	log := logger.FromContext(ctx)

	if err := job.Validate(); err != nil {
		return store.NewRepositoryError("save", job.ID.String(), "validation failed",
			fmt.Errorf("%w: %v", store.ErrInvalidEntity, err))
	}

	query := `
		INSERT INTO analysis_jobs
			(id, ticker, trade_date, status, priority, created_at,
			 started_at, completed_at, result_id, error_message, retry_count, max_retries)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			result_id = EXCLUDED.result_id,
			error_message = EXCLUDED.error_message,
			retry_count = EXCLUDED.retry_count
	`

	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.Ticker,
		job.TradeDate,
		job.Status,
		job.Priority,
		job.CreatedAt,
		job.StartedAt,
		job.CompletedAt,
		nullableString(job.ResultID),
		nullableString(job.ErrorMessage),
		job.RetryCount,
		job.MaxRetries,
	)
	if err != nil {
		log.Error("failed to save job",
			"job_id", job.ID,
			"status", job.Status,
			"error", err)
		return store.NewRepositoryError("save", job.ID.String(), "exec failed", MapError(err))
	}

	return nil
}

// GetByID returns the job with the given id.
func (s *JobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.AnalysisJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM analysis_jobs WHERE id = $1`, jobColumns)

	row := s.db.QueryRowContext(ctx, query, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NewRepositoryError("get_by_id", id.String(), "no such job",
				store.ErrJobNotFound)
		}
		return nil, store.NewRepositoryError("get_by_id", id.String(), "scan failed", err)
	}
	return job, nil
}

// GetAll returns every stored job, newest first.
func (s *JobStore) GetAll(ctx context.Context) ([]*domain.AnalysisJob, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM analysis_jobs ORDER BY created_at DESC`, jobColumns)
	return s.queryJobs(ctx, "get_all", query)
}

// GetByStatus returns all jobs in the given status, oldest first.
func (s *JobStore) GetByStatus(
	ctx context.Context,
	status domain.JobStatus,
) ([]*domain.AnalysisJob, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM analysis_jobs WHERE status = $1 ORDER BY created_at ASC`, jobColumns)
	return s.queryJobs(ctx, "get_by_status", query, status)
}

// GetByTicker returns all jobs for the given ticker, newest first.
func (s *JobStore) GetByTicker(
	ctx context.Context,
	ticker string,
) ([]*domain.AnalysisJob, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM analysis_jobs WHERE ticker = $1 ORDER BY created_at DESC`, jobColumns)
	return s.queryJobs(ctx, "get_by_ticker", query, ticker)
}

// GetReady returns pending and queued jobs in dispatch order: priority band
// first, then creation time within a band.
func (s *JobStore) GetReady(ctx context.Context) ([]*domain.AnalysisJob, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM analysis_jobs
		WHERE status IN ('pending', 'queued')
		ORDER BY
			CASE priority WHEN 'high' THEN 0 WHEN 'normal' THEN 1 ELSE 2 END,
			created_at ASC
	`, jobColumns)
	return s.queryJobs(ctx, "get_ready", query)
}

// GetRetryable returns failed jobs with remaining retry budget whose failure
// is at least olderThan in the past.
func (s *JobStore) GetRetryable(
	ctx context.Context,
	olderThan time.Duration,
) ([]*domain.AnalysisJob, error) {
	if olderThan > 0 {
		query := fmt.Sprintf(`
			SELECT %s FROM analysis_jobs
			WHERE status = 'failed' AND retry_count < max_retries AND completed_at < $1
			ORDER BY created_at ASC
		`, jobColumns)
		return s.queryJobs(ctx, "get_retryable", query, time.Now().UTC().Add(-olderThan))
	}

	query := fmt.Sprintf(`
		SELECT %s FROM analysis_jobs
		WHERE status = 'failed' AND retry_count < max_retries
		ORDER BY created_at ASC
	`, jobColumns)
	return s.queryJobs(ctx, "get_retryable", query)
}

// GetScheduled returns queued jobs, oldest first.
func (s *JobStore) GetScheduled(ctx context.Context) ([]*domain.AnalysisJob, error) {
	return s.GetByStatus(ctx, domain.JobStatusQueued)
}

// Delete removes the job with the given id.
func (s *JobStore) Delete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContext(ctx)

	result, err := s.db.ExecContext(ctx, `DELETE FROM analysis_jobs WHERE id = $1`, id)
	if err != nil {
		log.Error("failed to delete job", "job_id", id, "error", err)
		return store.NewRepositoryError("delete", id.String(), "exec failed", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return store.NewRepositoryError("delete", id.String(), "rows affected", err)
	}
	if rowsAffected == 0 {
		return store.NewRepositoryError("delete", id.String(), "no such job",
			store.ErrJobNotFound)
	}
	return nil
}

// Clear removes all jobs.
func (s *JobStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM analysis_jobs`); err != nil {
		return store.NewRepositoryError("clear", "", "exec failed", err)
	}
	return nil
}

// GetStatistics returns per-status counts and the overall success rate.
func (s *JobStore) GetStatistics(ctx context.Context) (*domain.RepositoryStatistics, error) {
	log := logger.FromContext(ctx)

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM analysis_jobs GROUP BY status`)
	if err != nil {
		log.Error("failed to query job statistics", "error", err)
		return nil, store.NewRepositoryError("get_statistics", "", "query failed", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[domain.JobStatus]int)
	total := 0
	for rows.Next() {
		var status domain.JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, store.NewRepositoryError("get_statistics", "", "scan failed", err)
		}
		counts[status] = count
		total += count
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewRepositoryError("get_statistics", "", "row iteration", err)
	}

	stats := &domain.RepositoryStatistics{
		CountsByStatus: counts,
		TotalJobs:      total,
	}
	finished := counts[domain.JobStatusCompleted] + counts[domain.JobStatusFailed]
	if finished > 0 {
		stats.SuccessRate = float64(counts[domain.JobStatusCompleted]) / float64(finished)
	}
	return stats, nil
}

// queryJobs runs a multi-row job query and scans the results.
func (s *JobStore) queryJobs(
	ctx context.Context,
	operation, query string,
	args ...any,
) ([]*domain.AnalysisJob, error) {
	log := logger.FromContext(ctx)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query jobs", "operation", operation, "error", err)
		return nil, store.NewRepositoryError(operation, "", "query failed", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.AnalysisJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			log.Error("failed to scan job row", "operation", operation, "error", err)
			return nil, store.NewRepositoryError(operation, "", "scan failed", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewRepositoryError(operation, "", "row iteration", err)
	}

	return jobs, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanJob reads one analysis_jobs row into a domain job.
func scanJob(row rowScanner) (*domain.AnalysisJob, error) {
	var job domain.AnalysisJob
	var startedAt, completedAt sql.NullTime
	var resultID, errorMessage sql.NullString

	if err := row.Scan(
		&job.ID,
		&job.Ticker,
		&job.TradeDate,
		&job.Status,
		&job.Priority,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
		&resultID,
		&errorMessage,
		&job.RetryCount,
		&job.MaxRetries,
	); err != nil {
		return nil, err
	}

	if startedAt.Valid {
		t := startedAt.Time.UTC()
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		job.CompletedAt = &t
	}
	job.ResultID = resultID.String
	job.ErrorMessage = errorMessage.String
	job.CreatedAt = job.CreatedAt.UTC()

	return &job, nil
}

// nullableString converts an empty string to NULL so "unset" survives the
// round trip through the database.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Interface compliance check
var _ store.JobRepository = (*JobStore)(nil)
