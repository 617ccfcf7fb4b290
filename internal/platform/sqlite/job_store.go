// Package sqlite implements the store.JobRepository interface against an
// embedded SQLite database, for single-device deployments that do not run
// PostgreSQL.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/finsight/analysis-orchestrator/internal/domain"
	"github.com/finsight/analysis-orchestrator/internal/store"
	"github.com/google/uuid"

	_ "github.com/mattn/go-sqlite3"
)

const jobColumns = `id, ticker, trade_date, status, priority, created_at,
	started_at, completed_at, result_id, error_message, retry_count, max_retries`

// JobStore implements store.JobRepository using SQLite.
type JobStore struct {
	db *sql.DB
}

// NewJobStore opens (or creates) the SQLite database at dbPath and ensures
// the schema exists. WAL mode keeps concurrent readers from blocking the
// single writer.
func NewJobStore(dbPath string) (*JobStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &JobStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *JobStore) Close() error {
	return s.db.Close()
}

func (s *JobStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS analysis_jobs (
		id TEXT PRIMARY KEY,
		ticker TEXT NOT NULL,
		trade_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		priority TEXT NOT NULL DEFAULT 'normal',
		created_at INTEGER NOT NULL,
		started_at INTEGER,
		completed_at INTEGER,
		result_id TEXT,
		error_message TEXT,
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 3
	);

	CREATE INDEX IF NOT EXISTS idx_analysis_jobs_status ON analysis_jobs(status);
	CREATE INDEX IF NOT EXISTS idx_analysis_jobs_ticker ON analysis_jobs(ticker);
	CREATE INDEX IF NOT EXISTS idx_analysis_jobs_created_at ON analysis_jobs(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Save inserts or updates the job, keyed by its id. The exists-check and
// write run in one transaction so concurrent saves to the same id serialize.
func (s *JobStore) Save(ctx context.Context, job *domain.AnalysisJob) error {
	if err := job.Validate(); err != nil {
		return store.NewRepositoryError("save", job.ID.String(), "validation failed",
			fmt.Errorf("%w: %v", store.ErrInvalidEntity, err))
	}

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM analysis_jobs WHERE id = ?`, job.ID.String()).Scan(&exists)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return s.insertJob(ctx, tx, job)
		case err != nil:
			return err
		default:
			return s.updateJob(ctx, tx, job)
		}
	})
	if err != nil {
		return store.NewRepositoryError("save", job.ID.String(), "write failed", err)
	}
	return nil
}

func (s *JobStore) insertJob(ctx context.Context, tx *sql.Tx, job *domain.AnalysisJob) error {
	query := `
		INSERT INTO analysis_jobs
			(id, ticker, trade_date, status, priority, created_at,
			 started_at, completed_at, result_id, error_message, retry_count, max_retries)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := tx.ExecContext(ctx, query,
		job.ID.String(),
		job.Ticker,
		job.TradeDate,
		job.Status,
		job.Priority,
		job.CreatedAt.UnixNano(),
		nullableUnix(job.StartedAt),
		nullableUnix(job.CompletedAt),
		nullableString(job.ResultID),
		nullableString(job.ErrorMessage),
		job.RetryCount,
		job.MaxRetries,
	)
	return err
}

func (s *JobStore) updateJob(ctx context.Context, tx *sql.Tx, job *domain.AnalysisJob) error {
	query := `
		UPDATE analysis_jobs
		SET status = ?, started_at = ?, completed_at = ?,
		    result_id = ?, error_message = ?, retry_count = ?
		WHERE id = ?
	`
	_, err := tx.ExecContext(ctx, query,
		job.Status,
		nullableUnix(job.StartedAt),
		nullableUnix(job.CompletedAt),
		nullableString(job.ResultID),
		nullableString(job.ErrorMessage),
		job.RetryCount,
		job.ID.String(),
	)
	return err
}

// GetByID returns the job with the given id.
func (s *JobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.AnalysisJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM analysis_jobs WHERE id = ?`, jobColumns)

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id.String()))
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
		`SELECT %s FROM analysis_jobs WHERE status = ? ORDER BY created_at ASC`, jobColumns)
	return s.queryJobs(ctx, "get_by_status", query, status)
}

// GetByTicker returns all jobs for the given ticker, newest first.
func (s *JobStore) GetByTicker(
	ctx context.Context,
	ticker string,
) ([]*domain.AnalysisJob, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM analysis_jobs WHERE ticker = ? ORDER BY created_at DESC`, jobColumns)
	return s.queryJobs(ctx, "get_by_ticker", query, ticker)
}

// GetReady returns pending and queued jobs in dispatch order.
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
			WHERE status = 'failed' AND retry_count < max_retries AND completed_at < ?
			ORDER BY created_at ASC
		`, jobColumns)
		cutoff := time.Now().UTC().Add(-olderThan).UnixNano()
		return s.queryJobs(ctx, "get_retryable", query, cutoff)
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
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM analysis_jobs WHERE id = ?`, id.String())
	if err != nil {
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
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM analysis_jobs GROUP BY status`)
	if err != nil {
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

func (s *JobStore) queryJobs(
	ctx context.Context,
	operation, query string,
	args ...any,
) ([]*domain.AnalysisJob, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.NewRepositoryError(operation, "", "query failed", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.AnalysisJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, store.NewRepositoryError(operation, "", "scan failed", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewRepositoryError(operation, "", "row iteration", err)
	}

	return jobs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.AnalysisJob, error) {
	var job domain.AnalysisJob
	var id string
	var createdAt int64
	var startedAt, completedAt sql.NullInt64
	var resultID, errorMessage sql.NullString

	if err := row.Scan(
		&id,
		&job.Ticker,
		&job.TradeDate,
		&job.Status,
		&job.Priority,
		&createdAt,
		&startedAt,
		&completedAt,
		&resultID,
		&errorMessage,
		&job.RetryCount,
		&job.MaxRetries,
	); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("corrupted job id %q: %w", id, err)
	}
	job.ID = parsed
	job.CreatedAt = time.Unix(0, createdAt).UTC()

	if startedAt.Valid {
		t := time.Unix(0, startedAt.Int64).UTC()
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := time.Unix(0, completedAt.Int64).UTC()
		job.CompletedAt = &t
	}
	job.ResultID = resultID.String
	job.ErrorMessage = errorMessage.String

	return &job, nil
}

func nullableUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Interface compliance check
var _ store.JobRepository = (*JobStore)(nil)
