// Package store provides abstractions and implementations for job persistence.
package store

import (
	"context"
	"time"

	"github.com/finsight/analysis-orchestrator/internal/domain"
	"github.com/google/uuid"
)

// JobRepository is the durable CRUD and query contract over AnalysisJob.
// It is the only component that touches storage; the queue manager and retry
// scheduler delegate all persistence through it.
//
// All methods are safe to call concurrently with in-flight writes to other
// job ids; writes to the same id are serialized by the backing store. Any I/O
// fault surfaces as a *RepositoryError so callers can decide whether to retry
// the persistence call itself.
type JobRepository interface {
	// Save inserts or updates the job, keyed by its id.
	Save(ctx context.Context, job *domain.AnalysisJob) error

	// GetByID returns the job with the given id, or an error wrapping
	// ErrJobNotFound if no such job exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.AnalysisJob, error)

	// GetAll returns every stored job, newest first.
	GetAll(ctx context.Context) ([]*domain.AnalysisJob, error)

	// GetByStatus returns all jobs in the given status, oldest first.
	GetByStatus(ctx context.Context, status domain.JobStatus) ([]*domain.AnalysisJob, error)

	// GetByTicker returns all jobs for the given ticker, newest first.
	GetByTicker(ctx context.Context, ticker string) ([]*domain.AnalysisJob, error)

	// GetReady returns pending and queued jobs in dispatch order: priority
	// band first, then creation time within a band.
	GetReady(ctx context.Context) ([]*domain.AnalysisJob, error)

	// GetRetryable returns failed jobs with remaining retry budget whose
	// failure is at least olderThan in the past. Pass zero to get every
	// retryable job regardless of age.
	GetRetryable(ctx context.Context, olderThan time.Duration) ([]*domain.AnalysisJob, error)

	// GetScheduled returns jobs accepted into the queue but not yet running
	// (status queued), oldest first.
	GetScheduled(ctx context.Context) ([]*domain.AnalysisJob, error)

	// Delete removes the job with the given id. Deleting a missing id
	// returns an error wrapping ErrJobNotFound.
	Delete(ctx context.Context, id uuid.UUID) error

	// Clear removes all jobs.
	Clear(ctx context.Context) error

	// GetStatistics returns per-status counts and the overall success rate
	// (completed / (completed + failed)).
	GetStatistics(ctx context.Context) (*domain.RepositoryStatistics, error)
}
