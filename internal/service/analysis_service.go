// Package service holds the application services that sit between the HTTP
// surface and the orchestration core.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/finsight/analysis-orchestrator/internal/domain"
	"github.com/finsight/analysis-orchestrator/internal/events"
	"github.com/finsight/analysis-orchestrator/internal/store"
)

// JobCanceller cancels a job wherever it currently is (pending, running, or
// awaiting retry). Implemented by queue.Manager.
type JobCanceller interface {
	Cancel(ctx context.Context, id uuid.UUID) error
}

// AnalysisService provides job submission and inspection operations.
type AnalysisService interface {
	// SubmitAnalysis creates a new pending job, persists it, and emits an
	// analysis request event so the queue picks it up.
	SubmitAnalysis(
		ctx context.Context,
		ticker, tradeDate string,
		priority domain.JobPriority,
		maxRetries int,
	) (*domain.AnalysisJob, error)

	// GetJob retrieves a job by its ID.
	GetJob(ctx context.Context, id uuid.UUID) (*domain.AnalysisJob, error)

	// ListJobs returns jobs filtered by status and/or ticker. Empty filters
	// return all jobs, newest first.
	ListJobs(ctx context.Context, status domain.JobStatus, ticker string) ([]*domain.AnalysisJob, error)

	// CancelJob cancels a job regardless of where it currently sits.
	CancelJob(ctx context.Context, id uuid.UUID) error

	// GetStatistics returns repository-wide job counts.
	GetStatistics(ctx context.Context) (*domain.RepositoryStatistics, error)
}

// Common sentinel errors for AnalysisService.
var (
	// ErrJobNotFound indicates that the job does not exist.
	ErrJobNotFound = errors.New("analysis job not found")
)

// AnalysisServiceError wraps errors from the analysis service with context.
type AnalysisServiceError struct {
	// Operation is the operation that failed (e.g., "submit_analysis").
	Operation string
	// Message is a human-readable description of the error.
	Message string
	// Err is the underlying error that caused the failure.
	Err error
}

// Error implements the error interface for AnalysisServiceError.
func (e *AnalysisServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("analysis service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("analysis service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *AnalysisServiceError) Unwrap() error {
	return e.Err
}

// NewAnalysisServiceError creates a new AnalysisServiceError.
// It returns known sentinel errors directly without wrapping.
func NewAnalysisServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrJobNotFound) {
		return ErrJobNotFound
	}
	if store.IsNotFoundError(err) {
		return ErrJobNotFound
	}
	return &AnalysisServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// analysisServiceImpl implements the AnalysisService interface.
type analysisServiceImpl struct {
	repo         store.JobRepository
	canceller    JobCanceller
	eventEmitter events.EventEmitter
	logger       *slog.Logger
}

// NewAnalysisService creates a new AnalysisService.
// It returns an error if any of the required dependencies are nil.
func NewAnalysisService(
	repo store.JobRepository,
	canceller JobCanceller,
	eventEmitter events.EventEmitter,
	logger *slog.Logger,
) (AnalysisService, error) {
	if repo == nil {
		return nil, &AnalysisServiceError{
			Operation: "create_service",
			Message:   "repo cannot be nil",
		}
	}
	if canceller == nil {
		return nil, &AnalysisServiceError{
			Operation: "create_service",
			Message:   "canceller cannot be nil",
		}
	}
	if eventEmitter == nil {
		return nil, &AnalysisServiceError{
			Operation: "create_service",
			Message:   "eventEmitter cannot be nil",
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &analysisServiceImpl{
		repo:         repo,
		canceller:    canceller,
		eventEmitter: eventEmitter,
		logger:       logger.With("component", "analysis_service"),
	}, nil
}

// SubmitAnalysis creates a pending job, persists it, then emits the request
// event. A failed emit leaves the job pending; it is picked up again on the
// next restart.
func (s *analysisServiceImpl) SubmitAnalysis(
	ctx context.Context,
	ticker, tradeDate string,
	priority domain.JobPriority,
	maxRetries int,
) (*domain.AnalysisJob, error) {
	job, err := domain.NewAnalysisJob(ticker, tradeDate, priority, maxRetries)
	if err != nil {
		s.logger.Error("failed to create job object",
			"error", err,
			"ticker", ticker,
			"trade_date", tradeDate)
		return nil, NewAnalysisServiceError("submit_analysis", "failed to create job object", err)
	}

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to persist job",
			"error", err,
			"job_id", job.ID)
		return nil, NewAnalysisServiceError("submit_analysis", "failed to save job", err)
	}

	s.logger.Info("job created with pending status",
		"job_id", job.ID,
		"ticker", ticker,
		"trade_date", tradeDate,
		"priority", priority)

	event, err := events.NewAnalysisRequestEvent(
		events.EventTypeAnalysisRequested,
		events.AnalysisRequestPayload{JobID: job.ID},
	)
	if err != nil {
		s.logger.Error("failed to create analysis request event",
			"error", err,
			"job_id", job.ID)
		return nil, NewAnalysisServiceError("submit_analysis", "failed to create event", err)
	}

	if err := s.eventEmitter.EmitEvent(ctx, event); err != nil {
		// The job is saved; it stays pending until recovery requeues it.
		s.logger.Warn("failed to emit analysis request event, job remains pending",
			"error", err,
			"job_id", job.ID)
	}

	return job, nil
}

func (s *analysisServiceImpl) GetJob(ctx context.Context, id uuid.UUID) (*domain.AnalysisJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, NewAnalysisServiceError("get_job", "failed to load job", err)
	}
	return job, nil
}

func (s *analysisServiceImpl) ListJobs(
	ctx context.Context,
	status domain.JobStatus,
	ticker string,
) ([]*domain.AnalysisJob, error) {
	var (
		jobs []*domain.AnalysisJob
		err  error
	)
	switch {
	case status != "" && ticker != "":
		jobs, err = s.repo.GetByStatus(ctx, status)
		if err == nil {
			filtered := jobs[:0]
			for _, job := range jobs {
				if job.Ticker == ticker {
					filtered = append(filtered, job)
				}
			}
			jobs = filtered
		}
	case status != "":
		jobs, err = s.repo.GetByStatus(ctx, status)
	case ticker != "":
		jobs, err = s.repo.GetByTicker(ctx, ticker)
	default:
		jobs, err = s.repo.GetAll(ctx)
	}
	if err != nil {
		return nil, NewAnalysisServiceError("list_jobs", "failed to list jobs", err)
	}
	return jobs, nil
}

func (s *analysisServiceImpl) CancelJob(ctx context.Context, id uuid.UUID) error {
	if err := s.canceller.Cancel(ctx, id); err != nil {
		if store.IsNotFoundError(err) {
			return ErrJobNotFound
		}
		return NewAnalysisServiceError("cancel_job", "failed to cancel job", err)
	}
	s.logger.Info("job cancelled", "job_id", id)
	return nil
}

func (s *analysisServiceImpl) GetStatistics(ctx context.Context) (*domain.RepositoryStatistics, error) {
	stats, err := s.repo.GetStatistics(ctx)
	if err != nil {
		return nil, NewAnalysisServiceError("get_statistics", "failed to load statistics", err)
	}
	return stats, nil
}
