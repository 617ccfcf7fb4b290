// Package memory provides an in-memory JobRepository implementation used by
// unit tests and the ephemeral "memory" database driver mode.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/finsight/analysis-orchestrator/internal/domain"
	"github.com/finsight/analysis-orchestrator/internal/store"
	"github.com/google/uuid"
)

// JobStore implements store.JobRepository with a mutex-guarded map.
// Jobs are deep-copied on the way in and out so callers can never mutate
// stored state without going through Save.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*domain.AnalysisJob
}

// NewJobStore creates an empty in-memory job store.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[uuid.UUID]*domain.AnalysisJob),
	}
}

// Save inserts or updates the job, keyed by its id.
func (s *JobStore) Save(ctx context.Context, job *domain.AnalysisJob) error {
	if err := job.Validate(); err != nil {
		return store.NewRepositoryError("save", job.ID.String(), "validation failed",
			store.ErrInvalidEntity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.Clone()
	return nil
}

// GetByID returns the job with the given id.
func (s *JobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.AnalysisJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, store.NewRepositoryError("get_by_id", id.String(), "no such job",
			store.ErrJobNotFound)
	}
	return job.Clone(), nil
}

// GetAll returns every stored job, newest first.
func (s *JobStore) GetAll(ctx context.Context) ([]*domain.AnalysisJob, error) {
	jobs := s.snapshot(func(j *domain.AnalysisJob) bool { return true })
	sort.Slice(jobs, func(a, b int) bool {
		return jobs[a].CreatedAt.After(jobs[b].CreatedAt)
	})
	return jobs, nil
}

// GetByStatus returns all jobs in the given status, oldest first.
func (s *JobStore) GetByStatus(
	ctx context.Context,
	status domain.JobStatus,
) ([]*domain.AnalysisJob, error) {
	jobs := s.snapshot(func(j *domain.AnalysisJob) bool { return j.Status == status })
	sort.Slice(jobs, func(a, b int) bool {
		return jobs[a].CreatedAt.Before(jobs[b].CreatedAt)
	})
	return jobs, nil
}

// GetByTicker returns all jobs for the given ticker, newest first.
func (s *JobStore) GetByTicker(
	ctx context.Context,
	ticker string,
) ([]*domain.AnalysisJob, error) {
	jobs := s.snapshot(func(j *domain.AnalysisJob) bool { return j.Ticker == ticker })
	sort.Slice(jobs, func(a, b int) bool {
		return jobs[a].CreatedAt.After(jobs[b].CreatedAt)
	})
	return jobs, nil
}

// GetReady returns pending and queued jobs in dispatch order.
func (s *JobStore) GetReady(ctx context.Context) ([]*domain.AnalysisJob, error) {
	jobs := s.snapshot(func(j *domain.AnalysisJob) bool {
		return j.Status == domain.JobStatusPending || j.Status == domain.JobStatusQueued
	})
	sort.Slice(jobs, func(a, b int) bool {
		ra, rb := domain.PriorityRank(jobs[a].Priority), domain.PriorityRank(jobs[b].Priority)
		if ra != rb {
			return ra < rb
		}
		return jobs[a].CreatedAt.Before(jobs[b].CreatedAt)
	})
	return jobs, nil
}

// GetRetryable returns failed jobs with remaining retry budget whose failure
// is at least olderThan in the past.
func (s *JobStore) GetRetryable(
	ctx context.Context,
	olderThan time.Duration,
) ([]*domain.AnalysisJob, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	jobs := s.snapshot(func(j *domain.AnalysisJob) bool {
		if !j.CanRetry() {
			return false
		}
		return olderThan == 0 || (j.CompletedAt != nil && j.CompletedAt.Before(cutoff))
	})
	sort.Slice(jobs, func(a, b int) bool {
		return jobs[a].CreatedAt.Before(jobs[b].CreatedAt)
	})
	return jobs, nil
}

// GetScheduled returns queued jobs, oldest first.
func (s *JobStore) GetScheduled(ctx context.Context) ([]*domain.AnalysisJob, error) {
	return s.GetByStatus(ctx, domain.JobStatusQueued)
}

// Delete removes the job with the given id.
func (s *JobStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return store.NewRepositoryError("delete", id.String(), "no such job",
			store.ErrJobNotFound)
	}
	delete(s.jobs, id)
	return nil
}

// Clear removes all jobs.
func (s *JobStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make(map[uuid.UUID]*domain.AnalysisJob)
	return nil
}

// GetStatistics returns per-status counts and the overall success rate.
func (s *JobStore) GetStatistics(ctx context.Context) (*domain.RepositoryStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[domain.JobStatus]int)
	for _, j := range s.jobs {
		counts[j.Status]++
	}

	stats := &domain.RepositoryStatistics{
		CountsByStatus: counts,
		TotalJobs:      len(s.jobs),
	}
	finished := counts[domain.JobStatusCompleted] + counts[domain.JobStatusFailed]
	if finished > 0 {
		stats.SuccessRate = float64(counts[domain.JobStatusCompleted]) / float64(finished)
	}
	return stats, nil
}

// snapshot copies every job matching the filter while holding the read lock.
func (s *JobStore) snapshot(match func(*domain.AnalysisJob) bool) []*domain.AnalysisJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*domain.AnalysisJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		if match(j) {
			jobs = append(jobs, j.Clone())
		}
	}
	return jobs
}

// Interface compliance check
var _ store.JobRepository = (*JobStore)(nil)
