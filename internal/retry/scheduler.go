// Package retry decides whether and when a failed analysis job re-enters
// the queue. It owns the backoff timers; armed timers never occupy a worker
// slot.
package retry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/finsight/analysis-orchestrator/internal/domain"
	"github.com/finsight/analysis-orchestrator/internal/store"
	"github.com/google/uuid"
)

// Enqueuer resubmits a job to the queue. Implemented by queue.Manager.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *domain.AnalysisJob) error
}

// Scheduler arms one backoff timer per retryable failed job. When a timer
// fires it consumes a unit of retry budget, persists the pending transition
// and re-enqueues the job. Its in-memory timer set does not survive a
// restart; Restore reconstructs it from the repository.
type Scheduler struct {
	queue  Enqueuer
	repo   store.JobRepository
	policy Policy
	clock  Clock
	logger *slog.Logger

	mu     sync.Mutex
	timers map[uuid.UUID]Timer
}

// NewScheduler creates a retry scheduler. Pass NewClock() outside tests.
func NewScheduler(
	queue Enqueuer,
	repo store.JobRepository,
	policy Policy,
	clock Clock,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		queue:  queue,
		repo:   repo,
		policy: policy,
		clock:  clock,
		logger: logger.With("component", "retry_scheduler"),
		timers: make(map[uuid.UUID]Timer),
	}
}

// ScheduleRetry evaluates a failed job for retry. If the retry budget is
// exhausted the job stays failed forever and no timer is armed. Scheduling
// an id that already has an armed timer is a no-op.
func (s *Scheduler) ScheduleRetry(ctx context.Context, job *domain.AnalysisJob) {
	if !job.CanRetry() {
		s.logger.InfoContext(ctx, "retry budget exhausted, job stays failed",
			"job_id", job.ID,
			"retry_count", job.RetryCount,
			"max_retries", job.MaxRetries)
		return
	}

	s.armTimer(job, s.policy.Delay(job.RetryCount))
}

// armTimer registers a timer for the job unless one is already armed.
func (s *Scheduler) armTimer(job *domain.AnalysisJob, delay time.Duration) {
	s.mu.Lock()
	if _, armed := s.timers[job.ID]; armed {
		s.mu.Unlock()
		s.logger.Debug("retry already scheduled", "job_id", job.ID)
		return
	}

	clone := job.Clone()
	s.timers[job.ID] = s.clock.AfterFunc(delay, func() {
		s.fire(clone)
	})
	s.mu.Unlock()

	s.logger.Info("retry scheduled",
		"job_id", job.ID,
		"retry_count", job.RetryCount,
		"delay", delay)
}

// fire runs when a retry timer expires: it consumes retry budget, persists
// the pending transition and resubmits the job.
func (s *Scheduler) fire(job *domain.AnalysisJob) {
	s.mu.Lock()
	if _, armed := s.timers[job.ID]; !armed {
		// Cancelled between expiry and execution.
		s.mu.Unlock()
		return
	}
	delete(s.timers, job.ID)
	s.mu.Unlock()

	ctx := context.Background()

	clone := job.Clone()
	if err := clone.ResetForRetry(); err != nil {
		s.logger.Error("failed to reset job for retry", "job_id", job.ID, "error", err)
		return
	}

	if err := s.repo.Save(ctx, clone); err != nil {
		// The job stays failed in the durable store; restart recovery will
		// pick it up again.
		s.logger.Error("failed to persist retry transition",
			"job_id", job.ID, "error", err)
		return
	}

	if err := s.queue.Enqueue(ctx, clone); err != nil {
		s.logger.Error("failed to re-enqueue job for retry",
			"job_id", job.ID, "error", err)
		return
	}

	s.logger.Info("job re-enqueued for retry",
		"job_id", job.ID,
		"retry_count", clone.RetryCount,
		"max_retries", clone.MaxRetries)
}

// HasScheduledRetry reports whether a retry timer is armed for the id.
func (s *Scheduler) HasScheduledRetry(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, armed := s.timers[id]
	return armed
}

// CancelRetry disarms any retry timer for the id.
func (s *Scheduler) CancelRetry(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, armed := s.timers[id]; armed {
		t.Stop()
		delete(s.timers, id)
		s.logger.Debug("retry timer cancelled", "job_id", id)
	}
}

// Restore rebuilds the timer set from the repository after a restart:
// every failed job with remaining retry budget gets a timer for whatever
// portion of its backoff delay has not yet elapsed.
func (s *Scheduler) Restore(ctx context.Context) error {
	jobs, err := s.repo.GetRetryable(ctx, 0)
	if err != nil {
		return err
	}

	now := s.clock.Now().UTC()
	for _, job := range jobs {
		delay := s.policy.Delay(job.RetryCount)
		if job.CompletedAt != nil {
			elapsed := now.Sub(*job.CompletedAt)
			delay -= elapsed
		}
		if delay < 0 {
			delay = 0
		}
		s.armTimer(job, delay)
	}

	s.logger.InfoContext(ctx, "retry timers restored", "count", len(jobs))
	return nil
}

// Stop disarms every timer. Pending retries are reconstructed by Restore on
// the next start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
