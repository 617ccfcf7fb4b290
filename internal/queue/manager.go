// Package queue contains the scheduling authority for analysis jobs: it
// enforces the concurrency ceiling, selects the next job to run, and owns
// every status transition between enqueue and a terminal state.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/finsight/analysis-orchestrator/internal/domain"
	"github.com/finsight/analysis-orchestrator/internal/notify"
	"github.com/finsight/analysis-orchestrator/internal/store"
	"github.com/google/uuid"
)

// Common errors returned by the Manager
var (
	ErrJobTerminal = errors.New("job is in a terminal state")
)

// ExecutionRecorder receives execution events in the order the manager emits
// them. The metrics collector implements this.
type ExecutionRecorder interface {
	RecordTaskStart(id uuid.UUID)
	RecordTaskComplete(id uuid.UUID, duration time.Duration)
	RecordTaskFailed(id uuid.UUID, errorMessage string)
}

// RetryScheduler decides whether and when a failed job re-enters the queue.
type RetryScheduler interface {
	ScheduleRetry(ctx context.Context, job *domain.AnalysisJob)
	CancelRetry(id uuid.UUID)
}

// Config holds configuration for the queue manager.
type Config struct {
	// MaxConcurrent is the initial ceiling on concurrently running jobs.
	// The auto-scaler adjusts it at runtime.
	MaxConcurrent int
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 2,
	}
}

// Manager is the in-memory scheduling authority over analysis jobs. All
// mutation methods are serialized on an internal mutex so the concurrency
// bound is never raced past. Terminal transitions claim the running entry
// under the lock before persisting, so only one outcome can ever reach the
// repository for a job; a failed write restores the claim.
type Manager struct {
	repo     store.JobRepository
	logger   *slog.Logger
	notifier notify.Notifier

	// maxConcurrent is the one piece of state shared with the auto-scaler:
	// the scaler writes it, dequeue reads it.
	maxConcurrent atomic.Int64

	mu             sync.Mutex
	pending        *pendingIndex
	running        map[uuid.UUID]*domain.AnalysisJob
	completedCount int
	failedCount    int

	recorder ExecutionRecorder
	retrier  RetryScheduler

	// wake is pulsed whenever a job arrives or a slot frees so idle workers
	// can re-try Dequeue instead of busy-polling.
	wake chan struct{}
}

// NewManager creates a queue manager over the given repository.
func NewManager(
	repo store.JobRepository,
	cfg Config,
	notifier notify.Notifier,
	logger *slog.Logger,
) *Manager {
	if cfg.MaxConcurrent < 1 {
		logger.Warn("invalid max concurrent jobs, using default",
			"specified", cfg.MaxConcurrent,
			"default", DefaultConfig().MaxConcurrent)
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}

	m := &Manager{
		repo:     repo,
		logger:   logger.With("component", "job_queue_manager"),
		notifier: notifier,
		pending:  newPendingIndex(),
		running:  make(map[uuid.UUID]*domain.AnalysisJob),
		wake:     make(chan struct{}, 1),
	}
	m.maxConcurrent.Store(int64(cfg.MaxConcurrent))
	return m
}

// SetRetryScheduler wires the retry scheduler. Set once at startup; the
// scheduler and manager reference each other, so this cannot happen in the
// constructor.
func (m *Manager) SetRetryScheduler(r RetryScheduler) {
	m.retrier = r
}

// SetExecutionRecorder wires the metrics collector's event intake.
func (m *Manager) SetExecutionRecorder(rec ExecutionRecorder) {
	m.recorder = rec
}

// MaxConcurrent returns the current concurrency ceiling.
func (m *Manager) MaxConcurrent() int {
	return int(m.maxConcurrent.Load())
}

// SetMaxConcurrent adjusts the concurrency ceiling. Only the auto-scaler
// calls this. Raising the ceiling wakes idle workers.
func (m *Manager) SetMaxConcurrent(n int) {
	if n < 1 {
		n = 1
	}
	old := m.maxConcurrent.Swap(int64(n))
	if int64(n) > old {
		m.signal()
	}
}

// Wake returns a channel that receives a pulse whenever a job may have
// become dispatchable. Workers block on it between Dequeue attempts.
func (m *Manager) Wake() <-chan struct{} {
	return m.wake
}

// Enqueue accepts a job for execution: it persists the job in queued state
// and adds it to the pending index. Enqueueing an id that is already pending
// or running is a no-op, so a duplicate submission never produces a second
// execution. Enqueueing a terminal job returns ErrJobTerminal.
func (m *Manager) Enqueue(ctx context.Context, job *domain.AnalysisJob) error {
	if job.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrJobTerminal, job.Status)
	}

	m.mu.Lock()
	_, isRunning := m.running[job.ID]
	if m.pending.contains(job.ID) || isRunning {
		m.mu.Unlock()
		m.logger.DebugContext(ctx, "duplicate enqueue ignored", "job_id", job.ID)
		return nil
	}
	m.mu.Unlock()

	// The durable store is the idempotency backstop across restarts: an id
	// already persisted in a non-terminal state is simply re-indexed.
	existing, err := m.repo.GetByID(ctx, job.ID)
	switch {
	case err != nil && !store.IsNotFoundError(err):
		return fmt.Errorf("failed to check for existing job: %w", err)
	case existing != nil && existing.IsTerminal():
		return fmt.Errorf("%w: %s", ErrJobTerminal, existing.Status)
	}

	clone := job.Clone()
	if clone.Status == domain.JobStatusPending {
		if err := clone.MarkQueued(); err != nil {
			return err
		}
	}

	if err := m.repo.Save(ctx, clone); err != nil {
		return fmt.Errorf("failed to persist job: %w", err)
	}

	m.mu.Lock()
	added := false
	if _, stillRunning := m.running[clone.ID]; !stillRunning {
		added = m.pending.add(clone)
	}
	m.mu.Unlock()

	if added {
		m.logger.DebugContext(ctx, "job enqueued",
			"job_id", clone.ID,
			"ticker", clone.Ticker,
			"priority", clone.Priority)
		m.signal()
	}
	return nil
}

// Dequeue claims the next job to run, transitions it to running and returns
// it. It returns (nil, nil) when the concurrency ceiling is reached or no
// job is pending; callers wait on Wake and try again.
func (m *Manager) Dequeue(ctx context.Context) (*domain.AnalysisJob, error) {
	m.mu.Lock()
	if int64(len(m.running)) >= m.maxConcurrent.Load() {
		m.mu.Unlock()
		return nil, nil
	}
	job := m.pending.pop()
	if job == nil {
		m.mu.Unlock()
		return nil, nil
	}
	// Reserve the slot before releasing the lock so the ceiling holds even
	// while the status write is in flight.
	m.running[job.ID] = job
	m.mu.Unlock()

	clone := job.Clone()
	if err := clone.MarkRunning(time.Now()); err != nil {
		m.releaseClaim(job)
		return nil, err
	}

	if err := m.repo.Save(ctx, clone); err != nil {
		m.releaseClaim(job)
		return nil, fmt.Errorf("failed to persist running transition: %w", err)
	}

	m.mu.Lock()
	m.running[clone.ID] = clone
	m.mu.Unlock()

	if m.recorder != nil {
		m.recorder.RecordTaskStart(clone.ID)
	}

	m.logger.InfoContext(ctx, "job dequeued",
		"job_id", clone.ID,
		"ticker", clone.Ticker,
		"priority", clone.Priority,
		"retry_count", clone.RetryCount)

	return clone.Clone(), nil
}

// releaseClaim undoes a slot reservation after a failed dispatch.
func (m *Manager) releaseClaim(job *domain.AnalysisJob) {
	m.mu.Lock()
	delete(m.running, job.ID)
	m.pending.add(job)
	m.mu.Unlock()
	m.signal()
}

// MarkCompleted finishes a running job successfully, recording the analysis
// result id. If the job was cancelled while executing, the late completion
// is dropped without error.
func (m *Manager) MarkCompleted(ctx context.Context, job *domain.AnalysisJob, resultID string) error {
	m.mu.Lock()
	current, ok := m.running[job.ID]
	if !ok {
		m.mu.Unlock()
		m.logger.DebugContext(ctx, "completion for job no longer running, ignoring",
			"job_id", job.ID)
		return nil
	}
	// Claim the entry so a concurrent Cancel cannot land a cancelled
	// write on top of the completed row.
	delete(m.running, job.ID)
	m.mu.Unlock()

	clone := current.Clone()
	if err := clone.MarkCompleted(resultID, time.Now()); err != nil {
		m.mu.Lock()
		m.running[job.ID] = current
		m.mu.Unlock()
		return err
	}

	if err := m.repo.Save(ctx, clone); err != nil {
		m.mu.Lock()
		m.running[job.ID] = current
		m.mu.Unlock()
		return fmt.Errorf("failed to persist completion: %w", err)
	}

	m.mu.Lock()
	m.completedCount++
	m.mu.Unlock()
	m.signal()

	if m.recorder != nil {
		m.recorder.RecordTaskComplete(clone.ID, executionDuration(clone))
	}
	if m.notifier != nil {
		m.notifier.JobCompleted(ctx, clone, resultID)
	}

	m.logger.InfoContext(ctx, "job completed",
		"job_id", clone.ID,
		"ticker", clone.Ticker,
		"result_id", resultID)
	return nil
}

// MarkFailed finishes a running job unsuccessfully and hands it to the retry
// scheduler for retry evaluation. Late failures for cancelled jobs are
// dropped without error.
func (m *Manager) MarkFailed(ctx context.Context, job *domain.AnalysisJob, errorMessage string) error {
	m.mu.Lock()
	current, ok := m.running[job.ID]
	if !ok {
		m.mu.Unlock()
		m.logger.DebugContext(ctx, "failure for job no longer running, ignoring",
			"job_id", job.ID)
		return nil
	}
	delete(m.running, job.ID)
	m.mu.Unlock()

	clone := current.Clone()
	if err := clone.MarkFailed(errorMessage, time.Now()); err != nil {
		m.mu.Lock()
		m.running[job.ID] = current
		m.mu.Unlock()
		return err
	}

	if err := m.repo.Save(ctx, clone); err != nil {
		m.mu.Lock()
		m.running[job.ID] = current
		m.mu.Unlock()
		return fmt.Errorf("failed to persist failure: %w", err)
	}

	m.mu.Lock()
	m.failedCount++
	m.mu.Unlock()
	m.signal()

	willRetry := clone.CanRetry() && m.retrier != nil

	if m.recorder != nil {
		m.recorder.RecordTaskFailed(clone.ID, errorMessage)
	}
	if m.notifier != nil {
		m.notifier.JobFailed(ctx, clone, errorMessage, willRetry)
	}

	m.logger.WarnContext(ctx, "job failed",
		"job_id", clone.ID,
		"ticker", clone.Ticker,
		"error", errorMessage,
		"will_retry", willRetry)

	if willRetry {
		m.retrier.ScheduleRetry(ctx, clone)
	}
	return nil
}

// Cancel stops a job. A pending job is removed from the index and marked
// cancelled without ever starting. A running job's bookkeeping transitions
// to cancelled immediately; the in-flight execution is best-effort and its
// late outcome is dropped. A failed job with an armed retry timer keeps its
// failed status but loses the timer.
func (m *Manager) Cancel(ctx context.Context, id uuid.UUID) error {
	if m.retrier != nil {
		m.retrier.CancelRetry(id)
	}

	m.mu.Lock()
	if job := m.pending.remove(id); job != nil {
		m.mu.Unlock()

		clone := job.Clone()
		if err := clone.MarkCancelled(time.Now()); err != nil {
			return err
		}
		if err := m.repo.Save(ctx, clone); err != nil {
			// Persistence failed: the job stays schedulable.
			m.mu.Lock()
			m.pending.add(job)
			m.mu.Unlock()
			return fmt.Errorf("failed to persist cancellation: %w", err)
		}
		m.logger.InfoContext(ctx, "pending job cancelled", "job_id", id)
		return nil
	}

	if current, ok := m.running[id]; ok {
		// Claim the entry before releasing the lock so a concurrent
		// MarkCompleted or MarkFailed sees the job as gone and drops
		// its outcome instead of writing over the cancellation.
		delete(m.running, id)
		m.mu.Unlock()

		clone := current.Clone()
		if err := clone.MarkCancelled(time.Now()); err != nil {
			m.mu.Lock()
			m.running[id] = current
			m.mu.Unlock()
			return err
		}
		if err := m.repo.Save(ctx, clone); err != nil {
			m.mu.Lock()
			m.running[id] = current
			m.mu.Unlock()
			return fmt.Errorf("failed to persist cancellation: %w", err)
		}
		m.signal()

		m.logger.InfoContext(ctx, "running job cancelled", "job_id", id)
		return nil
	}
	m.mu.Unlock()

	// Not in memory: the job is either failed awaiting retry (timer already
	// cancelled above) or terminal.
	job, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status == domain.JobStatusFailed {
		m.logger.InfoContext(ctx, "retry cancelled for failed job", "job_id", id)
		return nil
	}
	if job.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrJobTerminal, job.Status)
	}

	// A non-terminal job unknown to the index means a restart happened
	// without recovery; cancel it directly.
	clone := job.Clone()
	if err := clone.MarkCancelled(time.Now()); err != nil {
		return err
	}
	if err := m.repo.Save(ctx, clone); err != nil {
		return fmt.Errorf("failed to persist cancellation: %w", err)
	}
	return nil
}

// GetPending returns the jobs waiting to run, in dispatch order.
func (m *Manager) GetPending(ctx context.Context) []*domain.AnalysisJob {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobs := m.pending.snapshot()
	out := make([]*domain.AnalysisJob, len(jobs))
	for i, j := range jobs {
		out[i] = j.Clone()
	}
	return out
}

// QueueLength returns the number of jobs waiting to run.
func (m *Manager) QueueLength() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending.len()
}

// RunningCount returns the number of jobs currently executing.
func (m *Manager) RunningCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}

// GetStatistics returns the process-lifetime view of queue activity.
func (m *Manager) GetStatistics(ctx context.Context) domain.QueueStatistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := domain.QueueStatistics{
		PendingCount:   m.pending.len(),
		RunningCount:   len(m.running),
		CompletedCount: m.completedCount,
		FailedCount:    m.failedCount,
		MaxConcurrent:  int(m.maxConcurrent.Load()),
	}
	finished := m.completedCount + m.failedCount
	if finished > 0 {
		stats.SuccessRate = float64(m.completedCount) / float64(finished)
	}
	return stats
}

// Recover rebuilds the in-memory view from the durable store after a
// restart. Pending and queued rows are re-indexed; rows left in running
// state by a crash are assumed failed and handed to the retry scheduler.
func (m *Manager) Recover(ctx context.Context) error {
	ready, err := m.repo.GetReady(ctx)
	if err != nil {
		return fmt.Errorf("failed to load ready jobs: %w", err)
	}

	m.mu.Lock()
	indexed := 0
	for _, job := range ready {
		if m.pending.add(job.Clone()) {
			indexed++
		}
	}
	m.mu.Unlock()

	interrupted, err := m.repo.GetByStatus(ctx, domain.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to load interrupted jobs: %w", err)
	}

	recovered := 0
	for _, job := range interrupted {
		clone := job.Clone()
		if err := clone.MarkFailed("interrupted by restart", time.Now()); err != nil {
			m.logger.Error("failed to reset interrupted job",
				"job_id", job.ID, "error", err)
			continue
		}
		if err := m.repo.Save(ctx, clone); err != nil {
			m.logger.Error("failed to persist interrupted job reset",
				"job_id", job.ID, "error", err)
			continue
		}
		recovered++
		if clone.CanRetry() && m.retrier != nil {
			m.retrier.ScheduleRetry(ctx, clone)
		}
	}

	m.logger.Info("recovered unfinished jobs",
		"reindexed", indexed,
		"interrupted", len(interrupted),
		"reset", recovered)

	if indexed > 0 {
		m.signal()
	}
	return nil
}

// signal pulses the wake channel without blocking.
func (m *Manager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// executionDuration computes how long a finished job ran.
func executionDuration(job *domain.AnalysisJob) time.Duration {
	if job.StartedAt == nil || job.CompletedAt == nil {
		return 0
	}
	return job.CompletedAt.Sub(*job.StartedAt)
}
