package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of an analysis job
type JobStatus string

// Possible job status values
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// JobPriority represents the scheduling band of an analysis job.
// Priority strictly dominates creation order when selecting the next job.
type JobPriority string

// Possible job priority values
const (
	JobPriorityHigh   JobPriority = "high"
	JobPriorityNormal JobPriority = "normal"
	JobPriorityLow    JobPriority = "low"
)

// Common validation and transition errors for AnalysisJob
var (
	ErrEmptyJobID           = errors.New("job ID cannot be empty")
	ErrEmptyTicker          = errors.New("job ticker cannot be empty")
	ErrEmptyTradeDate       = errors.New("job trade date cannot be empty")
	ErrInvalidJobStatus     = errors.New("invalid job status")
	ErrInvalidJobPriority   = errors.New("invalid job priority")
	ErrInvalidMaxRetries    = errors.New("max retries cannot be negative")
	ErrInvalidTransition    = errors.New("invalid job status transition")
	ErrRetryBudgetExhausted = errors.New("retry count has reached max retries")
)

// AnalysisJob is the unit of background analysis work tracked through the
// status lifecycle. The queue manager is the sole mutator of Status,
// StartedAt, CompletedAt, ResultID and ErrorMessage; the retry scheduler is
// the sole mutator of RetryCount and the failed→pending re-transition.
type AnalysisJob struct {
	ID           uuid.UUID   `json:"id"`
	Ticker       string      `json:"ticker"`
	TradeDate    string      `json:"trade_date"`
	Status       JobStatus   `json:"status"`
	Priority     JobPriority `json:"priority"`
	CreatedAt    time.Time   `json:"created_at"`
	StartedAt    *time.Time  `json:"started_at,omitempty"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	ResultID     string      `json:"result_id,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	RetryCount   int         `json:"retry_count"`
	MaxRetries   int         `json:"max_retries"`
}

// NewAnalysisJob creates a new pending AnalysisJob for the given ticker and
// trade date. It generates the job ID and sets the creation timestamp.
// Returns an error if validation fails.
func NewAnalysisJob(
	ticker, tradeDate string,
	priority JobPriority,
	maxRetries int,
) (*AnalysisJob, error) {
	job := &AnalysisJob{
		ID:         uuid.New(),
		Ticker:     ticker,
		TradeDate:  tradeDate,
		Status:     JobStatusPending,
		Priority:   priority,
		CreatedAt:  time.Now().UTC(),
		RetryCount: 0,
		MaxRetries: maxRetries,
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}

// Validate checks if the AnalysisJob has valid data and that the lifecycle
// invariants hold for its current state.
func (j *AnalysisJob) Validate() error {
	if j.ID == uuid.Nil {
		return ErrEmptyJobID
	}
	if j.Ticker == "" {
		return ErrEmptyTicker
	}
	if j.TradeDate == "" {
		return ErrEmptyTradeDate
	}
	if !isValidJobStatus(j.Status) {
		return ErrInvalidJobStatus
	}
	if !isValidJobPriority(j.Priority) {
		return ErrInvalidJobPriority
	}
	if j.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}
	if j.RetryCount < 0 || j.RetryCount > j.MaxRetries {
		return fmt.Errorf("%w: retry count %d out of range [0,%d]",
			ErrRetryBudgetExhausted, j.RetryCount, j.MaxRetries)
	}

	// completedAt set exactly on terminal states
	if (j.CompletedAt != nil) != j.IsTerminal() {
		return fmt.Errorf("%w: completed_at must be set iff status is terminal",
			ErrInvalidJobStatus)
	}

	// startedAt set exactly once the job has been picked up; cancellation
	// clears it
	started := j.Status == JobStatusRunning ||
		j.Status == JobStatusCompleted ||
		j.Status == JobStatusFailed
	if (j.StartedAt != nil) != started {
		return fmt.Errorf("%w: started_at must be set iff status is running, completed, or failed",
			ErrInvalidJobStatus)
	}

	if j.ResultID != "" && j.Status != JobStatusCompleted {
		return fmt.Errorf("%w: result_id requires completed status", ErrInvalidJobStatus)
	}
	if j.ErrorMessage != "" && j.Status != JobStatusFailed {
		return fmt.Errorf("%w: error_message requires failed status", ErrInvalidJobStatus)
	}

	return nil
}

// IsTerminal reports whether the job has reached a terminal status.
// Terminal jobs never transition again (a failed job with retry budget left
// is resurrected by the retry scheduler via ResetForRetry, which is the one
// sanctioned exception).
func (j *AnalysisJob) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// CanRetry reports whether a failed job still has retry budget left.
func (j *AnalysisJob) CanRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkQueued transitions the job from pending to queued.
func (j *AnalysisJob) MarkQueued() error {
	if j.Status != JobStatusPending {
		return fmt.Errorf("%w: %s -> queued", ErrInvalidTransition, j.Status)
	}
	j.Status = JobStatusQueued
	return nil
}

// MarkRunning transitions the job to running and records the start time.
func (j *AnalysisJob) MarkRunning(now time.Time) error {
	if j.Status != JobStatusPending && j.Status != JobStatusQueued {
		return fmt.Errorf("%w: %s -> running", ErrInvalidTransition, j.Status)
	}
	j.Status = JobStatusRunning
	t := now.UTC()
	j.StartedAt = &t
	return nil
}

// MarkCompleted transitions a running job to completed, recording the
// completion time and the opaque analysis result identifier.
func (j *AnalysisJob) MarkCompleted(resultID string, now time.Time) error {
	if j.Status != JobStatusRunning {
		return fmt.Errorf("%w: %s -> completed", ErrInvalidTransition, j.Status)
	}
	j.Status = JobStatusCompleted
	t := now.UTC()
	j.CompletedAt = &t
	j.ResultID = resultID
	j.ErrorMessage = ""
	return nil
}

// MarkFailed transitions a running job to failed with the given error message.
func (j *AnalysisJob) MarkFailed(errorMessage string, now time.Time) error {
	if j.Status != JobStatusRunning {
		return fmt.Errorf("%w: %s -> failed", ErrInvalidTransition, j.Status)
	}
	j.Status = JobStatusFailed
	t := now.UTC()
	j.CompletedAt = &t
	j.ErrorMessage = errorMessage
	j.ResultID = ""
	return nil
}

// MarkCancelled transitions a non-terminal job to cancelled. Cancelling a
// running job is best-effort from the caller's perspective; the bookkeeping
// transition happens here once acknowledged.
func (j *AnalysisJob) MarkCancelled(now time.Time) error {
	if j.IsTerminal() {
		return fmt.Errorf("%w: %s -> cancelled", ErrInvalidTransition, j.Status)
	}
	// started_at is tied to running/completed/failed only, so a cancelled job
	// carries no start time even if it had begun executing.
	j.Status = JobStatusCancelled
	t := now.UTC()
	j.CompletedAt = &t
	j.StartedAt = nil
	j.ResultID = ""
	j.ErrorMessage = ""
	return nil
}

// ResetForRetry consumes one unit of retry budget and returns the job to the
// pending state so it can be re-enqueued. Only the retry scheduler calls this.
func (j *AnalysisJob) ResetForRetry() error {
	if !j.CanRetry() {
		return fmt.Errorf("%w: retry_count=%d max_retries=%d status=%s",
			ErrRetryBudgetExhausted, j.RetryCount, j.MaxRetries, j.Status)
	}
	j.RetryCount++
	j.Status = JobStatusPending
	j.StartedAt = nil
	j.CompletedAt = nil
	j.ErrorMessage = ""
	j.ResultID = ""
	return nil
}

// Clone returns a deep copy of the job. Mutation methods are applied to a
// clone first so the in-memory view only advances after persistence succeeds.
func (j *AnalysisJob) Clone() *AnalysisJob {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// PriorityRank maps a priority band to its scheduling rank; lower is served
// first.
func PriorityRank(p JobPriority) int {
	switch p {
	case JobPriorityHigh:
		return 0
	case JobPriorityNormal:
		return 1
	case JobPriorityLow:
		return 2
	default:
		return 3
	}
}

// IsValid reports whether the status is one of the known lifecycle states.
func (s JobStatus) IsValid() bool {
	return isValidJobStatus(s)
}

func isValidJobStatus(status JobStatus) bool {
	switch status {
	case JobStatusPending, JobStatusQueued, JobStatusRunning,
		JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

func isValidJobPriority(priority JobPriority) bool {
	switch priority {
	case JobPriorityHigh, JobPriorityNormal, JobPriorityLow:
		return true
	default:
		return false
	}
}
