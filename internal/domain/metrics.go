package domain

import (
	"time"

	"github.com/google/uuid"
)

// AlertLevel is a coarse health grade derived from success rate and queue
// depth thresholds.
type AlertLevel string

// Possible alert levels
const (
	AlertLevelLow    AlertLevel = "low"
	AlertLevelMedium AlertLevel = "medium"
	AlertLevelHigh   AlertLevel = "high"
)

// PerformanceMetrics is one point-in-time sample of system health emitted by
// the metrics collector on its sampling interval.
type PerformanceMetrics struct {
	Timestamp     time.Time `json:"timestamp"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	QueueLength   int       `json:"queue_length"`
	RunningCount  int       `json:"running_count"`
	WorkerCount   int       `json:"worker_count"`
	SuccessRate   float64   `json:"success_rate"`
}

// TaskExecutionMetric records the outcome of a single job execution. The
// collector keeps a bounded rolling history of these.
type TaskExecutionMetric struct {
	JobID      uuid.UUID     `json:"job_id"`
	Duration   time.Duration `json:"duration"`
	Succeeded  bool          `json:"succeeded"`
	Error      string        `json:"error,omitempty"`
	FinishedAt time.Time     `json:"finished_at"`
}

// PerformanceSummary aggregates the rolling execution history.
type PerformanceSummary struct {
	SampleCount     int           `json:"sample_count"`
	SuccessRate     float64       `json:"success_rate"`
	AverageDuration time.Duration `json:"average_duration"`
	// PeakThroughput is the largest number of completions observed in any
	// sliding window of the summary's window size, expressed per second.
	PeakThroughput float64    `json:"peak_throughput"`
	AlertLevel     AlertLevel `json:"alert_level"`
}

// QueueStatistics is the read-only view exposed by the queue manager.
type QueueStatistics struct {
	PendingCount   int     `json:"pending_count"`
	RunningCount   int     `json:"running_count"`
	CompletedCount int     `json:"completed_count"`
	FailedCount    int     `json:"failed_count"`
	SuccessRate    float64 `json:"success_rate"`
	MaxConcurrent  int     `json:"max_concurrent"`
}

// RepositoryStatistics summarizes the durable job store.
type RepositoryStatistics struct {
	CountsByStatus map[JobStatus]int `json:"counts_by_status"`
	TotalJobs      int               `json:"total_jobs"`
	SuccessRate    float64           `json:"success_rate"`
}
