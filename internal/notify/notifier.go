// Package notify defines the outbound notification contract invoked when
// jobs finish. Delivery (push, toast, webhook) is the implementation's
// concern; the core treats every call as fire-and-forget and never lets a
// notifier failure fail the job.
package notify

import (
	"context"
	"log/slog"

	"github.com/finsight/analysis-orchestrator/internal/domain"
)

// Notifier receives terminal job outcomes.
type Notifier interface {
	// JobCompleted is called after a job reaches completed state.
	JobCompleted(ctx context.Context, job *domain.AnalysisJob, resultID string)

	// JobFailed is called after a job reaches failed state. willRetry
	// reports whether a retry has been handed to the scheduler.
	JobFailed(ctx context.Context, job *domain.AnalysisJob, errorMessage string, willRetry bool)
}

// LogNotifier is the default Notifier; it records outcomes in the
// structured log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a Notifier backed by the given logger.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{
		logger: logger.With("component", "log_notifier"),
	}
}

// JobCompleted logs a completion notice.
func (n *LogNotifier) JobCompleted(
	ctx context.Context,
	job *domain.AnalysisJob,
	resultID string,
) {
	n.logger.InfoContext(ctx, "analysis completed",
		"job_id", job.ID,
		"ticker", job.Ticker,
		"trade_date", job.TradeDate,
		"result_id", resultID)
}

// JobFailed logs a failure notice.
func (n *LogNotifier) JobFailed(
	ctx context.Context,
	job *domain.AnalysisJob,
	errorMessage string,
	willRetry bool,
) {
	n.logger.WarnContext(ctx, "analysis failed",
		"job_id", job.ID,
		"ticker", job.Ticker,
		"trade_date", job.TradeDate,
		"error", errorMessage,
		"will_retry", willRetry,
		"retry_count", job.RetryCount,
		"max_retries", job.MaxRetries)
}

// Interface compliance check
var _ Notifier = (*LogNotifier)(nil)
