package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/finsight/analysis-orchestrator/internal/events"
	"github.com/finsight/analysis-orchestrator/internal/store"
)

// EnqueueEventHandler implements the events.EventHandler interface by
// loading the job named in an analysis request event and enqueueing it.
// It is the bridge between the HTTP surface and the queue manager.
type EnqueueEventHandler struct {
	manager *Manager
	repo    store.JobRepository
	logger  *slog.Logger
}

// NewEnqueueEventHandler creates the handler over the given queue manager.
func NewEnqueueEventHandler(manager *Manager, repo store.JobRepository, logger *slog.Logger) *EnqueueEventHandler {
	return &EnqueueEventHandler{
		manager: manager,
		repo:    repo,
		logger:  logger.With("component", "enqueue_event_handler"),
	}
}

// HandleEvent loads the referenced job and enqueues it. Events of other
// types are ignored.
func (h *EnqueueEventHandler) HandleEvent(ctx context.Context, event *events.AnalysisRequestEvent) error {
	if event.Type != events.EventTypeAnalysisRequested {
		h.logger.Debug("ignoring event with unsupported type",
			"event_type", event.Type,
			"event_id", event.ID)
		return nil
	}

	var payload events.AnalysisRequestPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		h.logger.Error("failed to unmarshal payload", "error", err, "event_id", event.ID)
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	job, err := h.repo.GetByID(ctx, payload.JobID)
	if err != nil {
		h.logger.Error("failed to load job for enqueue",
			"error", err,
			"job_id", payload.JobID,
			"event_id", event.ID)
		return fmt.Errorf("failed to load job %s: %w", payload.JobID, err)
	}

	if err := h.manager.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	h.logger.Debug("job enqueued from event", "job_id", job.ID, "event_id", event.ID)
	return nil
}
