package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/finsight/analysis-orchestrator/internal/api/shared"
	"github.com/finsight/analysis-orchestrator/internal/domain"
	"github.com/finsight/analysis-orchestrator/internal/queue"
	"github.com/finsight/analysis-orchestrator/internal/service"
)

// defaultMaxRetries applies when a submission omits max_retries.
const defaultMaxRetries = 3

// SubmitJobRequest represents the request body for submitting an analysis job.
type SubmitJobRequest struct {
	Ticker     string `json:"ticker" validate:"required,min=1,max=12"`
	TradeDate  string `json:"trade_date" validate:"required,datetime=2006-01-02"`
	Priority   string `json:"priority" validate:"omitempty,oneof=high normal low"`
	MaxRetries *int   `json:"max_retries" validate:"omitempty,gte=0,lte=10"`
}

// JobResponse represents the response data for an analysis job.
type JobResponse struct {
	ID           string     `json:"id"`
	Ticker       string     `json:"ticker"`
	TradeDate    string     `json:"trade_date"`
	Status       string     `json:"status"`
	Priority     string     `json:"priority"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ResultID     string     `json:"result_id,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	RetryCount   int        `json:"retry_count"`
	MaxRetries   int        `json:"max_retries"`
}

// QueueStatsProvider exposes the live queue counters. Implemented by
// queue.Manager.
type QueueStatsProvider interface {
	GetStatistics(ctx context.Context) domain.QueueStatistics
}

// JobHandler handles job-related HTTP requests.
type JobHandler struct {
	analysisService service.AnalysisService
	queueStats      QueueStatsProvider
	logger          *slog.Logger
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(analysisService service.AnalysisService, queueStats QueueStatsProvider, logger *slog.Logger) *JobHandler {
	return &JobHandler{
		analysisService: analysisService,
		queueStats:      queueStats,
		logger:          logger.With("component", "job_handler"),
	}
}

// SubmitJob handles POST /api/jobs requests.
func (h *JobHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req SubmitJobRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	priority := domain.JobPriority(req.Priority)
	if req.Priority == "" {
		priority = domain.JobPriorityNormal
	}
	maxRetries := defaultMaxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}

	job, err := h.analysisService.SubmitAnalysis(r.Context(), req.Ticker, req.TradeDate, priority, maxRetries)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to submit analysis job", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, jobToResponse(job))
}

// ListJobs handles GET /api/jobs requests with optional status and ticker
// query filters.
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	status := domain.JobStatus(r.URL.Query().Get("status"))
	if status != "" && !status.IsValid() {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Unknown job status")
		return
	}
	ticker := r.URL.Query().Get("ticker")

	jobs, err := h.analysisService.ListJobs(r.Context(), status, ticker)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to list jobs", err)
		return
	}

	responses := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		responses = append(responses, jobToResponse(job))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, responses)
}

// GetJob handles GET /api/jobs/{id} requests.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := h.analysisService.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Job not found")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to load job", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, jobToResponse(job))
}

// CancelJob handles DELETE /api/jobs/{id} requests.
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid job ID")
		return
	}

	if err := h.analysisService.CancelJob(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, service.ErrJobNotFound):
			shared.RespondWithError(w, r, http.StatusNotFound, "Job not found")
		case errors.Is(err, queue.ErrJobTerminal):
			shared.RespondWithError(w, r, http.StatusConflict, "Job already finished")
		default:
			shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
				"Failed to cancel job", err)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetStats handles GET /api/jobs/stats requests. It merges the live queue
// counters with the repository-wide totals.
func (h *JobHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	repoStats, err := h.analysisService.GetStatistics(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to load job statistics", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, map[string]interface{}{
		"queue":      h.queueStats.GetStatistics(r.Context()),
		"repository": repoStats,
	})
}

// jobToResponse converts a domain.AnalysisJob to a JobResponse.
func jobToResponse(job *domain.AnalysisJob) JobResponse {
	return JobResponse{
		ID:           job.ID.String(),
		Ticker:       job.Ticker,
		TradeDate:    job.TradeDate,
		Status:       string(job.Status),
		Priority:     string(job.Priority),
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
		ResultID:     job.ResultID,
		ErrorMessage: job.ErrorMessage,
		RetryCount:   job.RetryCount,
		MaxRetries:   job.MaxRetries,
	}
}
