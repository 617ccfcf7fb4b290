package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight/analysis-orchestrator/internal/domain"
	"github.com/finsight/analysis-orchestrator/internal/queue"
	"github.com/finsight/analysis-orchestrator/internal/service"
)

// mockAnalysisService implements service.AnalysisService with canned results.
type mockAnalysisService struct {
	submitResult *domain.AnalysisJob
	submitErr    error
	getResult    *domain.AnalysisJob
	getErr       error
	listResult   []*domain.AnalysisJob
	listErr      error
	cancelErr    error
	statsResult  *domain.RepositoryStatistics
	statsErr     error

	lastStatus domain.JobStatus
	lastTicker string
}

func (m *mockAnalysisService) SubmitAnalysis(
	ctx context.Context,
	ticker, tradeDate string,
	priority domain.JobPriority,
	maxRetries int,
) (*domain.AnalysisJob, error) {
	return m.submitResult, m.submitErr
}

func (m *mockAnalysisService) GetJob(ctx context.Context, id uuid.UUID) (*domain.AnalysisJob, error) {
	return m.getResult, m.getErr
}

func (m *mockAnalysisService) ListJobs(
	ctx context.Context,
	status domain.JobStatus,
	ticker string,
) ([]*domain.AnalysisJob, error) {
	m.lastStatus = status
	m.lastTicker = ticker
	return m.listResult, m.listErr
}

func (m *mockAnalysisService) CancelJob(ctx context.Context, id uuid.UUID) error {
	return m.cancelErr
}

func (m *mockAnalysisService) GetStatistics(ctx context.Context) (*domain.RepositoryStatistics, error) {
	return m.statsResult, m.statsErr
}

// mockQueueStats returns fixed queue counters.
type mockQueueStats struct {
	stats domain.QueueStatistics
}

func (m *mockQueueStats) GetStatistics(ctx context.Context) domain.QueueStatistics {
	return m.stats
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleJob(t *testing.T) *domain.AnalysisJob {
	t.Helper()
	job, err := domain.NewAnalysisJob("AAPL", "2026-08-28", domain.JobPriorityHigh, 3)
	require.NoError(t, err)
	return job
}

// newJobRouter mounts the handler the way the server router does, so URL
// parameters resolve.
func newJobRouter(h *JobHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/jobs", h.SubmitJob)
	r.Get("/api/jobs", h.ListJobs)
	r.Get("/api/jobs/stats", h.GetStats)
	r.Get("/api/jobs/{id}", h.GetJob)
	r.Delete("/api/jobs/{id}", h.CancelJob)
	return r
}

func TestSubmitJob(t *testing.T) {
	job := sampleJob(t)
	svc := &mockAnalysisService{submitResult: job}
	handler := NewJobHandler(svc, &mockQueueStats{}, testLogger())
	router := newJobRouter(handler)

	body, err := json.Marshal(SubmitJobRequest{
		Ticker:    "AAPL",
		TradeDate: "2026-08-28",
		Priority:  "high",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, job.ID.String(), resp.ID)
	assert.Equal(t, "AAPL", resp.Ticker)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, "high", resp.Priority)
}

func TestSubmitJobValidation(t *testing.T) {
	handler := NewJobHandler(&mockAnalysisService{}, &mockQueueStats{}, testLogger())
	router := newJobRouter(handler)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"ticker": `},
		{name: "missing ticker", body: `{"trade_date": "2026-08-28"}`},
		{name: "bad trade date", body: `{"ticker": "AAPL", "trade_date": "28-08-2026"}`},
		{name: "unknown priority", body: `{"ticker": "AAPL", "trade_date": "2026-08-28", "priority": "urgent"}`},
		{name: "negative max retries", body: `{"ticker": "AAPL", "trade_date": "2026-08-28", "max_retries": -1}`},
		{name: "ticker too long", body: `{"ticker": "ABCDEFGHIJKLMN", "trade_date": "2026-08-28"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader([]byte(tt.body)))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestListJobs(t *testing.T) {
	jobs := []*domain.AnalysisJob{sampleJob(t), sampleJob(t)}
	svc := &mockAnalysisService{listResult: jobs}
	handler := NewJobHandler(svc, &mockQueueStats{}, testLogger())
	router := newJobRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs?status=pending&ticker=AAPL", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.JobStatusPending, svc.lastStatus)
	assert.Equal(t, "AAPL", svc.lastTicker)

	var resp []JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp, 2)
}

func TestListJobsUnknownStatus(t *testing.T) {
	handler := NewJobHandler(&mockAnalysisService{}, &mockQueueStats{}, testLogger())
	router := newJobRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs?status=bogus", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListJobsEmptyResultIsArray(t *testing.T) {
	handler := NewJobHandler(&mockAnalysisService{}, &mockQueueStats{}, testLogger())
	router := newJobRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestGetJob(t *testing.T) {
	job := sampleJob(t)

	tests := []struct {
		name     string
		path     string
		svc      *mockAnalysisService
		wantCode int
	}{
		{
			name:     "found",
			path:     "/api/jobs/" + job.ID.String(),
			svc:      &mockAnalysisService{getResult: job},
			wantCode: http.StatusOK,
		},
		{
			name:     "not found",
			path:     "/api/jobs/" + uuid.NewString(),
			svc:      &mockAnalysisService{getErr: service.ErrJobNotFound},
			wantCode: http.StatusNotFound,
		},
		{
			name:     "invalid id",
			path:     "/api/jobs/not-a-uuid",
			svc:      &mockAnalysisService{},
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewJobHandler(tt.svc, &mockQueueStats{}, testLogger())
			router := newJobRouter(handler)

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestCancelJob(t *testing.T) {
	tests := []struct {
		name     string
		svc      *mockAnalysisService
		wantCode int
	}{
		{name: "cancelled", svc: &mockAnalysisService{}, wantCode: http.StatusNoContent},
		{
			name:     "not found",
			svc:      &mockAnalysisService{cancelErr: service.ErrJobNotFound},
			wantCode: http.StatusNotFound,
		},
		{
			name:     "already finished",
			svc:      &mockAnalysisService{cancelErr: queue.ErrJobTerminal},
			wantCode: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewJobHandler(tt.svc, &mockQueueStats{}, testLogger())
			router := newJobRouter(handler)

			req := httptest.NewRequest(http.MethodDelete, "/api/jobs/"+uuid.NewString(), nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestGetStats(t *testing.T) {
	svc := &mockAnalysisService{
		statsResult: &domain.RepositoryStatistics{
			CountsByStatus: map[domain.JobStatus]int{domain.JobStatusCompleted: 3},
			TotalJobs:      3,
			SuccessRate:    1.0,
		},
	}
	queueStats := &mockQueueStats{
		stats: domain.QueueStatistics{
			PendingCount:  2,
			RunningCount:  1,
			MaxConcurrent: 4,
		},
	}
	handler := NewJobHandler(svc, queueStats, testLogger())
	router := newJobRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Queue      domain.QueueStatistics      `json:"queue"`
		Repository domain.RepositoryStatistics `json:"repository"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Queue.PendingCount)
	assert.Equal(t, 4, resp.Queue.MaxConcurrent)
	assert.Equal(t, 3, resp.Repository.TotalJobs)
}
