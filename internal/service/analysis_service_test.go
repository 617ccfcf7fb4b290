package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight/analysis-orchestrator/internal/domain"
	"github.com/finsight/analysis-orchestrator/internal/events"
	"github.com/finsight/analysis-orchestrator/internal/platform/memory"
	"github.com/finsight/analysis-orchestrator/internal/store"
)

// mockEventEmitter records emitted events and returns a preconfigured error.
type mockEventEmitter struct {
	events []*events.AnalysisRequestEvent
	err    error
}

func (m *mockEventEmitter) EmitEvent(ctx context.Context, event *events.AnalysisRequestEvent) error {
	m.events = append(m.events, event)
	return m.err
}

// mockCanceller records cancel calls and returns a preconfigured error.
type mockCanceller struct {
	cancelled []uuid.UUID
	err       error
}

func (m *mockCanceller) Cancel(ctx context.Context, id uuid.UUID) error {
	m.cancelled = append(m.cancelled, id)
	return m.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T) (AnalysisService, *memory.JobStore, *mockEventEmitter, *mockCanceller) {
	t.Helper()
	repo := memory.NewJobStore()
	emitter := &mockEventEmitter{}
	canceller := &mockCanceller{}
	svc, err := NewAnalysisService(repo, canceller, emitter, testLogger())
	require.NoError(t, err)
	return svc, repo, emitter, canceller
}

func TestNewAnalysisServiceValidatesDependencies(t *testing.T) {
	repo := memory.NewJobStore()
	emitter := &mockEventEmitter{}
	canceller := &mockCanceller{}

	tests := []struct {
		name      string
		repo      store.JobRepository
		canceller JobCanceller
		emitter   events.EventEmitter
	}{
		{name: "nil repo", repo: nil, canceller: canceller, emitter: emitter},
		{name: "nil canceller", repo: repo, canceller: nil, emitter: emitter},
		{name: "nil emitter", repo: repo, canceller: canceller, emitter: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAnalysisService(tt.repo, tt.canceller, tt.emitter, testLogger())
			assert.Error(t, err)
		})
	}
}

func TestSubmitAnalysis(t *testing.T) {
	ctx := context.Background()
	svc, repo, emitter, _ := newTestService(t)

	job, err := svc.SubmitAnalysis(ctx, "AAPL", "2026-08-28", domain.JobPriorityHigh, 3)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, domain.JobStatusPending, job.Status)

	stored, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", stored.Ticker)
	assert.Equal(t, domain.JobPriorityHigh, stored.Priority)

	require.Len(t, emitter.events, 1)
	assert.Equal(t, events.EventTypeAnalysisRequested, emitter.events[0].Type)

	var payload events.AnalysisRequestPayload
	require.NoError(t, emitter.events[0].UnmarshalPayload(&payload))
	assert.Equal(t, job.ID, payload.JobID)
}

func TestSubmitAnalysisInvalidInput(t *testing.T) {
	ctx := context.Background()
	svc, _, emitter, _ := newTestService(t)

	_, err := svc.SubmitAnalysis(ctx, "", "2026-08-28", domain.JobPriorityNormal, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmptyTicker)
	assert.Empty(t, emitter.events, "no event for a job that was never created")
}

func TestSubmitAnalysisEmitFailureLeavesJobPending(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewJobStore()
	emitter := &mockEventEmitter{err: errors.New("emit failure")}
	svc, err := NewAnalysisService(repo, &mockCanceller{}, emitter, testLogger())
	require.NoError(t, err)

	job, err := svc.SubmitAnalysis(ctx, "AAPL", "2026-08-28", domain.JobPriorityNormal, 3)
	require.NoError(t, err, "a failed emit is not a submission failure")

	stored, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, stored.Status)
}

func TestGetJob(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)

	created, err := svc.SubmitAnalysis(ctx, "AAPL", "2026-08-28", domain.JobPriorityNormal, 3)
	require.NoError(t, err)

	got, err := svc.GetJob(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = svc.GetJob(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestListJobs(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, _ := newTestService(t)

	appleJob, err := svc.SubmitAnalysis(ctx, "AAPL", "2026-08-28", domain.JobPriorityNormal, 3)
	require.NoError(t, err)
	_, err = svc.SubmitAnalysis(ctx, "MSFT", "2026-08-28", domain.JobPriorityNormal, 3)
	require.NoError(t, err)

	completed, err := repo.GetByID(ctx, appleJob.ID)
	require.NoError(t, err)
	now := completed.CreatedAt
	require.NoError(t, completed.MarkQueued())
	require.NoError(t, completed.MarkRunning(now))
	require.NoError(t, completed.MarkCompleted("result", now))
	require.NoError(t, repo.Save(ctx, completed))

	t.Run("no filters returns all", func(t *testing.T) {
		jobs, err := svc.ListJobs(ctx, "", "")
		require.NoError(t, err)
		assert.Len(t, jobs, 2)
	})

	t.Run("status filter", func(t *testing.T) {
		jobs, err := svc.ListJobs(ctx, domain.JobStatusCompleted, "")
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, appleJob.ID, jobs[0].ID)
	})

	t.Run("ticker filter", func(t *testing.T) {
		jobs, err := svc.ListJobs(ctx, "", "MSFT")
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, "MSFT", jobs[0].Ticker)
	})

	t.Run("combined filters", func(t *testing.T) {
		jobs, err := svc.ListJobs(ctx, domain.JobStatusCompleted, "AAPL")
		require.NoError(t, err)
		require.Len(t, jobs, 1)

		jobs, err = svc.ListJobs(ctx, domain.JobStatusCompleted, "MSFT")
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})
}

func TestCancelJob(t *testing.T) {
	ctx := context.Background()
	svc, _, _, canceller := newTestService(t)

	id := uuid.New()
	require.NoError(t, svc.CancelJob(ctx, id))
	require.Len(t, canceller.cancelled, 1)
	assert.Equal(t, id, canceller.cancelled[0])
}

func TestCancelJobNotFound(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewJobStore()
	canceller := &mockCanceller{
		err: store.NewRepositoryError("cancel", uuid.New().String(), "no such job",
			store.ErrJobNotFound),
	}
	svc, err := NewAnalysisService(repo, canceller, &mockEventEmitter{}, testLogger())
	require.NoError(t, err)

	assert.ErrorIs(t, svc.CancelJob(ctx, uuid.New()), ErrJobNotFound)
}

func TestGetStatistics(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)

	_, err := svc.SubmitAnalysis(ctx, "AAPL", "2026-08-28", domain.JobPriorityNormal, 3)
	require.NoError(t, err)

	stats, err := svc.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalJobs)
	assert.Equal(t, 1, stats.CountsByStatus[domain.JobStatusPending])
}
