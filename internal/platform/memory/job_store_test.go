package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight/analysis-orchestrator/internal/domain"
	"github.com/finsight/analysis-orchestrator/internal/store"
)

func newJob(t *testing.T, ticker string, priority domain.JobPriority, createdAt time.Time) *domain.AnalysisJob {
	t.Helper()
	job, err := domain.NewAnalysisJob(ticker, "2026-08-28", priority, 3)
	require.NoError(t, err)
	job.CreatedAt = createdAt
	return job
}

func TestSaveAndGetByID(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()

	job := newJob(t, "AAPL", domain.JobPriorityNormal, time.Now().UTC())
	require.NoError(t, s.Save(ctx, job))

	got, err := s.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, "AAPL", got.Ticker)
	assert.Equal(t, domain.JobStatusPending, got.Status)

	// The store hands out copies, never its own pointers.
	assert.NotSame(t, job, got)
	got.Ticker = "MUTATED"
	again, err := s.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", again.Ticker)
}

func TestSaveRejectsInvalidJob(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()

	job := newJob(t, "AAPL", domain.JobPriorityNormal, time.Now().UTC())
	job.Ticker = ""

	err := s.Save(ctx, job)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
}

func TestGetByIDNotFound(t *testing.T) {
	s := NewJobStore()

	_, err := s.GetByID(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, store.IsNotFoundError(err))
}

func TestSaveUpdatesExisting(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()

	job := newJob(t, "AAPL", domain.JobPriorityNormal, time.Now().UTC())
	require.NoError(t, s.Save(ctx, job))

	require.NoError(t, job.MarkQueued())
	require.NoError(t, s.Save(ctx, job))

	got, err := s.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, got.Status)

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetAllNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()

	base := time.Now().UTC()
	oldest := newJob(t, "A", domain.JobPriorityNormal, base)
	middle := newJob(t, "B", domain.JobPriorityNormal, base.Add(time.Second))
	newest := newJob(t, "C", domain.JobPriorityNormal, base.Add(2*time.Second))
	for _, j := range []*domain.AnalysisJob{middle, oldest, newest} {
		require.NoError(t, s.Save(ctx, j))
	}

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, newest.ID, all[0].ID)
	assert.Equal(t, middle.ID, all[1].ID)
	assert.Equal(t, oldest.ID, all[2].ID)
}

func TestGetByStatusOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()

	base := time.Now().UTC()
	first := newJob(t, "A", domain.JobPriorityNormal, base)
	second := newJob(t, "B", domain.JobPriorityNormal, base.Add(time.Second))
	done := newJob(t, "C", domain.JobPriorityNormal, base.Add(2*time.Second))
	require.NoError(t, done.MarkQueued())
	require.NoError(t, done.MarkRunning(base))
	require.NoError(t, done.MarkCompleted("result", base))

	for _, j := range []*domain.AnalysisJob{second, done, first} {
		require.NoError(t, s.Save(ctx, j))
	}

	pending, err := s.GetByStatus(ctx, domain.JobStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)

	completed, err := s.GetByStatus(ctx, domain.JobStatusCompleted)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, done.ID, completed[0].ID)
}

func TestGetByTicker(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()

	base := time.Now().UTC()
	older := newJob(t, "AAPL", domain.JobPriorityNormal, base)
	newer := newJob(t, "AAPL", domain.JobPriorityNormal, base.Add(time.Second))
	other := newJob(t, "MSFT", domain.JobPriorityNormal, base)
	for _, j := range []*domain.AnalysisJob{older, other, newer} {
		require.NoError(t, s.Save(ctx, j))
	}

	got, err := s.GetByTicker(ctx, "AAPL")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer.ID, got[0].ID)
	assert.Equal(t, older.ID, got[1].ID)
}

func TestGetReadyDispatchOrder(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()

	base := time.Now().UTC()
	lowOld := newJob(t, "LOW", domain.JobPriorityLow, base)
	normalNew := newJob(t, "NORM2", domain.JobPriorityNormal, base.Add(2*time.Second))
	normalOld := newJob(t, "NORM1", domain.JobPriorityNormal, base.Add(time.Second))
	high := newJob(t, "HIGH", domain.JobPriorityHigh, base.Add(3*time.Second))
	running := newJob(t, "RUN", domain.JobPriorityHigh, base)
	require.NoError(t, running.MarkQueued())
	require.NoError(t, running.MarkRunning(base))

	for _, j := range []*domain.AnalysisJob{lowOld, normalNew, normalOld, high, running} {
		require.NoError(t, s.Save(ctx, j))
	}

	ready, err := s.GetReady(ctx)
	require.NoError(t, err)
	require.Len(t, ready, 4)
	assert.Equal(t, high.ID, ready[0].ID)
	assert.Equal(t, normalOld.ID, ready[1].ID)
	assert.Equal(t, normalNew.ID, ready[2].ID)
	assert.Equal(t, lowOld.ID, ready[3].ID)
}

func TestGetRetryable(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()

	base := time.Now().UTC()

	retryable := newJob(t, "RETRY", domain.JobPriorityNormal, base)
	require.NoError(t, retryable.MarkQueued())
	require.NoError(t, retryable.MarkRunning(base))
	require.NoError(t, retryable.MarkFailed("boom", base.Add(-time.Minute)))
	require.NoError(t, s.Save(ctx, retryable))

	spent := newJob(t, "SPENT", domain.JobPriorityNormal, base)
	spent.MaxRetries = 0
	require.NoError(t, spent.MarkQueued())
	require.NoError(t, spent.MarkRunning(base))
	require.NoError(t, spent.MarkFailed("boom", base))
	require.NoError(t, s.Save(ctx, spent))

	fresh := newJob(t, "FRESH", domain.JobPriorityNormal, base)
	require.NoError(t, fresh.MarkQueued())
	require.NoError(t, fresh.MarkRunning(base))
	require.NoError(t, fresh.MarkFailed("boom", base))
	require.NoError(t, s.Save(ctx, fresh))

	// No age filter: every job with budget qualifies.
	all, err := s.GetRetryable(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// With an age filter only the old failure qualifies.
	aged, err := s.GetRetryable(ctx, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, aged, 1)
	assert.Equal(t, retryable.ID, aged[0].ID)
}

func TestDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()

	job := newJob(t, "AAPL", domain.JobPriorityNormal, time.Now().UTC())
	require.NoError(t, s.Save(ctx, job))

	require.NoError(t, s.Delete(ctx, job.ID))
	_, err := s.GetByID(ctx, job.ID)
	assert.True(t, store.IsNotFoundError(err))

	err = s.Delete(ctx, job.ID)
	assert.True(t, store.IsNotFoundError(err))

	for i := 0; i < 3; i++ {
		j := newJob(t, "AAPL", domain.JobPriorityNormal, time.Now().UTC())
		require.NoError(t, s.Save(ctx, j))
	}
	require.NoError(t, s.Clear(ctx))

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestGetStatistics(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore()

	base := time.Now().UTC()
	pending := newJob(t, "P", domain.JobPriorityNormal, base)
	require.NoError(t, s.Save(ctx, pending))

	for i := 0; i < 3; i++ {
		j := newJob(t, "C", domain.JobPriorityNormal, base)
		require.NoError(t, j.MarkQueued())
		require.NoError(t, j.MarkRunning(base))
		require.NoError(t, j.MarkCompleted("result", base))
		require.NoError(t, s.Save(ctx, j))
	}

	failed := newJob(t, "F", domain.JobPriorityNormal, base)
	require.NoError(t, failed.MarkQueued())
	require.NoError(t, failed.MarkRunning(base))
	require.NoError(t, failed.MarkFailed("boom", base))
	require.NoError(t, s.Save(ctx, failed))

	stats, err := s.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalJobs)
	assert.Equal(t, 1, stats.CountsByStatus[domain.JobStatusPending])
	assert.Equal(t, 3, stats.CountsByStatus[domain.JobStatusCompleted])
	assert.Equal(t, 1, stats.CountsByStatus[domain.JobStatusFailed])
	assert.InDelta(t, 0.75, stats.SuccessRate, 1e-9)
}

func TestGetStatisticsEmpty(t *testing.T) {
	stats, err := NewJobStore().GetStatistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalJobs)
	assert.Zero(t, stats.SuccessRate)
}
