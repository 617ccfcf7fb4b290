// Package worker runs the goroutines that drain the job queue. Workers block
// on the queue's wake signal with a fallback poll ticker, so a retry timer
// firing or a concurrency raise is picked up immediately while a missed
// signal costs at most one poll interval.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/finsight/analysis-orchestrator/internal/domain"
	"github.com/finsight/analysis-orchestrator/internal/executor"
)

// JobSource is the queue surface workers consume. Implemented by
// queue.Manager.
type JobSource interface {
	Dequeue(ctx context.Context) (*domain.AnalysisJob, error)
	MarkCompleted(ctx context.Context, job *domain.AnalysisJob, resultID string) error
	MarkFailed(ctx context.Context, job *domain.AnalysisJob, errorMessage string) error
	Wake() <-chan struct{}
}

// PoolConfig holds configuration options for the worker pool.
type PoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start.
	// The queue's own concurrency ceiling still bounds how many jobs run at
	// once; extra workers just idle on the wake signal.
	WorkerCount int

	// PollInterval bounds how long a worker waits before re-checking the
	// queue when no wake signal arrives.
	PollInterval time.Duration
}

// DefaultPoolConfig returns a PoolConfig with reasonable defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		WorkerCount:  4,
		PollInterval: 500 * time.Millisecond,
	}
}

// Pool manages a set of worker goroutines that dequeue jobs and run them
// through the analysis executor. It handles graceful shutdown and worker
// lifecycle.
type Pool struct {
	source   JobSource
	executor executor.AnalysisExecutor
	config   PoolConfig
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a worker pool over the given job source and executor.
func NewPool(source JobSource, exec executor.AnalysisExecutor, config PoolConfig, logger *slog.Logger) *Pool {
	if config.WorkerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", DefaultPoolConfig().WorkerCount)
		config.WorkerCount = DefaultPoolConfig().WorkerCount
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPoolConfig().PollInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		source:   source,
		executor: exec,
		config:   config,
		logger:   logger.With("component", "worker_pool"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started", "worker_count", p.config.WorkerCount)
}

// Stop signals all workers to finish their current job and exit, then waits
// for them.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// worker is the main loop for a single worker goroutine.
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", id)
	logger.Debug("worker started")

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		p.drain(logger)

		select {
		case <-p.ctx.Done():
			logger.Debug("worker shutting down")
			return
		case <-p.source.Wake():
		case <-ticker.C:
		}
	}
}

// drain dequeues and runs jobs until the queue reports nothing runnable.
func (p *Pool) drain(logger *slog.Logger) {
	for {
		if p.ctx.Err() != nil {
			return
		}

		job, err := p.source.Dequeue(p.ctx)
		if err != nil {
			logger.Error("failed to dequeue job", "error", err)
			return
		}
		if job == nil {
			return
		}

		p.run(logger, job)
	}
}

// run executes one job and reports the outcome back to the queue.
func (p *Pool) run(logger *slog.Logger, job *domain.AnalysisJob) {
	logger.Info("executing job",
		"job_id", job.ID,
		"ticker", job.Ticker,
		"trade_date", job.TradeDate,
		"priority", job.Priority,
		"retry_count", job.RetryCount)

	resultID, err := p.executor.Execute(p.ctx, job.Ticker, job.TradeDate)
	if err != nil {
		logger.Warn("job execution failed", "job_id", job.ID, "error", err)
		if markErr := p.source.MarkFailed(p.ctx, job, err.Error()); markErr != nil {
			logger.Error("failed to record job failure", "job_id", job.ID, "error", markErr)
		}
		return
	}

	if markErr := p.source.MarkCompleted(p.ctx, job, resultID); markErr != nil {
		logger.Error("failed to record job completion", "job_id", job.ID, "error", markErr)
	}
}
