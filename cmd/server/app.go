package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/finsight/analysis-orchestrator/internal/config"
	"github.com/finsight/analysis-orchestrator/internal/domain"
	"github.com/finsight/analysis-orchestrator/internal/events"
	"github.com/finsight/analysis-orchestrator/internal/executor"
	"github.com/finsight/analysis-orchestrator/internal/metrics"
	"github.com/finsight/analysis-orchestrator/internal/notify"
	"github.com/finsight/analysis-orchestrator/internal/platform/gemini"
	"github.com/finsight/analysis-orchestrator/internal/platform/sqlite"
	"github.com/finsight/analysis-orchestrator/internal/queue"
	"github.com/finsight/analysis-orchestrator/internal/retry"
	"github.com/finsight/analysis-orchestrator/internal/scaling"
	"github.com/finsight/analysis-orchestrator/internal/service"
	"github.com/finsight/analysis-orchestrator/internal/store"
	"github.com/finsight/analysis-orchestrator/internal/worker"
)

// application holds the wired components and owns their lifecycle.
type application struct {
	config *config.Config
	logger *slog.Logger

	db          *sql.DB
	sqliteStore *sqlite.JobStore
	repo        store.JobRepository

	queueManager    *queue.Manager
	retryScheduler  *retry.Scheduler
	collector       *metrics.Collector
	scaler          *scaling.Manager
	workerPool      *worker.Pool
	analysisService service.AnalysisService
	emitter         *events.InMemoryEventEmitter
}

// buildApplication constructs every component and wires the dependencies.
// Nothing is started yet; start() owns the startup order.
func buildApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	if err := app.setupJobStore(ctx); err != nil {
		return nil, err
	}

	notifier := notify.NewLogNotifier(logger)

	app.queueManager = queue.NewManager(app.repo, queue.Config{
		MaxConcurrent: cfg.Queue.MaxConcurrent,
	}, notifier, logger)

	app.collector = metrics.NewCollector(app.queueManager, metrics.Config{
		SampleInterval:            cfg.Metrics.SampleInterval,
		HistoryCapacity:           cfg.Metrics.HistoryCapacity,
		ThroughputWindow:          cfg.Metrics.ThroughputWindow,
		SuccessRateAlertThreshold: cfg.Metrics.SuccessRateAlertThreshold,
		QueueAlertThreshold:       cfg.Metrics.QueueAlertThreshold,
	}, logger)
	app.queueManager.SetExecutionRecorder(app.collector)

	app.retryScheduler = retry.NewScheduler(app.queueManager, app.repo, retry.Policy{
		BaseDelay:      cfg.Retry.BaseDelay,
		MaxDelay:       cfg.Retry.MaxDelay,
		JitterFraction: cfg.Retry.JitterFraction,
	}, retry.NewClock(), logger)
	app.queueManager.SetRetryScheduler(app.retryScheduler)

	scaler, err := scaling.NewManager(app.queueManager, domain.ScalingConfig{
		MinWorkers:               cfg.Scaling.MinWorkers,
		MaxWorkers:               cfg.Scaling.MaxWorkers,
		ScaleUpCooldown:          cfg.Scaling.ScaleUpCooldown,
		ScaleDownCooldown:        cfg.Scaling.ScaleDownCooldown,
		UtilizationHighThreshold: cfg.Scaling.UtilizationHighThreshold,
		UtilizationLowThreshold:  cfg.Scaling.UtilizationLowThreshold,
		QueueLengthHighThreshold: cfg.Scaling.QueueLengthHighThreshold,
		QueueLengthLowThreshold:  cfg.Scaling.QueueLengthLowThreshold,
		SuccessRateLowThreshold:  cfg.Scaling.SuccessRateLowThreshold,
		ConsecutiveRequired:      cfg.Scaling.ConsecutiveRequired,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create auto-scaler: %w", err)
	}
	app.scaler = scaler

	exec, err := app.setupExecutor(ctx)
	if err != nil {
		return nil, err
	}

	workerCount := cfg.Queue.MaxConcurrent
	if cfg.Scaling.Enabled && cfg.Scaling.MaxWorkers > workerCount {
		// Extra workers idle on the wake signal until the scaler raises the
		// concurrency ceiling.
		workerCount = cfg.Scaling.MaxWorkers
	}
	app.workerPool = worker.NewPool(app.queueManager, exec, worker.PoolConfig{
		WorkerCount:  workerCount,
		PollInterval: cfg.Queue.PollInterval,
	}, logger)

	app.emitter = events.NewInMemoryEventEmitter(logger)
	app.emitter.RegisterHandler(queue.NewEnqueueEventHandler(app.queueManager, app.repo, logger))

	analysisService, err := service.NewAnalysisService(app.repo, app.queueManager, app.emitter, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis service: %w", err)
	}
	app.analysisService = analysisService

	return app, nil
}

// setupExecutor picks the production Gemini executor when an API key is
// configured and the simulated one otherwise.
func (app *application) setupExecutor(ctx context.Context) (executor.AnalysisExecutor, error) {
	if app.config.LLM.GeminiAPIKey != "" {
		exec, err := gemini.NewExecutor(ctx, app.logger, app.config.LLM)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini executor: %w", err)
		}
		return exec, nil
	}

	app.logger.Warn("no Gemini API key configured, using simulated executor")
	return executor.NewSimulated(app.logger, 200*time.Millisecond, 2*time.Second, 0.1), nil
}

// start brings the components up in dependency order: recover persisted
// state first, then start the background loops.
func (app *application) start(ctx context.Context) error {
	if err := app.queueManager.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover queue state: %w", err)
	}
	if err := app.retryScheduler.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore retry timers: %w", err)
	}

	app.collector.Start()
	if app.config.Scaling.Enabled {
		app.scaler.Start(app.collector.Subscribe())
	}
	app.workerPool.Start()

	app.logger.Info("application started")
	return nil
}

// cleanup stops background work in reverse startup order and closes the
// job store.
func (app *application) cleanup() {
	app.workerPool.Stop()
	if app.config.Scaling.Enabled {
		app.scaler.Stop()
	}
	app.collector.Stop()
	app.retryScheduler.Stop()

	if app.sqliteStore != nil {
		if err := app.sqliteStore.Close(); err != nil {
			app.logger.Error("failed to close sqlite store", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("failed to close database connection", "error", err)
		}
	}
}
