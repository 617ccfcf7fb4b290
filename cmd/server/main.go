// Package main implements the entry point for the analysis orchestrator
// server, which schedules background trading-day analysis jobs, retries
// failures with backoff, and scales its worker pool from live metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/finsight/analysis-orchestrator/internal/config"
	"github.com/finsight/analysis-orchestrator/internal/platform/logger"
)

func main() {
	migrateCmd := flag.String("migrate", "", "run a migration command (up, down, status) and exit")
	flag.Parse()

	if err := run(*migrateCmd); err != nil {
		log.Fatalf("server exited with error: %v", err)
	}
}

func run(migrateCmd string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	appLogger.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"database_driver", cfg.Database.Driver,
		"max_concurrent", cfg.Queue.MaxConcurrent,
		"scaling_enabled", cfg.Scaling.Enabled)

	if migrateCmd != "" {
		return runMigrationCommand(cfg, appLogger, migrateCmd)
	}

	ctx := context.Background()

	app, err := buildApplication(ctx, cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	if err := app.start(ctx); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	return app.startHTTPServer(ctx, app.setupRouter())
}
