package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/finsight/analysis-orchestrator/internal/platform/memory"
	"github.com/finsight/analysis-orchestrator/internal/platform/postgres"
	"github.com/finsight/analysis-orchestrator/internal/platform/sqlite"
)

// setupJobStore opens the job store selected by the database driver.
// The postgres path also applies pending migrations; the sqlite store
// initializes its own schema.
func (app *application) setupJobStore(ctx context.Context) error {
	switch app.config.Database.Driver {
	case "memory":
		app.repo = memory.NewJobStore()
		app.logger.Info("using in-memory job store")
		return nil

	case "sqlite":
		jobStore, err := sqlite.NewJobStore(app.config.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open sqlite job store: %w", err)
		}
		app.sqliteStore = jobStore
		app.repo = jobStore
		app.logger.Info("using sqlite job store", "path", app.config.Database.Path)
		return nil

	case "postgres":
		db, err := openPostgres(ctx, app.config.Database.URL)
		if err != nil {
			return err
		}
		if err := applyMigrations(db, app.logger); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
		app.db = db
		app.repo = postgres.NewJobStore(db)
		app.logger.Info("using postgres job store")
		return nil

	default:
		return fmt.Errorf("unknown database driver %q", app.config.Database.Driver)
	}
}

// openPostgres establishes a pooled connection and verifies it.
func openPostgres(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
