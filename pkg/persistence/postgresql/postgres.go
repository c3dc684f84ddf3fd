// Package postgresql provides PostgreSQL persistence for workflows and executions.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/pdfflow/pkg/persistence"
	"github.com/dukex/pdfflow/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db            *sql.DB
	logger        *slog.Logger
	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Initialize components
	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	postgres := &Persistence{
		db:            database,
		logger:        logger,
		workflowRepo:  NewWorkflowRepository(database, logger),
		executionRepo: NewExecutionRepository(database, logger),
	}

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}
