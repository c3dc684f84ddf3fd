package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/pdfflow/pkg/models"
	"github.com/dukex/pdfflow/pkg/persistence"
)

// ExecutionRepository handles execution records.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `id, workflow_id, status, node_results, input_files, output_files, error, started_at, completed_at`

func (r *ExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	nodeResults, err := json.Marshal(execution.NodeResults)
	if err != nil {
		return fmt.Errorf("failed to marshal node results: %w", err)
	}

	inputs, err := json.Marshal(nonNil(execution.InputFiles))
	if err != nil {
		return fmt.Errorf("failed to marshal input files: %w", err)
	}

	outputs, err := json.Marshal(nonNil(execution.OutputFiles))
	if err != nil {
		return fmt.Errorf("failed to marshal output files: %w", err)
	}

	query := `
		INSERT INTO executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			node_results = EXCLUDED.node_results,
			input_files = EXCLUDED.input_files,
			output_files = EXCLUDED.output_files,
			error = EXCLUDED.error,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.Status,
		nodeResults,
		inputs,
		outputs,
		execution.Error,
		execution.StartedAt,
		execution.CompletedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE workflow_id = $1 ORDER BY started_at DESC NULLS LAST`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func (r *ExecutionRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM executions WHERE completed_at IS NOT NULL AND completed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete executions: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rowsAffected), nil
}

func scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		execution                    models.Execution
		nodeResults, inputs, outputs []byte
		startedAt, completedAt       sql.NullTime
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.Status,
		&nodeResults,
		&inputs,
		&outputs,
		&execution.Error,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(nodeResults, &execution.NodeResults); err != nil {
		return nil, fmt.Errorf("failed to unmarshal node results: %w", err)
	}

	if err := json.Unmarshal(inputs, &execution.InputFiles); err != nil {
		return nil, fmt.Errorf("failed to unmarshal input files: %w", err)
	}

	if err := json.Unmarshal(outputs, &execution.OutputFiles); err != nil {
		return nil, fmt.Errorf("failed to unmarshal output files: %w", err)
	}

	if startedAt.Valid {
		t := startedAt.Time.UTC()
		execution.StartedAt = &t
	}

	if completedAt.Valid {
		t := completedAt.Time.UTC()
		execution.CompletedAt = &t
	}

	return &execution, nil
}

func nonNil(files []string) []string {
	if files == nil {
		return []string{}
	}

	return files
}
