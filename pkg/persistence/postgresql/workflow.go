package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/pdfflow/pkg/models"
	"github.com/dukex/pdfflow/pkg/persistence"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// List returns all workflows, most recently updated first.
func (r *WorkflowRepository) List(ctx context.Context) ([]*models.Workflow, error) {
	query := `
		SELECT
			id
		  , name
		  , description
		  , created_at
		  , updated_at
		FROM workflows
		WHERE deleted_at IS NULL
		ORDER BY updated_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer r.closeRows(ctx, rows)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflowBase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	for _, workflow := range workflows {
		if err := r.loadNodesAndConnections(ctx, workflow); err != nil {
			return nil, fmt.Errorf("failed to load workflow %s graph: %w", workflow.ID, err)
		}
	}

	return workflows, nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `
		SELECT
			id
		  , name
		  , description
		  , created_at
		  , updated_at
		FROM workflows
		WHERE id = $1 AND deleted_at IS NULL
	`

	workflow, err := scanWorkflowBase(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	if err := r.loadNodesAndConnections(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to load workflow %s graph: %w", id, err)
	}

	return workflow, nil
}

// Save upserts a workflow and replaces its nodes and connections in one transaction.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	workflowQuery := `
		INSERT INTO workflows (id, name, description, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, NULL)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at,
			deleted_at = NULL
	`

	_, err = tx.ExecContext(ctx, workflowQuery,
		workflow.ID,
		workflow.Name,
		workflow.Description,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow base: %w", err)
	}

	// Delete existing nodes and connections (for updates)
	_, err = tx.ExecContext(ctx, "DELETE FROM workflow_connections WHERE workflow_id = $1", workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing connections: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM workflow_nodes WHERE workflow_id = $1", workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing nodes: %w", err)
	}

	err = saveNodes(ctx, tx, workflow)
	if err != nil {
		return fmt.Errorf("failed to save workflow nodes: %w", err)
	}

	err = saveConnections(ctx, tx, workflow)
	if err != nil {
		return fmt.Errorf("failed to save workflow connections: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Delete soft deletes a workflow by setting deleted_at timestamp.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	query := `UPDATE workflows SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func saveNodes(ctx context.Context, tx *sql.Tx, workflow *models.Workflow) error {
	query := `
		INSERT INTO workflow_nodes (workflow_id, id, sort_order, node_type, label, description, params, position_x, position_y)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	for i, node := range workflow.Nodes {
		var params []byte

		if node.Config.Params != nil {
			data, err := json.Marshal(node.Config.Params)
			if err != nil {
				return fmt.Errorf("failed to marshal params of node %s: %w", node.ID, err)
			}

			params = data
		}

		_, err := tx.ExecContext(ctx, query,
			workflow.ID,
			node.ID,
			i,
			node.Type,
			node.Config.Label,
			node.Config.Description,
			params,
			node.Position.X,
			node.Position.Y,
		)
		if err != nil {
			return fmt.Errorf("failed to insert node %s: %w", node.ID, err)
		}
	}

	return nil
}

func saveConnections(ctx context.Context, tx *sql.Tx, workflow *models.Workflow) error {
	query := `
		INSERT INTO workflow_connections (workflow_id, id, sort_order, source_node_id, source_handle, target_node_id, target_handle)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	for i, conn := range workflow.Connections {
		_, err := tx.ExecContext(ctx, query,
			workflow.ID,
			conn.ID,
			i,
			conn.SourceNode,
			conn.SourceHandle,
			conn.TargetNode,
			conn.TargetHandle,
		)
		if err != nil {
			return fmt.Errorf("failed to insert connection %s: %w", conn.ID, err)
		}
	}

	return nil
}

func (r *WorkflowRepository) loadNodesAndConnections(ctx context.Context, workflow *models.Workflow) error {
	nodesQuery := `
		SELECT id, node_type, label, description, params, position_x, position_y
		FROM workflow_nodes
		WHERE workflow_id = $1
		ORDER BY sort_order
	`

	rows, err := r.db.QueryContext(ctx, nodesQuery, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query workflow nodes: %w", err)
	}

	defer r.closeRows(ctx, rows)

	workflow.Nodes = make([]models.WorkflowNode, 0)

	for rows.Next() {
		var (
			node   models.WorkflowNode
			params []byte
		)

		err := rows.Scan(
			&node.ID,
			&node.Type,
			&node.Config.Label,
			&node.Config.Description,
			&params,
			&node.Position.X,
			&node.Position.Y,
		)
		if err != nil {
			return fmt.Errorf("failed to scan workflow node: %w", err)
		}

		if params != nil {
			if err := json.Unmarshal(params, &node.Config.Params); err != nil {
				return fmt.Errorf("failed to unmarshal params of node %s: %w", node.ID, err)
			}
		}

		workflow.Nodes = append(workflow.Nodes, node)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating workflow nodes: %w", err)
	}

	connQuery := `
		SELECT id, source_node_id, source_handle, target_node_id, target_handle
		FROM workflow_connections
		WHERE workflow_id = $1
		ORDER BY sort_order
	`

	connRows, err := r.db.QueryContext(ctx, connQuery, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query workflow connections: %w", err)
	}

	defer r.closeRows(ctx, connRows)

	workflow.Connections = make([]models.WorkflowConnection, 0)

	for connRows.Next() {
		var conn models.WorkflowConnection

		err := connRows.Scan(&conn.ID, &conn.SourceNode, &conn.SourceHandle, &conn.TargetNode, &conn.TargetHandle)
		if err != nil {
			return fmt.Errorf("failed to scan workflow connection: %w", err)
		}

		workflow.Connections = append(workflow.Connections, conn)
	}

	if err := connRows.Err(); err != nil {
		return fmt.Errorf("error iterating workflow connections: %w", err)
	}

	return nil
}

func scanWorkflowBase(row rowScanner) (*models.Workflow, error) {
	var workflow models.Workflow

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.Description,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	workflow.CreatedAt = workflow.CreatedAt.UTC()
	workflow.UpdatedAt = workflow.UpdatedAt.UTC()

	return &workflow, nil
}

func (r *WorkflowRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
