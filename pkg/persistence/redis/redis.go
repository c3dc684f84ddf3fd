// Package redis provides Redis persistence for workflows and executions.
// Records are JSON documents stored in one hash per kind.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dukex/pdfflow/pkg/models"
	"github.com/dukex/pdfflow/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const (
	workflowsKey  = "pdfflow:workflows"
	executionsKey = "pdfflow:executions"
)

// Persistence implements persistence.Persistence on a Redis server.
type Persistence struct {
	client        redis.UniversalClient
	logger        *slog.Logger
	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
}

// NewPersistence connects to the server described by a redis:// URL.
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string) (*Persistence, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", opts.Addr, "db", opts.DB)

	return &Persistence{
		client:        client,
		logger:        logger,
		workflowRepo:  &WorkflowRepository{client: client},
		executionRepo: &ExecutionRepository{client: client},
	}, nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return p.client.Close()
}

// WorkflowRepository stores workflows in the pdfflow:workflows hash.
type WorkflowRepository struct {
	client redis.UniversalClient
}

func (r *WorkflowRepository) List(ctx context.Context) ([]*models.Workflow, error) {
	values, err := r.client.HVals(ctx, workflowsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(values))

	for _, value := range values {
		var workflow models.Workflow
		if err := json.Unmarshal([]byte(value), &workflow); err != nil {
			return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
		}

		workflows = append(workflows, &workflow)
	}

	sort.SliceStable(workflows, func(i, j int) bool {
		return workflows[i].UpdatedAt.After(workflows[j].UpdatedAt)
	})

	return workflows, nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	value, err := r.client.HGet(ctx, workflowsKey, id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to fetch workflow %s: %w", id, err)
	}

	var workflow models.Workflow
	if err := json.Unmarshal([]byte(value), &workflow); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", id, err)
	}

	return &workflow, nil
}

func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	data, err := json.Marshal(workflow)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", workflow.ID, err)
	}

	if err := r.client.HSet(ctx, workflowsKey, workflow.ID, data).Err(); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	removed, err := r.client.HDel(ctx, workflowsKey, id).Result()
	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}

	if removed == 0 {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

// ExecutionRepository stores executions in the pdfflow:executions hash.
type ExecutionRepository struct {
	client redis.UniversalClient
}

func (r *ExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	data, err := json.Marshal(execution)
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", execution.ID, err)
	}

	if err := r.client.HSet(ctx, executionsKey, execution.ID, data).Err(); err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	value, err := r.client.HGet(ctx, executionsKey, id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to fetch execution %s: %w", id, err)
	}

	var execution models.Execution
	if err := json.Unmarshal([]byte(value), &execution); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution %s: %w", id, err)
	}

	return &execution, nil
}

func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*models.Execution, 0, len(all))
	for _, e := range all {
		if e.WorkflowID == workflowID {
			out = append(out, e)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return startedAt(out[i]).After(startedAt(out[j]))
	})

	return out, nil
}

func (r *ExecutionRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	all, err := r.all(ctx)
	if err != nil {
		return 0, err
	}

	var ids []string

	for _, e := range all {
		if e.CompletedAt != nil && e.CompletedAt.Before(cutoff) {
			ids = append(ids, e.ID)
		}
	}

	if len(ids) == 0 {
		return 0, nil
	}

	removed, err := r.client.HDel(ctx, executionsKey, ids...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to delete executions: %w", err)
	}

	return int(removed), nil
}

func (r *ExecutionRepository) all(ctx context.Context) ([]*models.Execution, error) {
	values, err := r.client.HVals(ctx, executionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	executions := make([]*models.Execution, 0, len(values))

	for _, value := range values {
		var execution models.Execution
		if err := json.Unmarshal([]byte(value), &execution); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution: %w", err)
		}

		executions = append(executions, &execution)
	}

	return executions, nil
}

func startedAt(e *models.Execution) time.Time {
	if e.StartedAt == nil {
		return time.Time{}
	}

	return *e.StartedAt
}
