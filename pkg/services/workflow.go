package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/pdfflow/pkg/eventbus"
	"github.com/dukex/pdfflow/pkg/events"
	"github.com/dukex/pdfflow/pkg/models"
	"github.com/dukex/pdfflow/pkg/persistence"
	"github.com/google/uuid"
)

var (
	// ErrWorkflowNotFound is returned when a workflow is not found.
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
)

// ParameterValidator checks node parameter values against their node type.
type ParameterValidator interface {
	ValidateParameters(nodeType string, values map[string]models.ParamValue) error
}

type Workflow struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	parameters  ParameterValidator
	logger      *slog.Logger
	now         func() time.Time
}

type WorkflowOption func(*Workflow)

// WithParameterValidator logs a warning for every saved node whose parameters
// do not match its type. Saving is never refused on these grounds.
func WithParameterValidator(v ParameterValidator) WorkflowOption {
	return func(w *Workflow) { w.parameters = v }
}

// NewWorkflow creates a new workflow service. publisher may be nil.
func NewWorkflow(
	persistence persistence.Persistence,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	opts ...WorkflowOption,
) *Workflow {
	w := &Workflow{
		persistence: persistence,
		publisher:   publisher,
		logger:      logger.With("module", "workflow_service"),
		now:         func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List returns workflow summaries, most recently updated first.
func (w *Workflow) List(ctx context.Context) ([]models.WorkflowSummary, error) {
	workflows, err := w.persistence.WorkflowRepository().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	summaries := make([]models.WorkflowSummary, 0, len(workflows))
	for _, wf := range workflows {
		summaries = append(summaries, wf.Summary())
	}

	return summaries, nil
}

// FetchByID returns a stored workflow.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	return w.persistence.WorkflowRepository().GetByID(ctx, id)
}

// Create stores a new workflow. A client-supplied id is kept; otherwise one is generated.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if err := validateWorkflow(workflow); err != nil {
		return nil, err
	}

	now := w.now()

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	err := w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	w.checkParameters(ctx, workflow)

	w.publish(ctx, workflow.ID, &events.WorkflowCreated{
		BaseEvent: events.NewBaseEvent(events.WorkflowCreatedEvent, workflow.ID),
		Name:      workflow.Name,
		NodeCount: len(workflow.Nodes),
	})

	return workflow, nil
}

// Update replaces a stored workflow, keeping its creation time.
func (w *Workflow) Update(ctx context.Context, workflowID string, workflow *models.Workflow) (*models.Workflow, error) {
	if err := validateWorkflow(workflow); err != nil {
		return nil, err
	}

	existing, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	workflow.ID = workflowID
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = w.now()

	err = w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	w.checkParameters(ctx, workflow)

	w.publish(ctx, workflow.ID, &events.WorkflowUpdated{
		BaseEvent: events.NewBaseEvent(events.WorkflowUpdatedEvent, workflow.ID),
		Name:      workflow.Name,
		NodeCount: len(workflow.Nodes),
	})

	return workflow, nil
}

// Delete removes a workflow.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	if err := w.persistence.WorkflowRepository().Delete(ctx, workflowID); err != nil {
		return err
	}

	w.publish(ctx, workflowID, &events.WorkflowDeleted{
		BaseEvent: events.NewBaseEvent(events.WorkflowDeletedEvent, workflowID),
	})

	return nil
}

func (w *Workflow) checkParameters(ctx context.Context, workflow *models.Workflow) {
	if w.parameters == nil {
		return
	}

	for _, node := range workflow.Nodes {
		for k, v := range node.Config.Params {
			if v.Kind() == models.ValueRaw {
				w.logger.WarnContext(ctx, "Saved workflow has an unsupported parameter value",
					"workflow_id", workflow.ID, "node_id", node.ID, "param", k, "value", v.String())
			}
		}

		if err := w.parameters.ValidateParameters(node.Type, node.Config.Params); err != nil {
			w.logger.WarnContext(ctx, "Saved workflow has invalid parameters",
				"workflow_id", workflow.ID, "node_id", node.ID, "error", err)
		}
	}
}

func (w *Workflow) publish(ctx context.Context, key string, event eventbus.Event) {
	if w.publisher == nil {
		return
	}

	if err := w.publisher.Publish(ctx, key, event); err != nil {
		w.logger.WarnContext(ctx, "Failed to publish workflow event", "event_type", event.GetType(), "error", err)
	}
}

// validateWorkflow checks what the storage layer cannot: unique node ids and
// connections between existing nodes.
func validateWorkflow(workflow *models.Workflow) error {
	if workflow == nil {
		return ErrWorkflowNil
	}

	if strings.TrimSpace(workflow.Name) == "" {
		return ErrWorkflowNameRequired
	}

	ids := make(map[string]bool, len(workflow.Nodes))

	for _, n := range workflow.Nodes {
		if ids[n.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateNodeID, n.ID)
		}

		ids[n.ID] = true
	}

	for _, c := range workflow.Connections {
		if !ids[c.SourceNode] || !ids[c.TargetNode] {
			return fmt.Errorf("%w: connection %s references a missing node", ErrInvalidConnectionData, c.ID)
		}
	}

	return nil
}
