package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dukex/pdfflow/pkg/eventbus"
	"github.com/dukex/pdfflow/pkg/events"
	"github.com/dukex/pdfflow/pkg/log"
	"github.com/dukex/pdfflow/pkg/models"
	"github.com/dukex/pdfflow/pkg/persistence"
	"github.com/dukex/pdfflow/pkg/persistence/file"
	"github.com/dukex/pdfflow/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *recordingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]events.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.GetType())
	}

	return out
}

func testWorkflow(id string) *models.Workflow {
	return &models.Workflow{
		ID:   id,
		Name: "Compress invoices",
		Nodes: []models.WorkflowNode{
			{ID: "input_file-1", Type: "input_file", Config: models.NodeConfig{Label: "Files"}},
			{ID: "output_save-2", Type: "output_save", Config: models.NodeConfig{Label: "Save"}},
		},
		Connections: []models.WorkflowConnection{
			{ID: "edge-1", SourceNode: "input_file-1", SourceHandle: "output", TargetNode: "output_save-2", TargetHandle: "input"},
		},
	}
}

func newWorkflowService(t *testing.T) (*services.Workflow, persistence.Persistence, *recordingPublisher) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	pub := &recordingPublisher{}

	return services.NewWorkflow(p, pub, log.Discard()), p, pub
}

func TestWorkflow_CreateKeepsClientID(t *testing.T) {
	t.Parallel()

	svc, _, pub := newWorkflowService(t)

	created, err := svc.Create(t.Context(), testWorkflow("client-id"))
	require.NoError(t, err)
	assert.Equal(t, "client-id", created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	fetched, err := svc.FetchByID(t.Context(), "client-id")
	require.NoError(t, err)
	assert.Equal(t, "Compress invoices", fetched.Name)
	assert.Len(t, fetched.Nodes, 2)

	assert.Equal(t, []events.EventType{events.WorkflowCreatedEvent}, pub.types())
}

func TestWorkflow_CreateGeneratesID(t *testing.T) {
	t.Parallel()

	svc, _, _ := newWorkflowService(t)

	created, err := svc.Create(t.Context(), testWorkflow(""))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
}

func TestWorkflow_CreateValidation(t *testing.T) {
	t.Parallel()

	svc, _, _ := newWorkflowService(t)

	tests := []struct {
		name     string
		workflow *models.Workflow
		want     error
	}{
		{name: "nil", workflow: nil, want: services.ErrWorkflowNil},
		{
			name:     "blank name",
			workflow: &models.Workflow{Name: "  "},
			want:     services.ErrWorkflowNameRequired,
		},
		{
			name: "duplicate node",
			workflow: &models.Workflow{Name: "x", Nodes: []models.WorkflowNode{
				{ID: "a", Type: "input_file"}, {ID: "a", Type: "output_save"},
			}},
			want: services.ErrDuplicateNodeID,
		},
		{
			name: "dangling connection",
			workflow: &models.Workflow{
				Name:        "x",
				Nodes:       []models.WorkflowNode{{ID: "a", Type: "input_file"}},
				Connections: []models.WorkflowConnection{{ID: "e", SourceNode: "a", TargetNode: "ghost"}},
			},
			want: services.ErrInvalidConnectionData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := svc.Create(t.Context(), tt.workflow)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, services.IsValidationError(err))
		})
	}
}

func TestWorkflow_UpdatePreservesCreatedAt(t *testing.T) {
	t.Parallel()

	svc, _, pub := newWorkflowService(t)

	created, err := svc.Create(t.Context(), testWorkflow("wf-1"))
	require.NoError(t, err)

	createdAt := created.CreatedAt

	time.Sleep(5 * time.Millisecond)

	changed := testWorkflow("ignored")
	changed.Name = "Renamed"
	changed.CreatedAt = time.Time{}

	updated, err := svc.Update(t.Context(), "wf-1", changed)
	require.NoError(t, err)
	assert.Equal(t, "wf-1", updated.ID)
	assert.Equal(t, "Renamed", updated.Name)
	assert.True(t, createdAt.Equal(updated.CreatedAt))
	assert.True(t, updated.UpdatedAt.After(createdAt))

	assert.Equal(t, []events.EventType{events.WorkflowCreatedEvent, events.WorkflowUpdatedEvent}, pub.types())
}

func TestWorkflow_UpdateMissing(t *testing.T) {
	t.Parallel()

	svc, _, _ := newWorkflowService(t)

	_, err := svc.Update(t.Context(), "missing", testWorkflow("missing"))
	require.ErrorIs(t, err, services.ErrWorkflowNotFound)
}

func TestWorkflow_ListAndDelete(t *testing.T) {
	t.Parallel()

	svc, _, pub := newWorkflowService(t)

	_, err := svc.Create(t.Context(), testWorkflow("first"))
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = svc.Create(t.Context(), testWorkflow("second"))
	require.NoError(t, err)

	list, err := svc.List(t.Context())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].ID)
	assert.Equal(t, 2, list[0].NodeCount)

	require.NoError(t, svc.Delete(t.Context(), "first"))
	require.ErrorIs(t, svc.Delete(t.Context(), "first"), services.ErrWorkflowNotFound)

	list, err = svc.List(t.Context())
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.Contains(t, pub.types(), events.WorkflowDeletedEvent)
}

func TestWorkflow_HealthCheck(t *testing.T) {
	t.Parallel()

	svc, _, _ := newWorkflowService(t)

	msg, ok := svc.HealthCheck(t.Context())
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", msg)

	msg, ok = services.NewWorkflow(nil, nil, log.Discard()).HealthCheck(t.Context())
	assert.False(t, ok)
	assert.Equal(t, "Persistence layer not initialized", msg)
}
