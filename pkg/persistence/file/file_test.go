package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/pdfflow/pkg/models"
	"github.com/dukex/pdfflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPersistence(t *testing.T) {
	t.Parallel()

	p := NewPersistence("/tmp/test")
	fp := p.(*Persistence)
	assert.Equal(t, "/tmp/test", fp.root)

	p = NewPersistence("file:///tmp/test")
	fp = p.(*Persistence)
	assert.Equal(t, "/tmp/test", fp.root)
}

func TestPersistence_HealthCheckCreatesRoot(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "data")
	p := NewPersistence(root)

	require.NoError(t, p.HealthCheck(t.Context()))
	assert.DirExists(t, root)
	require.NoError(t, p.Close(t.Context()))
}

func newWorkflow(id string, updated time.Time) *models.Workflow {
	return &models.Workflow{
		ID:   id,
		Name: "Workflow " + id,
		Nodes: []models.WorkflowNode{
			{
				ID:       "input_file-1",
				Type:     "input_file",
				Position: models.Position{X: 100, Y: 200},
				Config: models.NodeConfig{
					Label:  "File Input",
					Params: map[string]models.ParamValue{"accept": models.TextValue(".pdf")},
				},
			},
		},
		Connections: []models.WorkflowConnection{},
		CreatedAt:   updated,
		UpdatedAt:   updated,
	}
}

func TestWorkflowRepository_RoundTrip(t *testing.T) {
	t.Parallel()

	p := NewPersistence(t.TempDir())
	repo := p.WorkflowRepository()

	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, repo.Save(t.Context(), newWorkflow("wf-1", now)))

	got, err := repo.GetByID(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Workflow wf-1", got.Name)
	require.Len(t, got.Nodes, 1)
	assert.Equal(t, ".pdf", got.Nodes[0].Config.Params["accept"].Text())
	assert.True(t, now.Equal(got.UpdatedAt))
}

func TestWorkflowRepository_ListNewestFirst(t *testing.T) {
	t.Parallel()

	p := NewPersistence(t.TempDir())
	repo := p.WorkflowRepository()

	list, err := repo.List(t.Context())
	require.NoError(t, err)
	assert.Empty(t, list)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(t.Context(), newWorkflow("old", base)))
	require.NoError(t, repo.Save(t.Context(), newWorkflow("new", base.Add(time.Hour))))

	list, err = repo.List(t.Context())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)
	assert.Equal(t, "old", list[1].ID)
}

func TestWorkflowRepository_NotFound(t *testing.T) {
	t.Parallel()

	p := NewPersistence(t.TempDir())
	repo := p.WorkflowRepository()

	_, err := repo.GetByID(t.Context(), "missing")
	require.ErrorIs(t, err, persistence.ErrWorkflowNotFound)

	err = repo.Delete(t.Context(), "missing")
	require.ErrorIs(t, err, persistence.ErrWorkflowNotFound)

	_, err = repo.GetByID(t.Context(), "../etc/passwd")
	require.ErrorIs(t, err, persistence.ErrWorkflowNotFound)

	require.Error(t, repo.Save(t.Context(), newWorkflow("a/b", time.Now())))
}

func TestWorkflowRepository_Delete(t *testing.T) {
	t.Parallel()

	p := NewPersistence(t.TempDir())
	repo := p.WorkflowRepository()

	require.NoError(t, repo.Save(t.Context(), newWorkflow("wf-1", time.Now())))
	require.NoError(t, repo.Delete(t.Context(), "wf-1"))

	_, err := repo.GetByID(t.Context(), "wf-1")
	require.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}

func TestExecutionRepository(t *testing.T) {
	t.Parallel()

	p := NewPersistence(t.TempDir())
	repo := p.ExecutionRepository()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	later := base.Add(time.Hour)

	first := &models.Execution{ID: "e1", WorkflowID: "wf", Status: models.ExecutionStatusCompleted, StartedAt: &base, CompletedAt: &base}
	second := &models.Execution{ID: "e2", WorkflowID: "wf", Status: models.ExecutionStatusRunning, StartedAt: &later}
	other := &models.Execution{ID: "e3", WorkflowID: "other", Status: models.ExecutionStatusFailed, StartedAt: &base, CompletedAt: &later}

	for _, e := range []*models.Execution{first, second, other} {
		require.NoError(t, repo.Save(t.Context(), e))
	}

	got, err := repo.GetByID(t.Context(), "e1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, got.Status)

	_, err = repo.GetByID(t.Context(), "nope")
	require.ErrorIs(t, err, persistence.ErrExecutionNotFound)

	list, err := repo.ListByWorkflow(t.Context(), "wf")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "e2", list[0].ID)

	removed, err := repo.DeleteFinishedBefore(t.Context(), base.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = repo.GetByID(t.Context(), "e1")
	require.ErrorIs(t, err, persistence.ErrExecutionNotFound)

	_, err = repo.GetByID(t.Context(), "e2")
	require.NoError(t, err)
}

func TestWorkflowRepository_ListToleratesNonScalarParams(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	p := NewPersistence(root)
	repo := p.WorkflowRepository()

	require.NoError(t, repo.Save(t.Context(), newWorkflow("current", time.Now().UTC())))

	legacy := `{"id":"legacy","name":"Legacy","nodes":[{"id":"n1","type":"pdf_split","config":{"params":{"pages":[1,3]}}}],"connections":[]}`
	require.NoError(t, os.WriteFile(filepath.Join(root, "workflows", "legacy.json"), []byte(legacy), 0o600))

	list, err := repo.List(t.Context())
	require.NoError(t, err)
	assert.Len(t, list, 2)

	workflow, err := repo.GetByID(t.Context(), "legacy")
	require.NoError(t, err)
	assert.Equal(t, models.ValueRaw, workflow.Nodes[0].Config.Params["pages"].Kind())

	require.NoError(t, repo.Save(t.Context(), workflow))

	reloaded, err := repo.GetByID(t.Context(), "legacy")
	require.NoError(t, err)
	assert.JSONEq(t, `[1,3]`, string(reloaded.Nodes[0].Config.Params["pages"].Raw()))
}
