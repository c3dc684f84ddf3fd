package editor

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/dukex/pdfflow/pkg/client"
	"github.com/dukex/pdfflow/pkg/events"
	"github.com/dukex/pdfflow/pkg/execution"
	"github.com/dukex/pdfflow/pkg/graph"
	"github.com/dukex/pdfflow/pkg/log"
	"github.com/dukex/pdfflow/pkg/models"
	"github.com/dukex/pdfflow/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRemote struct {
	mock.Mock
}

func (m *mockRemote) Execute(ctx context.Context, workflowID string, files []client.File) (*models.ExecutionResult, error) {
	args := m.Called(ctx, workflowID, files)

	result, _ := args.Get(0).(*models.ExecutionResult)

	return result, args.Error(1)
}

func (m *mockRemote) Download(ctx context.Context, filePath string, w io.Writer) (string, error) {
	args := m.Called(ctx, filePath, w)

	return args.String(0), args.Error(1)
}

func (m *mockRemote) Save(ctx context.Context, req client.SaveRequest) (string, error) {
	args := m.Called(ctx, req)

	return args.String(0), args.Error(1)
}

func (m *mockRemote) List(ctx context.Context) ([]models.WorkflowSummary, error) {
	args := m.Called(ctx)

	list, _ := args.Get(0).([]models.WorkflowSummary)

	return list, args.Error(1)
}

func (m *mockRemote) Fetch(ctx context.Context, id string) (*models.Workflow, error) {
	args := m.Called(ctx, id)

	wf, _ := args.Get(0).(*models.Workflow)

	return wf, args.Error(1)
}

type noticeRecorder struct {
	mu      sync.Mutex
	notices []events.EditorNotice
}

func (r *noticeRecorder) record(n events.EditorNotice) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.notices = append(r.notices, n)
}

func (r *noticeRecorder) all() []events.EditorNotice {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]events.EditorNotice(nil), r.notices...)
}

func (r *noticeRecorder) waitFor(t *testing.T, level events.NoticeLevel, contains string) events.EditorNotice {
	t.Helper()

	var found events.EditorNotice

	require.Eventually(t, func() bool {
		for _, n := range r.all() {
			if n.Level == level && strings.Contains(n.Message, contains) {
				found = n

				return true
			}
		}

		return false
	}, 2*time.Second, 10*time.Millisecond)

	return found
}

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSession(t *testing.T, remote *mockRemote) (*Session, *noticeRecorder) {
	t.Helper()

	catalog, err := registry.Load(log.Discard())
	require.NoError(t, err)

	recorder := &noticeRecorder{}

	s, err := New(catalog, remote,
		WithLogger(log.Discard()),
		WithIDGenerator(graph.NewSequence()),
		WithClock(func() time.Time { return fixedNow }),
		OnNotice(recorder.record),
	)
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })

	return s, recorder
}

func TestSession_ConnectRejectionPublishesNotice(t *testing.T) {
	t.Parallel()

	s, notices := newTestSession(t, &mockRemote{})

	src, err := s.AddNode("pdf_compress", models.Position{})
	require.NoError(t, err)

	in, err := s.AddNode("input_file", models.Position{})
	require.NoError(t, err)

	_, err = s.Connect(t.Context(), src.ID, in.ID, "", "")
	require.Error(t, err)
	assert.True(t, graph.IsRejection(err))
	assert.Empty(t, s.Store().Edges())

	notice := notices.waitFor(t, events.NoticeError, "cannot receive input")
	assert.Equal(t, fixedNow.Add(RejectionNoticeTTL), notice.ExpiresAt)
	assert.False(t, notice.Expired(fixedNow))
	assert.True(t, notice.Expired(fixedNow.Add(RejectionNoticeTTL)))
}

func TestSession_ConnectAccepted(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t, &mockRemote{})

	in, err := s.AddNode("input_file", models.Position{})
	require.NoError(t, err)

	out, err := s.AddNode("output_save", models.Position{})
	require.NoError(t, err)

	edge, err := s.Connect(t.Context(), in.ID, out.ID, "", "")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSourceHandle, edge.SourceHandle)
	assert.Len(t, s.Store().Edges(), 1)
}

func TestSession_CommitParameter(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t, &mockRemote{})

	node, err := s.AddNode("pdf_watermark", models.Position{})
	require.NoError(t, err)

	value, err := s.CommitParameter(node.ID, "opacity", "5")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, value.Number(), 0.0001)

	stored, ok := s.Store().Node(node.ID)
	require.True(t, ok)
	assert.InDelta(t, 1.0, stored.Parameters["opacity"].Number(), 0.0001)

	_, err = s.CommitParameter(node.ID, "opacity", "abc")
	require.ErrorIs(t, err, models.ErrParameterKind)

	_, err = s.CommitParameter(node.ID, "missing", "x")
	require.ErrorIs(t, err, ErrUnknownParam)

	_, err = s.CommitParameter("nope", "opacity", 1)
	require.ErrorIs(t, err, graph.ErrNodeNotFound)
}

func TestSession_ArrangeAuto(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t, &mockRemote{})

	in, err := s.AddNode("input_file", models.Position{X: 900, Y: 900})
	require.NoError(t, err)

	out, err := s.AddNode("output_save", models.Position{X: 5, Y: 5})
	require.NoError(t, err)

	_, err = s.Connect(t.Context(), in.ID, out.ID, "", "")
	require.NoError(t, err)

	require.NoError(t, s.Arrange(ArrangeAuto))

	first, _ := s.Store().Node(in.ID)
	second, _ := s.Store().Node(out.ID)
	assert.Less(t, first.Position.X, second.Position.X)

	require.ErrorIs(t, s.Arrange("diagonal"), ErrUnknownArrange)
}

func TestSession_ImportFiles(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t, &mockRemote{})

	nodes, err := s.ImportFiles([]client.File{
		{Name: "/tmp/a.pdf", Reader: strings.NewReader("a")},
		{Name: "b.pdf", Reader: strings.NewReader("b")},
	})
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	assert.Equal(t, "a.pdf", nodes[0].Label)
	assert.Equal(t, "b.pdf", nodes[1].Label)
	assert.Equal(t, nodes[0].Position.X, nodes[1].Position.X)
	assert.Greater(t, nodes[1].Position.Y, nodes[0].Position.Y)
	assert.Len(t, s.QueuedFiles(), 2)
}

func TestSession_NewWorkflowRequiresConfirmation(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t, &mockRemote{})

	assert.True(t, s.NewWorkflow(nil))

	_, err := s.AddNode("input_file", models.Position{})
	require.NoError(t, err)

	assert.False(t, s.NewWorkflow(nil))
	assert.False(t, s.NewWorkflow(func() bool { return false }))
	assert.Equal(t, 1, s.Store().Len())

	assert.True(t, s.NewWorkflow(func() bool { return true }))
	assert.Equal(t, 0, s.Store().Len())
	assert.Empty(t, s.WorkflowID())
}

func TestSession_SaveThenUpdate(t *testing.T) {
	t.Parallel()

	remote := &mockRemote{}
	remote.On("Save", mock.Anything, mock.MatchedBy(func(req client.SaveRequest) bool {
		return req.ID == "" && req.Name == "Invoices"
	})).Return("wf-1", nil).Once()
	remote.On("Save", mock.Anything, mock.MatchedBy(func(req client.SaveRequest) bool {
		return req.ID == "wf-1"
	})).Return("wf-1", nil).Once()

	s, notices := newTestSession(t, remote)

	_, err := s.AddNode("input_file", models.Position{})
	require.NoError(t, err)

	id, err := s.Save(t.Context(), "Invoices", "")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", id)
	assert.Equal(t, "wf-1", s.WorkflowID())

	_, err = s.Save(t.Context(), "Invoices", "monthly")
	require.NoError(t, err)

	remote.AssertExpectations(t)
	notices.waitFor(t, events.NoticeSuccess, "saved")
}

func TestSession_SaveWarnsOnInvalidParameters(t *testing.T) {
	t.Parallel()

	remote := &mockRemote{}
	remote.On("Save", mock.Anything, mock.Anything).Return("wf-2", nil)

	s, notices := newTestSession(t, remote)

	node, err := s.AddNode("pdf_watermark", models.Position{})
	require.NoError(t, err)
	require.NoError(t, s.Store().UpdateNodeParameter(node.ID, "opacity", models.TextValue("loud")))

	_, err = s.Save(t.Context(), "", "")
	require.NoError(t, err)

	assert.Equal(t, "Untitled workflow", s.Name())
	notices.waitFor(t, events.NoticeWarning, "opacity")
}

func TestSession_SaveFailureKeepsState(t *testing.T) {
	t.Parallel()

	remote := &mockRemote{}
	remote.On("Save", mock.Anything, mock.Anything).Return("", errors.New("connection refused"))

	s, notices := newTestSession(t, remote)

	_, err := s.Save(t.Context(), "x", "")
	require.Error(t, err)
	assert.Empty(t, s.WorkflowID())
	assert.False(t, s.Busy(ActionSave))

	notices.waitFor(t, events.NoticeError, "connection refused")
}

func TestSession_Open(t *testing.T) {
	t.Parallel()

	remote := &mockRemote{}
	remote.On("Fetch", mock.Anything, "wf-9").Return(&models.Workflow{
		ID:   "wf-9",
		Name: "Loaded",
		Nodes: []models.WorkflowNode{
			{ID: "a", Type: "input_file", Config: models.NodeConfig{Label: "In", Params: map[string]models.ParamValue{}}},
			{ID: "b", Type: "pdf_compress", Config: models.NodeConfig{Label: "Compress"}},
		},
		Connections: []models.WorkflowConnection{
			{ID: "e1", SourceNode: "a", TargetNode: "b"},
			{ID: "e2", SourceNode: "a", TargetNode: "ghost"},
		},
	}, nil)

	s, notices := newTestSession(t, remote)

	warnings, err := s.Open(t.Context(), "wf-9")
	require.NoError(t, err)
	assert.Len(t, warnings, 2)

	assert.Equal(t, "wf-9", s.WorkflowID())
	assert.Equal(t, "Loaded", s.Name())
	assert.Equal(t, 2, s.Store().Len())
	assert.Len(t, s.Store().Edges(), 1)

	notices.waitFor(t, events.NoticeWarning, "2 warning")
}

func TestSession_OpenFailureKeepsGraph(t *testing.T) {
	t.Parallel()

	remote := &mockRemote{}
	remote.On("Fetch", mock.Anything, "missing").Return(nil, &client.ServiceError{Op: "fetch workflow", StatusCode: 404, Detail: "not found"})

	s, _ := newTestSession(t, remote)

	_, err := s.AddNode("input_file", models.Position{})
	require.NoError(t, err)

	_, err = s.Open(t.Context(), "missing")
	require.Error(t, err)
	assert.True(t, client.IsNotFound(err))
	assert.Equal(t, 1, s.Store().Len())
}

func TestSession_Execute(t *testing.T) {
	t.Parallel()

	remote := &mockRemote{}
	remote.On("Save", mock.Anything, mock.Anything).Return("wf-1", nil)
	remote.On("Execute", mock.Anything, "wf-1", mock.Anything).Return(&models.ExecutionResult{
		Success:     true,
		ExecutionID: "exec-1",
		Status:      models.ExecutionStatusCompleted,
		OutputFiles: []string{"/out/a.pdf"},
	}, nil)

	s, notices := newTestSession(t, remote)

	_, err := s.Execute(t.Context())
	require.ErrorIs(t, err, execution.ErrNotSaved)

	_, err = s.ImportFiles([]client.File{{Name: "a.pdf", Reader: strings.NewReader("%PDF")}})
	require.NoError(t, err)

	_, err = s.Save(t.Context(), "run", "")
	require.NoError(t, err)

	result, err := s.Execute(t.Context())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, execution.StateSucceeded, s.Orchestrator().State())

	notices.waitFor(t, events.NoticeSuccess, "1 output file")
}

func TestSession_ExecuteTwiceResendsUploads(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		uploaded []string
	)

	remote := &mockRemote{}
	remote.On("Save", mock.Anything, mock.Anything).Return("wf-1", nil)
	remote.On("Execute", mock.Anything, "wf-1", mock.Anything).
		Run(func(args mock.Arguments) {
			for _, f := range args.Get(2).([]client.File) {
				data, err := io.ReadAll(f.Reader)
				if err != nil {
					panic(err)
				}

				mu.Lock()
				uploaded = append(uploaded, f.Name+":"+string(data))
				mu.Unlock()
			}
		}).
		Return(&models.ExecutionResult{Success: true, Status: models.ExecutionStatusCompleted}, nil)

	s, _ := newTestSession(t, remote)

	_, err := s.ImportFiles([]client.File{{Name: "a.pdf", Reader: strings.NewReader("%PDF-1.7 sixteen")}})
	require.NoError(t, err)

	_, err = s.Save(t.Context(), "twice", "")
	require.NoError(t, err)

	_, err = s.Execute(t.Context())
	require.NoError(t, err)

	_, err = s.Execute(t.Context())
	require.NoError(t, err)

	require.NoError(t, s.QueueFiles([]client.File{{Name: "b.pdf", Reader: strings.NewReader("%PDF-b")}}))

	_, err = s.Execute(t.Context())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, []string{"a.pdf:%PDF-1.7 sixteen", "a.pdf:%PDF-1.7 sixteen", "b.pdf:%PDF-b"}, uploaded)
}

func TestSession_ImportFilesReadError(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t, &mockRemote{})

	_, err := s.ImportFiles([]client.File{{Name: "a.pdf", Reader: iotest.ErrReader(errors.New("disk gone"))}})
	require.Error(t, err)
	assert.Equal(t, 0, s.Store().Len())
	assert.Empty(t, s.QueuedFiles())
}

func TestSession_ListSaved(t *testing.T) {
	t.Parallel()

	remote := &mockRemote{}
	remote.On("List", mock.Anything).Return([]models.WorkflowSummary{{ID: "wf-1", Name: "One"}}, nil)

	s, _ := newTestSession(t, remote)

	list, err := s.ListSaved(t.Context())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "One", list[0].Name)
}

func TestSession_BusyGuard(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t, &mockRemote{})

	done, err := s.begin(ActionSave)
	require.NoError(t, err)

	_, err = s.Save(t.Context(), "x", "")
	require.ErrorIs(t, err, ErrBusy)
	assert.True(t, s.Busy(ActionSave))
	assert.False(t, s.Busy(ActionExecute))

	done()
	assert.False(t, s.Busy(ActionSave))
}
