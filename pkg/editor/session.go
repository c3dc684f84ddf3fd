// Package editor ties the graph store, layout and remote calls together the
// way the workflow editor page drives them.
package editor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/pdfflow/pkg/channels/gochannel"
	"github.com/dukex/pdfflow/pkg/client"
	"github.com/dukex/pdfflow/pkg/eventbus"
	"github.com/dukex/pdfflow/pkg/events"
	"github.com/dukex/pdfflow/pkg/execution"
	"github.com/dukex/pdfflow/pkg/graph"
	"github.com/dukex/pdfflow/pkg/layout"
	"github.com/dukex/pdfflow/pkg/models"
)

var (
	ErrBusy           = errors.New("action already in progress")
	ErrUnknownParam   = errors.New("unknown parameter")
	ErrUnknownArrange = errors.New("unknown arrange mode")
)

// Action names a network action guarded by its own busy flag.
type Action string

const (
	ActionSave     Action = "save"
	ActionOpen     Action = "open"
	ActionList     Action = "list"
	ActionExecute  Action = "execute"
	ActionDownload Action = "download"
)

// ArrangeMode selects a layout operation.
type ArrangeMode string

const (
	ArrangeAuto       ArrangeMode = "auto"
	ArrangeHorizontal ArrangeMode = "horizontal"
	ArrangeVertical   ArrangeMode = "vertical"
)

// Catalog is the registry surface the editor uses.
type Catalog interface {
	graph.Catalog
	client.Catalog
	CategoryOf(nodeType string) models.Category
	ValidateParameters(nodeType string, values map[string]models.ParamValue) error
}

// Remote is the workflow service. *client.Client satisfies it.
type Remote interface {
	execution.Executor
	Save(ctx context.Context, req client.SaveRequest) (string, error)
	List(ctx context.Context) ([]models.WorkflowSummary, error)
	Fetch(ctx context.Context, id string) (*models.Workflow, error)
}

// Option configures a Session.
type Option func(*Session)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithEventBus publishes notices on bus instead of a private in-memory bus.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(s *Session) {
		s.bus = bus
	}
}

func WithIDGenerator(ids graph.IDGenerator) Option {
	return func(s *Session) {
		s.storeOpts = append(s.storeOpts, graph.WithIDGenerator(ids))
	}
}

func WithLayout(cfg layout.Config) Option {
	return func(s *Session) {
		s.layout = cfg
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// OnNotice registers a callback for every notice the session publishes.
func OnNotice(fn func(events.EditorNotice)) Option {
	return func(s *Session) {
		s.noticeHandlers = append(s.noticeHandlers, fn)
	}
}

// Session is one open editor. The graph is owned by the session and must be
// mutated from a single goroutine; network actions may run concurrently and
// are each guarded by a busy flag.
type Session struct {
	catalog      Catalog
	remote       Remote
	store        *graph.Store
	orchestrator *execution.Orchestrator
	notifier     *Notifier
	bus          eventbus.EventBus
	ownsBus      bool
	cancel       context.CancelFunc
	logger       *slog.Logger
	layout       layout.Config
	now          func() time.Time

	storeOpts      []graph.Option
	noticeHandlers []func(events.EditorNotice)

	mu          sync.Mutex
	busy        map[Action]bool
	workflowID  string
	name        string
	description string
	files       []queuedFile
}

// queuedFile is an upload held in memory so every execution resends the same bytes.
type queuedFile struct {
	name string
	data []byte
}

func bufferFiles(files []client.File) ([]queuedFile, error) {
	out := make([]queuedFile, 0, len(files))

	for _, f := range files {
		data, err := io.ReadAll(f.Reader)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Name, err)
		}

		out = append(out, queuedFile{name: f.Name, data: data})
	}

	return out, nil
}

// New opens an empty editor session.
func New(catalog Catalog, remote Remote, opts ...Option) (*Session, error) {
	s := &Session{
		catalog: catalog,
		remote:  remote,
		logger:  slog.Default(),
		layout:  layout.DefaultConfig(),
		now:     time.Now,
		busy:    make(map[Action]bool),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.With("module", "editor")

	if s.bus == nil {
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(s.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create notice channel: %w", err)
		}

		s.bus = eventbus.NewWatermillEventBus(pub, sub)
		s.ownsBus = true
	}

	if len(s.noticeHandlers) > 0 {
		if err := s.subscribeNotices(); err != nil {
			return nil, err
		}
	}

	s.store = graph.NewStore(catalog, s.storeOpts...)
	s.orchestrator = execution.New(remote, s.logger)
	s.notifier = NewNotifier(s.bus, s.logger, s.now)

	return s, nil
}

func (s *Session) subscribeNotices() error {
	handlers := s.noticeHandlers

	err := s.bus.Handle(events.EditorNoticeEvent, func(_ context.Context, event any) error {
		notice, ok := event.(*events.EditorNotice)
		if !ok {
			return nil
		}

		for _, fn := range handlers {
			fn(*notice)
		}

		return nil
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if err := s.bus.Subscribe(ctx); err != nil {
		cancel()

		return fmt.Errorf("failed to subscribe to notices: %w", err)
	}

	return nil
}

// Close releases the notice bus when the session created it.
func (s *Session) Close() error {
	if s.cancel != nil {
		s.cancel()
	}

	if s.ownsBus {
		return s.bus.Close()
	}

	return nil
}

// Store exposes the graph for rendering.
func (s *Session) Store() *graph.Store {
	return s.store
}

// Orchestrator exposes the execution state.
func (s *Session) Orchestrator() *execution.Orchestrator {
	return s.orchestrator
}

// WorkflowID is the saved id of the open workflow, or "" when it was never saved.
func (s *Session) WorkflowID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.workflowID
}

func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.name
}

// QueuedFiles are the uploads the next execution will send.
func (s *Session) QueuedFiles() []client.File {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]client.File, 0, len(s.files))
	for _, f := range s.files {
		out = append(out, client.File{Name: f.name, Reader: bytes.NewReader(f.data)})
	}

	return out
}

// Busy reports whether action is in flight.
func (s *Session) Busy(action Action) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.busy[action]
}

func (s *Session) begin(action Action) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy[action] {
		return nil, fmt.Errorf("%w: %s", ErrBusy, action)
	}

	s.busy[action] = true

	return func() {
		s.mu.Lock()
		s.busy[action] = false
		s.mu.Unlock()
	}, nil
}

// AddNode drops a node of nodeType on the canvas.
func (s *Session) AddNode(nodeType string, pos models.Position) (*models.GraphNode, error) {
	return s.store.AddNode(nodeType, pos)
}

// RemoveNode deletes a node and its edges.
func (s *Session) RemoveNode(id string) error {
	return s.store.RemoveNode(id)
}

// Connect draws an edge; a refused edge is announced with a short-lived notice.
func (s *Session) Connect(ctx context.Context, sourceID, targetID, sourceHandle, targetHandle string) (*models.GraphEdge, error) {
	edge, err := s.store.TryConnect(sourceID, targetID, sourceHandle, targetHandle)
	if err != nil {
		var rejection *graph.ConnectionRejection
		if errors.As(err, &rejection) {
			s.notifier.Notify(ctx, s.WorkflowID(), events.NoticeError, rejection.Reason, RejectionNoticeTTL)
		}

		return nil, err
	}

	return edge, nil
}

// CommitParameter coerces a raw form value into the parameter's kind and stores it.
// Out-of-kind values are rejected and numbers are clamped into range.
func (s *Session) CommitParameter(nodeID, paramID string, raw any) (models.ParamValue, error) {
	node, ok := s.store.Node(nodeID)
	if !ok {
		return models.ParamValue{}, fmt.Errorf("%w: %s", graph.ErrNodeNotFound, nodeID)
	}

	def, ok := s.catalog.Definition(node.Type)
	if !ok {
		return models.ParamValue{}, fmt.Errorf("%w: %s", graph.ErrUnknownNodeType, node.Type)
	}

	desc, ok := def.Parameter(paramID)
	if !ok {
		return models.ParamValue{}, fmt.Errorf("%w: %s.%s", ErrUnknownParam, node.Type, paramID)
	}

	value, err := desc.Coerce(raw)
	if err != nil {
		return models.ParamValue{}, err
	}

	if err := s.store.UpdateNodeParameter(nodeID, paramID, value); err != nil {
		return models.ParamValue{}, err
	}

	return value, nil
}

// Arrange applies a layout operation as one batch position update.
func (s *Session) Arrange(mode ArrangeMode) error {
	nodes := s.store.Nodes()

	var positions map[string]models.Position

	switch mode {
	case ArrangeAuto:
		isSource := func(nodeType string) bool {
			return s.catalog.CategoryOf(nodeType) == models.CategoryInput
		}
		positions = layout.AutoArrange(nodes, s.store.Edges(), isSource, s.layout).Positions
	case ArrangeHorizontal:
		positions = layout.AlignHorizontal(nodes)
	case ArrangeVertical:
		positions = layout.AlignVertical(nodes)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownArrange, mode)
	}

	s.store.ApplyPositions(positions)

	return nil
}

// NewWorkflow starts an empty workflow. A non-empty graph is only discarded
// when confirm returns true.
func (s *Session) NewWorkflow(confirm func() bool) bool {
	if s.store.Len() > 0 && (confirm == nil || !confirm()) {
		return false
	}

	s.store.Clear()
	s.orchestrator.Reset()

	s.mu.Lock()
	s.workflowID = ""
	s.name = ""
	s.description = ""
	s.files = nil
	s.mu.Unlock()

	return true
}

// ImportFiles adds one file input node per handed-off file, stacked vertically,
// and queues the files for the next execution.
func (s *Session) ImportFiles(files []client.File) ([]*models.GraphNode, error) {
	buffered, err := bufferFiles(files)
	if err != nil {
		return nil, err
	}

	nodes := make([]*models.GraphNode, 0, len(files))

	for i, f := range files {
		node, err := s.store.AddNode("input_file", models.Position{
			X: s.layout.BaseX,
			Y: s.layout.BaseY + float64(i)*s.layout.VerticalGap,
		})
		if err != nil {
			return nodes, err
		}

		label := filepath.Base(f.Name)
		if err := s.store.RenameNode(node.ID, label); err != nil {
			return nodes, err
		}

		node.Label = label
		nodes = append(nodes, node)
	}

	s.mu.Lock()
	s.files = append(s.files, buffered...)
	s.mu.Unlock()

	return nodes, nil
}

// QueueFiles sets the uploads for the next execution without touching the graph.
func (s *Session) QueueFiles(files []client.File) error {
	buffered, err := bufferFiles(files)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.files = buffered

	return nil
}

// Save creates or updates the remote workflow. Parameter problems are reported
// as a warning notice and do not block the save.
func (s *Session) Save(ctx context.Context, name, description string) (string, error) {
	done, err := s.begin(ActionSave)
	if err != nil {
		return "", err
	}
	defer done()

	if strings.TrimSpace(name) == "" {
		name = "Untitled workflow"
	}

	nodes := s.store.Nodes()

	var problems []string

	for _, n := range nodes {
		if err := s.catalog.ValidateParameters(n.Type, n.Parameters); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", n.Label, err))
		}
	}

	if len(problems) > 0 {
		s.notifier.Notify(ctx, s.WorkflowID(), events.NoticeWarning, strings.Join(problems, "\n"), 0)
	}

	id, err := s.remote.Save(ctx, client.SaveRequest{
		ID:          s.WorkflowID(),
		Name:        name,
		Description: description,
		Graph:       client.Graph{Nodes: nodes, Edges: s.store.Edges()},
	})
	if err != nil {
		s.notifier.Notify(ctx, s.WorkflowID(), events.NoticeError, "Save failed: "+err.Error(), 0)

		return "", err
	}

	s.mu.Lock()
	s.workflowID = id
	s.name = name
	s.description = description
	s.mu.Unlock()

	s.notifier.Notify(ctx, id, events.NoticeSuccess, fmt.Sprintf("Workflow %q saved", name), RejectionNoticeTTL)
	s.logger.InfoContext(ctx, "Workflow saved", "workflow_id", id, "nodes", len(nodes))

	return id, nil
}

// ListSaved returns the saved workflow picker entries.
func (s *Session) ListSaved(ctx context.Context) ([]models.WorkflowSummary, error) {
	done, err := s.begin(ActionList)
	if err != nil {
		return nil, err
	}
	defer done()

	return s.remote.List(ctx)
}

// Open replaces the graph with a saved workflow. On failure the current graph is kept.
func (s *Session) Open(ctx context.Context, id string) ([]client.LoadWarning, error) {
	done, err := s.begin(ActionOpen)
	if err != nil {
		return nil, err
	}
	defer done()

	saved, err := s.remote.Fetch(ctx, id)
	if err != nil {
		s.notifier.Notify(ctx, id, events.NoticeError, "Open failed: "+err.Error(), 0)

		return nil, err
	}

	g, warnings := client.DecodeGraph(saved, s.catalog)

	s.store.Replace(g.Nodes, g.Edges)
	s.orchestrator.Reset()

	s.mu.Lock()
	s.workflowID = saved.ID
	s.name = saved.Name
	s.description = saved.Description
	s.mu.Unlock()

	for _, w := range warnings {
		s.logger.WarnContext(ctx, "Tolerated malformed workflow data", "workflow_id", saved.ID, "warning", w.String())
	}

	if len(warnings) > 0 {
		s.notifier.Notify(ctx, saved.ID, events.NoticeWarning, fmt.Sprintf("Loaded with %d warning(s)", len(warnings)), 0)
	}

	return warnings, nil
}

// Execute runs the saved workflow with the queued files.
func (s *Session) Execute(ctx context.Context) (*models.ExecutionResult, error) {
	done, err := s.begin(ActionExecute)
	if err != nil {
		return nil, err
	}
	defer done()

	id := s.WorkflowID()

	result, err := s.orchestrator.Execute(ctx, id, s.QueuedFiles())
	if err != nil {
		s.notifier.Notify(ctx, id, events.NoticeError, "Execution failed: "+err.Error(), 0)

		return nil, err
	}

	if result.Success {
		s.notifier.Notify(ctx, id, events.NoticeSuccess, fmt.Sprintf("Execution finished with %d output file(s)", len(result.OutputFiles)), 0)
	} else {
		s.notifier.Notify(ctx, id, events.NoticeError, "Execution failed: "+result.Error, 0)
	}

	return result, nil
}

// Download saves one output file into dir.
func (s *Session) Download(ctx context.Context, filePath, dir string) (string, error) {
	done, err := s.begin(ActionDownload)
	if err != nil {
		return "", err
	}
	defer done()

	return s.orchestrator.DownloadOutput(ctx, filePath, dir)
}
