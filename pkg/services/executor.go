package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dukex/pdfflow/pkg/eventbus"
	"github.com/dukex/pdfflow/pkg/events"
	"github.com/dukex/pdfflow/pkg/metrics"
	"github.com/dukex/pdfflow/pkg/models"
	"github.com/dukex/pdfflow/pkg/operations"
	"github.com/dukex/pdfflow/pkg/otelhelper"
	"github.com/dukex/pdfflow/pkg/persistence"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// UploadSubdir is the directory under the upload root receiving execution inputs.
const UploadSubdir = "workflow"

// ParameterDefaults supplies the declared parameter defaults of a node type.
type ParameterDefaults interface {
	Defaults(nodeType string) map[string]models.ParamValue
}

// Executor runs stored workflows against uploaded files.
type Executor struct {
	persistence persistence.Persistence
	operations  *operations.Registry
	defaults    ParameterDefaults
	uploadDir   string
	publisher   eventbus.EventPublisher
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	logger      *slog.Logger
	now         func() time.Time
}

type ExecutorOption func(*Executor)

func WithPublisher(publisher eventbus.EventPublisher) ExecutorOption {
	return func(e *Executor) { e.publisher = publisher }
}

func WithMetrics(m *metrics.Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

func WithTracer(tracer trace.Tracer) ExecutorOption {
	return func(e *Executor) { e.tracer = tracer }
}

func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

func NewExecutor(
	persistence persistence.Persistence,
	ops *operations.Registry,
	defaults ParameterDefaults,
	uploadDir string,
	logger *slog.Logger,
	opts ...ExecutorOption,
) *Executor {
	e := &Executor{
		persistence: persistence,
		operations:  ops,
		defaults:    defaults,
		uploadDir:   uploadDir,
		tracer:      otelhelper.NoopTracer(),
		logger:      logger.With("module", "executor"),
		now:         func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// StoreUpload writes an uploaded file under a generated name, keeping its extension.
func (e *Executor) StoreUpload(filename string, content io.Reader) (string, error) {
	dir := filepath.Join(e.uploadDir, UploadSubdir)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	path := filepath.Join(dir, uuid.New().String()+strings.ToLower(filepath.Ext(filename)))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}

	if _, err := io.Copy(f, content); err != nil {
		_ = f.Close()
		_ = os.Remove(path)

		return "", fmt.Errorf("failed to write upload file: %w", err)
	}

	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close upload file: %w", err)
	}

	return path, nil
}

// FetchExecution returns a stored execution record.
func (e *Executor) FetchExecution(ctx context.Context, id string) (*models.Execution, error) {
	return e.persistence.ExecutionRepository().GetByID(ctx, id)
}

// Execute runs the workflow over inputFiles. A returned error means the run
// could not start; node failures are reported on the execution itself.
func (e *Executor) Execute(ctx context.Context, workflowID string, inputFiles []string) (*models.Execution, error) {
	workflow, err := e.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.execute",
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.WorkflowNameKey, workflow.Name),
		attribute.Int(otelhelper.FileCountKey, len(inputFiles)),
	)
	defer span.End()

	started := e.now()

	if inputFiles == nil {
		inputFiles = []string{}
	}

	execution := &models.Execution{
		ID:          uuid.New().String(),
		WorkflowID:  workflow.ID,
		Status:      models.ExecutionStatusRunning,
		NodeResults: map[string]models.NodeResult{},
		InputFiles:  inputFiles,
		OutputFiles: []string{},
		StartedAt:   &started,
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, execution.ID))

	logger := e.logger.With("workflow_id", workflow.ID, "execution_id", execution.ID)
	logger.InfoContext(ctx, "Starting workflow execution", "input_files", len(inputFiles))

	e.publish(ctx, workflow.ID, &events.WorkflowExecutionStarted{
		BaseEvent:   events.NewBaseEvent(events.WorkflowExecutionStartedEvent, workflow.ID),
		ExecutionID: execution.ID,
		InputFiles:  inputFiles,
	})

	failedNode := e.run(ctx, logger, workflow, execution)

	completed := e.now()
	execution.CompletedAt = &completed
	elapsed := completed.Sub(started)

	if err := e.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
		logger.ErrorContext(ctx, "Failed to persist execution", "error", err)
	}

	e.metrics.ObserveExecution(string(execution.Status), elapsed)

	if execution.Status == models.ExecutionStatusFailed {
		otelhelper.SetError(span, errors.New(execution.Error), attribute.String(otelhelper.NodeIDKey, failedNode))
		logger.WarnContext(ctx, "Workflow execution failed", "error", execution.Error, "duration", elapsed)

		e.publish(ctx, workflow.ID, &events.WorkflowExecutionFailed{
			BaseEvent:    events.NewBaseEvent(events.WorkflowExecutionFailedEvent, workflow.ID),
			ExecutionID:  execution.ID,
			FailedNodeID: failedNode,
			Error:        execution.Error,
			Duration:     elapsed,
		})

		return execution, nil
	}

	logger.InfoContext(ctx, "Workflow execution completed", "output_files", len(execution.OutputFiles), "duration", elapsed)

	e.publish(ctx, workflow.ID, &events.WorkflowExecutionCompleted{
		BaseEvent:   events.NewBaseEvent(events.WorkflowExecutionCompletedEvent, workflow.ID),
		ExecutionID: execution.ID,
		OutputFiles: execution.OutputFiles,
		Duration:    elapsed,
	})

	return execution, nil
}

// run executes the nodes in dependency order and returns the id of the failed node, if any.
func (e *Executor) run(ctx context.Context, logger *slog.Logger, workflow *models.Workflow, execution *models.Execution) string {
	order, err := executionOrder(workflow)
	if err != nil {
		execution.Status = models.ExecutionStatusFailed
		execution.Error = err.Error()

		return ""
	}

	outputs := make(map[string]map[string]any, len(order))

	for _, nodeID := range order {
		node, _ := workflow.Node(nodeID)

		result := e.runNode(ctx, logger, workflow, execution, node, nodeInputs(workflow, nodeID, execution.InputFiles, outputs))
		execution.NodeResults[nodeID] = result

		if result.Status == models.ExecutionStatusFailed {
			label := node.Config.Label
			if label == "" {
				label = node.ID
			}

			execution.Status = models.ExecutionStatusFailed
			execution.Error = fmt.Sprintf("node %s failed: %s", label, result.Error)

			return node.ID
		}

		outputs[nodeID] = result.Output
	}

	execution.Status = models.ExecutionStatusCompleted
	execution.OutputFiles = outputFiles(workflow, order, outputs)

	return ""
}

func (e *Executor) runNode(
	ctx context.Context,
	logger *slog.Logger,
	workflow *models.Workflow,
	execution *models.Execution,
	node models.WorkflowNode,
	files []string,
) models.NodeResult {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.node",
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, node.Type),
	)
	defer span.End()

	started := e.now()
	result := models.NodeResult{NodeID: node.ID, Status: models.ExecutionStatusRunning, StartedAt: &started}

	output, err := e.operations.Execute(ctx, node.Type, operations.Input{
		ExecutionID: execution.ID,
		WorkflowID:  workflow.ID,
		NodeID:      node.ID,
		Files:       files,
		Uploads:     execution.InputFiles,
		Params:      e.params(node),
	})

	completed := e.now()
	result.CompletedAt = &completed
	elapsed := completed.Sub(started)

	if err != nil {
		result.Status = models.ExecutionStatusFailed
		result.Error = err.Error()

		otelhelper.SetError(span, err)
		logger.WarnContext(ctx, "Node execution failed", "node_id", node.ID, "node_type", node.Type, "error", err)
		e.metrics.ObserveNode(node.Type, string(result.Status))

		e.publish(ctx, workflow.ID, &events.NodeExecutionFailed{
			BaseEvent:   events.NewBaseEvent(events.NodeExecutionFailedEvent, workflow.ID),
			ExecutionID: execution.ID,
			NodeID:      node.ID,
			NodeType:    node.Type,
			Error:       result.Error,
			Duration:    elapsed,
		})

		return result
	}

	result.Status = models.ExecutionStatusCompleted
	result.Output = output

	logger.DebugContext(ctx, "Node execution finished", "node_id", node.ID, "node_type", node.Type)
	e.metrics.ObserveNode(node.Type, string(result.Status))

	e.publish(ctx, workflow.ID, &events.NodeExecutionFinished{
		BaseEvent:   events.NewBaseEvent(events.NodeExecutionFinishedEvent, workflow.ID),
		ExecutionID: execution.ID,
		NodeID:      node.ID,
		NodeType:    node.Type,
		Output:      output,
		Duration:    elapsed,
	})

	return result
}

// params overlays the stored node parameters on the catalog defaults.
func (e *Executor) params(node models.WorkflowNode) map[string]models.ParamValue {
	params := map[string]models.ParamValue{}

	if e.defaults != nil {
		for k, v := range e.defaults.Defaults(node.Type) {
			params[k] = v
		}
	}

	for k, v := range node.Config.Params {
		if !v.IsZero() && v.Kind() != models.ValueRaw {
			params[k] = v
		}
	}

	return params
}

func (e *Executor) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, key, event); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish execution event", "event_type", event.GetType(), "error", err)
	}
}

// executionOrder sorts the nodes topologically (Kahn), ties broken by node order.
func executionOrder(workflow *models.Workflow) ([]string, error) {
	inDegree := make(map[string]int, len(workflow.Nodes))
	next := make(map[string][]string, len(workflow.Nodes))

	for _, n := range workflow.Nodes {
		inDegree[n.ID] = 0
	}

	for _, c := range workflow.Connections {
		if _, ok := inDegree[c.SourceNode]; !ok {
			continue
		}

		if _, ok := inDegree[c.TargetNode]; !ok {
			continue
		}

		next[c.SourceNode] = append(next[c.SourceNode], c.TargetNode)
		inDegree[c.TargetNode]++
	}

	queue := make([]string, 0, len(workflow.Nodes))

	for _, n := range workflow.Nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	order := make([]string, 0, len(workflow.Nodes))

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		for _, target := range next[id] {
			inDegree[target]--
			if inDegree[target] == 0 {
				queue = append(queue, target)
			}
		}
	}

	if len(order) != len(workflow.Nodes) {
		return nil, ErrCycle
	}

	return order, nil
}

// nodeInputs collects the files handed to nodeID. Without upstream output the
// node sees the execution uploads; several upstream nodes are concatenated in
// connection order.
func nodeInputs(workflow *models.Workflow, nodeID string, uploads []string, outputs map[string]map[string]any) []string {
	var (
		files    []string
		upstream bool
	)

	for _, c := range workflow.Connections {
		if c.TargetNode != nodeID {
			continue
		}

		out, ok := outputs[c.SourceNode]
		if !ok {
			continue
		}

		if fs, ok := fileList(out); ok {
			upstream = true
			files = append(files, fs...)
		}
	}

	if !upstream {
		return uploads
	}

	return files
}

// fileList reads the "files" entry of an output, or wraps a single "file".
func fileList(output map[string]any) ([]string, bool) {
	if v, ok := output[operations.FilesKey]; ok {
		return toStrings(v), true
	}

	if v, ok := output["file"].(string); ok {
		return []string{v}, true
	}

	return nil, false
}

func toStrings(v any) []string {
	switch vs := v.(type) {
	case []string:
		return vs
	case []any:
		out := make([]string, 0, len(vs))

		for _, item := range vs {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}

		return out
	default:
		return []string{}
	}
}

// outputFiles reports the files written by output_save nodes or, when there
// are none, the files of the terminal nodes.
func outputFiles(workflow *models.Workflow, order []string, outputs map[string]map[string]any) []string {
	files := []string{}
	saved := false

	for _, id := range order {
		if v, ok := outputs[id]["saved_files"]; ok {
			saved = true
			files = append(files, toStrings(v)...)
		}
	}

	if saved {
		return files
	}

	hasOutgoing := map[string]bool{}
	for _, c := range workflow.Connections {
		hasOutgoing[c.SourceNode] = true
	}

	for _, id := range order {
		if hasOutgoing[id] {
			continue
		}

		if fs, ok := fileList(outputs[id]); ok {
			for _, f := range fs {
				if !slices.Contains(files, f) {
					files = append(files, f)
				}
			}
		}
	}

	return files
}
