// Package client talks to the workflow service on behalf of the editor.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/dukex/pdfflow/pkg/models"
	"github.com/dukex/pdfflow/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const apiPrefix = "/api/workflow"

const (
	// DefaultTimeout bounds save, open, list and download requests.
	DefaultTimeout = 30 * time.Second
	// DefaultExecuteTimeout bounds one execution request.
	DefaultExecuteTimeout = 10 * time.Minute
)

// File is one upload handed to an execution.
type File struct {
	Name   string
	Reader io.Reader
}

// SaveRequest describes a create (empty ID) or an update.
type SaveRequest struct {
	ID          string
	Name        string
	Description string
	Graph       Graph
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout bounds every request except executions.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithExecuteTimeout bounds execution requests, which run the whole workflow server side.
func WithExecuteTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.executeTimeout = d
	}
}

// WithTracer records a span per request.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// Client is the workflow service client.
type Client struct {
	baseURL        string
	http           *http.Client
	timeout        time.Duration
	executeTimeout time.Duration
	tracer         trace.Tracer
}

// New creates a client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &http.Client{},
		timeout:        DefaultTimeout,
		executeTimeout: DefaultExecuteTimeout,
		tracer:         otelhelper.NoopTracer(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Save creates the workflow when req.ID is empty and updates it otherwise.
// It returns the id the service stored the workflow under.
func (c *Client) Save(ctx context.Context, req SaveRequest) (string, error) {
	nodes, connections := EncodeGraph(req.Graph)

	body := models.Workflow{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Nodes:       nodes,
		Connections: connections,
	}

	method, route, op := http.MethodPost, apiPrefix+"/create", "create workflow"
	if req.ID != "" {
		method, route, op = http.MethodPut, apiPrefix+"/"+url.PathEscape(req.ID), "update workflow"
	}

	var resp models.SaveWorkflowResponse
	if err := c.doJSON(ctx, op, method, route, body, &resp); err != nil {
		return "", err
	}

	if !resp.Success {
		return "", &ServiceError{Op: op, StatusCode: http.StatusOK, Detail: resp.Detail}
	}

	if resp.WorkflowID == "" {
		return req.ID, nil
	}

	return resp.WorkflowID, nil
}

// List returns the saved workflow summaries. An empty list is not an error.
func (c *Client) List(ctx context.Context) ([]models.WorkflowSummary, error) {
	var resp models.ListWorkflowsResponse
	if err := c.doJSON(ctx, "list workflows", http.MethodGet, apiPrefix+"/list", nil, &resp); err != nil {
		return nil, err
	}

	if resp.Workflows == nil {
		return []models.WorkflowSummary{}, nil
	}

	return resp.Workflows, nil
}

// Fetch loads one saved workflow.
func (c *Client) Fetch(ctx context.Context, id string) (*models.Workflow, error) {
	var wf models.Workflow
	if err := c.doJSON(ctx, "fetch workflow", http.MethodGet, apiPrefix+"/"+url.PathEscape(id), nil, &wf); err != nil {
		return nil, err
	}

	return &wf, nil
}

// Delete removes a saved workflow.
func (c *Client) Delete(ctx context.Context, id string) error {
	var resp models.SaveWorkflowResponse

	return c.doJSON(ctx, "delete workflow", http.MethodDelete, apiPrefix+"/"+url.PathEscape(id), nil, &resp)
}

// NodeTypes returns the palette served by the workflow service.
func (c *Client) NodeTypes(ctx context.Context) (*models.NodeTypesResponse, error) {
	var resp models.NodeTypesResponse
	if err := c.doJSON(ctx, "list node types", http.MethodGet, apiPrefix+"/node-types/list", nil, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// Execution returns a stored execution record.
func (c *Client) Execution(ctx context.Context, executionID string) (*models.Execution, error) {
	var exec models.Execution
	if err := c.doJSON(ctx, "fetch execution", http.MethodGet, apiPrefix+"/execution/"+url.PathEscape(executionID), nil, &exec); err != nil {
		return nil, err
	}

	return &exec, nil
}

// Execute uploads files against the saved workflow id and waits for the run to finish.
// A run that failed server side is returned as a result with Success false, not as an error.
func (c *Client) Execute(ctx context.Context, workflowID string, files []File) (*models.ExecutionResult, error) {
	const op = "execute workflow"

	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "client."+strings.ReplaceAll(op, " ", "_"),
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
		attribute.Int(otelhelper.FileCountKey, len(files)),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.executeTimeout)
	defer cancel()

	var buf bytes.Buffer

	writer := multipart.NewWriter(&buf)

	for _, f := range files {
		part, err := writer.CreateFormFile("files", path.Base(f.Name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if _, err := io.Copy(part, f.Reader); err != nil {
			return nil, fmt.Errorf("%s: reading %s: %w", op, f.Name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiPrefix+"/"+url.PathEscape(workflowID)+"/execute", &buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())

	var result models.ExecutionResult
	if err := c.send(req, op, &result); err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if result.OutputFiles == nil {
		result.OutputFiles = []string{}
	}

	return &result, nil
}

// Download streams one output file into w and returns its file name.
func (c *Client) Download(ctx context.Context, filePath string, w io.Writer) (string, error) {
	const op = "download output"

	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "client.download_output")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiPrefix+"/download?filepath="+url.QueryEscape(filePath), nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		otelhelper.SetError(span, err)

		return "", wrapTransport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", serviceError(op, resp)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", wrapTransport(op, err)
	}

	name := path.Base(filePath)
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}

	return name, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, route string, body, out any) error {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "client."+strings.ReplaceAll(op, " ", "_"),
		attribute.String(otelhelper.OperationKey, op),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to marshal request: %w", op, err)
		}

		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+route, reader)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	req.Header.Set("Accept", "application/json")

	if err := c.send(req, op, out); err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	return nil
}

func (c *Client) send(req *http.Request, op string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return wrapTransport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return serviceError(op, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}

		return wrapTransport(op, fmt.Errorf("failed to decode response: %w", err))
	}

	return nil
}

// serviceError reads the detail of an RFC 7807 problem or a {"detail": ...} body.
func serviceError(op string, resp *http.Response) error {
	var payload struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
		Title  string `json:"title"`
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, &payload)

	detail := payload.Detail
	if detail == "" {
		detail = payload.Error
	}

	if detail == "" {
		detail = payload.Title
	}

	return &ServiceError{Op: op, StatusCode: resp.StatusCode, Detail: detail}
}
