// Package web provides HTTP handlers and REST API endpoints for the workflow service.
package web

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dukex/pdfflow/pkg/metrics"
	"github.com/dukex/pdfflow/pkg/models"
	"github.com/dukex/pdfflow/pkg/registry"
	"github.com/dukex/pdfflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	workflowService *services.Workflow
	executor        *services.Executor
	validator       *validator.Validate
	catalog         *registry.Catalog
	uploads         UploadPolicy
	outputDir       string
	metrics         *metrics.Metrics
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	executor *services.Executor,
	validator *validator.Validate,
	catalog *registry.Catalog,
	uploads UploadPolicy,
	outputDir string,
	metrics *metrics.Metrics,
) *APIHandlers {
	return &APIHandlers{
		workflowService: workflowService,
		executor:        executor,
		validator:       validator,
		catalog:         catalog,
		uploads:         uploads,
		outputDir:       outputDir,
		metrics:         metrics,
	}
}

func (h *APIHandlers) ListWorkflows(c fiber.Ctx) error {
	summaries, err := h.workflowService.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(models.ListWorkflowsResponse{
		Workflows: summaries,
		Count:     len(summaries),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var workflow models.Workflow
	if err := c.Bind().JSON(&workflow); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(workflow); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workflowService.Create(c.Context(), &workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(models.SaveWorkflowResponse{
		Success:    true,
		WorkflowID: created.ID,
		Message:    "Workflow created",
	})
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var workflow models.Workflow
	if err := c.Bind().JSON(&workflow); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(workflow); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.workflowService.Update(c.Context(), id, &workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(models.SaveWorkflowResponse{
		Success:    true,
		WorkflowID: updated.ID,
		Message:    "Workflow updated",
	})
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.workflowService.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(DeleteWorkflowResponse{Success: true, Message: "Workflow deleted"})
}

// ListNodeTypes serves the palette, flat and grouped by category.
func (h *APIHandlers) ListNodeTypes(c fiber.Ctx) error {
	definitions := h.catalog.Definitions()
	categories := make(map[models.Category][]models.NodeTypeDefinition)

	for _, group := range h.catalog.DefinitionsByCategory() {
		categories[group.Category] = group.Definitions
	}

	schemas := make(map[string]*models.JSONSchema, len(definitions))

	for _, def := range definitions {
		if schema, ok := h.catalog.ParameterSchema(def.Type); ok {
			schemas[def.Type] = schema
		}
	}

	return c.JSON(models.NodeTypesResponse{
		NodeTypes:  definitions,
		Categories: categories,
		Schemas:    schemas,
		Total:      len(definitions),
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.executor.FetchExecution(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

// ExecuteWorkflow stores the multipart "files" and runs the workflow over them.
// Every file is checked before any is stored.
func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	form, err := c.MultipartForm()
	if err != nil {
		return badRequest(c, "Invalid multipart form")
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		return badRequest(c, services.ErrNoInputFiles.Error())
	}

	if _, err := h.workflowService.FetchByID(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	for _, header := range headers {
		if header.Size > h.uploads.MaxFileSize {
			return badRequest(c, fmt.Sprintf("file %s exceeds the %dMB size limit", header.Filename, h.uploads.MaxFileSize>>20))
		}

		if ext := filepath.Ext(header.Filename); !h.uploads.allows(ext) {
			return badRequest(c, "unsupported file type: "+ext)
		}
	}

	inputFiles := make([]string, 0, len(headers))

	for _, header := range headers {
		path, err := h.storeUpload(header)
		if err != nil {
			return internalError(c, err)
		}

		inputFiles = append(inputFiles, path)
	}

	h.metrics.AddUploads(len(inputFiles))

	execution, err := h.executor.Execute(c.Context(), id, inputFiles)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution.Result())
}

func (h *APIHandlers) storeUpload(header *multipart.FileHeader) (string, error) {
	f, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload %s: %w", header.Filename, err)
	}
	defer f.Close()

	return h.executor.StoreUpload(header.Filename, f)
}

// Download streams an output file. Paths outside the output directory are refused.
func (h *APIHandlers) Download(c fiber.Ctx) error {
	requested := c.Query("filepath")
	if requested == "" {
		return badRequest(c, "filepath is required")
	}

	root, err := resolvePath(h.outputDir)
	if err != nil {
		return internalError(c, err)
	}

	path, err := resolvePath(requested)
	if err != nil {
		return badRequest(c, "Invalid filepath")
	}

	if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return forbidden(c, "Access to this path is not allowed")
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return notFound(c, "File not found")
	}

	f, err := os.Open(path)
	if err != nil {
		return internalError(c, err)
	}

	c.Attachment(filepath.Base(path))
	c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)

	return c.SendStream(f, int(info.Size()))
}

// resolvePath returns the absolute form of p with symlinks evaluated when p exists.
func resolvePath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}

	return abs, nil
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	catalogOk := len(h.catalog.Types()) > 0
	catalogCheck := fmt.Sprintf("%d node types loaded", len(h.catalog.Types()))

	status := "unhealthy"
	message := "pdfflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if catalogOk && repOk {
		status = "healthy"
		message = "pdfflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"catalog":    catalogCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
