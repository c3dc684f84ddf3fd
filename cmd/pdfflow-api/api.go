package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/pdfflow/pkg/eventbus"
	"github.com/dukex/pdfflow/pkg/metrics"
	"github.com/dukex/pdfflow/pkg/operations"
	"github.com/dukex/pdfflow/pkg/persistence"
	"github.com/dukex/pdfflow/pkg/registry"
	"github.com/dukex/pdfflow/pkg/services"
	"github.com/dukex/pdfflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
)

// Config holds the service settings the handlers depend on.
type Config struct {
	OutputDir string
	UploadDir string
	Uploads   web.UploadPolicy
}

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	catalog     *registry.Catalog
	operations  *operations.Registry
	eventBus    eventbus.EventBus
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer
	tracer      trace.Tracer
	validate    *validator.Validate
	config      Config
	app         *fiber.App
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	catalog *registry.Catalog,
	operations *operations.Registry,
	eventBus eventbus.EventBus,
	reg *prometheus.Registry,
	tracer trace.Tracer,
	config Config,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		catalog:     catalog,
		operations:  operations,
		eventBus:    eventBus,
		metrics:     metrics.New(reg),
		gatherer:    reg,
		tracer:      tracer,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		config:      config,
	}
}

// Metrics exposes the collectors so background jobs report into the same registry.
func (a *API) Metrics() *metrics.Metrics {
	return a.metrics
}

func (a *API) App() *fiber.App {
	workflowService := services.NewWorkflow(a.persistence, a.eventBus, a.logger, services.WithParameterValidator(a.catalog))
	executor := services.NewExecutor(
		a.persistence,
		a.operations,
		a.catalog,
		a.config.UploadDir,
		a.logger,
		services.WithPublisher(a.eventBus),
		services.WithMetrics(a.metrics),
		services.WithTracer(a.tracer),
	)

	handlers := web.NewAPIHandlers(
		workflowService,
		executor,
		a.validate,
		a.catalog,
		a.config.Uploads,
		a.config.OutputDir,
		a.metrics,
	)

	app := fiber.New(fiber.Config{
		BodyLimit: a.config.Uploads.BodyLimit(),
	})
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("pdfflow API")
	})

	w := app.Group("/api/workflow")
	w.Post("/create", handlers.CreateWorkflow)
	w.Get("/list", handlers.ListWorkflows)
	w.Get("/node-types/list", handlers.ListNodeTypes)
	w.Get("/download", handlers.Download)
	w.Get("/execution/:id", handlers.GetExecution)
	w.Get("/:id", handlers.GetWorkflow)
	w.Put("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/execute", handlers.ExecuteWorkflow)

	app.Get("/health", handlers.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})))

	return app
}

// Start serves until ctx is cancelled, then shuts the server down.
func (a *API) Start(ctx context.Context, port int) error {
	a.app = a.App()

	errCh := make(chan error, 1)

	go func() {
		errCh <- a.app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	a.logger.InfoContext(ctx, "pdfflow API listening", "port", port)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return a.app.Shutdown()
	}
}
