// Package main provides the pdfflow workflow service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/pdfflow/pkg/cleanup"
	"github.com/dukex/pdfflow/pkg/cmd"
	"github.com/dukex/pdfflow/pkg/log"
	"github.com/dukex/pdfflow/pkg/otelhelper"
	"github.com/dukex/pdfflow/pkg/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPort = 8000
	serviceName = "pdfflow-api"
)

func main() {
	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Store and execute PDF workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Persistence URL (file://dir, postgres://..., redis://...)",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "output-dir",
				Usage:   "Directory receiving workflow outputs",
				Value:   "./outputs",
				Sources: cli.EnvVars("OUTPUT_DIR"),
			},
			&cli.StringFlag{
				Name:    "upload-dir",
				Usage:   "Directory receiving uploaded input files",
				Value:   "./uploads",
				Sources: cli.EnvVars("UPLOAD_DIR"),
			},
			&cli.Int64Flag{
				Name:    "max-file-size",
				Usage:   "Maximum size of one uploaded file in bytes",
				Value:   web.DefaultMaxFileSize,
				Sources: cli.EnvVars("MAX_FILE_SIZE"),
			},
			&cli.DurationFlag{
				Name:    "file-retention",
				Usage:   "How long uploads, outputs and execution records are kept",
				Value:   cleanup.DefaultRetention,
				Sources: cli.EnvVars("FILE_RETENTION"),
			},
			&cli.StringFlag{
				Name:    "cleanup-schedule",
				Usage:   "Cron schedule of the retention cleanup",
				Value:   cleanup.DefaultSchedule,
				Sources: cli.EnvVars("CLEANUP_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule("api")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.InfoContext(ctx, "Initializing pdfflow API")

	tracer, shutdownTracer := newTracer(ctx, command.Bool("tracing"))
	defer shutdownTracer()

	outputDir := command.String("output-dir")
	uploadDir := command.String("upload-dir")

	if err := cmd.CheckDataRoot(command.String("database-url"), uploadDir, outputDir); err != nil {
		return err
	}

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(context.Background()); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	api := NewAPI(
		logger,
		persistence,
		cmd.NewCatalog(logger),
		cmd.NewOperations(outputDir),
		eventBus,
		reg,
		tracer,
		Config{
			OutputDir: outputDir,
			UploadDir: uploadDir,
			Uploads: web.UploadPolicy{
				MaxFileSize:       command.Int64("max-file-size"),
				AllowedExtensions: web.DefaultAllowedExtensions,
			},
		},
	)

	janitor := cleanup.NewJanitor(logger, []string{uploadDir, outputDir},
		cleanup.WithRetention(command.Duration("file-retention")),
		cleanup.WithSchedule(command.String("cleanup-schedule")),
		cleanup.WithExecutions(persistence.ExecutionRepository()),
		cleanup.WithMetrics(api.Metrics()),
	)

	if err := janitor.Start(ctx); err != nil {
		return err
	}
	defer janitor.Stop()

	return api.Start(ctx, command.Int("port"))
}

// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func newTracer(ctx context.Context, enabled bool) (trace.Tracer, func()) {
	if !enabled {
		return otelhelper.NoopTracer(), func() {}
	}

	tracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
	if err != nil {
		log.WithModule("api").ErrorContext(ctx, "Failed to initialize tracer, tracing disabled", "error", err)

		return otelhelper.NoopTracer(), func() {}
	}

	return tracer, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = shutdown(shutdownCtx)
	}
}
