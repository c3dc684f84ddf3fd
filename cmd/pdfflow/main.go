// Package main provides the pdfflow command-line workflow editor.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dukex/pdfflow/pkg/client"
	cli "github.com/urfave/cli/v3"
)

const defaultServiceURL = "http://localhost:8000"

func main() {
	command := &cli.Command{
		Name:                  "pdfflow",
		Usage:                 "Build, save and run PDF workflows against a pdfflow service",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "service-url",
				Usage:   "Base URL of the workflow service",
				Value:   defaultServiceURL,
				Sources: cli.EnvVars("PDFFLOW_SERVICE_URL"),
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Usage:   "Timeout of save, open and list requests",
				Value:   client.DefaultTimeout,
				Sources: cli.EnvVars("PDFFLOW_TIMEOUT"),
			},
			&cli.DurationFlag{
				Name:    "execute-timeout",
				Usage:   "Timeout of an execution request",
				Value:   client.DefaultExecuteTimeout,
				Sources: cli.EnvVars("PDFFLOW_EXECUTE_TIMEOUT"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			NodeTypesCommand(),
			ListCommand(),
			ShowCommand(),
			NewCommand(),
			ImportCommand(),
			RunCommand(),
			DeleteCommand(),
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
