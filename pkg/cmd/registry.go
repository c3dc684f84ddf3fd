// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/dukex/pdfflow/pkg/operations"
	"github.com/dukex/pdfflow/pkg/registry"
)

// NewCatalog loads the node type catalog or panics; a broken embedded catalog is a build defect.
func NewCatalog(logger *slog.Logger) *registry.Catalog {
	catalog, err := registry.Load(logger)
	if err != nil {
		panic(err)
	}

	return catalog
}

// NewOperations registers the natively executable node types.
func NewOperations(outputDir string) *operations.Registry {
	reg := operations.NewRegistry()

	reg.Register(operations.NewInputFile())
	reg.Register(operations.NewInputFolder())
	reg.Register(operations.NewCondition())
	reg.Register(operations.NewDelay())
	reg.Register(operations.NewOutputSave(outputDir))

	return reg
}
