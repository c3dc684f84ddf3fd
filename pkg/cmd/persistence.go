package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/dukex/pdfflow/pkg/persistence"
	"github.com/dukex/pdfflow/pkg/persistence/file"
	"github.com/dukex/pdfflow/pkg/persistence/postgresql"
	"github.com/dukex/pdfflow/pkg/persistence/redis"
)

// ErrDataInsidePrunedDir is returned when file persistence would live in a directory the retention cleanup prunes.
var ErrDataInsidePrunedDir = errors.New("file persistence root is inside a pruned directory")

// CheckDataRoot rejects a file persistence root at or below any of the pruned
// directories, where the retention cleanup would delete saved workflows.
// Other backends always pass.
func CheckDataRoot(databaseURL string, pruned ...string) error {
	if parsePersistenceProvider(databaseURL) != "file" {
		return nil
	}

	root, err := filepath.Abs(strings.TrimPrefix(databaseURL, "file://"))
	if err != nil {
		return fmt.Errorf("resolving %s: %w", databaseURL, err)
	}

	for _, dir := range pruned {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", dir, err)
		}

		rel, err := filepath.Rel(abs, root)
		if err != nil {
			continue
		}

		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return fmt.Errorf("%w: %s is inside %s", ErrDataInsidePrunedDir, root, abs)
		}
	}

	return nil
}

// NewPersistence picks the storage backend from the database URL scheme.
// A URL without a scheme is a directory for file persistence.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "file":
		p := file.NewPersistence(databaseURL)

		return p, p.HealthCheck(ctx)
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger.With("module", "postgresql"), databaseURL)
	case "redis", "rediss":
		return redis.NewPersistence(ctx, logger.With("module", "redis"), databaseURL)
	default:
		return nil, fmt.Errorf("%w: %s", persistence.ErrUnsupportedDatabase, databaseURL)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}
