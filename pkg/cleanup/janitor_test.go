package cleanup_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/pdfflow/pkg/cleanup"
	"github.com/dukex/pdfflow/pkg/log"
	"github.com/dukex/pdfflow/pkg/models"
	"github.com/dukex/pdfflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAged(t *testing.T, path string, age time.Duration) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestJanitor_Run(t *testing.T) {
	t.Parallel()

	uploads := t.TempDir()
	outputs := t.TempDir()

	oldUpload := filepath.Join(uploads, "workflow", "old.pdf")
	freshUpload := filepath.Join(uploads, "workflow", "fresh.pdf")
	oldOutput := filepath.Join(outputs, "exec-1", "a.pdf")

	writeAged(t, oldUpload, 2*time.Hour)
	writeAged(t, freshUpload, time.Minute)
	writeAged(t, oldOutput, 3*time.Hour)

	store := file.NewPersistence(t.TempDir())

	finished := time.Now().Add(-2 * time.Hour)
	require.NoError(t, store.ExecutionRepository().Save(t.Context(), &models.Execution{
		ID:          "exec-1",
		WorkflowID:  "wf-1",
		Status:      models.ExecutionStatusCompleted,
		StartedAt:   &finished,
		CompletedAt: &finished,
	}))

	janitor := cleanup.NewJanitor(log.Discard(), []string{uploads, outputs, filepath.Join(outputs, "missing")},
		cleanup.WithExecutions(store.ExecutionRepository()),
	)

	report, err := janitor.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, cleanup.Report{Files: 2, Dirs: 1, Executions: 1}, report)

	assert.NoFileExists(t, oldUpload)
	assert.FileExists(t, freshUpload)
	assert.NoDirExists(t, filepath.Join(outputs, "exec-1"))
	assert.DirExists(t, outputs)

	_, err = store.ExecutionRepository().GetByID(t.Context(), "exec-1")
	require.Error(t, err)
}

func TestJanitor_Retention(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "a.pdf")
	writeAged(t, path, 2*time.Hour)

	janitor := cleanup.NewJanitor(log.Discard(), []string{dir}, cleanup.WithRetention(3*time.Hour))

	report, err := janitor.Run(t.Context())
	require.NoError(t, err)
	assert.Zero(t, report.Files)
	assert.FileExists(t, path)
}

func TestJanitor_StartRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	janitor := cleanup.NewJanitor(log.Discard(), nil, cleanup.WithSchedule("not a schedule"))

	require.Error(t, janitor.Start(context.Background()))
}

func TestJanitor_StartStop(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "a.pdf")
	writeAged(t, path, 2*time.Hour)

	janitor := cleanup.NewJanitor(log.Discard(), []string{dir}, cleanup.WithSchedule("@every 1s"))
	require.NoError(t, janitor.Start(t.Context()))

	t.Cleanup(janitor.Stop)

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)

		return os.IsNotExist(err)
	}, 5*time.Second, 50*time.Millisecond)
}
