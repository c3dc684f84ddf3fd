// Package cleanup removes expired uploads, outputs and execution records on a schedule.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/dukex/pdfflow/pkg/metrics"
	"github.com/dukex/pdfflow/pkg/persistence"
	"github.com/robfig/cron/v3"
)

const (
	DefaultSchedule  = "@every 10m"
	DefaultRetention = time.Hour
)

// Report summarizes one cleanup pass.
type Report struct {
	Files      int
	Dirs       int
	Executions int
}

type Janitor struct {
	dirs       []string
	retention  time.Duration
	schedule   string
	executions persistence.ExecutionRepository
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
	cron       *cron.Cron
}

type Option func(*Janitor)

func WithRetention(retention time.Duration) Option {
	return func(j *Janitor) { j.retention = retention }
}

func WithSchedule(schedule string) Option {
	return func(j *Janitor) { j.schedule = schedule }
}

// WithExecutions also removes execution records finished before the cutoff.
func WithExecutions(repo persistence.ExecutionRepository) Option {
	return func(j *Janitor) { j.executions = repo }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(j *Janitor) { j.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(j *Janitor) { j.now = now }
}

// NewJanitor cleans the given directories. The directories themselves are never removed.
func NewJanitor(logger *slog.Logger, dirs []string, opts ...Option) *Janitor {
	j := &Janitor{
		dirs:      dirs,
		retention: DefaultRetention,
		schedule:  DefaultSchedule,
		logger:    logger.With("module", "janitor"),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(j)
	}

	return j
}

// Start schedules Run until Stop is called.
func (j *Janitor) Start(ctx context.Context) error {
	j.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := j.cron.AddFunc(j.schedule, func() {
		if _, err := j.Run(ctx); err != nil {
			j.logger.ErrorContext(ctx, "Cleanup failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", j.schedule, err)
	}

	j.cron.Start()
	j.logger.InfoContext(ctx, "Janitor started", "schedule", j.schedule, "retention", j.retention, "dirs", j.dirs)

	return nil
}

// Stop halts the schedule and waits for a running pass to finish.
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}

	<-j.cron.Stop().Done()
}

// Run performs one cleanup pass.
func (j *Janitor) Run(ctx context.Context) (Report, error) {
	var (
		report Report
		errs   []error
	)

	cutoff := j.now().Add(-j.retention)

	for _, dir := range j.dirs {
		files, dirs, err := j.cleanDir(dir, cutoff)
		report.Files += files
		report.Dirs += dirs

		if err != nil {
			errs = append(errs, err)
		}
	}

	if j.executions != nil {
		n, err := j.executions.DeleteFinishedBefore(ctx, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to delete executions: %w", err))
		}

		report.Executions = n
	}

	j.metrics.AddRemoved("file", report.Files)
	j.metrics.AddRemoved("dir", report.Dirs)
	j.metrics.AddRemoved("execution", report.Executions)

	if report != (Report{}) {
		j.logger.InfoContext(ctx, "Cleanup finished", "files", report.Files, "dirs", report.Dirs, "executions", report.Executions)
	}

	return report, errors.Join(errs...)
}

// cleanDir removes files modified before cutoff, then the directories left empty.
func (j *Janitor) cleanDir(root string, cutoff time.Time) (int, int, error) {
	var (
		files int
		dirs  []string
	)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}

			return err
		}

		if d.IsDir() {
			if path != root {
				dirs = append(dirs, path)
			}

			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil //nolint:nilerr // file vanished during the walk
		}

		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				j.logger.Warn("Failed to delete expired file", "path", path, "error", err)

				return nil
			}

			files++
		}

		return nil
	})
	if err != nil {
		return files, 0, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	// Deepest first so parents empty out after their children.
	slices.Reverse(dirs)

	removed := 0

	for _, dir := range dirs {
		if err := os.Remove(dir); err == nil {
			removed++
		}
	}

	return files, removed, nil
}
