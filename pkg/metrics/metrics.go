// Package metrics exposes the workflow service prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors updated by the workflow service.
type Metrics struct {
	// ExecutionsTotal counts finished executions by status.
	ExecutionsTotal *prometheus.CounterVec

	// ExecutionDuration observes whole-workflow run time.
	ExecutionDuration *prometheus.HistogramVec

	// NodeExecutionsTotal counts node runs by node type and status.
	NodeExecutionsTotal *prometheus.CounterVec

	// UploadedFilesTotal counts files accepted by the execute endpoint.
	UploadedFilesTotal prometheus.Counter

	// CleanupRemovedTotal counts files and records removed by the janitor.
	CleanupRemovedTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfflow_executions_total",
				Help: "Total number of workflow executions",
			},
			[]string{"status"},
		),
		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pdfflow_execution_duration_seconds",
				Help:    "Workflow execution duration",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"status"},
		),
		NodeExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfflow_node_executions_total",
				Help: "Total number of node executions",
			},
			[]string{"node_type", "status"},
		),
		UploadedFilesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pdfflow_uploaded_files_total",
				Help: "Total number of uploaded input files",
			},
		),
		CleanupRemovedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfflow_cleanup_removed_total",
				Help: "Total number of items removed by retention cleanup",
			},
			[]string{"kind"},
		),
	}

	reg.MustRegister(
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.NodeExecutionsTotal,
		m.UploadedFilesTotal,
		m.CleanupRemovedTotal,
	)

	return m
}

// ObserveExecution records one finished workflow execution. A nil receiver is a no-op.
func (m *Metrics) ObserveExecution(status string, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.ExecutionsTotal.WithLabelValues(status).Inc()
	m.ExecutionDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveNode(nodeType, status string) {
	if m == nil {
		return
	}

	m.NodeExecutionsTotal.WithLabelValues(nodeType, status).Inc()
}

func (m *Metrics) AddUploads(n int) {
	if m == nil {
		return
	}

	m.UploadedFilesTotal.Add(float64(n))
}

func (m *Metrics) AddRemoved(kind string, n int) {
	if m == nil || n == 0 {
		return
	}

	m.CleanupRemovedTotal.WithLabelValues(kind).Add(float64(n))
}
