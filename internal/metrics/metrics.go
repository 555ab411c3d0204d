// Package metrics exposes pipeline counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ucc"

// Metrics pipeline collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	files       *prometheus.CounterVec
	steps       *prometheus.CounterVec
	stepSeconds *prometheus.HistogramVec
	datasetRows *prometheus.GaugeVec
	uploads     *prometheus.CounterVec
}

// New registers the pipeline collectors plus the Go runtime collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Source files read, by form and result.",
		}, []string{"form", "result"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Form steps run, by form and final state.",
		}, []string{"form", "state"}),
		stepSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of a form step.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"form"}),
		datasetRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_rows",
			Help:      "Rows in the consolidated dataset after the last merge.",
		}, []string{"form"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Files received through the upload endpoint, by form.",
		}, []string{"form"}),
	}

	m.registry.MustRegister(
		m.files,
		m.steps,
		m.stepSeconds,
		m.datasetRows,
		m.uploads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveFile counts one source file
func (m *Metrics) ObserveFile(form string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.files.WithLabelValues(form, result).Inc()
}

// ObserveStep records the end state and duration of a form step
func (m *Metrics) ObserveStep(form, state string, d time.Duration) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(form, state).Inc()
	m.stepSeconds.WithLabelValues(form).Observe(d.Seconds())
}

// SetDatasetRows records the consolidated dataset size
func (m *Metrics) SetDatasetRows(form string, n int) {
	if m == nil {
		return
	}
	m.datasetRows.WithLabelValues(form).Set(float64(n))
}

// ObserveUpload counts one uploaded file
func (m *Metrics) ObserveUpload(form string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(form).Inc()
}
