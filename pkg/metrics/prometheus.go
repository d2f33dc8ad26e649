// Package metrics provides Prometheus metrics for alignment runs.
//
// The tool is a batch job, so nothing is scraped: the registry is written to a
// node-exporter style textfile at the end of a run.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for a run.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	constLabels      map[string]string
	registry         prometheus.Registerer
	gatherer         prometheus.Gatherer

	// Input Metrics
	files           *prometheus.CounterVec
	readingsParsed  *prometheus.CounterVec
	readingsDropped *prometheus.CounterVec

	// Alignment Metrics
	columnsAligned   *prometheus.CounterVec
	gridPointsFilled *prometheus.CounterVec
	eventFailures    *prometheus.CounterVec

	// Output Metrics
	outputsWritten *prometheus.CounterVec
	outputErrors   *prometheus.CounterVec
	exportDuration *prometheus.HistogramVec

	// Run Metrics
	runDuration prometheus.Gauge
	lastRunUnix prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "physalign",
		subsystem:        "run",
		histogramBuckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		enabled:          true,
		constLabels:      make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}
	if g, ok := m.registry.(prometheus.Gatherer); ok {
		m.gatherer = g
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.constLabels)

	m.files = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "files_total",
		Help:        "Input files visited, by modality and load status",
		ConstLabels: labels,
	}, []string{"modality", "status"})

	m.readingsParsed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "readings_parsed_total",
		Help:        "Readings accepted from input files",
		ConstLabels: labels,
	}, []string{"modality"})

	m.readingsDropped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "readings_dropped_total",
		Help:        "Rows discarded as malformed or below the temperature floor",
		ConstLabels: labels,
	}, []string{"modality"})

	m.columnsAligned = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "columns_aligned_total",
		Help:        "Aligned columns produced, by modality and coverage (full, partial, empty)",
		ConstLabels: labels,
	}, []string{"modality", "coverage"})

	m.gridPointsFilled = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "grid_points_filled_total",
		Help:        "Non-missing grid points across aligned columns",
		ConstLabels: labels,
	}, []string{"modality"})

	m.eventFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "event_failures_total",
		Help:        "Events that could not be aligned",
		ConstLabels: labels,
	}, []string{"experiment"})

	m.outputsWritten = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "outputs_written_total",
		Help:        "Output artifacts written, by kind",
		ConstLabels: labels,
	}, []string{"kind"})

	m.outputErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "output_errors_total",
		Help:        "Output artifacts that failed to write, by kind",
		ConstLabels: labels,
	}, []string{"kind"})

	m.exportDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "export_duration_seconds",
		Help:        "Time spent writing each output kind",
		Buckets:     m.histogramBuckets,
		ConstLabels: labels,
	}, []string{"kind"})

	m.runDuration = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "duration_seconds",
		Help:        "Wall time of the last run",
		ConstLabels: labels,
	})

	m.lastRunUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "last_completed_unix",
		Help:        "Unix timestamp of the last completed run",
		ConstLabels: labels,
	})
}

// RecordFile counts one input file by modality and status.
func (m *Manager) RecordFile(modality, status string) {
	if !m.enabled {
		return
	}
	m.files.WithLabelValues(modality, status).Inc()
}

// RecordReadings adds parsed and dropped reading counts for modality.
func (m *Manager) RecordReadings(modality string, parsed, dropped int) {
	if !m.enabled {
		return
	}
	m.readingsParsed.WithLabelValues(modality).Add(float64(parsed))
	m.readingsDropped.WithLabelValues(modality).Add(float64(dropped))
}

// RecordColumn counts one aligned column with filled of total grid points.
func (m *Manager) RecordColumn(modality string, filled, total int) {
	if !m.enabled {
		return
	}
	coverage := "partial"
	switch {
	case filled == 0:
		coverage = "empty"
	case filled == total:
		coverage = "full"
	}
	m.columnsAligned.WithLabelValues(modality, coverage).Inc()
	m.gridPointsFilled.WithLabelValues(modality).Add(float64(filled))
}

// RecordEventFailure counts one event of experiment that could not be aligned.
func (m *Manager) RecordEventFailure(experiment string) {
	if !m.enabled {
		return
	}
	m.eventFailures.WithLabelValues(experiment).Inc()
}

// RecordOutput counts one artifact of kind and how long it took.
func (m *Manager) RecordOutput(kind string, d time.Duration, err error) {
	if !m.enabled {
		return
	}
	m.exportDuration.WithLabelValues(kind).Observe(d.Seconds())
	if err != nil {
		m.outputErrors.WithLabelValues(kind).Inc()
		return
	}
	m.outputsWritten.WithLabelValues(kind).Inc()
}

// RecordRun sets the run gauges.
func (m *Manager) RecordRun(d time.Duration, completed time.Time) {
	if !m.enabled {
		return
	}
	m.runDuration.Set(d.Seconds())
	m.lastRunUnix.Set(float64(completed.Unix()))
}

// WriteTextfile writes every gathered metric to path in the text exposition
// format. The write is atomic.
func (m *Manager) WriteTextfile(path string) error {
	if m.gatherer == nil {
		return fmt.Errorf("%w: registry cannot be gathered", ErrWriteFailed)
	}
	if err := prometheus.WriteToTextfile(path, m.gatherer); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}

// RecordFile counts one input file on the global manager.
func RecordFile(modality, status string) {
	globalManager.RecordFile(modality, status)
}

// RecordReadings adds reading counts on the global manager.
func RecordReadings(modality string, parsed, dropped int) {
	globalManager.RecordReadings(modality, parsed, dropped)
}

// RecordColumn counts one aligned column on the global manager.
func RecordColumn(modality string, filled, total int) {
	globalManager.RecordColumn(modality, filled, total)
}

// RecordEventFailure counts one failed event on the global manager.
func RecordEventFailure(experiment string) {
	globalManager.RecordEventFailure(experiment)
}

// RecordOutput counts one artifact on the global manager.
func RecordOutput(kind string, d time.Duration, err error) {
	globalManager.RecordOutput(kind, d, err)
}

// RecordRun sets the run gauges on the global manager.
func RecordRun(d time.Duration, completed time.Time) {
	globalManager.RecordRun(d, completed)
}

// WriteTextfile writes the global registry to path.
func WriteTextfile(path string) error {
	return globalManager.WriteTextfile(path)
}

// Default returns the global manager.
func Default() *Manager {
	return globalManager
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
