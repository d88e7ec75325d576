// Package metrics records preprocessing measurements in a Prometheus registry.
package metrics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "flowprep"

// Metrics implements preprocess.Observer on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	stageRowsIn   *prometheus.CounterVec
	stageRowsOut  *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	unknownLabels prometheus.Counter
	rowsRead      *prometheus.CounterVec
	rowsWritten   prometheus.Counter
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		stageRowsIn: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_rows_in_total",
			Help:      "Rows entering each transform stage.",
		}, []string{"stage"}),
		stageRowsOut: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_rows_out_total",
			Help:      "Rows leaving each transform stage.",
		}, []string{"stage"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each transform stage.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"stage"}),
		unknownLabels: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_labels_total",
			Help:      "Rows whose label is outside the vocabulary.",
		}),
		rowsRead: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_read_total",
			Help:      "Rows read from each input kind.",
		}, []string{"source"}),
		rowsWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Rows written to output tables.",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveStage records one stage execution.
func (m *Metrics) ObserveStage(stage string, rowsIn, rowsOut int, took time.Duration) {
	m.stageRowsIn.WithLabelValues(stage).Add(float64(rowsIn))
	m.stageRowsOut.WithLabelValues(stage).Add(float64(rowsOut))
	m.stageDuration.WithLabelValues(stage).Observe(took.Seconds())
}

// ObserveUnknownLabels counts rows with labels outside the vocabulary.
func (m *Metrics) ObserveUnknownLabels(n int) {
	m.unknownLabels.Add(float64(n))
}

// ObserveRead counts rows read from source ("csv", "pcap", "sql").
func (m *Metrics) ObserveRead(source string, rows int) {
	m.rowsRead.WithLabelValues(source).Add(float64(rows))
}

// ObserveWrite counts written rows.
func (m *Metrics) ObserveWrite(rows int) {
	m.rowsWritten.Add(float64(rows))
}

// WriteTextfile writes all metrics to path in the text exposition format,
// for collection by the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return errors.Wrap(prometheus.WriteToTextfile(path, m.registry), "write metrics")
}
