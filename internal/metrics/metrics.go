// Package metrics exposes ingestion counters in the Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "demanda"

// Metrics holds the collectors registered on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	FilesParsed     prometheus.Counter
	FilesFailed     prometheus.Counter
	FilesRemoved    prometheus.Counter
	RecordsIngested prometheus.Counter
	DatasetRecords  prometheus.Gauge
	SSEClients      prometheus.GaugeFunc
}

// New creates and registers all collectors. clients, if non-nil, backs the
// connected-SSE-clients gauge.
func New(clients func() int) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		FilesParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "files_parsed_total",
			Help: "Source files parsed successfully.",
		}),
		FilesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "files_failed_total",
			Help: "Source files rejected by the parser.",
		}),
		FilesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "files_removed_total",
			Help: "Source files dropped from the index after disappearing from disk.",
		}),
		RecordsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "records_ingested_total",
			Help: "Records stored from successfully parsed files.",
		}),
		DatasetRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "dataset_records",
			Help: "Records currently held in the dataset.",
		}),
	}
	reg.MustRegister(m.FilesParsed, m.FilesFailed, m.FilesRemoved, m.RecordsIngested, m.DatasetRecords)

	if clients != nil {
		m.SSEClients = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "sse_clients",
			Help: "Connected Server-Sent Events clients.",
		}, func() float64 { return float64(clients()) })
		reg.MustRegister(m.SSEClients)
	}
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

// Parsed records one successfully parsed file of n rows.
func (m *Metrics) Parsed(rows int) {
	m.FilesParsed.Inc()
	m.RecordsIngested.Add(float64(rows))
}

// Failed records one rejected file.
func (m *Metrics) Failed() { m.FilesFailed.Inc() }

// Removed records one file dropped from the index.
func (m *Metrics) Removed() { m.FilesRemoved.Inc() }

// SetDatasetSize sets the current dataset row count.
func (m *Metrics) SetDatasetSize(n int) { m.DatasetRecords.Set(float64(n)) }

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
