// Package metrics exposes worker activity to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	JobsReceived       prometheus.Counter
	Conversions        *prometheus.CounterVec
	PayloadBytes       prometheus.Counter
	ConversionDuration prometheus.Histogram
}

// New creates the worker metrics on a registry of their own, together with
// the Go runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		JobsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "au_stream_jobs_received_total",
			Help: "Total number of conversion jobs read from the queue",
		}),
		Conversions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "au_stream_conversions_total",
			Help: "Total number of processed conversions by outcome",
		}, []string{"status"}),
		PayloadBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "au_stream_payload_bytes_total",
			Help: "Total number of sample bytes moved by successful conversions",
		}),
		ConversionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "au_stream_conversion_duration_seconds",
			Help:    "Time spent converting one job, including storage transfers",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		}),
	}
}

func (m *Metrics) RecordJobsReceived(n int) {
	m.JobsReceived.Add(float64(n))
}

// RecordConversion counts one processed job.
func (m *Metrics) RecordConversion(status string, payloadBytes int64, duration time.Duration) {
	m.Conversions.WithLabelValues(status).Inc()
	m.PayloadBytes.Add(float64(payloadBytes))
	m.ConversionDuration.Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
