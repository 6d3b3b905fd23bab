// Package metrics implements the pipeline Metrics interface on Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "govbench"

// Prometheus records pipeline metrics into its own registry. Metric names
// used by the pipeline ("infer.calls", "judge.latency") become the value
// of a "name" label on three families: govbench_events_total,
// govbench_duration_seconds and govbench_gauge.
type Prometheus struct {
	registry  *prometheus.Registry
	counters  *prometheus.CounterVec
	durations *prometheus.HistogramVec
	gauges    *prometheus.GaugeVec
}

// NewPrometheus creates a collector with a fresh registry that also
// carries the Go runtime and process collectors.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Prometheus{
		registry: reg,
		counters: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Pipeline event counts by name.",
		}, []string{"name"}),
		durations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "duration_seconds",
			Help:      "Pipeline durations by name.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"name"}),
		gauges: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gauge",
			Help:      "Pipeline gauges by name.",
		}, []string{"name"}),
	}
}

// IncrementCounter adds value to the named counter. Negative values are
// ignored.
func (p *Prometheus) IncrementCounter(name string, value int64) {
	if value < 0 {
		return
	}
	p.counters.WithLabelValues(name).Add(float64(value))
}

// RecordDuration observes duration on the named histogram.
func (p *Prometheus) RecordDuration(name string, duration time.Duration) {
	p.durations.WithLabelValues(name).Observe(duration.Seconds())
}

// SetGauge sets the named gauge.
func (p *Prometheus) SetGauge(name string, value float64) {
	p.gauges.WithLabelValues(name).Set(value)
}

// Registry returns the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// WriteTextFile writes the current values to path in the text format read
// by the node exporter's textfile collector.
func (p *Prometheus) WriteTextFile(path string) error {
	return prometheus.WriteToTextfile(path, p.registry)
}
