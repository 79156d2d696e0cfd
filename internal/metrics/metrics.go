// Package metrics provides the shared Prometheus registration helpers every
// AIPerf service uses to expose a /metrics endpoint: prometheus.NewCounter/
// NewGauge/NewHistogram registered once at startup, scraped via promhttp.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps a prometheus.Registry scoped to one service process, so
// every service gets its own registry rather than sharing the global
// default (avoiding duplicate-registration panics across the service
// binaries that link this package).
type Registry struct {
	reg *prometheus.Registry
}

// NewRegistry builds an empty registry with the standard Go collector
// included, matching promhttp defaults.
func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(prometheus.NewGoCollector())
	r.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return &Registry{reg: r}
}

// MustRegister registers one or more collectors, panicking on duplicate
// registration (a startup-time programming error).
func (r *Registry) MustRegister(cs ...prometheus.Collector) {
	r.reg.MustRegister(cs...)
}

// Handler returns the promhttp handler for this registry's /metrics route.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Counter builds and registers a counter named "aiperf_<component>_<noun>".
func (r *Registry) Counter(name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	r.MustRegister(c)
	return c
}

// CounterVec builds and registers a labeled counter.
func (r *Registry) CounterVec(name, help string, labels ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	r.MustRegister(c)
	return c
}

// Gauge builds and registers a gauge.
func (r *Registry) Gauge(name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	r.MustRegister(g)
	return g
}

// Histogram builds and registers a histogram with explicit buckets.
func (r *Registry) Histogram(name, help string, buckets []float64) prometheus.Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets})
	r.MustRegister(h)
	return h
}
