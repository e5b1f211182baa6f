// Package metrics supplies the default types.Recorder implementation,
// backed by prometheus/client_golang the way dolthub-dolt's
// binlogreplication package registers ad-hoc counters and gauges
// against a *prometheus.Registry instead of the global DefaultRegisterer.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jabolina/go-core/pkg/core/types"
)

// Recorder adapts a prometheus registry to types.Recorder, lazily
// registering one CounterVec/GaugeVec per metric name on first use since
// core components call IncCounter/SetGauge without a registration phase.
type Recorder struct {
	registry *prometheus.Registry

	mu       sync.Mutex
	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
}

// New builds a Recorder around registry (a fresh prometheus.NewRegistry()
// if nil).
func New(registry *prometheus.Registry) *Recorder {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return &Recorder{
		registry: registry,
		counters: make(map[string]*prometheus.CounterVec),
		gauges:   make(map[string]*prometheus.GaugeVec),
	}
}

// Registry exposes the underlying registry for an HTTP /metrics handler.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) IncCounter(name string, labels map[string]string) {
	r.counterVec(name, labels).With(labels).Inc()
}

func (r *Recorder) SetGauge(name string, labels map[string]string, value float64) {
	r.gaugeVec(name, labels).With(labels).Set(value)
}

func (r *Recorder) counterVec(name string, labels map[string]string) *prometheus.CounterVec {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.counters[name]
	if !ok {
		c = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, labelNames(labels))
		r.registry.MustRegister(c)
		r.counters[name] = c
	}
	return c
}

func (r *Recorder) gaugeVec(name string, labels map[string]string) *prometheus.GaugeVec {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.gauges[name]
	if !ok {
		g = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name}, labelNames(labels))
		r.registry.MustRegister(g)
		r.gauges[name] = g
	}
	return g
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	return names
}

var _ types.Recorder = (*Recorder)(nil)
