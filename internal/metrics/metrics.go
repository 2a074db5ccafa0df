// Package metrics holds the prometheus collectors updated by compilation and instantiation.
//
// A nil *Metrics is valid and records nothing, so callers don't need to check whether metrics were configured.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "wasmengine"

	// ResultOK and ResultError are the values of the "result" label.
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics is the set of collectors for one runtime.
type Metrics struct {
	functionsCompiled prometheus.Counter
	compileFailures   prometheus.Counter
	compileDuration   prometheus.Histogram
	instantiations    *prometheus.CounterVec
	pagesGrown        prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg returns nil.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}
	m := &Metrics{
		functionsCompiled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compile",
			Name:      "functions_total",
			Help:      "The number of function bodies decoded and built.",
		}),
		compileFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compile",
			Name:      "failures_total",
			Help:      "The number of function bodies that failed to decode or validate.",
		}),
		compileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "compile",
			Name:      "module_duration_seconds",
			Help:      "The number of seconds it takes to compile every function of a module.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		instantiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "instantiations_total",
			Help:      "The number of module instantiations by result.",
		}, []string{"result"}),
		pagesGrown: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "pages_grown_total",
			Help:      "The number of 64KiB pages added to linear memories after instantiation.",
		}),
	}
	for _, c := range []prometheus.Collector{m.functionsCompiled, m.compileFailures, m.compileDuration, m.instantiations, m.pagesGrown} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// FunctionCompiled counts one function, failed or not.
func (m *Metrics) FunctionCompiled(failed bool) {
	if m == nil {
		return
	}
	m.functionsCompiled.Inc()
	if failed {
		m.compileFailures.Inc()
	}
}

// ModuleCompiled observes the time spent compiling a module since start.
func (m *Metrics) ModuleCompiled(start time.Time) {
	if m == nil {
		return
	}
	m.compileDuration.Observe(time.Since(start).Seconds())
}

// Instantiated counts an instantiation attempt.
func (m *Metrics) Instantiated(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.instantiations.WithLabelValues(ResultError).Inc()
	} else {
		m.instantiations.WithLabelValues(ResultOK).Inc()
	}
}

// PagesGrown counts pages added by a successful memory grow.
func (m *Metrics) PagesGrown(delta uint32) {
	if m == nil {
		return
	}
	m.pagesGrown.Add(float64(delta))
}
